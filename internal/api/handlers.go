package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/mcp"
	"github.com/obverse/mantle-bot/internal/storage"
)

const webhookSecretHeader = "X-Webhook-Secret"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(); err != nil {
			s.log.Error("health check", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"reason": "database unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type paymentLinkResponse struct {
	LinkID       string            `json:"linkId"`
	Title        string            `json:"title"`
	Amount       string            `json:"amount"`
	Token        string            `json:"token"`
	TokenAddress string            `json:"tokenAddress"`
	Network      string            `json:"network"`
	Status       string            `json:"status"`
	PayTo        string            `json:"payTo,omitempty"`
	Details      map[string]string `json:"details"`
	CurrentUses  int               `json:"currentUses"`
	MaxUses      int               `json:"maxUses"`
	QRCodeURL    string            `json:"qrCodeUrl,omitempty"`
	LinkURL      string            `json:"linkUrl"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// handlePaymentLink serves the public data of a link and counts the view
func (s *Server) handlePaymentLink(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "linkId")

	link, err := s.deps.Links.View(linkID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "payment link not found")
		return
	}
	if err != nil {
		s.log.Error("view payment link", "link_id", linkID, "request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := paymentLinkResponse{
		LinkID:       link.LinkID,
		Title:        link.Title,
		Amount:       link.Amount,
		Token:        link.Token,
		TokenAddress: link.TokenAddress,
		Network:      link.Network,
		Status:       link.Status,
		Details:      link.DetailsMap(),
		CurrentUses:  link.CurrentUses,
		MaxUses:      link.MaxUses,
		QRCodeURL:    link.QRCodeURL,
		LinkURL:      link.LinkURL,
		CreatedAt:    link.CreatedAt,
	}
	if wallet, err := s.deps.Wallets.GetWalletByUserID(link.CreatorUserID); err == nil {
		resp.PayTo = wallet.Address
	} else {
		s.log.Warn("get link wallet", "link_id", linkID, "error", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

type paymentWebhook struct {
	LinkID       string `json:"linkId"`
	PayerAddress string `json:"payerAddress"`
	Amount       string `json:"amount"`
	TxHash       string `json:"txHash"`
}

// handlePaymentWebhook records a confirmed payment against a link
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(webhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var payload paymentWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.log.Warn("invalid webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	payload.LinkID = strings.TrimSpace(payload.LinkID)
	payload.TxHash = strings.TrimSpace(payload.TxHash)
	if payload.LinkID == "" || payload.TxHash == "" {
		writeError(w, http.StatusBadRequest, "linkId and txHash are required")
		return
	}
	if !chain.IsAddress(payload.PayerAddress) {
		writeError(w, http.StatusBadRequest, "invalid payer address")
		return
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	payment := storage.LinkPayment{
		LinkID:          payload.LinkID,
		PayerAddress:    chain.NormalizeAddress(payload.PayerAddress),
		Amount:          amount.String(),
		TransactionHash: payload.TxHash,
		PaidAt:          time.Now(),
	}

	link, err := s.deps.Links.RecordPayment(payload.LinkID, payment)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment link not found")
		return
	case errors.Is(err, storage.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "payment already recorded")
		return
	case errors.Is(err, storage.ErrLimitReached), errors.Is(err, storage.ErrInactive):
		writeError(w, http.StatusConflict, "payment link is no longer accepting payments")
		return
	case err != nil:
		s.log.Error("record link payment", "link_id", payload.LinkID, "tx_hash", payload.TxHash, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("link payment recorded",
		"link_id", link.LinkID,
		"amount", payment.Amount,
		"token", link.Token,
		"uses", link.CurrentUses,
	)

	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyPayment(r.Context(), link, payment)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "recorded",
		"linkStatus":  link.Status,
		"currentUses": link.CurrentUses,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": s.deps.Tools.ListTools()})
}

type callToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	res, err := s.deps.Tools.CallTool(r.Context(), req.Name, req.Arguments)
	switch {
	case errors.Is(err, mcp.ErrUnknownTool):
		writeJSON(w, http.StatusNotFound, res)
	case errors.Is(err, mcp.ErrBadArguments):
		writeJSON(w, http.StatusBadRequest, res)
	case err != nil:
		s.log.Error("call tool", "tool", req.Name, "request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "tool execution failed")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

type processRequest struct {
	Message string     `json:"message"`
	UserID  mcp.UserID `json:"userId"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" || req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "message and userId are required")
		return
	}

	text, err := s.deps.Tools.ProcessNaturalLanguage(r.Context(), req.Message, int64(req.UserID))
	if err != nil {
		s.log.Error("process message", "user_id", int64(req.UserID), "request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": text})
}
