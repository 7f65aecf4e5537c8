// Package tools exposes balance, transfer and payment link operations as
// self-contained calls that return user-facing results.
package tools

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/obverse/mantle-bot/internal/balance"
	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/paylink"
	"github.com/obverse/mantle-bot/internal/storage"
	"github.com/obverse/mantle-bot/internal/transfer"
)

// Callback data of transfer confirmation buttons
const (
	DataConfirmSendPrefix = "confirm_send:"
	DataCancelSendPrefix  = "cancel_send:"
)

const noWalletText = "❌ No wallet found. Please use /start to create a wallet first."

// Balances reads wallet balances
type Balances interface {
	ForUser(ctx context.Context, telegramID int64, symbols []string) (*balance.Report, error)
}

// Transfers validates and sends transfers
type Transfers interface {
	Validate(ctx context.Context, req transfer.Request) (*transfer.Prepared, *transfer.Error)
	Send(ctx context.Context, req transfer.Request) *transfer.Result
}

// Links creates payment links and reports on them
type Links interface {
	Create(ctx context.Context, d paylink.Draft) (*storage.PaymentLink, error)
	Stats(telegramID int64, linkID string) (*paylink.Stats, error)
	Summary(telegramID int64) (*paylink.Summary, error)
	FindByTitle(telegramID int64, name string) ([]storage.PaymentLink, error)
	Exists(linkID string) bool
}

// Result is the outcome of a tool call.
// Text is HTML for chat transports; Data is the machine-readable payload handed to models.
type Result struct {
	OK       bool
	Text     string
	Buttons  [][]flow.Button
	PhotoURL string
	Data     interface{}
}

func failure(text string) *Result {
	return &Result{Text: text}
}

// LinkParams describes a payment link to create in one call
type LinkParams struct {
	Name    string
	Token   string
	Amount  string
	Details []string
	MaxUses int
}

// Tools implements the direct tool invocations
type Tools struct {
	balances  Balances
	transfers Transfers
	links     Links
	pending   *transfer.Pending
	log       *slog.Logger
}

// New creates a new Tools
func New(balances Balances, transfers Transfers, links Links, pending *transfer.Pending, log *slog.Logger) *Tools {
	return &Tools{
		balances:  balances,
		transfers: transfers,
		links:     links,
		pending:   pending,
		log:       log,
	}
}

// CheckBalance reports the balances of the user's wallet, optionally limited to tokens
func (t *Tools) CheckBalance(ctx context.Context, telegramID int64, tokens []string) *Result {
	report, err := t.balances.ForUser(ctx, telegramID, tokens)
	if errors.Is(err, balance.ErrNotFound) {
		return failure(noWalletText)
	}
	if err != nil {
		t.log.Error("check balance", "telegram_id", telegramID, "error", err)
		return failure("❌ Unable to check balance. Please try again.")
	}
	if len(report.Balances) == 0 {
		return failure(fmt.Sprintf("❌ Unknown token. Supported tokens: %s.", strings.Join(chain.Symbols(chain.BalanceTokens), ", ")))
	}

	data := make(map[string]string, len(report.Balances))
	for _, b := range report.Balances {
		if b.Status == balance.StatusUnavailable {
			data[b.Symbol] = "unavailable"
			continue
		}
		data[b.Symbol] = b.Amount
	}

	return &Result{
		OK:   true,
		Text: formatBalance(report),
		Data: map[string]interface{}{"address": report.Address, "balances": data},
	}
}

// CreatePaymentLink creates a link in a single step
func (t *Tools) CreatePaymentLink(ctx context.Context, telegramID, chatID int64, p LinkParams, source string) *Result {
	link, err := t.links.Create(ctx, paylink.Draft{
		TelegramID: telegramID,
		ChatID:     chatID,
		Title:      p.Name,
		Token:      p.Token,
		Amount:     p.Amount,
		Details:    paylink.CleanFields(p.Details),
		MaxUses:    p.MaxUses,
		Source:     source,
	})
	switch {
	case errors.Is(err, paylink.ErrNotRegistered):
		return failure(noWalletText)
	case errors.Is(err, paylink.ErrInvalid):
		return failure("❌ " + capitalizeFirst(err.Error()))
	case err != nil:
		t.log.Error("create payment link", "telegram_id", telegramID, "error", err)
		return failure("❌ Failed to create payment link. Please try again.")
	}

	return &Result{
		OK:       true,
		Text:     paylink.FormatCreated(link),
		Buttons:  flow.LinkButtons(link),
		PhotoURL: link.QRCodeURL,
		Data: map[string]interface{}{
			"linkId":  link.LinkID,
			"name":    link.Title,
			"amount":  link.Amount,
			"token":   link.Token,
			"linkUrl": link.LinkURL,
			"details": link.Details,
		},
	}
}

// SendTokens validates and submits a transfer immediately
func (t *Tools) SendTokens(ctx context.Context, req transfer.Request) *Result {
	res := t.transfers.Send(ctx, req)
	if !res.Success {
		return failure("❌ " + res.Error.Message)
	}

	return &Result{
		OK:   true,
		Text: formatSent(res),
		Buttons: [][]flow.Button{{
			{Text: "🔍 View on Explorer", URL: res.ConfirmationURL},
		}},
		Data: map[string]interface{}{
			"transactionHash": res.TransactionHash,
			"fromAddress":     res.FromAddress,
			"toAddress":       res.ToAddress,
			"amount":          res.Amount,
			"token":           res.Token,
			"confirmationUrl": res.ConfirmationURL,
		},
	}
}

// PrepareTransfer validates a transfer and parks it until the user confirms
func (t *Tools) PrepareTransfer(ctx context.Context, req transfer.Request) *Result {
	p, verr := t.transfers.Validate(ctx, req)
	if verr != nil {
		return failure("❌ " + verr.Message)
	}

	id := t.pending.Add(req)
	return &Result{
		OK:   true,
		Text: formatPreview(p, req.Memo),
		Buttons: [][]flow.Button{{
			{Text: "✅ Confirm", Data: DataConfirmSendPrefix + id},
			{Text: "❌ Cancel", Data: DataCancelSendPrefix + id},
		}},
	}
}

// ConfirmTransfer sends a transfer prepared earlier by the same user.
// Balances are validated again at send time.
func (t *Tools) ConfirmTransfer(ctx context.Context, id string, telegramID int64) *Result {
	req, ok := t.pending.Take(id, telegramID)
	if !ok {
		return failure("❌ This transfer has expired. Please use /send again.")
	}
	return t.SendTokens(ctx, req)
}

// CancelTransfer discards a prepared transfer
func (t *Tools) CancelTransfer(id string, telegramID int64) *Result {
	t.pending.Drop(id, telegramID)
	return &Result{OK: true, Text: "❌ Transfer cancelled."}
}

// HasPaymentLink reports whether linkID names a stored payment link
func (t *Tools) HasPaymentLink(linkID string) bool {
	return t.links.Exists(linkID)
}

// GetPaymentLinkStats reports on one of the user's links
func (t *Tools) GetPaymentLinkStats(telegramID int64, linkID string) *Result {
	st, err := t.links.Stats(telegramID, strings.TrimSpace(linkID))
	switch {
	case errors.Is(err, paylink.ErrNotRegistered):
		return failure(noWalletText)
	case errors.Is(err, storage.ErrNotFound):
		return failure(fmt.Sprintf("❌ Payment link <code>%s</code> not found.", html.EscapeString(linkID)))
	case errors.Is(err, paylink.ErrUnauthorized):
		return failure("❌ You can only view statistics for your own payment links.")
	case err != nil:
		t.log.Error("payment link stats", "telegram_id", telegramID, "link_id", linkID, "error", err)
		return failure("❌ Failed to load payment link statistics. Please try again.")
	}

	return &Result{
		OK:   true,
		Text: paylink.FormatStats(st),
		Buttons: [][]flow.Button{{
			{Text: "🌐 Open Link", URL: st.Link.LinkURL},
			{Text: "📈 Tracking", URL: st.TrackingURL},
		}},
		Data: map[string]interface{}{
			"linkId":        st.Link.LinkID,
			"title":         st.Link.Title,
			"status":        st.Link.Status,
			"amount":        st.Link.Amount,
			"token":         st.Link.Token,
			"views":         st.Views,
			"transactions":  st.Transactions,
			"uses":          st.Uses(),
			"conversion":    st.Conversion,
			"totalReceived": st.Link.TotalReceived,
			"trackingUrl":   st.TrackingURL,
		},
	}
}

// GetAllPaymentLinksStats summarizes every link of the user
func (t *Tools) GetAllPaymentLinksStats(telegramID int64) *Result {
	sum, err := t.links.Summary(telegramID)
	if errors.Is(err, paylink.ErrNotRegistered) {
		return failure(noWalletText)
	}
	if err != nil {
		t.log.Error("payment links summary", "telegram_id", telegramID, "error", err)
		return failure("❌ Failed to load your payment links. Please try again.")
	}

	return &Result{
		OK:   true,
		Text: paylink.FormatSummary(sum),
		Data: map[string]interface{}{
			"totalLinks":    sum.TotalLinks,
			"activeLinks":   sum.ActiveLinks,
			"totalViews":    sum.TotalViews,
			"totalPayments": sum.TotalPayments,
			"revenue":       sum.Revenue.StringFixed(2),
			"conversion":    sum.Conversion,
		},
	}
}

// FindPaymentLinks searches the user's links by title
func (t *Tools) FindPaymentLinks(telegramID int64, name string) *Result {
	links, err := t.links.FindByTitle(telegramID, name)
	if errors.Is(err, paylink.ErrNotRegistered) {
		return failure(noWalletText)
	}
	if err != nil {
		t.log.Error("find payment links", "telegram_id", telegramID, "error", err)
		return failure("❌ Failed to search your payment links. Please try again.")
	}

	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.LinkID
	}
	return &Result{
		OK:   true,
		Text: paylink.FormatMatches(name, links),
		Data: map[string]interface{}{"matches": ids},
	}
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
