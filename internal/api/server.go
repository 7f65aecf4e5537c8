// Package api serves the public HTTP surface: health, metrics, payment link
// pages, payment confirmations and the MCP tool endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obverse/mantle-bot/internal/mcp"
	"github.com/obverse/mantle-bot/internal/storage"
)

// Links reads and settles payment links
type Links interface {
	View(linkID string) (*storage.PaymentLink, error)
	RecordPayment(linkID string, p storage.LinkPayment) (*storage.PaymentLink, error)
}

// Wallets resolves the wallet that receives a link's payments
type Wallets interface {
	GetWalletByUserID(userID int64) (*storage.Wallet, error)
}

// Tools is the MCP tool service
type Tools interface {
	ListTools() []mcp.Tool
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (*mcp.ToolResult, error)
	ProcessNaturalLanguage(ctx context.Context, message string, userID int64) (string, error)
}

// PaymentNotifier tells a link creator about a received payment
type PaymentNotifier interface {
	NotifyPayment(ctx context.Context, link *storage.PaymentLink, p storage.LinkPayment)
}

// Pinger reports database health
type Pinger interface {
	Ping() error
}

// Deps are the services the API serves
type Deps struct {
	Links    Links
	Wallets  Wallets
	Tools    Tools
	Notifier PaymentNotifier
	DB       Pinger
}

// Options configures authentication and rate limits
type Options struct {
	JWTSecret         string
	WebhookSecret     string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server is the HTTP API server
type Server struct {
	deps Deps
	opts Options
	log  *slog.Logger

	server *http.Server
}

// NewServer creates a new API server
func NewServer(deps Deps, opts Options, log *slog.Logger) *Server {
	if opts.RateLimitRequests <= 0 {
		opts.RateLimitRequests = 60
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	return &Server{
		deps: deps,
		opts: opts,
		log:  log,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(requestLogging(s.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"https://*", "http://*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/payment-link/{linkId}", s.handlePaymentLink)
	})

	if s.opts.WebhookSecret != "" {
		r.Post("/webhook/payment", s.handlePaymentWebhook)
	} else {
		s.log.Warn("WEBHOOK_SECRET not set, payment webhook disabled")
	}

	r.Route("/mcp", func(r chi.Router) {
		if s.opts.JWTSecret != "" {
			r.Use(bearerAuth(s.opts.JWTSecret))
		} else {
			s.log.Warn("MCP_JWT_SECRET not set, MCP endpoints are unauthenticated")
		}
		r.Use(rateLimit(s.opts.RateLimitRequests, s.opts.RateLimitWindow))

		r.Get("/tools", s.handleListTools)
		r.Post("/tools/call", s.handleCallTool)
		r.Post("/process", s.handleProcess)
	})

	return r
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info("starting api server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Error("shutdown api server", "error", err)
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
