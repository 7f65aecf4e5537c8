// Package paylink creates payment links and reports on their usage.
package paylink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/metrics"
	"github.com/obverse/mantle-bot/internal/storage"
)

var (
	ErrUnauthorized  = errors.New("payment link belongs to another user")
	ErrNotRegistered = errors.New("user has no wallet")
	ErrInvalid       = errors.New("invalid payment link")
)

const (
	MaxTitleLength = 100
	maxIDAttempts  = 5
	recentPayments = 3
	topLinks       = 5
)

// Store persists payment links and their payments
type Store interface {
	CreatePaymentLink(l *storage.PaymentLink) error
	GetPaymentLink(linkID string) (*storage.PaymentLink, error)
	ListPaymentLinksByCreator(userID int64) ([]storage.PaymentLink, error)
	IncrementLinkViews(linkID string) error
	RecordLinkPayment(linkID string, p storage.LinkPayment) (*storage.PaymentLink, error)
	ListLinkPayments(linkID string) ([]storage.LinkPayment, error)
}

// Directory resolves Telegram users to their records
type Directory interface {
	GetUserByTelegramID(telegramID int64) (*storage.User, error)
	GetWalletByUserID(userID int64) (*storage.Wallet, error)
}

// Draft is a payment link ready to be created
type Draft struct {
	TelegramID int64
	ChatID     int64
	Title      string
	Token      string
	Amount     string
	Details    []string
	// MaxUses caps the number of payments; 0 means one payment, storage.UnlimitedUses means no cap
	MaxUses int
	Source  string
}

// Service manages payment links
type Service struct {
	store     Store
	directory Directory
	baseURL   string
	qrBaseURL string
	log       *slog.Logger
}

// NewService creates a new payment link Service
func NewService(store Store, directory Directory, baseURL, qrBaseURL string, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		qrBaseURL: qrBaseURL,
		log:       log,
	}
}

// LinkURL returns the public payment URL of a link ID
func (s *Service) LinkURL(linkID string) string {
	return s.baseURL + "/pay/" + linkID
}

// TrackingURL returns the public transaction tracking page of a link ID
func (s *Service) TrackingURL(linkID string) string {
	return s.baseURL + "/transactions/" + linkID
}

// QRCodeURL returns a QR image URL encoding the payment URL
func (s *Service) QRCodeURL(linkURL string) string {
	return s.qrBaseURL + "?size=300x300&margin=2&ecc=M&data=" + url.QueryEscape(linkURL)
}

// Create validates a draft and stores it under a fresh link ID
func (s *Service) Create(ctx context.Context, d Draft) (*storage.PaymentLink, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalid, MaxTitleLength)
	}
	token, ok := chain.LookupIn(chain.LinkTokens, d.Token)
	if !ok {
		return nil, fmt.Errorf("%w: token must be one of %s", ErrInvalid, strings.Join(chain.Symbols(chain.LinkTokens), ", "))
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(d.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be a positive number", ErrInvalid)
	}
	if !chain.FitsDecimals(amount, token.Decimals) {
		return nil, fmt.Errorf("%w: %s supports at most %d decimal places", ErrInvalid, token.Symbol, token.Decimals)
	}

	user, err := s.directory.GetUserByTelegramID(d.TelegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	wallet, err := s.directory.GetWalletByUserID(user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	maxUses, linkType := d.MaxUses, storage.LinkTypeMultipleUse
	if maxUses == 0 || maxUses == 1 {
		maxUses, linkType = 1, storage.LinkTypeOneTime
	}
	source := d.Source
	if source == "" {
		source = "telegram"
	}

	link := &storage.PaymentLink{
		CreatorUserID:   user.ID,
		CreatorWalletID: wallet.ID,
		Title:           title,
		Amount:          amount.String(),
		Token:           token.Symbol,
		TokenAddress:    token.ContractAddress(),
		Network:         storage.NetworkMantle,
		Status:          storage.LinkStatusActive,
		Type:            linkType,
		Details:         CleanFields(d.Details),
		MaxUses:         maxUses,
		Source:          source,
		TelegramChatID:  d.ChatID,
	}

	for attempt := 1; ; attempt++ {
		id, err := NewLinkID()
		if err != nil {
			return nil, fmt.Errorf("generate link id: %w", err)
		}
		link.LinkID = id
		link.LinkURL = s.LinkURL(id)
		link.QRCodeURL = s.QRCodeURL(link.LinkURL)

		err = s.store.CreatePaymentLink(link)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrAlreadyExists) || attempt >= maxIDAttempts {
			return nil, fmt.Errorf("create payment link: %w", err)
		}
		s.log.Warn("link id collision, retrying", "link_id", id, "attempt", attempt)
	}

	metrics.PaymentLinksCreated.WithLabelValues(source, link.Token).Inc()
	s.log.Info("payment link created",
		"link_id", link.LinkID,
		"telegram_id", d.TelegramID,
		"token", link.Token,
		"amount", link.Amount,
	)
	return link, nil
}

// Exists reports whether a link with the given ID is stored
func (s *Service) Exists(linkID string) bool {
	if !IsLinkID(linkID) {
		return false
	}
	_, err := s.store.GetPaymentLink(linkID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("look up payment link", "link_id", linkID, "error", err)
	}
	return err == nil
}

// View returns a link by ID and counts the view
func (s *Service) View(linkID string) (*storage.PaymentLink, error) {
	if err := s.store.IncrementLinkViews(linkID); err != nil {
		return nil, err
	}
	return s.store.GetPaymentLink(linkID)
}

// RecordPayment appends a confirmed payment to a link
func (s *Service) RecordPayment(linkID string, p storage.LinkPayment) (*storage.PaymentLink, error) {
	link, err := s.store.RecordLinkPayment(linkID, p)
	if err != nil {
		metrics.LinkPaymentsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}
	metrics.LinkPaymentsTotal.WithLabelValues(link.Token, "recorded").Inc()
	return link, nil
}

// CleanFields trims and lowercases field names, dropping empty and repeated ones
func CleanFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Stats describes the performance of one link
type Stats struct {
	Link         *storage.PaymentLink
	TrackingURL  string
	Views        int
	Transactions int
	// Conversion is payments per view in percent, fixed to 2 decimals
	Conversion string
	Average    string
	Recent     []storage.LinkPayment
}

// Uses renders current/max uses, with ∞ for unlimited links
func (st *Stats) Uses() string {
	if st.Link.Unlimited() {
		return fmt.Sprintf("%d/∞", st.Link.CurrentUses)
	}
	return fmt.Sprintf("%d/%d", st.Link.CurrentUses, st.Link.MaxUses)
}

// Stats returns usage of a link owned by the caller
func (s *Service) Stats(telegramID int64, linkID string) (*Stats, error) {
	user, err := s.directory.GetUserByTelegramID(telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	link, err := s.store.GetPaymentLink(strings.TrimSpace(linkID))
	if err != nil {
		return nil, err
	}
	if link.CreatorUserID != user.ID {
		return nil, ErrUnauthorized
	}

	payments, err := s.store.ListLinkPayments(link.LinkID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	st := &Stats{
		Link:         link,
		TrackingURL:  s.TrackingURL(link.LinkID),
		Views:        link.ViewCount,
		Transactions: len(payments),
		Conversion:   conversion(len(payments), link.ViewCount),
		Average:      "0",
		Recent:       payments,
	}
	if len(st.Recent) > recentPayments {
		st.Recent = st.Recent[:recentPayments]
	}
	if n := len(payments); n > 0 {
		st.Average = revenue(link).Div(decimal.NewFromInt(int64(n))).StringFixed(2)
	}
	return st, nil
}

// LinkSummary is one row of a Summary
type LinkSummary struct {
	Link     storage.PaymentLink
	Payments int
	Revenue  decimal.Decimal
}

// Summary aggregates all links of a user
type Summary struct {
	TotalLinks    int
	ActiveLinks   int
	TotalViews    int
	TotalPayments int
	// Revenue adds up all stablecoin amounts received
	Revenue    decimal.Decimal
	Conversion string
	Top        []LinkSummary
}

// Summary aggregates usage across all links of the caller
func (s *Service) Summary(telegramID int64) (*Summary, error) {
	links, err := s.linksOf(telegramID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{TotalLinks: len(links), Revenue: decimal.Zero}
	rows := make([]LinkSummary, 0, len(links))
	for _, l := range links {
		if l.Status == storage.LinkStatusActive {
			sum.ActiveLinks++
		}
		sum.TotalViews += l.ViewCount
		sum.TotalPayments += l.CurrentUses

		r := revenue(&l)
		sum.Revenue = sum.Revenue.Add(r)
		rows = append(rows, LinkSummary{Link: l, Payments: l.CurrentUses, Revenue: r})
	}
	sum.Conversion = conversion(sum.TotalPayments, sum.TotalViews)

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Revenue.GreaterThan(rows[j].Revenue)
	})
	if len(rows) > topLinks {
		rows = rows[:topLinks]
	}
	sum.Top = rows
	return sum, nil
}

// FindByTitle returns the caller's links whose title contains name, case-insensitively
func (s *Service) FindByTitle(telegramID int64, name string) ([]storage.PaymentLink, error) {
	links, err := s.linksOf(telegramID)
	if err != nil {
		return nil, err
	}

	name = strings.ToLower(strings.TrimSpace(name))
	var out []storage.PaymentLink
	for _, l := range links {
		if strings.Contains(strings.ToLower(l.Title), name) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Service) linksOf(telegramID int64) ([]storage.PaymentLink, error) {
	user, err := s.directory.GetUserByTelegramID(telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	links, err := s.store.ListPaymentLinksByCreator(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list payment links: %w", err)
	}
	return links, nil
}

func revenue(l *storage.PaymentLink) decimal.Decimal {
	d, err := decimal.NewFromString(l.TotalReceived)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func conversion(payments, views int) string {
	if views == 0 {
		return "0.00"
	}
	return decimal.NewFromInt(int64(payments)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(views))).
		StringFixed(2)
}
