package flow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/paylink"
	"github.com/obverse/mantle-bot/internal/storage"
)

// Callback data carried by flow buttons. Handle accepts these as input too.
const (
	DataTokenPrefix = "pay_token:"
	DataDone        = "flow_done"
	DataYes         = "flow_yes"
	DataNo          = "flow_no"
	DataCancel      = "flow_cancel"
	DataCreate      = "create_payment"
	DataCopyPrefix  = "copy_link:"
	DataViewPrefix  = "view_payment:"
)

// Button is a transport-neutral inline button; exactly one of Data and URL is set
type Button struct {
	Text string `json:"text"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Reply is what the flow answers to one input
type Reply struct {
	Text string
	// Step is the step now awaiting input, empty once the flow ended
	Step        Step
	Interactive bool
	// Invalid is set when the input was rejected and the step is asked again
	Invalid bool
	Buttons [][]Button
	// Link is set when the input created a payment link
	Link *storage.PaymentLink
}

// Creator persists the finished payment link
type Creator interface {
	Create(ctx context.Context, d paylink.Draft) (*storage.PaymentLink, error)
}

// WalletLookup tells whether a user can own payment links
type WalletLookup interface {
	GetWalletByTelegramID(telegramID int64) (*storage.Wallet, error)
}

// Engine runs the payment link creation flow for every transport
type Engine struct {
	store   Store
	creator Creator
	wallets WalletLookup
	log     *slog.Logger

	// per-user locks serialize concurrent messages of the same user;
	// an entry lives only while someone holds or waits for it
	locksMu sync.Mutex
	locks   map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine creates a new Engine
func NewEngine(store Store, creator Creator, wallets WalletLookup, log *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		creator: creator,
		wallets: wallets,
		log:     log,
		locks:   make(map[int64]*userLock),
	}
}

func (e *Engine) lock(userID int64) func() {
	e.locksMu.Lock()
	l, ok := e.locks[userID]
	if !ok {
		l = &userLock{}
		e.locks[userID] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, userID)
		}
		e.locksMu.Unlock()
	}
}

// Active reports whether the user is in the middle of a flow
func (e *Engine) Active(ctx context.Context, userID int64) bool {
	_, err := e.store.Get(ctx, userID)
	return err == nil
}

// Current returns the user's session
func (e *Engine) Current(ctx context.Context, userID int64) (*Session, error) {
	return e.store.Get(ctx, userID)
}

// Start begins a new flow, replacing any unfinished one
func (e *Engine) Start(ctx context.Context, userID, chatID int64, source string) (*Reply, error) {
	defer e.lock(userID)()

	if _, err := e.wallets.GetWalletByTelegramID(userID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get wallet: %w", err)
		}
		return &Reply{Text: noWalletText}, nil
	}

	s := &Session{
		UserID:    userID,
		ChatID:    chatID,
		Source:    source,
		Step:      StepName,
		Details:   []string{},
		UpdatedAt: time.Now(),
	}
	if err := e.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	e.log.Info("payment link flow started", "user_id", userID, "source", source)
	return &Reply{
		Text: "🔗 <b>Create Payment Link</b>\n\n" +
			"Let's create a payment link for your business!\n\n" +
			"<b>Step 1 of 4:</b> What would you like to name this payment?\n\n" +
			"<i>Example: \"Coffee Shop Order\", \"Service Payment\", \"Product Purchase\"</i>\n\n" +
			"Please provide the payment name:",
		Step:        StepName,
		Interactive: true,
		Buttons:     [][]Button{{{Text: "❌ Cancel", Data: DataCancel}}},
	}, nil
}

// Cancel discards the user's flow and reports whether one existed
func (e *Engine) Cancel(ctx context.Context, userID int64) (bool, error) {
	defer e.lock(userID)()

	if _, err := e.store.Get(ctx, userID); errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err := e.store.Delete(ctx, userID); err != nil {
		return false, err
	}
	e.log.Info("payment link flow cancelled", "user_id", userID)
	return true, nil
}

// Handle feeds one input to the user's flow.
// It returns ErrNoSession when the user has no flow in progress.
// Any other failure discards the session and asks the user to start over.
func (e *Engine) Handle(ctx context.Context, userID int64, input string) (*Reply, error) {
	defer e.lock(userID)()

	s, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(fromButton(input))
	if isCancel(text) {
		if err := e.store.Delete(ctx, userID); err != nil {
			e.log.Error("delete session", "user_id", userID, "error", err)
		}
		return &Reply{Text: "❌ Payment link creation cancelled."}, nil
	}

	var reply *Reply
	switch s.Step {
	case StepName:
		reply = e.handleName(s, text)
	case StepToken:
		reply = e.handleToken(s, text)
	case StepAmount:
		reply = e.handleAmount(s, text)
	case StepDetails:
		reply = e.handleDetails(s, text)
	case StepConfirm:
		return e.handleConfirm(ctx, s, text)
	default:
		err = fmt.Errorf("unknown step %q", s.Step)
	}

	if err == nil {
		s.UpdatedAt = time.Now()
		err = e.store.Put(ctx, s)
	}
	if err != nil {
		return e.fail(ctx, userID, err), nil
	}
	return reply, nil
}

func (e *Engine) fail(ctx context.Context, userID int64, err error) *Reply {
	e.log.Error("payment link flow", "user_id", userID, "error", err)
	if derr := e.store.Delete(ctx, userID); derr != nil {
		e.log.Error("delete session", "user_id", userID, "error", derr)
	}
	return &Reply{Text: "❌ An error occurred during payment link creation. Please start over."}
}

func (e *Engine) handleName(s *Session, text string) *Reply {
	if text == "" {
		return e.retry(s, "❌ Please provide a name for this payment.")
	}
	if utf8.RuneCountInString(text) > paylink.MaxTitleLength {
		return e.retry(s, fmt.Sprintf("❌ Payment name is too long. Please keep it under %d characters.", paylink.MaxTitleLength))
	}

	s.Name = text
	s.Step = StepToken
	return &Reply{
		Text: fmt.Sprintf("✅ Payment name set: <b>%s</b>\n\n", html.EscapeString(text)) +
			"<b>Step 2 of 4:</b> Which token would you like to accept?\n\n" +
			"Please choose one of the following:",
		Step:        StepToken,
		Interactive: true,
		Buttons:     tokenButtons(),
	}
}

func (e *Engine) handleToken(s *Session, text string) *Reply {
	token, ok := chain.LookupIn(chain.LinkTokens, text)
	if !ok {
		r := e.retry(s, "❌ Invalid token. Please choose USDC, USDT, or DAI.")
		r.Buttons = tokenButtons()
		return r
	}

	s.Token = token.Symbol
	s.Step = StepAmount
	return &Reply{
		Text: fmt.Sprintf("✅ Token selected: %s <b>%s</b>\n\n", paylink.TokenEmoji(token.Symbol), token.Symbol) +
			"<b>Step 3 of 4:</b> What's the amount you want to request?\n\n" +
			"<i>Example: 10.50, 100, 0.5</i>\n\n" +
			fmt.Sprintf("Please enter the amount in %s:", token.Symbol),
		Step:        StepAmount,
		Interactive: true,
	}
}

func (e *Engine) handleAmount(s *Session, text string) *Reply {
	amount, ok := ParseAmount(text)
	if !ok {
		return e.retry(s, "❌ Invalid amount. Please enter a valid positive number.")
	}
	if token, known := chain.LookupIn(chain.LinkTokens, s.Token); known && !chain.FitsDecimals(amount, token.Decimals) {
		return e.retry(s, fmt.Sprintf("❌ Too many decimal places. %s supports at most %d.", token.Symbol, token.Decimals))
	}

	s.Amount = amount.String()
	s.Details = []string{}
	s.Step = StepDetails
	return &Reply{
		Text: fmt.Sprintf("✅ Amount set: <b>%s %s</b>\n\n", s.Amount, s.Token) +
			"<b>Step 4 of 4:</b> What customer details would you like to collect?\n\n" +
			"<i>Examples: name, email, phone, address, notes</i>\n\n" +
			"You can type:\n" +
			"• Single fields: \"name\" then \"email\" then \"phone\"\n" +
			"• Multiple fields at once: \"name, email, phone, age\"\n\n" +
			"Type <b>\"done\"</b> when finished:",
		Step:        StepDetails,
		Interactive: true,
		Buttons:     [][]Button{{{Text: "✅ Done", Data: DataDone}}},
	}
}

func (e *Engine) handleDetails(s *Session, text string) *Reply {
	lower := strings.ToLower(text)
	if lower == "done" || lower == "finish" || lower == "complete" {
		s.Step = StepConfirm
		return confirmation(s)
	}

	added := paylink.CleanFields(strings.Split(lower, ","))
	if len(added) == 0 {
		r := e.retry(s, "❌ Please type a field name, or <b>\"done\"</b> to continue.")
		r.Buttons = [][]Button{{{Text: "✅ Done", Data: DataDone}}}
		return r
	}
	s.Details = paylink.CleanFields(append(s.Details, added...))

	noun := "field"
	if len(added) > 1 {
		noun = "fields"
	}
	return &Reply{
		Text: fmt.Sprintf("✅ Added %s: <b>%s</b>\n\n", noun, html.EscapeString(strings.Join(added, ", "))) +
			"<b>Current fields:</b>\n" + fieldList(s.Details, "") + "\n\n" +
			"Type more fields (comma-separated or one by one) or <b>\"done\"</b> to continue:",
		Step:        StepDetails,
		Interactive: true,
		Buttons:     [][]Button{{{Text: "✅ Done", Data: DataDone}}},
	}
}

func (e *Engine) handleConfirm(ctx context.Context, s *Session, text string) (*Reply, error) {
	switch strings.ToLower(text) {
	case "no":
		if err := e.store.Delete(ctx, s.UserID); err != nil {
			e.log.Error("delete session", "user_id", s.UserID, "error", err)
		}
		return &Reply{Text: "❌ Payment link creation cancelled."}, nil
	case "yes", "create", "confirm":
	default:
		r := e.retry(s, "Please type <b>\"yes\"</b> to create the link or <b>\"no\"</b> to cancel.")
		r.Buttons = confirmButtons()
		return r, nil
	}

	link, err := e.creator.Create(ctx, paylink.Draft{
		TelegramID: s.UserID,
		ChatID:     s.ChatID,
		Title:      s.Name,
		Token:      s.Token,
		Amount:     s.Amount,
		Details:    s.Details,
		Source:     s.Source,
	})
	if errors.Is(err, paylink.ErrNotRegistered) {
		if derr := e.store.Delete(ctx, s.UserID); derr != nil {
			e.log.Error("delete session", "user_id", s.UserID, "error", derr)
		}
		return &Reply{Text: noWalletText}, nil
	}
	if err != nil {
		return e.fail(ctx, s.UserID, err), nil
	}

	if err := e.store.Delete(ctx, s.UserID); err != nil {
		e.log.Error("delete session", "user_id", s.UserID, "error", err)
	}

	return &Reply{
		Text: "🎉 <b>Payment Link Created Successfully!</b>\n\n" +
			fmt.Sprintf("<b>Name:</b> %s\n", html.EscapeString(link.Title)) +
			fmt.Sprintf("<b>Amount:</b> %s %s %s\n", link.Amount, paylink.TokenEmoji(link.Token), link.Token) +
			"<b>Network:</b> Mantle\n\n" +
			"<b>Customer Details to Collect:</b>\n" + fieldList(link.Details, "  ") + "\n\n" +
			fmt.Sprintf("<b>Payment Link:</b> %s\n", link.LinkURL) +
			fmt.Sprintf("<b>Link ID:</b> <code>%s</code>\n\n", link.LinkID) +
			"Share this link with your customers to receive payments!",
		Link:    link,
		Buttons: LinkButtons(link),
	}, nil
}

func (e *Engine) retry(s *Session, text string) *Reply {
	return &Reply{Text: text, Step: s.Step, Interactive: true, Invalid: true}
}

func confirmation(s *Session) *Reply {
	return &Reply{
		Text: "🔗 <b>Payment Link Summary</b>\n\n" +
			fmt.Sprintf("<b>Name:</b> %s\n", html.EscapeString(s.Name)) +
			fmt.Sprintf("<b>Token:</b> %s %s\n", paylink.TokenEmoji(s.Token), s.Token) +
			fmt.Sprintf("<b>Amount:</b> %s %s\n\n", s.Amount, s.Token) +
			"<b>Customer Details to Collect:</b>\n" + fieldList(s.Details, "  ") + "\n\n" +
			"Is this correct?",
		Step:        StepConfirm,
		Interactive: true,
		Buttons:     confirmButtons(),
	}
}

// LinkButtons returns the actions offered under a created link
func LinkButtons(l *storage.PaymentLink) [][]Button {
	return [][]Button{
		{
			{Text: "🌐 Open in Browser", URL: l.LinkURL},
			{Text: "📋 Copy Link", Data: DataCopyPrefix + l.LinkID},
		},
		{
			{Text: "📊 View Details", Data: DataViewPrefix + l.LinkID},
			{Text: "🔗 Create Another", Data: DataCreate},
		},
	}
}

func tokenButtons() [][]Button {
	return [][]Button{
		{
			{Text: "🔵 USDC", Data: DataTokenPrefix + "USDC"},
			{Text: "🟢 USDT", Data: DataTokenPrefix + "USDT"},
		},
		{{Text: "🟡 DAI", Data: DataTokenPrefix + "DAI"}},
	}
}

func confirmButtons() [][]Button {
	return [][]Button{{
		{Text: "✅ Create Link", Data: DataYes},
		{Text: "❌ Cancel", Data: DataNo},
	}}
}

func fieldList(fields []string, indent string) string {
	if len(fields) == 0 {
		return indent + "(No details to collect)"
	}
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = fmt.Sprintf("%s%d. %s", indent, i+1, html.EscapeString(f))
	}
	return strings.Join(lines, "\n")
}

// ParseAmount parses a positive decimal amount, allowing a leading "$"
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

func fromButton(input string) string {
	switch {
	case strings.HasPrefix(input, DataTokenPrefix):
		return strings.TrimPrefix(input, DataTokenPrefix)
	case input == DataDone:
		return "done"
	case input == DataYes:
		return "yes"
	case input == DataNo:
		return "no"
	case input == DataCancel:
		return "cancel"
	}
	return input
}

func isCancel(text string) bool {
	switch strings.ToLower(text) {
	case "cancel", "/cancel":
		return true
	}
	return false
}

const noWalletText = "❌ No wallet found. Please use /start to create a wallet first."
