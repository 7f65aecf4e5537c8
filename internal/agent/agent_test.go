package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/intent"
	"github.com/obverse/mantle-bot/internal/llm"
	"github.com/obverse/mantle-bot/internal/paylink"
	"github.com/obverse/mantle-bot/internal/storage"
	"github.com/obverse/mantle-bot/internal/tools"
	"github.com/obverse/mantle-bot/internal/transfer"
)

const userID = int64(42)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCreator struct {
	mu     sync.Mutex
	drafts []paylink.Draft
}

func (f *fakeCreator) Create(ctx context.Context, d paylink.Draft) (*storage.PaymentLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	return &storage.PaymentLink{
		LinkID:    "AbCd1234",
		Title:     d.Title,
		Token:     d.Token,
		Amount:    d.Amount,
		LinkURL:   "https://pay.example.com/pay/AbCd1234",
		QRCodeURL: "https://qr.example.com/?data=x",
	}, nil
}

type fakeWallets struct{}

func (fakeWallets) GetWalletByTelegramID(id int64) (*storage.Wallet, error) {
	if id != userID {
		return nil, storage.ErrNotFound
	}
	return &storage.Wallet{ID: 1, Address: "0x00000000000000000000000000000000000000aa"}, nil
}

type fakeToolbox struct {
	mu       sync.Mutex
	calls    []string
	prepared []transfer.Request
	created  []tools.LinkParams
	panicOn  string
	links    map[string]bool
}

func (f *fakeToolbox) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == f.panicOn {
		panic("boom")
	}
	f.calls = append(f.calls, name)
}

func (f *fakeToolbox) CheckBalance(ctx context.Context, telegramID int64, tokens []string) *tools.Result {
	f.record("balance:" + strings.Join(tokens, ","))
	return &tools.Result{OK: true, Text: "💰 USDC: 500.123456"}
}

func (f *fakeToolbox) CreatePaymentLink(ctx context.Context, telegramID, chatID int64, p tools.LinkParams, source string) *tools.Result {
	f.record("create")
	f.created = append(f.created, p)
	return &tools.Result{OK: true, Text: "✅ created " + p.Name, PhotoURL: "https://qr.example.com"}
}

func (f *fakeToolbox) PrepareTransfer(ctx context.Context, req transfer.Request) *tools.Result {
	f.record("prepare")
	f.prepared = append(f.prepared, req)
	return &tools.Result{OK: true, Text: "confirm?"}
}

func (f *fakeToolbox) GetPaymentLinkStats(telegramID int64, linkID string) *tools.Result {
	f.record("stats:" + linkID)
	return &tools.Result{OK: true, Text: "📊 " + linkID}
}

func (f *fakeToolbox) GetAllPaymentLinksStats(telegramID int64) *tools.Result {
	f.record("summary")
	return &tools.Result{OK: true, Text: "📊 overview"}
}

func (f *fakeToolbox) HasPaymentLink(linkID string) bool {
	return f.links[linkID]
}

func (f *fakeToolbox) Call(ctx context.Context, name, arguments string, telegramID, chatID int64) (*tools.Result, error) {
	f.record("call:" + name)
	if name == "missing" {
		return nil, errors.New("unknown tool")
	}
	return &tools.Result{OK: true, Text: "ok", Data: map[string]string{"USDC": "1.000000"}}, nil
}

func newRules(tb *fakeToolbox) (*Rules, *fakeCreator) {
	creator := &fakeCreator{}
	engine := flow.NewEngine(flow.NewMemoryStore(15*time.Minute, discard()), creator, fakeWallets{}, discard())
	return NewRules(engine, tb, NewMemory(DefaultMemorySize), discard()), creator
}

func say(a Agent, text string) *Response {
	return a.Respond(context.Background(), Request{Text: text, UserID: userID, ChatID: 7})
}

func TestRulesBalance(t *testing.T) {
	tb := &fakeToolbox{}
	a, _ := newRules(tb)

	resp := say(a, "What's my balance?")
	assert.Equal(t, intent.Balance, resp.Intent)
	assert.Contains(t, resp.Text, "USDC: 500.123456")
	assert.Equal(t, []string{"balance:"}, tb.calls)
}

func TestRulesSendPreparesTransfer(t *testing.T) {
	tb := &fakeToolbox{}
	a, _ := newRules(tb)

	resp := say(a, "send 10 USDC to 0x0000000000000000000000000000000000000001")
	assert.Equal(t, intent.Send, resp.Intent)
	require.Len(t, tb.prepared, 1)
	assert.Equal(t, "10", tb.prepared[0].Amount)
	assert.Equal(t, "USDC", tb.prepared[0].Token)

	resp = say(a, "I want to send some money")
	assert.Equal(t, intent.Send, resp.Intent)
	assert.Contains(t, resp.Text, "/send")
	assert.Len(t, tb.prepared, 1)
}

func TestRulesFlowBypassesClassification(t *testing.T) {
	tb := &fakeToolbox{}
	a, creator := newRules(tb)

	resp := say(a, "create payment link")
	assert.Equal(t, flow.StepName, resp.Step)

	// "balance" would classify as a balance check outside the flow
	resp = say(a, "balance top up")
	assert.Equal(t, flow.StepToken, resp.Step)
	assert.Empty(t, tb.calls)

	resp = say(a, "USD")
	assert.Equal(t, flow.StepToken, resp.Step)

	say(a, "usdc")
	say(a, "25")
	say(a, "done")
	resp = say(a, "yes")
	assert.Empty(t, resp.Step)
	assert.Equal(t, "https://qr.example.com/?data=x", resp.PhotoURL)

	require.Len(t, creator.drafts, 1)
	assert.Equal(t, "balance top up", creator.drafts[0].Title)
	assert.Equal(t, "USDC", creator.drafts[0].Token)
	assert.Empty(t, creator.drafts[0].Details)
}

func TestRulesStats(t *testing.T) {
	tb := &fakeToolbox{}
	a, _ := newRules(tb)

	say(a, "show stats for payment link Xy7kP2qR")
	say(a, "show my payment link statistics")
	assert.Equal(t, []string{"stats:Xy7kP2qR", "summary"}, tb.calls)
}

func TestStatsForLowercaseLinkID(t *testing.T) {
	tb := &fakeToolbox{links: map[string]bool{"abcdefgh": true, "Xyzabcde": true}}
	a, _ := newRules(tb)

	say(a, "payment link stats abcdefgh")
	say(a, "show stats for payment link Xyzabcde")
	assert.Equal(t, []string{"stats:abcdefgh", "stats:Xyzabcde"}, tb.calls)

	tb = &fakeToolbox{links: map[string]bool{"abcdefgh": true}}
	say(newLLMAgent(&scriptedLLM{}, tb), "info for abcdefgh please")
	assert.Equal(t, []string{"stats:abcdefgh"}, tb.calls)
}

func TestRulesUnknownAndHelp(t *testing.T) {
	a, _ := newRules(&fakeToolbox{})

	resp := say(a, "qwerty")
	assert.Equal(t, intent.Unknown, resp.Intent)
	assert.Contains(t, resp.Text, "qwerty")

	resp = say(a, "help")
	assert.Equal(t, intent.Help, resp.Intent)
	assert.Contains(t, resp.Text, "/balance")
}

func TestRulesRecoversFromPanic(t *testing.T) {
	a, _ := newRules(&fakeToolbox{panicOn: "balance:"})

	resp := say(a, "check my balance")
	assert.True(t, strings.HasPrefix(resp.Text, "❌ Something went wrong while checking your balance."))
	assert.Contains(t, resp.Text, "/balance")
}

func TestMemoryKeepsLastEntries(t *testing.T) {
	m := NewMemory(3)
	for _, s := range []string{"a", "b", "c", "d"} {
		m.Add(userID, roleUser, s)
	}
	m.Add(userID, roleAssistant, "e")

	h := m.History(userID)
	require.Len(t, h, 3)
	assert.Equal(t, "c", h[0].Content)
	assert.Equal(t, "e", m.LastAssistant(userID))
	assert.Empty(t, m.History(7))
}

func TestMemorySweepDropsIdleUsers(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(3)
	m.now = func() time.Time { return now }

	m.Add(userID, roleUser, "old")
	now = now.Add(20 * time.Minute)
	m.Add(7, roleUser, "recent")
	now = now.Add(20 * time.Minute)

	assert.Equal(t, 1, m.Sweep(30*time.Minute))
	assert.Empty(t, m.History(userID))
	assert.Len(t, m.History(7), 1)

	m.mu.RLock()
	assert.Len(t, m.entries, 1)
	m.mu.RUnlock()
}

func TestProcessMessage(t *testing.T) {
	a, _ := newRules(&fakeToolbox{})
	assert.Equal(t, greetingText, ProcessMessage(context.Background(), a, "hello", userID, 7))
}

type scriptedLLM struct {
	responses []*llm.CompletionResponse
	requests  []*llm.CompletionRequest
	err       error
}

func (s *scriptedLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &llm.CompletionResponse{Content: "done"}, nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func (s *scriptedLLM) Name() string     { return "scripted" }
func (s *scriptedLLM) Models() []string { return nil }

func newLLMAgent(client llm.Client, tb *fakeToolbox) *LLM {
	engine := flow.NewEngine(flow.NewMemoryStore(15*time.Minute, discard()), &fakeCreator{}, fakeWallets{}, discard())
	return NewLLM(client, "test-model", engine, tb, NewMemory(DefaultMemorySize), discard())
}

func TestLLMShortcuts(t *testing.T) {
	client := &scriptedLLM{}
	tb := &fakeToolbox{}
	a := newLLMAgent(client, tb)

	say(a, "check my wallet")
	say(a, "track my payments")
	say(a, "info for Xy7kP2qR please")

	resp := say(a, "Create payment link for Coffee $5 USDC collect email, phone")
	assert.Equal(t, intent.PaymentLink, resp.Intent)
	require.Len(t, tb.created, 1)
	assert.Equal(t, "Coffee", tb.created[0].Name)
	assert.Equal(t, "5", tb.created[0].Amount)
	assert.Equal(t, "USDC", tb.created[0].Token)
	assert.Equal(t, []string{"email", " phone"}, tb.created[0].Details)

	resp = say(a, "I need a payment link")
	assert.Contains(t, resp.Text, "To create a payment link")
	assert.Equal(t, flow.DataCreate, resp.Buttons[0][0].Data)

	assert.Equal(t, []string{"balance:", "summary", "stats:Xy7kP2qR", "create"}, tb.calls)
	assert.Empty(t, client.requests)
}

func TestLLMToolRounds(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: tools.ToolAllLinksStats, Arguments: "{}"}}},
		{Content: "You have 2 links."},
	}}
	tb := &fakeToolbox{}
	a := newLLMAgent(client, tb)

	resp := say(a, "how am I doing this month?")
	assert.Equal(t, "You have 2 links.", resp.Text)
	assert.Equal(t, intent.Stats, resp.Intent)
	require.Len(t, client.requests, 2)

	second := client.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Contains(t, last.Content, `"success":true`)
	assert.Contains(t, client.requests[0].System, "NEVER generate fake data")
}

func TestLLMStopsOfferingToolsAfterMaxRounds(t *testing.T) {
	call := &llm.CompletionResponse{ToolCalls: []llm.ToolCall{{ID: "c", Name: "missing"}}}
	client := &scriptedLLM{responses: []*llm.CompletionResponse{call, call, call, {Content: "final"}}}
	a := newLLMAgent(client, &fakeToolbox{})

	resp := say(a, "tell me something")
	assert.Equal(t, "final", resp.Text)
	require.Len(t, client.requests, maxToolRounds+1)
	assert.Nil(t, client.requests[maxToolRounds].Tools)
	assert.NotNil(t, client.requests[0].Tools)
}

func TestLLMSendsRecentHistoryOnly(t *testing.T) {
	client := &scriptedLLM{}
	a := newLLMAgent(client, &fakeToolbox{})

	for i := 0; i < 4; i++ {
		say(a, "tell me a fact")
	}
	last := client.requests[len(client.requests)-1]
	assert.Len(t, last.Messages, historyForLLM+1)
}

func TestLLMErrorMapsToIntent(t *testing.T) {
	client := &scriptedLLM{err: errors.New("rate limited")}
	a := newLLMAgent(client, &fakeToolbox{})

	resp := say(a, "transfer tokens please")
	assert.Contains(t, resp.Text, "processing your transfer")
	assert.NotContains(t, resp.Text, "rate limited")
}
