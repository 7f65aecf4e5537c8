package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obverse/mantle-bot/internal/agent"
	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/paylink"
	"github.com/obverse/mantle-bot/internal/storage"
	"github.com/obverse/mantle-bot/internal/tools"
	"github.com/obverse/mantle-bot/internal/transfer"
)

type fakeCreator struct {
	drafts []paylink.Draft
}

func (f *fakeCreator) Create(ctx context.Context, d paylink.Draft) (*storage.PaymentLink, error) {
	f.drafts = append(f.drafts, d)
	return &storage.PaymentLink{
		LinkID:    "Qw3rTy12",
		Title:     d.Title,
		Token:     d.Token,
		Amount:    d.Amount,
		LinkURL:   "https://pay.example.com/pay/Qw3rTy12",
		QRCodeURL: "https://qr.example.com/?data=Qw3rTy12",
	}, nil
}

type fakeWallets struct{}

func (fakeWallets) GetWalletByTelegramID(id int64) (*storage.Wallet, error) {
	return &storage.Wallet{ID: 1, Address: "0x00000000000000000000000000000000000000aa"}, nil
}

type fakeToolbox struct {
	statsFor []string
}

func (f *fakeToolbox) CheckBalance(ctx context.Context, telegramID int64, tokens []string) *tools.Result {
	return &tools.Result{OK: true, Text: "💰 USDC: 1.000000"}
}

func (f *fakeToolbox) CreatePaymentLink(ctx context.Context, telegramID, chatID int64, p tools.LinkParams, source string) *tools.Result {
	return &tools.Result{OK: true}
}

func (f *fakeToolbox) PrepareTransfer(ctx context.Context, req transfer.Request) *tools.Result {
	return &tools.Result{OK: true}
}

func (f *fakeToolbox) GetPaymentLinkStats(telegramID int64, linkID string) *tools.Result {
	f.statsFor = append(f.statsFor, linkID)
	return &tools.Result{OK: true, Text: "📊 " + linkID}
}

func (f *fakeToolbox) GetAllPaymentLinksStats(telegramID int64) *tools.Result {
	f.statsFor = append(f.statsFor, "*")
	return &tools.Result{OK: true, Text: "📊 overview"}
}

func (f *fakeToolbox) HasPaymentLink(linkID string) bool {
	return false
}

func (f *fakeToolbox) Call(ctx context.Context, name, arguments string, telegramID, chatID int64) (*tools.Result, error) {
	return &tools.Result{OK: true}, nil
}

func newService() (*Service, *fakeCreator, *fakeToolbox) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	creator := &fakeCreator{}
	tb := &fakeToolbox{}
	engine := flow.NewEngine(flow.NewMemoryStore(15*time.Minute, log), creator, fakeWallets{}, log)
	rules := agent.NewRules(engine, tb, agent.NewMemory(agent.DefaultMemorySize), log)
	return NewService(engine, tb, rules, log), creator, tb
}

func call(t *testing.T, s *Service, name string, args string) *ToolResult {
	t.Helper()
	res, err := s.CallTool(context.Background(), name, json.RawMessage(args))
	require.NoError(t, err)
	return res
}

func TestStepByStepCreation(t *testing.T) {
	s, creator, _ := newService()

	res := call(t, s, ToolCreatePaymentLink, `{"userId":"42"}`)
	assert.True(t, res.IsInteractive)
	assert.Equal(t, "name", res.NextStep)
	assert.Equal(t, "42", res.SessionID)

	res = call(t, s, ToolContinuePaymentCreate, `{"userId":42,"input":"Workshop"}`)
	assert.Equal(t, "token", res.NextStep)
	require.NotEmpty(t, res.Buttons)

	res = call(t, s, ToolContinuePaymentCreate, `{"userId":"42","input":"pay_token:DAI"}`)
	assert.Equal(t, "amount", res.NextStep)

	res = call(t, s, ToolContinuePaymentCreate, `{"userId":"42","input":"abc"}`)
	assert.Equal(t, "amount", res.NextStep)

	call(t, s, ToolContinuePaymentCreate, `{"userId":"42","input":"$12.50"}`)
	call(t, s, ToolContinuePaymentCreate, `{"userId":"42","input":"email, name"}`)
	res = call(t, s, ToolContinuePaymentCreate, `{"userId":"42","input":"done"}`)
	assert.Equal(t, "confirm", res.NextStep)

	res = call(t, s, ToolContinuePaymentCreate, `{"userId":"42","input":"yes"}`)
	assert.False(t, res.IsInteractive)
	require.Len(t, res.Content, 2)
	assert.Equal(t, "image", res.Content[1].Type)

	require.Len(t, creator.drafts, 1)
	assert.Equal(t, "DAI", creator.drafts[0].Token)
	assert.Equal(t, "12.5", creator.drafts[0].Amount)
	assert.Equal(t, []string{"email", "name"}, creator.drafts[0].Details)
}

func TestContinueWithoutSession(t *testing.T) {
	s, _, _ := newService()
	res := call(t, s, ToolContinuePaymentCreate, `{"userId":"42","input":"hi"}`)
	assert.Contains(t, res.Text(), "No active payment creation session")
}

func TestCancel(t *testing.T) {
	s, creator, _ := newService()

	res := call(t, s, ToolCancelPaymentCreation, `{"userId":"42"}`)
	assert.Contains(t, res.Text(), "No active payment creation session to cancel")

	call(t, s, ToolCreatePaymentLink, `{"userId":"42"}`)
	res = call(t, s, ToolCancelPaymentCreation, `{"userId":"42"}`)
	assert.Contains(t, res.Text(), "cancelled")

	res = call(t, s, ToolContinuePaymentCreate, `{"userId":"42","input":"Coffee"}`)
	assert.Contains(t, res.Text(), "No active payment creation session")
	assert.Empty(t, creator.drafts)
}

func TestStatsTool(t *testing.T) {
	s, _, tb := newService()
	call(t, s, ToolGetPaymentLinkStats, `{"userId":"42","linkId":"Qw3rTy12"}`)
	call(t, s, ToolGetPaymentLinkStats, `{"userId":"42"}`)
	assert.Equal(t, []string{"Qw3rTy12", "*"}, tb.statsFor)
}

func TestCallToolErrors(t *testing.T) {
	s, _, _ := newService()

	res, err := s.CallTool(context.Background(), "transfer_all", json.RawMessage(`{"userId":"42"}`))
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, "Unknown tool: transfer_all", res.Text())

	_, err = s.CallTool(context.Background(), ToolGetWalletBalance, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrBadArguments)

	_, err = s.CallTool(context.Background(), ToolGetWalletBalance, json.RawMessage(`{"userId":"abc"}`))
	assert.ErrorIs(t, err, ErrBadArguments)
}

func TestProcessNaturalLanguage(t *testing.T) {
	s, _, _ := newService()
	ctx := context.Background()

	text, err := s.ProcessNaturalLanguage(ctx, "show my balance", 42)
	require.NoError(t, err)
	assert.Contains(t, text, "USDC")

	text, err = s.ProcessNaturalLanguage(ctx, "create payment link", 42)
	require.NoError(t, err)
	assert.Contains(t, text, "Step 1 of 4")

	text, err = s.ProcessNaturalLanguage(ctx, "exit", 42)
	require.NoError(t, err)
	assert.Contains(t, text, "cancelled")

	assert.Len(t, s.ListTools(), 5)
}
