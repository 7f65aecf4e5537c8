package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/storage"
)

const (
	walletAddr = "0x00000000000000000000000000000000000000aa"
	payerAddr  = "0x52908400098527886e0f7030069857d2e4169ee7"
)

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	messages []sent
	err      error
}

func (f *fakeSender) SendNotification(ctx context.Context, chatID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, sent{chatID, text})
	return nil
}

type explorerLinks struct{}

func (explorerLinks) TxURL(hash string) string { return "https://explorer.example.com/tx/" + hash }

type fakeExplorer struct {
	transfers map[string][]chain.TokenTransfer
	err       error
}

func (f *fakeExplorer) TokenTransfers(ctx context.Context, address string, limit int) ([]chain.TokenTransfer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transfers[strings.ToLower(address)], nil
}

func newStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func usdcTransfer(hash, from, to, value string) chain.TokenTransfer {
	return chain.TokenTransfer{
		Hash:            hash,
		From:            from,
		To:              to,
		Value:           value,
		ContractAddress: strings.ToLower(chain.USDC.Address.Hex()),
		TokenSymbol:     "USDC",
		TokenDecimal:    "6",
		LogIndex:        "0",
		TimeStamp:       "1700000000",
	}
}

func TestNotifyPayment(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, newStore(t), explorerLinks{}, discard())

	link := &storage.PaymentLink{
		LinkID:         "Qw3rTy12",
		Title:          "Workshop <VIP>",
		Token:          "USDC",
		MaxUses:        2,
		CurrentUses:    2,
		TotalReceived:  "50",
		Status:         storage.LinkStatusCompleted,
		TelegramChatID: 555,
	}
	n.NotifyPayment(context.Background(), link, storage.LinkPayment{
		PayerAddress:    payerAddr,
		Amount:          "25",
		TransactionHash: "0xabc",
	})

	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, int64(555), msg.chatID)
	assert.Contains(t, msg.text, "Workshop &lt;VIP&gt;")
	assert.Contains(t, msg.text, "25 🔵 USDC")
	assert.Contains(t, msg.text, "2/2")
	assert.Contains(t, msg.text, "reached its payment limit")
	assert.Contains(t, msg.text, "https://explorer.example.com/tx/0xabc")
}

func TestNotifyPaymentFallsBackToCreatorChat(t *testing.T) {
	store := newStore(t)
	user, err := store.UpsertUser(777, "Ada", "", "ada")
	require.NoError(t, err)

	sender := &fakeSender{}
	n := New(sender, store, explorerLinks{}, discard())
	link := &storage.PaymentLink{LinkID: "Qw3rTy12", CreatorUserID: user.ID, Token: "DAI", MaxUses: storage.UnlimitedUses}

	n.NotifyPayment(context.Background(), link, storage.LinkPayment{PayerAddress: payerAddr, Amount: "1"})
	require.Len(t, sender.messages, 1)
	assert.Equal(t, int64(777), sender.messages[0].chatID)

	// delivery failures are swallowed
	sender.err = errors.New("blocked by user")
	n.NotifyPayment(context.Background(), link, storage.LinkPayment{PayerAddress: payerAddr, Amount: "1"})
	assert.Len(t, sender.messages, 1)
}

func TestDepositWatcher(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	user, err := store.UpsertUser(777, "Ada", "", "ada")
	require.NoError(t, err)
	wallet, err := store.CreateWallet(user.ID, "prov-1", walletAddr, storage.NetworkMantle)
	require.NoError(t, err)

	old := usdcTransfer("0xold", payerAddr, walletAddr, "1000000")
	explorer := &fakeExplorer{transfers: map[string][]chain.TokenTransfer{
		walletAddr: {old},
	}}
	sender := &fakeSender{}
	w := NewDepositWatcher(store, explorer, New(sender, store, explorerLinks{}, discard()), discard())

	w.Seed(ctx)
	w.Poll(ctx)
	assert.Empty(t, sender.messages, "history must not be announced")

	fresh := usdcTransfer("0xnew", payerAddr, walletAddr, "2500000")
	outgoing := usdcTransfer("0xout", walletAddr, payerAddr, "100")
	spam := usdcTransfer("0xspam", payerAddr, walletAddr, "1")
	spam.ContractAddress = "0x0000000000000000000000000000000000000bad"
	explorer.transfers[walletAddr] = []chain.TokenTransfer{fresh, outgoing, spam, old}

	w.Poll(ctx)
	w.Poll(ctx)

	require.Len(t, sender.messages, 1)
	assert.Equal(t, int64(777), sender.messages[0].chatID)
	assert.Contains(t, sender.messages[0].text, "+2.500000 USDC")

	txs, err := store.ListTransactionsByUser(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, storage.TxTypeReceive, txs[0].Type)
	assert.Equal(t, wallet.ID, txs[0].WalletID)
	assert.Equal(t, "2.5", txs[0].Amount)
	assert.Equal(t, "0xnew", txs[0].TxHash)
}

func TestDepositWatcherReseedsAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	user, err := store.UpsertUser(777, "Ada", "", "ada")
	require.NoError(t, err)
	_, err = store.CreateWallet(user.ID, "prov-1", walletAddr, storage.NetworkMantle)
	require.NoError(t, err)

	explorer := &fakeExplorer{err: errors.New("explorer down")}
	sender := &fakeSender{}
	w := NewDepositWatcher(store, explorer, New(sender, store, explorerLinks{}, discard()), discard())

	w.Seed(ctx)

	explorer.err = nil
	explorer.transfers = map[string][]chain.TokenTransfer{
		walletAddr: {usdcTransfer("0xold", payerAddr, walletAddr, "1000000")},
	}
	w.Poll(ctx)
	assert.Empty(t, sender.messages)

	explorer.transfers[walletAddr] = append(explorer.transfers[walletAddr],
		usdcTransfer("0xnew", payerAddr, walletAddr, "3000000"))
	w.Poll(ctx)
	require.Len(t, sender.messages, 1)
}

func TestWalletsCreatedAfterStartAreWatched(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	explorer := &fakeExplorer{transfers: map[string][]chain.TokenTransfer{}}
	sender := &fakeSender{}
	w := NewDepositWatcher(store, explorer, New(sender, store, explorerLinks{}, discard()), discard())
	w.Seed(ctx)

	user, err := store.UpsertUser(888, "Bo", "", "")
	require.NoError(t, err)
	_, err = store.CreateWallet(user.ID, "prov-2", walletAddr, storage.NetworkMantle)
	require.NoError(t, err)

	explorer.transfers[walletAddr] = []chain.TokenTransfer{usdcTransfer("0xfirst", payerAddr, walletAddr, "1000000")}
	w.Poll(ctx)

	require.Len(t, sender.messages, 1)
	assert.Equal(t, int64(888), sender.messages[0].chatID)
}
