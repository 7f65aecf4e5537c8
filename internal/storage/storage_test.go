package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUserWallet(t *testing.T, s *Storage, telegramID int64, address string) (*User, *Wallet) {
	t.Helper()
	u, err := s.UpsertUser(telegramID, "Ada", "", "ada")
	require.NoError(t, err)
	w, err := s.CreateWallet(u.ID, "pw-1", address, NetworkMantle)
	require.NoError(t, err)
	return u, w
}

func newLink(u *User, w *Wallet, linkID string, maxUses int) *PaymentLink {
	return &PaymentLink{
		LinkID:          linkID,
		CreatorUserID:   u.ID,
		CreatorWalletID: w.ID,
		Title:           "Coffee",
		Amount:          "10",
		Token:           "USDC",
		TokenAddress:    "0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9",
		Network:         NetworkMantle,
		Status:          LinkStatusActive,
		Type:            LinkTypeOneTime,
		LinkURL:         "https://pay.example.com/pay/" + linkID,
		Details:         []string{"name", "email"},
		MaxUses:         maxUses,
		Source:          "telegram",
	}
}

func TestUpsertUser(t *testing.T) {
	s := newTestStorage(t)

	u, err := s.UpsertUser(42, "Ada", "Lovelace", "ada")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.TelegramID)
	assert.True(t, u.IsActive)

	again, err := s.UpsertUser(42, "Augusta", "", "ada")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Augusta", again.FirstName)

	_, err = s.GetUserByTelegramID(7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWallets(t *testing.T) {
	s := newTestStorage(t)
	u, w := seedUserWallet(t, s, 42, "0xAbC0000000000000000000000000000000000001")

	_, err := s.CreateWallet(u.ID, "pw-2", "0x01", NetworkMantle)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := s.GetWalletByTelegramID(42)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	byAddr, err := s.GetWalletByAddress("0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, w.ID, byAddr.ID)

	_, err = s.GetWalletByTelegramID(99)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.GetAllWallets()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPaymentLinkRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	u, w := seedUserWallet(t, s, 42, "0x0000000000000000000000000000000000000001")

	link := newLink(u, w, "Ab3dEfGh", 1)
	require.NoError(t, s.CreatePaymentLink(link))
	assert.NotZero(t, link.ID)

	got, err := s.GetPaymentLink("Ab3dEfGh")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email"}, got.Details)
	assert.Equal(t, "0", got.TotalReceived)
	assert.Equal(t, 1, got.MaxUses)

	err = s.CreatePaymentLink(newLink(u, w, "Ab3dEfGh", 1))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.GetPaymentLink("missing1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordLinkPayment(t *testing.T) {
	s := newTestStorage(t)
	u, w := seedUserWallet(t, s, 42, "0x0000000000000000000000000000000000000001")
	require.NoError(t, s.CreatePaymentLink(newLink(u, w, "Lnk00001", 2)))

	updated, err := s.RecordLinkPayment("Lnk00001", LinkPayment{
		PayerAddress: "0x00000000000000000000000000000000000000aa", Amount: "10", TransactionHash: "0x01",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CurrentUses)
	assert.Equal(t, LinkStatusActive, updated.Status)

	_, err = s.RecordLinkPayment("Lnk00001", LinkPayment{
		PayerAddress: "0x00000000000000000000000000000000000000aa", Amount: "10", TransactionHash: "0x01",
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	updated, err = s.RecordLinkPayment("Lnk00001", LinkPayment{
		PayerAddress: "0x00000000000000000000000000000000000000bb", Amount: "10.5", TransactionHash: "0x02",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CurrentUses)
	assert.Equal(t, "20.5", updated.TotalReceived)
	assert.Equal(t, LinkStatusCompleted, updated.Status)

	_, err = s.RecordLinkPayment("Lnk00001", LinkPayment{Amount: "1", TransactionHash: "0x03"})
	assert.ErrorIs(t, err, ErrInactive)

	payments, err := s.ListLinkPayments("Lnk00001")
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecordLinkPaymentUnlimited(t *testing.T) {
	s := newTestStorage(t)
	u, w := seedUserWallet(t, s, 42, "0x0000000000000000000000000000000000000001")
	require.NoError(t, s.CreatePaymentLink(newLink(u, w, "Unlim001", UnlimitedUses)))

	for i, hash := range []string{"0xa", "0xb", "0xc"} {
		updated, err := s.RecordLinkPayment("Unlim001", LinkPayment{Amount: "1", TransactionHash: hash})
		require.NoError(t, err)
		assert.Equal(t, i+1, updated.CurrentUses)
		assert.Equal(t, LinkStatusActive, updated.Status)
	}
}

func TestIncrementLinkViews(t *testing.T) {
	s := newTestStorage(t)
	u, w := seedUserWallet(t, s, 42, "0x0000000000000000000000000000000000000001")
	require.NoError(t, s.CreatePaymentLink(newLink(u, w, "Views001", 1)))

	require.NoError(t, s.IncrementLinkViews("Views001"))
	require.NoError(t, s.IncrementLinkViews("Views001"))
	assert.ErrorIs(t, s.IncrementLinkViews("nope0000"), ErrNotFound)

	got, err := s.GetPaymentLink("Views001")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ViewCount)
}

func TestTransactionsAndEvents(t *testing.T) {
	s := newTestStorage(t)
	u, w := seedUserWallet(t, s, 42, "0x0000000000000000000000000000000000000001")

	tx := &Transaction{
		WalletID: w.ID, UserID: u.ID, Type: TxTypeSend, Status: TxStatusCompleted,
		Amount: "1.5", Token: "MNT", FromAddress: w.Address, ToAddress: "0x02",
		TxHash: "0xhash", Network: NetworkMantle, Metadata: map[string]string{"source": "transfer_tool"},
	}
	require.NoError(t, s.CreateTransaction(tx))

	txs, err := s.ListTransactionsByUser(u.ID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "", txs[0].TokenAddress)
	assert.Equal(t, "transfer_tool", txs[0].Metadata["source"])

	isNew, err := s.MarkEventProcessed(w.ID, "0xevent")
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = s.MarkEventProcessed(w.ID, "0xevent")
	require.NoError(t, err)
	assert.False(t, isNew)
}
