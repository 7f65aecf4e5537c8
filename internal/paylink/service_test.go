package paylink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obverse/mantle-bot/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Storage) {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, id := range []int64{42, 43} {
		u, err := db.UpsertUser(id, "Ada", "", "ada")
		require.NoError(t, err)
		_, err = db.CreateWallet(u.ID, "pw", fmt.Sprintf("0x%040x", id), storage.NetworkMantle)
		require.NoError(t, err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, db, "https://pay.example.com/", "https://qr.example.com/", log), db
}

func draft() Draft {
	return Draft{TelegramID: 42, ChatID: 100, Title: "Coffee", Token: "usdc", Amount: "5.50"}
}

func TestNewLinkID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := NewLinkID()
		require.NoError(t, err)
		assert.True(t, IsLinkID(id), id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
	assert.False(t, IsLinkID("abc"))
	assert.False(t, IsLinkID("abcd-fgh"))
}

func TestCreateRoundTrip(t *testing.T) {
	svc, db := newTestService(t)

	link, err := svc.Create(context.Background(), draft())
	require.NoError(t, err)
	assert.Equal(t, "USDC", link.Token)
	assert.Equal(t, "5.5", link.Amount)
	assert.Equal(t, storage.LinkTypeOneTime, link.Type)
	assert.Equal(t, 1, link.MaxUses)
	assert.Equal(t, "https://pay.example.com/pay/"+link.LinkID, link.LinkURL)
	assert.True(t, strings.HasPrefix(link.QRCodeURL, "https://qr.example.com/?size=300x300"))
	assert.Equal(t, link.LinkID, LinkIDFromURL(link.LinkURL))

	got, err := db.GetPaymentLink(link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", got.Title)
	assert.Empty(t, got.Details)

	assert.True(t, svc.Exists(link.LinkID))
	assert.False(t, svc.Exists("abcdefgh"))
	assert.False(t, svc.Exists("abc"))
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []func(d *Draft){
		func(d *Draft) { d.Title = "  " },
		func(d *Draft) { d.Title = strings.Repeat("x", 101) },
		func(d *Draft) { d.Token = "MNT" },
		func(d *Draft) { d.Amount = "0" },
		func(d *Draft) { d.Amount = "ten" },
		func(d *Draft) { d.Token, d.Amount = "USDC", "0.0000000000000000001" },
		func(d *Draft) { d.Token, d.Amount = "USDT", "1.1234567" },
	}
	for i, mutate := range tests {
		d := draft()
		mutate(&d)
		_, err := svc.Create(context.Background(), d)
		assert.ErrorIs(t, err, ErrInvalid, "case %d", i)
	}

	d := draft()
	d.TelegramID = 999
	_, err := svc.Create(context.Background(), d)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

type collidingStore struct {
	*storage.Storage
	collisions int
}

func (c *collidingStore) CreatePaymentLink(l *storage.PaymentLink) error {
	if c.collisions > 0 {
		c.collisions--
		return storage.ErrAlreadyExists
	}
	return c.Storage.CreatePaymentLink(l)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	_, db := newTestService(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := &collidingStore{Storage: db, collisions: 2}
	svc := NewService(store, db, "https://pay.example.com", "https://qr.example.com/", log)
	link, err := svc.Create(context.Background(), draft())
	require.NoError(t, err)
	assert.NotEmpty(t, link.LinkID)

	store.collisions = 10
	_, err = svc.Create(context.Background(), draft())
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestCleanFields(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, CleanFields([]string{"a", " B", "", " ", "c", "a"}))
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)

	d := draft()
	d.MaxUses = storage.UnlimitedUses
	link, err := svc.Create(context.Background(), d)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := svc.View(link.LinkID)
		require.NoError(t, err)
	}
	for i, hash := range []string{"0x1", "0x2", "0x3", "0x4"} {
		_, err := svc.RecordPayment(link.LinkID, storage.LinkPayment{
			PayerAddress:    "0x1111111111111111111111111111111111111111",
			Amount:          "5.5",
			TransactionHash: hash,
			PaidAt:          time.Unix(int64(1700000000+i), 0),
		})
		require.NoError(t, err)
	}

	st, err := svc.Stats(42, link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Views)
	assert.Equal(t, 4, st.Transactions)
	assert.Equal(t, "100.00", st.Conversion)
	assert.Equal(t, "5.50", st.Average)
	assert.Equal(t, "4/∞", st.Uses())
	assert.Len(t, st.Recent, 3)

	out := FormatStats(st)
	assert.Contains(t, out, "Coffee")
	assert.Contains(t, out, "0x1111...1111")

	_, err = svc.Stats(43, link.LinkID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Stats(42, "Missing1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t)

	small, err := svc.Create(context.Background(), draft())
	require.NoError(t, err)
	d := draft()
	d.Title = "Workshop"
	d.Amount = "50"
	workshop, err := svc.Create(context.Background(), d)
	require.NoError(t, err)

	_, err = svc.RecordPayment(small.LinkID, storage.LinkPayment{PayerAddress: "0x1", Amount: "5.5", TransactionHash: "0xa", PaidAt: time.Now()})
	require.NoError(t, err)
	_, err = svc.RecordPayment(workshop.LinkID, storage.LinkPayment{PayerAddress: "0x2", Amount: "50", TransactionHash: "0xb", PaidAt: time.Now()})
	require.NoError(t, err)

	sum, err := svc.Summary(42)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalLinks)
	assert.Equal(t, 0, sum.ActiveLinks)
	assert.Equal(t, 2, sum.TotalPayments)
	assert.Equal(t, "55.50", sum.Revenue.StringFixed(2))
	require.Len(t, sum.Top, 2)
	assert.Equal(t, "Workshop", sum.Top[0].Link.Title)
	assert.Contains(t, FormatSummary(sum), "Payment Links Overview")

	empty, err := svc.Summary(43)
	require.NoError(t, err)
	assert.Contains(t, FormatSummary(empty), "No Payment Links Found")

	found, err := svc.FindByTitle(42, "work")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, workshop.LinkID, found[0].LinkID)
}
