package notifier

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/metrics"
	"github.com/obverse/mantle-bot/internal/storage"
)

const transfersPerPoll = 20

// DepositStore is the persistence the watcher needs
type DepositStore interface {
	GetAllWallets() ([]storage.Wallet, error)
	GetUser(userID int64) (*storage.User, error)
	MarkEventProcessed(walletID int64, eventID string) (bool, error)
	CreateTransaction(t *storage.Transaction) error
}

// TransferSource lists token transfers touching an address
type TransferSource interface {
	TokenTransfers(ctx context.Context, address string, limit int) ([]chain.TokenTransfer, error)
}

// DepositWatcher polls the explorer for incoming token transfers to custodial wallets
type DepositWatcher struct {
	store    DepositStore
	explorer TransferSource
	notifier *Notifier
	log      *slog.Logger

	mu       sync.Mutex
	unseeded map[int64]bool
}

// NewDepositWatcher creates a new deposit watcher
func NewDepositWatcher(store DepositStore, explorer TransferSource, n *Notifier, log *slog.Logger) *DepositWatcher {
	return &DepositWatcher{
		store:    store,
		explorer: explorer,
		notifier: n,
		log:      log,
		unseeded: make(map[int64]bool),
	}
}

// Start records the existing history of every wallet, then polls until ctx is cancelled
func (w *DepositWatcher) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		w.log.Info("deposit watcher disabled")
		return
	}

	w.log.Info("deposit watcher started", "interval", interval)
	w.Seed(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Seed marks the current transfers of all known wallets as processed without
// announcing them. Wallets that fail are seeded again on their next poll.
func (w *DepositWatcher) Seed(ctx context.Context) {
	wallets, err := w.store.GetAllWallets()
	if err != nil {
		w.log.Error("get wallets", "error", err)
		return
	}

	seeded := 0
	for i := range wallets {
		if w.check(ctx, &wallets[i], true) {
			seeded++
		} else {
			w.setUnseeded(wallets[i].ID, true)
		}
	}
	w.log.Info("deposit history seeded", "wallets", seeded, "failed", len(wallets)-seeded)
}

// Poll checks every wallet once for new incoming transfers
func (w *DepositWatcher) Poll(ctx context.Context) {
	wallets, err := w.store.GetAllWallets()
	if err != nil {
		w.log.Error("get wallets", "error", err)
		return
	}

	for i := range wallets {
		if ctx.Err() != nil {
			return
		}
		wallet := &wallets[i]
		seed := w.isUnseeded(wallet.ID)
		if w.check(ctx, wallet, seed) && seed {
			w.setUnseeded(wallet.ID, false)
		}
	}
}

func (w *DepositWatcher) check(ctx context.Context, wallet *storage.Wallet, seed bool) bool {
	transfers, err := w.explorer.TokenTransfers(ctx, wallet.Address, transfersPerPoll)
	if err != nil {
		w.log.Warn("get token transfers", "wallet_id", wallet.ID, "error", err)
		return false
	}
	for _, tr := range transfers {
		w.process(ctx, wallet, tr, seed)
	}
	return true
}

func (w *DepositWatcher) process(ctx context.Context, wallet *storage.Wallet, tr chain.TokenTransfer, seed bool) {
	if !strings.EqualFold(tr.To, wallet.Address) || strings.EqualFold(tr.From, wallet.Address) {
		return
	}
	token, ok := chain.TokenByAddress(tr.ContractAddress)
	if !ok {
		return
	}

	isNew, err := w.store.MarkEventProcessed(wallet.ID, tr.EventID())
	if err != nil {
		w.log.Error("mark event processed", "wallet_id", wallet.ID, "event_id", tr.EventID(), "error", err)
		return
	}
	if !isNew || seed {
		return
	}

	amount := tr.Amount()
	w.log.Info("deposit detected",
		"wallet_id", wallet.ID,
		"token", token.Symbol,
		"amount", amount.String(),
		"tx_hash", tr.Hash,
	)
	metrics.DepositsDetected.WithLabelValues(token.Symbol).Inc()

	rec := &storage.Transaction{
		WalletID:     wallet.ID,
		UserID:       wallet.UserID,
		Type:         storage.TxTypeReceive,
		Status:       storage.TxStatusCompleted,
		Amount:       amount.String(),
		Token:        token.Symbol,
		TokenAddress: token.ContractAddress(),
		FromAddress:  chain.NormalizeAddress(tr.From),
		ToAddress:    chain.NormalizeAddress(wallet.Address),
		TxHash:       tr.Hash,
		Network:      storage.NetworkMantle,
		Metadata: map[string]string{
			"source":    "deposit_watcher",
			"timestamp": tr.Time().UTC().Format(time.RFC3339),
		},
	}
	if err := w.store.CreateTransaction(rec); err != nil {
		w.log.Error("record deposit", "wallet_id", wallet.ID, "tx_hash", tr.Hash, "error", err)
	}

	user, err := w.store.GetUser(wallet.UserID)
	if err != nil {
		w.log.Error("get deposit owner", "wallet_id", wallet.ID, "error", err)
		return
	}
	w.notifier.NotifyDeposit(ctx, user.TelegramID, Deposit{
		Token:  token.Symbol,
		Amount: amount,
		From:   tr.From,
		TxHash: tr.Hash,
	})
}

func (w *DepositWatcher) isUnseeded(walletID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unseeded[walletID]
}

func (w *DepositWatcher) setUnseeded(walletID int64, v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v {
		w.unseeded[walletID] = true
	} else {
		delete(w.unseeded, walletID)
	}
}
