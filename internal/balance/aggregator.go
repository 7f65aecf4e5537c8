// Package balance aggregates native and token balances of a wallet.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/storage"
)

var (
	ErrNotFound = errors.New("no wallet found for this user")
	ErrNoTarget = errors.New("either a user ID or a wallet address must be provided")
)

// Status tells a real balance apart from one that could not be fetched
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
)

// Reader reads on-chain balances
type Reader interface {
	TokenBalance(ctx context.Context, token chain.Token, addr common.Address) (decimal.Decimal, error)
}

// WalletDirectory resolves users to wallets
type WalletDirectory interface {
	GetWalletByTelegramID(telegramID int64) (*storage.Wallet, error)
}

// TokenBalance is the balance of one token.
// Amount is fixed to 6 decimals, or "0" when Status is StatusUnavailable.
type TokenBalance struct {
	Symbol string
	Amount string
	Status Status
}

// Report holds the balances of an address keyed by symbol, in display order
type Report struct {
	Address  string
	Balances []TokenBalance
}

// Get returns the balance of a symbol
func (r *Report) Get(symbol string) (TokenBalance, bool) {
	for _, b := range r.Balances {
		if strings.EqualFold(b.Symbol, symbol) {
			return b, true
		}
	}
	return TokenBalance{}, false
}

// Map returns amounts keyed by symbol
func (r *Report) Map() map[string]string {
	m := make(map[string]string, len(r.Balances))
	for _, b := range r.Balances {
		m[b.Symbol] = b.Amount
	}
	return m
}

// Query selects whose balances to fetch
type Query struct {
	TelegramID int64
	Address    string
	// Symbols restricts the report to these tokens, all tokens when empty
	Symbols []string
}

// Aggregator fetches balances for the fixed token set
type Aggregator struct {
	reader  Reader
	wallets WalletDirectory
	log     *slog.Logger
}

// New creates a new Aggregator
func New(reader Reader, wallets WalletDirectory, log *slog.Logger) *Aggregator {
	return &Aggregator{
		reader:  reader,
		wallets: wallets,
		log:     log,
	}
}

// Lookup resolves the query to an address and fetches its balances
func (a *Aggregator) Lookup(ctx context.Context, q Query) (*Report, error) {
	switch {
	case q.TelegramID != 0:
		return a.ForUser(ctx, q.TelegramID, q.Symbols)
	case q.Address != "":
		return a.ForAddress(ctx, q.Address, q.Symbols)
	default:
		return nil, ErrNoTarget
	}
}

// ForUser fetches balances of a user's wallet
func (a *Aggregator) ForUser(ctx context.Context, telegramID int64, symbols []string) (*Report, error) {
	wallet, err := a.wallets.GetWalletByTelegramID(telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return a.ForAddress(ctx, wallet.Address, symbols)
}

// ForAddress fetches balances of an address in parallel.
// A failed token is reported as "0" with StatusUnavailable instead of failing the report.
func (a *Aggregator) ForAddress(ctx context.Context, address string, symbols []string) (*Report, error) {
	if !chain.IsAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	addr := common.HexToAddress(address)
	tokens := selectTokens(symbols)

	balances := make([]TokenBalance, len(tokens))
	var wg sync.WaitGroup
	for i, tok := range tokens {
		wg.Add(1)
		go func(i int, tok chain.Token) {
			defer wg.Done()

			amount, err := a.reader.TokenBalance(ctx, tok, addr)
			if err != nil {
				a.log.Warn("fetch token balance", "token", tok.Symbol, "address", address, "error", err)
				balances[i] = TokenBalance{Symbol: tok.Symbol, Amount: "0", Status: StatusUnavailable}
				return
			}
			balances[i] = TokenBalance{Symbol: tok.Symbol, Amount: amount.StringFixed(6), Status: StatusOK}
		}(i, tok)
	}
	wg.Wait()

	return &Report{Address: address, Balances: balances}, nil
}

func selectTokens(symbols []string) []chain.Token {
	if len(symbols) == 0 {
		return chain.BalanceTokens
	}

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[strings.ToUpper(strings.TrimSpace(s))] = true
	}

	var out []chain.Token
	for _, t := range chain.BalanceTokens {
		if want[t.Symbol] {
			out = append(out, t)
		}
	}
	return out
}
