// Package custody talks to the external custodial wallet provider that owns user keys.
package custody

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrWalletNotFound = errors.New("custodial wallet not found")

// Wallet is a pregenerated wallet held by the provider for a Telegram user
type Wallet struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Type    string `json:"type"`
}

// TxRequest is an unsigned transaction the provider signs and broadcasts
type TxRequest struct {
	ChainID int64
	To      common.Address
	Value   *big.Int
	Data    []byte
}

// Provider signs and broadcasts on behalf of users, keyed by Telegram user ID
type Provider interface {
	CreateWallet(ctx context.Context, telegramUserID int64) (*Wallet, error)
	GetWallet(ctx context.Context, telegramUserID int64) (*Wallet, error)
	SendTransaction(ctx context.Context, telegramUserID int64, tx TxRequest) (string, error)
}
