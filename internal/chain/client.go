package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/obverse/mantle-bot/internal/metrics"
)

// Backend is the subset of an Ethereum RPC client used for balance reads
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client reads balances and token metadata from a Mantle RPC node
type Client struct {
	backend Backend
	closer  func()
	log     *slog.Logger
}

// Dial connects to an RPC endpoint
func Dial(ctx context.Context, rpcURL string, log *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	c := NewClient(ec, log)
	c.closer = ec.Close
	return c, nil
}

// NewClient creates a client over an existing backend
func NewClient(backend Backend, log *slog.Logger) *Client {
	return &Client{
		backend: backend,
		log:     log,
	}
}

// Close closes the underlying connection
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// NativeBalance returns the MNT balance of an address
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	start := time.Now()
	wei, err := c.backend.BalanceAt(ctx, addr, nil)
	observe("eth_getBalance", start, err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get native balance: %w", err)
	}
	return FromBaseUnits(wei, MNT.Decimals), nil
}

// TokenBalance returns the balance of a token for an address.
// Decimals are read from the contract, falling back to the fixed table.
func (c *Client) TokenBalance(ctx context.Context, token Token, addr common.Address) (decimal.Decimal, error) {
	if token.Native {
		return c.NativeBalance(ctx, addr)
	}

	data, err := packBalanceOf(addr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack balanceOf: %w", err)
	}

	raw, err := c.call(ctx, "balanceOf", token.Address, data)
	if err != nil {
		return decimal.Zero, fmt.Errorf("call %s balanceOf: %w", token.Symbol, err)
	}

	units, err := unpackBalance(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unpack %s balanceOf: %w", token.Symbol, err)
	}

	return FromBaseUnits(units, c.TokenDecimals(ctx, token)), nil
}

// TokenDecimals reads decimals() from the token contract.
// Some deployed tokens do not implement it correctly, so the fixed table is used on failure.
func (c *Client) TokenDecimals(ctx context.Context, token Token) int32 {
	if token.Native {
		return token.Decimals
	}

	data, err := packDecimals()
	if err != nil {
		return token.Decimals
	}

	raw, err := c.call(ctx, "decimals", token.Address, data)
	if err != nil {
		c.log.Debug("decimals call failed, using table", "token", token.Symbol, "error", err)
		return token.Decimals
	}

	decimals, err := unpackDecimals(raw)
	if err != nil {
		c.log.Debug("decimals unpack failed, using table", "token", token.Symbol, "error", err)
		return token.Decimals
	}

	return decimals
}

func (c *Client) call(ctx context.Context, method string, to common.Address, data []byte) ([]byte, error) {
	start := time.Now()
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	observe(method, start, err)
	return out, err
}

func observe(method string, start time.Time, err error) {
	metrics.RPCDuration.WithLabelValues(method, metrics.Status(err)).Observe(time.Since(start).Seconds())
}
