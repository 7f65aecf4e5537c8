// Package transfer validates and executes outgoing token transfers.
package transfer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/custody"
	"github.com/obverse/mantle-bot/internal/metrics"
	"github.com/obverse/mantle-bot/internal/storage"
	"github.com/obverse/mantle-bot/internal/tracing"
)

// Directory resolves the sender's identity and wallet
type Directory interface {
	GetUserByTelegramID(telegramID int64) (*storage.User, error)
	GetWalletByUserID(userID int64) (*storage.Wallet, error)
}

// BalanceReader reads live balances
type BalanceReader interface {
	TokenBalance(ctx context.Context, token chain.Token, addr common.Address) (decimal.Decimal, error)
}

// Recorder persists completed transfers
type Recorder interface {
	CreateTransaction(t *storage.Transaction) error
}

// Explorer builds transaction links
type Explorer interface {
	TxURL(hash string) string
}

// Policy holds minimums and gas reserves, all in whole token units
type Policy struct {
	NativeMinimum decimal.Decimal
	TokenMinimum  decimal.Decimal
	// GasReserve must remain after sending the gas token itself
	GasReserve decimal.Decimal
	// FeeReserve of the gas token is required to send any other token
	FeeReserve decimal.Decimal
}

// DefaultPolicy returns the standard Mantle limits
func DefaultPolicy() Policy {
	return Policy{
		NativeMinimum: decimal.RequireFromString("0.001"),
		TokenMinimum:  decimal.RequireFromString("0.01"),
		GasReserve:    decimal.RequireFromString("0.01"),
		FeeReserve:    decimal.RequireFromString("0.001"),
	}
}

func (p Policy) minimum(t chain.Token) decimal.Decimal {
	if t.Native {
		return p.NativeMinimum
	}
	return p.TokenMinimum
}

// Request is a transfer as asked for by a user
type Request struct {
	TelegramID int64
	ToAddress  string
	Amount     string
	Token      string
	Memo       string
	// Source names the entry point, e.g. "telegram" or "agent"
	Source string
}

// Result is the outcome of Send. Error is set exactly when Success is false.
type Result struct {
	Success         bool
	Error           *Error
	TransactionHash string
	FromAddress     string
	ToAddress       string
	Amount          string
	Token           string
	ConfirmationURL string
}

// Prepared is a request that passed validation
type Prepared struct {
	User    *storage.User
	Wallet  *storage.Wallet
	Token   chain.Token
	Amount  decimal.Decimal
	To      string
	Balance decimal.Decimal
}

// Service validates transfers and submits them through the custody provider
type Service struct {
	directory Directory
	balances  BalanceReader
	provider  custody.Provider
	recorder  Recorder
	explorer  Explorer
	chainID   int64
	policy    Policy
	log       *slog.Logger
}

// NewService creates a new transfer Service
func NewService(directory Directory, balances BalanceReader, provider custody.Provider, recorder Recorder, explorer Explorer, chainID int64, policy Policy, log *slog.Logger) *Service {
	return &Service{
		directory: directory,
		balances:  balances,
		provider:  provider,
		recorder:  recorder,
		explorer:  explorer,
		chainID:   chainID,
		policy:    policy,
		log:       log,
	}
}

// Validate checks a request in order and returns the first violation
func (s *Service) Validate(ctx context.Context, req Request) (*Prepared, *Error) {
	user, err := s.directory.GetUserByTelegramID(req.TelegramID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("get user", "telegram_id", req.TelegramID, "error", err)
		}
		return nil, newError(KindNotRegistered, "User not found. Please use /start to register first.")
	}
	wallet, err := s.directory.GetWalletByUserID(user.ID)
	if err != nil || wallet.Address == "" {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("get wallet", "user_id", user.ID, "error", err)
		}
		return nil, newError(KindNotRegistered, "No wallet found. Please use /start to create a wallet first.")
	}

	to := strings.TrimSpace(req.ToAddress)
	if !chain.IsAddress(to) {
		return nil, newError(KindInvalidAddress, "Invalid destination address. Please provide a valid Ethereum address.")
	}
	to = chain.NormalizeAddress(to)

	if chain.NormalizeAddress(wallet.Address) == to {
		return nil, newError(KindSelfTransfer, "Cannot send tokens to your own wallet address.")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, newError(KindInvalidAmount, "Invalid amount. Please provide a positive number.")
	}

	token, ok := chain.LookupIn(chain.TransferTokens, req.Token)
	if !ok {
		return nil, newError(KindUnsupportedToken, "Unsupported token %q. Supported tokens: %s.",
			req.Token, strings.Join(chain.Symbols(chain.TransferTokens), ", "))
	}
	if !chain.FitsDecimals(amount, token.Decimals) {
		return nil, newError(KindInvalidAmount, "Invalid amount. %s supports at most %d decimal places.", token.Symbol, token.Decimals)
	}

	if floor := s.policy.minimum(token); amount.LessThan(floor) {
		return nil, newError(KindBelowMinimum, "Minimum transfer amount for %s is %s %s.", token.Symbol, floor, token.Symbol)
	}

	addr := common.HexToAddress(wallet.Address)
	balance, err := s.balances.TokenBalance(ctx, token, addr)
	if err != nil {
		s.log.Warn("check balance", "token", token.Symbol, "address", wallet.Address, "error", err)
		return nil, newError(KindBalanceUnavailable, "Failed to check wallet balance. Please try again later.")
	}
	if balance.LessThan(amount) {
		return nil, newError(KindInsufficientBalance, "Insufficient balance. You have %s %s, but trying to send %s %s.",
			balance.StringFixed(6), token.Symbol, amount, token.Symbol)
	}

	if token.Native {
		if balance.Sub(amount).LessThan(s.policy.GasReserve) {
			return nil, newError(KindInsufficientGasReserve, "Insufficient balance for gas fees. Please keep at least %s MNT for transaction fees.",
				s.policy.GasReserve)
		}
	} else {
		gas, err := s.balances.TokenBalance(ctx, chain.MNT, addr)
		if err != nil {
			s.log.Warn("check gas balance", "address", wallet.Address, "error", err)
			return nil, newError(KindBalanceUnavailable, "Failed to check wallet balance. Please try again later.")
		}
		if gas.LessThan(s.policy.FeeReserve) {
			return nil, newError(KindInsufficientGasForFees, "Insufficient MNT balance for gas fees. You need at least %s MNT to send %s tokens.",
				s.policy.FeeReserve, token.Symbol)
		}
	}

	return &Prepared{
		User:    user,
		Wallet:  wallet,
		Token:   token,
		Amount:  amount,
		To:      to,
		Balance: balance,
	}, nil
}

// Send validates the request against live balances and submits it on-chain.
// A submitted transfer cannot be cancelled.
func (s *Service) Send(ctx context.Context, req Request) *Result {
	ctx, span := tracing.Start(ctx, "transfer.Send",
		attribute.String("token", strings.ToUpper(req.Token)),
		attribute.Int64("telegram_id", req.TelegramID),
	)

	p, verr := s.Validate(ctx, req)
	if verr != nil {
		metrics.TransfersTotal.WithLabelValues(strings.ToUpper(req.Token), string(verr.Kind)).Inc()
		tracing.End(span, verr)
		return &Result{Error: verr}
	}

	hash, err := s.execute(ctx, req.TelegramID, p)
	if err != nil {
		s.log.Error("execute transfer", "telegram_id", req.TelegramID, "token", p.Token.Symbol, "error", err)
		terr := newError(KindTransferFailed, "%s transfer failed: %v", p.Token.Symbol, err)
		metrics.TransfersTotal.WithLabelValues(p.Token.Symbol, string(terr.Kind)).Inc()
		tracing.End(span, terr)
		return &Result{Error: terr}
	}

	s.log.Info("transfer submitted",
		"telegram_id", req.TelegramID,
		"token", p.Token.Symbol,
		"amount", p.Amount.String(),
		"to", p.To,
		"tx_hash", hash,
	)
	metrics.TransfersTotal.WithLabelValues(p.Token.Symbol, "success").Inc()
	span.SetAttributes(attribute.String("tx_hash", hash))
	tracing.End(span, nil)

	s.record(req, p, hash)

	return &Result{
		Success:         true,
		TransactionHash: hash,
		FromAddress:     p.Wallet.Address,
		ToAddress:       p.To,
		Amount:          p.Amount.String(),
		Token:           p.Token.Symbol,
		ConfirmationURL: s.explorer.TxURL(hash),
	}
}

func (s *Service) execute(ctx context.Context, telegramID int64, p *Prepared) (string, error) {
	to := common.HexToAddress(p.To)
	value := chain.ToBaseUnits(p.Amount, p.Token.Decimals)

	if p.Token.Native {
		return s.provider.SendTransaction(ctx, telegramID, custody.TxRequest{
			ChainID: s.chainID,
			To:      to,
			Value:   value,
		})
	}

	data, err := chain.PackTransfer(to, value)
	if err != nil {
		return "", err
	}
	return s.provider.SendTransaction(ctx, telegramID, custody.TxRequest{
		ChainID: s.chainID,
		To:      p.Token.Address,
		Data:    data,
	})
}

// record stores the transfer; the transfer itself already happened, so failures are only logged
func (s *Service) record(req Request, p *Prepared, hash string) {
	source := req.Source
	if source == "" {
		source = "telegram"
	}

	err := s.recorder.CreateTransaction(&storage.Transaction{
		WalletID:     p.Wallet.ID,
		UserID:       p.User.ID,
		Type:         storage.TxTypeSend,
		Status:       storage.TxStatusCompleted,
		Amount:       p.Amount.String(),
		Token:        p.Token.Symbol,
		TokenAddress: p.Token.ContractAddress(),
		FromAddress:  p.Wallet.Address,
		ToAddress:    p.To,
		TxHash:       hash,
		Network:      storage.NetworkMantle,
		Metadata: map[string]string{
			"source":    source,
			"memo":      req.Memo,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		s.log.Error("record transaction", "tx_hash", hash, "error", err)
	}
}
