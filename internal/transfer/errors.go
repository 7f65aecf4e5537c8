package transfer

import "fmt"

// Kind classifies why a transfer did not go through
type Kind string

const (
	KindNotRegistered          Kind = "NotRegistered"
	KindInvalidAddress         Kind = "InvalidAddress"
	KindSelfTransfer           Kind = "SelfTransfer"
	KindInvalidAmount          Kind = "InvalidAmount"
	KindUnsupportedToken       Kind = "UnsupportedToken"
	KindBelowMinimum           Kind = "BelowMinimum"
	KindInsufficientBalance    Kind = "InsufficientBalance"
	KindInsufficientGasReserve Kind = "InsufficientGasReserve"
	KindInsufficientGasForFees Kind = "InsufficientGasForFees"
	KindBalanceUnavailable     Kind = "BalanceUnavailable"
	KindTransferFailed         Kind = "TransferFailed"
)

// Error is a transfer failure with a message fit for the end user
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
