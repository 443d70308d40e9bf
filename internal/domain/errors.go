package domain

import "errors"

var (
	// ErrOutOfOrderSample is returned when a sample's timestamp is not after the last one seen for its symbol.
	ErrOutOfOrderSample = errors.New("out of order sample")
	// ErrUnknownSymbol is returned by engines configured with a closed symbol set.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrOrphanFill is returned when a fill confirmation matches no PENDING trade.
	ErrOrphanFill = errors.New("orphan fill")
	// ErrAlreadyClosed reports a close request on a CLOSED trade. It is informational: nothing changed.
	ErrAlreadyClosed = errors.New("trade already closed")
	ErrTradeNotFound = errors.New("trade not found")
	// ErrInvalidTransition is returned for lifecycle moves the state machine does not allow (e.g. closing a PENDING trade or cancelling an OPEN one).
	ErrInvalidTransition = errors.New("invalid trade transition")
	// ErrInsufficientHoldings is returned when a sell fill would drive a position amount negative.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	// ErrInvalidSample is returned for samples with a non-positive price or missing timestamp.
	ErrInvalidSample = errors.New("invalid sample")
)
