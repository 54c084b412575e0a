package application

import "errors"

var (
	// ErrInvalidRequest is returned when a request misses mandatory fields
	// or carries inconsistent ones. Validation always happens before any
	// state mutation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInsufficientFunds is returned when the bitcoin inputs of a packet
	// do not cover its outputs plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSignature is returned when a descriptor cannot produce a valid
	// signature for the input it controls. Retryable once a corrected
	// descriptor is obtained.
	ErrSignature = errors.New("signature failure")
	// ErrUnknownIface is returned when a request names an interface the
	// daemon does not support.
	ErrUnknownIface = errors.New("unknown contract interface")
	// ErrPrecisionMismatch is returned when the supply or precision of an
	// issuance does not fit the numeric model of the chosen interface.
	ErrPrecisionMismatch = errors.New("supply and precision do not fit the interface")
)
