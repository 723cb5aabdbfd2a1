package common

import "errors"

// Error taxonomy for the setup protocol and swap drivers, spec.md §4.3/§7.
// These are sentinel kinds; callers wrap them with fmt.Errorf("...: %w", ...)
// to add swap-specific context before surfacing them.
var (
	// ErrNoSwapsAccepted is returned by a Maker that has disabled new swaps.
	ErrNoSwapsAccepted = errors.New("maker is not accepting new swaps")

	// ErrAmountBelowMinimum is returned when the requested amount is below
	// the Maker's configured minimum.
	ErrAmountBelowMinimum = errors.New("requested amount is below maker's minimum")

	// ErrAmountAboveMaximum is returned when the requested amount is above
	// the Maker's configured maximum.
	ErrAmountAboveMaximum = errors.New("requested amount is above maker's maximum")

	// ErrBalanceTooLow is returned when the Maker lacks sufficient XMR
	// reserves to service the swap.
	ErrBalanceTooLow = errors.New("maker has insufficient monero balance")

	// ErrBlockchainNetworkMismatch is returned when the Bitcoin/Monero
	// network pair declared by the counterparty does not match the local
	// policy (spec.md §4.3).
	ErrBlockchainNetworkMismatch = errors.New("blockchain network mismatch")

	// ErrSetupTimeout is returned when the setup stream is inactive longer
	// than the negotiation budget (default 120s, spec.md §4.3).
	ErrSetupTimeout = errors.New("setup protocol timed out")

	// ErrProtocol is the catch-all for setup verification failures: invalid
	// DLEQ proofs, invalid signatures, malformed messages.
	ErrProtocol = errors.New("protocol verification failed")
)

// TransientError wraps an error that the driver should retry (network
// disconnects, RPC timeouts) rather than treat as fatal, per spec.md §7's
// propagation policy: collaborators surface transient failures as errors,
// and only the driver decides whether to retry.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

// Unwrap allows errors.Is/errors.As to see through the wrapper.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError, or returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or one of its wrapped causes) was
// marked transient by a collaborator.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
