// Package common provides shared utilities used across all services
package common

import "errors"

// Pipeline error taxonomy. Stage code wraps these with fmt.Errorf("...: %w")
// so callers classify with errors.Is.
var (
	// ErrInvalidAmount rejects non-positive or out-of-range request amounts
	// locally, before any network call.
	ErrInvalidAmount = errors.New("swap amount must be a positive integer in base units")

	// ErrRouteUnavailable means the aggregator reports no viable route.
	ErrRouteUnavailable = errors.New("no viable route for pair")

	// ErrRouteExpired means the aggregator signalled the quote is stale.
	ErrRouteExpired = errors.New("aggregator route expired")

	// ErrStaleCheckpoint means a prepared transaction's validity checkpoint
	// lapsed before submission. The whole chain restarts from a fresh quote.
	ErrStaleCheckpoint = errors.New("validity checkpoint expired")

	// ErrLookupTableUnavailable means a lookup table the route references
	// could not be resolved. Silently omitting it would compile a malformed
	// or semantically wrong transaction, so assembly fails instead.
	ErrLookupTableUnavailable = errors.New("referenced lookup table unavailable")

	// ErrInsufficientFundsForRent is the non-retryable simulation outcome:
	// retrying cannot succeed until the wallet is funded.
	ErrInsufficientFundsForRent = errors.New("insufficient funds for rent")

	// ErrSimulationExhausted means the simulation retry bound was reached
	// without a clean result.
	ErrSimulationExhausted = errors.New("simulation retries exhausted")

	// ErrSubmissionRejected covers transport errors and malformed or
	// oversized payloads on either broadcast path.
	ErrSubmissionRejected = errors.New("submission rejected")

	// ErrExecutionFailed is the terminal Failed confirmation state: the
	// transaction landed and errored on-chain.
	ErrExecutionFailed = errors.New("on-chain execution failed")

	// ErrConfirmationExpired is the terminal Expired state: the attempt
	// budget ran out without a terminal status.
	ErrConfirmationExpired = errors.New("confirmation attempts exhausted")

	// ErrLedgerWriteConflict means a balance mutation lost a concurrent
	// race; callers retry against fresh-loaded state, never overwrite blind.
	ErrLedgerWriteConflict = errors.New("ledger write conflict")
)

// Restartable reports whether the failure invalidates attempt-scoped
// artifacts and the pipeline should restart from a fresh quote.
func Restartable(err error) bool {
	return errors.Is(err, ErrRouteExpired) ||
		errors.Is(err, ErrStaleCheckpoint) ||
		errors.Is(err, ErrExecutionFailed) ||
		errors.Is(err, ErrConfirmationExpired)
}
