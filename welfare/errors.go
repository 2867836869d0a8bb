/*
errors.go - Centralized error taxonomy for the welfare engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy mirrors what callers must distinguish at the boundary:

    NotFound               entity absent (claim, sub-program, claimant)
    ValidationError        malformed/missing input (e.g. missing nights)
    QuotaExceeded          would breach a configured limit
    InvalidStateTransition status precondition failed
    Forbidden              caller lacks rights over the resource
    DuplicateUsage         a claim's quota effect was already recorded

USAGE:
  Sentinels compose with errors.Is; structured types carry context and
  unwrap to their sentinel:

    if errors.Is(err, welfare.ErrQuotaExceeded) { ... }

    var qe *welfare.QuotaExceededError
    if errors.As(err, &qe) { show(qe.Limit, qe.WouldBe) }

SEE ALSO:
  - validator.go: Produces ValidationError and QuotaExceededError
  - claims.go: Produces InvalidTransitionError and NotFound sentinels
*/
package welfare

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrClaimNotFound is returned when a referenced claim doesn't exist.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrClaimantNotFound is returned when a referenced claimant doesn't exist
	// or is inactive.
	ErrClaimantNotFound = errors.New("claimant not found")

	// ErrProgramNotFound is returned when a referenced program doesn't exist.
	ErrProgramNotFound = errors.New("program not found")

	// ErrSubProgramNotFound is returned when a sub-program doesn't exist, is
	// inactive, or its parent program is inactive.
	ErrSubProgramNotFound = errors.New("sub-program not found")

	// ErrValidation is the sentinel for malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrQuotaExceeded is the sentinel for any configured-limit breach.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidTransition is the sentinel for status precondition failures.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrForbidden is returned when the caller lacks rights over the resource
	// (e.g. a claimant reading another claimant's comment thread).
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateUsage is returned when a usage record for the same claim
	// already exists. Completion is a one-way door; this is the backstop.
	ErrDuplicateUsage = errors.New("usage already recorded for claim")

	// ErrProgramInUse is returned when attempting to hard-delete catalog
	// entries that claims still reference. Deactivate instead.
	ErrProgramInUse = errors.New("program has claims and cannot be deleted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a single malformed or missing input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// QuotaExceededError names the limit that would be breached and by how much,
// so callers can render actionable feedback.
type QuotaExceededError struct {
	Limit      string          // e.g. "max_per_year"
	Configured decimal.Decimal // the configured cap
	Used       decimal.Decimal // consumption before this claim
	Requested  decimal.Decimal // this claim's candidate amount
	WouldBe    decimal.Decimal // Used + Requested
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s exceeded: limit %s, used %s, requested %s (would be %s)",
		e.Limit, e.Configured, e.Used, e.Requested, e.WouldBe)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// ClaimCountExceededError is the claim-count sibling of QuotaExceededError.
type ClaimCountExceededError struct {
	Limit      string // "max_claims_per_year" or "max_claims_lifetime"
	Configured int
	Used       int
}

func (e *ClaimCountExceededError) Error() string {
	return fmt.Sprintf("%s exceeded: limit %d, already used %d", e.Limit, e.Configured, e.Used)
}

func (e *ClaimCountExceededError) Unwrap() error { return ErrQuotaExceeded }

// InvalidTransitionError names the current and attempted status. The claim is
// left unchanged whenever this is returned.
type InvalidTransitionError struct {
	ClaimID ClaimID
	From    ClaimStatus
	To      ClaimStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("claim %s: cannot transition %s -> %s", e.ClaimID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrClaimantNotFound) ||
		errors.Is(err, ErrProgramNotFound) ||
		errors.Is(err, ErrSubProgramNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrForbidden) ||
		IsNotFound(err)
}
