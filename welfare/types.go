/*
Package welfare provides the core claim lifecycle and quota engine.

PURPOSE:
  This package contains the domain types and algorithms for administering
  employee welfare-benefit claims: claim submission, two-tier review
  (admin then manager), and quota accounting against per-year and lifetime
  limits partitioned by fiscal year.

KEY CONCEPTS IN THIS FILE (types.go):
  - Program/SubProgram: The configurable benefit catalog (amounts, limits)
  - Claim: The central entity, mutated only through state-machine transitions
  - ClaimStatus: Submission -> dual approval -> completion (or rejection)
  - UsageRecord/UsageSnapshot: Quota consumption, one record per completed claim

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all monetary amounts
  2. Type Safety: Strong typing for IDs prevents mixing claimant/program IDs
  3. One-way doors: COMPLETED and REJECTED are terminal; no claim regresses
  4. Derived usage: Quota snapshots are computed from usage records, never
     stored as mutable counters that can drift

SEE ALSO:
  - claims.go: State machine and claim service
  - ledger.go: Quota ledger built on usage records
  - validator.go: Submission-time admissibility checks
*/
package welfare

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClaimantID string
type ProgramID string
type SubProgramID string
type ClaimID string
type CommentID string

// =============================================================================
// BENEFIT CATALOG - Programs and their sub-programs
// =============================================================================

// DocumentSpec describes a document a program expects with each claim
// (e.g., "Marriage certificate", required).
type DocumentSpec struct {
	Name     string
	Required bool
}

// Program is a benefit category such as "Medical" or "Marriage".
// Programs are soft-deactivated once claims reference them; they are never
// hard-deleted out from under a claim (financial record).
type Program struct {
	ID                ProgramID
	Code              string // unique
	Name              string
	Active            bool
	SortOrder         int
	RequiredDocuments []DocumentSpec
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UnitType determines how a sub-program's amount is applied.
type UnitType string

const (
	UnitLumpSum  UnitType = "lump_sum"  // fixed amount per claim
	UnitPerNight UnitType = "per_night" // amount multiplied by nights
)

// SubProgram is the finest-grained benefit rule: the per-unit amount and the
// quota limits a claimant is held to. A nil limit means unlimited.
type SubProgram struct {
	ID        SubProgramID
	ProgramID ProgramID
	Code      string // unique within parent program
	Name      string
	Unit      UnitType
	Amount    decimal.Decimal // per-unit amount, must be > 0

	MaxPerRequest     *decimal.Decimal
	MaxPerYear        *decimal.Decimal
	MaxLifetime       *decimal.Decimal
	MaxClaimsPerYear  *int
	MaxClaimsLifetime *int

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the catalog invariants: positive amount, non-negative limits.
func (sp *SubProgram) Validate() error {
	if sp.Unit != UnitLumpSum && sp.Unit != UnitPerNight {
		return &ValidationError{Field: "unit", Message: "unknown unit type: " + string(sp.Unit)}
	}
	if !sp.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "amount must be > 0"}
	}
	for name, limit := range map[string]*decimal.Decimal{
		"max_per_request": sp.MaxPerRequest,
		"max_per_year":    sp.MaxPerYear,
		"max_lifetime":    sp.MaxLifetime,
	} {
		if limit != nil && limit.IsNegative() {
			return &ValidationError{Field: name, Message: name + " must be >= 0"}
		}
	}
	if sp.MaxClaimsPerYear != nil && *sp.MaxClaimsPerYear < 0 {
		return &ValidationError{Field: "max_claims_per_year", Message: "max_claims_per_year must be >= 0"}
	}
	if sp.MaxClaimsLifetime != nil && *sp.MaxClaimsLifetime < 0 {
		return &ValidationError{Field: "max_claims_lifetime", Message: "max_claims_lifetime must be >= 0"}
	}
	return nil
}

// =============================================================================
// CLAIMANT
// =============================================================================

// Claimant is an employee who owns claims. Identity and session handling live
// in an external identity provider; this engine only needs the ID.
type Claimant struct {
	ID        ClaimantID
	Name      string
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// CLAIM - The central entity
// =============================================================================

type ClaimStatus string

const (
	StatusPending       ClaimStatus = "pending"
	StatusInReview      ClaimStatus = "in_review"
	StatusAdminApproved ClaimStatus = "admin_approved"
	StatusCompleted     ClaimStatus = "completed"
	StatusRejected      ClaimStatus = "rejected"
)

// Terminal reports whether no further transitions are permitted.
func (s ClaimStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// transitions is the authoritative state-machine table. Rejection is valid
// from every non-terminal state.
var transitions = map[ClaimStatus][]ClaimStatus{
	StatusPending:       {StatusInReview, StatusAdminApproved, StatusRejected},
	StatusInReview:      {StatusAdminApproved, StatusRejected},
	StatusAdminApproved: {StatusCompleted, StatusRejected},
}

// CanTransitionTo reports whether the state machine permits s -> next.
func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Document is a descriptor returned by the external document store and
// attached to a claim at submission. The engine never touches file payloads.
type Document struct {
	FileName string
	FileURL  string
	FileType string
	FileSize int64
}

// Claim is created on submission and mutated only through the state machine's
// defined transitions. Once it leaves PENDING it is never physically deleted.
//
// INVARIANTS:
//   - ApprovedAmount is set if and only if Status == StatusCompleted
//   - RequestedAmount never exceeds the sub-program's MaxPerRequest at
//     submission time (the validator rejects, it does not clamp)
type Claim struct {
	ID           ClaimID
	ClaimantID   ClaimantID
	SubProgramID SubProgramID
	FiscalYear   int

	RequestedAmount decimal.Decimal
	ApprovedAmount  *decimal.Decimal
	Nights          *int // only for per_night sub-programs

	BeneficiaryName     string
	BeneficiaryRelation string

	Status ClaimStatus

	AdminApproverID   *string
	AdminApprovedAt   *time.Time
	ManagerApproverID *string
	ManagerApprovedAt *time.Time
	RejectedBy        *string
	RejectionReason   *string

	Documents []Document

	SubmittedAt time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// COMMENTS - Revision side-channel
// =============================================================================

// AuthorKind distinguishes claimant comments (which pull a PENDING claim into
// IN_REVIEW) from reviewer comments (which notify the claimant).
type AuthorKind string

const (
	AuthorClaimant AuthorKind = "claimant"
	AuthorReviewer AuthorKind = "reviewer"
)

// Comment is append-only.
type Comment struct {
	ID         CommentID
	ClaimID    ClaimID
	AuthorID   string
	AuthorKind AuthorKind
	Text       string
	CreatedAt  time.Time
}

// =============================================================================
// QUOTA USAGE - Append-only consumption records
// =============================================================================

// UsageRecord is one claim's quota consumption, written exactly once when the
// claim transitions to COMPLETED. ClaimID doubles as the idempotency key:
// the store refuses a second record for the same claim.
type UsageRecord struct {
	ClaimID      ClaimID
	ClaimantID   ClaimantID
	SubProgramID SubProgramID
	FiscalYear   int
	Amount       decimal.Decimal
	RecordedAt   time.Time
}

// UsageSnapshot is the computed consumption for one (claimant, sub-program)
// pair: the requested fiscal year plus lifetime totals. Zero-valued when no
// usage exists yet (lazy default, no initialization step required).
type UsageSnapshot struct {
	FiscalYear     int
	AmountYear     decimal.Decimal
	AmountLifetime decimal.Decimal
	ClaimsYear     int
	ClaimsLifetime int
}

// ZeroUsage returns the lazy default snapshot for a fiscal year.
func ZeroUsage(fy int) UsageSnapshot {
	return UsageSnapshot{
		FiscalYear:     fy,
		AmountYear:     decimal.Zero,
		AmountLifetime: decimal.Zero,
	}
}
