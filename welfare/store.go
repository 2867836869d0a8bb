/*
store.go - Persistence interfaces for claims, catalog, and quota usage

PURPOSE:
  Defines the interface between the domain logic and the database. Different
  implementations can use SQLite or in-memory storage; the semantics below
  are what the engine's correctness rests on.

KEY CONTRACTS:
  Claims:
    ApplyClaimMutation is a status-guarded compare-and-set. Two concurrent
    approval attempts on the same claim race on the guard: exactly one
    observes applied=true, the other sees the post-transition status and
    fails its precondition. No partial writes.

  Usage (quota):
    AppendUsage is APPEND-ONLY with ClaimID as the idempotency key. A second
    record for the same claim returns ErrDuplicateUsage. Snapshots are
    derived by replaying records, so totals can never drift from the claims
    that produced them.

  WithTx:
    The manager-approval step flips claim status and appends usage in ONE
    unit of work. Either both land or neither does - a claim must never be
    COMPLETED with quota uncharged.

LOOKUPS:
  Get* methods return (nil, nil) when the entity is absent; the service layer
  maps that to the NotFound sentinels.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (WAL, real transactions)
  - welfare/store: in-memory for tests/dev
*/
package welfare

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG STORE - Programs, sub-programs, claimants
// =============================================================================

type CatalogStore interface {
	// SaveProgram upserts a program.
	SaveProgram(ctx context.Context, p Program) error
	GetProgram(ctx context.Context, id ProgramID) (*Program, error)
	GetProgramByCode(ctx context.Context, code string) (*Program, error)
	// ListPrograms returns programs ordered by sort order.
	ListPrograms(ctx context.Context, activeOnly bool) ([]Program, error)
	// DeleteProgram hard-deletes a program. Returns ErrProgramInUse when any
	// claim references one of its sub-programs; deactivate instead.
	DeleteProgram(ctx context.Context, id ProgramID) error

	SaveSubProgram(ctx context.Context, sp SubProgram) error
	GetSubProgram(ctx context.Context, id SubProgramID) (*SubProgram, error)
	ListSubPrograms(ctx context.Context, programID ProgramID) ([]SubProgram, error)
	// DeleteSubProgram hard-deletes a sub-program. Returns ErrProgramInUse
	// when claims exist against it.
	DeleteSubProgram(ctx context.Context, id SubProgramID) error

	SaveClaimant(ctx context.Context, c Claimant) error
	GetClaimant(ctx context.Context, id ClaimantID) (*Claimant, error)
	ListClaimants(ctx context.Context) ([]Claimant, error)
}

// =============================================================================
// CLAIM STORE - Claims, mutations, comments
// =============================================================================

// ClaimMutation is a status-guarded update. The write applies only when the
// claim's current status is one of FromStatuses; non-nil fields are set
// alongside the new status in the same write.
type ClaimMutation struct {
	ID           ClaimID
	FromStatuses []ClaimStatus
	To           ClaimStatus

	AdminApproverID   *string
	AdminApprovedAt   *time.Time
	ManagerApproverID *string
	ManagerApprovedAt *time.Time
	ApprovedAmount    *decimal.Decimal
	RejectedBy        *string
	RejectionReason   *string
	CompletedAt       *time.Time

	UpdatedAt time.Time
}

type ClaimStore interface {
	// CreateClaim inserts a new claim (always PENDING).
	CreateClaim(ctx context.Context, c Claim) error
	GetClaim(ctx context.Context, id ClaimID) (*Claim, error)
	ListClaimsByClaimant(ctx context.Context, id ClaimantID) ([]Claim, error)
	ListClaimsByStatus(ctx context.Context, status ClaimStatus) ([]Claim, error)

	// ApplyClaimMutation performs the compare-and-set transition. applied is
	// false when the status guard did not match; the claim is untouched.
	ApplyClaimMutation(ctx context.Context, m ClaimMutation) (applied bool, err error)

	// AppendComment adds a comment. Append-only.
	AppendComment(ctx context.Context, c Comment) error
	// ListComments returns comments oldest-first.
	ListComments(ctx context.Context, claimID ClaimID) ([]Comment, error)
}

// =============================================================================
// USAGE STORE - Append-only quota consumption
// =============================================================================

type UsageStore interface {
	// AppendUsage records a completed claim's quota effect. Returns
	// ErrDuplicateUsage when a record for the claim already exists.
	AppendUsage(ctx context.Context, rec UsageRecord) error
	// LoadUsage returns all usage records for a (claimant, sub-program) pair,
	// across all fiscal years, oldest-first.
	LoadUsage(ctx context.Context, claimantID ClaimantID, subProgramID SubProgramID) ([]UsageRecord, error)
	// UsageExists checks whether a claim's usage was already recorded.
	UsageExists(ctx context.Context, claimID ClaimID) (bool, error)
}

// =============================================================================
// COMPOSED STORE
// =============================================================================

// Store is the full persistence surface the engine needs.
type Store interface {
	CatalogStore
	ClaimStore
	UsageStore
}

// TxStore wraps Store with transaction support. WithTx executes fn within a
// transaction: fn returning an error rolls everything back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
