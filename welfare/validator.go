/*
validator.go - Submission-time admissibility checks

PURPOSE:
  Decides, at submission time, whether a claim is admissible and what amount
  it is eligible for. Read-only with respect to storage: it consults the
  catalog and the quota ledger but never mutates either - only the state
  machine's COMPLETED transition charges quota.

ADVISORY, NOT ENFORCEMENT:
  A claim can be valid at submission yet still lose a race with concurrent
  submissions for shared quota; the ledger write at completion time is the
  actual enforcement point. The validator exists so claimants get immediate,
  actionable feedback instead of a rejection days later.

CAP SEMANTICS:
  Amounts exceeding max_per_request are REJECTED, not clamped. Silently
  shrinking a financial amount hides errors from the claimant and the audit
  trail; an explicit QuotaExceeded tells both exactly what happened.
*/
package welfare

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Submission is the validator's input.
type Submission struct {
	ClaimantID   ClaimantID
	SubProgramID SubProgramID
	Nights       *int // required and > 0 for per_night sub-programs
	FiscalYear   int
}

// Admission is a successful validation: the resolved sub-program and the
// amount the claim is eligible for.
type Admission struct {
	SubProgram *SubProgram
	Amount     decimal.Decimal
}

// Validator checks submissions against the catalog and the quota ledger.
type Validator struct {
	Catalog CatalogStore
	Ledger  *QuotaLedger
}

func NewValidator(catalog CatalogStore, ledger *QuotaLedger) *Validator {
	return &Validator{Catalog: catalog, Ledger: ledger}
}

// Validate runs the full admissibility check. On failure the error is one of
// ErrSubProgramNotFound, ErrValidation, or ErrQuotaExceeded (wrapped with
// limit context).
func (v *Validator) Validate(ctx context.Context, sub Submission) (*Admission, error) {
	// 1. Resolve sub-program; inactive entries (or inactive parents) are
	// indistinguishable from absent ones to the caller.
	sp, err := v.Catalog.GetSubProgram(ctx, sub.SubProgramID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sub-program: %w", err)
	}
	if sp == nil || !sp.Active {
		return nil, ErrSubProgramNotFound
	}
	program, err := v.Catalog.GetProgram(ctx, sp.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve program: %w", err)
	}
	if program == nil || !program.Active {
		return nil, ErrSubProgramNotFound
	}

	// 2-3. Candidate amount from the unit type.
	candidate := sp.Amount
	switch sp.Unit {
	case UnitPerNight:
		if sub.Nights == nil || *sub.Nights <= 0 {
			return nil, &ValidationError{Field: "nights", Message: "nights required and must be > 0 for per-night benefits"}
		}
		candidate = sp.Amount.Mul(decimal.NewFromInt(int64(*sub.Nights)))
	case UnitLumpSum:
		if sub.Nights != nil {
			return nil, &ValidationError{Field: "nights", Message: "nights not applicable to lump-sum benefits"}
		}
	}

	// 4. Per-request cap: reject, never clamp.
	if sp.MaxPerRequest != nil && candidate.GreaterThan(*sp.MaxPerRequest) {
		return nil, &QuotaExceededError{
			Limit:      "max_per_request",
			Configured: *sp.MaxPerRequest,
			Used:       decimal.Zero,
			Requested:  candidate,
			WouldBe:    candidate,
		}
	}

	// 5. Current usage for (claimant, sub-program, fiscal year).
	usage, err := v.Ledger.Usage(ctx, sub.ClaimantID, sub.SubProgramID, sub.FiscalYear)
	if err != nil {
		return nil, err
	}

	// 6. Amount limits.
	if sp.MaxPerYear != nil {
		if wouldBe := usage.AmountYear.Add(candidate); wouldBe.GreaterThan(*sp.MaxPerYear) {
			return nil, &QuotaExceededError{
				Limit:      "max_per_year",
				Configured: *sp.MaxPerYear,
				Used:       usage.AmountYear,
				Requested:  candidate,
				WouldBe:    wouldBe,
			}
		}
	}
	if sp.MaxLifetime != nil {
		if wouldBe := usage.AmountLifetime.Add(candidate); wouldBe.GreaterThan(*sp.MaxLifetime) {
			return nil, &QuotaExceededError{
				Limit:      "max_lifetime",
				Configured: *sp.MaxLifetime,
				Used:       usage.AmountLifetime,
				Requested:  candidate,
				WouldBe:    wouldBe,
			}
		}
	}

	// 7. Claim-count limits.
	if sp.MaxClaimsPerYear != nil && usage.ClaimsYear+1 > *sp.MaxClaimsPerYear {
		return nil, &ClaimCountExceededError{
			Limit:      "max_claims_per_year",
			Configured: *sp.MaxClaimsPerYear,
			Used:       usage.ClaimsYear,
		}
	}
	if sp.MaxClaimsLifetime != nil && usage.ClaimsLifetime+1 > *sp.MaxClaimsLifetime {
		return nil, &ClaimCountExceededError{
			Limit:      "max_claims_lifetime",
			Configured: *sp.MaxClaimsLifetime,
			Used:       usage.ClaimsLifetime,
		}
	}

	return &Admission{SubProgram: sp, Amount: candidate}, nil
}
