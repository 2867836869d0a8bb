/*
ledger.go - Quota ledger: the authoritative record of consumed benefits

PURPOSE:
  Answers "how much has this claimant already consumed" for one sub-program,
  per fiscal year and over a lifetime. Only terminal approval counts against
  quota: rejections and in-flight claims never appear here.

WHY APPEND-ONLY RECORDS INSTEAD OF MUTABLE COUNTERS?
  Usage is derived data that could always be recomputed from completed
  claims. Storing one immutable record per completed claim (keyed by the
  claim ID) keeps the two views structurally incapable of drifting:

    usedAmountYear == sum(records in that fiscal year)

  and gives idempotency for free - the store's uniqueness constraint on the
  claim ID makes a re-run of the completion step a detectable no-op instead
  of a double-count.

CONCURRENCY:
  Records for different claimants/sub-programs are independent. Two claims
  for the SAME key completing concurrently serialize at the store's append
  (distinct claim IDs, so both land; the sums include both). The same claim
  completing twice is blocked by the claim-ID constraint.

SEE ALSO:
  - claims.go: The only caller of RecordUsage (COMPLETED transition)
  - validator.go: Read-only consumer of Usage
*/
package welfare

import (
	"context"
	"fmt"
)

// QuotaLedger computes usage snapshots and records completed-claim usage.
type QuotaLedger struct {
	Store UsageStore
}

func NewQuotaLedger(store UsageStore) *QuotaLedger {
	return &QuotaLedger{Store: store}
}

// Usage returns the consumption snapshot for (claimant, sub-program) in the
// given fiscal year. Returns zeros when no usage exists yet.
func (l *QuotaLedger) Usage(ctx context.Context, claimantID ClaimantID, subProgramID SubProgramID, fy int) (UsageSnapshot, error) {
	records, err := l.Store.LoadUsage(ctx, claimantID, subProgramID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("failed to load usage: %w", err)
	}

	snap := ZeroUsage(fy)
	for _, rec := range records {
		snap.AmountLifetime = snap.AmountLifetime.Add(rec.Amount)
		snap.ClaimsLifetime++
		if rec.FiscalYear == fy {
			snap.AmountYear = snap.AmountYear.Add(rec.Amount)
			snap.ClaimsYear++
		}
	}
	return snap, nil
}

// RecordUsage appends one claim's quota effect. Called exactly once, at the
// moment the claim is finalized as COMPLETED; the claim-ID uniqueness
// constraint turns any re-invocation into ErrDuplicateUsage.
func (l *QuotaLedger) RecordUsage(ctx context.Context, rec UsageRecord) error {
	if rec.ClaimID == "" {
		return &ValidationError{Field: "claim_id", Message: "usage record requires a claim id"}
	}
	if !rec.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "usage amount must be > 0"}
	}
	if err := l.Store.AppendUsage(ctx, rec); err != nil {
		return fmt.Errorf("failed to record usage for claim %s: %w", rec.ClaimID, err)
	}
	return nil
}
