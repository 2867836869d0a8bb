/*
claims.go - Claim lifecycle: state machine and service

PURPOSE:
  Governs a claim from submission through dual approval or rejection, and is
  the single place where quota is charged.

STATE MACHINE:

  PENDING ──(claimant comment)──▶ IN_REVIEW
     │                                │
     └────────┬─────────────────────┘
              ▼
       ADMIN_APPROVED ──(manager approves)──▶ COMPLETED  [terminal]
              │
  PENDING / IN_REVIEW / ADMIN_APPROVED ──(reject)──▶ REJECTED  [terminal]

  Terminal states permit no further mutation. Every transition is a
  status-guarded compare-and-set at the store, so concurrent reviewers race
  on the guard: exactly one wins, the loser gets InvalidStateTransition.

THE ONE-WAY DOOR:
  Manager approval flips ADMIN_APPROVED -> COMPLETED and appends the usage
  record inside ONE storage transaction. The CAS guarantees the pair runs at
  most once per claim; the usage table's claim-ID constraint backstops it.
  A failure anywhere rolls back both - a claim is never COMPLETED with
  quota uncharged, and quota is never charged for an uncompleted claim.

ROLE CHECKS:
  Caller identity is trusted (external access control); the service checks
  only the role's capability and the claim's status precondition.

SEE ALSO:
  - validator.go: Submission-time checks
  - ledger.go: Usage recording
  - store.go: ApplyClaimMutation / WithTx contracts
*/
package welfare

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CLAIM SERVICE
// =============================================================================

// ClaimService orchestrates the claim lifecycle.
type ClaimService struct {
	Store     TxStore
	Validator *Validator
	Ledger    *QuotaLedger
	Notifier  Notifier
	Audit     AuditSink
	Now       Clock
}

// NewClaimService wires a service over a transactional store. Notifier and
// audit default to the log-backed sinks; the clock defaults to time.Now.
func NewClaimService(store TxStore) *ClaimService {
	ledger := NewQuotaLedger(store)
	return &ClaimService{
		Store:     store,
		Validator: NewValidator(store, ledger),
		Ledger:    ledger,
		Notifier:  LogNotifier{},
		Audit:     LogAuditSink{},
		Now:       time.Now,
	}
}

// SubmitClaimInput carries everything a submission needs. Documents are
// descriptors already uploaded to the external blob store.
type SubmitClaimInput struct {
	ClaimantID          ClaimantID
	SubProgramID        SubProgramID
	Nights              *int
	BeneficiaryName     string
	BeneficiaryRelation string
	Documents           []Document
}

// SubmitClaim validates and creates a claim in PENDING. The fiscal year is
// always the current one, recomputed per request from the injected clock.
func (s *ClaimService) SubmitClaim(ctx context.Context, in SubmitClaimInput) (*Claim, error) {
	now := s.Now().UTC()
	fy := FiscalYearOf(now)

	claimant, err := s.Store.GetClaimant(ctx, in.ClaimantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve claimant: %w", err)
	}
	if claimant == nil || !claimant.Active {
		return nil, ErrClaimantNotFound
	}

	admission, err := s.Validator.Validate(ctx, Submission{
		ClaimantID:   in.ClaimantID,
		SubProgramID: in.SubProgramID,
		Nights:       in.Nights,
		FiscalYear:   fy,
	})
	if err != nil {
		return nil, err
	}

	if err := s.checkRequiredDocuments(ctx, admission.SubProgram.ProgramID, in.Documents); err != nil {
		return nil, err
	}

	claim := Claim{
		ID:                  ClaimID(uuid.NewString()),
		ClaimantID:          in.ClaimantID,
		SubProgramID:        in.SubProgramID,
		FiscalYear:          fy,
		RequestedAmount:     admission.Amount,
		Nights:              in.Nights,
		BeneficiaryName:     in.BeneficiaryName,
		BeneficiaryRelation: in.BeneficiaryRelation,
		Status:              StatusPending,
		Documents:           in.Documents,
		SubmittedAt:         now,
		UpdatedAt:           now,
	}

	if err := s.Store.CreateClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to create claim: %w", err)
	}

	s.Audit.Record(ctx, AuditEvent{Action: "claim.submit", EntityType: "claim", EntityID: string(claim.ID), ActorID: string(in.ClaimantID)})
	s.Notifier.Notify(ctx, Notification{
		ClaimantID: in.ClaimantID,
		Type:       NotifyClaimSubmitted,
		Title:      "Claim submitted",
		Message:    fmt.Sprintf("Your claim for %s (%s) was submitted and is pending review.", admission.SubProgram.Name, admission.Amount),
		ClaimID:    claim.ID,
	})

	return &claim, nil
}

// checkRequiredDocuments rejects submissions missing any document the parent
// program marks as required. Matching is by descriptor name.
func (s *ClaimService) checkRequiredDocuments(ctx context.Context, programID ProgramID, docs []Document) error {
	program, err := s.Store.GetProgram(ctx, programID)
	if err != nil {
		return fmt.Errorf("failed to resolve program: %w", err)
	}
	if program == nil {
		return ErrProgramNotFound
	}

	attached := make(map[string]bool, len(docs))
	for _, d := range docs {
		attached[strings.ToLower(d.FileName)] = true
	}
	for _, spec := range program.RequiredDocuments {
		if spec.Required && !attached[strings.ToLower(spec.Name)] {
			return &ValidationError{Field: "documents", Message: "missing required document: " + spec.Name}
		}
	}
	return nil
}

// =============================================================================
// APPROVAL TRANSITIONS
// =============================================================================

// ApproveAsAdmin moves a PENDING or IN_REVIEW claim to ADMIN_APPROVED.
func (s *ClaimService) ApproveAsAdmin(ctx context.Context, claimID ClaimID, reviewer Reviewer, comment string) (*Claim, error) {
	if !reviewer.Role.Can(CapAdminApprove) {
		return nil, ErrForbidden
	}

	claim, err := s.loadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !claim.Status.CanTransitionTo(StatusAdminApproved) {
		return nil, &InvalidTransitionError{ClaimID: claimID, From: claim.Status, To: StatusAdminApproved}
	}

	now := s.Now().UTC()
	applied, err := s.Store.ApplyClaimMutation(ctx, ClaimMutation{
		ID:              claimID,
		FromStatuses:    []ClaimStatus{StatusPending, StatusInReview},
		To:              StatusAdminApproved,
		AdminApproverID: &reviewer.ID,
		AdminApprovedAt: &now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply admin approval: %w", err)
	}
	if !applied {
		return nil, s.transitionConflict(ctx, s.Store, claimID, StatusAdminApproved)
	}

	if comment != "" {
		s.appendReviewerComment(ctx, claimID, reviewer.ID, comment)
	}
	s.Audit.Record(ctx, AuditEvent{Action: "claim.admin_approve", EntityType: "claim", EntityID: string(claimID), ActorID: reviewer.ID})
	s.Notifier.Notify(ctx, Notification{
		ClaimantID: claim.ClaimantID,
		Type:       NotifyClaimAdminApproved,
		Title:      "Claim approved by admin",
		Message:    "Your claim passed the first review and awaits manager approval.",
		ClaimID:    claimID,
	})

	return s.loadClaim(ctx, claimID)
}

// ApproveAsManager finalizes an ADMIN_APPROVED claim as COMPLETED. The
// approved amount defaults to the requested amount; an override may only
// lower it. Status flip and quota charge commit atomically.
func (s *ClaimService) ApproveAsManager(ctx context.Context, claimID ClaimID, reviewer Reviewer, approvedAmount *decimal.Decimal, comment string) (*Claim, error) {
	if !reviewer.Role.Can(CapManagerApprove) {
		return nil, ErrForbidden
	}

	claim, err := s.loadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusAdminApproved {
		return nil, &InvalidTransitionError{ClaimID: claimID, From: claim.Status, To: StatusCompleted}
	}

	amount := claim.RequestedAmount
	if approvedAmount != nil {
		if !approvedAmount.IsPositive() {
			return nil, &ValidationError{Field: "approved_amount", Message: "approved amount must be > 0"}
		}
		if approvedAmount.GreaterThan(claim.RequestedAmount) {
			return nil, &ValidationError{Field: "approved_amount", Message: "approved amount cannot exceed requested amount"}
		}
		amount = *approvedAmount
	}

	now := s.Now().UTC()
	err = s.Store.WithTx(ctx, func(tx Store) error {
		applied, err := tx.ApplyClaimMutation(ctx, ClaimMutation{
			ID:                claimID,
			FromStatuses:      []ClaimStatus{StatusAdminApproved},
			To:                StatusCompleted,
			ManagerApproverID: &reviewer.ID,
			ManagerApprovedAt: &now,
			ApprovedAmount:    &amount,
			CompletedAt:       &now,
			UpdatedAt:         now,
		})
		if err != nil {
			return fmt.Errorf("failed to apply manager approval: %w", err)
		}
		if !applied {
			return s.transitionConflict(ctx, tx, claimID, StatusCompleted)
		}
		charged, err := tx.UsageExists(ctx, claimID)
		if err != nil {
			return fmt.Errorf("failed to check existing usage: %w", err)
		}
		if charged {
			return ErrDuplicateUsage
		}
		return NewQuotaLedger(tx).RecordUsage(ctx, UsageRecord{
			ClaimID:      claimID,
			ClaimantID:   claim.ClaimantID,
			SubProgramID: claim.SubProgramID,
			FiscalYear:   claim.FiscalYear,
			Amount:       amount,
			RecordedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	if comment != "" {
		s.appendReviewerComment(ctx, claimID, reviewer.ID, comment)
	}
	s.Audit.Record(ctx, AuditEvent{Action: "claim.manager_approve", EntityType: "claim", EntityID: string(claimID), ActorID: reviewer.ID})
	s.Notifier.Notify(ctx, Notification{
		ClaimantID: claim.ClaimantID,
		Type:       NotifyClaimCompleted,
		Title:      "Claim completed",
		Message:    fmt.Sprintf("Your claim was approved for %s.", amount),
		ClaimID:    claimID,
	})

	return s.loadClaim(ctx, claimID)
}

// Reject moves any non-terminal claim to REJECTED. Requires a non-empty
// reason; never touches the quota ledger.
func (s *ClaimService) Reject(ctx context.Context, claimID ClaimID, reviewer Reviewer, reason string) (*Claim, error) {
	if !reviewer.Role.Can(CapReject) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "rejection reason must not be empty"}
	}

	claim, err := s.loadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status.Terminal() {
		return nil, &InvalidTransitionError{ClaimID: claimID, From: claim.Status, To: StatusRejected}
	}

	now := s.Now().UTC()
	applied, err := s.Store.ApplyClaimMutation(ctx, ClaimMutation{
		ID:              claimID,
		FromStatuses:    []ClaimStatus{StatusPending, StatusInReview, StatusAdminApproved},
		To:              StatusRejected,
		RejectedBy:      &reviewer.ID,
		RejectionReason: &reason,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply rejection: %w", err)
	}
	if !applied {
		return nil, s.transitionConflict(ctx, s.Store, claimID, StatusRejected)
	}

	s.Audit.Record(ctx, AuditEvent{Action: "claim.reject", EntityType: "claim", EntityID: string(claimID), ActorID: reviewer.ID})
	s.Notifier.Notify(ctx, Notification{
		ClaimantID: claim.ClaimantID,
		Type:       NotifyClaimRejected,
		Title:      "Claim rejected",
		Message:    "Your claim was rejected: " + reason,
		ClaimID:    claimID,
	})

	return s.loadClaim(ctx, claimID)
}

// =============================================================================
// COMMENT / REVISION SUB-FLOW
// =============================================================================

// AddComment appends a comment to a claim. A claimant comment while the
// claim is PENDING pulls it into IN_REVIEW; a reviewer comment notifies the
// claimant. Claimants may only comment on their own claims.
func (s *ClaimService) AddComment(ctx context.Context, claimID ClaimID, authorID string, kind AuthorKind, text string) (*Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Field: "text", Message: "comment text must not be empty"}
	}

	claim, err := s.loadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if kind == AuthorClaimant && string(claim.ClaimantID) != authorID {
		return nil, ErrForbidden
	}

	now := s.Now().UTC()
	comment := Comment{
		ID:         CommentID(uuid.NewString()),
		ClaimID:    claimID,
		AuthorID:   authorID,
		AuthorKind: kind,
		Text:       text,
		CreatedAt:  now,
	}
	if err := s.Store.AppendComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to append comment: %w", err)
	}

	if kind == AuthorClaimant && claim.Status == StatusPending {
		// Best-effort transition: if a reviewer got there first the comment
		// still stands, the claim just keeps its newer status.
		if _, err := s.Store.ApplyClaimMutation(ctx, ClaimMutation{
			ID:           claimID,
			FromStatuses: []ClaimStatus{StatusPending},
			To:           StatusInReview,
			UpdatedAt:    now,
		}); err != nil {
			return nil, fmt.Errorf("failed to move claim into review: %w", err)
		}
	}
	if kind == AuthorReviewer {
		s.Notifier.Notify(ctx, Notification{
			ClaimantID: claim.ClaimantID,
			Type:       NotifyReviewerComment,
			Title:      "New comment on your claim",
			Message:    text,
			ClaimID:    claimID,
		})
	}

	return &comment, nil
}

// ListComments returns a claim's comments oldest-first. A claimant may only
// read their own claim's thread; reviewers may read any.
func (s *ClaimService) ListComments(ctx context.Context, claimID ClaimID, requesterID string, kind AuthorKind) ([]Comment, error) {
	claim, err := s.loadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if kind == AuthorClaimant && string(claim.ClaimantID) != requesterID {
		return nil, ErrForbidden
	}
	return s.Store.ListComments(ctx, claimID)
}

// =============================================================================
// QUERIES
// =============================================================================

// GetClaim returns a claim or ErrClaimNotFound.
func (s *ClaimService) GetClaim(ctx context.Context, claimID ClaimID) (*Claim, error) {
	return s.loadClaim(ctx, claimID)
}

// QuotaUsage exposes the ledger snapshot for callers (dashboards, the
// submission form's remaining-balance display).
func (s *ClaimService) QuotaUsage(ctx context.Context, claimantID ClaimantID, subProgramID SubProgramID, fy int) (UsageSnapshot, error) {
	return s.Ledger.Usage(ctx, claimantID, subProgramID, fy)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *ClaimService) loadClaim(ctx context.Context, claimID ClaimID) (*Claim, error) {
	claim, err := s.Store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}
	return claim, nil
}

// transitionConflict reports a CAS miss: another actor moved the claim first.
// The reloaded status names the state the loser actually observed. The reload
// goes through the caller's store so it is safe inside an open transaction.
func (s *ClaimService) transitionConflict(ctx context.Context, store Store, claimID ClaimID, attempted ClaimStatus) error {
	claim, err := store.GetClaim(ctx, claimID)
	if err != nil || claim == nil {
		return &InvalidTransitionError{ClaimID: claimID, To: attempted}
	}
	return &InvalidTransitionError{ClaimID: claimID, From: claim.Status, To: attempted}
}

func (s *ClaimService) appendReviewerComment(ctx context.Context, claimID ClaimID, reviewerID, text string) {
	// Approval comments are best-effort; the transition already committed.
	_ = s.Store.AppendComment(ctx, Comment{
		ID:         CommentID(uuid.NewString()),
		ClaimID:    claimID,
		AuthorID:   reviewerID,
		AuthorKind: AuthorReviewer,
		Text:       text,
		CreatedAt:  s.Now().UTC(),
	})
}
