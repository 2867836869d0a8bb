package welfare_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/welfare-engine/welfare"
	memstore "github.com/warp/welfare-engine/welfare/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	testAdmin   = welfare.Reviewer{ID: "rev-admin", Role: welfare.RoleAdmin}
	testManager = welfare.Reviewer{ID: "rev-manager", Role: welfare.RoleManager}
	testPrimary = welfare.Reviewer{ID: "rev-primary", Role: welfare.RolePrimary}
)

// newTestService seeds a marriage program (requires a certificate, once in a
// lifetime) and a hospitalization program (per-night), plus one claimant.
func newTestService(t *testing.T) *welfare.ClaimService {
	t.Helper()
	store := memstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.SaveProgram(ctx, welfare.Program{
		ID:     "prog-marriage",
		Code:   "marriage",
		Name:   "Marriage Gift",
		Active: true,
		RequiredDocuments: []welfare.DocumentSpec{
			{Name: "Marriage certificate", Required: true},
		},
	}))
	require.NoError(t, store.SaveSubProgram(ctx, welfare.SubProgram{
		ID:                "sub-marriage-gift",
		ProgramID:         "prog-marriage",
		Code:              "gift",
		Name:              "Marriage Gift",
		Unit:              welfare.UnitLumpSum,
		Amount:            dec("3000"),
		MaxClaimsLifetime: intPtr(1),
		Active:            true,
	}))
	require.NoError(t, store.SaveProgram(ctx, welfare.Program{
		ID:     "prog-medical",
		Code:   "medical",
		Name:   "Medical Assistance",
		Active: true,
	}))
	require.NoError(t, store.SaveSubProgram(ctx, welfare.SubProgram{
		ID:         "sub-medical-hospital",
		ProgramID:  "prog-medical",
		Code:       "hospitalization",
		Name:       "Hospitalization",
		Unit:       welfare.UnitPerNight,
		Amount:     dec("1000"),
		MaxPerYear: decPtr("30000"),
		Active:     true,
	}))
	require.NoError(t, store.SaveClaimant(ctx, welfare.Claimant{
		ID:     "emp-1",
		Name:   "Somchai Jaidee",
		Active: true,
	}))

	svc := welfare.NewClaimService(store)
	svc.Notifier = welfare.NopNotifier{}
	svc.Audit = welfare.NopAuditSink{}
	svc.Now = func() time.Time {
		return time.Date(2025, time.September, 15, 10, 0, 0, 0, time.UTC)
	}
	return svc
}

func marriageDocs() []welfare.Document {
	return []welfare.Document{
		{FileName: "Marriage certificate", FileURL: "https://files.local/cert.pdf"},
	}
}

func submitMarriage(t *testing.T, svc *welfare.ClaimService) *welfare.Claim {
	t.Helper()
	claim, err := svc.SubmitClaim(context.Background(), welfare.SubmitClaimInput{
		ClaimantID:   "emp-1",
		SubProgramID: "sub-marriage-gift",
		Documents:    marriageDocs(),
	})
	require.NoError(t, err)
	return claim
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmitClaim_HappyPath(t *testing.T) {
	// GIVEN: An active claimant with the required document attached
	// THEN: Claim lands in PENDING with the fiscal year from the clock
	svc := newTestService(t)

	claim := submitMarriage(t, svc)

	assert.Equal(t, welfare.StatusPending, claim.Status)
	assert.Equal(t, "3000", claim.RequestedAmount.String())
	assert.Equal(t, 2026, claim.FiscalYear, "September 2025 falls in FY2026")
	assert.Nil(t, claim.ApprovedAmount)
	assert.NotEmpty(t, claim.ID)
}

func TestSubmitClaim_MissingRequiredDocument(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SubmitClaim(context.Background(), welfare.SubmitClaimInput{
		ClaimantID:   "emp-1",
		SubProgramID: "sub-marriage-gift",
	})
	assert.ErrorIs(t, err, welfare.ErrValidation)
}

func TestSubmitClaim_UnknownClaimant(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SubmitClaim(context.Background(), welfare.SubmitClaimInput{
		ClaimantID:   "emp-ghost",
		SubProgramID: "sub-marriage-gift",
		Documents:    marriageDocs(),
	})
	assert.ErrorIs(t, err, welfare.ErrClaimantNotFound)
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestClaimLifecycle_FullApproval(t *testing.T) {
	// GIVEN: A pending marriage claim
	// WHEN: Admin approves, then manager approves
	// THEN: COMPLETED, approved amount set, quota charged exactly once
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	claim, err := svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "Certificate checks out.")
	require.NoError(t, err)
	assert.Equal(t, welfare.StatusAdminApproved, claim.Status)
	assert.Equal(t, "rev-admin", *claim.AdminApproverID)

	claim, err = svc.ApproveAsManager(ctx, claim.ID, testManager, nil, "")
	require.NoError(t, err)
	assert.Equal(t, welfare.StatusCompleted, claim.Status)
	require.NotNil(t, claim.ApprovedAmount)
	assert.Equal(t, "3000", claim.ApprovedAmount.String())
	assert.NotNil(t, claim.CompletedAt)

	snap, err := svc.QuotaUsage(ctx, "emp-1", "sub-marriage-gift", claim.FiscalYear)
	require.NoError(t, err)
	assert.Equal(t, "3000", snap.AmountYear.String())
	assert.Equal(t, 1, snap.ClaimsLifetime)
}

func TestManagerApproval_LowersAmount(t *testing.T) {
	// GIVEN: An admin-approved claim for 3000
	// WHEN: Manager approves 2500
	// THEN: The lowered amount is what quota is charged with
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "")
	require.NoError(t, err)

	lowered := dec("2500")
	claim, err = svc.ApproveAsManager(ctx, claim.ID, testManager, &lowered, "")
	require.NoError(t, err)
	assert.Equal(t, "2500", claim.ApprovedAmount.String())

	snap, err := svc.QuotaUsage(ctx, "emp-1", "sub-marriage-gift", claim.FiscalYear)
	require.NoError(t, err)
	assert.Equal(t, "2500", snap.AmountYear.String())
}

func TestManagerApproval_CannotRaiseAmount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "")
	require.NoError(t, err)

	raised := dec("3500")
	_, err = svc.ApproveAsManager(ctx, claim.ID, testManager, &raised, "")
	assert.ErrorIs(t, err, welfare.ErrValidation)
}

func TestManagerApproval_RequiresAdminApprovalFirst(t *testing.T) {
	// GIVEN: A claim still PENDING
	// WHEN: Manager tries to finalize it
	// THEN: Invalid transition; no quota charged
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsManager(ctx, claim.ID, testManager, nil, "")
	assert.ErrorIs(t, err, welfare.ErrInvalidTransition)

	snap, err := svc.QuotaUsage(ctx, "emp-1", "sub-marriage-gift", claim.FiscalYear)
	require.NoError(t, err)
	assert.True(t, snap.AmountYear.IsZero())
}

func TestDoubleCompletion_SecondAttemptFails(t *testing.T) {
	// GIVEN: A completed claim
	// WHEN: Manager approves again
	// THEN: Invalid transition; quota charged exactly once
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "")
	require.NoError(t, err)
	_, err = svc.ApproveAsManager(ctx, claim.ID, testManager, nil, "")
	require.NoError(t, err)

	_, err = svc.ApproveAsManager(ctx, claim.ID, testManager, nil, "")
	assert.ErrorIs(t, err, welfare.ErrInvalidTransition)

	snap, err := svc.QuotaUsage(ctx, "emp-1", "sub-marriage-gift", claim.FiscalYear)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ClaimsLifetime)
	assert.Equal(t, "3000", snap.AmountLifetime.String())
}

func TestConcurrentCompletion_LoserGetsInvalidTransition(t *testing.T) {
	// GIVEN: Two managers finalizing the same admin-approved claim, where the
	//        rival wins between the loser's status precheck and its transaction
	// THEN: The loser returns promptly with an invalid-transition error and
	//       the ledger holds exactly one usage record
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "")
	require.NoError(t, err)

	rival := welfare.NewClaimService(svc.Store)
	rival.Notifier = welfare.NopNotifier{}
	rival.Audit = welfare.NopAuditSink{}
	rival.Now = svc.Now

	// The loser reads the clock after its precheck and before its transaction;
	// slot the rival's full completion into that window.
	base := svc.Now()
	interposed := false
	svc.Now = func() time.Time {
		if !interposed {
			interposed = true
			_, rivalErr := rival.ApproveAsManager(ctx, claim.ID, testManager, nil, "")
			assert.NoError(t, rivalErr)
		}
		return base
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.ApproveAsManager(ctx, claim.ID, testPrimary, nil, "")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, welfare.ErrInvalidTransition)
	case <-time.After(5 * time.Second):
		t.Fatal("losing completion attempt did not return")
	}

	snap, err := svc.QuotaUsage(ctx, "emp-1", "sub-marriage-gift", claim.FiscalYear)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ClaimsLifetime)
	assert.Equal(t, "3000", snap.AmountLifetime.String())

	final, err := svc.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, "rev-manager", *final.ManagerApproverID, "the rival's approval stands")
}

func TestManagerApproval_AlreadyChargedClaim_RolledBack(t *testing.T) {
	// GIVEN: A stray usage record already exists for the claim
	// WHEN: Manager approval runs
	// THEN: The whole transaction rolls back; the claim stays admin-approved
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "")
	require.NoError(t, err)

	require.NoError(t, svc.Store.AppendUsage(ctx, welfare.UsageRecord{
		ClaimID:      claim.ID,
		ClaimantID:   claim.ClaimantID,
		SubProgramID: claim.SubProgramID,
		FiscalYear:   claim.FiscalYear,
		Amount:       dec("3000"),
		RecordedAt:   svc.Now(),
	}))

	_, err = svc.ApproveAsManager(ctx, claim.ID, testManager, nil, "")
	assert.ErrorIs(t, err, welfare.ErrDuplicateUsage)

	unchanged, err := svc.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, welfare.StatusAdminApproved, unchanged.Status)

	snap, err := svc.QuotaUsage(ctx, "emp-1", "sub-marriage-gift", claim.FiscalYear)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ClaimsLifetime, "only the pre-existing record remains")
}

func TestReject_NeverTouchesQuota(t *testing.T) {
	// GIVEN: An admin-approved claim
	// WHEN: Rejecting it
	// THEN: REJECTED with reason recorded; ledger untouched
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "")
	require.NoError(t, err)

	claim, err = svc.Reject(ctx, claim.ID, testManager, "Duplicate of an earlier claim.")
	require.NoError(t, err)
	assert.Equal(t, welfare.StatusRejected, claim.Status)
	assert.Equal(t, "rev-manager", *claim.RejectedBy)
	assert.Equal(t, "Duplicate of an earlier claim.", *claim.RejectionReason)

	snap, err := svc.QuotaUsage(ctx, "emp-1", "sub-marriage-gift", claim.FiscalYear)
	require.NoError(t, err)
	assert.True(t, snap.AmountLifetime.IsZero())
}

func TestReject_RequiresReason(t *testing.T) {
	svc := newTestService(t)
	claim := submitMarriage(t, svc)

	_, err := svc.Reject(context.Background(), claim.ID, testAdmin, "   ")
	assert.ErrorIs(t, err, welfare.ErrValidation)
}

func TestReject_TerminalClaim_Fails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.Reject(ctx, claim.ID, testAdmin, "First rejection.")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, claim.ID, testAdmin, "Second rejection.")
	assert.ErrorIs(t, err, welfare.ErrInvalidTransition)
}

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestRoles_CapabilityEnforcement(t *testing.T) {
	// GIVEN: A pending claim
	// THEN: Manager cannot admin-approve; admin cannot finalize; primary can do both
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsAdmin(ctx, claim.ID, testManager, "")
	assert.ErrorIs(t, err, welfare.ErrForbidden)

	_, err = svc.ApproveAsAdmin(ctx, claim.ID, testPrimary, "")
	require.NoError(t, err)

	_, err = svc.ApproveAsManager(ctx, claim.ID, testAdmin, nil, "")
	assert.ErrorIs(t, err, welfare.ErrForbidden)

	completed, err := svc.ApproveAsManager(ctx, claim.ID, testPrimary, nil, "")
	require.NoError(t, err)
	assert.Equal(t, welfare.StatusCompleted, completed.Status)
}

// =============================================================================
// COMMENT / REVISION TESTS
// =============================================================================

func TestAddComment_ClaimantPullsPendingIntoReview(t *testing.T) {
	// GIVEN: A PENDING claim
	// WHEN: The claimant comments
	// THEN: Comment stored and the claim moves to IN_REVIEW
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	comment, err := svc.AddComment(ctx, claim.ID, "emp-1", welfare.AuthorClaimant, "Uploaded a clearer scan.")
	require.NoError(t, err)
	assert.Equal(t, welfare.AuthorClaimant, comment.AuthorKind)

	claim, err = svc.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, welfare.StatusInReview, claim.Status)
}

func TestAddComment_ReviewerDoesNotChangeStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.AddComment(ctx, claim.ID, "rev-admin", welfare.AuthorReviewer, "Please re-upload page 2.")
	require.NoError(t, err)

	claim, err = svc.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, welfare.StatusPending, claim.Status)
}

func TestAddComment_ClaimantCannotCommentOnOthersClaim(t *testing.T) {
	svc := newTestService(t)
	claim := submitMarriage(t, svc)

	_, err := svc.AddComment(context.Background(), claim.ID, "emp-2", welfare.AuthorClaimant, "Hello.")
	assert.ErrorIs(t, err, welfare.ErrForbidden)
}

func TestListComments_OwnershipEnforced(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.AddComment(ctx, claim.ID, "emp-1", welfare.AuthorClaimant, "First.")
	require.NoError(t, err)

	comments, err := svc.ListComments(ctx, claim.ID, "emp-1", welfare.AuthorClaimant)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	_, err = svc.ListComments(ctx, claim.ID, "emp-2", welfare.AuthorClaimant)
	assert.ErrorIs(t, err, welfare.ErrForbidden)

	// Reviewers may read any thread
	comments, err = svc.ListComments(ctx, claim.ID, "rev-admin", welfare.AuthorReviewer)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

// =============================================================================
// QUOTA INTEGRATION
// =============================================================================

func TestLifetimeLimit_SecondMarriageClaimRejected(t *testing.T) {
	// GIVEN: A completed once-in-a-lifetime claim
	// WHEN: Submitting the same benefit again, even years later
	// THEN: Rejected at submission
	svc := newTestService(t)
	ctx := context.Background()
	claim := submitMarriage(t, svc)

	_, err := svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "")
	require.NoError(t, err)
	_, err = svc.ApproveAsManager(ctx, claim.ID, testManager, nil, "")
	require.NoError(t, err)

	// Jump three fiscal years ahead
	svc.Now = func() time.Time {
		return time.Date(2028, time.September, 15, 10, 0, 0, 0, time.UTC)
	}

	_, err = svc.SubmitClaim(ctx, welfare.SubmitClaimInput{
		ClaimantID:   "emp-1",
		SubProgramID: "sub-marriage-gift",
		Documents:    marriageDocs(),
	})
	assert.ErrorIs(t, err, welfare.ErrQuotaExceeded)
}

func TestPerNightClaim_EndToEnd(t *testing.T) {
	// GIVEN: Hospitalization at 1000/night
	// WHEN: A 4-night claim goes through both approvals
	// THEN: 4000 charged against the yearly quota
	svc := newTestService(t)
	ctx := context.Background()

	nights := 4
	claim, err := svc.SubmitClaim(ctx, welfare.SubmitClaimInput{
		ClaimantID:   "emp-1",
		SubProgramID: "sub-medical-hospital",
		Nights:       &nights,
	})
	require.NoError(t, err)
	assert.Equal(t, "4000", claim.RequestedAmount.String())

	_, err = svc.ApproveAsAdmin(ctx, claim.ID, testAdmin, "")
	require.NoError(t, err)
	_, err = svc.ApproveAsManager(ctx, claim.ID, testManager, nil, "")
	require.NoError(t, err)

	snap, err := svc.QuotaUsage(ctx, "emp-1", "sub-medical-hospital", claim.FiscalYear)
	require.NoError(t, err)
	assert.Equal(t, "4000", snap.AmountYear.String())
}
