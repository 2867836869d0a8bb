package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/welfare-engine/api"
	"github.com/warp/welfare-engine/factory"
	"github.com/warp/welfare-engine/store/sqlite"
	"github.com/warp/welfare-engine/welfare"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router  http.Handler
	store   *sqlite.Store
	handler *api.Handler
}

// newTestServer wires a full router on a fresh in-memory database, seeds the
// default catalog and one claimant.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	programs, err := factory.NewCatalogFactory().ParseCatalog(factory.DefaultCatalogJSON)
	require.NoError(t, err)
	for _, p := range programs {
		require.NoError(t, store.SaveProgram(ctx, p.Program))
		for _, sp := range p.SubPrograms {
			require.NoError(t, store.SaveSubProgram(ctx, sp))
		}
	}
	require.NoError(t, store.SaveClaimant(ctx, welfare.Claimant{
		ID:     "emp-1",
		Name:   "Somchai Jaidee",
		Active: true,
	}))

	h := api.NewHandler(store)
	return &testServer{
		router:  api.NewRouter(h),
		store:   store,
		handler: h,
	}
}

// do performs a request and decodes the JSON response into out (if non-nil).
func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Reviewer-ID": "rev-admin", "X-Reviewer-Role": "admin"}
}

func managerHeaders() map[string]string {
	return map[string]string{"X-Reviewer-ID": "rev-manager", "X-Reviewer-Role": "manager"}
}

func (ts *testServer) submitMarriageClaim(t *testing.T) api.ClaimDTO {
	t.Helper()
	var claim api.ClaimDTO
	rec := ts.do(t, "POST", "/api/claimants/emp-1/claims", api.SubmitClaimRequest{
		SubProgramID: "sub-marriage-gift",
		Documents: []api.DocumentDTO{
			{FileName: "Marriage certificate", FileURL: "https://files.local/cert.pdf"},
		},
	}, nil, &claim)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return claim
}

// =============================================================================
// CLAIM LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_SubmitApproveComplete_FullFlow(t *testing.T) {
	// GIVEN: A seeded catalog and claimant
	// WHEN: Submit -> admin approve -> manager complete over HTTP
	// THEN: Statuses advance and the usage endpoint reflects the charge
	ts := newTestServer(t)

	claim := ts.submitMarriageClaim(t)
	assert.Equal(t, "pending", claim.Status)
	assert.Equal(t, "3000", claim.RequestedAmount)

	var approved api.ClaimDTO
	rec := ts.do(t, "POST", "/api/claims/"+claim.ID+"/approve",
		api.ApproveRequest{Comment: "Certificate verified."}, adminHeaders(), &approved)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "admin_approved", approved.Status)
	require.NotNil(t, approved.AdminApproverID)
	assert.Equal(t, "rev-admin", *approved.AdminApproverID)

	var completed api.ClaimDTO
	rec = ts.do(t, "POST", "/api/claims/"+claim.ID+"/complete",
		api.CompleteRequest{}, managerHeaders(), &completed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", completed.Status)
	require.NotNil(t, completed.ApprovedAmount)
	assert.Equal(t, "3000", *completed.ApprovedAmount)
	assert.NotNil(t, completed.CompletedAt)

	var usage api.UsageDTO
	rec = ts.do(t, "GET", "/api/claimants/emp-1/usage?sub_program_id=sub-marriage-gift", nil, nil, &usage)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3000", usage.AmountLifetime)
	assert.Equal(t, 1, usage.ClaimsLifetime)
}

func TestAPI_GetUsage_DefaultsToCurrentFiscalYear(t *testing.T) {
	// GIVEN: A service clock pinned inside fiscal year 2032 (Aug 2031)
	// WHEN: The usage endpoint is queried without a fiscal_year parameter
	// THEN: The snapshot defaults to the clock's fiscal year, not the host's
	ts := newTestServer(t)
	ts.handler.Claims.Now = func() time.Time {
		return time.Date(2031, time.August, 3, 9, 0, 0, 0, time.UTC)
	}

	var usage api.UsageDTO
	rec := ts.do(t, "GET", "/api/claimants/emp-1/usage?sub_program_id=sub-marriage-gift", nil, nil, &usage)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2032, usage.FiscalYear)
}

func TestAPI_CompleteWithLoweredAmount(t *testing.T) {
	ts := newTestServer(t)
	claim := ts.submitMarriageClaim(t)

	rec := ts.do(t, "POST", "/api/claims/"+claim.ID+"/approve", nil, adminHeaders(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	lowered := "2500"
	var completed api.ClaimDTO
	rec = ts.do(t, "POST", "/api/claims/"+claim.ID+"/complete",
		api.CompleteRequest{ApprovedAmount: &lowered}, managerHeaders(), &completed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, completed.ApprovedAmount)
	assert.Equal(t, "2500", *completed.ApprovedAmount)
}

func TestAPI_RejectWithReason(t *testing.T) {
	ts := newTestServer(t)
	claim := ts.submitMarriageClaim(t)

	var rejected api.ClaimDTO
	rec := ts.do(t, "POST", "/api/claims/"+claim.ID+"/reject",
		api.RejectRequest{Reason: "Certificate is illegible."}, adminHeaders(), &rejected)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "rejected", rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "Certificate is illegible.", *rejected.RejectionReason)
}

func TestAPI_ReviewQueue_FiltersByStatus(t *testing.T) {
	ts := newTestServer(t)
	claim := ts.submitMarriageClaim(t)

	var pending []api.ClaimDTO
	rec := ts.do(t, "GET", "/api/claims?status=pending", nil, nil, &pending)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pending, 1)
	assert.Equal(t, claim.ID, pending[0].ID)

	var completed []api.ClaimDTO
	rec = ts.do(t, "GET", "/api/claims?status=completed", nil, nil, &completed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, completed)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ReviewerHeadersRequired(t *testing.T) {
	// GIVEN: An approval request without reviewer headers
	// THEN: 400 with a validation code, before any state change
	ts := newTestServer(t)
	claim := ts.submitMarriageClaim(t)

	var errResp api.ErrorResponse
	rec := ts.do(t, "POST", "/api/claims/"+claim.ID+"/approve", nil, nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errResp.Code)

	var unchanged api.ClaimDTO
	rec = ts.do(t, "GET", "/api/claims/"+claim.ID, nil, nil, &unchanged)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", unchanged.Status)
}

func TestAPI_RoleWithoutCapability_Forbidden(t *testing.T) {
	ts := newTestServer(t)
	claim := ts.submitMarriageClaim(t)

	var errResp api.ErrorResponse
	rec := ts.do(t, "POST", "/api/claims/"+claim.ID+"/approve", nil, managerHeaders(), &errResp)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errResp.Code)
}

func TestAPI_InvalidTransition_Conflict(t *testing.T) {
	// GIVEN: A claim still PENDING
	// WHEN: Skipping straight to completion
	// THEN: 409 conflict
	ts := newTestServer(t)
	claim := ts.submitMarriageClaim(t)

	var errResp api.ErrorResponse
	rec := ts.do(t, "POST", "/api/claims/"+claim.ID+"/complete", nil, managerHeaders(), &errResp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errResp.Code)
}

func TestAPI_QuotaExceeded_Unprocessable(t *testing.T) {
	// GIVEN: The once-in-a-lifetime marriage gift already completed
	// WHEN: Submitting it a second time
	// THEN: 422 quota_exceeded
	ts := newTestServer(t)
	claim := ts.submitMarriageClaim(t)

	rec := ts.do(t, "POST", "/api/claims/"+claim.ID+"/approve", nil, adminHeaders(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, "POST", "/api/claims/"+claim.ID+"/complete", nil, managerHeaders(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var errResp api.ErrorResponse
	rec = ts.do(t, "POST", "/api/claimants/emp-1/claims", api.SubmitClaimRequest{
		SubProgramID: "sub-marriage-gift",
		Documents: []api.DocumentDTO{
			{FileName: "Marriage certificate", FileURL: "https://files.local/cert2.pdf"},
		},
	}, nil, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "quota_exceeded", errResp.Code)
}

func TestAPI_MissingDocument_BadRequest(t *testing.T) {
	ts := newTestServer(t)

	var errResp api.ErrorResponse
	rec := ts.do(t, "POST", "/api/claimants/emp-1/claims", api.SubmitClaimRequest{
		SubProgramID: "sub-marriage-gift",
	}, nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errResp.Code)
}

func TestAPI_UnknownClaim_NotFound(t *testing.T) {
	ts := newTestServer(t)

	var errResp api.ErrorResponse
	rec := ts.do(t, "GET", "/api/claims/claim-nope", nil, nil, &errResp)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errResp.Code)
}

// =============================================================================
// COMMENTS
// =============================================================================

func TestAPI_CommentThread_ClaimantAndReviewer(t *testing.T) {
	// GIVEN: A pending claim
	// WHEN: The claimant comments
	// THEN: The claim moves to in_review; the thread is readable by both sides
	ts := newTestServer(t)
	claim := ts.submitMarriageClaim(t)

	var comment api.CommentDTO
	rec := ts.do(t, "POST", "/api/claims/"+claim.ID+"/comments",
		api.AddCommentRequest{Text: "Uploaded a clearer scan."},
		map[string]string{"X-Claimant-ID": "emp-1"}, &comment)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "claimant", comment.AuthorKind)

	var updated api.ClaimDTO
	rec = ts.do(t, "GET", "/api/claims/"+claim.ID, nil, nil, &updated)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "in_review", updated.Status)

	var thread []api.CommentDTO
	rec = ts.do(t, "GET", "/api/claims/"+claim.ID+"/comments", nil, adminHeaders(), &thread)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, thread, 1)

	// Another claimant cannot read the thread
	var errResp api.ErrorResponse
	rec = ts.do(t, "GET", "/api/claims/"+claim.ID+"/comments", nil,
		map[string]string{"X-Claimant-ID": "emp-2"}, &errResp)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestAPI_ListPrograms_WithSubPrograms(t *testing.T) {
	ts := newTestServer(t)

	var programs []api.ProgramDTO
	rec := ts.do(t, "GET", "/api/programs?active_only=true", nil, nil, &programs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, programs, 5)

	assert.Equal(t, "marriage", programs[0].Code, "sorted by sort_order")
	require.NotEmpty(t, programs[0].SubPrograms)
	assert.Equal(t, "3000", programs[0].SubPrograms[0].Amount)
}

func TestAPI_CreateProgram_FromCatalogJSON(t *testing.T) {
	ts := newTestServer(t)

	var created api.ProgramDTO
	rec := ts.do(t, "POST", "/api/programs", factory.ProgramJSON{
		Code: "housing",
		Name: "Housing Support",
		SubPrograms: []factory.SubProgramJSON{
			{Code: "rent", Name: "Rent Subsidy", Amount: "4000", MaxPerYear: "12000"},
		},
	}, nil, &created)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "prog-housing", created.ID)
	require.Len(t, created.SubPrograms, 1)
	assert.Equal(t, "sub-housing-rent", created.SubPrograms[0].ID)
}

func TestAPI_DeleteProgram_InUse_Conflict(t *testing.T) {
	ts := newTestServer(t)
	ts.submitMarriageClaim(t)

	var errResp api.ErrorResponse
	rec := ts.do(t, "DELETE", "/api/programs/prog-marriage", nil, nil, &errResp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errResp.Code)

	rec = ts.do(t, "DELETE", "/api/programs/prog-disaster", nil, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_Scenarios_LoadAndReset(t *testing.T) {
	ts := newTestServer(t)

	var scenarios []api.ScenarioDTO
	rec := ts.do(t, "GET", "/api/scenarios", nil, nil, &scenarios)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, scenarios)

	rec = ts.do(t, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "review-queue"}, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pending []api.ClaimDTO
	rec = ts.do(t, "GET", "/api/claims?status=pending", nil, nil, &pending)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, pending, "review-queue scenario parks a claim in pending")

	rec = ts.do(t, "POST", "/api/scenarios/reset", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var programs []api.ProgramDTO
	rec = ts.do(t, "GET", "/api/programs", nil, nil, &programs)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, programs)
}
