/*
handlers.go - HTTP API handlers for the welfare claims system

PURPOSE:
  Exposes the claim engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Claimants:
    GET    /api/claimants                 List all claimants
    POST   /api/claimants                 Register claimant
    GET    /api/claimants/{id}            Get claimant details
    GET    /api/claimants/{id}/claims     Claimant's claim history
    POST   /api/claimants/{id}/claims     Submit a claim
    GET    /api/claimants/{id}/usage      Quota usage snapshot

  Claims:
    GET    /api/claims?status=pending     Reviewer work queue
    GET    /api/claims/{id}               Claim details
    POST   /api/claims/{id}/approve       Admin approval step
    POST   /api/claims/{id}/complete      Manager approval (finalize)
    POST   /api/claims/{id}/reject        Reject with reason
    GET    /api/claims/{id}/comments      Comment thread
    POST   /api/claims/{id}/comments      Add comment

  Catalog:
    GET    /api/programs                  List programs (+sub-programs)
    POST   /api/programs                  Upsert program from catalog JSON
    GET    /api/programs/{id}             Program details
    DELETE /api/programs/{id}             Delete (refused when in use)

  Scenarios:
    GET    /api/scenarios                 List demo scenarios
    POST   /api/scenarios/load            Load a demo scenario
    POST   /api/scenarios/reset           Reset database (dev only)

REVIEWER IDENTITY:
  Reviewer actions read X-Reviewer-ID and X-Reviewer-Role headers. Identity
  verification belongs to the gateway in front of this service; the engine
  trusts the headers and enforces only role capabilities.

ERROR HANDLING:
  Domain errors map to HTTP status via writeDomainError:
  - 400: Validation errors, invalid input
  - 403: Role lacks the capability / not the claim owner
  - 404: Claimant/program/claim not found
  - 409: Invalid state transition, duplicate usage, program in use
  - 422: Quota exceeded
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/welfare-engine/factory"
	"github.com/warp/welfare-engine/welfare"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store          welfare.TxStore
	Claims         *welfare.ClaimService
	CatalogFactory *factory.CatalogFactory

	// Track currently loaded scenario
	currentScenario string
}

// Resetter is implemented by stores that can clear all data (dev/demo only).
type Resetter interface {
	Reset(ctx context.Context) error
}

// NewHandler creates a new handler with the given store.
func NewHandler(store welfare.TxStore) *Handler {
	return &Handler{
		Store:          store,
		Claims:         welfare.NewClaimService(store),
		CatalogFactory: factory.NewCatalogFactory(),
	}
}

// reviewerFromRequest builds the reviewer identity from trusted headers.
func reviewerFromRequest(r *http.Request) (welfare.Reviewer, error) {
	id := r.Header.Get("X-Reviewer-ID")
	if id == "" {
		return welfare.Reviewer{}, &welfare.ValidationError{Field: "X-Reviewer-ID", Message: "reviewer identity header is required"}
	}
	role, err := welfare.ParseReviewerRole(r.Header.Get("X-Reviewer-Role"))
	if err != nil {
		return welfare.Reviewer{}, err
	}
	return welfare.Reviewer{ID: id, Role: role}, nil
}

// =============================================================================
// CLAIMANT HANDLERS
// =============================================================================

// ListClaimants returns all claimants.
func (h *Handler) ListClaimants(w http.ResponseWriter, r *http.Request) {
	claimants, err := h.Store.ListClaimants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list claimants", err)
		return
	}

	dtos := make([]ClaimantDTO, len(claimants))
	for i, c := range claimants {
		dtos[i] = toClaimantDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClaimant returns a single claimant.
func (h *Handler) GetClaimant(w http.ResponseWriter, r *http.Request) {
	id := welfare.ClaimantID(chi.URLParam(r, "id"))

	c, err := h.Store.GetClaimant(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get claimant", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Claimant not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toClaimantDTO(*c))
}

// CreateClaimant registers a claimant.
func (h *Handler) CreateClaimant(w http.ResponseWriter, r *http.Request) {
	var req CreateClaimantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	c := welfare.Claimant{
		ID:        welfare.ClaimantID(req.ID),
		Name:      req.Name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveClaimant(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create claimant", err)
		return
	}

	writeJSON(w, http.StatusCreated, toClaimantDTO(c))
}

// ListClaimantClaims returns a claimant's claim history.
func (h *Handler) ListClaimantClaims(w http.ResponseWriter, r *http.Request) {
	id := welfare.ClaimantID(chi.URLParam(r, "id"))

	claims, err := h.Store.ListClaimsByClaimant(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list claims", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTOs(claims))
}

// SubmitClaim submits a claim on behalf of a claimant.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	claimantID := welfare.ClaimantID(chi.URLParam(r, "id"))

	var req SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	claim, err := h.Claims.SubmitClaim(r.Context(), welfare.SubmitClaimInput{
		ClaimantID:          claimantID,
		SubProgramID:        welfare.SubProgramID(req.SubProgramID),
		Nights:              req.Nights,
		BeneficiaryName:     req.BeneficiaryName,
		BeneficiaryRelation: req.BeneficiaryRelation,
		Documents:           toDocuments(req.Documents),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toClaimDTO(*claim))
}

// GetUsage returns the quota snapshot for a (claimant, sub-program) pair.
// Query params: sub_program_id (required), fiscal_year (default: current).
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	claimantID := welfare.ClaimantID(chi.URLParam(r, "id"))
	subProgramID := welfare.SubProgramID(r.URL.Query().Get("sub_program_id"))
	if subProgramID == "" {
		writeError(w, http.StatusBadRequest, "sub_program_id query parameter is required", nil)
		return
	}

	fy := welfare.CurrentFiscalYear(h.Claims.Now)
	if fyStr := r.URL.Query().Get("fiscal_year"); fyStr != "" {
		parsed, err := strconv.Atoi(fyStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid fiscal_year", err)
			return
		}
		fy = parsed
	}

	snap, err := h.Claims.QuotaUsage(r.Context(), claimantID, subProgramID, fy)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UsageDTO{
		ClaimantID:     string(claimantID),
		SubProgramID:   string(subProgramID),
		FiscalYear:     snap.FiscalYear,
		AmountYear:     snap.AmountYear.String(),
		AmountLifetime: snap.AmountLifetime.String(),
		ClaimsYear:     snap.ClaimsYear,
		ClaimsLifetime: snap.ClaimsLifetime,
	})
}

// =============================================================================
// CLAIM HANDLERS
// =============================================================================

// ListClaims returns the reviewer work queue, filtered by status.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	status := welfare.ClaimStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = welfare.StatusPending
	}

	claims, err := h.Store.ListClaimsByStatus(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list claims", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTOs(claims))
}

// GetClaim returns a single claim.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := welfare.ClaimID(chi.URLParam(r, "id"))

	claim, err := h.Claims.GetClaim(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

// ApproveClaim performs the admin approval step.
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	id := welfare.ClaimID(chi.URLParam(r, "id"))

	reviewer, err := reviewerFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req ApproveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	claim, err := h.Claims.ApproveAsAdmin(r.Context(), id, reviewer, req.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

// CompleteClaim performs the manager approval step, finalizing the claim and
// charging quota.
func (h *Handler) CompleteClaim(w http.ResponseWriter, r *http.Request) {
	id := welfare.ClaimID(chi.URLParam(r, "id"))

	reviewer, err := reviewerFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req CompleteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var approvedAmount *decimal.Decimal
	if req.ApprovedAmount != nil {
		amount, err := decimal.NewFromString(*req.ApprovedAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid approved_amount", err)
			return
		}
		approvedAmount = &amount
	}

	claim, err := h.Claims.ApproveAsManager(r.Context(), id, reviewer, approvedAmount, req.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

// RejectClaim rejects a claim with a reason.
func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	id := welfare.ClaimID(chi.URLParam(r, "id"))

	reviewer, err := reviewerFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	claim, err := h.Claims.Reject(r.Context(), id, reviewer, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

// ListComments returns a claim's comment thread. Claimants identify with the
// X-Claimant-ID header; reviewers with the reviewer headers.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	id := welfare.ClaimID(chi.URLParam(r, "id"))

	requesterID, kind, err := commenterFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	comments, err := h.Claims.ListComments(r.Context(), id, requesterID, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]CommentDTO, len(comments))
	for i, c := range comments {
		dtos[i] = toCommentDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddComment appends a comment to a claim.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	id := welfare.ClaimID(chi.URLParam(r, "id"))

	authorID, kind, err := commenterFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	comment, err := h.Claims.AddComment(r.Context(), id, authorID, kind, req.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentDTO(*comment))
}

// commenterFromRequest resolves the comment author: claimant header wins,
// reviewer headers otherwise.
func commenterFromRequest(r *http.Request) (string, welfare.AuthorKind, error) {
	if claimantID := r.Header.Get("X-Claimant-ID"); claimantID != "" {
		return claimantID, welfare.AuthorClaimant, nil
	}
	reviewer, err := reviewerFromRequest(r)
	if err != nil {
		return "", "", err
	}
	return reviewer.ID, welfare.AuthorReviewer, nil
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListPrograms returns the benefit catalog with sub-programs.
// Query param: active_only=true to hide deactivated programs.
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"

	programs, err := h.Store.ListPrograms(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list programs", err)
		return
	}

	dtos := make([]ProgramDTO, 0, len(programs))
	for _, p := range programs {
		subPrograms, err := h.Store.ListSubPrograms(r.Context(), p.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sub-programs", err)
			return
		}
		dtos = append(dtos, toProgramDTO(p, subPrograms))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProgram returns a single program with its sub-programs.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	id := welfare.ProgramID(chi.URLParam(r, "id"))

	p, err := h.Store.GetProgram(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get program", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Program not found", nil)
		return
	}

	subPrograms, err := h.Store.ListSubPrograms(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sub-programs", err)
		return
	}
	writeJSON(w, http.StatusOK, toProgramDTO(*p, subPrograms))
}

// CreateProgram upserts a program (and its sub-programs) from catalog JSON.
func (h *Handler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var pj factory.ProgramJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	parsed, err := h.CatalogFactory.FromJSON(pj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid program definition", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveProgram(ctx, parsed.Program); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save program", err)
		return
	}
	for _, sp := range parsed.SubPrograms {
		if err := h.Store.SaveSubProgram(ctx, sp); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save sub-program", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, toProgramDTO(parsed.Program, parsed.SubPrograms))
}

// DeleteProgram hard-deletes a program; refused when claims reference it.
func (h *Handler) DeleteProgram(w http.ResponseWriter, r *http.Request) {
	id := welfare.ProgramID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteProgram(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case welfare.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, welfare.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, welfare.ErrQuotaExceeded):
		writeErrorCode(w, http.StatusUnprocessableEntity, "quota_exceeded", err)
	case errors.Is(err, welfare.ErrInvalidTransition),
		errors.Is(err, welfare.ErrDuplicateUsage),
		errors.Is(err, welfare.ErrProgramInUse):
		writeErrorCode(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, welfare.ErrValidation):
		writeErrorCode(w, http.StatusBadRequest, "validation", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}
