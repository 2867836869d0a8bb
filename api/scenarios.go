/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario seeds the catalog, claimants,
	and claims that demonstrate specific lifecycle features.

AVAILABLE SCENARIOS:

	fresh-catalog:   Default catalog and claimants, no claims
	review-queue:    Claims parked at each review stage
	quota-pressure:  A claimant close to their yearly medical quota

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the default catalog via the factory
 3. Create claimants
 4. Submit and advance claims through the workflow

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "review-queue"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context and response helpers
  - factory/catalog.go: DefaultCatalogJSON
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/welfare-engine/factory"
	"github.com/warp/welfare-engine/welfare"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-catalog",
		Name:        "Fresh Catalog",
		Description: "Default benefit catalog and claimants, no claims yet",
	},
	{
		ID:          "review-queue",
		Name:        "Review Queue",
		Description: "Claims parked at each review stage: pending, in review, admin approved, completed, rejected",
	},
	{
		ID:          "quota-pressure",
		Name:        "Quota Pressure",
		Description: "A claimant whose completed claims leave little yearly medical quota",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.resetStore(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-catalog":
		err = h.loadFreshCatalogScenario(ctx)
	case "review-queue":
		err = h.loadReviewQueueScenario(ctx)
	case "quota-pressure":
		err = h.loadQuotaPressureScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) resetStore(ctx context.Context) error {
	res, ok := h.Store.(Resetter)
	if !ok {
		return fmt.Errorf("store does not support reset")
	}
	return res.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedCatalog loads the default catalog and a few claimants.
func (h *Handler) seedCatalog(ctx context.Context) error {
	programs, err := h.CatalogFactory.ParseCatalog(factory.DefaultCatalogJSON)
	if err != nil {
		return fmt.Errorf("failed to parse default catalog: %w", err)
	}
	for _, p := range programs {
		if err := h.Store.SaveProgram(ctx, p.Program); err != nil {
			return err
		}
		for _, sp := range p.SubPrograms {
			if err := h.Store.SaveSubProgram(ctx, sp); err != nil {
				return err
			}
		}
	}

	claimants := []welfare.Claimant{
		{ID: "emp-somchai", Name: "Somchai Jaidee", Active: true, CreatedAt: time.Now().UTC()},
		{ID: "emp-malee", Name: "Malee Srisuk", Active: true, CreatedAt: time.Now().UTC()},
		{ID: "emp-anan", Name: "Anan Wongsa", Active: true, CreatedAt: time.Now().UTC()},
	}
	for _, c := range claimants {
		if err := h.Store.SaveClaimant(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadFreshCatalogScenario(ctx context.Context) error {
	return h.seedCatalog(ctx)
}

// loadReviewQueueScenario parks one claim at every lifecycle stage.
func (h *Handler) loadReviewQueueScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}

	admin := welfare.Reviewer{ID: "rev-admin", Role: welfare.RoleAdmin}
	manager := welfare.Reviewer{ID: "rev-manager", Role: welfare.RoleManager}

	marriageDocs := []welfare.Document{{FileName: "Marriage certificate", FileURL: "https://files.local/marriage.pdf"}}
	medicalDocs := []welfare.Document{{FileName: "Medical receipt", FileURL: "https://files.local/receipt.pdf"}}

	// Pending
	if _, err := h.Claims.SubmitClaim(ctx, welfare.SubmitClaimInput{
		ClaimantID:   "emp-somchai",
		SubProgramID: "sub-marriage-gift",
		Documents:    marriageDocs,
	}); err != nil {
		return err
	}

	// In review (claimant comment pulls it in)
	inReview, err := h.Claims.SubmitClaim(ctx, welfare.SubmitClaimInput{
		ClaimantID:   "emp-malee",
		SubProgramID: "sub-medical-outpatient",
		Documents:    medicalDocs,
	})
	if err != nil {
		return err
	}
	if _, err := h.Claims.AddComment(ctx, inReview.ID, "emp-malee", welfare.AuthorClaimant, "Attached the itemized receipt as requested."); err != nil {
		return err
	}

	// Admin approved
	adminApproved, err := h.Claims.SubmitClaim(ctx, welfare.SubmitClaimInput{
		ClaimantID:   "emp-anan",
		SubProgramID: "sub-medical-outpatient",
		Documents:    medicalDocs,
	})
	if err != nil {
		return err
	}
	if _, err := h.Claims.ApproveAsAdmin(ctx, adminApproved.ID, admin, "Documents verified."); err != nil {
		return err
	}

	// Completed
	nights := 3
	completed, err := h.Claims.SubmitClaim(ctx, welfare.SubmitClaimInput{
		ClaimantID:   "emp-somchai",
		SubProgramID: "sub-medical-hospitalization",
		Nights:       &nights,
		Documents:    medicalDocs,
	})
	if err != nil {
		return err
	}
	if _, err := h.Claims.ApproveAsAdmin(ctx, completed.ID, admin, ""); err != nil {
		return err
	}
	if _, err := h.Claims.ApproveAsManager(ctx, completed.ID, manager, nil, ""); err != nil {
		return err
	}

	// Rejected
	rejected, err := h.Claims.SubmitClaim(ctx, welfare.SubmitClaimInput{
		ClaimantID:   "emp-malee",
		SubProgramID: "sub-bereavement-extended_family",
		Documents:    []welfare.Document{{FileName: "Death certificate", FileURL: "https://files.local/cert.pdf"}},
	})
	if err != nil {
		return err
	}
	if _, err := h.Claims.Reject(ctx, rejected.ID, admin, "Relationship not covered by the extended family definition."); err != nil {
		return err
	}

	return nil
}

// loadQuotaPressureScenario completes medical claims until the yearly limit
// is nearly reached, so the next submission demonstrates quota rejection.
func (h *Handler) loadQuotaPressureScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}

	admin := welfare.Reviewer{ID: "rev-admin", Role: welfare.RoleAdmin}
	manager := welfare.Reviewer{ID: "rev-manager", Role: welfare.RoleManager}
	medicalDocs := []welfare.Document{{FileName: "Medical receipt", FileURL: "https://files.local/receipt.pdf"}}

	// Outpatient is 2000 per claim against a 20000 yearly cap: complete nine,
	// leaving room for exactly one more.
	for i := 0; i < 9; i++ {
		claim, err := h.Claims.SubmitClaim(ctx, welfare.SubmitClaimInput{
			ClaimantID:   "emp-somchai",
			SubProgramID: "sub-medical-outpatient",
			Documents:    medicalDocs,
		})
		if err != nil {
			return err
		}
		if _, err := h.Claims.ApproveAsAdmin(ctx, claim.ID, admin, ""); err != nil {
			return err
		}
		if _, err := h.Claims.ApproveAsManager(ctx, claim.ID, manager, nil, ""); err != nil {
			return err
		}
	}

	return nil
}
