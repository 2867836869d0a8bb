/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Monetary values cross the wire as strings ("2000", "1234.50"). float64
  JSON numbers round; strings don't.

VALIDATION:
  Validation is done in the domain layer, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: ProgramJSON type (catalog upsert payload)
*/
package api

import (
	"time"

	"github.com/warp/welfare-engine/welfare"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ClaimantDTO represents a claimant in API responses.
type ClaimantDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateClaimantRequest is the request to register a claimant.
type CreateClaimantRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProgramDTO represents a program with its sub-programs.
type ProgramDTO struct {
	ID                string            `json:"id"`
	Code              string            `json:"code"`
	Name              string            `json:"name"`
	Active            bool              `json:"active"`
	SortOrder         int               `json:"sort_order"`
	RequiredDocuments []DocumentSpecDTO `json:"required_documents,omitempty"`
	SubPrograms       []SubProgramDTO   `json:"sub_programs,omitempty"`
}

// DocumentSpecDTO describes an expected claim attachment.
type DocumentSpecDTO struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// SubProgramDTO represents a sub-program in API responses.
type SubProgramDTO struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Amount string `json:"amount"`

	MaxPerRequest     *string `json:"max_per_request,omitempty"`
	MaxPerYear        *string `json:"max_per_year,omitempty"`
	MaxLifetime       *string `json:"max_lifetime,omitempty"`
	MaxClaimsPerYear  *int    `json:"max_claims_per_year,omitempty"`
	MaxClaimsLifetime *int    `json:"max_claims_lifetime,omitempty"`

	Active bool `json:"active"`
}

// DocumentDTO is a descriptor of an already-uploaded attachment.
type DocumentDTO struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// SubmitClaimRequest is the request to submit a claim.
type SubmitClaimRequest struct {
	SubProgramID        string        `json:"sub_program_id"`
	Nights              *int          `json:"nights,omitempty"`
	BeneficiaryName     string        `json:"beneficiary_name,omitempty"`
	BeneficiaryRelation string        `json:"beneficiary_relation,omitempty"`
	Documents           []DocumentDTO `json:"documents,omitempty"`
}

// ClaimDTO represents a claim in API responses.
type ClaimDTO struct {
	ID           string `json:"id"`
	ClaimantID   string `json:"claimant_id"`
	SubProgramID string `json:"sub_program_id"`
	FiscalYear   int    `json:"fiscal_year"`

	RequestedAmount string  `json:"requested_amount"`
	ApprovedAmount  *string `json:"approved_amount,omitempty"`
	Nights          *int    `json:"nights,omitempty"`

	BeneficiaryName     string `json:"beneficiary_name,omitempty"`
	BeneficiaryRelation string `json:"beneficiary_relation,omitempty"`

	Status string `json:"status"`

	AdminApproverID   *string `json:"admin_approver_id,omitempty"`
	AdminApprovedAt   *string `json:"admin_approved_at,omitempty"`
	ManagerApproverID *string `json:"manager_approver_id,omitempty"`
	ManagerApprovedAt *string `json:"manager_approved_at,omitempty"`
	RejectedBy        *string `json:"rejected_by,omitempty"`
	RejectionReason   *string `json:"rejection_reason,omitempty"`

	Documents []DocumentDTO `json:"documents,omitempty"`

	SubmittedAt string  `json:"submitted_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
	UpdatedAt   string  `json:"updated_at"`
}

// ApproveRequest is the body for the admin approval step.
type ApproveRequest struct {
	Comment string `json:"comment,omitempty"`
}

// CompleteRequest is the body for the manager approval (completion) step.
// ApprovedAmount may only lower the requested amount; omitted means full.
type CompleteRequest struct {
	ApprovedAmount *string `json:"approved_amount,omitempty"`
	Comment        string  `json:"comment,omitempty"`
}

// RejectRequest is the body for rejecting a claim.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// CommentDTO represents a claim comment.
type CommentDTO struct {
	ID         string `json:"id"`
	ClaimID    string `json:"claim_id"`
	AuthorID   string `json:"author_id"`
	AuthorKind string `json:"author_kind"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at"`
}

// AddCommentRequest is the request to add a comment to a claim.
type AddCommentRequest struct {
	Text string `json:"text"`
}

// UsageDTO is the quota consumption snapshot for one (claimant, sub-program).
type UsageDTO struct {
	ClaimantID     string `json:"claimant_id"`
	SubProgramID   string `json:"sub_program_id"`
	FiscalYear     int    `json:"fiscal_year"`
	AmountYear     string `json:"amount_year"`
	AmountLifetime string `json:"amount_lifetime"`
	ClaimsYear     int    `json:"claims_year"`
	ClaimsLifetime int    `json:"claims_lifetime"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toClaimantDTO(c welfare.Claimant) ClaimantDTO {
	return ClaimantDTO{
		ID:        string(c.ID),
		Name:      c.Name,
		Active:    c.Active,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toProgramDTO(p welfare.Program, subPrograms []welfare.SubProgram) ProgramDTO {
	dto := ProgramDTO{
		ID:        string(p.ID),
		Code:      p.Code,
		Name:      p.Name,
		Active:    p.Active,
		SortOrder: p.SortOrder,
	}
	for _, d := range p.RequiredDocuments {
		dto.RequiredDocuments = append(dto.RequiredDocuments, DocumentSpecDTO{
			Name:     d.Name,
			Required: d.Required,
		})
	}
	for _, sp := range subPrograms {
		dto.SubPrograms = append(dto.SubPrograms, toSubProgramDTO(sp))
	}
	return dto
}

func toSubProgramDTO(sp welfare.SubProgram) SubProgramDTO {
	dto := SubProgramDTO{
		ID:                string(sp.ID),
		Code:              sp.Code,
		Name:              sp.Name,
		Unit:              string(sp.Unit),
		Amount:            sp.Amount.String(),
		MaxClaimsPerYear:  sp.MaxClaimsPerYear,
		MaxClaimsLifetime: sp.MaxClaimsLifetime,
		Active:            sp.Active,
	}
	if sp.MaxPerRequest != nil {
		s := sp.MaxPerRequest.String()
		dto.MaxPerRequest = &s
	}
	if sp.MaxPerYear != nil {
		s := sp.MaxPerYear.String()
		dto.MaxPerYear = &s
	}
	if sp.MaxLifetime != nil {
		s := sp.MaxLifetime.String()
		dto.MaxLifetime = &s
	}
	return dto
}

func toClaimDTO(c welfare.Claim) ClaimDTO {
	dto := ClaimDTO{
		ID:                  string(c.ID),
		ClaimantID:          string(c.ClaimantID),
		SubProgramID:        string(c.SubProgramID),
		FiscalYear:          c.FiscalYear,
		RequestedAmount:     c.RequestedAmount.String(),
		Nights:              c.Nights,
		BeneficiaryName:     c.BeneficiaryName,
		BeneficiaryRelation: c.BeneficiaryRelation,
		Status:              string(c.Status),
		AdminApproverID:     c.AdminApproverID,
		ManagerApproverID:   c.ManagerApproverID,
		RejectedBy:          c.RejectedBy,
		RejectionReason:     c.RejectionReason,
		SubmittedAt:         c.SubmittedAt.Format(time.RFC3339),
		UpdatedAt:           c.UpdatedAt.Format(time.RFC3339),
	}
	if c.ApprovedAmount != nil {
		s := c.ApprovedAmount.String()
		dto.ApprovedAmount = &s
	}
	dto.AdminApprovedAt = formatTimePtr(c.AdminApprovedAt)
	dto.ManagerApprovedAt = formatTimePtr(c.ManagerApprovedAt)
	dto.CompletedAt = formatTimePtr(c.CompletedAt)
	for _, d := range c.Documents {
		dto.Documents = append(dto.Documents, DocumentDTO{
			FileName: d.FileName,
			FileURL:  d.FileURL,
			FileType: d.FileType,
			FileSize: d.FileSize,
		})
	}
	return dto
}

func toClaimDTOs(claims []welfare.Claim) []ClaimDTO {
	dtos := make([]ClaimDTO, len(claims))
	for i, c := range claims {
		dtos[i] = toClaimDTO(c)
	}
	return dtos
}

func toCommentDTO(c welfare.Comment) CommentDTO {
	return CommentDTO{
		ID:         string(c.ID),
		ClaimID:    string(c.ClaimID),
		AuthorID:   c.AuthorID,
		AuthorKind: string(c.AuthorKind),
		Text:       c.Text,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
}

func toDocuments(dtos []DocumentDTO) []welfare.Document {
	docs := make([]welfare.Document, len(dtos))
	for i, d := range dtos {
		docs[i] = welfare.Document{
			FileName: d.FileName,
			FileURL:  d.FileURL,
			FileType: d.FileType,
			FileSize: d.FileSize,
		}
	}
	return docs
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
