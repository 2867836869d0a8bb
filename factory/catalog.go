/*
Package factory provides JSON to Go benefit-catalog conversion.

PURPOSE:
  Converts JSON catalog definitions into welfare.Program and welfare.SubProgram
  objects. This enables benefit configuration without code changes - HR can
  define programs in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify the benefit catalog
  - Easy integration with admin UI
  - Version control for benefit definitions
  - Database storage of catalog configs

JSON SCHEMA:
  {
    "code": "medical",
    "name": "Medical Assistance",
    "sort_order": 2,
    "required_documents": [
      {"name": "Medical receipt", "required": true}
    ],
    "sub_programs": [
      {
        "code": "outpatient",
        "name": "Outpatient Care",
        "unit": "lump_sum",
        "amount": "2000",
        "max_per_year": "20000"
      }
    ]
  }

KEY FEATURES:
  - Validates amounts and limits via SubProgram.Validate
  - Deterministic IDs derived from codes (stable across re-seeding)
  - Omitted limits stay nil (unlimited)

USAGE:
  catalog := factory.NewCatalogFactory()

  // From JSON string
  programs, err := catalog.ParseCatalog(jsonString)

  // The built-in default catalog (recommended starting point)
  programs, err = catalog.ParseCatalog(factory.DefaultCatalogJSON)

  for _, p := range programs {
      store.SaveProgram(ctx, p.Program)
      for _, sp := range p.SubPrograms {
          store.SaveSubProgram(ctx, sp)
      }
  }

SEE ALSO:
  - welfare/types.go: Program and SubProgram definitions
  - api/scenarios.go: Demo seeding built on the default catalog
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/welfare-engine/welfare"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProgramJSON is the JSON representation of a program and its sub-programs.
type ProgramJSON struct {
	Code              string             `json:"code"`
	Name              string             `json:"name"`
	Active            *bool              `json:"active,omitempty"` // default true
	SortOrder         int                `json:"sort_order,omitempty"`
	RequiredDocuments []DocumentSpecJSON `json:"required_documents,omitempty"`
	SubPrograms       []SubProgramJSON   `json:"sub_programs"`
}

// DocumentSpecJSON describes an expected claim attachment.
type DocumentSpecJSON struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// SubProgramJSON is the JSON representation of a sub-program. Amounts and
// limits are strings to keep decimal precision out of float64 territory.
type SubProgramJSON struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Unit   string `json:"unit"` // lump_sum (default), per_night
	Amount string `json:"amount"`

	MaxPerRequest     string `json:"max_per_request,omitempty"`
	MaxPerYear        string `json:"max_per_year,omitempty"`
	MaxLifetime       string `json:"max_lifetime,omitempty"`
	MaxClaimsPerYear  *int   `json:"max_claims_per_year,omitempty"`
	MaxClaimsLifetime *int   `json:"max_claims_lifetime,omitempty"`

	Active *bool `json:"active,omitempty"` // default true
}

// ProgramWithSubPrograms pairs a parsed program with its sub-programs.
type ProgramWithSubPrograms struct {
	Program     welfare.Program
	SubPrograms []welfare.SubProgram
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalog definitions to Go structs.
type CatalogFactory struct{}

// NewCatalogFactory creates a new catalog factory.
func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// ParseCatalog parses a JSON array of programs.
func (f *CatalogFactory) ParseCatalog(jsonStr string) ([]ProgramWithSubPrograms, error) {
	var pjs []ProgramJSON
	if err := json.Unmarshal([]byte(jsonStr), &pjs); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	programs := make([]ProgramWithSubPrograms, 0, len(pjs))
	for i, pj := range pjs {
		p, err := f.FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("program %q: %w", pj.Code, err)
		}
		if p.Program.SortOrder == 0 {
			p.Program.SortOrder = i + 1
		}
		programs = append(programs, p)
	}
	return programs, nil
}

// FromJSON converts one ProgramJSON into a program and its sub-programs.
// IDs are derived from codes so re-parsing the same catalog upserts in place
// instead of duplicating rows.
func (f *CatalogFactory) FromJSON(pj ProgramJSON) (ProgramWithSubPrograms, error) {
	if pj.Code == "" {
		return ProgramWithSubPrograms{}, fmt.Errorf("program code is required")
	}
	if pj.Name == "" {
		return ProgramWithSubPrograms{}, fmt.Errorf("program name is required")
	}

	now := time.Now().UTC()
	program := welfare.Program{
		ID:        welfare.ProgramID("prog-" + pj.Code),
		Code:      pj.Code,
		Name:      pj.Name,
		Active:    boolOrDefault(pj.Active, true),
		SortOrder: pj.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, dj := range pj.RequiredDocuments {
		program.RequiredDocuments = append(program.RequiredDocuments, welfare.DocumentSpec{
			Name:     dj.Name,
			Required: dj.Required,
		})
	}

	subPrograms := make([]welfare.SubProgram, 0, len(pj.SubPrograms))
	for _, sj := range pj.SubPrograms {
		sp, err := parseSubProgram(program.ID, pj.Code, sj, now)
		if err != nil {
			return ProgramWithSubPrograms{}, fmt.Errorf("sub-program %q: %w", sj.Code, err)
		}
		subPrograms = append(subPrograms, sp)
	}

	return ProgramWithSubPrograms{Program: program, SubPrograms: subPrograms}, nil
}

func parseSubProgram(programID welfare.ProgramID, programCode string, sj SubProgramJSON, now time.Time) (welfare.SubProgram, error) {
	if sj.Code == "" {
		return welfare.SubProgram{}, fmt.Errorf("sub-program code is required")
	}

	amount, err := decimal.NewFromString(sj.Amount)
	if err != nil {
		return welfare.SubProgram{}, fmt.Errorf("invalid amount %q: %w", sj.Amount, err)
	}

	sp := welfare.SubProgram{
		ID:        welfare.SubProgramID(fmt.Sprintf("sub-%s-%s", programCode, sj.Code)),
		ProgramID: programID,
		Code:      sj.Code,
		Name:      sj.Name,
		Unit:      parseUnit(sj.Unit),
		Amount:    amount,
		Active:    boolOrDefault(sj.Active, true),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if sp.MaxPerRequest, err = parseLimit(sj.MaxPerRequest); err != nil {
		return welfare.SubProgram{}, fmt.Errorf("invalid max_per_request: %w", err)
	}
	if sp.MaxPerYear, err = parseLimit(sj.MaxPerYear); err != nil {
		return welfare.SubProgram{}, fmt.Errorf("invalid max_per_year: %w", err)
	}
	if sp.MaxLifetime, err = parseLimit(sj.MaxLifetime); err != nil {
		return welfare.SubProgram{}, fmt.Errorf("invalid max_lifetime: %w", err)
	}
	sp.MaxClaimsPerYear = sj.MaxClaimsPerYear
	sp.MaxClaimsLifetime = sj.MaxClaimsLifetime

	if err := sp.Validate(); err != nil {
		return welfare.SubProgram{}, err
	}
	return sp, nil
}

// ToJSON converts a program and its sub-programs back to the JSON schema.
func (f *CatalogFactory) ToJSON(p ProgramWithSubPrograms) ProgramJSON {
	pj := ProgramJSON{
		Code:      p.Program.Code,
		Name:      p.Program.Name,
		SortOrder: p.Program.SortOrder,
	}
	if !p.Program.Active {
		active := false
		pj.Active = &active
	}
	for _, d := range p.Program.RequiredDocuments {
		pj.RequiredDocuments = append(pj.RequiredDocuments, DocumentSpecJSON{
			Name:     d.Name,
			Required: d.Required,
		})
	}
	for _, sp := range p.SubPrograms {
		sj := SubProgramJSON{
			Code:              sp.Code,
			Name:              sp.Name,
			Unit:              string(sp.Unit),
			Amount:            sp.Amount.String(),
			MaxClaimsPerYear:  sp.MaxClaimsPerYear,
			MaxClaimsLifetime: sp.MaxClaimsLifetime,
		}
		if sp.MaxPerRequest != nil {
			sj.MaxPerRequest = sp.MaxPerRequest.String()
		}
		if sp.MaxPerYear != nil {
			sj.MaxPerYear = sp.MaxPerYear.String()
		}
		if sp.MaxLifetime != nil {
			sj.MaxLifetime = sp.MaxLifetime.String()
		}
		if !sp.Active {
			active := false
			sj.Active = &active
		}
		pj.SubPrograms = append(pj.SubPrograms, sj)
	}
	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseUnit(s string) welfare.UnitType {
	switch s {
	case "per_night":
		return welfare.UnitPerNight
	default:
		return welfare.UnitLumpSum
	}
}

func parseLimit(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

// DefaultCatalogJSON is a complete starter catalog covering the common
// welfare programs. Amounts are in THB.
const DefaultCatalogJSON = `[
  {
    "code": "marriage",
    "name": "Marriage Gift",
    "sort_order": 1,
    "required_documents": [
      {"name": "Marriage certificate", "required": true}
    ],
    "sub_programs": [
      {
        "code": "gift",
        "name": "Marriage Gift",
        "unit": "lump_sum",
        "amount": "3000",
        "max_claims_lifetime": 1
      }
    ]
  },
  {
    "code": "medical",
    "name": "Medical Assistance",
    "sort_order": 2,
    "required_documents": [
      {"name": "Medical receipt", "required": true},
      {"name": "Medical certificate", "required": false}
    ],
    "sub_programs": [
      {
        "code": "outpatient",
        "name": "Outpatient Care",
        "unit": "lump_sum",
        "amount": "2000",
        "max_per_request": "2000",
        "max_per_year": "20000"
      },
      {
        "code": "hospitalization",
        "name": "Hospitalization",
        "unit": "per_night",
        "amount": "1000",
        "max_per_request": "14000",
        "max_per_year": "30000"
      }
    ]
  },
  {
    "code": "child_education",
    "name": "Child Education Support",
    "sort_order": 3,
    "required_documents": [
      {"name": "Tuition receipt", "required": true},
      {"name": "Birth certificate", "required": true}
    ],
    "sub_programs": [
      {
        "code": "tuition",
        "name": "Tuition Support",
        "unit": "lump_sum",
        "amount": "5000",
        "max_per_year": "10000",
        "max_claims_per_year": 2
      }
    ]
  },
  {
    "code": "bereavement",
    "name": "Bereavement Support",
    "sort_order": 4,
    "required_documents": [
      {"name": "Death certificate", "required": true}
    ],
    "sub_programs": [
      {
        "code": "immediate_family",
        "name": "Immediate Family",
        "unit": "lump_sum",
        "amount": "10000"
      },
      {
        "code": "extended_family",
        "name": "Extended Family",
        "unit": "lump_sum",
        "amount": "5000"
      },
      {
        "code": "funeral_hosting",
        "name": "Funeral Hosting",
        "unit": "per_night",
        "amount": "2000",
        "max_per_request": "6000"
      }
    ]
  },
  {
    "code": "disaster",
    "name": "Disaster Relief",
    "sort_order": 5,
    "required_documents": [
      {"name": "Damage report", "required": true},
      {"name": "Photos of damage", "required": false}
    ],
    "sub_programs": [
      {
        "code": "relief",
        "name": "Disaster Relief Grant",
        "unit": "lump_sum",
        "amount": "20000",
        "max_lifetime": "60000",
        "max_claims_per_year": 1
      }
    ]
  }
]`
