package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/welfare-engine/factory"
	"github.com/warp/welfare-engine/welfare"
)

func TestParseCatalog_DefaultCatalog(t *testing.T) {
	// GIVEN: The built-in default catalog
	// THEN: Five programs parse, with limits and documents intact
	programs, err := factory.NewCatalogFactory().ParseCatalog(factory.DefaultCatalogJSON)
	require.NoError(t, err)
	require.Len(t, programs, 5)

	byCode := map[string]factory.ProgramWithSubPrograms{}
	for _, p := range programs {
		byCode[p.Program.Code] = p
	}

	marriage := byCode["marriage"]
	require.Len(t, marriage.SubPrograms, 1)
	gift := marriage.SubPrograms[0]
	assert.Equal(t, welfare.UnitLumpSum, gift.Unit)
	assert.Equal(t, "3000", gift.Amount.String())
	require.NotNil(t, gift.MaxClaimsLifetime)
	assert.Equal(t, 1, *gift.MaxClaimsLifetime)
	assert.Nil(t, gift.MaxPerYear)

	medical := byCode["medical"]
	require.Len(t, medical.SubPrograms, 2)
	require.Len(t, medical.Program.RequiredDocuments, 2)
	assert.True(t, medical.Program.RequiredDocuments[0].Required)

	var hospitalization welfare.SubProgram
	for _, sp := range medical.SubPrograms {
		if sp.Code == "hospitalization" {
			hospitalization = sp
		}
	}
	assert.Equal(t, welfare.UnitPerNight, hospitalization.Unit)
	assert.Equal(t, "1000", hospitalization.Amount.String())
	require.NotNil(t, hospitalization.MaxPerRequest)
	assert.Equal(t, "14000", hospitalization.MaxPerRequest.String())
}

func TestParseCatalog_DeterministicIDs(t *testing.T) {
	// GIVEN: The same catalog parsed twice
	// THEN: Identical IDs, so seeding is an upsert instead of duplication
	f := factory.NewCatalogFactory()

	first, err := f.ParseCatalog(factory.DefaultCatalogJSON)
	require.NoError(t, err)
	second, err := f.ParseCatalog(factory.DefaultCatalogJSON)
	require.NoError(t, err)

	assert.Equal(t, welfare.ProgramID("prog-marriage"), first[0].Program.ID)
	assert.Equal(t, welfare.SubProgramID("sub-marriage-gift"), first[0].SubPrograms[0].ID)
	assert.Equal(t, first[0].Program.ID, second[0].Program.ID)
	assert.Equal(t, first[0].SubPrograms[0].ID, second[0].SubPrograms[0].ID)
}

func TestFromJSON_DefaultsAndActiveOverride(t *testing.T) {
	inactive := false
	p, err := factory.NewCatalogFactory().FromJSON(factory.ProgramJSON{
		Code: "housing",
		Name: "Housing Support",
		SubPrograms: []factory.SubProgramJSON{
			{Code: "rent", Name: "Rent Subsidy", Amount: "4000", Active: &inactive},
		},
	})
	require.NoError(t, err)

	assert.True(t, p.Program.Active, "program active defaults to true")
	require.Len(t, p.SubPrograms, 1)
	assert.False(t, p.SubPrograms[0].Active)
	assert.Equal(t, welfare.UnitLumpSum, p.SubPrograms[0].Unit, "unit defaults to lump_sum")
}

func TestFromJSON_InvalidAmount(t *testing.T) {
	_, err := factory.NewCatalogFactory().FromJSON(factory.ProgramJSON{
		Code: "broken",
		Name: "Broken",
		SubPrograms: []factory.SubProgramJSON{
			{Code: "x", Name: "X", Amount: "ten thousand"},
		},
	})
	assert.Error(t, err)
}

func TestFromJSON_NegativeLimitRejected(t *testing.T) {
	_, err := factory.NewCatalogFactory().FromJSON(factory.ProgramJSON{
		Code: "broken",
		Name: "Broken",
		SubPrograms: []factory.SubProgramJSON{
			{Code: "x", Name: "X", Amount: "100", MaxPerYear: "-1"},
		},
	})
	assert.ErrorIs(t, err, welfare.ErrValidation)
}

func TestFromJSON_MissingCode(t *testing.T) {
	f := factory.NewCatalogFactory()

	_, err := f.FromJSON(factory.ProgramJSON{Name: "No Code"})
	assert.Error(t, err)

	_, err = f.FromJSON(factory.ProgramJSON{
		Code: "ok",
		Name: "OK",
		SubPrograms: []factory.SubProgramJSON{
			{Name: "No Code", Amount: "100"},
		},
	})
	assert.Error(t, err)
}

func TestToJSON_RoundTrip(t *testing.T) {
	// GIVEN: A parsed program
	// WHEN: Converting back to JSON schema and parsing again
	// THEN: The catalog survives unchanged
	f := factory.NewCatalogFactory()

	programs, err := f.ParseCatalog(factory.DefaultCatalogJSON)
	require.NoError(t, err)

	pj := f.ToJSON(programs[1]) // medical
	back, err := f.FromJSON(pj)
	require.NoError(t, err)

	assert.Equal(t, programs[1].Program.ID, back.Program.ID)
	assert.Equal(t, len(programs[1].SubPrograms), len(back.SubPrograms))
	for i := range back.SubPrograms {
		assert.Equal(t, programs[1].SubPrograms[i].ID, back.SubPrograms[i].ID)
		assert.True(t, programs[1].SubPrograms[i].Amount.Equal(back.SubPrograms[i].Amount))
	}
}
