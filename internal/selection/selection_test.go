package selection

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tariffsim/internal/crossjoin"
	"tariffsim/internal/model"
	"tariffsim/internal/views"
)

func num(v float64) *float64 { return &v }

func fixture(t *testing.T) *crossjoin.Table {
	t.Helper()
	geo := []model.GeoCountry{{ISO3: "KEN", Name: "Kenya"}, {ISO3: "NGA", Name: "Nigeria"}}
	records := []model.TradeRecord{
		{ISO3: "KEN", Sector: model.AllSectors, ETR: num(0.12)},
		{ISO3: "KEN", Sector: "Textiles", ETR: num(0.1)},
		{ISO3: "NGA", Sector: "Textiles", ETR: num(0.3)},
		{ISO3: model.AllCountries, Sector: model.AllSectors, ETR: num(0.15)},
		{ISO3: model.AllCountries, Sector: "Textiles", ETR: num(0.2)},
	}
	table, _ := crossjoin.Build(records, geo)
	return table
}

func TestInitialState(t *testing.T) {
	s := New(fixture(t))

	state := s.State()
	assert.Equal(t, model.AllCountries, state.Country)
	assert.Equal(t, model.AllSectors, state.Sector)
	assert.True(t, state.ETRMode)
	assert.Equal(t, num(0.15), state.Tariff)
	assert.Equal(t, FocusAll, s.Focus())
	assert.Equal(t, views.ETRMode, s.Mode())
}

func TestCountryThenSector(t *testing.T) {
	s := New(fixture(t))

	state := s.SelectCountry("KEN")
	assert.Equal(t, "KEN", state.Country)
	assert.Equal(t, model.AllSectors, state.Sector)
	assert.Equal(t, num(0.12), state.Tariff)
	assert.Equal(t, FocusCountry, state.Focus())

	state = s.SelectSector("Textiles")
	assert.Equal(t, model.AllCountries, state.Country)
	assert.Equal(t, "Textiles", state.Sector)
	assert.Equal(t, num(0.2), state.Tariff)
	assert.Equal(t, FocusSector, state.Focus())
}

func TestSelectingAllKeepsOtherAxis(t *testing.T) {
	s := New(fixture(t))
	s.SelectSector("Textiles")

	state := s.SelectCountry(model.AllCountries)
	assert.Equal(t, "Textiles", state.Sector)

	s.SelectCountry("KEN")
	state = s.SelectSector(model.AllSectors)
	assert.Equal(t, "KEN", state.Country)
}

func TestMissingETRDisplaysNil(t *testing.T) {
	s := New(fixture(t))

	state := s.SelectCountry("NGA")

	assert.True(t, state.ETRMode)
	assert.Nil(t, state.Tariff)
}

func TestManualTariffSurvivesSelection(t *testing.T) {
	s := New(fixture(t))

	state, err := s.SetManualTariff(0.35)
	require.NoError(t, err)
	assert.False(t, state.ETRMode)
	assert.Equal(t, num(0.35), state.Tariff)
	assert.Equal(t, views.ManualMode(0.35), s.Mode())

	state = s.SelectCountry("KEN")
	assert.False(t, state.ETRMode)
	assert.Equal(t, num(0.35), state.Tariff)
	assert.Equal(t, "KEN", state.Country)

	state = s.ResetToETR()
	assert.True(t, state.ETRMode)
	assert.Equal(t, num(0.12), state.Tariff)
	assert.Equal(t, 0.35, state.ManualTariff)
}

func TestManualTariffClampedAndValidated(t *testing.T) {
	s := New(fixture(t))

	state, err := s.SetManualTariff(1.7)
	require.NoError(t, err)
	assert.Equal(t, 1.0, state.ManualTariff)

	state, err = s.SetManualTariff(-0.2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, state.ManualTariff)

	before := s.State()
	_, err = s.SetManualTariff(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidTariff)
	assert.Equal(t, before, s.State())
}

func TestMutualExclusionHoldsForAnySequence(t *testing.T) {
	s := New(fixture(t))
	countries := []string{model.AllCountries, "KEN", "NGA", "XXX"}
	sectors := []string{model.AllSectors, "Textiles", "Minerals"}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		var state State
		if rng.Intn(2) == 0 {
			state = s.SelectCountry(countries[rng.Intn(len(countries))])
		} else {
			state = s.SelectSector(sectors[rng.Intn(len(sectors))])
		}
		countrySet := state.Country != model.AllCountries
		sectorSet := state.Sector != model.AllSectors
		require.False(t, countrySet && sectorSet, "step %d: %+v", i, state)
	}
}
