package views

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tariffsim/internal/crossjoin"
	"tariffsim/internal/model"
)

func num(v float64) *float64 { return &v }

func fixtureTable(t *testing.T) *crossjoin.Table {
	t.Helper()
	geo := []model.GeoCountry{
		{ISO3: "KEN", ISO2: "KE", Name: "Kenya"},
		{ISO3: "NGA", ISO2: "NG", Name: "Nigeria"},
		{ISO3: "GHA", ISO2: "GH", Name: "Ghana"},
		{ISO3: "ZAF", ISO2: "ZA", Name: "South Africa"},
	}
	records := []model.TradeRecord{
		{ISO3: "KEN", Sector: model.AllSectors, Exports: num(1000), ETR: num(0.1), GDP: num(100000), Population: num(50)},
		{ISO3: "KEN", Sector: "Textiles", Exports: num(600), ETR: num(0.1), GDP: num(100000), Population: num(50)},
		{ISO3: "NGA", Sector: model.AllSectors, Exports: num(5000), ETR: num(0.2), GDP: num(400000), Population: num(200)},
		{ISO3: "NGA", Sector: "Textiles", Exports: num(100), ETR: num(0.3), GDP: num(400000), Population: num(200)},
		{ISO3: "GHA", Sector: "Textiles", Exports: num(200), ETR: nil, GDP: num(70000), Population: num(30)},
		{ISO3: model.AllCountries, Country: model.AllCountriesName, Sector: model.AllSectors, Exports: num(6000), ETR: num(0.18)},
		{ISO3: model.AllCountries, Country: model.AllCountriesName, Sector: "Textiles", Exports: num(900), ETR: num(0.12)},
	}
	table, _ := crossjoin.Build(records, geo)
	return table
}

func TestMapOverlayAttachesETR(t *testing.T) {
	table := fixtureTable(t)
	fc := model.FeatureCollection{
		Type: "FeatureCollection",
		Features: []model.Feature{
			{Type: "Feature", Properties: map[string]any{"iso3": "KEN", "name": "Kenya"}, Geometry: json.RawMessage(`{"type":"Point","coordinates":[1,2]}`)},
			{Type: "Feature", Properties: map[string]any{"iso3": "GHA", "name": "Ghana"}, Geometry: json.RawMessage(`null`)},
			{Type: "Feature", Properties: map[string]any{"iso3": "ZAF", "name": "South Africa"}},
		},
	}

	out := MapOverlay(table, fc, "Textiles")

	require.Len(t, out.Features, 3)
	assert.Equal(t, num(0.1), out.Features[0].Properties["etr"])
	assert.Equal(t, (*float64)(nil), out.Features[1].Properties["etr"])
	assert.Equal(t, (*float64)(nil), out.Features[2].Properties["etr"])
	assert.Equal(t, fc.Features[0].Geometry, out.Features[0].Geometry)

	_, touched := fc.Features[0].Properties["etr"]
	assert.False(t, touched, "input properties must not be mutated")
}

func TestRankedListFiltersSector(t *testing.T) {
	table := fixtureTable(t)

	entries := RankedList(table, "Textiles", ETRMode)

	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, "Textiles", e.Sector)
		assert.False(t, e.IsAggregateCountry())
	}
	assert.Equal(t, []string{"KEN", "NGA", "GHA", "ZAF"}, isoCodes(entries))

	require.NotNil(t, entries[0].ImpactUSD)
	assert.InDelta(t, 60, *entries[0].ImpactUSD, 1e-9)
	assert.InDelta(t, 1.2, *entries[0].ImpactPerCapita, 1e-9)
	assert.InDelta(t, 0.0006, *entries[0].ImpactGDPShare, 1e-12)
	assert.Nil(t, entries[2].ImpactUSD, "missing ETR yields no impact")
	assert.Nil(t, entries[3].ImpactUSD, "placeholder row has no data")
}

func TestRankedListManualMode(t *testing.T) {
	table := fixtureTable(t)

	entries := RankedList(table, "Textiles", ManualMode(0.5))

	require.NotNil(t, entries[2].ImpactUSD)
	assert.InDelta(t, 100, *entries[2].ImpactUSD, 1e-9)
	assert.Nil(t, entries[3].ImpactUSD, "manual rate cannot fill missing exports")
}

func TestTopExcludesMissingAndSortsDescending(t *testing.T) {
	table := fixtureTable(t)
	entries := RankedList(table, "Textiles", ETRMode)

	top := Top(entries, 3, UnitUSD)

	require.Len(t, top, 2)
	assert.Equal(t, []string{"KEN", "NGA"}, isoCodes(top))
	assert.Len(t, entries, 4, "the full list still carries the no-data rows")
}

func TestTopBreaksTiesByInputOrder(t *testing.T) {
	entries := []Entry{
		{TradeRecord: model.TradeRecord{ISO3: "A"}, ImpactUSD: num(5)},
		{TradeRecord: model.TradeRecord{ISO3: "B"}, ImpactUSD: num(7)},
		{TradeRecord: model.TradeRecord{ISO3: "C"}, ImpactUSD: num(5)},
		{TradeRecord: model.TradeRecord{ISO3: "D"}},
		{TradeRecord: model.TradeRecord{ISO3: "E"}, ImpactUSD: num(5)},
	}

	assert.Equal(t, []string{"B", "A", "C"}, isoCodes(Top(entries, 3, UnitUSD)))
	assert.Equal(t, []string{"B", "A", "C", "E"}, isoCodes(Top(entries, 0, UnitUSD)))
}

func TestTopByPerCapita(t *testing.T) {
	table := fixtureTable(t)
	entries := RankedList(table, model.AllSectors, ETRMode)

	top := Top(entries, 3, UnitPerCapita)

	require.Len(t, top, 2)
	assert.Equal(t, "NGA", top[0].ISO3)
	assert.InDelta(t, 5, *top[0].ImpactPerCapita, 1e-9)
}

func TestSelectionDetailCountryFocus(t *testing.T) {
	table := fixtureTable(t)

	entries := SelectionDetail(table, "KEN", model.AllSectors, ETRMode)

	require.Len(t, entries, 2)
	headline, rest := Headline(entries, "KEN", model.AllSectors)
	require.NotNil(t, headline)
	assert.Equal(t, model.AllSectors, headline.Sector)
	assert.InDelta(t, 100, *headline.ImpactUSD, 1e-9)
	require.Len(t, rest, 1)
	assert.Equal(t, "Textiles", rest[0].Sector)
}

func TestSelectionDetailSectorFocus(t *testing.T) {
	table := fixtureTable(t)

	entries := SelectionDetail(table, model.AllCountries, "Textiles", ETRMode)

	require.Len(t, entries, 5)
	headline, rest := Headline(entries, model.AllCountries, "Textiles")
	require.NotNil(t, headline)
	assert.Equal(t, model.AllCountries, headline.ISO3)
	assert.Len(t, rest, 4)
}

func TestSelectionDetailAllFocus(t *testing.T) {
	table := fixtureTable(t)

	entries := SelectionDetail(table, model.AllCountries, model.AllSectors, ETRMode)

	assert.Len(t, entries, table.Len())
	headline, _ := Headline(entries, model.AllCountries, model.AllSectors)
	require.NotNil(t, headline)
	assert.Equal(t, model.AllCountries, headline.ISO3)
	assert.Equal(t, model.AllSectors, headline.Sector)
}

func TestAggregate(t *testing.T) {
	table := fixtureTable(t)

	entry, ok := Aggregate(table, ETRMode)

	require.True(t, ok)
	assert.InDelta(t, 1080, *entry.ImpactUSD, 1e-9)
	assert.Nil(t, entry.ImpactPerCapita)
}

func TestViewsAreIdempotent(t *testing.T) {
	table := fixtureTable(t)
	mode := ManualMode(0.25)

	assert.True(t, cmp.Equal(RankedList(table, "Textiles", mode), RankedList(table, "Textiles", mode)))
	assert.True(t, cmp.Equal(
		SelectionDetail(table, "NGA", model.AllSectors, mode),
		SelectionDetail(table, "NGA", model.AllSectors, mode),
	))
	fc := model.FeatureCollection{Features: []model.Feature{{Properties: map[string]any{"iso3": "NGA"}}}}
	assert.True(t, cmp.Equal(MapOverlay(table, fc, "Textiles"), MapOverlay(table, fc, "Textiles")))
}

func TestHistory(t *testing.T) {
	points := []model.HistoryPoint{
		{ISO3: "KEN", Year: 2021, ValueUSD: 5},
		{ISO3: "KEN", Year: 2020, ValueUSD: 4},
		{ISO3: "NGA", Year: 2020, ValueUSD: 10},
		{ISO3: "NGA", Year: 2021, ValueUSD: 12},
	}

	ken := History(points, "KEN")
	require.Len(t, ken, 2)
	assert.Equal(t, 2020, ken[0].Year)

	all := History(points, model.AllCountries)
	require.Len(t, all, 2)
	assert.Equal(t, 2020, all[0].Year)
	assert.Equal(t, 14.0, all[0].ValueUSD)
	assert.Equal(t, 17.0, all[1].ValueUSD)

	explicit := append(points, model.HistoryPoint{ISO3: model.AllCountries, Year: 2020, ValueUSD: 99})
	assert.Len(t, History(explicit, model.AllCountries), 1)
}

func TestHistoryKeepsOnePointPerYearAcrossProviders(t *testing.T) {
	points := []model.HistoryPoint{
		{Provider: "wits", ISO3: "KEN", Partner: "USA", Year: 2020, ValueUSD: 90},
		{Provider: "csv", ISO3: "KEN", Partner: "USA", Year: 2020, ValueUSD: 100},
		{Provider: "wits", ISO3: "KEN", Partner: "USA", Year: 2021, ValueUSD: 110},
		{Provider: "wits", ISO3: "NGA", Partner: "USA", Year: 2020, ValueUSD: 50},
		{Provider: "other", ISO3: "NGA", Partner: "USA", Year: 2020, ValueUSD: 70},
		{Provider: "csv", ISO3: "NGA", Partner: "CHN", Year: 2020, ValueUSD: 1000},
	}

	ken := History(points, "KEN")
	require.Len(t, ken, 2)
	assert.Equal(t, "csv", ken[0].Provider)
	assert.Equal(t, 100.0, ken[0].ValueUSD)
	assert.Equal(t, 110.0, ken[1].ValueUSD)

	nga := History(points, "NGA")
	require.Len(t, nga, 1)
	assert.Equal(t, "wits", nga[0].Provider)

	all := History(points, model.AllCountries)
	require.Len(t, all, 2)
	assert.Equal(t, 150.0, all[0].ValueUSD)
	assert.Equal(t, 110.0, all[1].ValueUSD)
}

func TestOptions(t *testing.T) {
	table := fixtureTable(t)

	countries := CountryOptions(table)
	assert.Equal(t, []string{model.AllCountries, "GHA", "KEN", "NGA", "ZAF"}, countries.Keys())
	assert.Equal(t, "Kenya", countries[2].Label)

	sectors := SectorOptions(table)
	assert.Equal(t, []string{model.AllSectors, "Textiles"}, sectors.Keys())
}

func TestParseUnit(t *testing.T) {
	unit, err := ParseUnit("PC")
	require.NoError(t, err)
	assert.Equal(t, UnitPerCapita, unit)

	unit, err = ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, UnitUSD, unit)

	_, err = ParseUnit("eur")
	assert.Error(t, err)
}

func isoCodes(entries []Entry) []string {
	codes := make([]string, len(entries))
	for i, e := range entries {
		codes[i] = e.ISO3
	}
	return codes
}

func TestPresentFormatsEntry(t *testing.T) {
	table := fixtureTable(t)
	row, ok := table.Lookup("KEN", "Textiles")
	require.True(t, ok)

	got := Present(NewEntry(row, ETRMode))
	assert.Equal(t, Display{
		Country:         "Kenya",
		Exports:         "$600",
		Tariff:          "10%",
		Impact:          "$60",
		ImpactPerCapita: "$1.2",
		ImpactGDPShare:  "0.06%",
	}, got.Display)

	placeholder, ok := table.Lookup("ZAF", "Textiles")
	require.True(t, ok)
	got = Present(NewEntry(placeholder, ETRMode))
	assert.Equal(t, "N/A", got.Display.Impact)
	assert.Equal(t, "N/A", got.Display.Tariff)

	encoded, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"iso3":"ZAF"`)
	assert.Contains(t, string(encoded), `"display":{`)
}

func TestBreakdown(t *testing.T) {
	table := fixtureTable(t)

	country := SelectionDetail(table, "KEN", model.AllSectors, ETRMode)
	assert.Equal(t, []string{"KEN"}, isoCodes(Breakdown(country, "KEN", model.AllSectors, DetailLimit)))
	assert.Equal(t, "Textiles", Breakdown(country, "KEN", model.AllSectors, DetailLimit)[0].Sector)

	sector := SelectionDetail(table, model.AllCountries, "Textiles", ETRMode)
	assert.Equal(t, []string{"KEN", "NGA"}, isoCodes(Breakdown(sector, model.AllCountries, "Textiles", DetailLimit)))

	all := SelectionDetail(table, model.AllCountries, model.AllSectors, ETRMode)
	assert.Equal(t, []string{"NGA", "KEN"}, isoCodes(Breakdown(all, model.AllCountries, model.AllSectors, DetailLimit)))
	assert.Equal(t, []string{"NGA"}, isoCodes(Breakdown(all, model.AllCountries, model.AllSectors, 1)))
}

func TestBuildDetailCountryFocus(t *testing.T) {
	table := fixtureTable(t)
	history := []model.HistoryPoint{
		{ISO3: "KEN", Year: 2021, ValueUSD: 2},
		{ISO3: "NGA", Year: 2021, ValueUSD: 5},
		{ISO3: "KEN", Year: 2020, ValueUSD: 1},
	}

	detail := BuildDetail(table, history, "KEN", model.AllSectors, ManualMode(0.5))
	require.NotNil(t, detail.Headline)
	assert.Equal(t, model.AllSectors, detail.Headline.Sector)
	assert.Equal(t, 500.0, *detail.Headline.ImpactUSD)
	require.Len(t, detail.Breakdown, 1)
	assert.Equal(t, "Textiles", detail.Breakdown[0].Sector)
	require.Len(t, detail.History, 2)
	assert.Equal(t, 2020, detail.History[0].Year)

	all := BuildDetail(table, history, model.AllCountries, model.AllSectors, ETRMode)
	require.NotNil(t, all.Headline)
	assert.Equal(t, model.AllCountries, all.Headline.ISO3)
	require.Len(t, all.History, 1)
	assert.Equal(t, 7.0, all.History[0].ValueUSD)
}

func TestBuildRanked(t *testing.T) {
	table := fixtureTable(t)
	ranked := BuildRanked(table, "Textiles", ETRMode, UnitUSD, 1)
	require.Len(t, ranked.Entries, 1)
	assert.Equal(t, "KEN", ranked.Entries[0].ISO3)
	assert.Equal(t, "$60", ranked.Entries[0].Display.Impact)
}

func TestBuildRankedSummarizesAllCountries(t *testing.T) {
	table := fixtureTable(t)

	ranked := BuildRanked(table, "Textiles", ETRMode, UnitUSD, 1)
	require.NotNil(t, ranked.Total)
	assert.InDelta(t, 90, *ranked.Total, 1e-9)
	assert.Equal(t, "$90", ranked.TotalDisplay)
	require.Len(t, ranked.TopThree, 2)
	assert.Equal(t, "KEN", ranked.TopThree[0].ISO3)
	assert.Equal(t, "NGA", ranked.TopThree[1].ISO3)

	manual := BuildRanked(table, "Textiles", ManualMode(0.5), UnitPerCapita, 0)
	require.NotNil(t, manual.Total)
	assert.InDelta(t, 450, *manual.Total, 1e-9)
	require.Len(t, manual.TopThree, 3)
	assert.Equal(t, "KEN", manual.TopThree[0].ISO3)
}

func TestTotalImpactSkipsUnknown(t *testing.T) {
	entries := []Entry{
		{ImpactUSD: num(10)},
		{ImpactUSD: nil},
		{ImpactUSD: num(5)},
	}
	total := TotalImpact(entries)
	require.NotNil(t, total)
	assert.Equal(t, 15.0, *total)

	assert.Nil(t, TotalImpact([]Entry{{}, {}}))
	assert.Nil(t, TotalImpact(nil))
}
