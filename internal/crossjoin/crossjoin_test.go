package crossjoin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tariffsim/internal/model"
)

func num(v float64) *float64 { return &v }

func TestBuildFillsGaps(t *testing.T) {
	geo := []model.GeoCountry{
		{ISO3: "KEN", ISO2: "KE", Name: "Kenya"},
		{ISO3: "NGA", ISO2: "NG", Name: "Nigeria"},
	}
	records := []model.TradeRecord{
		{ISO3: "KEN", Country: "Kenya", Sector: "Textiles", Exports: num(100), ETR: num(0.1)},
	}

	table, report := Build(records, geo)
	require.True(t, report.Empty())

	rows := table.Rows()
	require.Len(t, rows, 2)

	assert.Equal(t, "KEN", rows[0].ISO3)
	assert.Equal(t, "Textiles", rows[0].Sector)
	require.NotNil(t, rows[0].Exports)
	assert.Equal(t, 100.0, *rows[0].Exports)
	require.NotNil(t, rows[0].ETR)
	assert.Equal(t, 0.1, *rows[0].ETR)

	assert.Equal(t, model.TradeRecord{ISO3: "NGA", ISO2: "NG", Country: "Nigeria", Sector: "Textiles"}, rows[1])
}

func TestBuildCompleteness(t *testing.T) {
	geo := make([]model.GeoCountry, 0, 7)
	for i := 0; i < 7; i++ {
		geo = append(geo, model.GeoCountry{ISO3: fmt.Sprintf("C%02d", i), ISO2: fmt.Sprintf("%c%c", 'A'+i, 'Z'), Name: fmt.Sprintf("Country %d", i)})
	}
	sectors := []string{model.AllSectors, "Textiles", "Minerals", "Agriculture"}
	records := []model.TradeRecord{
		{ISO3: model.AllCountries, Country: model.AllCountriesName, Sector: model.AllSectors, Exports: num(1000)},
		{ISO3: model.AllCountries, Country: model.AllCountriesName, Sector: "Textiles", Exports: num(400)},
	}
	for i, sector := range sectors {
		records = append(records, model.TradeRecord{ISO3: geo[i].ISO3, Sector: sector, Exports: num(float64(i))})
	}

	table, _ := Build(records, geo)

	seen := make(map[string]int)
	bound := 0
	aggregates := 0
	table.Each(func(row model.TradeRecord) {
		seen[row.ISO3+"|"+row.Sector]++
		if row.IsAggregateCountry() {
			aggregates++
			return
		}
		bound++
		assert.NotEmpty(t, row.ISO3)
		assert.NotEmpty(t, row.Sector)
		assert.NotEmpty(t, row.Country)
	})
	assert.Equal(t, len(geo)*len(sectors), bound)
	assert.Equal(t, 2, aggregates)
	for pair, count := range seen {
		assert.Equalf(t, 1, count, "duplicate pair %s", pair)
	}
	assert.Equal(t, sectors, table.Sectors())
}

func TestBuildRestampsCanonicalNames(t *testing.T) {
	geo := []model.GeoCountry{{ISO3: "CIV", ISO2: "CI", Name: "Côte d'Ivoire"}}
	records := []model.TradeRecord{
		{ISO3: "CIV", ISO2: "", Country: "Ivory Coast", Sector: "Cocoa", Exports: num(5)},
	}

	table, _ := Build(records, geo)

	row, ok := table.Lookup("CIV", "Cocoa")
	require.True(t, ok)
	assert.Equal(t, "Côte d'Ivoire", row.Country)
	assert.Equal(t, "CI", row.ISO2)
	assert.Equal(t, 5.0, *row.Exports)
}

func TestBuildJoinsOnISO2(t *testing.T) {
	geo := []model.GeoCountry{
		{ISO3: "ZAF", ISO2: "ZA", Name: "South Africa"},
		{ISO3: "EGY", ISO2: "EG", Name: "Egypt"},
	}
	records := []model.TradeRecord{
		{ISO3: "za", Sector: "Autos", Exports: num(10)},
		{ISO2: "EG", Sector: "Autos", Exports: num(20)},
	}

	table, report := Build(records, geo)
	require.True(t, report.Empty())

	za, ok := table.Lookup("ZAF", "Autos")
	require.True(t, ok)
	assert.Equal(t, 10.0, *za.Exports)

	eg, ok := table.Lookup("EGY", "Autos")
	require.True(t, ok)
	assert.Equal(t, 20.0, *eg.Exports)
}

func TestBuildFallsBackToISO2ForUnknownISO3(t *testing.T) {
	geo := []model.GeoCountry{{ISO3: "SSD", ISO2: "SS", Name: "South Sudan"}}
	records := []model.TradeRecord{
		{ISO3: "SDS", ISO2: "SS", Sector: "Oil", Exports: num(10)},
		{ISO3: "XXX", Sector: "Oil", Exports: num(1)},
	}

	table, report := Build(records, geo)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, "XXX", report.Unmatched[0].ISO3)

	row, ok := table.Lookup("SSD", "Oil")
	require.True(t, ok)
	assert.Equal(t, "South Sudan", row.Country)
	require.NotNil(t, row.Exports)
	assert.Equal(t, 10.0, *row.Exports)
}

func TestBuildReportsUnmatchedAndDuplicates(t *testing.T) {
	geo := []model.GeoCountry{{ISO3: "KEN", ISO2: "KE", Name: "Kenya"}}
	first := model.TradeRecord{ISO3: "KEN", Sector: "Tea", Exports: num(1)}
	dup := model.TradeRecord{ISO3: "KEN", Sector: "Tea", Exports: num(2)}
	stray := model.TradeRecord{ISO3: "MYT", Sector: "Tea", Exports: num(3)}
	aggregate := model.TradeRecord{ISO3: model.AllCountries, Sector: "Tea", Exports: num(6)}

	table, report := Build([]model.TradeRecord{first, dup, stray, aggregate}, geo)

	assert.Equal(t, []model.TradeRecord{stray}, report.Unmatched)
	assert.Equal(t, []model.TradeRecord{dup}, report.Duplicates)

	row, ok := table.Lookup("KEN", "Tea")
	require.True(t, ok)
	assert.Equal(t, 1.0, *row.Exports)

	all, ok := table.Lookup(model.AllCountries, "Tea")
	require.True(t, ok)
	assert.Equal(t, aggregate, all)
	assert.Equal(t, 2, table.Len())
}

func TestRowsReturnsCopy(t *testing.T) {
	geo := []model.GeoCountry{{ISO3: "KEN", Name: "Kenya"}}
	table, _ := Build([]model.TradeRecord{{ISO3: "KEN", Sector: "Tea"}}, geo)

	rows := table.Rows()
	rows[0].Country = "changed"

	row, _ := table.Lookup("KEN", "Tea")
	assert.Equal(t, "Kenya", row.Country)
}

func TestHasCountryAndSector(t *testing.T) {
	geo := []model.GeoCountry{{ISO3: "KEN", Name: "Kenya"}}
	table, _ := Build([]model.TradeRecord{{ISO3: "KEN", Sector: "Tea"}}, geo)

	assert.True(t, table.HasCountry("KEN"))
	assert.True(t, table.HasCountry(model.AllCountries))
	assert.False(t, table.HasCountry("NGA"))
	assert.True(t, table.HasSector("Tea"))
	assert.True(t, table.HasSector(model.AllSectors))
	assert.False(t, table.HasSector("Oil"))
}
