package views

import (
	"tariffsim/internal/format"
	"tariffsim/internal/model"
)

// DetailLimit is how many breakdown rows the selection detail shows.
const DetailLimit = 5

// Display holds the formatted strings for an entry.
type Display struct {
	Country         string `json:"country"`
	Exports         string `json:"exports"`
	Tariff          string `json:"tariff"`
	Impact          string `json:"impact"`
	ImpactPerCapita string `json:"impact_pc"`
	ImpactGDPShare  string `json:"impact_pct"`
}

type Row struct {
	Entry
	Display Display `json:"display"`
}

func Present(e Entry) Row {
	country := e.Country
	if e.IsAggregateCountry() && country == "" {
		country = model.AllCountriesName
	}
	return Row{
		Entry: e,
		Display: Display{
			Country:         country,
			Exports:         format.Currency(e.Exports, format.CurrencyOptions{}),
			Tariff:          format.Percentage(e.TariffRate, format.TariffPercent),
			Impact:          format.Currency(e.ImpactUSD, format.CurrencyOptions{}),
			ImpactPerCapita: format.Currency(e.ImpactPerCapita, format.CurrencyOptions{PerPerson: true}),
			ImpactGDPShare:  format.Percentage(percentOf(e.ImpactGDPShare), format.PercentOptions{}),
		},
	}
}

func PresentAll(entries []Entry) []Row {
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Present(e)
	}
	return rows
}

// Breakdown returns the rows shown under the headline: the sectors of a
// focused country, the countries of a focused sector, or the country totals
// when nothing is focused. At most limit rows are kept, largest impact first.
func Breakdown(entries []Entry, country, sector string, limit int) []Entry {
	var keep func(Entry) bool
	switch {
	case country != model.AllCountries:
		keep = func(e Entry) bool { return !e.IsAggregateSector() }
	case sector != model.AllSectors:
		keep = func(e Entry) bool { return !e.IsAggregateCountry() }
	default:
		keep = func(e Entry) bool { return e.IsAggregateSector() && !e.IsAggregateCountry() }
	}

	detail := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			detail = append(detail, e)
		}
	}
	return Top(detail, limit, UnitUSD)
}

func percentOf(share *float64) *float64 {
	if share == nil {
		return nil
	}
	return model.Num(*share * 100)
}
