// Package views projects the cross-joined table into the datasets each
// dashboard view renders. Every function is pure: the same table and
// parameters always give the same result.
package views

import (
	"sort"
	"strings"

	"tariffsim/internal/crossjoin"
	"tariffsim/internal/impact"
	"tariffsim/internal/model"
)

// TariffMode selects which tariff rate feeds the impact metrics. In ETR mode
// each row uses its own effective tariff rate; otherwise Manual applies to all.
type TariffMode struct {
	ETR    bool    `json:"etr"`
	Manual float64 `json:"manual"`
}

var ETRMode = TariffMode{ETR: true}

func ManualMode(rate float64) TariffMode {
	return TariffMode{Manual: rate}
}

func (m TariffMode) Rate(record model.TradeRecord) *float64 {
	if m.ETR {
		return record.ETR
	}
	return model.Num(m.Manual)
}

// Entry is a table row with impact metrics for one tariff mode.
type Entry struct {
	model.TradeRecord
	TariffRate      *float64 `json:"tariff_rate"`
	ImpactUSD       *float64 `json:"impact_usd"`
	ImpactPerCapita *float64 `json:"impact_pc"`
	ImpactGDPShare  *float64 `json:"impact_pct"`
}

func NewEntry(record model.TradeRecord, mode TariffMode) Entry {
	rate := mode.Rate(record)
	usd := impact.USD(record.Exports, rate)
	return Entry{
		TradeRecord:     record,
		TariffRate:      rate,
		ImpactUSD:       usd,
		ImpactPerCapita: impact.Ratio(usd, record.Population),
		ImpactGDPShare:  impact.Ratio(usd, record.GDP),
	}
}

// MapOverlay returns a copy of fc whose features carry the ETR of the
// matching (country, sector) row, or nil when there is none.
func MapOverlay(table *crossjoin.Table, fc model.FeatureCollection, sector string) model.FeatureCollection {
	out := model.FeatureCollection{
		Type:     fc.Type,
		Features: make([]model.Feature, 0, len(fc.Features)),
	}
	if out.Type == "" {
		out.Type = "FeatureCollection"
	}
	for _, feature := range fc.Features {
		props := make(map[string]any, len(feature.Properties)+1)
		for k, v := range feature.Properties {
			props[k] = v
		}
		var etr *float64
		if iso3, ok := feature.Properties["iso3"].(string); ok {
			if row, found := table.Lookup(strings.ToUpper(strings.TrimSpace(iso3)), sector); found {
				etr = row.ETR
			}
		}
		props["etr"] = etr
		out.Features = append(out.Features, model.Feature{
			Type:       feature.Type,
			Properties: props,
			Geometry:   feature.Geometry,
		})
	}
	return out
}

// RankedList returns every country row for sector, in table order, with
// metrics computed under mode. Ordering is left to the caller; see Top.
func RankedList(table *crossjoin.Table, sector string, mode TariffMode) []Entry {
	entries := make([]Entry, 0)
	table.Each(func(row model.TradeRecord) {
		if row.Sector != sector || row.IsAggregateCountry() {
			return
		}
		entries = append(entries, NewEntry(row, mode))
	})
	return entries
}

// SelectionDetail filters the table by the active selection: all sectors of
// a country, all countries of a sector, or everything when neither is set.
// The aggregate row stays in the result; Headline separates it.
func SelectionDetail(table *crossjoin.Table, country, sector string, mode TariffMode) []Entry {
	var keep func(model.TradeRecord) bool
	switch {
	case country != model.AllCountries:
		keep = func(row model.TradeRecord) bool { return row.ISO3 == country }
	case sector != model.AllSectors:
		keep = func(row model.TradeRecord) bool { return row.Sector == sector }
	default:
		keep = func(model.TradeRecord) bool { return true }
	}

	entries := make([]Entry, 0)
	table.Each(func(row model.TradeRecord) {
		if keep(row) {
			entries = append(entries, NewEntry(row, mode))
		}
	})
	return entries
}

// Headline splits the aggregate row for the selection from the breakdown.
func Headline(entries []Entry, country, sector string) (*Entry, []Entry) {
	isHeadline := func(e Entry) bool {
		switch {
		case country != model.AllCountries:
			return e.IsAggregateSector()
		case sector != model.AllSectors:
			return e.IsAggregateCountry()
		default:
			return e.IsAggregateCountry() && e.IsAggregateSector()
		}
	}

	var headline *Entry
	rest := make([]Entry, 0, len(entries))
	for i := range entries {
		if headline == nil && isHeadline(entries[i]) {
			e := entries[i]
			headline = &e
			continue
		}
		rest = append(rest, entries[i])
	}
	return headline, rest
}

// Aggregate looks up the all countries / all sectors row.
func Aggregate(table *crossjoin.Table, mode TariffMode) (Entry, bool) {
	row, ok := table.Lookup(model.AllCountries, model.AllSectors)
	if !ok {
		return Entry{}, false
	}
	return NewEntry(row, mode), true
}

// ProviderPrecedence ranks history sources when more than one reports the
// same country and year. Unlisted providers rank after these, by name.
var ProviderPrecedence = []string{"csv", "wits"}

// History returns the yearly export series to the default partner for iso3,
// one point per year. For the all-countries selection, explicit "ALL" points
// win; otherwise countries are summed.
func History(points []model.HistoryPoint, iso3 string) []model.HistoryPoint {
	points = UniqueHistory(points)
	series := make([]model.HistoryPoint, 0)
	for _, point := range points {
		if point.ISO3 == iso3 {
			series = append(series, point)
		}
	}
	if len(series) == 0 && iso3 == model.AllCountries {
		byYear := make(map[int]float64)
		for _, point := range points {
			byYear[point.Year] += point.ValueUSD
		}
		for year, value := range byYear {
			series = append(series, model.HistoryPoint{
				ISO3:     model.AllCountries,
				Partner:  model.DefaultPartner,
				Country:  model.AllCountriesName,
				Year:     year,
				ValueUSD: value,
			})
		}
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Year < series[j].Year
	})
	return series
}

type historyKey struct {
	iso3 string
	year int
}

// UniqueHistory keeps the default-partner points, one per (iso3, year),
// choosing by ProviderPrecedence. Input order is preserved.
func UniqueHistory(points []model.HistoryPoint) []model.HistoryPoint {
	chosen := make(map[historyKey]int)
	out := make([]model.HistoryPoint, 0, len(points))
	for _, point := range points {
		if point.Partner != "" && point.Partner != model.DefaultPartner {
			continue
		}
		k := historyKey{iso3: point.ISO3, year: point.Year}
		i, ok := chosen[k]
		if !ok {
			chosen[k] = len(out)
			out = append(out, point)
			continue
		}
		if providerBefore(point.Provider, out[i].Provider) {
			out[i] = point
		}
	}
	return out
}

func providerBefore(a, b string) bool {
	ra, rb := providerRank(a), providerRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

func providerRank(provider string) int {
	for i, name := range ProviderPrecedence {
		if provider == name {
			return i
		}
	}
	return len(ProviderPrecedence)
}
