// Package crossjoin densifies sparse trade records into one row per
// geographic country and sector.
package crossjoin

import (
	"strings"

	"tariffsim/internal/model"
)

// Report lists raw records that did not make it into the geography-bound rows.
type Report struct {
	Unmatched  []model.TradeRecord
	Duplicates []model.TradeRecord
}

func (r Report) Empty() bool {
	return len(r.Unmatched) == 0 && len(r.Duplicates) == 0
}

// Table is the dense cross-joined dataset. It is never modified after Build.
type Table struct {
	rows      []model.TradeRecord
	sectors   []string
	countries []model.GeoCountry
	index     map[string]int
}

// Build returns one row per (geo country, sector) pair, in geo order and then
// sector order, followed by the raw "ALL" rows unchanged. Records whose
// country is not in geo are left out and reported.
func Build(records []model.TradeRecord, geo []model.GeoCountry) (*Table, Report) {
	var report Report

	sectors := distinctSectors(records)
	countries, byISO2 := canonicalCountries(geo)
	known := make(map[string]struct{}, len(countries))
	for _, country := range countries {
		known[country.ISO3] = struct{}{}
	}

	matched := make(map[string]model.TradeRecord, len(records))
	aggregates := make([]model.TradeRecord, 0)
	for _, record := range records {
		if record.IsAggregateCountry() {
			aggregates = append(aggregates, record)
			continue
		}
		iso3, ok := resolveISO3(record, known, byISO2)
		if !ok {
			report.Unmatched = append(report.Unmatched, record)
			continue
		}
		k := key(iso3, record.Sector)
		if _, exists := matched[k]; exists {
			report.Duplicates = append(report.Duplicates, record)
			continue
		}
		matched[k] = record
	}

	table := &Table{
		rows:      make([]model.TradeRecord, 0, len(countries)*len(sectors)+len(aggregates)),
		sectors:   sectors,
		countries: countries,
		index:     make(map[string]int, len(countries)*len(sectors)+len(aggregates)),
	}
	for _, country := range countries {
		for _, sector := range sectors {
			row, ok := matched[key(country.ISO3, sector)]
			if !ok {
				row = model.TradeRecord{Sector: sector}
			}
			row.ISO3 = country.ISO3
			row.ISO2 = country.ISO2
			row.Country = country.Name
			table.add(row)
		}
	}
	for _, row := range aggregates {
		table.add(row)
	}

	return table, report
}

func (t *Table) add(row model.TradeRecord) {
	k := key(row.ISO3, row.Sector)
	if _, exists := t.index[k]; !exists {
		t.index[k] = len(t.rows)
	}
	t.rows = append(t.rows, row)
}

// Rows returns a copy of every row in table order.
func (t *Table) Rows() []model.TradeRecord {
	out := make([]model.TradeRecord, len(t.rows))
	copy(out, t.rows)
	return out
}

// Each calls fn for each row in table order without copying the slice.
func (t *Table) Each(fn func(model.TradeRecord)) {
	for _, row := range t.rows {
		fn(row)
	}
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Sectors() []string {
	out := make([]string, len(t.sectors))
	copy(out, t.sectors)
	return out
}

func (t *Table) Countries() []model.GeoCountry {
	out := make([]model.GeoCountry, len(t.countries))
	copy(out, t.countries)
	return out
}

func (t *Table) HasCountry(iso3 string) bool {
	if iso3 == model.AllCountries {
		return true
	}
	for _, country := range t.countries {
		if country.ISO3 == iso3 {
			return true
		}
	}
	return false
}

func (t *Table) HasSector(sector string) bool {
	if sector == model.AllSectors {
		return true
	}
	for _, s := range t.sectors {
		if s == sector {
			return true
		}
	}
	return false
}

// Lookup returns the first row for (iso3, sector).
func (t *Table) Lookup(iso3, sector string) (model.TradeRecord, bool) {
	if t == nil {
		return model.TradeRecord{}, false
	}
	i, ok := t.index[key(iso3, sector)]
	if !ok {
		return model.TradeRecord{}, false
	}
	return t.rows[i], true
}

func distinctSectors(records []model.TradeRecord) []string {
	seen := make(map[string]struct{})
	sectors := make([]string, 0)
	for _, record := range records {
		if _, ok := seen[record.Sector]; ok {
			continue
		}
		seen[record.Sector] = struct{}{}
		sectors = append(sectors, record.Sector)
	}
	return sectors
}

func canonicalCountries(geo []model.GeoCountry) ([]model.GeoCountry, map[string]string) {
	countries := make([]model.GeoCountry, 0, len(geo))
	byISO2 := make(map[string]string, len(geo))
	seen := make(map[string]struct{}, len(geo))
	for _, country := range geo {
		iso3 := normalizeCode(country.ISO3)
		if iso3 == "" {
			continue
		}
		if _, ok := seen[iso3]; ok {
			continue
		}
		seen[iso3] = struct{}{}
		iso2 := normalizeCode(country.ISO2)
		if iso2 != "" {
			byISO2[iso2] = iso3
		}
		countries = append(countries, model.GeoCountry{ISO3: iso3, ISO2: iso2, Name: country.Name})
	}
	return countries, byISO2
}

// resolveISO3 maps a record onto a geo country. Upstream sources are not
// consistent about which code they fill in, so a 2-letter value in either
// column is translated through the geo reference, and an unknown 3-letter
// code falls back to the record's ISO2.
func resolveISO3(record model.TradeRecord, known map[string]struct{}, byISO2 map[string]string) (string, bool) {
	code := normalizeCode(record.ISO3)
	if _, ok := known[code]; ok && len(code) == 3 {
		return code, true
	}
	if len(code) == 2 {
		if iso3, ok := byISO2[code]; ok {
			return iso3, true
		}
	}
	if iso2 := normalizeCode(record.ISO2); iso2 != "" {
		if iso3, ok := byISO2[iso2]; ok {
			return iso3, true
		}
	}
	return "", false
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func key(iso3, sector string) string {
	return iso3 + "|" + sector
}
