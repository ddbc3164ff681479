// Package etr derives effective tariff rates from HS-coded export lines and a
// tariff schedule.
package etr

import (
	"sort"
	"strings"

	"tariffsim/internal/model"
)

const (
	DefaultRate     = 0.10
	minPrefixLength = 4
)

// TariffFile is one tariff action: a rate for a set of HS code prefixes plus
// codes exempted from it.
type TariffFile struct {
	Name       string   `yaml:"name" json:"name"`
	Rate       float64  `yaml:"rate" json:"rate"`
	Codes      []string `yaml:"codes" json:"codes"`
	Exceptions []string `yaml:"exceptions" json:"exceptions"`
}

// Schedule maps HS code prefixes to tariff rates.
type Schedule struct {
	rates       map[string]float64
	defaultRate float64
}

// NewSchedule merges files in order; later files override earlier ones and
// exceptions always map to a zero rate.
func NewSchedule(defaultRate float64, files ...TariffFile) *Schedule {
	s := &Schedule{rates: make(map[string]float64), defaultRate: defaultRate}
	for _, file := range files {
		for _, code := range file.Codes {
			s.rates[normalizeCode(code)] = file.Rate
		}
		for _, code := range file.Exceptions {
			s.rates[normalizeCode(code)] = 0
		}
	}
	return s
}

// Rate returns the rate of the longest matching prefix of code, trying
// prefixes down to four digits before falling back to the default.
func (s *Schedule) Rate(code string) float64 {
	code = normalizeCode(code)
	for length := len(code); length >= minPrefixLength; length-- {
		if rate, ok := s.rates[code[:length]]; ok {
			return rate
		}
	}
	return s.defaultRate
}

func (s *Schedule) Len() int {
	return len(s.rates)
}

// SectorGroups assigns HS chapters (two-digit prefixes) to sectors.
type SectorGroups map[string][]string

func (g SectorGroups) index() map[string]string {
	byChapter := make(map[string]string)
	for sector, chapters := range g {
		for _, chapter := range chapters {
			byChapter[padChapter(chapter)] = sector
		}
	}
	return byChapter
}

func (g SectorGroups) Sector(code string) (string, bool) {
	sector, ok := g.index()[chapterOf(code)]
	return sector, ok
}

// ExportLine is one product-level export value for a country.
type ExportLine struct {
	ISO3        string
	Country     string
	ProductCode string
	Exports     float64
}

type groupKey struct {
	iso3   string
	sector string
}

type accumulator struct {
	country  string
	exports  float64
	weighted float64
}

// Compute aggregates export lines into trade records at four levels: country
// by sector, country total, sector total across countries, and the overall
// total. ETR is the export-weighted mean rate; it is nil when exports sum to
// zero. Lines whose product maps to no sector are skipped. Records are
// ordered by country name, sector and ISO3.
func Compute(lines []ExportLine, schedule *Schedule, groups SectorGroups) []model.TradeRecord {
	byChapter := groups.index()
	acc := make(map[groupKey]*accumulator)
	add := func(k groupKey, country string, exports, rate float64) {
		a, ok := acc[k]
		if !ok {
			a = &accumulator{country: country}
			acc[k] = a
		}
		a.exports += exports
		a.weighted += exports * rate
	}

	for _, line := range lines {
		sector, ok := byChapter[chapterOf(line.ProductCode)]
		if !ok {
			continue
		}
		rate := schedule.Rate(line.ProductCode)
		iso3 := strings.ToUpper(strings.TrimSpace(line.ISO3))
		add(groupKey{iso3, sector}, line.Country, line.Exports, rate)
		add(groupKey{iso3, model.AllSectors}, line.Country, line.Exports, rate)
		add(groupKey{model.AllCountries, sector}, model.AllCountriesName, line.Exports, rate)
		add(groupKey{model.AllCountries, model.AllSectors}, model.AllCountriesName, line.Exports, rate)
	}

	records := make([]model.TradeRecord, 0, len(acc))
	for k, a := range acc {
		record := model.TradeRecord{
			ISO3:    k.iso3,
			Country: a.country,
			Sector:  k.sector,
			Exports: model.Num(a.exports),
		}
		if a.exports != 0 {
			record.ETR = model.Num(a.weighted / a.exports)
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Country != records[j].Country {
			return records[i].Country < records[j].Country
		}
		if records[i].Sector != records[j].Sector {
			return records[i].Sector < records[j].Sector
		}
		return records[i].ISO3 < records[j].ISO3
	})
	return records
}

// Denominators are the per-country bases for relative impact metrics.
type Denominators struct {
	GDP        *float64
	Population *float64
}

// ApplyDenominators attaches GDP and population by ISO3. Aggregate rows get
// the sum over all countries that report a value.
func ApplyDenominators(records []model.TradeRecord, bases map[string]Denominators) []model.TradeRecord {
	var gdpTotal, popTotal float64
	var hasGDP, hasPop bool
	for iso3, base := range bases {
		if iso3 == model.AllCountries {
			continue
		}
		if base.GDP != nil {
			gdpTotal += *base.GDP
			hasGDP = true
		}
		if base.Population != nil {
			popTotal += *base.Population
			hasPop = true
		}
	}

	out := make([]model.TradeRecord, len(records))
	for i, record := range records {
		if record.IsAggregateCountry() {
			if hasGDP {
				record.GDP = model.Num(gdpTotal)
			}
			if hasPop {
				record.Population = model.Num(popTotal)
			}
		} else if base, ok := bases[record.ISO3]; ok {
			record.GDP = base.GDP
			record.Population = base.Population
		}
		out[i] = record
	}
	return out
}

func normalizeCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), ".", "")
}

func padChapter(chapter string) string {
	chapter = strings.TrimSpace(chapter)
	if len(chapter) == 1 {
		return "0" + chapter
	}
	return chapter
}

func chapterOf(code string) string {
	code = padChapter(normalizeCode(code))
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}
