package views

import (
	"math"

	"tariffsim/internal/crossjoin"
	"tariffsim/internal/format"
	"tariffsim/internal/model"
)

// SummaryCount is how many countries the ranked summary names.
const SummaryCount = 3

// Ranked is the ranked-list view for one sector. Total and TopThree cover
// every country, not just the listed entries.
type Ranked struct {
	Sector  string     `json:"sector"`
	Mode    TariffMode `json:"mode"`
	Unit    Unit       `json:"unit"`
	Entries []Row      `json:"entries"`

	// Total is the summed impact in USD over countries with a known impact.
	Total        *float64 `json:"total"`
	TotalDisplay string   `json:"total_display"`
	TopThree     []Row    `json:"top_three"`
}

func BuildRanked(table *crossjoin.Table, sector string, mode TariffMode, unit Unit, top int) Ranked {
	entries := RankedList(table, sector, mode)
	total := TotalImpact(entries)
	return Ranked{
		Sector:       sector,
		Mode:         mode,
		Unit:         unit,
		Entries:      PresentAll(Top(entries, top, unit)),
		Total:        total,
		TotalDisplay: format.Currency(total, format.CurrencyOptions{Long: true}),
		TopThree:     PresentAll(Top(entries, SummaryCount, unit)),
	}
}

// TotalImpact sums ImpactUSD over entries, skipping unknown values. It is
// nil when no entry has one.
func TotalImpact(entries []Entry) *float64 {
	var sum float64
	found := false
	for _, entry := range entries {
		value, ok := model.Value(entry.ImpactUSD)
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		sum += value
		found = true
	}
	if !found {
		return nil
	}
	return model.Num(sum)
}

// Detail is the selection card: the headline row, the largest rows under
// it and the matching export history.
type Detail struct {
	Country   string               `json:"country"`
	Sector    string               `json:"sector"`
	Mode      TariffMode           `json:"mode"`
	Headline  *Row                 `json:"headline"`
	Breakdown []Row                `json:"breakdown"`
	History   []model.HistoryPoint `json:"history"`
}

func BuildDetail(table *crossjoin.Table, history []model.HistoryPoint, country, sector string, mode TariffMode) Detail {
	entries := SelectionDetail(table, country, sector, mode)
	headline, rest := Headline(entries, country, sector)

	var head *Row
	if headline != nil {
		row := Present(*headline)
		head = &row
	}
	return Detail{
		Country:   country,
		Sector:    sector,
		Mode:      mode,
		Headline:  head,
		Breakdown: PresentAll(Breakdown(rest, country, sector, DetailLimit)),
		History:   History(history, country),
	}
}
