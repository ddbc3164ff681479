package views

import (
	"fmt"
	"sort"
	"strings"
)

// Unit is the metric a ranked display orders by.
type Unit string

const (
	UnitUSD       Unit = "usd"
	UnitPerCapita Unit = "pc"
	UnitGDPShare  Unit = "gdp"
)

func ParseUnit(value string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "usd":
		return UnitUSD, nil
	case "pc", "per-capita", "percapita":
		return UnitPerCapita, nil
	case "gdp", "pct":
		return UnitGDPShare, nil
	default:
		return "", fmt.Errorf("unknown unit: %s", value)
	}
}

func (u Unit) Value(e Entry) *float64 {
	switch u {
	case UnitPerCapita:
		return e.ImpactPerCapita
	case UnitGDPShare:
		return e.ImpactGDPShare
	default:
		return e.ImpactUSD
	}
}

// SortByUnit drops entries without a value for unit and orders the rest
// descending. Ties keep their input order.
func SortByUnit(entries []Entry, unit Unit) []Entry {
	ranked := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if unit.Value(e) != nil {
			ranked = append(ranked, e)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return *unit.Value(ranked[i]) > *unit.Value(ranked[j])
	})
	return ranked
}

// Top returns the n highest entries by unit. n <= 0 returns all ranked entries.
func Top(entries []Entry, n int, unit Unit) []Entry {
	ranked := SortByUnit(entries, unit)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
