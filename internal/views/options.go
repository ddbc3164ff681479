package views

import (
	"sort"

	"tariffsim/internal/crossjoin"
	"tariffsim/internal/model"
)

// Option is one selectable key with its display label.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type Options []Option

func (o Options) Keys() []string {
	keys := make([]string, len(o))
	for i, option := range o {
		keys[i] = option.Key
	}
	return keys
}

// CountryOptions lists "All countries" followed by the geo countries by name.
func CountryOptions(table *crossjoin.Table) Options {
	countries := table.Countries()
	sort.SliceStable(countries, func(i, j int) bool {
		return countries[i].Name < countries[j].Name
	})
	options := make(Options, 0, len(countries)+1)
	options = append(options, Option{Key: model.AllCountries, Label: model.AllCountriesName})
	for _, country := range countries {
		options = append(options, Option{Key: country.ISO3, Label: country.Name})
	}
	return options
}

// SectorOptions lists "All sectors" followed by the observed sectors.
func SectorOptions(table *crossjoin.Table) Options {
	options := Options{{Key: model.AllSectors, Label: model.AllSectors}}
	for _, sector := range table.Sectors() {
		if sector == model.AllSectors {
			continue
		}
		options = append(options, Option{Key: sector, Label: sector})
	}
	return options
}
