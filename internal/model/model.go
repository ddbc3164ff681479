package model

import (
	"encoding/json"
	"math"
)

const (
	AllCountries     = "ALL"
	AllCountriesName = "All countries"
	AllSectors       = "All sectors"
)

const DefaultPartner = "USA"

// TradeRecord is one country x sector observation of exports to the US.
// A nil pointer means the value is unknown.
type TradeRecord struct {
	ISO3       string   `json:"iso3"`
	ISO2       string   `json:"iso2"`
	Country    string   `json:"country"`
	Sector     string   `json:"sector"`
	Exports    *float64 `json:"exports"`
	ETR        *float64 `json:"etr"`
	GDP        *float64 `json:"gdp"`
	Population *float64 `json:"population"`
}

func (r TradeRecord) IsAggregateCountry() bool {
	return r.ISO3 == AllCountries
}

func (r TradeRecord) IsAggregateSector() bool {
	return r.Sector == AllSectors
}

type GeoCountry struct {
	ISO3 string `json:"iso3"`
	ISO2 string `json:"iso2"`
	Name string `json:"name"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type HistoryPoint struct {
	Provider string  `json:"provider,omitempty"`
	ISO3     string  `json:"iso3"`
	Partner  string  `json:"partner,omitempty"`
	Country  string  `json:"country"`
	Year     int     `json:"year"`
	ValueUSD float64 `json:"value"`
}

// Num returns a pointer to v, or nil when v is not a finite number.
func Num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Value dereferences p, reporting whether a value was present.
func Value(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
