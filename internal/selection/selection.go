// Package selection keeps the dashboard's country, sector and tariff inputs
// consistent. Country and sector focus are mutually exclusive, and the
// displayed tariff either follows the selection's ETR or a manual value.
package selection

import (
	"errors"
	"math"

	"tariffsim/internal/model"
	"tariffsim/internal/views"
)

var ErrInvalidTariff = errors.New("selection: tariff must be a number")

type Focus string

const (
	FocusAll     Focus = "all"
	FocusCountry Focus = "country"
	FocusSector  Focus = "sector"
)

// Lookuper finds the row for a (country, sector) pair.
type Lookuper interface {
	Lookup(iso3, sector string) (model.TradeRecord, bool)
}

type State struct {
	Country      string   `json:"country"`
	Sector       string   `json:"sector"`
	ETRMode      bool     `json:"etr_mode"`
	ManualTariff float64  `json:"manual_tariff"`
	Tariff       *float64 `json:"tariff"`
}

func (s State) Focus() Focus {
	switch {
	case s.Country != model.AllCountries:
		return FocusCountry
	case s.Sector != model.AllSectors:
		return FocusSector
	default:
		return FocusAll
	}
}

func (s State) Mode() views.TariffMode {
	if s.ETRMode {
		return views.ETRMode
	}
	return views.ManualMode(s.ManualTariff)
}

// Synchronizer owns a State and applies the named transitions to it. It is
// not safe for concurrent use; callers serialize transitions.
type Synchronizer struct {
	lookup Lookuper
	state  State
}

func New(lookup Lookuper) *Synchronizer {
	s := &Synchronizer{
		lookup: lookup,
		state: State{
			Country: model.AllCountries,
			Sector:  model.AllSectors,
			ETRMode: true,
		},
	}
	s.refresh()
	return s
}

func (s *Synchronizer) State() State {
	return s.state
}

func (s *Synchronizer) Focus() Focus {
	return s.state.Focus()
}

func (s *Synchronizer) Mode() views.TariffMode {
	return s.state.Mode()
}

func (s *Synchronizer) SelectCountry(iso3 string) State {
	if iso3 == "" {
		iso3 = model.AllCountries
	}
	next := s.state
	if iso3 != model.AllCountries {
		next.Sector = model.AllSectors
	}
	next.Country = iso3
	s.state = next
	s.refresh()
	return s.state
}

func (s *Synchronizer) SelectSector(sector string) State {
	if sector == "" {
		sector = model.AllSectors
	}
	next := s.state
	if sector != model.AllSectors {
		next.Country = model.AllCountries
	}
	next.Sector = sector
	s.state = next
	s.refresh()
	return s.state
}

// SetManualTariff switches to manual mode. The rate is clamped to [0,1].
func (s *Synchronizer) SetManualTariff(rate float64) (State, error) {
	if math.IsNaN(rate) {
		return s.state, ErrInvalidTariff
	}
	s.state.ETRMode = false
	s.state.ManualTariff = clamp(rate)
	s.refresh()
	return s.state, nil
}

func (s *Synchronizer) ResetToETR() State {
	s.state.ETRMode = true
	s.refresh()
	return s.state
}

// CurrentETR is the effective tariff rate of the current selection.
func (s *Synchronizer) CurrentETR() *float64 {
	if s.lookup == nil {
		return nil
	}
	row, ok := s.lookup.Lookup(s.state.Country, s.state.Sector)
	if !ok || row.ETR == nil {
		return nil
	}
	etr := *row.ETR
	return &etr
}

func (s *Synchronizer) refresh() {
	if s.state.ETRMode {
		s.state.Tariff = s.CurrentETR()
		return
	}
	manual := s.state.ManualTariff
	s.state.Tariff = &manual
}

func clamp(rate float64) float64 {
	return math.Max(0, math.Min(1, rate))
}
