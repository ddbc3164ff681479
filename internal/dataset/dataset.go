// Package dataset loads the trade, geography and history inputs and holds
// the cross-joined table built from them.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"tariffsim/internal/crossjoin"
	"tariffsim/internal/model"
	"tariffsim/internal/store"
)

// Dataset is everything the views need. It is read-only once built and can
// be shared between goroutines.
type Dataset struct {
	Table       *crossjoin.Table
	Geo         model.FeatureCollection
	History     []model.HistoryPoint
	Report      crossjoin.Report
	GeneratedAt time.Time
	version     string
}

// New cross-joins records against the countries in geo. Records that cannot
// be placed on the map are logged, not rejected.
func New(records []model.TradeRecord, geo model.FeatureCollection, history []model.HistoryPoint, logger zerolog.Logger) *Dataset {
	table, report := crossjoin.Build(records, GeoCountries(geo))
	if !report.Empty() {
		logger.Warn().
			Int("unmatched", len(report.Unmatched)).
			Int("duplicates", len(report.Duplicates)).
			Msg("trade records needed reconciliation")
	}
	for _, record := range report.Unmatched {
		logger.Warn().
			Str("iso3", record.ISO3).
			Str("iso2", record.ISO2).
			Str("sector", record.Sector).
			Msg("trade record has no matching geo country")
	}
	for _, record := range report.Duplicates {
		logger.Warn().
			Str("iso3", record.ISO3).
			Str("sector", record.Sector).
			Msg("duplicate trade record ignored")
	}
	logger.Info().
		Int("records", len(records)).
		Int("rows", table.Len()).
		Int("sectors", len(table.Sectors())).
		Int("countries", len(table.Countries())).
		Int("history", len(history)).
		Msg("dataset built")

	return &Dataset{
		Table:       table,
		Geo:         geo,
		History:     history,
		Report:      report,
		GeneratedAt: time.Now().UTC(),
		version:     fingerprint(table.Rows(), history),
	}
}

// Version identifies the content of the dataset; it changes whenever a row
// or history point changes.
func (d *Dataset) Version() string {
	return d.version
}

// Files names the on-disk inputs for Load.
type Files struct {
	TradeCSV   string
	GeoJSON    string
	HistoryCSV string
}

// Load builds a dataset from files, reading trade records and history from
// st when the corresponding file is not configured. The geography always
// comes from GeoJSON.
func Load(ctx context.Context, files Files, st store.Store, logger zerolog.Logger) (*Dataset, error) {
	if st == nil {
		st = &store.NopStore{}
	}

	var (
		records []model.TradeRecord
		err     error
	)
	if files.TradeCSV != "" {
		records, err = ReadFile(files.TradeCSV, ReadTradeRecords)
	} else {
		records, err = st.ListTradeRecords(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("trade records: %w", err)
	}

	geo, err := ReadFile(files.GeoJSON, ReadGeoJSON)
	if err != nil {
		return nil, fmt.Errorf("geo reference: %w", err)
	}

	var history []model.HistoryPoint
	if files.HistoryCSV != "" {
		history, err = ReadFile(files.HistoryCSV, ReadHistory)
	} else {
		history, err = st.ListHistory(ctx, "")
	}
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return New(records, geo, history, logger), nil
}

// ReadFile opens path and hands it to read.
func ReadFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	file, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer file.Close()
	return read(file)
}

func fingerprint(rows []model.TradeRecord, history []model.HistoryPoint) string {
	hash := sha256.New()
	encoder := json.NewEncoder(hash)
	_ = encoder.Encode(rows)
	_ = encoder.Encode(history)
	return hex.EncodeToString(hash.Sum(nil))[:16]
}
