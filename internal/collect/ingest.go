// Package collect fills the store: trade records from CSV or computed from
// customs lines, and annual export history from a provider.
package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tariffsim/internal/dataset"
	"tariffsim/internal/etr"
	"tariffsim/internal/model"
	"tariffsim/internal/store"
)

const csvProvider = "csv"

var ErrNoInput = errors.New("collect: no trade input configured")

// IngestOptions names the input files. ExportLinesCSV takes precedence over
// TradeCSV; TariffFiles, SectorGroups and Denominators only apply to it.
type IngestOptions struct {
	TradeCSV       string
	ExportLinesCSV string
	TariffFiles    []string
	SectorGroups   string
	Denominators   string
	DefaultRate    float64
	HistoryCSV     string
}

type IngestStats struct {
	Lines   int
	Records int
	History int
}

func Ingest(ctx context.Context, st store.Store, opts IngestOptions, logger zerolog.Logger) (IngestStats, error) {
	var stats IngestStats

	switch {
	case strings.TrimSpace(opts.ExportLinesCSV) != "":
		records, lines, err := computeRecords(opts, logger)
		if err != nil {
			return stats, err
		}
		stats.Lines = lines
		if err := st.UpsertTradeRecords(ctx, records); err != nil {
			return stats, fmt.Errorf("store trade records: %w", err)
		}
		stats.Records = len(records)
	case strings.TrimSpace(opts.TradeCSV) != "":
		records, err := dataset.ReadFile(opts.TradeCSV, dataset.ReadTradeRecords)
		if err != nil {
			return stats, fmt.Errorf("trade records: %w", err)
		}
		if err := st.UpsertTradeRecords(ctx, records); err != nil {
			return stats, fmt.Errorf("store trade records: %w", err)
		}
		stats.Records = len(records)
	default:
		return stats, ErrNoInput
	}

	if strings.TrimSpace(opts.HistoryCSV) != "" {
		points, err := dataset.ReadFile(opts.HistoryCSV, dataset.ReadHistory)
		if err != nil {
			return stats, fmt.Errorf("history: %w", err)
		}
		for i := range points {
			if points[i].Provider == "" {
				points[i].Provider = csvProvider
			}
		}
		if err := st.UpsertHistory(ctx, points); err != nil {
			return stats, fmt.Errorf("store history: %w", err)
		}
		stats.History = len(points)
	}

	logger.Info().
		Int("lines", stats.Lines).
		Int("records", stats.Records).
		Int("history", stats.History).
		Msg("ingest complete")
	return stats, nil
}

func computeRecords(opts IngestOptions, logger zerolog.Logger) ([]model.TradeRecord, int, error) {
	lines, err := dataset.ReadFile(opts.ExportLinesCSV, dataset.ReadExportLines)
	if err != nil {
		return nil, 0, fmt.Errorf("export lines: %w", err)
	}
	if strings.TrimSpace(opts.SectorGroups) == "" {
		return nil, 0, errors.New("collect: sector groups are required with export lines")
	}
	groups, err := dataset.LoadSectorGroups(opts.SectorGroups)
	if err != nil {
		return nil, 0, err
	}
	files, err := dataset.LoadTariffFiles(opts.TariffFiles...)
	if err != nil {
		return nil, 0, err
	}
	rate := opts.DefaultRate
	if rate <= 0 {
		rate = etr.DefaultRate
	}
	schedule := etr.NewSchedule(rate, files...)
	logger.Debug().Int("codes", schedule.Len()).Int("tariff_files", len(files)).Msg("tariff schedule loaded")

	records := etr.Compute(lines, schedule, groups)
	if strings.TrimSpace(opts.Denominators) != "" {
		bases, err := dataset.ReadFile(opts.Denominators, dataset.ReadDenominators)
		if err != nil {
			return nil, 0, fmt.Errorf("denominators: %w", err)
		}
		records = etr.ApplyDenominators(records, bases)
	}
	return records, len(lines), nil
}
