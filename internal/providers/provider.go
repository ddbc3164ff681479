package providers

import (
	"context"

	"tariffsim/internal/model"
)

// HistoryProvider fetches annual export totals from a reporter to a partner.
type HistoryProvider interface {
	Name() string
	ListReporters(ctx context.Context) ([]model.GeoCountry, error)
	// LatestYear reports the most recent year with data for reporter.
	LatestYear(ctx context.Context, reporterISO3 string) (int, error)
	FetchSeries(ctx context.Context, reporterISO3, partnerISO3 string, fromYear, toYear int) ([]model.HistoryPoint, error)
}
