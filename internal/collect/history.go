package collect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"tariffsim/internal/model"
	"tariffsim/internal/providers"
	"tariffsim/internal/providers/wits"
	"tariffsim/internal/store"
)

type HistoryOptions struct {
	Partner  string
	FromYear int
	// ToYear zero means up to the latest year the provider has for each
	// reporter.
	ToYear   int
	// Limit caps the number of reporters; zero means all.
	Limit int
	// Allowed restricts reporters when non-empty.
	Allowed map[string]struct{}
}

type HistoryStats struct {
	Reporters int
	Requests  int
	Success   int
	Failed    int
	Skipped   int
	Stored    int
}

// History fetches the export series of every reporter in countries that the
// provider also reports, skipping years already stored.
func History(ctx context.Context, provider providers.HistoryProvider, st store.Store, countries []model.GeoCountry, opts HistoryOptions, logger zerolog.Logger) (HistoryStats, error) {
	var stats HistoryStats
	partner := strings.ToUpper(strings.TrimSpace(opts.Partner))
	if partner == "" {
		partner = model.DefaultPartner
	}

	reporters := resolveReporters(ctx, provider, countries, logger)
	reporters = filterReporters(reporters, opts.Allowed)
	if opts.Limit > 0 && len(reporters) > opts.Limit {
		reporters = reporters[:opts.Limit]
	}
	if len(reporters) == 0 {
		return stats, errors.New("collect: no reporters after filtering")
	}
	stats.Reporters = len(reporters)

	points := make([]model.HistoryPoint, 0)
	for _, reporter := range reporters {
		if strings.EqualFold(reporter.ISO3, partner) {
			stats.Skipped++
			continue
		}
		existing, err := existingYears(ctx, st, provider.Name(), reporter.ISO3, partner)
		if err != nil {
			return stats, err
		}

		toYear, err := upperYear(ctx, provider, reporter.ISO3, opts.ToYear, logger)
		if err != nil {
			return stats, err
		}
		if toYear > 0 && toYear < opts.FromYear {
			stats.Skipped++
			continue
		}

		stats.Requests++
		series, err := provider.FetchSeries(ctx, reporter.ISO3, partner, opts.FromYear, toYear)
		if err != nil {
			if errors.Is(err, wits.ErrNoRecords) {
				stats.Skipped++
				logger.Debug().Str("reporter", reporter.ISO3).Msg("no records")
				continue
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			logger.Warn().Err(err).Str("reporter", reporter.ISO3).Str("partner", partner).Msg("fetch failed")
			continue
		}

		fresh := 0
		for _, point := range series {
			if _, ok := existing[point.Year]; ok {
				continue
			}
			point.Country = reporter.Name
			points = append(points, point)
			fresh++
		}
		if fresh == 0 {
			stats.Skipped++
			continue
		}
		stats.Success++
	}

	if err := st.UpsertHistory(ctx, points); err != nil {
		return stats, fmt.Errorf("store history: %w", err)
	}
	stats.Stored = len(points)

	logger.Info().
		Str("provider", provider.Name()).
		Int("reporters", stats.Reporters).
		Int("requests", stats.Requests).
		Int("success", stats.Success).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("stored", stats.Stored).
		Msg("history collection complete")
	return stats, nil
}

// upperYear returns toYear when set, otherwise the provider's latest year for
// reporter. An unknown latest year leaves the range open.
func upperYear(ctx context.Context, provider providers.HistoryProvider, reporterISO3 string, toYear int, logger zerolog.Logger) (int, error) {
	if toYear > 0 {
		return toYear, nil
	}
	latest, err := provider.LatestYear(ctx, reporterISO3)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		logger.Debug().Err(err).Str("reporter", reporterISO3).Msg("latest year unavailable")
		return 0, nil
	}
	return latest, nil
}

// resolveReporters keeps the countries the provider reports for. When the
// reporter list cannot be fetched every country is tried.
func resolveReporters(ctx context.Context, provider providers.HistoryProvider, countries []model.GeoCountry, logger zerolog.Logger) []model.GeoCountry {
	reported, err := provider.ListReporters(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("reporter list unavailable, trying every country")
		return countries
	}
	known := make(map[string]struct{}, len(reported))
	for _, reporter := range reported {
		known[reporter.ISO3] = struct{}{}
	}
	out := make([]model.GeoCountry, 0, len(countries))
	for _, country := range countries {
		if _, ok := known[country.ISO3]; ok {
			out = append(out, country)
		}
	}
	return out
}

func filterReporters(reporters []model.GeoCountry, allowed map[string]struct{}) []model.GeoCountry {
	if len(allowed) == 0 {
		return reporters
	}
	filtered := make([]model.GeoCountry, 0, len(reporters))
	for _, reporter := range reporters {
		if _, ok := allowed[strings.ToUpper(reporter.ISO3)]; ok {
			filtered = append(filtered, reporter)
		}
	}
	return filtered
}

func existingYears(ctx context.Context, st store.Store, providerID, reporterISO3, partnerISO3 string) (map[int]struct{}, error) {
	years := make(map[int]struct{})
	list, err := st.ListHistoryYears(ctx, providerID, reporterISO3, partnerISO3)
	if err != nil {
		return nil, err
	}
	for _, year := range list {
		years[year] = struct{}{}
	}
	return years, nil
}

// LoadAllowlist reads ISO3 codes separated by commas, semicolons, tabs or
// newlines. Lines starting with # are comments.
func LoadAllowlist(path string) (map[string]struct{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	allowed := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		for _, token := range splitTokens(line) {
			iso3 := strings.ToUpper(token)
			if iso3 == "ISO3" {
				continue
			}
			allowed[iso3] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return nil, errors.New("allowlist is empty")
	}
	return allowed, nil
}

func splitTokens(line string) []string {
	line = strings.NewReplacer(";", ",", "\t", ",").Replace(line)
	parts := strings.Split(line, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
