package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tariffsim/internal/collect"
	"tariffsim/internal/config"
	"tariffsim/internal/dataset"
	"tariffsim/internal/logging"
	"tariffsim/internal/providers/wits"
	"tariffsim/internal/store/sqlite"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "collector",
	Short:         "Fill the tariffsim store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	ingestTradeCSV     string
	ingestExportLines  string
	ingestTariffFiles  []string
	ingestSectorGroups string
	ingestDenominators string
	ingestDefaultRate  float64
	ingestHistoryCSV   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load trade records and history from files into the store",
	Long: `Load trade records into the store, either from a prepared trade CSV or
computed from product-level export lines and a tariff schedule.

Examples:
  collector ingest --trade-csv data/trade.csv --history-csv data/history.csv
  collector ingest --export-lines data/lines.csv --sector-groups configs/sectors.yaml \
    --tariff configs/tariffs/reciprocal.yaml --denominators data/bases.csv`,
	RunE: runIngest,
}

var (
	historyGeoJSON   string
	historyPartner   string
	historyFrom      int
	historyTo        int
	historyLimit     int
	historyAllowlist string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Fetch annual export history from WITS into the store",
	Long: `Fetch the annual exports of every mapped country to the partner from the
WITS API. Years already stored are skipped.`,
	RunE: runHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database path (overrides store.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")

	ingestCmd.Flags().StringVar(&ingestTradeCSV, "trade-csv", "", "trade records CSV (defaults to data.trade_csv)")
	ingestCmd.Flags().StringVar(&ingestExportLines, "export-lines", "", "product-level export lines CSV")
	ingestCmd.Flags().StringSliceVar(&ingestTariffFiles, "tariff", nil, "tariff action file, repeatable and applied in order")
	ingestCmd.Flags().StringVar(&ingestSectorGroups, "sector-groups", "", "YAML mapping sectors to HS chapters")
	ingestCmd.Flags().StringVar(&ingestDenominators, "denominators", "", "CSV with iso3, gdp, population")
	ingestCmd.Flags().Float64Var(&ingestDefaultRate, "default-rate", 0, "rate for codes not in any tariff file (0 = 10%)")
	ingestCmd.Flags().StringVar(&ingestHistoryCSV, "history-csv", "", "history CSV (defaults to data.history_csv)")

	historyCmd.Flags().StringVar(&historyGeoJSON, "geojson", "", "country boundaries (defaults to data.geojson)")
	historyCmd.Flags().StringVar(&historyPartner, "partner", "", "partner ISO3 (defaults to history.partner)")
	historyCmd.Flags().IntVar(&historyFrom, "from", 0, "first year (defaults to history.from_year)")
	historyCmd.Flags().IntVar(&historyTo, "to", 0, "last year (defaults to history.to_year, 0 = latest available per reporter)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "limit number of reporters (0 = all)")
	historyCmd.Flags().StringVar(&historyAllowlist, "allowlist", "", "path to ISO3 allowlist (empty = no filter)")

	rootCmd.AddCommand(ingestCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "collector failed:", err)
		os.Exit(1)
	}
}

func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return cfg, zerolog.Nop(), errors.New("store path is required (--db or store.path)")
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Pretty), nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	st, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := collect.IngestOptions{
		TradeCSV:       firstNonEmpty(ingestTradeCSV, cfg.Data.TradeCSV),
		ExportLinesCSV: ingestExportLines,
		TariffFiles:    ingestTariffFiles,
		SectorGroups:   ingestSectorGroups,
		Denominators:   ingestDenominators,
		DefaultRate:    ingestDefaultRate,
		HistoryCSV:     firstNonEmpty(ingestHistoryCSV, cfg.Data.HistoryCSV),
	}
	stats, err := collect.Ingest(cmd.Context(), st, opts, logger)
	if err != nil {
		return err
	}
	fmt.Printf("ingest complete: lines=%d records=%d history=%d\n", stats.Lines, stats.Records, stats.History)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	geoPath := firstNonEmpty(historyGeoJSON, cfg.Data.GeoJSON)
	if geoPath == "" {
		return errors.New("geojson is required (--geojson or data.geojson)")
	}
	geo, err := dataset.ReadFile(geoPath, dataset.ReadGeoJSON)
	if err != nil {
		return fmt.Errorf("geo reference: %w", err)
	}

	opts := collect.HistoryOptions{
		Partner:  firstNonEmpty(historyPartner, cfg.History.Partner),
		FromYear: cfg.History.FromYear,
		ToYear:   cfg.History.ToYear,
		Limit:    historyLimit,
	}
	if historyFrom > 0 {
		opts.FromYear = historyFrom
	}
	if historyTo > 0 {
		opts.ToYear = historyTo
	}
	if opts.ToYear > 0 && opts.ToYear < opts.FromYear {
		return fmt.Errorf("to year %d is before from year %d", opts.ToYear, opts.FromYear)
	}
	if historyAllowlist != "" {
		opts.Allowed, err = collect.LoadAllowlist(historyAllowlist)
		if err != nil {
			return err
		}
	}

	provider, err := wits.New()
	if err != nil {
		return err
	}

	st, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := collect.History(cmd.Context(), provider, st, dataset.GeoCountries(geo), opts, logger)
	if err != nil {
		return err
	}
	fmt.Printf("history complete: reporters=%d requests=%d success=%d failed=%d skipped=%d stored=%d\n",
		stats.Reporters, stats.Requests, stats.Success, stats.Failed, stats.Skipped, stats.Stored)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
