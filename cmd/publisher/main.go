package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tariffsim/internal/config"
	"tariffsim/internal/dataset"
	"tariffsim/internal/logging"
	"tariffsim/internal/publish"
	"tariffsim/internal/store"
	"tariffsim/internal/store/sqlite"
)

var (
	configPath string
	outDir     string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:           "publisher",
	Short:         "Write the dashboard views as static JSON",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every view into the output directory",
	Long: `Build the options, map, ranked and detail views for every sector and
country, plus the export history, as JSON files for a static site.

Examples:
  publisher build --config configs/tariffsim.yaml
  publisher build --db tariffsim.db --out site/data`,
	RunE: runBuild,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")
	buildCmd.Flags().StringVar(&outDir, "out", "", "output directory (defaults to publish.out_dir)")
	buildCmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides store.path)")
	rootCmd.AddCommand(buildCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "publisher failed:", err)
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if outDir != "" {
		cfg.Publish.OutDir = outDir
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ds, err := dataset.Load(cmd.Context(), dataset.Files{
		TradeCSV:   cfg.Data.TradeCSV,
		GeoJSON:    cfg.Data.GeoJSON,
		HistoryCSV: cfg.Data.HistoryCSV,
	}, st, logger)
	if err != nil {
		return err
	}

	summary, err := publish.Build(ds, cfg.Publish.OutDir, logger)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d files to %s (version %s)\n", summary.Files, summary.OutDir, ds.Version())
	return nil
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}
