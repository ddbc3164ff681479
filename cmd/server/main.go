package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tariffsim/internal/cache"
	"tariffsim/internal/config"
	"tariffsim/internal/dataset"
	"tariffsim/internal/logging"
	"tariffsim/internal/server"
	"tariffsim/internal/store"
	"tariffsim/internal/store/sqlite"
)

const cachePingTimeout = 2 * time.Second

var (
	configPath string
	addr       string
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Serve the tariff impact dashboard API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "server failed:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	ctx := cmd.Context()

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	ds, err := dataset.Load(ctx, dataset.Files{
		TradeCSV:   cfg.Data.TradeCSV,
		GeoJSON:    cfg.Data.GeoJSON,
		HistoryCSV: cfg.Data.HistoryCSV,
	}, st, logger)
	_ = st.Close()
	if err != nil {
		return err
	}

	viewCache := openCache(ctx, cfg.Cache, logger)
	defer viewCache.Close()

	srv := server.New(ds, server.Options{
		Cache:       viewCache,
		CacheTTL:    cfg.Cache.TTL,
		SessionTTL:  cfg.Server.SessionTTL,
		MaxSessions: cfg.Server.MaxSessions,
		TopN:        cfg.Server.TopN,
		Logger:      logger,
	})
	return srv.Run(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}

// openCache connects to Redis when configured. An unreachable Redis leaves
// the server uncached.
func openCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) cache.Cache {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return cache.NopCache{}
	}
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.Password, cfg.DB, cfg.Prefix)
	pingCtx, cancel := context.WithTimeout(ctx, cachePingTimeout)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, serving without cache")
		_ = redisCache.Close()
		return cache.NopCache{}
	}
	logger.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.TTL).Msg("view cache enabled")
	return redisCache
}
