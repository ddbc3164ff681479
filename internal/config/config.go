// Package config loads the tariffsim settings from an optional YAML file
// and TARIFFSIM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddr          = ":8080"
	defaultReadTimeout   = 10 * time.Second
	defaultWriteTimeout  = 15 * time.Second
	defaultSessionTTL    = 30 * time.Minute
	defaultMaxSessions   = 10000
	defaultCacheTTL      = 5 * time.Minute
	defaultCachePrefix   = "tariffsim:"
	defaultLogLevel      = "info"
	defaultOutDir        = "public/data"
	defaultTopN          = 10
	defaultHistoryFrom   = 2015
	defaultHistoryTarget = "USA"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Data    DataConfig    `yaml:"data"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
	Publish PublishConfig `yaml:"publish"`
	History HistoryConfig `yaml:"history"`
}

type DataConfig struct {
	TradeCSV   string `yaml:"trade_csv"`
	GeoJSON    string `yaml:"geojson"`
	HistoryCSV string `yaml:"history_csv"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	MaxSessions  int           `yaml:"max_sessions"`
	TopN         int           `yaml:"top_n"`
}

// CacheConfig enables the Redis view cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	Prefix    string        `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type PublishConfig struct {
	OutDir string `yaml:"out_dir"`
}

type HistoryConfig struct {
	Partner  string `yaml:"partner"`
	FromYear int    `yaml:"from_year"`
	ToYear   int    `yaml:"to_year"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         defaultAddr,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			SessionTTL:   defaultSessionTTL,
			MaxSessions:  defaultMaxSessions,
			TopN:         defaultTopN,
		},
		Cache: CacheConfig{
			TTL:    defaultCacheTTL,
			Prefix: defaultCachePrefix,
		},
		Log:     LogConfig{Level: defaultLogLevel},
		Publish: PublishConfig{OutDir: defaultOutDir},
		History: HistoryConfig{Partner: defaultHistoryTarget, FromYear: defaultHistoryFrom},
	}
}

// Load applies, in order: defaults, the YAML file at path (when non-empty),
// and environment overrides. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Data.TradeCSV = getenv("TARIFFSIM_TRADE_CSV", c.Data.TradeCSV)
	c.Data.GeoJSON = getenv("TARIFFSIM_GEOJSON", c.Data.GeoJSON)
	c.Data.HistoryCSV = getenv("TARIFFSIM_HISTORY_CSV", c.Data.HistoryCSV)
	c.Store.Path = getenv("TARIFFSIM_DB_PATH", c.Store.Path)

	c.Server.Addr = getenv("TARIFFSIM_ADDR", c.Server.Addr)
	c.Server.SessionTTL = getenvSeconds("TARIFFSIM_SESSION_TTL_SECONDS", c.Server.SessionTTL)
	c.Server.MaxSessions = getenvInt("TARIFFSIM_MAX_SESSIONS", c.Server.MaxSessions)
	c.Server.TopN = getenvInt("TARIFFSIM_TOP_N", c.Server.TopN)

	c.Cache.RedisAddr = getenv("TARIFFSIM_REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.Password = getenv("TARIFFSIM_REDIS_PASSWORD", c.Cache.Password)
	c.Cache.DB = getenvInt("TARIFFSIM_REDIS_DB", c.Cache.DB)
	c.Cache.TTL = getenvSeconds("TARIFFSIM_CACHE_TTL_SECONDS", c.Cache.TTL)

	c.Log.Level = getenv("TARIFFSIM_LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getenvBool("TARIFFSIM_LOG_PRETTY", c.Log.Pretty)

	c.Publish.OutDir = getenv("TARIFFSIM_OUT_DIR", c.Publish.OutDir)
}

// Validate checks the settings every command needs. Trade records come from
// the CSV or, failing that, the store.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Data.GeoJSON) == "" {
		problems = append(problems, "data.geojson is required")
	}
	if strings.TrimSpace(c.Data.TradeCSV) == "" && strings.TrimSpace(c.Store.Path) == "" {
		problems = append(problems, "one of data.trade_csv or store.path is required")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		problems = append(problems, "server.addr is required")
	}
	if c.Server.MaxSessions <= 0 {
		problems = append(problems, "server.max_sessions must be positive")
	}
	if c.Server.SessionTTL <= 0 {
		problems = append(problems, "server.session_ttl must be positive")
	}
	if c.Server.TopN <= 0 {
		problems = append(problems, "server.top_n must be positive")
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, "cache.ttl must not be negative")
	}
	if c.History.ToYear != 0 && c.History.ToYear < c.History.FromYear {
		problems = append(problems, "history.to_year is before history.from_year")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvSeconds(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return time.Duration(parsed) * time.Second
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}
