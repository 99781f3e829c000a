// Package config loads service configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pairs-backtest/services/cointegration"
	"pairs-backtest/services/engine"
)

type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" default:"8080" validate:"gt=0,lt=65536"`
	GRPCPort        int           `yaml:"grpc_port" default:"9091" validate:"gt=0,lt=65536"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" default:"33554432" validate:"gt=0"`
}

type EngineConfig struct {
	MaxWorkers   int `yaml:"max_workers" default:"4" validate:"gte=1"`
	MaxChunkSize int `yaml:"max_chunk_size" default:"16" validate:"gte=1"`
	// RetainRuns bounds the in-memory run registry; oldest runs are evicted first.
	RetainRuns int `yaml:"retain_runs" default:"256" validate:"gte=1"`
}

type ClickHouseConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host" default:"localhost"`
	Port        int           `yaml:"port" default:"9000"`
	Database    string        `yaml:"database" default:"pairs"`
	User        string        `yaml:"user" default:"default"`
	Password    string        `yaml:"password"`
	HTTPURL     string        `yaml:"http_url" default:"http://localhost:8123"`
	BarsTable   string        `yaml:"bars_table" default:"daily_bars"`
	TradesTable string        `yaml:"trades_table" default:"pair_trades"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	BatchSize   int           `yaml:"batch_size" default:"5000" validate:"gt=0"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// ScreenConfig is a precomputed cointegration verdict for one pair.
type ScreenConfig struct {
	Buy     string                `yaml:"buy" validate:"required"`
	Short   string                `yaml:"short" validate:"required"`
	Verdict cointegration.Verdict `yaml:",inline"`
}

type Config struct {
	Environment string           `yaml:"environment" default:"dev" validate:"oneof=dev staging prod"`
	LogLevel    string           `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	Server      ServerConfig     `yaml:"server"`
	Engine      EngineConfig     `yaml:"engine"`
	Backtest    engine.RunConfig `yaml:"backtest"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Storage     StorageConfig    `yaml:"storage"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Screens     []ScreenConfig   `yaml:"screens" validate:"dive"`
}

var validate = validator.New()

// Load applies defaults, then the YAML file at path (if any), then .env and environment
// overrides, and validates the result. Values set explicitly in YAML win over defaults,
// including zeros.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"PAIRS_ENV":           &c.Environment,
		"PAIRS_LOG_LEVEL":     &c.LogLevel,
		"PAIRS_SQLITE_PATH":   &c.Storage.SQLitePath,
		"CLICKHOUSE_HOST":     &c.ClickHouse.Host,
		"CLICKHOUSE_DATABASE": &c.ClickHouse.Database,
		"CLICKHOUSE_USER":     &c.ClickHouse.User,
		"CLICKHOUSE_PASSWORD": &c.ClickHouse.Password,
		"CLICKHOUSE_HTTP_URL": &c.ClickHouse.HTTPURL,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PAIRS_HTTP_PORT":   &c.Server.HTTPPort,
		"PAIRS_GRPC_PORT":   &c.Server.GRPCPort,
		"PAIRS_MAX_WORKERS": &c.Engine.MaxWorkers,
		"CLICKHOUSE_PORT":   &c.ClickHouse.Port,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v := os.Getenv("CLICKHOUSE_ENABLED"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CLICKHOUSE_ENABLED: %w", err)
		}
		c.ClickHouse.Enabled = on
	}
	return nil
}

// Screener exposes the configured verdicts.
func (c *Config) Screener() cointegration.StaticScreener {
	s := make(cointegration.StaticScreener, len(c.Screens))
	for _, sc := range c.Screens {
		s[cointegration.PairKey(sc.Buy, sc.Short)] = sc.Verdict
	}
	return s
}
