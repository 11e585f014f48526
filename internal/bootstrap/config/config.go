package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ivdhub/internal/bootstrap/logging"
	"ivdhub/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Anchor   AnchorConfig   `mapstructure:"anchor"`
	Conflict ConflictConfig `mapstructure:"conflict"`
	Linker   LinkerConfig   `mapstructure:"linker"`
	Retry    RetryConfig    `mapstructure:"retry"`
	UDI      UDIConfig      `mapstructure:"udi"`
	Sources  SourcesConfig  `mapstructure:"sources"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// FetchConfig bounds in-run retry behavior and the tolerated per-record
// failure ratio before a run is downgraded to partial.
type FetchConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryWait      time.Duration `mapstructure:"retry_wait"`
	FailedRatio    float64       `mapstructure:"failed_ratio"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
}

// AnchorConfig is the anchor gate: a run whose failed-anchor ratio exceeds
// GateRatio or whose absolute failed count exceeds GateMax fails outright.
type AnchorConfig struct {
	GateRatio float64 `mapstructure:"gate_ratio"`
	GateMax   int64   `mapstructure:"gate_max"`
}

type ConflictConfig struct {
	GradeOrder    []string `mapstructure:"grade_order"`
	RetentionDays int      `mapstructure:"retention_days"`
}

type LinkerConfig struct {
	ConfidenceFloor  float64 `mapstructure:"confidence_floor"`
	FuzzyMinimum     float64 `mapstructure:"fuzzy_minimum"`
	OutlierThreshold int64   `mapstructure:"outlier_threshold"`
}

type RetryConfig struct {
	Base        time.Duration `mapstructure:"base"`
	Factor      float64       `mapstructure:"factor"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type UDIConfig struct {
	ParamAllowlist []string `mapstructure:"param_allowlist"`
}

// SourcesConfig carries per-source feed endpoints keyed by source key.
type SourcesConfig map[string]SourceFeedConfig

type SourceFeedConfig struct {
	URL      string `mapstructure:"url"`
	Schedule string `mapstructure:"schedule"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IVD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if cfg.Database.DSN == "" {
		return Config{}, errors.New("database.dsn is required")
	}
	if cfg.Anchor.GateRatio <= 0 || cfg.Anchor.GateRatio > 1 {
		return Config{}, errors.New("anchor.gate_ratio must be in (0, 1]")
	}
	if cfg.Linker.OutlierThreshold < 1 {
		return Config{}, errors.New("linker.outlier_threshold must be positive")
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
	)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ivdhub")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/ivdhub.sqlite")

	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.retry_wait", "2s")
	v.SetDefault("fetch.failed_ratio", 0.2)
	v.SetDefault("fetch.timeout_seconds", 60)

	v.SetDefault("anchor.gate_ratio", 0.1)
	v.SetDefault("anchor.gate_max", 500)

	v.SetDefault("conflict.grade_order", []string{"A", "B", "C", "D"})
	v.SetDefault("conflict.retention_days", 30)

	v.SetDefault("linker.confidence_floor", 0.85)
	v.SetDefault("linker.fuzzy_minimum", 0.3)
	v.SetDefault("linker.outlier_threshold", 100)

	v.SetDefault("retry.base", "1h")
	v.SetDefault("retry.factor", 2)
	v.SetDefault("retry.max_attempts", 8)

	v.SetDefault("udi.param_allowlist", []string{
		"packaging_level", "specimen_type", "storage_condition", "instrument_model",
	})
}
