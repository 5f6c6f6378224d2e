// Package config loads the typed application configuration from viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. POINTS_DATABASE_PATH.
const EnvPrefix = "POINTS"

// Config is the full application configuration.
type Config struct {
	Database      DatabaseConfig
	Logging       LoggingConfig
	Recommend     RecommendConfig
	Schedule      ScheduleConfig
	Categorizer   CategorizerConfig
	Opportunities OpportunitiesConfig
	Recurring     RecurringConfig
	Estimation    EstimationConfig
	Workers       int
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig controls the global slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// CategorizerConfig configures the external categorization service.
// An empty endpoint runs on the local keyword matcher only.
type CategorizerConfig struct {
	Endpoint   string
	Timeout    time.Duration
	BatchSize  int
	MaxRetries int
}

// EstimationConfig configures reward estimation.
type EstimationConfig struct {
	MaterialityCents int64
}

// OpportunitiesConfig configures missed-opportunity aggregation.
type OpportunitiesConfig struct {
	TopK            int
	SampleMerchants int
	WindowDays      int
}

// RecurringConfig configures subscription detection.
type RecurringConfig struct {
	LookbackMonths int
	MergeDistance  int
}

// RecommendConfig configures the best-card fast path.
type RecommendConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// ScheduleConfig configures the periodic recompute.
type ScheduleConfig struct {
	Cron string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(DefaultDir(), "points.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("categorizer.endpoint", "")
	v.SetDefault("categorizer.timeout", 15*time.Second)
	v.SetDefault("categorizer.batch_size", 50)
	v.SetDefault("categorizer.max_retries", 2)
	v.SetDefault("estimation.materiality_cents", 5)
	v.SetDefault("opportunities.top_k", 5)
	v.SetDefault("opportunities.sample_merchants", 3)
	v.SetDefault("opportunities.window_days", 90)
	v.SetDefault("recurring.lookback_months", 12)
	v.SetDefault("recurring.merge_distance", 0)
	v.SetDefault("recommend.timeout", 8*time.Second)
	v.SetDefault("recommend.cache_ttl", time.Minute)
	v.SetDefault("workers", 4)
	v.SetDefault("schedule.cron", "0 3 * * *")
}

// Load builds the typed configuration from v, applying defaults first.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString("logging.level")),
			Format: strings.ToLower(v.GetString("logging.format")),
		},
		Categorizer: CategorizerConfig{
			Endpoint:   strings.TrimSpace(v.GetString("categorizer.endpoint")),
			Timeout:    v.GetDuration("categorizer.timeout"),
			BatchSize:  v.GetInt("categorizer.batch_size"),
			MaxRetries: v.GetInt("categorizer.max_retries"),
		},
		Estimation: EstimationConfig{
			MaterialityCents: v.GetInt64("estimation.materiality_cents"),
		},
		Opportunities: OpportunitiesConfig{
			TopK:            v.GetInt("opportunities.top_k"),
			SampleMerchants: v.GetInt("opportunities.sample_merchants"),
			WindowDays:      v.GetInt("opportunities.window_days"),
		},
		Recurring: RecurringConfig{
			LookbackMonths: v.GetInt("recurring.lookback_months"),
			MergeDistance:  v.GetInt("recurring.merge_distance"),
		},
		Recommend: RecommendConfig{
			Timeout:  v.GetDuration("recommend.timeout"),
			CacheTTL: v.GetDuration("recommend.cache_ttl"),
		},
		Schedule: ScheduleConfig{
			Cron: strings.TrimSpace(v.GetString("schedule.cron")),
		},
		Workers: v.GetInt("workers"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	invalid := func(key string, value any, reason string) {
		errs = append(errs, fmt.Errorf("%w: %s=%v %s", common.ErrInvalidConfig, key, value, reason))
	}

	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("%w: database.path", common.ErrMissingConfig))
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		invalid("logging.format", c.Logging.Format, "must be console or json")
	}
	if c.Categorizer.Timeout <= 0 {
		invalid("categorizer.timeout", c.Categorizer.Timeout, "must be positive")
	}
	if c.Categorizer.BatchSize <= 0 {
		invalid("categorizer.batch_size", c.Categorizer.BatchSize, "must be positive")
	}
	if c.Categorizer.MaxRetries < 0 {
		invalid("categorizer.max_retries", c.Categorizer.MaxRetries, "must not be negative")
	}
	if c.Estimation.MaterialityCents < 0 {
		invalid("estimation.materiality_cents", c.Estimation.MaterialityCents, "must not be negative")
	}
	if c.Opportunities.TopK < 0 {
		invalid("opportunities.top_k", c.Opportunities.TopK, "must not be negative")
	}
	if c.Opportunities.SampleMerchants <= 0 {
		invalid("opportunities.sample_merchants", c.Opportunities.SampleMerchants, "must be positive")
	}
	if c.Opportunities.WindowDays < 0 {
		invalid("opportunities.window_days", c.Opportunities.WindowDays, "must not be negative")
	}
	if c.Recurring.LookbackMonths <= 0 {
		invalid("recurring.lookback_months", c.Recurring.LookbackMonths, "must be positive")
	}
	if c.Recurring.MergeDistance < 0 {
		invalid("recurring.merge_distance", c.Recurring.MergeDistance, "must not be negative")
	}
	if c.Recommend.Timeout <= 0 {
		invalid("recommend.timeout", c.Recommend.Timeout, "must be positive")
	}
	if c.Workers <= 0 {
		invalid("workers", c.Workers, "must be positive")
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			invalid("schedule.cron", c.Schedule.Cron, err.Error())
		}
	}

	return errors.Join(errs...)
}

// LoadDotEnv loads the first .env file found. A missing file is not an error.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", filepath.Join(DefaultDir(), ".env")}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			slog.Debug("Loaded environment file", "path", path)
			return
		}
	}
}
