package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/paysim"
	"github.com/xraph/paysim/store"
	"github.com/xraph/paysim/store/memory"
	"github.com/xraph/paysim/store/mongo"
	"github.com/xraph/paysim/store/postgres"
	"github.com/xraph/paysim/store/redis"
	"github.com/xraph/paysim/store/sqlite"
)

type appConfig struct {
	Log       logConfig      `mapstructure:"log"`
	HTTP      httpConfig     `mapstructure:"http"`
	Store     storeConfig    `mapstructure:"store"`
	Delivery  deliveryConfig `mapstructure:"delivery"`
	Scheduler schedConfig    `mapstructure:"scheduler"`
	Billing   billingConfig  `mapstructure:"billing"`
	Tracing   tracingConfig  `mapstructure:"tracing"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type logConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

type httpConfig struct {
	Addr           string   `mapstructure:"addr"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
	APILogCapacity int      `mapstructure:"api_log_capacity"`
	Metrics        bool     `mapstructure:"metrics"`
}

type storeConfig struct {
	// Driver is one of memory, redis, sqlite, postgres or mongo.
	Driver string `mapstructure:"driver"`

	// DSN is the redis address, sqlite path, postgres URL or mongo URI.
	DSN      string `mapstructure:"dsn"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Database string `mapstructure:"database"`
}

type deliveryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Debounce       time.Duration `mapstructure:"debounce"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	RPS            float64       `mapstructure:"rps"`
	Burst          int           `mapstructure:"burst"`
	LogCapacity    int           `mapstructure:"log_capacity"`
}

type schedConfig struct {
	Tick           time.Duration `mapstructure:"tick"`
	HonorIntervals bool          `mapstructure:"honor_intervals"`
	DisableJobs    bool          `mapstructure:"disable_jobs"`
}

type billingConfig struct {
	DedupePeriods bool `mapstructure:"dedupe_periods"`
}

type tracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

// setDefaults registers every key so PAYSIM_* variables are picked up by
// Unmarshal.
func setDefaults() {
	def := paysim.DefaultConfig()

	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.level", "info")

	viper.SetDefault("http.addr", ":8420")
	viper.SetDefault("http.cors_origins", []string{})
	viper.SetDefault("http.rate_limit_rps", 0)
	viper.SetDefault("http.rate_limit_burst", 0)
	viper.SetDefault("http.max_body_bytes", 1<<20)
	viper.SetDefault("http.api_log_capacity", 1000)
	viper.SetDefault("http.metrics", true)

	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("store.password", "")
	viper.SetDefault("store.db", 0)
	viper.SetDefault("store.database", "paysim")

	viper.SetDefault("delivery.max_attempts", def.MaxAttempts)
	viper.SetDefault("delivery.request_timeout", def.RequestTimeout)
	viper.SetDefault("delivery.debounce", def.Debounce)
	viper.SetDefault("delivery.backoff_base", def.BackoffBase)
	viper.SetDefault("delivery.rps", def.DeliveryRPS)
	viper.SetDefault("delivery.burst", def.DeliveryBurst)
	viper.SetDefault("delivery.log_capacity", def.LogCapacity)

	viper.SetDefault("scheduler.tick", def.SchedulerTick)
	viper.SetDefault("scheduler.honor_intervals", false)
	viper.SetDefault("scheduler.disable_jobs", false)

	viper.SetDefault("billing.dedupe_periods", false)

	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.insecure", true)
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.environment", "development")

	viper.SetDefault("shutdown_timeout", def.ShutdownTimeout)
}

func readConfig() (appConfig, error) {
	var cfg appConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the process configuration onto the library's.
func (c appConfig) engineConfig() paysim.Config {
	return paysim.Config{
		MaxAttempts:     c.Delivery.MaxAttempts,
		RequestTimeout:  c.Delivery.RequestTimeout,
		Debounce:        c.Delivery.Debounce,
		BackoffBase:     c.Delivery.BackoffBase,
		DeliveryRPS:     c.Delivery.RPS,
		DeliveryBurst:   c.Delivery.Burst,
		LogCapacity:     c.Delivery.LogCapacity,
		SchedulerTick:   c.Scheduler.Tick,
		HonorIntervals:  c.Scheduler.HonorIntervals,
		DedupePeriods:   c.Billing.DedupePeriods,
		DisableJobs:     c.Scheduler.DisableJobs,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}

// openStore connects the configured backend and prepares its schema.
func openStore(ctx context.Context, cfg storeConfig, logger *slog.Logger) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Driver {
	case "", "memory":
		s = memory.New()
	case "redis":
		addr := cfg.DSN
		if addr == "" {
			addr = "localhost:6379"
		}
		s, err = redis.Open(ctx, addr, cfg.Password, cfg.DB)
	case "sqlite":
		path := cfg.DSN
		if path == "" {
			path = "paysim.db"
		}
		s, err = sqlite.Open(path, logger)
	case "postgres":
		s, err = postgres.Open(ctx, cfg.DSN, logger)
	case "mongo":
		s, err = mongo.Open(ctx, cfg.DSN, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
	}
	logger.Info("store ready", "driver", cfg.Driver)
	return s, nil
}
