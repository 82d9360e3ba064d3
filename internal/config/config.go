package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Poll      PollConfig      `yaml:"poll" mapstructure:"poll"`
	Staleness StalenessConfig `yaml:"staleness" mapstructure:"staleness"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the pipeline backend client.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Token       string  `yaml:"token" mapstructure:"token"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// Timeout returns the request timeout for non-streaming calls.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PollConfig configures pipeline status polling.
type PollConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
}

// Interval returns the poll interval.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// StalenessConfig configures the results change check cadence.
type StalenessConfig struct {
	ActiveIntervalSecs int `yaml:"active_interval_secs" mapstructure:"active_interval_secs"`
	IdleIntervalSecs   int `yaml:"idle_interval_secs" mapstructure:"idle_interval_secs"`
}

// ActiveInterval is the cadence while a pipeline run is in progress.
func (c StalenessConfig) ActiveInterval() time.Duration {
	return time.Duration(c.ActiveIntervalSecs) * time.Second
}

// IdleInterval is the cadence in steady state.
func (c StalenessConfig) IdleInterval() time.Duration {
	return time.Duration(c.IdleIntervalSecs) * time.Second
}

// RetryConfig configures retries of idempotent backend reads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// StoreConfig configures audit history persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the local API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("brandpulse")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BRANDPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:3000/api")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.rate_per_sec", 5.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("poll.interval_secs", 3)
	v.SetDefault("staleness.active_interval_secs", 10)
	v.SetDefault("staleness.idle_interval_secs", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "brandpulse.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "client" (any command talking to the backend), "store" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	checkClient := func() {
		if c.API.BaseURL == "" {
			errs = append(errs, "api.base_url is required")
		}
		if c.API.RatePerSec < 0 {
			errs = append(errs, "api.rate_per_sec must be >= 0")
		}
		if c.Poll.IntervalSecs <= 0 {
			errs = append(errs, "poll.interval_secs must be > 0")
		}
		if c.Staleness.ActiveIntervalSecs <= 0 || c.Staleness.IdleIntervalSecs <= 0 {
			errs = append(errs, "staleness intervals must be > 0")
		} else if c.Staleness.ActiveIntervalSecs > c.Staleness.IdleIntervalSecs {
			errs = append(errs, "staleness.active_interval_secs must not exceed idle_interval_secs")
		}
	}
	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for postgres")
			}
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "client":
		checkClient()
	case "store":
		checkStore()
	case "serve":
		checkClient()
		checkStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
