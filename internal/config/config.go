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
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	FMCSA       FMCSAConfig       `yaml:"fmcsa" mapstructure:"fmcsa"`
	Catalog     CatalogConfig     `yaml:"catalog" mapstructure:"catalog"`
	Negotiation NegotiationConfig `yaml:"negotiation" mapstructure:"negotiation"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	APIKey              string   `yaml:"api_key" mapstructure:"api_key"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ReadTimeoutSecs     int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs    int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FMCSAConfig configures the carrier registry client.
type FMCSAConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	WebKey           string  `yaml:"web_key" mapstructure:"web_key"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns the overall verification deadline.
func (c FMCSAConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CatalogConfig configures the load inventory.
type CatalogConfig struct {
	Path            string  `yaml:"path" mapstructure:"path"`
	DefaultMinRatio float64 `yaml:"default_min_ratio" mapstructure:"default_min_ratio"`
	SuggestLimit    int     `yaml:"suggest_limit" mapstructure:"suggest_limit"`
}

// NegotiationConfig configures session housekeeping.
type NegotiationConfig struct {
	SessionTTLMins    int `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
	PruneIntervalSecs int `yaml:"prune_interval_secs" mapstructure:"prune_interval_secs"`
}

// SessionTTL is how long an untouched session is kept.
func (c NegotiationConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMins) * time.Minute
}

// PruneInterval is how often stale sessions are swept.
func (c NegotiationConfig) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalSecs) * time.Second
}

// MonitoringConfig configures background alerting on call outcomes and
// registry health.
type MonitoringConfig struct {
	Enabled                    bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL                 string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs          int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours        int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	MinCalls                   int     `yaml:"min_calls" mapstructure:"min_calls"`
	MinBookingRate             float64 `yaml:"min_booking_rate" mapstructure:"min_booking_rate"`
	NegativeSentimentThreshold float64 `yaml:"negative_sentiment_threshold" mapstructure:"negative_sentiment_threshold"`
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
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INBOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 30)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "metrics.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("fmcsa.base_url", "https://mobile.fmcsa.dot.gov/qc/services")
	v.SetDefault("fmcsa.web_key", "")
	v.SetDefault("fmcsa.timeout_secs", 8)
	v.SetDefault("fmcsa.rate_per_sec", 5.0)
	v.SetDefault("fmcsa.burst", 5)
	v.SetDefault("fmcsa.max_attempts", 2)
	v.SetDefault("fmcsa.breaker_threshold", 5)
	v.SetDefault("fmcsa.breaker_reset_secs", 30)
	v.SetDefault("catalog.path", "data/loads.json")
	v.SetDefault("catalog.default_min_ratio", 0.85)
	v.SetDefault("catalog.suggest_limit", 3)
	v.SetDefault("negotiation.session_ttl_mins", 120)
	v.SetDefault("negotiation.prune_interval_secs", 300)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.min_calls", 10)
	v.SetDefault("monitoring.min_booking_rate", 0.2)
	v.SetDefault("monitoring.negative_sentiment_threshold", 0.3)
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

// ValidateServe checks the settings the HTTP gateway cannot run without.
// All problems are reported together.
func (c *Config) ValidateServe() error {
	var problems []string
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}
	if strings.TrimSpace(c.Server.APIKey) == "" {
		problems = append(problems, "server.api_key is required (INBOUND_SERVER_API_KEY)")
	}
	if strings.TrimSpace(c.FMCSA.WebKey) == "" {
		problems = append(problems, "fmcsa.web_key is required (INBOUND_FMCSA_WEB_KEY)")
	}
	if c.FMCSA.TimeoutSecs <= 0 {
		problems = append(problems, "fmcsa.timeout_secs must be > 0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		problems = append(problems, "store.driver must be one of sqlite, postgres, memory")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for postgres")
	}
	if c.Catalog.DefaultMinRatio <= 0 || c.Catalog.DefaultMinRatio > 1 {
		problems = append(problems, "catalog.default_min_ratio must be in (0, 1]")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
