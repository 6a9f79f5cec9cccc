// Package conf holds the service configuration tree and its Viper-based
// loading. Settings are read from driftwatch.yaml (or an explicit --config
// path) with DRIFTWATCH_* environment overrides.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the root configuration for the service.
type Settings struct {
	Logging   LoggingSettings   `mapstructure:"logging" yaml:"logging"`
	Database  DatabaseSettings  `mapstructure:"database" yaml:"database"`
	Redis     RedisSettings     `mapstructure:"redis" yaml:"redis"`
	Broker    BrokerSettings    `mapstructure:"broker" yaml:"broker"`
	Kibana    KibanaSettings    `mapstructure:"kibana" yaml:"kibana"`
	Cache     CacheSettings     `mapstructure:"cache" yaml:"cache"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoggingSettings controls the structured logger.
type LoggingSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // json or text
}

// DatabaseSettings configures the baseline metrics database connection.
type DatabaseSettings struct {
	DSN          string   `mapstructure:"dsn" yaml:"dsn"`
	QueryTimeout Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// RedisSettings configures the source-country directory connection.
type RedisSettings struct {
	Addr        string   `mapstructure:"addr" yaml:"addr"`
	DB          int      `mapstructure:"db" yaml:"db"`
	Password    string   `mapstructure:"password" yaml:"password"`
	CallTimeout Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// BrokerSettings configures MQTT consumption and alert publishing.
type BrokerSettings struct {
	URL         string `mapstructure:"url" yaml:"url"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	InputTopic  string `mapstructure:"input_topic" yaml:"input_topic"`
	AlertsTopic string `mapstructure:"alerts_topic" yaml:"alerts_topic"`
	QoS         byte   `mapstructure:"qos" yaml:"qos"`
}

// KibanaSettings configures deep-link generation against the Kibana API.
type KibanaSettings struct {
	BaseURL  string   `mapstructure:"base_url" yaml:"base_url"`
	APIKey   string   `mapstructure:"api_key" yaml:"api_key"`
	CacheTTL Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// CacheSettings configures the baseline prediction/statistics/coefficient
// caches.
type CacheSettings struct {
	// PredictionStepMinutes is the time-bucket step predictions are keyed by.
	PredictionStepMinutes int `mapstructure:"prediction_step_minutes" yaml:"prediction_step_minutes"`

	PredictionSize            int      `mapstructure:"prediction_size" yaml:"prediction_size"`
	PredictionUpdateWindow    Duration `mapstructure:"prediction_update_window" yaml:"prediction_update_window"`
	PredictionRetentionWindow Duration `mapstructure:"prediction_retention_window" yaml:"prediction_retention_window"`

	SmallSize            int      `mapstructure:"small_size" yaml:"small_size"`
	SmallRetentionWindow Duration `mapstructure:"small_retention_window" yaml:"small_retention_window"`
}

// TelemetrySettings configures the optional metrics listener and error
// reporting.
type TelemetrySettings struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"` // empty disables /metrics
	SentryDSN  string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`   // empty disables telemetry
}

// setDefaults registers every default value with Viper before reading config.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.query_timeout", "10s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.call_timeout", "3s")

	v.SetDefault("broker.client_id", "driftwatch")
	v.SetDefault("broker.input_topic", "data-pipeline/detector")
	v.SetDefault("broker.alerts_topic", "data-pipeline/alerts")
	v.SetDefault("broker.qos", 1)

	v.SetDefault("kibana.cache_ttl", "24h")

	v.SetDefault("cache.prediction_step_minutes", 5)
	v.SetDefault("cache.prediction_size", 500000)
	v.SetDefault("cache.prediction_update_window", "1h")
	v.SetDefault("cache.prediction_retention_window", "1h")
	v.SetDefault("cache.small_size", 10000)
	v.SetDefault("cache.small_retention_window", "1h")
}

// Load reads configuration from the given path (or the default search
// locations when empty) and returns the validated Settings.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("driftwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/driftwatch")
	}

	v.SetEnvPrefix("DRIFTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file found in search paths: defaults + env only.
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks settings for values the service cannot run without.
func (s *Settings) Validate() error {
	if s.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if s.Broker.URL == "" {
		return fmt.Errorf("broker.url is required")
	}
	if s.Cache.PredictionStepMinutes <= 0 || s.Cache.PredictionStepMinutes > 60 {
		return fmt.Errorf("cache.prediction_step_minutes must be in (0, 60], got %d", s.Cache.PredictionStepMinutes)
	}
	if s.Cache.PredictionUpdateWindow.Std() <= 0 {
		return fmt.Errorf("cache.prediction_update_window must be positive")
	}
	if s.Cache.PredictionRetentionWindow.Std() < time.Minute {
		return fmt.Errorf("cache.prediction_retention_window must be at least 1m")
	}
	return nil
}
