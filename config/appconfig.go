package config

import (
	"fmt"
	"github.com/spf13/viper"
	"time"
)

const (
	defaultAPIPort    = 1323
	defaultSourcePort = 7118
)

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	StreamName   string        `mapstructure:"stream_name"`
	StreamGroup  string        `mapstructure:"stream_group"`
	ConsumerName string        `mapstructure:"consumer_name"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	JaegerURL   string `mapstructure:"jaeger_url"`
}

// PaymentsConfig points at the remote payments resource the form is built from.
type PaymentsConfig struct {
	SourceURL      string        `mapstructure:"source_url"`
	HealthURL      string        `mapstructure:"health_url"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

type SplitConfig struct {
	MaxMethods      int     `mapstructure:"max_methods"`
	MinPercentage   float64 `mapstructure:"min_percentage"`
	MaxPercentage   float64 `mapstructure:"max_percentage"`
	TotalPercentage float64 `mapstructure:"total_percentage"`
	ObservationsMin int     `mapstructure:"observations_min"`
	ObservationsMax int     `mapstructure:"observations_max"`
}

type AppConfig struct {
	// Server is the form API listener, Source the payments resource (cmd/server).
	Server    *ServerConfig    `mapstructure:"server"`
	Source    *ServerConfig    `mapstructure:"source"`
	Postgres  *PostgresConfig  `mapstructure:"postgres"`
	Redis     *RedisConfig     `mapstructure:"redis"`
	Telemetry *TelemetryConfig `mapstructure:"telemetry"`
	Payments  *PaymentsConfig  `mapstructure:"payments"`
	Split     *SplitConfig     `mapstructure:"split"`
	LogLevel  string           `mapstructure:"log_level"`
}

func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *AppConfig) SourceAddr() string {
	return fmt.Sprintf("%s:%d", c.Source.Host, c.Source.Port)
}

func LoadConfig() (*AppConfig, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("server.port", defaultAPIPort)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("source.port", defaultSourcePort)
	v.SetDefault("source.host", "0.0.0.0")
	v.SetDefault("postgres.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.stream_name", "payments-import")
	v.SetDefault("redis.stream_group", "payments-import-group")
	v.SetDefault("redis.consumer_name", "worker-1")
	v.SetDefault("redis.session_ttl", 30*time.Minute)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "splitform")
	v.SetDefault("telemetry.jaeger_url", "http://jaeger:14268/api/traces")
	v.SetDefault("payments.source_url", fmt.Sprintf("http://localhost:%d/payments", defaultSourcePort))
	v.SetDefault("payments.health_url", fmt.Sprintf("http://localhost:%d/health", defaultSourcePort))
	v.SetDefault("payments.fetch_timeout", time.Duration(0))
	v.SetDefault("payments.health_interval", 5*time.Second)
	v.SetDefault("split.max_methods", 3)
	v.SetDefault("split.min_percentage", 20)
	v.SetDefault("split.max_percentage", 100)
	v.SetDefault("split.total_percentage", 100)
	v.SetDefault("split.observations_min", 3)
	v.SetDefault("split.observations_max", 15)
	v.SetDefault("log_level", "info")

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.host", "SERVER_HOST")
	_ = v.BindEnv("source.port", "SOURCE_PORT")
	_ = v.BindEnv("source.host", "SOURCE_HOST")
	_ = v.BindEnv("postgres.url", "POSTGRES_URL")
	_ = v.BindEnv("redis.url", "REDIS_URL")
	_ = v.BindEnv("redis.stream_name", "REDIS_STREAM_NAME")
	_ = v.BindEnv("redis.stream_group", "REDIS_STREAM_GROUP")
	_ = v.BindEnv("redis.consumer_name", "REDIS_CONSUMER_NAME")
	_ = v.BindEnv("redis.session_ttl", "REDIS_SESSION_TTL")
	_ = v.BindEnv("telemetry.enabled", "TELEMETRY_ENABLED")
	_ = v.BindEnv("telemetry.service_name", "TELEMETRY_SERVICE_NAME")
	_ = v.BindEnv("telemetry.jaeger_url", "JAEGER_URL")
	_ = v.BindEnv("payments.source_url", "PAYMENTS_SOURCE_URL")
	_ = v.BindEnv("payments.health_url", "PAYMENTS_HEALTH_URL")
	_ = v.BindEnv("payments.fetch_timeout", "PAYMENTS_FETCH_TIMEOUT")
	_ = v.BindEnv("payments.health_interval", "PAYMENTS_HEALTH_INTERVAL")
	_ = v.BindEnv("split.max_methods", "SPLIT_MAX_METHODS")
	_ = v.BindEnv("split.min_percentage", "SPLIT_MIN_PERCENTAGE")
	_ = v.BindEnv("split.max_percentage", "SPLIT_MAX_PERCENTAGE")
	_ = v.BindEnv("split.total_percentage", "SPLIT_TOTAL_PERCENTAGE")
	_ = v.BindEnv("split.observations_min", "SPLIT_OBSERVATIONS_MIN")
	_ = v.BindEnv("split.observations_max", "SPLIT_OBSERVATIONS_MAX")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &config, nil
}
