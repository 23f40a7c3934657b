// Package config loads the service's runtime configuration via
// spf13/viper, binding environment variables with an ACS_ prefix.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every external dependency and tunable the service needs at
// startup (spec.md §9 "Configuration").
type Config struct {
	TenantID string `mapstructure:"tenant_id"`

	PostgresPrimaryDSN string `mapstructure:"postgres_primary_dsn"`
	PostgresReplicaDSN string `mapstructure:"postgres_replica_dsn"`
	PostgresDBName     string `mapstructure:"postgres_db_name"`

	RedisURL    string `mapstructure:"redis_url"`
	RabbitMQURL string `mapstructure:"rabbitmq_url"`
	MongoURI    string `mapstructure:"mongo_uri"`

	ChannelCapacity int           `mapstructure:"channel_capacity"`
	DrainDeadline   time.Duration `mapstructure:"drain_deadline"`

	RetryMaxAttempts     int           `mapstructure:"retry_max_attempts"`
	RetryInitialBackoff  time.Duration `mapstructure:"retry_initial_backoff"`

	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	RedriveInterval time.Duration `mapstructure:"redrive_interval"`
	RedriveBatch    int           `mapstructure:"redrive_batch"`

	ArchiveRootPath string `mapstructure:"archive_root_path"`

	LogLevel string `mapstructure:"log_level"`

	DashboardEnabled         bool          `mapstructure:"dashboard_enabled"`
	DashboardRefreshInterval time.Duration `mapstructure:"dashboard_refresh_interval"`
}

// Load reads configuration from environment variables (prefix ACS_) with
// sane defaults for everything not explicitly set, mirroring the teacher's
// env-first configuration posture.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("acs")
	v.AutomaticEnv()

	v.SetDefault("tenant_id", "default")
	v.SetDefault("postgres_db_name", "acs")
	v.SetDefault("channel_capacity", 1000)
	v.SetDefault("drain_deadline", 10*time.Second)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_initial_backoff", 2*time.Second)
	v.SetDefault("cache_ttl", 5*time.Minute)
	v.SetDefault("redrive_interval", time.Minute)
	v.SetDefault("redrive_batch", 50)
	v.SetDefault("archive_root_path", "./archives")
	v.SetDefault("log_level", "info")
	v.SetDefault("dashboard_enabled", false)
	v.SetDefault("dashboard_refresh_interval", 30*time.Second)

	cfg := &Config{
		TenantID:                 v.GetString("tenant_id"),
		PostgresPrimaryDSN:       v.GetString("postgres_primary_dsn"),
		PostgresReplicaDSN:       v.GetString("postgres_replica_dsn"),
		PostgresDBName:           v.GetString("postgres_db_name"),
		RedisURL:                 v.GetString("redis_url"),
		RabbitMQURL:              v.GetString("rabbitmq_url"),
		MongoURI:                 v.GetString("mongo_uri"),
		ChannelCapacity:          v.GetInt("channel_capacity"),
		DrainDeadline:            v.GetDuration("drain_deadline"),
		RetryMaxAttempts:         v.GetInt("retry_max_attempts"),
		RetryInitialBackoff:      v.GetDuration("retry_initial_backoff"),
		CacheTTL:                 v.GetDuration("cache_ttl"),
		RedriveInterval:          v.GetDuration("redrive_interval"),
		RedriveBatch:             v.GetInt("redrive_batch"),
		ArchiveRootPath:          v.GetString("archive_root_path"),
		LogLevel:                 v.GetString("log_level"),
		DashboardEnabled:         v.GetBool("dashboard_enabled"),
		DashboardRefreshInterval: v.GetDuration("dashboard_refresh_interval"),
	}

	return cfg, nil
}
