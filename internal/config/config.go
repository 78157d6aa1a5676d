package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from env / config file.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cloudflare CloudflareConfig `mapstructure:"cloudflare"`
	Portainer  PortainerConfig  `mapstructure:"portainer"`
	Netdata    NetdataConfig    `mapstructure:"netdata"`
	Storage    StorageConfig    `mapstructure:"storage"`
	S3         S3Config         `mapstructure:"s3"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	KMS        KMSConfig        `mapstructure:"kms"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`  // development | production
	Port    int    `mapstructure:"port"` // HTTP API port
	Version string `mapstructure:"version"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CloudflareConfig applies to every per-account API client.
// All Cloudflare calls are waited on by a human in the dashboard, so the
// request timeout stays short.
type CloudflareConfig struct {
	// Base API URL – override for testing
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Outbound requests per second toward the Cloudflare API (0 = unlimited)
	RateLimit float64 `mapstructure:"rate_limit"`
}

type PortainerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type NetdataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Read-through cache TTL for proxied metrics
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "s3" or "fs"
	FSRoot  string `mapstructure:"fs_root"` // Root directory for filesystem backend
}

// S3Config holds credentials for an S3-compatible provider used by the
// ingress snapshot store.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// ForcePathStyle must be true for Garage / MinIO
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

type WorkerConfig struct {
	// Max concurrent workers processing sync tasks
	Concurrency int `mapstructure:"concurrency"`
}

type KMSConfig struct {
	Key string `mapstructure:"key"`
}

// NotifyConfig configures sync failure alerts. With an empty webhook URL
// alerts only go to the worker log.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variable prefix: MURAQIB_
// Example: MURAQIB_APP_PORT=8080.
func Load() (*Config, error) {
	v := viper.New()

	// ---------- defaults ----------
	v.SetDefault("app.name", "muraqib")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.version", "0.3.0")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("cloudflare.base_url", "https://api.cloudflare.com/client/v4")
	v.SetDefault("cloudflare.request_timeout", "10s")
	v.SetDefault("cloudflare.rate_limit", 4)

	v.SetDefault("portainer.base_url", "")
	v.SetDefault("portainer.api_key", "")
	v.SetDefault("portainer.request_timeout", "10s")

	v.SetDefault("netdata.base_url", "")
	v.SetDefault("netdata.request_timeout", "5s")
	v.SetDefault("netdata.cache_ttl", "5m")

	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.fs_root", "./data/snapshots")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", true)

	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("kms.key", "")
	v.SetDefault("notify.webhook_url", "")

	// ---------- config file (optional) ----------
	v.SetConfigName("muraqib")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/muraqib")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	// ---------- env vars ----------
	v.SetEnvPrefix("MURAQIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}
