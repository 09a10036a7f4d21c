// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the grpc.health.v1 server. Empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// DatabaseURL is the Postgres DSN for the identity mirror, policies and audit logs.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPublicKey is the PEM-encoded identity-provider public key (RSA or ECDSA) or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is the matching private key; only cmd/seed uses it to issue development session tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTIssuer is the expected iss claim of session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim of session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// WebhookSecret is the identity-provider webhook signing secret ("whsec_" prefix optional, base64).
	WebhookSecret string `mapstructure:"WEBHOOK_SECRET"`

	// CacheBackend selects the identity cache: memory (per process) or redis (shared).
	CacheBackend string `mapstructure:"CACHE_BACKEND"`
	// CacheTTL is the identity cache entry lifetime (e.g. "60s").
	CacheTTL string `mapstructure:"CACHE_TTL"`
	// CacheMaxEntries bounds the in-memory cache.
	CacheMaxEntries int    `mapstructure:"CACHE_MAX_ENTRIES"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int    `mapstructure:"REDIS_DB"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables event publishing.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthzEventsTopic is the Kafka topic for authorization decision events.
	AuthzEventsTopic string `mapstructure:"AUTHZ_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty disables OTel export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_HEALTH_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "fleet-identity")
	v.SetDefault("JWT_AUDIENCE", "fleet-app")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("CACHE_BACKEND", CacheBackendMemory)
	v.SetDefault("CACHE_TTL", "60s")
	v.SetDefault("CACHE_MAX_ENTRIES", 10000)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTHZ_EVENTS_TOPIC", "fleet-authz-events")
	v.SetDefault("KAFKA_GROUP_ID", "fleet-authz-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field combinations that Load cannot default away.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: CACHE_BACKEND must be %s or %s, got %q", CacheBackendMemory, CacheBackendRedis, c.CacheBackend)
	}
	if c.CacheMaxEntries < 0 {
		return errors.New("config: CACHE_MAX_ENTRIES must not be negative")
	}
	if c.Env == "production" {
		if c.JWTPublicKey == "" {
			return errors.New("config: JWT_PUBLIC_KEY must be set when APP_ENV=production")
		}
		if c.WebhookSecret == "" {
			return errors.New("config: WEBHOOK_SECRET must be set when APP_ENV=production")
		}
		if c.JWTPrivateKey != "" {
			return errors.New("config: JWT_PRIVATE_KEY must not be set when APP_ENV=production")
		}
	}
	return nil
}

// IdentityCacheTTL parses CacheTTL as a time.Duration. Returns 60s if unset or invalid and caps at 10m.
func (c *Config) IdentityCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	if d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publishing is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
