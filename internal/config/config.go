package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMemory = "memory"
	StorageMinIO  = "minio"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	LogLevel      string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	Tenants       []string `mapstructure:"TENANTS"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	S3Endpoint     string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey    string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey    string `mapstructure:"S3_SECRET_KEY"`
	S3Bucket       string `mapstructure:"S3_BUCKET"`
	S3Region       string `mapstructure:"S3_REGION"`
	S3UseSSL       bool   `mapstructure:"S3_USE_SSL"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`

	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int    `mapstructure:"REDIS_DB"`
	WorkerConcurrency int    `mapstructure:"WORKER_CONCURRENCY"`
	SweepCron         string `mapstructure:"SWEEP_CRON"`
	WorkerMetricsAddr string `mapstructure:"WORKER_METRICS_ADDR"`

	InviteTTL     time.Duration `mapstructure:"INVITE_TTL"`
	InviteBaseURL string        `mapstructure:"INVITE_BASE_URL"`
}

var defaults = map[string]interface{}{
	"PORT":                "8000",
	"ENV":                 "development",
	"LOG_LEVEL":           "info",
	"DB_MAX_CONNS":        20,
	"DB_MIN_CONNS":        2,
	"DEFAULT_TENANT":      "default",
	"CORS_ORIGINS":        "http://localhost:3000",
	"RATE_LIMIT_RPS":      100,
	"RATE_LIMIT_BURST":    200,
	"REQUEST_TIMEOUT":     "30s",
	"BODY_LIMIT":          "1M",
	"STORAGE_BACKEND":     StorageMemory,
	"S3_BUCKET":           "staff-documents",
	"S3_REGION":           "us-east-1",
	"MAX_UPLOAD_BYTES":    20 << 20,
	"REDIS_ADDR":          "localhost:6379",
	"REDIS_DB":            0,
	"WORKER_CONCURRENCY":  5,
	"SWEEP_CRON":          "@hourly",
	"WORKER_METRICS_ADDR": ":9091",
	"INVITE_TTL":          "336h",
	"INVITE_BASE_URL":     "http://localhost:3000/onboarding",
}

// keys without a default still need binding so Unmarshal sees them.
var unbound = []string{
	"DATABASE_URL", "TENANTS", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
	"AUTH_SIGNING_KEY", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY",
	"S3_USE_SSL", "REDIS_PASSWORD",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		v.BindEnv(key)
	}
	for _, key := range unbound {
		v.BindEnv(key)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.Tenants = splitList(cfg.Tenants)
	if len(cfg.Tenants) == 0 {
		cfg.Tenants = []string{cfg.DefaultTenant}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// splitList accepts either a real list or a single comma-separated value,
// which is what a list-typed env var decodes to.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside
// development a token verifier must be configured, and the MinIO backend
// needs its endpoint, credentials and bucket.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q; "+
			"refusing to start without authentication", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}

	switch c.StorageBackend {
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_BACKEND=%s loses documents on restart and is not allowed in production", StorageMemory)
		}
	case StorageMinIO:
		var missing []string
		for key, val := range map[string]string{
			"S3_ENDPOINT":   c.S3Endpoint,
			"S3_ACCESS_KEY": c.S3AccessKey,
			"S3_SECRET_KEY": c.S3SecretKey,
			"S3_BUCKET":     c.S3Bucket,
		} {
			if val == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("STORAGE_BACKEND=minio requires %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageMemory, StorageMinIO, c.StorageBackend)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.InviteTTL < time.Hour {
		return fmt.Errorf("INVITE_TTL must be at least 1h, got %s", c.InviteTTL)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	return nil
}
