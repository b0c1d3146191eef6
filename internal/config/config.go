package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	SnapshotPath     string        `mapstructure:"SNAPSHOT_PATH"`
	SnapshotInterval time.Duration `mapstructure:"SNAPSHOT_INTERVAL"`
	AIDraftURL       string        `mapstructure:"AI_DRAFT_URL"`
	AIDraftTimeout   time.Duration `mapstructure:"AI_DRAFT_TIMEOUT"`
	AIDraftProvider  string        `mapstructure:"AI_DRAFT_PROVIDER"`
	AuthEnabled      bool          `mapstructure:"AUTH_ENABLED"`
	AuthJWTSecret    string        `mapstructure:"AUTH_JWT_SECRET"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	MaxBodySize      string        `mapstructure:"MAX_BODY_SIZE"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SNAPSHOT_PATH", "data/careroute.json")
	v.SetDefault("SNAPSHOT_INTERVAL", "5m")
	v.SetDefault("AI_DRAFT_TIMEOUT", "10s")
	v.SetDefault("AI_DRAFT_PROVIDER", "openai")
	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("MAX_BODY_SIZE", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SNAPSHOT_PATH")
	v.BindEnv("SNAPSHOT_INTERVAL")
	v.BindEnv("AI_DRAFT_URL")
	v.BindEnv("AI_DRAFT_TIMEOUT")
	v.BindEnv("AI_DRAFT_PROVIDER")
	v.BindEnv("AUTH_ENABLED")
	v.BindEnv("AUTH_JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("MAX_BODY_SIZE")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("SHUTDOWN_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesPostgres reports whether a postgres connection string is configured.
// Without one the server runs on the file-backed in-memory store.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run. Auth needs a signing
// secret whenever it is enabled, and production refuses to run with auth off.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.AuthEnabled && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when AUTH_ENABLED is true")
	}
	if c.IsProduction() && !c.AuthEnabled {
		return fmt.Errorf("AUTH_ENABLED must be true in production")
	}
	if !c.UsesPostgres() && c.SnapshotPath == "" {
		return fmt.Errorf("SNAPSHOT_PATH is required when DATABASE_URL is not set")
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must not be negative")
	}
	if c.AIDraftTimeout <= 0 {
		return fmt.Errorf("AI_DRAFT_TIMEOUT must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}
