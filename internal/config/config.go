package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ehr/patients/internal/platform/db"
)

// DefaultSecretKey is the documented development signing secret. It is
// rejected in production.
const DefaultSecretKey = "CHANGE_ME_SUPER_SECRET"

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	SecretKey          string        `mapstructure:"SECRET_KEY"`
	TokenTTL           time.Duration `mapstructure:"TOKEN_TTL"`
	CookieSecure       bool          `mapstructure:"COOKIE_SECURE"`
	LoginRatePerMinute int           `mapstructure:"LOGIN_RATE_PER_MINUTE"`
	ImportBodyLimit    string        `mapstructure:"IMPORT_BODY_LIMIT"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"SECRET_KEY", "TOKEN_TTL", "COOKIE_SECURE", "LOGIN_RATE_PER_MINUTE", "IMPORT_BODY_LIMIT",
	"REQUEST_TIMEOUT",
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; variables already set in the
// environment win over the file. A .env that exists but cannot be read or
// parsed is an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "sqlite://patients.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SECRET_KEY", DefaultSecretKey)
	v.SetDefault("TOKEN_TTL", "8h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 10)
	v.SetDefault("IMPORT_BODY_LIMIT", "2M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if _, err := db.Driver(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("DATABASE_URL: %w", err)
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

// Validate checks that the configuration is safe to run. In production the
// signing secret must be changed from the default and be at least 32 bytes.
func (c *Config) Validate() error {
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY must not be empty")
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive, got %d", c.LoginRatePerMinute)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if c.IsProduction() {
		if c.SecretKey == DefaultSecretKey {
			return fmt.Errorf("SECRET_KEY is still the development default; refusing to start in production")
		}
		if len(c.SecretKey) < 32 {
			return fmt.Errorf("SECRET_KEY must be at least 32 bytes in production, got %d", len(c.SecretKey))
		}
	}
	return nil
}

// Warnings lists non-fatal configuration issues worth logging at startup.
func (c *Config) Warnings() []string {
	var w []string
	if c.SecretKey == DefaultSecretKey {
		w = append(w, "SECRET_KEY is the development default; set SECRET_KEY before exposing this server")
	}
	if !c.CookieSecure && !c.IsDev() {
		w = append(w, "COOKIE_SECURE is false outside development; the session cookie will be sent over plain HTTP")
	}
	return w
}
