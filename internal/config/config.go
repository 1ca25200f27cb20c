package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultSecretKey = "you-should-really-change-this"
	testingSecretKey = "test-secret-key"
	testingDatabase  = "sqlite://:memory:"
)

// Config holds runtime settings for the catalog server.
type Config struct {
	AppPort       string
	SecretKey     string
	DatabaseURL   string
	Testing       bool
	LogLevel      string
	PageSize      int
	SessionTTL    time.Duration
	RememberTTL   time.Duration
	RedisURL      string
	RabbitMQURL   string
	CSRFEnabled   bool
	CookieSecure  bool
	AdminUsername string
	AdminPassword string
	AdminEmail    string
}

// Load reads an optional .env file and the process environment.
func Load() (*Config, error) {
	// a missing .env file is not an error
	_ = godotenv.Load()
	return FromViper(viper.New())
}

// FromViper builds a Config from v after applying defaults and AutomaticEnv.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("SECRET_KEY", defaultSecretKey)
	v.SetDefault("DATABASE_URL", "sqlite://instance/app.db")
	v.SetDefault("TESTING", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PAGE_SIZE", 10)
	v.SetDefault("SESSION_TTL", 24*time.Hour)
	v.SetDefault("REMEMBER_TTL", 30*24*time.Hour)
	v.SetDefault("CSRF_ENABLED", true)
	v.SetDefault("COOKIE_SECURE", false)
	v.AutomaticEnv()

	cfg := &Config{
		AppPort:       v.GetString("APP_PORT"),
		SecretKey:     v.GetString("SECRET_KEY"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		Testing:       v.GetBool("TESTING"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		PageSize:      v.GetInt("PAGE_SIZE"),
		SessionTTL:    v.GetDuration("SESSION_TTL"),
		RememberTTL:   v.GetDuration("REMEMBER_TTL"),
		RedisURL:      v.GetString("REDIS_URL"),
		RabbitMQURL:   v.GetString("RABBITMQ_URL"),
		CSRFEnabled:   v.GetBool("CSRF_ENABLED"),
		CookieSecure:  v.GetBool("COOKIE_SECURE"),
		AdminUsername: v.GetString("ADMIN_USERNAME"),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
	}
	if cfg.Testing {
		cfg.ApplyTesting()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyTesting switches cfg to an isolated in-memory setup with a fixed
// secret and without CSRF checks or external brokers.
func (c *Config) ApplyTesting() {
	c.Testing = true
	c.SecretKey = testingSecretKey
	c.DatabaseURL = testingDatabase
	c.CSRFEnabled = false
	c.CookieSecure = false
	c.RedisURL = ""
	c.RabbitMQURL = ""
}

// Testing returns a ready-to-use configuration for tests.
func Testing() *Config {
	c := &Config{
		AppPort:     ":0",
		LogLevel:    "error",
		PageSize:    10,
		SessionTTL:  time.Hour,
		RememberTTL: 24 * time.Hour,
	}
	c.ApplyTesting()
	return c
}

// Validate reports configuration errors that would make the server unusable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("SECRET_KEY must not be empty"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize))
	}
	if !supportedDatabaseURL(c.DatabaseURL) {
		errs = append(errs, fmt.Errorf("DATABASE_URL %q: scheme must be sqlite://, postgres:// or postgresql://", c.DatabaseURL))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.RememberTTL <= 0 {
		errs = append(errs, errors.New("REMEMBER_TTL must be positive"))
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// UsesDefaultSecret reports whether the built-in development secret is in use.
func (c *Config) UsesDefaultSecret() bool {
	return c.SecretKey == defaultSecretKey
}

func supportedDatabaseURL(url string) bool {
	for _, prefix := range []string{"sqlite://", "postgres://", "postgresql://"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
