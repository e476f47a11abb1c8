// Package config loads service configuration from EKKLESIA_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/cache"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Cache    CacheConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string
	TrustedProxies  []string
	LoginRPS        float64
	LoginBurst      int
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	DSN string
}

// AuthConfig holds raw secrets and token lifetimes.
type AuthConfig struct {
	Secret       string
	CSRFSecret   string
	ReauthSecret string
	Issuer       string
	TokenTTL     time.Duration
	ReauthTTL    time.Duration
}

// CacheConfig holds the two authorization caches' settings.
type CacheConfig struct {
	CredentialTTL time.Duration
	SettingTTL    time.Duration
	Ceiling       int
	Policy        cache.Policy
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	policy, err := cache.ParsePolicy(getEnv("EKKLESIA_CACHE_POLICY", ""))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("EKKLESIA_HTTP_ADDR", ":8080"),
			ReadTimeout:     getEnvDuration("EKKLESIA_HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("EKKLESIA_HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("EKKLESIA_HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("EKKLESIA_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    getEnvInt64("EKKLESIA_MAX_BODY_BYTES", 1<<20),
			AllowedOrigins:  getEnvList("EKKLESIA_CORS_ORIGINS"),
			TrustedProxies:  getEnvList("EKKLESIA_TRUSTED_PROXIES"),
			LoginRPS:        getEnvFloat("EKKLESIA_LOGIN_RPS", 1),
			LoginBurst:      getEnvInt("EKKLESIA_LOGIN_BURST", 5),
		},
		Database: DatabaseConfig{
			DSN: getEnv("EKKLESIA_PG_DSN", ""),
		},
		Auth: AuthConfig{
			Secret:       os.Getenv("EKKLESIA_AUTH_SECRET"),
			CSRFSecret:   os.Getenv("EKKLESIA_CSRF_SECRET"),
			ReauthSecret: os.Getenv("EKKLESIA_REAUTH_SECRET"),
			Issuer:       getEnv("EKKLESIA_TOKEN_ISSUER", "ekklesia"),
			TokenTTL:     getEnvDuration("EKKLESIA_TOKEN_TTL", 8*time.Hour),
			ReauthTTL:    getEnvDuration("EKKLESIA_REAUTH_TTL", 5*time.Minute),
		},
		Cache: CacheConfig{
			CredentialTTL: getEnvMillis("EKKLESIA_AUTH_CACHE_TTL_MS", 30*time.Second),
			SettingTTL:    getEnvMillis("EKKLESIA_SETTINGS_CACHE_TTL_MS", 30*time.Second),
			Ceiling:       getEnvInt("EKKLESIA_CACHE_CEILING", cache.DefaultCeiling),
			Policy:        policy,
		},
		LogLevel: getEnv("EKKLESIA_LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("EKKLESIA_PG_DSN is required")
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("EKKLESIA_AUTH_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Auth.ReauthTTL <= 0 {
		return fmt.Errorf("re-auth TTL must be positive")
	}
	if c.Cache.CredentialTTL < 0 || c.Cache.SettingTTL < 0 {
		return fmt.Errorf("cache TTLs must not be negative")
	}
	if c.Cache.Ceiling <= 0 {
		return fmt.Errorf("cache ceiling must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.Server.LoginRPS <= 0 || c.Server.LoginBurst <= 0 {
		return fmt.Errorf("login rate limit must be positive")
	}
	return nil
}

// Secrets resolves the secret fallback chain once.
func (c *Config) Secrets() (auth.Secrets, error) {
	return auth.ResolveSecrets(c.Auth.Secret, c.Auth.CSRFSecret, c.Auth.ReauthSecret)
}

// CredentialCacheOptions returns options for the credential cache.
func (c *Config) CredentialCacheOptions() []cache.Option {
	return []cache.Option{
		cache.WithTTL(c.Cache.CredentialTTL),
		cache.WithCeiling(c.Cache.Ceiling),
		cache.WithPolicy(c.Cache.Policy),
	}
}

// SettingCacheOptions returns options for the setting cache.
func (c *Config) SettingCacheOptions() []cache.Option {
	return []cache.Option{
		cache.WithTTL(c.Cache.SettingTTL),
		cache.WithCeiling(c.Cache.Ceiling),
		cache.WithPolicy(c.Cache.Policy),
	}
}

// getEnv returns an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvMillis reads a whole number of milliseconds. Zero is a valid value.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
