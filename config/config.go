package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	awspkg "whybuy-dashboard/pkg/aws"

	"github.com/joho/godotenv"
)

// Config holds the dashboard's runtime settings.
type Config struct {
	Port           string
	Env            string
	BackendURL     string
	AuthURL        string
	AuthAnonKey    string
	AuthJWTSecret  string
	RedisURL       string
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration
	AllowedOrigins []string
	CookieSecure   bool
	PublicURL      string

	ActivityTopicARN  string
	CloudWatchEnabled bool
	UseSecrets        bool
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup and validates it.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port:              get("PORT", "8000"),
		Env:               get("APP_ENV", "development"),
		BackendURL:        strings.TrimRight(get("BACKEND_URL", ""), "/"),
		AuthURL:           strings.TrimRight(get("AUTH_URL", ""), "/"),
		AuthAnonKey:       get("AUTH_ANON_KEY", ""),
		AuthJWTSecret:     get("AUTH_JWT_SECRET", ""),
		RedisURL:          get("REDIS_URL", "redis://localhost:6379/0"),
		PublicURL:         strings.TrimRight(get("PUBLIC_URL", "http://localhost:8000"), "/"),
		ActivityTopicARN:  get("ACTIVITY_TOPIC_ARN", ""),
		CloudWatchEnabled: get("CLOUDWATCH_ENABLED", "") == "true",
		UseSecrets:        get("AWS_USE_SECRETS", "") == "true",
	}

	var err error
	if cfg.SessionTTL, err = duration(get("SESSION_TTL", "168h")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}
	if cfg.RequestTimeout, err = duration(get("REQUEST_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	if cfg.PollInterval, err = duration(get("POLL_INTERVAL", "5s")); err != nil {
		return nil, fmt.Errorf("POLL_INTERVAL: %w", err)
	}

	secure, err := strconv.ParseBool(get("COOKIE_SECURE", strconv.FormatBool(cfg.IsProduction())))
	if err != nil {
		return nil, fmt.Errorf("COOKIE_SECURE: %w", err)
	}
	cfg.CookieSecure = secure

	for _, origin := range strings.Split(get("ALLOWED_ORIGINS", cfg.PublicURL), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("AUTH_URL is required")
	}

	return cfg, nil
}

func duration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

// Secret names read when AWS_USE_SECRETS=true.
const (
	SecretAuthAnonKey   = "dashboard/AUTH_ANON_KEY"
	SecretAuthJWTSecret = "dashboard/AUTH_JWT_SECRET"
)

// ApplySecrets overrides auth keys from Secrets Manager. Missing secrets keep
// the environment values.
func (c *Config) ApplySecrets(ctx context.Context, secrets awspkg.SecretFetcher) {
	if v, err := secrets.GetSecret(ctx, SecretAuthAnonKey); err == nil && v != "" {
		c.AuthAnonKey = v
	} else if err != nil {
		log.Printf("secret %s unavailable, keeping env value: %v", SecretAuthAnonKey, err)
	}
	if v, err := secrets.GetSecret(ctx, SecretAuthJWTSecret); err == nil && v != "" {
		c.AuthJWTSecret = v
	} else if err != nil {
		log.Printf("secret %s unavailable, keeping env value: %v", SecretAuthJWTSecret, err)
	}
}
