// Package config loads service settings from the environment, optionally
// layered over a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	BackendMongo  = "mongo"
	BackendTables = "tables"
)

type Config struct {
	Port  string `yaml:"port" env:"PORT" env-default:"8080"`
	Debug bool   `yaml:"debug" env:"DEBUG" env-default:"false"`

	StorageBackend    string `yaml:"storage_backend" env:"STORAGE_BACKEND" env-default:"mongo"`
	AnalyticsStrategy string `yaml:"analytics_strategy" env:"ANALYTICS_STRATEGY" env-default:"fold"`

	MongoURI         string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase    string `yaml:"mongo_database" env:"MONGO_DATABASE" env-default:"workboard"`
	BoardsCollection string `yaml:"boards_collection" env:"BOARDS_COLLECTION" env-default:"boards"`

	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	BoardsTable             string `yaml:"boards_table" env:"BOARDS_TABLE" env-default:"boards"`
	ActivityQueue           string `yaml:"activity_queue" env:"ACTIVITY_QUEUE"`
	ActivityWorkers         int    `yaml:"activity_workers" env:"ACTIVITY_WORKERS" env-default:"4"`
	ActivityBuffer          int    `yaml:"activity_buffer" env:"ACTIVITY_BUFFER" env-default:"256"`

	RedisConnectionString string        `yaml:"redis_connection_string" env:"REDIS_CONNECTION_STRING"`
	IdempotencyTTL        time.Duration `yaml:"idempotency_ttl" env:"IDEMPOTENCY_TTL" env-default:"24h"`

	Auth0Domain   string        `yaml:"auth0_domain" env:"AUTH0_DOMAIN"`
	Auth0Audience string        `yaml:"auth0_audience" env:"AUTH0_AUDIENCE"`
	Auth0TestMode bool          `yaml:"auth0_test_mode" env:"AUTH0_TEST_MODE" env-default:"false"`
	TestJWTSecret string        `yaml:"test_jwt_secret" env:"TEST_JWT_SECRET"`
	LocalAuthMode string        `yaml:"local_auth_mode" env:"LOCAL_AUTH_MODE"`
	LocalSecret   string        `yaml:"local_auth_shared_secret" env:"LOCAL_AUTH_SHARED_SECRET"`
	JWKSCacheTTL  time.Duration `yaml:"jwks_cache_ttl" env:"JWKS_CACHE_TTL" env-default:"15m"`

	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"0"`
}

// Load reads path when it exists and then applies the environment. An empty
// path reads the environment only.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		err := cleanenv.ReadConfig(path, &cfg)
		if err == nil {
			return cfg, cfg.Validate()
		}
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, cfg.Validate()
}

// SharedSecret returns the HS256 secret when a local or test auth mode is
// enabled, or "" for Auth0 RS256 verification.
func (c Config) SharedSecret() string {
	if strings.EqualFold(c.LocalAuthMode, "hs256") {
		return c.LocalSecret
	}
	if c.Auth0TestMode {
		return c.TestJWTSecret
	}
	return ""
}

// Validate rejects incomplete or contradictory settings.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo backend")
		}
	case BackendTables:
		if c.StorageConnectionString == "" || c.BoardsTable == "" {
			return errors.New("STORAGE_CONNECTION_STRING and BOARDS_TABLE are required for the tables backend")
		}
		if c.AnalyticsStrategy == "pipeline" {
			return errors.New("ANALYTICS_STRATEGY=pipeline requires the mongo backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.AnalyticsStrategy != "fold" && c.AnalyticsStrategy != "pipeline" {
		return fmt.Errorf("unsupported ANALYTICS_STRATEGY %q", c.AnalyticsStrategy)
	}
	if c.ActivityQueue != "" && c.StorageConnectionString == "" {
		return errors.New("ACTIVITY_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	switch strings.ToLower(c.LocalAuthMode) {
	case "":
	case "hs256":
		if c.LocalSecret == "" {
			return errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
	default:
		return fmt.Errorf("unsupported LOCAL_AUTH_MODE %q", c.LocalAuthMode)
	}
	if c.Auth0TestMode && c.TestJWTSecret == "" {
		return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE is on")
	}
	if c.SharedSecret() == "" && (c.Auth0Domain == "" || c.Auth0Audience == "") {
		return errors.New("AUTH0_DOMAIN and AUTH0_AUDIENCE are required unless a test auth mode is enabled")
	}
	if c.JWKSCacheTTL <= 0 {
		return errors.New("JWKS_CACHE_TTL must be positive")
	}
	if c.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}
