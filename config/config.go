package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"company-tasks-api/storage"
)

const (
	DefaultEnvFile       = "config/.env"
	DefaultPort          = "8080"
	DefaultRatePerMinute = 600
)

// Config is read once at startup and treated as immutable.
type Config struct {
	ProjectID string
	APIKey    string

	ClientEmail string
	PrivateKey  string

	FirestoreBaseURL string
	TokenURL         string
	IdentityBaseURL  string
	JWKSURL          string

	ResponseCacheTTL time.Duration
	FanOutLimit      int
	RedisConnection  string

	RateLimitPerMinute int

	AuthTestMode  bool
	TestJWTSecret string

	Port      string
	Debug     bool
	LogFormat string
}

// LoadEnvFile merges a dotenv file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ProjectID:        os.Getenv("FIREBASE_PROJECT_ID"),
		APIKey:           os.Getenv("FIREBASE_API_KEY"),
		ClientEmail:      os.Getenv("FIREBASE_CLIENT_EMAIL"),
		PrivateKey:       strings.ReplaceAll(os.Getenv("FIREBASE_PRIVATE_KEY"), `\n`, "\n"),
		FirestoreBaseURL: os.Getenv("FIRESTORE_BASE_URL"),
		TokenURL:         os.Getenv("TOKEN_URL"),
		IdentityBaseURL:  os.Getenv("IDENTITY_BASE_URL"),
		JWKSURL:          os.Getenv("JWKS_URL"),
		RedisConnection:  os.Getenv("REDIS_CONNECTION_STRING"),
		AuthTestMode:     os.Getenv("AUTH_TEST_MODE") == "1",
		TestJWTSecret:    os.Getenv("TEST_JWT_SECRET"),
		LogFormat:        strings.ToLower(os.Getenv("LOG_FORMAT")),
	}

	var missing []string
	if cfg.ProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "FIREBASE_API_KEY")
	}
	if cfg.AuthTestMode && cfg.TestJWTSecret == "" {
		missing = append(missing, "TEST_JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	var err error
	if cfg.ResponseCacheTTL, err = envDuration("RESPONSE_CACHE_TTL", storage.DefaultResponseTTL); err != nil {
		return nil, err
	}
	if cfg.FanOutLimit, err = envInt("FANOUT_LIMIT", storage.DefaultFanOutLimit, 1); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = envInt("RATE_LIMIT_PER_MINUTE", DefaultRatePerMinute, 0); err != nil {
		return nil, err
	}
	if v := os.Getenv("DEBUG"); v != "" {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid DEBUG: %w", err)
		}
	}

	cfg.Port = DefaultPort
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		cfg.Port = v
	} else if v, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && v != "" {
		cfg.Port = v
	}
	return cfg, nil
}

// HasServiceAccount reports whether document store credentials are configured.
func (c *Config) HasServiceAccount() bool {
	return c.ClientEmail != "" && c.PrivateKey != ""
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func envInt(key string, def, min int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < min {
		return 0, fmt.Errorf("invalid %s: must be at least %d", key, min)
	}
	return n, nil
}

// RedisOptions accepts either a redis:// URL or the Azure style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if strings.TrimSpace(conn) == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
