// Package config loads server settings.
//
// Sources, lowest priority first:
//  1. built-in defaults (Default)
//  2. a .env file in the working directory, if present
//  3. the YAML file named by CONFIG_FILE, if set
//  4. environment variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Views     ViewConfig      `yaml:"views"`
	Auth      AuthConfig      `yaml:"auth"`
	Mail      MailConfig      `yaml:"mail"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"` // sqlite | mongo
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type CacheConfig struct {
	Driver        string        `yaml:"driver"` // redis | memory
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTLShort      time.Duration `yaml:"ttl_short"`
	TTLMedium     time.Duration `yaml:"ttl_medium"`
	TTLLong       time.Duration `yaml:"ttl_long"`
}

type ViewConfig struct {
	Cooldown    time.Duration `yaml:"cooldown"`
	MaxVisitors int           `yaml:"max_visitors"`
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	ResetTokenTTL      time.Duration `yaml:"reset_token_ttl"`
	GitHubClientID     string        `yaml:"github_client_id"`
	GitHubClientSecret string        `yaml:"github_client_secret"`
	GitHubCallbackURL  string        `yaml:"github_callback_url"`
}

// MailConfig configures password-reset mail. An empty SMTPHost logs the
// mail instead of sending it.
type MailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	From         string `yaml:"from"`
	ResetURL     string `yaml:"reset_url"` // the token is appended as ?token=
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		Port:     8080,
		LogLevel: "info",
		Store: StoreConfig{
			Driver:        "sqlite",
			SQLitePath:    "data/blogs.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "mrblogs",
		},
		Cache: CacheConfig{
			Driver:    "redis",
			RedisAddr: "localhost:6379",
			TTLShort:  120 * time.Second,
			TTLMedium: 600 * time.Second,
			TTLLong:   1800 * time.Second,
		},
		Views: ViewConfig{
			Cooldown:    30 * time.Minute,
			MaxVisitors: 1000,
		},
		Auth: AuthConfig{
			TokenTTL:      24 * time.Hour,
			ResetTokenTTL: time.Hour,
		},
		Mail: MailConfig{
			SMTPPort: 587,
			From:     "Mr. Blogs <no-reply@mrblogs.dev>",
			ResetURL: "http://localhost:3000/reset-password",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
		},
	}
}

// Load builds the configuration from every source and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	integer("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)

	str("STORE_DRIVER", &c.Store.Driver)
	str("DB_PATH", &c.Store.SQLitePath)
	str("MONGO_URI", &c.Store.MongoURI)
	str("MONGO_DATABASE", &c.Store.MongoDatabase)

	str("CACHE_DRIVER", &c.Cache.Driver)
	str("REDIS_ADDR", &c.Cache.RedisAddr)
	str("REDIS_PASSWORD", &c.Cache.RedisPassword)
	integer("REDIS_DB", &c.Cache.RedisDB)
	duration("CACHE_TTL_SHORT", &c.Cache.TTLShort)
	duration("CACHE_TTL_MEDIUM", &c.Cache.TTLMedium)
	duration("CACHE_TTL_LONG", &c.Cache.TTLLong)

	duration("VIEW_COOLDOWN", &c.Views.Cooldown)
	integer("VIEW_MAX_VISITORS", &c.Views.MaxVisitors)

	str("JWT_SECRET", &c.Auth.JWTSecret)
	duration("TOKEN_TTL", &c.Auth.TokenTTL)
	duration("RESET_TOKEN_TTL", &c.Auth.ResetTokenTTL)
	str("GITHUB_CLIENT_ID", &c.Auth.GitHubClientID)
	str("GITHUB_CLIENT_SECRET", &c.Auth.GitHubClientSecret)
	str("GITHUB_CALLBACK_URL", &c.Auth.GitHubCallbackURL)

	str("SMTP_HOST", &c.Mail.SMTPHost)
	integer("SMTP_PORT", &c.Mail.SMTPPort)
	str("SMTP_USERNAME", &c.Mail.SMTPUsername)
	str("SMTP_PASSWORD", &c.Mail.SMTPPassword)
	str("MAIL_FROM", &c.Mail.From)
	str("RESET_URL", &c.Mail.ResetURL)

	float("RATE_LIMIT_RPS", &c.RateLimit.RequestsPerSecond)
	integer("RATE_LIMIT_BURST", &c.RateLimit.Burst)

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Store.Driver {
	case "sqlite", "mongo":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Cache.Driver {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown cache driver %q", c.Cache.Driver))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT secret must be at least 32 characters"))
	}
	if c.Cache.TTLShort <= 0 || c.Cache.TTLMedium <= 0 || c.Cache.TTLLong <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.Views.Cooldown <= 0 {
		errs = append(errs, errors.New("view cooldown must be positive"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses LogLevel, falling back to Info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
