package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultNeedsSecret(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = testSecret
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
store:
  driver: mongo
  mongo_database: blogs_test
cache:
  driver: memory
  ttl_short: 1m
views:
  max_visitors: 50
auth:
  jwt_secret: `+testSecret+`
`), 0o600))

	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("VIEW_COOLDOWN", "10m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "env wins over file")
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "blogs_test", cfg.Store.MongoDatabase)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, time.Minute, cfg.Cache.TTLShort)
	assert.Equal(t, 600*time.Second, cfg.Cache.TTLMedium, "untouched values keep defaults")
	assert.Equal(t, 50, cfg.Views.MaxVisitors)
	assert.Equal(t, 10*time.Minute, cfg.Views.Cooldown)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "http://localhost:9100/auth/github/callback", cfg.Auth.GitHubCallbackURL)
	assert.Equal(t, ":9100", cfg.Addr())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("JWT_SECRET="+testSecret+"\nCACHE_DRIVER=memory\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", "")

	// godotenv sets variables for the process; make sure they are reset.
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("CACHE_DRIVER", "")
	os.Unsetenv("CACHE_DRIVER")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "memory", cfg.Cache.Driver)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "eighty")

	_, err := Load()
	assert.ErrorContains(t, err, "PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown store", func(c *Config) { c.Store.Driver = "postgres" }, "unknown store driver"},
		{"unknown cache", func(c *Config) { c.Cache.Driver = "memcached" }, "unknown cache driver"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "at least 32"},
		{"zero ttl", func(c *Config) { c.Cache.TTLMedium = 0 }, "TTLs must be positive"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.JWTSecret = testSecret
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}
