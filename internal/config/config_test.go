package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "db/migrations", cfg.MigrationsPath)
	assert.Equal(t, "larp", cfg.Realtime.ChannelPrefix)
	assert.Equal(t, 30*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, 120, cfg.RateLimit.Requests)
	assert.Contains(t, cfg.HTTP.TrustedProxies, "10.0.0.0/8")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "mariadb")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "mariadb", cfg.Database.Host)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
}

func TestLoad_ProductionRejectsDevPassword(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "Production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")

	t.Setenv("DB_PASSWORD", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7000\nrealtime:\n  channel_prefix: staging\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "staging", cfg.Realtime.ChannelPrefix)
}

func TestLoad_MissingYAMLFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Env:       "development",
			Port:      8080,
			RateLimit: RateLimitConfig{Requests: 10, Window: time.Minute},
			Realtime:  RealtimeConfig{PingInterval: time.Second, WriteTimeout: time.Second},
		}
	}
	require.NoError(t, base().Validate())

	c := base()
	c.Port = 0
	assert.Error(t, c.Validate())

	c = base()
	c.RateLimit.Requests = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Realtime.PingInterval = 0
	assert.Error(t, c.Validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "larp", Password: "p@ss:word", Name: "larp"}
	dsn := d.DSN()
	assert.Contains(t, dsn, "tcp(db:3306)")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")

	d.URL = "user:pw@tcp(other:3307)/x"
	assert.Equal(t, "user:pw@tcp(other:3307)/x", d.DSN())
}

func TestEnsurePort(t *testing.T) {
	assert.Equal(t, "db:3306", ensurePort("db", "3306"))
	assert.Equal(t, "db:3307", ensurePort("db:3307", "3306"))
}

func TestDescribe(t *testing.T) {
	out, err := Describe()
	require.NoError(t, err)
	assert.Contains(t, out, "REDIS_URL")
}
