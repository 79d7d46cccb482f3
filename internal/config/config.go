// Package config loads application configuration. Values come from
// environment variables, optionally layered over a YAML file named by
// CONFIG_PATH. No other package reads the environment directly.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration. Passed to other packages via
// dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `yaml:"env" env:"ENV" env-default:"development" env-description:"runtime environment (development, production)"`

	Port    int    `yaml:"port" env:"PORT" env-default:"8080" env-description:"HTTP listen port"`
	BaseURL string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080" env-description:"public URL of the server"`

	// MigrationsPath is the golang-migrate source directory.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"db/migrations" env-description:"directory holding *.up.sql/*.down.sql"`

	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// LogConfig controls slog output and the optional rotating file sink.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"debug" env-description:"debug, info, warn or error"`

	// File enables a lumberjack-rotated copy of the log when non-empty.
	File       string `yaml:"file" env:"LOG_FILE" env-description:"optional log file path (rotated)"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"28"`
}

// DatabaseConfig holds MariaDB connection parameters. DATABASE_URL, when
// set, is used verbatim instead of the individual fields.
type DatabaseConfig struct {
	// Host is host or host:port; 3306 is appended when no port is given.
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost:3306"`
	User     string `yaml:"user" env:"DB_USER" env-default:"larp"`
	Password string `yaml:"password" env:"DB_PASSWORD" env-default:"larp"`
	Name     string `yaml:"name" env:"DB_NAME" env-default:"larp"`
	URL      string `yaml:"url" env:"DATABASE_URL" env-description:"full MySQL DSN, overrides DB_* fields"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`

	// ConnectTimeout bounds the startup ping retries.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"DB_CONNECT_TIMEOUT" env-default:"2m"`
}

const devPassword = "larp"

// DSN returns the go-sql-driver/mysql connection string. FormatDSN escapes
// special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// golang-migrate runs each file as one Exec.
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL" env-default:"redis://localhost:6379"`

	// PoolSize overrides go-redis' default of ten connections per CPU
	// when positive. Each connected client holds one for its subscription.
	PoolSize int `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"0"`

	// ConnectTimeout bounds the startup ping retries.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"REDIS_CONNECT_TIMEOUT" env-default:"1m"`
}

// RealtimeConfig tunes the push channel.
type RealtimeConfig struct {
	// ChannelPrefix namespaces pub/sub channels so several deployments can
	// share one Redis.
	ChannelPrefix string        `yaml:"channel_prefix" env:"REALTIME_CHANNEL_PREFIX" env-default:"larp"`
	WriteTimeout  time.Duration `yaml:"write_timeout" env:"REALTIME_WRITE_TIMEOUT" env-default:"10s"`
	PingInterval  time.Duration `yaml:"ping_interval" env:"REALTIME_PING_INTERVAL" env-default:"30s"`
}

// RateLimitConfig controls the Redis-backed per-IP limiter on /api.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"120"`
	Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"1m"`
}

// HTTPConfig holds proxy and CORS settings.
type HTTPConfig struct {
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-default:"127.0.0.1/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fd00::/8"`
	CORSOrigins    []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-description:"comma-separated origins allowed to call /api"`
}

// Load reads configuration. Precedence is environment, then the YAML file
// at CONFIG_PATH if set, then env-default tags.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that are unsafe or unusable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.Realtime.PingInterval <= 0 || c.Realtime.WriteTimeout <= 0 {
		return fmt.Errorf("REALTIME_PING_INTERVAL and REALTIME_WRITE_TIMEOUT must be positive")
	}
	if c.IsProduction() && c.Database.URL == "" && c.Database.Password == devPassword {
		return fmt.Errorf("DB_PASSWORD must be changed from the development default in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction is case-insensitive and accepts "prod".
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// Describe returns a table of every supported environment variable.
func Describe() (string, error) {
	header := "LARP server environment variables:"
	return cleanenv.GetDescription(&Config{}, &header)
}
