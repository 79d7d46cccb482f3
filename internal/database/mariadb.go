// Package database provides connection setup for MariaDB and Redis and
// runs schema migrations. Connections are created once at startup and
// shared via dependency injection.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	// Registers the "mysql" driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/larp/internal/config"
)

// NewMariaDB opens a pool and pings until the server answers or the
// configured connect timeout passes. MariaDB is often still starting when
// the app container launches.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := pingWithRetry(ctx, "mariadb", cfg.ConnectTimeout, db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// pingWithRetry calls ping with exponential backoff until it succeeds or
// limit passes. Each attempt gets five seconds.
func pingWithRetry(ctx context.Context, name string, limit time.Duration, ping func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, ping(pingCtx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(limit),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("backing service not ready, retrying",
				slog.String("service", name),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("pinging %s after %d attempts: %w", name, attempt, err)
	}
	return nil
}
