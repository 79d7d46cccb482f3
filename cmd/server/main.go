// Package main is the entry point for the LARP server. It loads
// configuration, connects to MariaDB and Redis, applies migrations, wires
// the plugins and serves HTTP until interrupted.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/keyxmakerx/larp/internal/app"
	"github.com/keyxmakerx/larp/internal/config"
	"github.com/keyxmakerx/larp/internal/database"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to MariaDB")

	if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
		return err
	}

	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()
	slog.Info("connected to Redis")

	application := app.New(cfg, db, rdb)
	application.RegisterRoutes()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")

		// In-flight requests get 10 seconds; open streams are cut.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return application.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("server stopped")
	return err
}

// setupLogging configures the global slog logger. Development uses text
// format for readability, production JSON. When LOG_FILE is set the
// output is also written to a lumberjack-rotated file. The returned
// function closes the file.
func setupLogging(cfg *config.Config) func() {
	var out io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}
	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return closeFn
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
