// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (DB pool, Redis client, Echo
// instance) and wires the plugins together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/config"
	"github.com/keyxmakerx/larp/internal/middleware"
	"github.com/keyxmakerx/larp/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Redis carries the push channel and the rate limiter.
	Redis *redis.Client

	Echo *echo.Echo
}

// New creates an App and configures Echo with global middleware and
// error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// We log our own startup line.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() must return the player's address behind the venue proxy;
	// the rate limiter keys on it.
	middleware.TrustedProxies(e, cfg.HTTP.TrustedProxies)

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.RequestID())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders())

	origins := append([]string{a.Config.BaseURL}, a.Config.HTTP.CORSOrigins...)
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: origins,
	}))
}

// errorHandler maps domain errors (AppError) to HTTP responses: JSON for
// API requests, a rendered error page otherwise.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		message = appErr.Message

		if appErr.Internal != nil {
			level := slog.LevelDebug
			if code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.Log(c.Request().Context(), level, "request failed",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
				slog.String("request_id", middleware.GetRequestID(c)),
			)
		}
	} else {
		// Echo's own errors, e.g. 404 from the router or 405.
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			} else {
				message = defaultErrorMessage(code)
			}
		} else {
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
				slog.String("request_id", middleware.GetRequestID(c)),
			)
		}
	}

	if middleware.IsAPI(c) {
		if err := c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		}); err != nil {
			slog.Debug("writing error response", slog.Any("error", err))
		}
		return
	}

	if err := middleware.Render(c, code, pages.ErrorPage(code, message)); err != nil {
		slog.Debug("rendering error page", slog.Any("error", err))
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "A valid access key is required."
	case http.StatusForbidden:
		return "Your access key does not allow this."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusConflict:
		return "This action conflicts with the current state of the game."
	case http.StatusUnprocessableEntity:
		return "The submitted data could not be processed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// healthz reports whether MariaDB and Redis answer.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()
	status := map[string]string{"status": "ok", "database": "ok", "redis": "ok"}
	code := http.StatusOK

	if err := a.DB.PingContext(ctx); err != nil {
		status["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	return c.JSON(code, status)
}

// Start begins listening for HTTP requests on the configured port. It
// returns http.ErrServerClosed after Shutdown.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting LARP server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}

// Shutdown drains in-flight requests and closes open streams.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}
