package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/larp/internal/apperror"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	_, rdb := newRedis(t)
	e := echo.New()
	h := RateLimit(rdb, "test", 2, time.Minute)(okHandler)

	for i := 1; i <= 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/games", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		err := h(e.NewContext(req, rec))

		if i <= 2 {
			if err != nil {
				t.Fatalf("request %d: unexpected error %v", i, err)
			}
			continue
		}
		if !apperror.HasCode(err, http.StatusTooManyRequests) {
			t.Fatalf("request %d: expected 429, got %v", i, err)
		}
		if rec.Header().Get("Retry-After") != "60" {
			t.Errorf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
		}
	}
}

func TestRateLimit_SeparateClients(t *testing.T) {
	_, rdb := newRedis(t)
	e := echo.New()
	h := RateLimit(rdb, "test", 1, time.Minute)(okHandler)

	for _, addr := range []string{"203.0.113.1:1", "203.0.113.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
			t.Errorf("%s: unexpected error %v", addr, err)
		}
	}
}

func TestRateLimit_FailsOpenWithoutRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	e := echo.New()
	h := RateLimit(rdb, "test", 1, time.Minute)(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("expected request through, got %v", err)
	}
}

func TestIPExtractor(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer ignores header", "198.51.100.1:443", "1.2.3.4", "198.51.100.1"},
		{"trusted peer skips trusted hops", "10.1.2.3:443", "1.2.3.4, 10.0.0.1", "1.2.3.4"},
		{"forged leftmost entry is ignored", "10.1.2.3:443", "6.6.6.6, 1.2.3.4, 10.0.0.1", "1.2.3.4"},
		{"all hops trusted uses leftmost", "10.1.2.3:443", "10.0.0.5, 10.0.0.1", "10.0.0.5"},
		{"trusted peer without header", "10.1.2.3:443", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set(echo.HeaderXForwardedFor, tt.xff)
			}
			if got := extract(req); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := echo.New()
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/games", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "https://app.example" {
		t.Errorf("missing allow-origin header")
	}
}

func TestCORS_UnlistedOrigin(t *testing.T) {
	e := echo.New()
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/games", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Errorf("unexpected allow-origin header")
	}
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	e := echo.New()
	h := Recovery()(func(c echo.Context) error { panic("boom") })

	err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal AppError, got %v", err)
	}
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	e := echo.New()
	h := Recovery()(func(c echo.Context) error { panic(http.ErrAbortHandler) })

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected http.ErrAbortHandler to propagate, got %v", r)
		}
	}()
	_ = h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	t.Error("expected panic")
}

func TestIPExtractor_PrefersRealIP(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set(echo.HeaderXRealIP, " 203.0.113.9 ")
	req.Header.Set(echo.HeaderXForwardedFor, "1.2.3.4")
	if got := extract(req); got != "203.0.113.9" {
		t.Errorf("got %q, want 203.0.113.9", got)
	}
}

func TestRequestID_ReusesIncoming(t *testing.T) {
	e := echo.New()
	var seen string
	h := RequestID()(func(c echo.Context) error {
		seen = GetRequestID(c)
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc")
	rec := httptest.NewRecorder()
	_ = h(e.NewContext(req, rec))
	if seen != "abc" || rec.Header().Get(echo.HeaderXRequestID) != "abc" {
		t.Errorf("expected request id abc, got %q", seen)
	}

	_ = h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	if len(seen) != 36 {
		t.Errorf("expected generated uuid, got %q", seen)
	}
}
