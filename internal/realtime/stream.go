package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/config"
	"github.com/keyxmakerx/larp/internal/plugins/access"
)

// StreamHandler relays a game channel to websocket clients.
type StreamHandler struct {
	bus          *RedisBus
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
}

// NewStreamHandler creates a handler. Browsers may connect from the
// server's own host or from one of allowedOrigins.
func NewStreamHandler(bus *RedisBus, cfg config.RealtimeConfig, allowedOrigins []string) *StreamHandler {
	h := &StreamHandler{
		bus:          bus,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, allowedOrigins)
		},
	}
	return h
}

// checkOrigin accepts non-browser clients (no Origin), same-host pages,
// and listed origins.
func checkOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	return slices.Contains(allowed, origin)
}

// Serve handles GET /api/v1/games/:gameID/stream. Player keys only
// receive their own snapshots; operators receive every holder's.
func (h *StreamHandler) Serve(c echo.Context) error {
	return h.Stream(c, c.Param("gameID"), access.ActingRoleStateID(c))
}

// Stream upgrades the request and forwards the game's envelopes until the
// client disconnects. With holderID set, snapshots of other holders are
// dropped; chat is always forwarded.
func (h *StreamHandler) Stream(c echo.Context, gameID, holderID string) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	envs, err := h.bus.Envelopes(ctx, gameID)
	if err != nil {
		return apperror.NewInternal(err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		slog.Debug("websocket upgrade failed", slog.String("game_id", gameID), slog.Any("error", err))
		return nil
	}
	defer conn.Close()

	slog.Info("stream connected",
		slog.String("game_id", gameID),
		slog.String("holder_id", holderID),
		slog.String("remote_ip", c.RealIP()),
	)

	// Clients only send pongs and close frames; the read loop notices
	// disconnects and cancels the writer.
	readDeadline := h.pingInterval * 2
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.close(conn, websocket.CloseGoingAway)
			return nil
		case env, ok := <-envs:
			if !ok {
				h.close(conn, websocket.CloseTryAgainLater)
				return nil
			}
			if holderID != "" && env.Type == TypeSnapshot && env.HolderID != holderID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(env); err != nil {
				slog.Debug("stream write failed", slog.String("game_id", gameID), slog.Any("error", err))
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return nil
			}
		}
	}
}

func (h *StreamHandler) close(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
}

// RegisterRoutes adds the stream route to the /api/v1/games/:gameID group.
func RegisterRoutes(game *echo.Group, h *StreamHandler) {
	game.GET("/stream", h.Serve)
}
