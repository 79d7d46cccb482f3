package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/larp/internal/config"
	"github.com/keyxmakerx/larp/internal/engine"
)

func newBus(t *testing.T) (*miniredis.Miniredis, *RedisBus) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewRedisBus(rdb, "test")
}

func snapshot(holder string, version int64) engine.Snapshot {
	return engine.Snapshot{
		HolderID: holder,
		Version:  version,
		AppliedTags: []engine.AppliedTag{{
			Tag:       engine.Tag{ID: "t-key", Value: "has-key"},
			HolderID:  holder,
			AppliedAt: time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC),
		}},
	}
}

func TestChannel(t *testing.T) {
	_, bus := newBus(t)
	assert.Equal(t, "test:game:g1", bus.Channel("g1"))
}

func TestSubscribe_ReceivesOnlyOwnSnapshots(t *testing.T) {
	_, bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps, err := bus.Subscribe(ctx, "g1", "rs1")
	require.NoError(t, err)

	require.NoError(t, bus.PublishSnapshot(ctx, "g1", snapshot("rs2", 7)))
	require.NoError(t, bus.PublishChat(ctx, "g1", map[string]string{"body": "hello"}))
	require.NoError(t, bus.PublishSnapshot(ctx, "g2", snapshot("rs1", 9)))
	require.NoError(t, bus.PublishSnapshot(ctx, "g1", snapshot("rs1", 3)))

	select {
	case got := <-snaps:
		assert.Equal(t, snapshot("rs1", 3), got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestSubscribe_ClosesWhenContextEnds(t *testing.T) {
	_, bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	snaps, err := bus.Subscribe(ctx, "g1", "rs1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-snaps:
		assert.False(t, ok, "expected closed channel")
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close")
	}
}

func TestEnvelopes_SkipsMalformedPayloads(t *testing.T) {
	mr, bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	envs, err := bus.Envelopes(ctx, "g1")
	require.NoError(t, err)

	mr.Publish(bus.Channel("g1"), "{not json")
	require.NoError(t, bus.PublishChat(ctx, "g1", map[string]string{"body": "hi"}))

	select {
	case env := <-envs:
		assert.Equal(t, TypeChat, env.Type)
		assert.JSONEq(t, `{"body":"hi"}`, string(env.Chat))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat")
	}
}

func TestSubscribe_FailsWithoutRedis(t *testing.T) {
	mr, bus := newBus(t)
	mr.Close()

	_, err := bus.Subscribe(context.Background(), "g1", "rs1")
	assert.Error(t, err)
}

func TestCheckOrigin(t *testing.T) {
	allowed := []string{"https://play.example"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://larp.local", true},
		{"https://play.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://larp.local/api/v1/games/g1/stream", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, checkOrigin(req, allowed), tt.origin)
	}
}

func TestStream_ForwardsFilteredEnvelopes(t *testing.T) {
	_, bus := newBus(t)
	h := NewStreamHandler(bus, config.RealtimeConfig{
		WriteTimeout: time.Second,
		PingInterval: time.Minute,
	}, nil)

	e := echo.New()
	e.GET("/stream", func(c echo.Context) error { return h.Stream(c, "g1", "rs1") })
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	require.NoError(t, bus.PublishSnapshot(ctx, "g1", snapshot("rs2", 2)))
	require.NoError(t, bus.PublishChat(ctx, "g1", map[string]string{"body": "torches lit"}))
	require.NoError(t, bus.PublishSnapshot(ctx, "g1", snapshot("rs1", 5)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first, second Envelope
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, TypeChat, first.Type)
	var chat map[string]string
	require.NoError(t, json.Unmarshal(first.Chat, &chat))
	assert.Equal(t, "torches lit", chat["body"])

	assert.Equal(t, TypeSnapshot, second.Type)
	assert.Equal(t, "rs1", second.HolderID)
	require.NotNil(t, second.Snapshot)
	assert.Equal(t, int64(5), second.Snapshot.Version)
}
