// Package realtime is the push channel. Writers publish JSON envelopes on
// one Redis channel per game; every server instance relays them to its
// websocket clients, and Go clients subscribe to a holder's snapshots
// directly.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/larp/internal/engine"
)

// Envelope types.
const (
	TypeSnapshot = "tags.snapshot"
	TypeChat     = "chat.message"
)

// Envelope is one message on a game channel. Snapshot is set for
// TypeSnapshot, Chat for TypeChat.
type Envelope struct {
	Type     string           `json:"type"`
	GameID   string           `json:"game_id"`
	HolderID string           `json:"holder_id,omitempty"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Chat     json.RawMessage  `json:"chat,omitempty"`
}

// RedisBus publishes and subscribes to game channels.
type RedisBus struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBus creates a bus whose channels are named <prefix>:game:<id>.
func NewRedisBus(rdb *redis.Client, prefix string) *RedisBus {
	return &RedisBus{rdb: rdb, prefix: prefix}
}

// Channel returns the Redis channel of a game.
func (b *RedisBus) Channel(gameID string) string {
	return b.prefix + ":game:" + gameID
}

func (b *RedisBus) publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.Channel(env.GameID), payload).Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", env.Type, err)
	}
	return nil
}

// PublishSnapshot pushes a holder's full applied-tag list.
func (b *RedisBus) PublishSnapshot(ctx context.Context, gameID string, snapshot engine.Snapshot) error {
	s := snapshot.Clone()
	return b.publish(ctx, Envelope{
		Type:     TypeSnapshot,
		GameID:   gameID,
		HolderID: s.HolderID,
		Snapshot: &s,
	})
}

// PublishChat pushes a chat message, encoded as JSON.
func (b *RedisBus) PublishChat(ctx context.Context, gameID string, message any) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding chat message: %w", err)
	}
	return b.publish(ctx, Envelope{Type: TypeChat, GameID: gameID, Chat: raw})
}

// Envelopes subscribes to a game channel. The subscription is confirmed
// before Envelopes returns, so nothing published afterwards is missed.
// The channel closes when ctx ends or the subscription is torn down.
func (b *RedisBus) Envelopes(ctx context.Context, gameID string) (<-chan Envelope, error) {
	pubsub := b.rdb.Subscribe(ctx, b.Channel(gameID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to game %s: %w", gameID, err)
	}

	out := make(chan Envelope, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.Warn("dropping malformed envelope",
						slog.String("channel", msg.Channel),
						slog.Any("error", err),
					)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Subscribe streams the snapshots of one holder. It satisfies the feed
// used by client-side trackers.
func (b *RedisBus) Subscribe(ctx context.Context, gameID, holderID string) (<-chan engine.Snapshot, error) {
	envs, err := b.Envelopes(ctx, gameID)
	if err != nil {
		return nil, err
	}

	out := make(chan engine.Snapshot, 4)
	go func() {
		defer close(out)
		for env := range envs {
			if env.Type != TypeSnapshot || env.HolderID != holderID || env.Snapshot == nil {
				continue
			}
			select {
			case out <- *env.Snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
