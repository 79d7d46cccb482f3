package tagsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keyxmakerx/larp/internal/engine"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the game API with an access key. It satisfies Feed,
// Submitter and Saver.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// uses a client with a 15 second timeout.
func NewClient(baseURL, key string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		http:    httpClient,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func gamePath(gameID string, parts ...string) string {
	p := "/api/v1/games/" + url.PathEscape(gameID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return &APIError{Status: resp.StatusCode, Message: payload.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// RoleState fetches a holder.
func (c *Client) RoleState(ctx context.Context, gameID, roleStateID string) (*engine.RoleState, error) {
	var rs engine.RoleState
	if err := c.do(ctx, http.MethodGet, gamePath(gameID, "roles", roleStateID), nil, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Actions fetches the actions the server offers the holder, for an item
// when itemID is set.
func (c *Client) Actions(ctx context.Context, gameID, roleStateID, itemID string) ([]engine.Action, error) {
	path := gamePath(gameID, "roles", roleStateID, "actions")
	if itemID != "" {
		path += "?item=" + url.QueryEscape(itemID)
	}
	var resp struct {
		Data []engine.Action `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Submit performs an action on the server.
func (c *Client) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	var receipt Receipt
	if err := c.do(ctx, http.MethodPost, gamePath(sub.GameID, "actions"), sub, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

type tagApplication struct {
	TagID     engine.TagID `json:"tag_id"`
	AppliedAt *time.Time   `json:"applied_at,omitempty"`
}

// SaveTags replaces the holder's tags. Requires an operator key.
func (c *Client) SaveTags(ctx context.Context, gameID, holderID string, tags []engine.AppliedTag) (engine.Snapshot, error) {
	body := struct {
		Tags []tagApplication `json:"tags"`
	}{Tags: make([]tagApplication, len(tags))}
	for i, at := range tags {
		appliedAt := at.AppliedAt
		body.Tags[i] = tagApplication{TagID: at.Tag.ID, AppliedAt: &appliedAt}
	}

	var rs engine.RoleState
	if err := c.do(ctx, http.MethodPut, gamePath(gameID, "roles", holderID, "tags"), body, &rs); err != nil {
		return engine.Snapshot{}, err
	}
	return rs.Snapshot(), nil
}

// streamEnvelope is the part of a stream message the tracker reads.
type streamEnvelope struct {
	Type     string           `json:"type"`
	HolderID string           `json:"holder_id"`
	Snapshot *engine.Snapshot `json:"snapshot"`
}

const typeSnapshot = "tags.snapshot"

// Subscribe opens the game's websocket stream and returns the holder's
// snapshots. The channel closes when ctx ends or the connection drops.
func (c *Client) Subscribe(ctx context.Context, gameID, holderID string) (<-chan engine.Snapshot, error) {
	u, err := url.Parse(c.baseURL + gamePath(gameID, "stream"))
	if err != nil {
		return nil, fmt.Errorf("parsing stream url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.key)
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "stream rejected"}
		}
		return nil, fmt.Errorf("dialing stream: %w", err)
	}

	// Closing the connection unblocks the reader when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	out := make(chan engine.Snapshot, 4)
	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()

		for {
			var env streamEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				if ctx.Err() == nil {
					slog.Debug("stream closed", slog.String("game_id", gameID), slog.Any("error", err))
				}
				return
			}
			if env.Type != typeSnapshot || env.HolderID != holderID || env.Snapshot == nil {
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
