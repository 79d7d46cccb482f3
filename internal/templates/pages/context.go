// Package pages holds the few HTML components the server renders itself.
// The player and operator UIs are separate clients; the server only needs
// an error page for non-API requests.
package pages

import "context"

type ctxKey string

const keyRequestID ctxKey = "pages_request_id"

// WithRequestID stores the request ID for display on error pages.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID returns the ID stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(keyRequestID).(string)
	return id
}
