// Package idempotency replays the first completed response for a repeated
// Idempotency-Key so a retried submission is never resolved twice.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrInFlight is returned when another request with the same key is still
// being processed.
var ErrInFlight = errors.New("request with this idempotency key is in flight")

// Response is a cached HTTP response.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store tracks keys through pending and completed states.
type Store interface {
	// Begin claims key. It returns the stored response when key already
	// completed, ErrInFlight when it is pending, and (nil, nil) once claimed.
	Begin(ctx context.Context, key string, pendingTTL time.Duration) (*Response, error)
	// Complete stores the response for key for ttl.
	Complete(ctx context.Context, key string, resp Response, ttl time.Duration) error
	// Abort releases a pending claim so the key can be retried.
	Abort(ctx context.Context, key string) error
}
