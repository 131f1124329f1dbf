// Package outbox implements the transactional outbox: events are written in
// the same transaction as the state change they describe and published to
// Kafka afterwards by a Worker. Delivery is at-least-once.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one pending or published outbox entry.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Appender writes events inside the caller's unit of work.
type Appender interface {
	Append(ctx context.Context, e Event) error
}

// Store is the worker's view of the outbox.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher ships events to the broker.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}
