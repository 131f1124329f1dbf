package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbox publishing.
type Metrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
	Pending   prometheus.Gauge
}

// NewMetrics registers the outbox metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freewalk_outbox_published_total",
			Help: "Outbox events published to Kafka",
		}),
		Failures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "freewalk_outbox_publish_failures_total",
			Help: "Outbox publish batches that failed and will be retried",
		}),
		Pending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "freewalk_outbox_batch_size",
			Help: "Size of the most recent pending batch",
		}),
	}
}

// Worker drains the outbox into a Publisher.
type Worker struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

type WorkerOption func(*Worker)

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewWorker(store Store, publisher Publisher, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		publisher: publisher,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled. A failed batch is left pending and
// retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "outbox worker started", "interval", w.interval, "batch_size", w.batchSize)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "outbox worker stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := w.ProcessBatch(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.logger.WarnContext(ctx, "outbox publish failed", "error", err)
					}
					break
				}
				if n < w.batchSize {
					break
				}
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many events it shipped.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	events, err := w.store.FetchPending(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}
	if w.metrics != nil {
		w.metrics.Pending.Set(float64(len(events)))
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := w.publisher.Publish(ctx, events); err != nil {
		if w.metrics != nil {
			w.metrics.Failures.Inc()
		}
		return 0, err
	}

	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := w.store.MarkPublished(ctx, ids, time.Now()); err != nil {
		// published but not marked: the batch is sent again next tick
		return 0, fmt.Errorf("mark published: %w", err)
	}
	if w.metrics != nil {
		w.metrics.Published.Add(float64(len(events)))
	}
	return len(events), nil
}
