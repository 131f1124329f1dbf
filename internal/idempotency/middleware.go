package idempotency

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/platform/httputil"
	"freewalk/pkg/requestcontext"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "Idempotent-Replayed"

	maxKeyLen         = 128
	DefaultTTL        = 24 * time.Hour
	DefaultPendingTTL = 2 * time.Minute
)

// Middleware caches the first final response per (user, Idempotency-Key).
// Requests without the header pass through. It must run after authentication.
type Middleware struct {
	store      Store
	ttl        time.Duration
	pendingTTL time.Duration
	logger     *slog.Logger
}

type Option func(*Middleware)

func WithTTL(ttl time.Duration) Option {
	return func(m *Middleware) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func New(store Store, opts ...Option) *Middleware {
	m := &Middleware{
		store:      store,
		ttl:        DefaultTTL,
		pendingTTL: DefaultPendingTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type capture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// cacheable excludes responses a client is expected to retry.
func cacheable(status int) bool {
	return status < http.StatusInternalServerError &&
		status != http.StatusConflict &&
		status != http.StatusTooManyRequests &&
		status != http.StatusUnauthorized
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		if len(key) > maxKeyLen {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "idempotency key too long"))
			return
		}
		userID, ok := requestcontext.UserID(ctx)
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
			return
		}
		scoped := userID.String() + ":" + r.Method + ":" + r.URL.Path + ":" + key

		cached, err := m.store.Begin(ctx, scoped, m.pendingTTL)
		switch {
		case errors.Is(err, ErrInFlight):
			httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "a request with this idempotency key is still in progress"))
			return
		case err != nil:
			m.logger.WarnContext(ctx, "idempotency store unavailable",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "idempotency store unavailable, retry later"))
			return
		case cached != nil:
			w.Header().Set("Content-Type", cached.ContentType)
			w.Header().Set(HeaderReplay, "true")
			w.WriteHeader(cached.Status)
			_, _ = w.Write(cached.Body)
			return
		}

		rec := &capture{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				_ = m.store.Abort(ctx, scoped)
				panic(p)
			}
		}()
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		if !cacheable(status) {
			if err := m.store.Abort(ctx, scoped); err != nil {
				m.logger.WarnContext(ctx, "failed to release idempotency key", "error", err)
			}
			return
		}
		resp := Response{Status: status, ContentType: rec.Header().Get("Content-Type"), Body: rec.body.Bytes()}
		if err := m.store.Complete(ctx, scoped, resp, m.ttl); err != nil {
			m.logger.WarnContext(ctx, "failed to store idempotent response",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	})
}
