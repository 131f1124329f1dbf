package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/platform/httputil"
	"freewalk/pkg/requestcontext"
)

// Limiter applies a per-user quota to the routes it wraps.
type Limiter struct {
	store   Store
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func New(store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PerUser admits requests of an authenticated user while the quota lasts.
// Requests without a user and failed checks pass through; the limit is a
// guard against floods, not an access control.
func (l *Limiter) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, ok := requestcontext.UserID(ctx)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		res, err := l.store.Allow(ctx, "submit:"+userID.String(), l.limit, l.window)
		if err != nil {
			l.logger.WarnContext(ctx, "rate limit check failed, admitting request",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			if l.metrics != nil {
				l.metrics.StoreErrors.Inc()
			}
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if res.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		if l.metrics != nil {
			l.metrics.Rejected.Inc()
		}
		wait := max(int(math.Ceil(res.RetryAfter(l.now()).Seconds())), 1)
		w.Header().Set("Retry-After", strconv.Itoa(wait))
		httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "report limit reached, try again later"))
	})
}
