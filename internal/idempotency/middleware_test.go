package idempotency

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freewalk/pkg/testutil"
)

func newTestMiddleware() *Middleware {
	return New(NewMemoryStore(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	calls := 0
	h := newTestMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"outcome":"new"}`))
	}))
	userID := uuid.NewString()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/reports", nil)
		req.Header.Set(HeaderKey, "abc")
		req = testutil.WithUserID(req, userID)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	first := send()
	second := send()

	assert.Equal(t, 1, calls)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplay))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestMiddlewareScopesKeysPerUser(t *testing.T) {
	calls := 0
	h := newTestMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	for _, user := range []string{uuid.NewString(), uuid.NewString()} {
		req := httptest.NewRequest(http.MethodPost, "/v1/reports", nil)
		req.Header.Set(HeaderKey, "same-key")
		h.ServeHTTP(httptest.NewRecorder(), testutil.WithUserID(req, user))
	}
	assert.Equal(t, 2, calls)
}

func TestMiddlewareDoesNotCacheRetryableFailures(t *testing.T) {
	calls := 0
	h := newTestMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	userID := uuid.NewString()
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/v1/reports", nil)
		req.Header.Set(HeaderKey, "retry-me")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, testutil.WithUserID(req, userID))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestMiddlewareRejectsInFlightDuplicate(t *testing.T) {
	m := newTestMiddleware()
	userID := uuid.NewString()
	var inner *httptest.ResponseRecorder
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := httptest.NewRequest(http.MethodPost, "/v1/reports", nil)
		req.Header.Set(HeaderKey, "dup")
		inner = httptest.NewRecorder()
		m.Handler(http.NotFoundHandler()).ServeHTTP(inner, testutil.WithUserID(req, userID))
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", nil)
	req.Header.Set(HeaderKey, "dup")
	h.ServeHTTP(httptest.NewRecorder(), testutil.WithUserID(req, userID))

	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	calls := 0
	h := newTestMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/reports", nil))
	}
	assert.Equal(t, 2, calls)
}
