package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freewalk/internal/user/models"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/testutil"
)

type stubService struct {
	user *models.User
	err  error
}

func (s stubService) Get(_ context.Context, _ id.UserID) (*models.User, error) {
	return s.user, s.err
}

func newRouter(svc Service) chi.Router {
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestHandleMe(t *testing.T) {
	userID := id.UserID(uuid.New())

	t.Run("returns the profile", func(t *testing.T) {
		r := newRouter(stubService{user: &models.User{
			ID: userID, Email: "jane@example.com", TotalPoints: 60, CreatedAt: time.Now(),
		}})
		req := testutil.WithUserID(httptest.NewRequest(http.MethodGet, "/v1/me", nil), userID.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body models.Profile
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, models.Profile{UserID: userID.String(), Email: "jane@example.com", TotalPoints: 60}, body)
	})

	t.Run("maps not found", func(t *testing.T) {
		r := newRouter(stubService{err: dErrors.New(dErrors.CodeNotFound, "user not found")})
		req := testutil.WithUserID(httptest.NewRequest(http.MethodGet, "/v1/me", nil), userID.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing auth context is an internal error", func(t *testing.T) {
		r := newRouter(stubService{})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/me", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
