package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"freewalk/internal/user/models"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/platform/httputil"
	"freewalk/pkg/requestcontext"
)

// Service is the user lookup the handler depends on.
type Service interface {
	Get(ctx context.Context, userID id.UserID) (*models.User, error)
}

// Handler serves the authenticated user's profile.
type Handler struct {
	users  Service
	logger *slog.Logger
}

func New(users Service, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

// Register mounts the user routes. r must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/me", h.handleMe)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requestcontext.UserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user id missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	u, err := h.users.Get(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u.Profile())
}
