package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"freewalk/internal/identity"
	usermodels "freewalk/internal/user/models"
	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/platform/httputil"
	"freewalk/pkg/requestcontext"
)

// TokenVerifier validates bearer tokens from the identity provider.
type TokenVerifier interface {
	Verify(tokenString string) (*identity.Identity, error)
}

// UserSyncer maps a verified email onto a local user, creating it if needed.
type UserSyncer interface {
	SyncByEmail(ctx context.Context, email string) (*usermodels.User, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// local user id and verified email in the request context.
func RequireAuth(verifier TokenVerifier, users UserSyncer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			caller, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "could not validate credentials, please log in again"))
				return
			}

			user, err := users.SyncByEmail(ctx, caller.Email)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithUserID(ctx, user.ID)
			ctx = requestcontext.WithUserEmail(ctx, user.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
