package testutil

import (
	"net/http"

	id "freewalk/pkg/domain"
	"freewalk/pkg/requestcontext"
)

// WithUserID puts userID in the request context the way RequireAuth does.
// An unparseable id leaves the request anonymous.
func WithUserID(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
}
