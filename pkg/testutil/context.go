package testutil

import (
	"net/http"

	id "carebook/pkg/domain"
	"carebook/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// Invalid IDs are not added.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsed, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
	}
	return req
}

// WithAuth adds the user ID and granted roles to the request context.
func WithAuth(req *http.Request, userID string, roles ...string) *http.Request {
	req = WithUserID(req, userID)
	if len(roles) > 0 {
		req = req.WithContext(requestcontext.WithRoles(req.Context(), roles))
	}
	return req
}
