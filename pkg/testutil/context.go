package testutil

import (
	"net/http"

	"onboarding-gateway/internal/platform/middleware"
)

// WithIdentity binds an authenticated activation to the request context,
// simulating what the auth middleware does for a valid bearer token.
func WithIdentity(req *http.Request, userID, activationID string) *http.Request {
	ctx := middleware.WithIdentity(req.Context(), middleware.Claims{
		UserID:       userID,
		ActivationID: activationID,
	})
	return req.WithContext(ctx)
}
