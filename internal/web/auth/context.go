package auth

import (
	"context"

	webcontext "github.com/buildplan/buildplan/internal/web/context"
)

// Principal identifies the authenticated caller of a request
type Principal struct {
	UserID string
	Email  string
}

// WithPrincipal stores the authenticated caller in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = webcontext.SetCurrentUser(ctx, p.UserID)
	return webcontext.SetUserEmail(ctx, p.Email)
}

// PrincipalFrom returns the authenticated caller, if any
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	id := webcontext.GetCurrentUser(ctx)
	if id == "" {
		return Principal{}, false
	}
	return Principal{UserID: id, Email: webcontext.GetUserEmail(ctx)}, true
}

// GetCurrentUser retrieves the current user ID from the context
// Returns an empty string if no user is authenticated
func GetCurrentUser(ctx context.Context) string {
	return webcontext.GetCurrentUser(ctx)
}
