package context

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey int

const (
	requestIDKey contextKey = iota
	currentUserKey
	userEmailKey
	clientKeyKey
)

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetCurrentUser extracts the current user ID from the context
func GetCurrentUser(ctx context.Context) string {
	if user, ok := ctx.Value(currentUserKey).(string); ok {
		return user
	}
	return ""
}

// SetCurrentUser adds the current user ID to the context
func SetCurrentUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, currentUserKey, user)
}

// GetUserEmail extracts the authenticated user's email from the context
func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(userEmailKey).(string); ok {
		return email
	}
	return ""
}

// SetUserEmail adds the authenticated user's email to the context
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}

// GetClientKey extracts the client key (origin IP) resolved for this request
func GetClientKey(ctx context.Context) string {
	if key, ok := ctx.Value(clientKeyKey).(string); ok {
		return key
	}
	return ""
}

// SetClientKey stores the resolved client key in the context
func SetClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyKey, key)
}
