package middleware

import (
	"net/http"
	"strings"

	"github.com/buildplan/buildplan/internal/web/auth"
	"github.com/buildplan/buildplan/internal/web/response"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// AuthConfig holds configuration for authentication middleware
type AuthConfig struct {
	// Tokens validates bearer tokens
	Tokens TokenValidator
	// SkipPaths is a list of paths to skip authentication
	SkipPaths []string
}

// Auth creates an authentication middleware that requires a valid bearer token
func Auth(tokens TokenValidator) Middleware {
	return AuthWithConfig(AuthConfig{Tokens: tokens})
}

// AuthWithConfig creates an authentication middleware with custom configuration
func AuthWithConfig(config AuthConfig) Middleware {
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				response.RenderUnauthorized(w, "Authorization required")
				return
			}

			claims, err := config.Tokens.ValidateToken(token)
			if err != nil {
				response.RenderUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), auth.Principal{
				UserID: claims.UserID,
				Email:  claims.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
