package middleware

import (
	"net/http"

	"github.com/google/uuid"

	webcontext "github.com/buildplan/buildplan/internal/web/context"
)

// RequestIDHeader is the header the request ID is read from and echoed in
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client supplied request IDs
const maxRequestIDLength = 128

// RequestIDConfig holds configuration for the request ID middleware
type RequestIDConfig struct {
	// HeaderName is the name of the header to read/write the request ID
	HeaderName string
	// Generator creates IDs for requests that arrive without one
	Generator func() string
}

// DefaultRequestIDConfig returns the default request ID configuration
func DefaultRequestIDConfig() RequestIDConfig {
	return RequestIDConfig{
		HeaderName: RequestIDHeader,
		Generator:  func() string { return uuid.NewString() },
	}
}

// RequestID creates a middleware that tags each request with a unique ID
func RequestID() Middleware {
	return RequestIDWithConfig(DefaultRequestIDConfig())
}

// RequestIDWithConfig creates a request ID middleware with custom configuration
func RequestIDWithConfig(config RequestIDConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(config.HeaderName)
			if requestID == "" || len(requestID) > maxRequestIDLength {
				requestID = config.Generator()
			}

			w.Header().Set(config.HeaderName, requestID)
			r = r.WithContext(webcontext.SetRequestID(r.Context(), requestID))

			next.ServeHTTP(w, r)
		})
	}
}
