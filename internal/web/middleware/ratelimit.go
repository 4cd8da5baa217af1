package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/buildplan/buildplan/internal/metrics"
	webcontext "github.com/buildplan/buildplan/internal/web/context"
	"github.com/buildplan/buildplan/internal/web/ratelimit"
	"github.com/buildplan/buildplan/internal/web/response"
)

// RateLimitConfig holds configuration for the authentication attempt filter
type RateLimitConfig struct {
	// Limiter decides whether an attempt may proceed
	Limiter ratelimit.AttemptLimiter
	// KeyFunc extracts the client key from the request
	KeyFunc RateLimitKeyFunc
	// Logger records limiter failures
	Logger *zap.Logger
	// Metrics counts decisions; may be nil
	Metrics *metrics.Metrics
	// FailOpen determines behavior when the limiter returns an error.
	// If true, allows the request; if false, responds 503.
	FailOpen bool
}

// RateLimitKeyFunc extracts a rate limit key from a request
type RateLimitKeyFunc func(*http.Request) string

// DefaultRateLimitConfig returns a fail-open configuration keyed by client IP
func DefaultRateLimitConfig(limiter ratelimit.AttemptLimiter) RateLimitConfig {
	return RateLimitConfig{
		Limiter:  limiter,
		KeyFunc:  ClientKey,
		Logger:   zap.NewNop(),
		FailOpen: true,
	}
}

// RateLimit creates the attempt filter with the given limiter
func RateLimit(limiter ratelimit.AttemptLimiter) Middleware {
	return RateLimitWithConfig(DefaultRateLimitConfig(limiter))
}

// RateLimitWithConfig creates the attempt filter with custom configuration.
// Blocked requests get a 429 with Retry-After; the handler is not called.
func RateLimitWithConfig(config RateLimitConfig) Middleware {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientKey
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := config.KeyFunc(r)
			r = r.WithContext(webcontext.SetClientKey(r.Context(), key))

			decision, err := config.Limiter.Attempt(r.Context(), key, r.URL.Path)
			if err != nil {
				config.Metrics.RecordDecision(metrics.OutcomeError)
				config.Logger.Error("rate limiter failed",
					zap.String("request_id", webcontext.GetRequestID(r.Context())),
					zap.String("client_key", key),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				if config.FailOpen {
					next.ServeHTTP(w, r)
				} else {
					response.RenderServiceUnavailable(w, "")
				}
				return
			}

			if !decision.Tracked {
				config.Metrics.RecordDecision(metrics.OutcomeUntracked)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				if decision.LockoutStarted {
					config.Metrics.RecordDecision(metrics.OutcomeLockout)
				} else {
					config.Metrics.RecordDecision(metrics.OutcomeBlocked)
				}
				response.RenderTooManyRequests(w,
					"Too many authentication attempts. Please try again later.",
					decision.RetryAfter)
				return
			}

			config.Metrics.RecordDecision(metrics.OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the origin of a request: the first address in
// X-Forwarded-For when present, otherwise the host part of RemoteAddr
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
