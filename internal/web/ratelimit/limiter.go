package ratelimit

import (
	"context"
	"time"
)

// AttemptLimiter decides whether an authentication attempt from a client key
// may proceed. Implementations record the attempt as part of the decision.
type AttemptLimiter interface {
	// Attempt records an attempt from clientKey against path and returns the
	// decision. Paths outside the protected set are allowed and not recorded.
	Attempt(ctx context.Context, clientKey, path string) (*Decision, error)
}

// Decision describes the outcome of a single attempt
type Decision struct {
	// Allowed indicates whether the request should proceed
	Allowed bool
	// Tracked is false when the path is not rate limited
	Tracked bool
	// Limit is the number of attempts that triggers a lockout
	Limit int
	// Remaining is how many further attempts are allowed before lockout
	Remaining int
	// RetryAfter is how long the client must wait when blocked
	RetryAfter time.Duration
	// LockedUntil is the lockout expiry; zero when not locked
	LockedUntil time.Time
	// LockoutStarted is true when this attempt triggered the lockout
	LockoutStarted bool
}

// Default limits for authentication endpoints
const (
	DefaultMaxAttempts     = 5
	DefaultWindow          = 15 * time.Minute
	DefaultLockoutDuration = 30 * time.Minute
	DefaultBucketSize      = time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// DefaultProtectedPaths are the endpoints subject to attempt limiting
var DefaultProtectedPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
}

// lockoutReason is reported to the audit log when a key is locked out
const lockoutReason = "too many authentication attempts"

// pathSet is an immutable set of protected paths
type pathSet map[string]struct{}

func newPathSet(paths []string) pathSet {
	set := make(pathSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

func (s pathSet) contains(path string) bool {
	_, ok := s[path]
	return ok
}

// bucketStart returns the bucket an attempt at now falls into.
// A zero size keeps exact timestamps.
func bucketStart(now time.Time, size time.Duration) int64 {
	if size <= 0 {
		return now.UnixNano()
	}
	return now.Truncate(size).UnixNano()
}

// bucketExpired reports whether a bucket lies entirely outside the window
// ending at now. A bucket is only dropped once its last possible attempt is
// out of the window, so coarse buckets never under-count.
func bucketExpired(start int64, size, window time.Duration, now time.Time) bool {
	end := start + int64(size)
	return end <= now.Add(-window).UnixNano()
}

// untracked is the decision returned for paths that are not rate limited
func untracked(limit int) *Decision {
	return &Decision{
		Allowed:   true,
		Tracked:   false,
		Limit:     limit,
		Remaining: limit,
	}
}
