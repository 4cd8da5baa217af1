package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/buildplan/buildplan/internal/audit"
)

// RedisLockout implements AttemptLimiter on Redis so several API instances
// share attempt history and lockouts
type RedisLockout struct {
	client  redis.UniversalClient
	cfg     LockoutConfig
	paths   pathSet
	prefix  string
	audit   audit.Logger
	now     func() time.Time
	attempt *redis.Script
}

// RedisLockoutConfig holds configuration for the Redis lockout limiter
type RedisLockoutConfig struct {
	// Client is the Redis client to use
	Client redis.UniversalClient
	// Prefix is the key prefix for Redis keys
	Prefix string
	// Lockout carries limits, protected paths, audit logger and clock.
	// Shards and CleanupInterval are ignored; Redis expires keys itself.
	Lockout LockoutConfig
}

// DefaultRedisLockoutConfig returns a default Redis lockout configuration
func DefaultRedisLockoutConfig(client redis.UniversalClient) RedisLockoutConfig {
	return RedisLockoutConfig{
		Client:  client,
		Prefix:  "buildplan:auth:",
		Lockout: DefaultLockoutConfig(),
	}
}

// attemptScript applies one attempt atomically.
// KEYS[1] attempts hash (bucket start -> count), KEYS[2] lock key.
// ARGV: now, window, lockout, max attempts, bucket size (all ms), bucket slot.
// History is dropped when a lockout starts, so nothing survives the lock key's
// own expiry. Returns {allowed, remaining, locked_until_ms, event}.
var attemptScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local max = tonumber(ARGV[4])
local bucket = tonumber(ARGV[5])
local slot = ARGV[6]

local locked_until = tonumber(redis.call('GET', KEYS[2]) or '0')
if locked_until > 0 then
	if now < locked_until then
		return {0, 0, locked_until, 1}
	end
	redis.call('DEL', KEYS[1], KEYS[2])
end

local fields = redis.call('HGETALL', KEYS[1])
local tally = 1
for i = 1, #fields, 2 do
	if tonumber(fields[i]) + bucket <= now - window then
		redis.call('HDEL', KEYS[1], fields[i])
	else
		tally = tally + tonumber(fields[i + 1])
	end
end

redis.call('HINCRBY', KEYS[1], slot, 1)
redis.call('PEXPIRE', KEYS[1], window + bucket)

if tally >= max then
	local until_ms = now + lockout
	redis.call('DEL', KEYS[1])
	redis.call('SET', KEYS[2], until_ms, 'PX', lockout)
	return {0, 0, until_ms, 2}
end

return {1, max - 1 - tally, 0, 0}
`

// NewRedisLockout creates a new Redis lockout limiter
func NewRedisLockout(config RedisLockoutConfig) (*RedisLockout, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	cfg := config.Lockout
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("max attempts must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	if cfg.LockoutDuration <= 0 {
		return nil, errors.New("lockout duration must be greater than 0")
	}
	if cfg.BucketSize < 0 {
		return nil, errors.New("bucket size must not be negative")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &RedisLockout{
		client:  config.Client,
		cfg:     cfg,
		paths:   newPathSet(cfg.ProtectedPaths),
		prefix:  config.Prefix,
		audit:   audit.Safe(cfg.Audit),
		now:     cfg.Now,
		attempt: redis.NewScript(attemptScript),
	}, nil
}

// Attempt records an attempt from clientKey and decides whether it may proceed
func (r *RedisLockout) Attempt(ctx context.Context, clientKey, path string) (*Decision, error) {
	if !r.paths.contains(path) {
		return untracked(r.cfg.MaxAttempts), nil
	}

	now := r.now()
	nowMs := now.UnixMilli()
	slot := nowMs
	if bucket := r.cfg.BucketSize.Milliseconds(); bucket > 0 {
		slot = nowMs - nowMs%bucket
	}

	attemptsKey, lockKey := r.keys(clientKey)
	result, err := r.attempt.Run(ctx, r.client, []string{attemptsKey, lockKey},
		nowMs,
		r.cfg.Window.Milliseconds(),
		r.cfg.LockoutDuration.Milliseconds(),
		r.cfg.MaxAttempts,
		r.cfg.BucketSize.Milliseconds(),
		strconv.FormatInt(slot, 10),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis lockout check failed: %w", err)
	}
	if len(result) != 4 {
		return nil, errors.New("unexpected redis script result")
	}

	decision := &Decision{
		Allowed:   result[0] == 1,
		Tracked:   true,
		Limit:     r.cfg.MaxAttempts,
		Remaining: int(result[1]),
	}
	if lockedUntil := result[2]; lockedUntil > 0 {
		decision.LockedUntil = time.UnixMilli(lockedUntil)
		decision.RetryAfter = decision.LockedUntil.Sub(now)
	}

	switch attemptEvent(result[3]) {
	case eventViolation:
		r.audit.LogRateLimitViolation(clientKey, path)
	case eventLockout:
		decision.LockoutStarted = true
		r.audit.LogAccountLockout(clientKey, lockoutReason)
	}

	return decision, nil
}

// reset removes all attempt and lockout data for clientKey
func (r *RedisLockout) reset(ctx context.Context, clientKey string) error {
	attemptsKey, lockKey := r.keys(clientKey)
	return r.client.Del(ctx, attemptsKey, lockKey).Err()
}

// keys returns the attempts and lock keys for clientKey. The hash tag keeps
// both keys in one cluster slot so the script can touch them together.
func (r *RedisLockout) keys(clientKey string) (string, string) {
	base := r.prefix + "{" + clientKey + "}"
	return base + ":attempts", base + ":lock"
}
