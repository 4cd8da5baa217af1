package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginPath = "/api/auth/login"

// fakeClock is a manually advanced clock safe for concurrent use
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingAudit captures audit calls
type recordingAudit struct {
	mu         sync.Mutex
	violations []string
	lockouts   []string
}

func (r *recordingAudit) LogRateLimitViolation(clientKey, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, clientKey+" "+path)
}

func (r *recordingAudit) LogAccountLockout(clientKey, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockouts = append(r.lockouts, clientKey)
}

func (r *recordingAudit) LogLoginSuccess(string, string)         {}
func (r *recordingAudit) LogLoginFailure(string, string, string) {}
func (r *recordingAudit) LogRegistration(string, string)         {}

func (r *recordingAudit) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.violations), len(r.lockouts)
}

type panicAudit struct{ recordingAudit }

func (p *panicAudit) LogAccountLockout(string, string)     { panic("audit backend unavailable") }
func (p *panicAudit) LogRateLimitViolation(string, string) { panic("audit backend unavailable") }

func newTestLockout(t *testing.T, clock *fakeClock, rec *recordingAudit) *Lockout {
	t.Helper()
	cfg := DefaultLockoutConfig()
	cfg.CleanupInterval = 0 // Disable cleanup for tests
	cfg.Now = clock.Now
	if rec != nil {
		cfg.Audit = rec
	}
	l, err := NewLockoutWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func attempt(t *testing.T, l *Lockout, key string) *Decision {
	t.Helper()
	d, err := l.Attempt(context.Background(), key, loginPath)
	require.NoError(t, err)
	return d
}

func TestNewLockoutWithConfig_InvalidConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*LockoutConfig)
		expectedErr string
	}{
		{"zero attempts", func(c *LockoutConfig) { c.MaxAttempts = 0 }, "max attempts must be greater than 0"},
		{"zero window", func(c *LockoutConfig) { c.Window = 0 }, "window must be greater than 0"},
		{"zero lockout", func(c *LockoutConfig) { c.LockoutDuration = 0 }, "lockout duration must be greater than 0"},
		{"negative bucket", func(c *LockoutConfig) { c.BucketSize = -time.Second }, "bucket size must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLockoutConfig()
			cfg.CleanupInterval = 0
			tt.mutate(&cfg)
			_, err := NewLockoutWithConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestLockout_AllowsBelowThreshold(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	for i := 1; i <= 4; i++ {
		d := attempt(t, l, "1.2.3.4")
		assert.True(t, d.Allowed, "attempt %d should be allowed", i)
		assert.True(t, d.Tracked)
		assert.Equal(t, 5, d.Limit)
		assert.Equal(t, 4-i, d.Remaining)
		clock.Advance(time.Minute)
	}
}

func TestLockout_FifthAttemptLocksOut(t *testing.T) {
	clock := newFakeClock()
	rec := &recordingAudit{}
	l := newTestLockout(t, clock, rec)

	for i := 0; i < 4; i++ {
		require.True(t, attempt(t, l, "1.2.3.4").Allowed)
	}

	d := attempt(t, l, "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.True(t, d.LockoutStarted)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)
	assert.Equal(t, clock.Now().Add(30*time.Minute), d.LockedUntil)

	violations, lockouts := rec.counts()
	assert.Equal(t, 0, violations)
	assert.Equal(t, 1, lockouts)
}

func TestLockout_BlockedDuringLockout(t *testing.T) {
	clock := newFakeClock()
	rec := &recordingAudit{}
	l := newTestLockout(t, clock, rec)

	for i := 0; i < 5; i++ {
		attempt(t, l, "1.2.3.4")
	}

	for _, wait := range []time.Duration{time.Second, 10 * time.Minute, 19*time.Minute + 58*time.Second} {
		clock.Advance(wait)
		d := attempt(t, l, "1.2.3.4")
		assert.False(t, d.Allowed)
		assert.False(t, d.LockoutStarted)
		assert.Greater(t, d.RetryAfter, time.Duration(0))
	}

	violations, lockouts := rec.counts()
	assert.Equal(t, 3, violations)
	assert.Equal(t, 1, lockouts)
	assert.Equal(t, "1.2.3.4 "+loginPath, rec.violations[0])
}

func TestLockout_ExpiryResetsHistory(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	for i := 0; i < 5; i++ {
		attempt(t, l, "1.2.3.4")
	}

	clock.Advance(30 * time.Minute)
	d := attempt(t, l, "1.2.3.4")
	assert.True(t, d.Allowed)
	assert.True(t, d.LockedUntil.IsZero())
	// History was cleared: only this attempt counts.
	assert.Equal(t, 3, d.Remaining)
}

// Example from the limiter's contract: five quick logins lock the client out,
// the lockout holds for its full duration, and a request 31 minutes later
// goes through.
func TestLockout_LoginBurstExample(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	var results []bool
	for i := 0; i < 5; i++ {
		results = append(results, attempt(t, l, "1.2.3.4").Allowed)
		clock.Advance(10 * time.Second)
	}
	assert.Equal(t, []bool{true, true, true, true, false}, results)

	lockStart := clock.Now().Add(-10 * time.Second)

	clock.Advance(20 * time.Minute)
	assert.False(t, attempt(t, l, "1.2.3.4").Allowed, "request 6 within lockout must be blocked")

	clock.Advance(lockStart.Add(31 * time.Minute).Sub(clock.Now()))
	assert.True(t, attempt(t, l, "1.2.3.4").Allowed)
}

func TestLockout_SlidingWindowExcludesOldAttempts(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	for i := 0; i < 4; i++ {
		require.True(t, attempt(t, l, "1.2.3.4").Allowed)
	}

	// Minute buckets are dropped once their whole minute is out of the window.
	clock.Advance(16 * time.Minute)

	for i := 0; i < 4; i++ {
		d := attempt(t, l, "1.2.3.4")
		assert.True(t, d.Allowed, "attempt %d after window should be allowed", i)
	}
}

func TestLockout_SlidingNotFixedWindow(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	// Two attempts early, two late in the window.
	attempt(t, l, "k")
	attempt(t, l, "k")
	clock.Advance(10 * time.Minute)
	attempt(t, l, "k")
	attempt(t, l, "k")

	// Early attempts leave the window; late ones still count.
	clock.Advance(6 * time.Minute)
	d := attempt(t, l, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d = attempt(t, l, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d = attempt(t, l, "k")
	assert.False(t, d.Allowed)
	assert.True(t, d.LockoutStarted)
}

func TestLockout_ExactTimestamps(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultLockoutConfig()
	cfg.CleanupInterval = 0
	cfg.BucketSize = 0
	cfg.Now = clock.Now
	l, err := NewLockoutWithConfig(cfg)
	require.NoError(t, err)
	defer l.Close()

	clock.Advance(59 * time.Second)
	for i := 0; i < 4; i++ {
		attempt(t, l, "k")
	}

	// Exactly one window later the attempts no longer count.
	clock.Advance(15 * time.Minute)
	d := attempt(t, l, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}

func TestLockout_DistinctKeysIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	for i := 0; i < 5; i++ {
		attempt(t, l, "1.2.3.4")
	}
	assert.False(t, attempt(t, l, "1.2.3.4").Allowed)

	d := attempt(t, l, "5.6.7.8")
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}

func TestLockout_UnprotectedPathNotRecorded(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	for i := 0; i < 20; i++ {
		d, err := l.Attempt(context.Background(), "1.2.3.4", "/api/projects")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.False(t, d.Tracked)
	}
	assert.Equal(t, 0, l.tracked())

	d, err := l.Attempt(context.Background(), "1.2.3.4", "/api/auth/register")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, l.tracked())
}

func TestLockout_AuditPanicDoesNotAffectDecision(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultLockoutConfig()
	cfg.CleanupInterval = 0
	cfg.Now = clock.Now
	cfg.Audit = &panicAudit{}
	l, err := NewLockoutWithConfig(cfg)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 4; i++ {
		attempt(t, l, "k")
	}

	var d *Decision
	require.NotPanics(t, func() { d = attempt(t, l, "k") })
	assert.False(t, d.Allowed)

	require.NotPanics(t, func() { d = attempt(t, l, "k") })
	assert.False(t, d.Allowed)
}

func TestLockout_Reset(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	for i := 0; i < 5; i++ {
		attempt(t, l, "k")
	}
	require.False(t, attempt(t, l, "k").Allowed)

	l.reset("k")
	assert.True(t, attempt(t, l, "k").Allowed)
}

func TestLockout_SweepEvictsIdleEntries(t *testing.T) {
	clock := newFakeClock()
	var swept int
	cfg := DefaultLockoutConfig()
	cfg.CleanupInterval = 0
	cfg.Now = clock.Now
	cfg.OnSweep = func(tracked int) { swept = tracked }
	l, err := NewLockoutWithConfig(cfg)
	require.NoError(t, err)
	defer l.Close()

	attempt(t, l, "idle")
	for i := 0; i < 5; i++ {
		attempt(t, l, "locked")
	}
	require.Equal(t, 2, l.tracked())

	clock.Advance(20 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.tracked())
	assert.Equal(t, 1, swept)

	// Lockout still active: the locked key survives and stays blocked.
	assert.False(t, attempt(t, l, "locked").Allowed)

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.tracked())
}

func TestLockout_CleanupLoop(t *testing.T) {
	cfg := DefaultLockoutConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	cfg.Window = time.Millisecond
	cfg.BucketSize = 0
	l, err := NewLockoutWithConfig(cfg)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Attempt(context.Background(), "k", loginPath)
	require.NoError(t, err)
	require.Equal(t, 1, l.tracked())

	assert.Eventually(t, func() bool { return l.tracked() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLockout_CloseIdempotent(t *testing.T) {
	l, err := NewLockout()
	require.NoError(t, err)

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestLockout_ConcurrentSameKey(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultLockoutConfig()
	cfg.CleanupInterval = 0
	cfg.Now = clock.Now
	cfg.MaxAttempts = 50
	l, err := NewLockoutWithConfig(cfg)
	require.NoError(t, err)
	defer l.Close()

	var allowed, lockouts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Attempt(context.Background(), "shared", loginPath)
			if err != nil {
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
			if d.LockoutStarted {
				lockouts.Add(1)
			}
		}()
	}
	wg.Wait()

	// No lost updates: exactly max-1 attempts get through, one triggers the lockout.
	assert.Equal(t, int64(49), allowed.Load())
	assert.Equal(t, int64(1), lockouts.Load())
}

func TestLockout_ConcurrentDistinctKeys(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	var wg sync.WaitGroup
	var blocked atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("10.0.0.%d", i)
			for j := 0; j < 4; j++ {
				d, err := l.Attempt(context.Background(), key, loginPath)
				if err != nil || !d.Allowed {
					blocked.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(0), blocked.Load())
	assert.Equal(t, 100, l.tracked())
}

func TestLockout_ConcurrentWithSweep(t *testing.T) {
	clock := newFakeClock()
	l := newTestLockout(t, clock, nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				l.Sweep()
			}
		}
	}()

	for i := 0; i < 4; i++ {
		assert.True(t, attempt(t, l, "k").Allowed)
	}
	assert.False(t, attempt(t, l, "k").Allowed)

	close(stop)
	wg.Wait()
}
