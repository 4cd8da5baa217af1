package ratelimit

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/buildplan/buildplan/internal/audit"
)

// LockoutConfig holds configuration for the in-memory lockout limiter
type LockoutConfig struct {
	// MaxAttempts is the attempt count within Window that triggers a lockout
	MaxAttempts int
	// Window is the sliding window attempts are counted in
	Window time.Duration
	// LockoutDuration is how long a client key stays blocked
	LockoutDuration time.Duration
	// BucketSize is the granularity attempts are counted at; 0 keeps exact timestamps
	BucketSize time.Duration
	// CleanupInterval is how often idle entries are evicted; 0 disables eviction
	CleanupInterval time.Duration
	// ProtectedPaths lists the request paths subject to limiting
	ProtectedPaths []string
	// Shards is the number of independently locked partitions of the key space
	Shards int
	// Audit receives violation and lockout events
	Audit audit.Logger
	// Now returns the current time
	Now func() time.Time
	// OnSweep is called after each cleanup pass with the number of tracked keys
	OnSweep func(tracked int)
}

// DefaultLockoutConfig returns the limits used for authentication endpoints:
// 5 attempts per 15 minutes, then a 30 minute lockout
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:     DefaultMaxAttempts,
		Window:          DefaultWindow,
		LockoutDuration: DefaultLockoutDuration,
		BucketSize:      DefaultBucketSize,
		CleanupInterval: DefaultCleanupInterval,
		ProtectedPaths:  DefaultProtectedPaths,
		Shards:          32,
	}
}

// Lockout is an in-memory sliding window limiter with lockout.
// The key space is split across shards so unrelated client keys never share
// a lock; each entry carries its own mutex.
type Lockout struct {
	cfg    LockoutConfig
	paths  pathSet
	shards []*shard
	audit  audit.Logger
	now    func() time.Time

	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is the per-client-key state
type entry struct {
	mu          sync.Mutex
	attempts    map[int64]int
	locked      bool
	lockedUntil time.Time
	lastSeen    time.Time
	evicted     bool
}

type attemptEvent int

const (
	eventNone attemptEvent = iota
	eventViolation
	eventLockout
)

// NewLockout creates a lockout limiter with default configuration
func NewLockout() (*Lockout, error) {
	return NewLockoutWithConfig(DefaultLockoutConfig())
}

// NewLockoutWithConfig creates a lockout limiter with custom configuration
func NewLockoutWithConfig(cfg LockoutConfig) (*Lockout, error) {
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
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Lockout{
		cfg:    cfg,
		paths:  newPathSet(cfg.ProtectedPaths),
		shards: make([]*shard, cfg.Shards),
		audit:  audit.Safe(cfg.Audit),
		now:    cfg.Now,
		done:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &shard{entries: make(map[string]*entry)}
	}

	if cfg.CleanupInterval > 0 {
		l.cleanup = time.NewTicker(cfg.CleanupInterval)
		go l.cleanupLoop()
	}

	return l, nil
}

// Attempt records an attempt from clientKey and decides whether it may proceed
func (l *Lockout) Attempt(_ context.Context, clientKey, path string) (*Decision, error) {
	if !l.paths.contains(path) {
		return untracked(l.cfg.MaxAttempts), nil
	}

	now := l.now()

	var (
		decision *Decision
		event    attemptEvent
	)
	for {
		e := l.entryFor(clientKey, now)
		var ok bool
		decision, event, ok = e.attempt(now, l.cfg)
		if ok {
			break
		}
		// Entry was evicted between lookup and lock; look it up again.
	}

	// Audit outside the entry lock.
	switch event {
	case eventViolation:
		l.audit.LogRateLimitViolation(clientKey, path)
	case eventLockout:
		l.audit.LogAccountLockout(clientKey, lockoutReason)
	}

	return decision, nil
}

// reset clears all state for clientKey
func (l *Lockout) reset(clientKey string) {
	s := l.shardFor(clientKey)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[clientKey]; ok {
		e.mu.Lock()
		e.evicted = true
		e.mu.Unlock()
		delete(s.entries, clientKey)
	}
}

// tracked returns the number of tracked client keys
func (l *Lockout) tracked() int {
	n := 0
	for _, s := range l.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Close stops the cleanup goroutine
func (l *Lockout) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		if l.cleanup != nil {
			l.cleanup.Stop()
		}
	})
	return nil
}

func (l *Lockout) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// entryFor returns the entry for key, creating it on first use
func (l *Lockout) entryFor(key string, now time.Time) *entry {
	s := l.shardFor(key)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e
	}
	e = &entry{
		attempts: make(map[int64]int),
		lastSeen: now,
	}
	s.entries[key] = e
	return e
}

// attempt applies one attempt to the entry. ok is false if the entry has
// been evicted and must be looked up again.
func (e *entry) attempt(now time.Time, cfg LockoutConfig) (d *Decision, event attemptEvent, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.evicted {
		return nil, eventNone, false
	}
	e.lastSeen = now

	if e.locked {
		if now.Before(e.lockedUntil) {
			return &Decision{
				Allowed:     false,
				Tracked:     true,
				Limit:       cfg.MaxAttempts,
				Remaining:   0,
				RetryAfter:  e.lockedUntil.Sub(now),
				LockedUntil: e.lockedUntil,
			}, eventViolation, true
		}
		e.reset()
	}

	e.purge(now, cfg)
	tally := e.tally() + 1
	e.attempts[bucketStart(now, cfg.BucketSize)]++

	if tally >= cfg.MaxAttempts {
		e.locked = true
		e.lockedUntil = now.Add(cfg.LockoutDuration)
		return &Decision{
			Allowed:        false,
			Tracked:        true,
			Limit:          cfg.MaxAttempts,
			Remaining:      0,
			RetryAfter:     cfg.LockoutDuration,
			LockedUntil:    e.lockedUntil,
			LockoutStarted: true,
		}, eventLockout, true
	}

	return &Decision{
		Allowed:   true,
		Tracked:   true,
		Limit:     cfg.MaxAttempts,
		Remaining: cfg.MaxAttempts - 1 - tally,
	}, eventNone, true
}

func (e *entry) reset() {
	e.locked = false
	e.lockedUntil = time.Time{}
	e.attempts = make(map[int64]int)
}

func (e *entry) purge(now time.Time, cfg LockoutConfig) {
	for start := range e.attempts {
		if bucketExpired(start, cfg.BucketSize, cfg.Window, now) {
			delete(e.attempts, start)
		}
	}
}

func (e *entry) tally() int {
	total := 0
	for _, n := range e.attempts {
		total += n
	}
	return total
}

// idle reports whether the entry holds no state worth keeping
func (e *entry) idle(now time.Time, cfg LockoutConfig) bool {
	if e.locked && now.Before(e.lockedUntil) {
		return false
	}
	if e.locked {
		return true
	}
	e.purge(now, cfg)
	return len(e.attempts) == 0
}

// cleanupLoop evicts idle entries until Close is called
func (l *Lockout) cleanupLoop() {
	for {
		select {
		case <-l.cleanup.C:
			l.Sweep()
		case <-l.done:
			return
		}
	}
}

// Sweep evicts entries that are neither locked out nor hold attempts inside
// the window, and returns the number of evicted keys
func (l *Lockout) Sweep() int {
	now := l.now()
	evicted := 0
	tracked := 0

	for _, s := range l.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			e.mu.Lock()
			if e.idle(now, l.cfg) {
				e.evicted = true
				delete(s.entries, key)
				evicted++
			}
			e.mu.Unlock()
		}
		tracked += len(s.entries)
		s.mu.Unlock()
	}

	if l.cfg.OnSweep != nil {
		l.cfg.OnSweep(tracked)
	}
	return evicted
}
