// Package ratelimit implements a per-client fixed-window admission limiter.
package ratelimit

import (
	"net"
	"strings"
	"sync"
	"time"

	"leapcode/config"
	"leapcode/internal/errors"
)

// Config defines the window size and the blacklist loaded at start.
type Config struct {
	Limit     int           // Maximum admitted requests per window.
	Period    time.Duration // Window length.
	Blacklist []string      // Identities rejected unconditionally.
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed     bool
	Blacklisted bool
	Limit       int
	Remaining   int
	Reset       int64 // Epoch seconds at which the current window ends. Zero for blacklisted identities.
}

// defaultPruneEvery is the number of new identities between sweeps of expired windows.
const defaultPruneEvery = 1024

// window tracks the request count of one identity.
type window struct {
	mu      sync.Mutex
	count   int
	start   time.Time
	evicted bool // Set under mu when the window is removed from the map.
}

// Limiter tracks request volume per client identity.
// Entries are independent: requests from different identities only share the map lock.
type Limiter struct {
	limit      int
	period     time.Duration
	now        func() time.Time
	pruneEvery int

	mu      sync.RWMutex
	windows map[string]*window
	inserts int

	blacklistMu sync.RWMutex
	blacklist   map[string]struct{}
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithPruneEvery sweeps expired windows after every n new identities.
func WithPruneEvery(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.pruneEvery = n
		}
	}
}

// New creates a Limiter. Limit must be positive and Period non-zero.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if cfg.Limit <= 0 {
		return nil, errors.Errorf("rate limit must be positive, got %d", cfg.Limit)
	}
	if cfg.Period <= 0 {
		return nil, errors.Errorf("rate limit period must be positive, got %s", cfg.Period)
	}

	l := &Limiter{
		limit:      cfg.Limit,
		period:     cfg.Period,
		now:        time.Now,
		pruneEvery: defaultPruneEvery,
		windows:    make(map[string]*window),
		blacklist:  make(map[string]struct{}, len(cfg.Blacklist)),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, identity := range cfg.Blacklist {
		if identity = strings.TrimSpace(identity); identity != "" {
			l.blacklist[identity] = struct{}{}
		}
	}

	return l, nil
}

// Limit returns the configured request limit.
func (l *Limiter) Limit() int {
	return l.limit
}

// Allow records one request for identity and reports whether it is admitted.
// A rejected request does not count against the window.
func (l *Limiter) Allow(identity string) Decision {
	if l.IsBlacklisted(identity) {
		return Decision{Blacklisted: true, Limit: l.limit}
	}

	now := l.now()
	w := l.lockedWindow(identity, now)
	defer w.mu.Unlock()

	if w.start.IsZero() || now.Sub(w.start) > l.period {
		w.count = 1
		w.start = now

		return Decision{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: l.limit - 1,
			Reset:     w.start.Add(l.period).Unix(),
		}
	}

	reset := w.start.Add(l.period).Unix()
	if w.count < l.limit {
		w.count++

		return Decision{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: l.limit - w.count,
			Reset:     reset,
		}
	}

	return Decision{Limit: l.limit, Remaining: 0, Reset: reset}
}

// Blacklist rejects every future request from identity.
func (l *Limiter) Blacklist(identity string) {
	l.blacklistMu.Lock()
	defer l.blacklistMu.Unlock()

	l.blacklist[identity] = struct{}{}
}

// IsBlacklisted reports whether identity is blacklisted.
func (l *Limiter) IsBlacklisted(identity string) bool {
	l.blacklistMu.RLock()
	defer l.blacklistMu.RUnlock()

	_, ok := l.blacklist[identity]

	return ok
}

// Len returns the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.windows)
}

// lockedWindow returns the live window for identity with its mutex held.
func (l *Limiter) lockedWindow(identity string, now time.Time) *window {
	for {
		w := l.window(identity, now)
		w.mu.Lock()
		if !w.evicted {
			return w
		}
		w.mu.Unlock()
	}
}

func (l *Limiter) window(identity string, now time.Time) *window {
	l.mu.RLock()
	w, ok := l.windows[identity]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double check
	if w, ok := l.windows[identity]; ok {
		return w
	}
	w = &window{}
	l.windows[identity] = w

	l.inserts++
	if l.inserts%l.pruneEvery == 0 {
		l.pruneLocked(now)
	}

	return w
}

// Prune removes every window that has expired and returns how many were dropped.
func (l *Limiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.pruneLocked(now)
}

// pruneLocked requires l.mu to be held for writing.
func (l *Limiter) pruneLocked(now time.Time) int {
	pruned := 0
	for identity, w := range l.windows {
		w.mu.Lock()
		if !w.start.IsZero() && now.Sub(w.start) > l.period {
			w.evicted = true
			delete(l.windows, identity)
			pruned++
		}
		w.mu.Unlock()
	}

	return pruned
}

// ClientIdentity derives the rate-limit key for a request.
// The first X-Forwarded-For hop wins, which is only trustworthy behind a proxy that rewrites the header.
func ClientIdentity(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}

	return host
}

// NewFromConfig builds the process-wide limiter from the rateLimit config section.
func NewFromConfig(cfg *config.Config) (*Limiter, error) {
	return New(Config{
		Limit:     cfg.RateLimit.Requests,
		Period:    cfg.RateLimit.Period,
		Blacklist: cfg.RateLimit.Blacklist,
	})
}
