package server

import (
	"sync"
	"time"
)

const (
	defaultLoginMaxFailures = 5
	defaultLoginWindow      = 10 * time.Minute
	defaultLoginBlock       = 15 * time.Minute
	loginPruneEvery         = 64
)

// loginRateLimiter blocks a client/username pair after repeated failed logins.
// A nil limiter allows everything.
type loginRateLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*loginAttempts
	maxFailures int
	window      time.Duration
	block       time.Duration
	calls       int
}

type loginAttempts struct {
	failures     int
	windowStart  time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

func newLoginRateLimiter(maxFailures int, window, block time.Duration) *loginRateLimiter {
	if maxFailures <= 0 || window <= 0 || block <= 0 {
		return nil
	}
	return &loginRateLimiter{
		attempts:    make(map[string]*loginAttempts),
		maxFailures: maxFailures,
		window:      window,
		block:       block,
	}
}

func (l *loginRateLimiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.pruneLocked(now)

	entry := l.entry(key, now)
	if now.Before(entry.blockedUntil) {
		return false
	}
	if now.Sub(entry.windowStart) > l.window {
		entry.failures = 0
		entry.windowStart = time.Time{}
	}
	return true
}

func (l *loginRateLimiter) RegisterFailure(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.pruneLocked(now)

	entry := l.entry(key, now)
	if entry.windowStart.IsZero() || now.Sub(entry.windowStart) > l.window {
		entry.failures = 0
		entry.windowStart = now
	}
	entry.failures++
	if entry.failures >= l.maxFailures {
		entry.blockedUntil = now.Add(l.block)
		entry.failures = 0
		entry.windowStart = time.Time{}
	}
}

func (l *loginRateLimiter) Reset(key string) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	delete(l.attempts, key)
	l.mu.Unlock()
}

func (l *loginRateLimiter) entry(key string, now time.Time) *loginAttempts {
	entry, ok := l.attempts[key]
	if !ok {
		entry = &loginAttempts{}
		l.attempts[key] = entry
	}
	entry.lastSeen = now
	return entry
}

// pruneLocked drops idle entries every loginPruneEvery calls.
func (l *loginRateLimiter) pruneLocked(now time.Time) {
	l.calls++
	if l.calls%loginPruneEvery != 0 {
		return
	}
	idle := 2 * max(l.window, l.block)
	for key, entry := range l.attempts {
		if now.Sub(entry.lastSeen) > idle && !now.Before(entry.blockedUntil) {
			delete(l.attempts, key)
		}
	}
}
