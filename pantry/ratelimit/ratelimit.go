// ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Rule is a sliding-window limit: at most Max events per Window per key.
type Rule struct {
	Window time.Duration
	Max    int
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool

	// Remaining is how many more events the key may record in the current
	// window after this one.
	Remaining int

	// RetryAfter is how long until the oldest event leaves the window.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter records an event for key if the rule allows it.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Memory is a process-local sliding-window log. It is exact for a single
// instance; use Redis when several instances share traffic.
type Memory struct {
	rule Rule
	now  func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewMemory returns an in-process limiter for rule.
func NewMemory(rule Rule) *Memory {
	return &Memory{
		rule: rule,
		now:  time.Now,
		hits: make(map[string][]time.Time),
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()
	cutoff := now.Add(-m.rule.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) > m.rule.Window {
		m.sweep(cutoff)
		m.lastSweep = now
	}

	log := trim(m.hits[key], cutoff)
	if len(log) >= m.rule.Max {
		m.hits[key] = log
		retry := log[0].Sub(cutoff)
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	m.hits[key] = append(log, now)
	return Decision{Allowed: true, Remaining: m.rule.Max - len(log) - 1}, nil
}

// sweep drops keys whose every event is outside the window.
func (m *Memory) sweep(cutoff time.Time) {
	for k, log := range m.hits {
		if log = trim(log, cutoff); len(log) == 0 {
			delete(m.hits, k)
		} else {
			m.hits[k] = log
		}
	}
}

// trim removes events at or before cutoff. log is ordered oldest first.
func trim(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}

// ClientIP returns the client address used as the limiter key. It expects
// chi's RealIP middleware to have already folded X-Forwarded-For /
// X-Real-IP into RemoteAddr, and strips the port.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
