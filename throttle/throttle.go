// Package throttle enforces per-host politeness: a token-bucket rate and a
// cap on simultaneous fetches against the same host.
//
// A [Limit] with an empty Host is the default applied to every host that has
// no explicit entry; each host still gets its own bucket and counter.
//
//	m := throttle.NewManager(
//	    throttle.Limit{RateLimit: 2, RateBurst: 4, MaxConcurrency: 4},
//	    throttle.Limit{Host: "api.example.com", RateLimit: 0.5},
//	)
//	if m.Acquire(host) {
//	    defer m.Release(host)
//	    // fetch
//	}
//
// A worker that fails to acquire defers the job back to the broker without
// consuming an attempt.
package throttle

import (
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Limit defines the politeness budget of a host.
type Limit struct {
	// Host is the lowercase host name (without port) this limit applies
	// to. Empty makes it the default for unlisted hosts.
	Host string

	// MaxConcurrency caps simultaneous fetches against the host across the
	// local worker pool. Zero means no cap.
	MaxConcurrency int

	// RateLimit is the sustained fetches per second. Zero disables rate
	// limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

type hostState struct {
	limit   Limit
	limiter *rate.Limiter
	active  int
}

func newHostState(l Limit) *hostState {
	hs := &hostState{limit: l}
	if l.RateLimit > 0 {
		burst := l.RateBurst
		if burst <= 0 {
			burst = 1
		}
		hs.limiter = rate.NewLimiter(rate.Limit(l.RateLimit), burst)
	}
	return hs
}

// Manager tracks per-host budgets. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	fallback *Limit
	explicit map[string]Limit
	hosts    map[string]*hostState
}

// NewManager creates a Manager from limits. Hosts without a matching limit
// and no default are never throttled.
func NewManager(limits ...Limit) *Manager {
	m := &Manager{
		explicit: make(map[string]Limit, len(limits)),
		hosts:    make(map[string]*hostState),
	}
	for _, l := range limits {
		m.set(l)
	}
	return m
}

// Acquire reports whether a fetch against host may start now. On true the
// caller must call Release when the fetch ends.
func (m *Manager) Acquire(host string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hs := m.state(host)
	if hs == nil {
		return true
	}
	if hs.limit.MaxConcurrency > 0 && hs.active >= hs.limit.MaxConcurrency {
		return false
	}
	if hs.limiter != nil && !hs.limiter.Allow() {
		return false
	}
	hs.active++
	return true
}

// Release frees the slot taken by a successful Acquire.
func (m *Manager) Release(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hs := m.hosts[normalize(host)]; hs != nil && hs.active > 0 {
		hs.active--
	}
}

// SetLimit adds or replaces a limit at runtime, keeping in-flight counts.
func (m *Manager) SetLimit(l Limit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(l)
}

// ActiveCount returns the number of in-flight fetches against host.
func (m *Manager) ActiveCount(host string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hs := m.hosts[normalize(host)]; hs != nil {
		return hs.active
	}
	return 0
}

func (m *Manager) set(l Limit) {
	l.Host = normalize(l.Host)
	if l.Host == "" {
		fallback := l
		m.fallback = &fallback
		// Rebuild hosts that follow the default.
		for h, hs := range m.hosts {
			if _, ok := m.explicit[h]; !ok {
				next := newHostState(l)
				next.active = hs.active
				m.hosts[h] = next
			}
		}
		return
	}
	m.explicit[l.Host] = l
	next := newHostState(l)
	if existing := m.hosts[l.Host]; existing != nil {
		next.active = existing.active
	}
	m.hosts[l.Host] = next
}

func (m *Manager) state(host string) *hostState {
	host = normalize(host)
	if hs := m.hosts[host]; hs != nil {
		return hs
	}
	if m.fallback == nil {
		return nil
	}
	hs := newHostState(*m.fallback)
	m.hosts[host] = hs
	return hs
}

// HostOf extracts the throttling key of a target URL.
func HostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return normalize(u.Hostname())
}

func normalize(host string) string { return strings.ToLower(strings.TrimSpace(host)) }
