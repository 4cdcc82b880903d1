// Package ratelimit implements in-memory token buckets protecting the
// authentication entry points from brute force and spam. Buckets are keyed
// by caller identifier (client IP) and live for the process lifetime; there
// is no eviction, only an explicit Reset for tests and ops.
package ratelimit

import (
	"sync"
	"time"
)

// Family names an independent bucket family. Each family has its own
// capacity and refill window; the same identifier gets one bucket per family.
type Family string

const (
	FamilyLogin    Family = "login"
	FamilyRegister Family = "register"
)

// Rule is the capacity and refill window of a family. Refill is interval
// based: when a full window has elapsed since the window started, the bucket
// snaps back to full capacity all at once. There is no continuous drip.
type Rule struct {
	Capacity int
	Window   time.Duration
}

// DefaultRules are the shipped families: 5 login attempts per minute and
// 3 registrations per hour, per client IP.
func DefaultRules() map[Family]Rule {
	return map[Family]Rule{
		FamilyLogin:    {Capacity: 5, Window: time.Minute},
		FamilyRegister: {Capacity: 3, Window: time.Hour},
	}
}

type bucket struct {
	mu          sync.Mutex
	remaining   int
	windowStart time.Time
}

// Limiter owns every bucket of every family. Safe for arbitrary concurrent
// callers: the map is guarded separately from the per-bucket state, so two
// identifiers never contend on the same lock during consume.
type Limiter struct {
	mu      sync.RWMutex
	rules   map[Family]Rule
	buckets map[string]*bucket

	// now is swappable so tests can control refill without sleeping.
	now func() time.Time
}

func NewLimiter(rules map[Family]Rule) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Limiter{
		rules:   rules,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *Limiter) key(identifier string, family Family) string {
	return string(family) + ":" + identifier
}

// get returns the bucket for (identifier, family), creating it at full
// capacity on first access.
func (l *Limiter) get(identifier string, family Family) *bucket {
	key := l.key(identifier, family)

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check: another goroutine may have created it between the locks.
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{
		remaining:   l.rules[family].Capacity,
		windowStart: l.now(),
	}
	l.buckets[key] = b
	return b
}

// refillLocked snaps the bucket back to full capacity if a whole window has
// elapsed. Caller must hold b.mu.
func (l *Limiter) refillLocked(b *bucket, family Family) {
	rule := l.rules[family]
	now := l.now()
	if now.Sub(b.windowStart) >= rule.Window {
		b.remaining = rule.Capacity
		b.windowStart = now
	}
}

// TryConsume atomically takes one token if available and reports whether it
// succeeded. It never blocks or queues; rejection is immediate.
func (l *Limiter) TryConsume(identifier string, family Family) bool {
	b := l.get(identifier, family)

	b.mu.Lock()
	defer b.mu.Unlock()
	l.refillLocked(b, family)
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Remaining reports the tokens currently left for (identifier, family).
func (l *Limiter) Remaining(identifier string, family Family) int {
	b := l.get(identifier, family)

	b.mu.Lock()
	defer b.mu.Unlock()
	l.refillLocked(b, family)
	return b.remaining
}

// Reset drops the bucket for one identifier so its next access starts fresh.
func (l *Limiter) Reset(identifier string, family Family) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, l.key(identifier, family))
}
