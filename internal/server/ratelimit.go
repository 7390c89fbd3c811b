package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig holds per-client limits. A zero limit is not enforced.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter tracks request counts per client in fixed minute, hour and day
// windows.
type RateLimiter struct {
	mu      sync.Mutex
	limits  RateLimitConfig
	now     func() time.Time
	clients map[string]*clientUsage
	pruned  time.Time // day of the last prune
}

type window struct {
	start time.Time
	count int
}

// roll starts a new window once size has elapsed since the current one began.
func (w *window) roll(now time.Time, size time.Duration) {
	if w.start.IsZero() || now.Sub(w.start) >= size {
		w.start = now
		w.count = 0
	}
}

type clientUsage struct {
	minute   window
	hour     window
	day      time.Time
	requests int
	bytes    int64
}

// Usage is a snapshot of one client's daily consumption.
type Usage struct {
	RequestsToday int
	BytesToday    int64
}

// NewRateLimiter creates a limiter enforcing limits.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		now:     time.Now,
		clients: make(map[string]*clientUsage),
	}
}

// Allow records a request of size bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)
	u := rl.usage(client)
	u.minute.roll(now, time.Minute)
	u.hour.roll(now, time.Hour)
	if day := startOfDay(now); !day.Equal(u.day) {
		u.day = day
		u.requests = 0
		u.bytes = 0
	}

	if limit := rl.limits.RequestsPerMinute; limit > 0 && u.minute.count >= limit {
		return &RateLimitError{Window: "minute", Limit: limit, RetryAfter: u.minute.start.Add(time.Minute).Sub(now)}
	}
	if limit := rl.limits.RequestsPerHour; limit > 0 && u.hour.count >= limit {
		return &RateLimitError{Window: "hour", Limit: limit, RetryAfter: u.hour.start.Add(time.Hour).Sub(now)}
	}
	resets := u.day.AddDate(0, 0, 1)
	if limit := rl.limits.MaxRequestsPerDay; limit > 0 && u.requests >= limit {
		return &QuotaExceededError{Kind: "requests", Limit: int64(limit), Used: int64(u.requests), Resets: resets}
	}
	if limit := rl.limits.MaxDataPerDay; limit > 0 && u.bytes+size > limit {
		return &QuotaExceededError{Kind: "data", Limit: limit, Used: u.bytes, Resets: resets}
	}

	u.minute.count++
	u.hour.count++
	u.requests++
	u.bytes += size
	return nil
}

// Usage returns the current daily usage of client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	return Usage{RequestsToday: u.requests, BytesToday: u.bytes}
}

func (rl *RateLimiter) usage(client string) *clientUsage {
	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{}
		rl.clients[client] = u
	}
	return u
}

// prune drops, once per day, clients that made no request today and whose
// hourly window has expired.
func (rl *RateLimiter) prune(now time.Time) {
	today := startOfDay(now)
	if today.Equal(rl.pruned) {
		return
	}
	rl.pruned = today
	for client, u := range rl.clients {
		if u.day.Before(today) && now.Sub(u.hour.start) >= time.Hour {
			delete(rl.clients, client)
		}
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RateLimitError reports an exhausted per-minute or per-hour limit.
type RateLimitError struct {
	Window     string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Window, e.Limit, e.RetryAfter)
}

// QuotaExceededError reports an exhausted daily quota.
type QuotaExceededError struct {
	Kind   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Kind, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
