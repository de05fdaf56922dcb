// Package ratelimit counts requests per client in fixed windows.
package ratelimit

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Limiter allows up to limit requests per key in each window, the window
// starting at the key's first request.
type Limiter struct {
	mu     sync.Mutex
	counts *gocache.Cache
	limit  int
	window time.Duration
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		counts: gocache.New(window, window),
		limit:  limit,
		window: window,
	}
}

// Allow records one request for key. It returns whether the request is
// within the limit and how many requests remain in the current window.
func (l *Limiter) Allow(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.counts.Add(key, 1, gocache.DefaultExpiration); err == nil {
		return l.limit >= 1, l.limit - 1
	}

	n, err := l.counts.IncrementInt(key, 1)
	if err != nil {
		// expired between Add and IncrementInt
		l.counts.Set(key, 1, gocache.DefaultExpiration)
		return l.limit >= 1, l.limit - 1
	}
	if n > l.limit {
		return false, 0
	}
	return true, l.limit - n
}

func (l *Limiter) Limit() int {
	return l.limit
}

func (l *Limiter) Window() time.Duration {
	return l.window
}
