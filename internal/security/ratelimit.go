package security

import (
	"sync"
	"time"
)

// RateLimiter tracks request timestamps per identifier over a sliding
// window. Each identifier has its own lock so unrelated callers never
// serialize on each other; the outer mutex only guards the map itself.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	window  time.Duration
}

// A pruned window is marked dead under its own lock; an Allow call that
// already fetched the pointer sees the mark and retries against the map
// rather than recording into an orphan.
type rateWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	dead       bool
}

// NewRateLimiter creates a limiter with a 60-second sliding window
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		window:  time.Minute,
	}
}

// Allow evicts expired timestamps for the identifier, then admits the
// request iff fewer than limit remain. "now" is captured once so a call
// straddling the window boundary is evaluated consistently.
func (r *RateLimiter) Allow(identifier string, limit int) bool {
	now := time.Now()

	for {
		r.mu.Lock()
		w, ok := r.windows[identifier]
		if !ok {
			w = &rateWindow{}
			r.windows[identifier] = w
		}
		r.mu.Unlock()

		w.mu.Lock()
		if w.dead {
			// Pruned between the map lookup and taking the window lock
			w.mu.Unlock()
			continue
		}

		cutoff := now.Add(-r.window)
		i := 0
		for i < len(w.timestamps) && w.timestamps[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
		}

		admitted := len(w.timestamps) < limit
		if admitted {
			w.timestamps = append(w.timestamps, now)
		}
		w.mu.Unlock()
		return admitted
	}
}

// ActiveIdentifiers returns how many identifiers still have live entries
func (r *RateLimiter) ActiveIdentifiers() int {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, w := range r.windows {
		w.mu.Lock()
		live := false
		for _, ts := range w.timestamps {
			if !ts.Before(now.Add(-r.window)) {
				live = true
				break
			}
		}
		if live {
			count++
		} else {
			w.dead = true
			delete(r.windows, id)
		}
		w.mu.Unlock()
	}
	return count
}
