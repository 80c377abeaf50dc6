package security

import (
	"sync"
	"time"
)

// Blocklist counts failed authentication attempts per identifier and
// blocks an IP once the threshold is reached. The unblock timer is armed
// exactly once, when the block is created; later failures during an
// active block increment the counter but never extend or shorten it.
type Blocklist struct {
	mu            sync.Mutex
	threshold     int
	blockDuration time.Duration
	failures      map[string]int
	blocked       map[string]*blockEntry

	// Callbacks fire outside the lock. Set before first use.
	OnBlocked   func(ip, identifier string, failures int)
	OnUnblocked func(ip string)
}

type blockEntry struct {
	until      time.Time
	identifier string
	timer      *time.Timer
}

// NewBlocklist creates a blocklist with the given threshold and block duration
func NewBlocklist(threshold int, blockDuration time.Duration) *Blocklist {
	return &Blocklist{
		threshold:     threshold,
		blockDuration: blockDuration,
		failures:      make(map[string]int),
		blocked:       make(map[string]*blockEntry),
	}
}

// RecordFailure increments the failure count for identifier. Crossing the
// threshold blocks ip and schedules the automatic unblock.
func (b *Blocklist) RecordFailure(identifier, ip string) {
	b.mu.Lock()

	b.failures[identifier]++
	count := b.failures[identifier]

	if count < b.threshold {
		b.mu.Unlock()
		return
	}

	if _, already := b.blocked[ip]; already {
		b.mu.Unlock()
		return
	}

	entry := &blockEntry{
		until:      time.Now().Add(b.blockDuration),
		identifier: identifier,
	}
	entry.timer = time.AfterFunc(b.blockDuration, func() {
		b.unblock(ip)
	})
	b.blocked[ip] = entry

	onBlocked := b.OnBlocked
	b.mu.Unlock()

	if onBlocked != nil {
		onBlocked(ip, identifier, count)
	}
}

func (b *Blocklist) unblock(ip string) {
	b.mu.Lock()
	entry, ok := b.blocked[ip]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.blocked, ip)
	delete(b.failures, entry.identifier)

	onUnblocked := b.OnUnblocked
	b.mu.Unlock()

	if onUnblocked != nil {
		onUnblocked(ip)
	}
}

// IsBlocked reports whether ip is currently blocked
func (b *Blocklist) IsBlocked(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.blocked[ip]
	return ok && time.Now().Before(entry.until)
}

// ResetFailures clears the failure count for identifier, called after a
// successful authentication
func (b *Blocklist) ResetFailures(identifier string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, identifier)
}

// FailureCount returns the current failure count for identifier
func (b *Blocklist) FailureCount(identifier string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[identifier]
}

// BlockedCount returns the number of currently blocked IPs
func (b *Blocklist) BlockedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	now := time.Now()
	for _, entry := range b.blocked {
		if now.Before(entry.until) {
			count++
		}
	}
	return count
}
