package security

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowUpToLimit(t *testing.T) {
	r := NewRateLimiter()

	for i := 0; i < 5; i++ {
		assert.True(t, r.Allow("client1", 5), "request %d should be allowed", i+1)
	}
	assert.False(t, r.Allow("client1", 5), "6th request should be rejected")
}

func TestRateLimiter_IdentifierIsolation(t *testing.T) {
	r := NewRateLimiter()

	for i := 0; i < 3; i++ {
		assert.True(t, r.Allow("client1", 3))
	}
	assert.False(t, r.Allow("client1", 3))

	// A different identifier has its own window
	assert.True(t, r.Allow("client2", 3))
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	r := NewRateLimiter()
	r.window = 100 * time.Millisecond

	assert.True(t, r.Allow("client1", 2))
	assert.True(t, r.Allow("client1", 2))
	assert.False(t, r.Allow("client1", 2))

	time.Sleep(150 * time.Millisecond)

	// Old entries aged out of the window
	assert.True(t, r.Allow("client1", 2))
}

func TestRateLimiter_ActiveIdentifiers(t *testing.T) {
	r := NewRateLimiter()
	r.window = 50 * time.Millisecond

	r.Allow("client1", 10)
	r.Allow("client2", 10)
	assert.Equal(t, 2, r.ActiveIdentifiers())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, r.ActiveIdentifiers())
}

func TestRateLimiter_PrunedWindowIsDeadNotResurrected(t *testing.T) {
	r := NewRateLimiter()
	r.window = 30 * time.Millisecond

	require.True(t, r.Allow("client1", 5))
	r.mu.Lock()
	w := r.windows["client1"]
	r.mu.Unlock()
	require.NotNil(t, w)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, r.ActiveIdentifiers())

	w.mu.Lock()
	dead := w.dead
	w.mu.Unlock()
	assert.True(t, dead, "pruned window must be marked dead")

	// The next request gets a fresh tracked window, never the orphan
	assert.True(t, r.Allow("client1", 1))
	r.mu.Lock()
	fresh := r.windows["client1"]
	r.mu.Unlock()
	require.NotNil(t, fresh)
	assert.NotSame(t, w, fresh)
}

func TestRateLimiter_ConcurrentSameIdentifier(t *testing.T) {
	r := NewRateLimiter()

	const callers = 20
	var wg sync.WaitGroup
	allowed := make(chan bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- r.Allow("shared", 10)
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 10, count, "exactly limit requests should be admitted")
}
