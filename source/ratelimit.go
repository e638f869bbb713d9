package source

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// tokenBucket is a simple requests-per-minute limiter with a burst
// allowance. It exists because remote wikis ban impolite crawlers.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   int
	capacity int
	refill   time.Duration
	lastRef  time.Time
}

func newTokenBucket(rpm, burst int) *tokenBucket {
	if rpm <= 0 {
		rpm = 30
	}
	if burst <= 0 {
		burst = 5
	}
	return &tokenBucket{
		tokens:   burst,
		capacity: burst,
		refill:   time.Minute / time.Duration(rpm),
		lastRef:  time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (t *tokenBucket) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		now := time.Now()
		for now.Sub(t.lastRef) >= t.refill && t.tokens < t.capacity {
			t.tokens++
			t.lastRef = t.lastRef.Add(t.refill)
		}
		if t.tokens > 0 {
			t.tokens--
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		select {
		case <-time.After(t.refill / 2):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// jitter returns a random delay up to max, used between retries so
// concurrent workers do not hammer the source in lockstep.
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
