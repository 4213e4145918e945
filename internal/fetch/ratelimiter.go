package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// hostPacer paces requests per host at a jittered interval uniform on
// [0.5×delayMs, 1.5×delayMs), independent of whatever other hosts are
// being fetched concurrently. A fixed-cadence limiter would defeat the
// point: per spec §4.9 step 3, the jitter exists for the same
// anti-detection reason the Fetcher rotates its UA and carries
// Sec-Fetch headers — a perfectly regular request cadence is a timing
// fingerprint.
//
// Grounded on masahif-linktadoru/internal/crawler/rate_limiter.go's
// RateLimiter for the lazily-built, mutex-guarded per-domain map shape;
// the jitter itself reuses backoffJittered's factor-in-[0.5,1.5) math
// from fetch.go.
type hostPacer struct {
	mu      sync.Mutex
	nextAt  map[string]time.Time
	delayMs int
}

func newHostPacer(delayMs int) *hostPacer {
	return &hostPacer{nextAt: make(map[string]time.Time), delayMs: delayMs}
}

// Wait blocks until host's next jittered slot arrives, or ctx is done.
func (p *hostPacer) Wait(ctx context.Context, host string) error {
	if p.delayMs <= 0 {
		return nil
	}
	wait := p.reserve(host)
	if wait <= 0 {
		return nil
	}
	return sleepCtx(ctx, wait)
}

// reserve computes how long the caller must wait before host's next
// slot, then reserves that slot (plus a freshly drawn jittered
// interval) for the following caller, all under the same lock so two
// concurrent callers for the same host never compute the same slot.
func (p *hostPacer) reserve(host string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	start := now
	if earliest := p.nextAt[host]; earliest.After(start) {
		start = earliest
	}
	p.nextAt[host] = start.Add(jitteredPaceDelay(p.delayMs))
	return start.Sub(now)
}

// jitteredPaceDelay draws a delay uniform on [0.5×delayMs, 1.5×delayMs).
func jitteredPaceDelay(delayMs int) time.Duration {
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(delayMs) * factor * float64(time.Millisecond))
}
