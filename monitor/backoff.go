package monitor

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Sleeper suspends the caller for a duration, honoring cancellation.
// Injected so backoff behavior is testable without real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// defaultSleeper waits on a timer or the context, whichever fires first
func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff is an explicit retry state machine for 429 responses: an
// attempt counter and a computed delay, terminal when the attempt budget
// is spent. Keeping it as plain state (rather than a loop with sleeps
// buried in it) lets tests drive it directly.
type backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int

	mu      sync.Mutex
	rand    *rand.Rand
	attempt int
}

func newBackoff(base, max time.Duration, maxAttempts int) *backoff {
	return &backoff{
		base:        base,
		max:         max,
		maxAttempts: maxAttempts,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// next returns the delay before the next retry and whether the attempt
// budget allows one. retryAfter, when positive, is the service's own
// hint and overrides the computed delay. Computed delays double each
// attempt with jitter below one base unit, so consecutive delays are
// non-decreasing until the cap.
func (b *backoff) next(retryAfter time.Duration) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempt >= b.maxAttempts {
		return 0, false
	}

	var delay time.Duration
	if retryAfter > 0 {
		delay = retryAfter
	} else {
		delay = b.base << uint(b.attempt)
		if delay < b.max && b.base > 0 {
			delay += time.Duration(b.rand.Int63n(int64(b.base)))
		}
		if delay > b.max {
			delay = b.max
		}
	}

	b.attempt++
	return delay, true
}

// attempts returns how many retry delays have been handed out
func (b *backoff) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// parseRetryAfter interprets a Retry-After header as either a number of
// seconds or an HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
