package throttle

import "time"

// IPThrottle limits the total number of requests per client IP over a fixed
// window, regardless of outcome. The counter and its expiry are established
// on the first request in a window; the whole entry is dropped and
// recreated once the window elapses.
type IPThrottle struct {
	maxRequests int
	cache       *CounterCache
}

// IPOption configures an IPThrottle.
type IPOption func(*ipOptions)

type ipOptions struct {
	now func() time.Time
}

// WithIPClock overrides the time source (useful for tests).
func WithIPClock(fn func() time.Time) IPOption {
	return func(o *ipOptions) {
		if fn != nil {
			o.now = fn
		}
	}
}

// NewIPThrottle creates a throttle allowing maxRequests per window per IP.
func NewIPThrottle(maxRequests int, window time.Duration, opts ...IPOption) *IPThrottle {
	o := ipOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &IPThrottle{
		maxRequests: maxRequests,
		cache:       NewCounterCache(window, FixedWindow, WithCacheClock(o.now)),
	}
}

// ShouldBlock counts the request and reports whether the IP has exceeded
// the window's budget.
func (t *IPThrottle) ShouldBlock(clientIP string) bool {
	return t.cache.Increment(clientIP) > int64(t.maxRequests)
}

// Close releases the underlying cache.
func (t *IPThrottle) Close() {
	t.cache.Close()
}
