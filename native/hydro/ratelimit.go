package hydro

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// lockRateLimiter throttles how often a single owner may submit Lock
// messages, the same per-key token-bucket idiom
// gateway/middleware/ratelimit.go uses for inbound HTTP requests, applied
// here to the chain-level Lock message instead of a request path. Disabled
// by default (limiter is nil in NewEngine); operators opt in via
// Engine.SetLockRateLimit.
type lockRateLimiter struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	clockNow func() time.Time
}

func newLockRateLimiter(perSecond float64, burst int) *lockRateLimiter {
	return &lockRateLimiter{
		rate:     rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		clockNow: time.Now,
	}
}

func (l *lockRateLimiter) allow(owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[owner]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[owner] = lim
	}
	return lim.AllowN(l.clockNow(), 1)
}

// SetLockRateLimit enables per-owner throttling of the Lock message:
// perSecond Lock calls replenish per owner address, up to burst in a
// single instant. Passing perSecond <= 0 disables throttling (the
// default).
func (e *Engine) SetLockRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		e.lockLimiter = nil
		return
	}
	e.lockLimiter = newLockRateLimiter(perSecond, burst)
}
