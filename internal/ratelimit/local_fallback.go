package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// localFallback is the process-local admission control used when Redis is
// unreachable: a golang.org/x/time/rate token bucket per key, refilled at
// limit-per-WindowSeconds and bursting up to the full limit so a quiet
// window's unused budget can be spent immediately rather than trickling
// out one request at a time.
type localFallback struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLocalFallback() *localFallback {
	return &localFallback{limiters: make(map[string]*rate.Limiter)}
}

func (f *localFallback) check(key string, limit int64) Result {
	f.mu.Lock()
	lim, ok := f.limiters[key]
	if !ok {
		perSecond := rate.Limit(float64(limit) / float64(WindowSeconds))
		lim = rate.NewLimiter(perSecond, int(limit))
		f.limiters[key] = lim
	}
	f.mu.Unlock()

	allowed := lim.Allow()
	remaining := int64(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Duration(WindowSeconds) * time.Second),
	}
}
