package memory

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// AttemptLimiter hands out one token bucket per key. Buckets idle for longer
// than idleTTL are dropped.
type AttemptLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

// NewAttemptLimiter allows perSecond attempts per key with the given burst.
func NewAttemptLimiter(perSecond float64, burst int, idleTTL time.Duration) *AttemptLimiter {
	if burst < 1 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &AttemptLimiter{
		limiters: cache.New(idleTTL, idleTTL),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  idleTTL,
	}
}

// Allow reports whether an attempt for key may proceed at now.
func (l *AttemptLimiter) Allow(key string, now time.Time) bool {
	return l.limiter(key).AllowN(now, 1)
}

func (l *AttemptLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if x, ok := l.limiters.Get(key); ok {
		limiter := x.(*rate.Limiter)
		l.limiters.Set(key, limiter, l.idleTTL)
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Set(key, limiter, l.idleTTL)
	return limiter
}
