package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ByClientIP counts requests per client address.
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByParamOrIP counts requests per value of a path parameter, such as the
// user ID, and falls back to the client address when the route has none.
func ByParamOrIP(param string) KeyFunc {
	return func(c *gin.Context) string {
		if v := c.Param(param); v != "" {
			return param + ":" + v
		}
		return ByClientIP(c)
	}
}

// KeyedRateLimiter stores one token bucket per key. Buckets that have not
// been used for idle are dropped.
type KeyedRateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	r        rate.Limit
	b        int
	idle     time.Duration
}

// NewKeyedRateLimiter creates a new KeyedRateLimiter.
func NewKeyedRateLimiter(r rate.Limit, b int, idle time.Duration) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: cache.New(idle, 2*idle),
		r:        r,
		b:        b,
		idle:     idle,
	}
}

// GetLimiter returns the bucket for key, creating it on first use. Every
// call pushes back the bucket's expiry.
func (l *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, found := l.limiters.Get(key); found {
		limiter := v.(*rate.Limiter)
		l.limiters.Set(key, limiter, l.idle)
		return limiter
	}
	limiter := rate.NewLimiter(l.r, l.b)
	l.limiters.Set(key, limiter, l.idle)
	return limiter
}

// Len reports how many buckets are live.
func (l *KeyedRateLimiter) Len() int {
	return l.limiters.ItemCount()
}

// RateLimiter is a middleware that rejects requests over the per-key rate
// with 429 and a Retry-After hint.
func RateLimiter(limiter *KeyedRateLimiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		reservation := limiter.GetLimiter(key(c)).Reserve()
		if !reservation.OK() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
