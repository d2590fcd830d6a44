package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"attendsheets/internal/metrics"
)

// SimpleTokenBucket is an in-memory per-client rate limiter. State is lost on
// restart and not shared between replicas.
type SimpleTokenBucket struct {
	name     string
	capacity int
	rate     int
	key      func(*gin.Context) string
	now      func() time.Time

	mu        sync.Mutex
	state     map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
// name labels rejections in metrics.
func NewSimpleTokenBucket(name string, capacity, perMinute int) *SimpleTokenBucket {
	if perMinute <= 0 {
		perMinute = 60
	}
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		name:     name,
		capacity: capacity,
		rate:     perMinute,
		key:      ClientIP,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// ClientIP keys requests by the client address gin resolves.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// WithKey replaces the function deriving the bucket key of a request.
func (l *SimpleTokenBucket) WithKey(key func(*gin.Context) string) *SimpleTokenBucket {
	l.key = key
	return l
}

// WithClock is for tests.
func (l *SimpleTokenBucket) WithClock(now func() time.Time) *SimpleTokenBucket {
	l.now = now
	return l
}

// GinMiddleware returns gin handler enforcing the limit. Rejected requests get
// 429 with a Retry-After header.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.allow(l.key(c))
		if !ok {
			metrics.RateLimited.WithLabelValues(l.name).Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please try again later"})
			return
		}
		c.Next()
	}
}

// refillWindow is how long an empty bucket takes to fill up again.
func (l *SimpleTokenBucket) refillWindow() time.Duration {
	return time.Duration(l.capacity) * (time.Minute / time.Duration(l.rate))
}

// sweep drops buckets idle for a whole refill window. They are full by then,
// so forgetting them is the same as starting over. Runs at most once per
// window.
func (l *SimpleTokenBucket) sweep(now time.Time) {
	window := l.refillWindow()
	if now.Sub(l.lastSweep) < window {
		return
	}
	l.lastSweep = now
	for key, b := range l.state {
		if now.Sub(b.last) >= window {
			delete(l.state, key)
		}
	}
}

// allow takes a token for key. When none is left it reports how long until
// the next one.
func (l *SimpleTokenBucket) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true, 0
	}
	perToken := time.Minute / time.Duration(l.rate)
	if refill := int(now.Sub(b.last) / perToken); refill > 0 {
		b.tokens += refill
		b.last = b.last.Add(time.Duration(refill) * perToken)
		if b.tokens >= l.capacity {
			b.tokens = l.capacity
			b.last = now
		}
	}
	if b.tokens <= 0 {
		wait := perToken - now.Sub(b.last)
		if wait < time.Second {
			wait = time.Second
		}
		return false, wait
	}
	b.tokens--
	return true, 0
}
