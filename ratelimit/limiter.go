package ratelimit

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Thomas5624/echo-backend/models"
)

// Limiter admits at most max requests per window for each key.
type Limiter struct {
	max       int
	window    time.Duration
	clients   *xsync.MapOf[string, *client]
	lastSweep atomic.Int64
	logger    *log.Entry
}

// client is one key's fixed window. The limiter holds max tokens and never refills, so
// the budget only comes back when the window rolls over.
type client struct {
	start    time.Time
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		max:     max,
		window:  window,
		clients: xsync.NewMapOf[string, *client](),
		logger:  log.WithFields(log.Fields{"module": "ratelimit"}),
	}
}

// Allow reports whether a request from key at now is admitted. Each key's window starts at
// its first request and lasts one window.
func (l *Limiter) Allow(key string, now time.Time) bool {
	l.sweep(now)

	c, _ := l.clients.Compute(key, func(old *client, loaded bool) (*client, bool) {
		if loaded && now.Sub(old.start) < l.window {
			return old, false
		}
		return &client{start: now, limiter: rate.NewLimiter(0, l.max)}, false
	})
	c.lastSeen.Store(now.UnixNano())

	return c.limiter.AllowN(now, 1)
}

// sweep drops keys idle for two windows; it runs at most once per window.
func (l *Limiter) sweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(l.window) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	cutoff := now.Add(-2 * l.window).UnixNano()
	l.clients.Range(func(key string, c *client) bool {
		if c.lastSeen.Load() < cutoff {
			l.clients.Delete(key)
		}
		return true
	})
}

func (l *Limiter) Size() int {
	return l.clients.Size()
}

// Middleware rejects requests over the limit before any downstream handler runs.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.Allow(ip, time.Now()) {
			l.logger.WithFields(log.Fields{"client": ip, "path": c.FullPath()}).Debug("request rejected")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   models.CategoryRateLimited,
				"message": "Too many requests, please try again later.",
			})
			return
		}
		c.Next()
	}
}
