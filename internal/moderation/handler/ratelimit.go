package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/identity"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateKey names the bucket a request is counted against. An empty key
// exempts the request.
type RateKey func(c *gin.Context) string

// ClientIPKey buckets requests by client IP.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// PrincipalKey buckets requests carrying a valid access token by principal
// and exempts service principals, whose gate calls all arrive from a few
// backend addresses. Other requests fall back to the client IP.
func PrincipalKey(tokens *identity.TokenIssuer) RateKey {
	return func(c *gin.Context) string {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok {
			return c.ClientIP()
		}
		claims, err := tokens.Verify(raw)
		if err != nil {
			return c.ClientIP()
		}
		if claims.Role == identity.RoleService {
			return ""
		}
		return "principal:" + strconv.FormatInt(claims.PrincipalID, 10)
	}
}

// RateLimiter returns a Gin middleware that enforces token-bucket rate
// limiting per key; a nil key buckets by client IP. rps is the steady-state
// requests per second; burst is the maximum burst size. Keys idle for 10
// minutes are forgotten; the sweep stops when ctx is cancelled.
func RateLimiter(ctx context.Context, rps float64, burst int, key RateKey) gin.HandlerFunc {
	if key == nil {
		key = ClientIPKey
	}
	limiters := xsync.NewMapOf[string, *clientLimiter]()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().Add(-10 * time.Minute).UnixNano()
				limiters.Range(func(k string, l *clientLimiter) bool {
					if l.lastSeen.Load() < cutoff {
						limiters.Delete(k)
					}
					return true
				})
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		l, _ := limiters.LoadOrCompute(k, func() *clientLimiter {
			return &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		})
		l.lastSeen.Store(time.Now().UnixNano())

		if !l.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
