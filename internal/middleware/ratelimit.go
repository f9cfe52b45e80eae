package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ownerBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// OwnerLimiter hands out one token bucket per owner. Buckets idle longer than
// the prune age are dropped, so the map is bounded by recently active owners.
type OwnerLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[uuid.UUID]*ownerBucket
}

func NewOwnerLimiter(rps float64, burst int) *OwnerLimiter {
	return &OwnerLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[uuid.UUID]*ownerBucket),
	}
}

func (l *OwnerLimiter) get(owner uuid.UUID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[owner]
	if !ok {
		b = &ownerBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[owner] = b
	}
	b.lastSeen = l.now()
	return b.lim
}

// Allow reports whether owner may make another request now.
func (l *OwnerLimiter) Allow(owner uuid.UUID) bool {
	return l.get(owner).Allow()
}

// Len is the number of owners currently tracked.
func (l *OwnerLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Prune drops the buckets of owners not seen for maxIdle and returns how many
// were removed. A dropped bucket has refilled long ago, so the owner starts
// again with a full burst either way.
func (l *OwnerLimiter) Prune(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for owner, b := range l.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(l.limiters, owner)
			n++
		}
	}
	return n
}

// RunPruner calls Prune every interval until ctx is done.
func (l *OwnerLimiter) RunPruner(ctx context.Context, interval, maxIdle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Prune(maxIdle); n > 0 {
				logrus.WithField("pruned", n).Debug("ratelimit: dropped idle owners")
			}
		}
	}
}

// RateLimit throttles state-changing requests per authenticated owner. Reads
// pass through. Must run after RequireAuth.
func RateLimit(l *OwnerLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if !l.Allow(OwnerID(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, slow down", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}
