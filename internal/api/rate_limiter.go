package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/usdt-market/internal/errors"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused per-client limiter is kept
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex

	publicLimit rate.Limit
	adminLimit  rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter. A non-positive rate disables
// limiting for that class.
func NewRateLimiter(publicRPS, adminRPS int) *RateLimiter {
	return &RateLimiter{
		limiters:    make(map[string]*clientLimiter),
		publicLimit: limitFor(publicRPS),
		adminLimit:  limitFor(adminRPS),
		burstSize:   10,
		now:         time.Now,
	}
}

func limitFor(rps int) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// getLimiter returns the limiter for a client key, creating it on first use
func (rl *RateLimiter) getLimiter(key string, limit rate.Limit) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, cl := range rl.limiters {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastSweep = now
	}

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(limit, rl.burstSize)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimitMiddleware creates a middleware that enforces rate limiting.
// Clients presenting a bearer token get the admin budget; the token itself
// is checked later by the auth middleware.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "public:" + clientIP(r)
			limit := rl.publicLimit
			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				key = "admin:" + clientIP(r)
				limit = rl.adminLimit
			}

			limiter := rl.getLimiter(key, limit)
			if !limiter.Allow() {
				rlErr := apperrors.NewRateLimitError()
				respondError(w, rlErr.StatusCode, rlErr.Code, rlErr.Message, map[string]interface{}{
					"limit": float64(limiter.Limit()),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
