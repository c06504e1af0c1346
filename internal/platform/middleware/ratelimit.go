package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
	// IdleTTL is how long an unused client limiter is kept.
	IdleTTL time.Duration
}

// DefaultLoginRateLimit returns the login throttle: 10 attempts per minute
// with a burst of 5.
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{PerMinute: 10, Burst: 5, IdleTTL: 10 * time.Minute}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per client key.
type limiterStore struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &limiterStore{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(float64(cfg.PerMinute) / 60),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		now:     time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > s.idleTTL {
		for k, cl := range s.clients {
			if now.Sub(cl.lastSeen) > s.idleTTL {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimit returns middleware that throttles requests per client IP.
// Only methods listed in methods are counted; with none given every
// request is.
func RateLimit(cfg RateLimitConfig, methods ...string) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	counted := make(map[string]bool, len(methods))
	for _, m := range methods {
		counted[m] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(counted) > 0 && !counted[c.Request().Method] {
				return next(c)
			}

			lim := store.get(c.RealIP())
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.PerMinute))

			res := lim.ReserveN(store.now(), 1)
			if delay := res.DelayFrom(store.now()); delay > 0 {
				res.CancelAt(store.now())
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "Terlalu banyak percobaan. Coba lagi nanti.")
			}

			return next(c)
		}
	}
}
