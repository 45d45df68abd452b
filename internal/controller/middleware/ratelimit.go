package middleware

import (
	"net/http"
	"sync"
	"time"

	"forgeplane/internal/store"

	"golang.org/x/time/rate"
)

// limiterTTL bounds how long a customer's limiter is kept so rate
// changes made through the store take effect without a restart.
const limiterTTL = 5 * time.Minute

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

// RateLimit throttles job submissions per customer. Customers with
// RateLimit=0 are unlimited.
func RateLimit() func(http.Handler) http.Handler {
	var limiters sync.Map // customer ID -> *cachedLimiter

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customer, ok := CustomerFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if customer.RateLimit > 0 {
				limiter := getOrCreateLimiter(&limiters, customer)
				if !limiter.Allow() {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func getOrCreateLimiter(limiters *sync.Map, customer *store.Customer) *rate.Limiter {
	id := customer.ID.String()
	if cached, ok := limiters.Load(id); ok {
		c := cached.(*cachedLimiter)
		if time.Now().Before(c.expiresAt) {
			return c.limiter
		}
	}

	burst := customer.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(customer.RateLimit), burst)
	limiters.Store(id, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(limiterTTL),
	})
	return limiter
}
