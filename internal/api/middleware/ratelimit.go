package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit bounds request rates per API key on the submission endpoints.
// Limiters are cached per key id and rebuilt after a TTL so revoked keys
// do not pin memory forever.
func RateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limiters := sync.Map{} // apiKeyID -> *cachedLimiter

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, ok := APIKeyIDFromContext(r.Context())
			if !ok {
				authError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			limiter := getOrCreateLimiter(&limiters, keyID, limit, burst, 5*time.Minute)
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func getOrCreateLimiter(limiters *sync.Map, keyID string, limit rate.Limit, burst int, ttl time.Duration) *rate.Limiter {
	if cached, ok := limiters.Load(keyID); ok {
		c := cached.(*cachedLimiter)
		if time.Now().Before(c.expiresAt) {
			return c.limiter
		}
		// expired, need to create new
	}

	// Sweep expired entries so keys that never return are released.
	now := time.Now()
	limiters.Range(func(k, v any) bool {
		if now.After(v.(*cachedLimiter).expiresAt) {
			limiters.Delete(k)
		}
		return true
	})

	limiter := rate.NewLimiter(limit, burst)
	limiters.Store(keyID, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(ttl),
	})
	return limiter
}
