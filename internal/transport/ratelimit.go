package transport

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// TenantLimiter is a token bucket per tenant.
type TenantLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTenantLimiter allows perMinute requests per tenant with the given burst.
// A non-positive burst defaults to perMinute.
func NewTenantLimiter(perMinute, burst int) *TenantLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &TenantLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether tenantID may make a request now.
func (l *TenantLimiter) Allow(tenantID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[tenantID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[tenantID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware rejects requests over the tenant's budget with 429. It must run
// after authentication.
func (l *TenantLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, _ := TenantFromContext(r.Context())
		if !l.Allow(tenantID) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
