package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pandeptwidyaop/hookrelay/pkg/utils"
)

const (
	visitorSweepInterval = 5 * time.Minute
	visitorIdleTimeout   = 10 * time.Minute
)

// RateLimiter throttles control-plane requests per client address.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit // requests per second
	burst    int        // max burst size
	done     chan struct{}
	once     sync.Once

	// trusted lists proxies whose forwarding headers identify the client.
	trusted []*net.IPNet
}

// visitor tracks rate limit state for a single client address.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter.
// r: maximum requests per second (e.g., 0.5 = 1 request per 2 seconds)
// b: maximum burst size (e.g., 3 = allow 3 requests immediately)
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
		done:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// TrustProxies makes the limiter key on forwarded client addresses for requests
// arriving from the given proxies. Call it before serving traffic.
func (rl *RateLimiter) TrustProxies(nets []*net.IPNet) *RateLimiter {
	rl.trusted = nets
	return rl
}

// Close stops the idle visitor sweep.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) getVisitor(identifier string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[identifier]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[identifier] = &visitor{
			limiter:  limiter,
			lastSeen: time.Now(),
		}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Limit wraps an HTTP handler with rate limiting based on client address.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.getVisitor(utils.ClientIP(r, rl.trusted))
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// cleanupLoop periodically removes idle visitors.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(visitorSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastSeen) > visitorIdleTimeout {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}
