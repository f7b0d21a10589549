package middleware

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"orderline-be/internal/apperror"
	"orderline-be/internal/auth"
	"orderline-be/internal/transport"

	"golang.org/x/time/rate"
)

// Order creation is public and writes to the database, so it gets its own
// tighter bucket.
const (
	limitStrict = rate.Limit(2)
	burstStrict = 5

	visitorTTL      = 3 * time.Minute
	cleanupInterval = time.Minute
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller identity and tier. Idle
// buckets are dropped by a background loop that stops on Close.
type RateLimiter struct {
	general rate.Limit
	burst   int

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	running bool
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := newRateLimiter(rps, burst, time.Now)
	rl.running = true
	go rl.cleanupLoop(cleanupInterval)
	return rl
}

func newRateLimiter(rps float64, burst int, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		general:  rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Close stops the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stop)
	})
	if rl.running {
		<-rl.done
	}
}

// Middleware rejects requests over the caller's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, burst, tier := rl.resolveTier(r)
		key := fmt.Sprintf("%s:%s", identity(r), tier)

		if !rl.getVisitor(key, limit, burst).Allow() {
			w.Header().Set("Retry-After", "1")
			transport.WriteError(w, r, apperror.RateLimited())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) resolveTier(r *http.Request) (rate.Limit, int, string) {
	if r.Method == http.MethodPost && r.URL.Path == "/orders" {
		return limitStrict, burstStrict, "strict"
	}
	return rl.general, rl.burst, "general"
}

// getVisitor retrieves or creates the limiter for key.
func (rl *RateLimiter) getVisitor(key string, limit rate.Limit, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	defer close(rl.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes visitors idle for longer than visitorTTL.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-visitorTTL)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

// identity keys authenticated callers by user and everyone else by remote
// IP. Client supplied ids are ignored so they cannot mint fresh buckets.
func identity(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return "user:" + p.UserID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}
