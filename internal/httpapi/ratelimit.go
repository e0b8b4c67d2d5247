package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per client. Clients are identified by
// user id when logged in, remote address otherwise. Idle buckets are
// dropped by a background sweep.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*clientBucket

	stop chan struct{}
}

type clientBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	rl := &rateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*clientBucket),
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *rateLimiter) Stop() { close(rl.stop) }

func (rl *rateLimiter) allow(clientID string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[clientID]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[clientID] = b
	}
	b.lastAccess = time.Now()
	rl.mu.Unlock()
	return b.limiter.Allow()
}

func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.mu.Lock()
			for id, b := range rl.buckets {
				if b.lastAccess.Before(cutoff) {
					delete(rl.buckets, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// middleware rejects over-limit clients with 429. It runs after the
// session middleware so logged-in clients are keyed by user id.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := ""
		if rc := requestContext(r); rc != nil {
			clientID = rc.User().ID()
		}
		if clientID == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			clientID = host
		}
		if !rl.allow(clientID) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"code":  0,
				"error": "too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
