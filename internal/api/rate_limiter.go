package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/chainsage-alerts/internal/errors"
	"github.com/chainsage-alerts/internal/logging"
	"golang.org/x/time/rate"
)

// rateWindow is the period RequestsPerMinute is measured over
const rateWindow = time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP. Idle clients are swept between Start and Stop.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter

	limit rate.Limit
	burst int
	now   func() time.Time

	sweepInterval time.Duration
	stopCh        chan struct{}
	done          chan struct{}
}

// NewRateLimiter allows requestsPerMinute per client, all of which may arrive in one burst
func NewRateLimiter(requestsPerMinute int, sweepInterval time.Duration) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 100
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	return &RateLimiter{
		limiters:      make(map[string]*clientLimiter),
		limit:         rate.Every(rateWindow / time.Duration(requestsPerMinute)),
		burst:         requestsPerMinute,
		now:           time.Now,
		sweepInterval: sweepInterval,
	}
}

// Allow reports whether the client may make a request now
func (rl *RateLimiter) Allow(client string) bool {
	now := rl.now()

	rl.mu.Lock()
	entry, exists := rl.limiters[client]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[client] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Sweep drops clients idle for longer than the rate window
func (rl *RateLimiter) Sweep() int {
	cutoff := rl.now().Add(-rateWindow)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for client, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, client)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked clients
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Start launches the background sweeper. Calling Start twice has no effect.
func (rl *RateLimiter) Start() {
	rl.mu.Lock()
	if rl.stopCh != nil {
		rl.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	rl.stopCh = stop
	rl.done = done
	rl.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(rl.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if removed := rl.Sweep(); removed > 0 {
					logging.WithField("removed", removed).Debug("Swept idle rate limit entries")
				}
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	stop, done := rl.stopCh, rl.done
	rl.stopCh, rl.done = nil, nil
	rl.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// clientIP extracts the remote IP without its port
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces per-IP rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				respondServiceError(w, r, apperrors.NewRateLimitError(rl.burst))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
