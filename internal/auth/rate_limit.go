package auth

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"session-auth/internal/observability"
)

// maxTrackedClients bounds limiter memory; idle clients are dropped first.
const maxTrackedClients = 5000

// RateLimiter admits at most limit credential attempts per client within a
// sliding window. Counts are per process.
type RateLimiter struct {
	limit   int
	window  time.Duration
	key     func(*http.Request) string
	metrics *observability.Metrics
	now     func() time.Time

	mu      sync.Mutex
	attempt map[string][]time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RateLimiter{
		limit:   limit,
		window:  window,
		key:     observability.ClientIP,
		now:     time.Now,
		attempt: make(map[string][]time.Time),
	}
}

// WithMetrics counts rejected attempts under auth_operations_total.
func (l *RateLimiter) WithMetrics(metrics *observability.Metrics) *RateLimiter {
	l.metrics = metrics
	return l
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(l.key(r), l.now().UTC())
		if !ok {
			l.metrics.AuthOutcome("rate_limit", "blocked")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow records an attempt for client at now, or reports how long until the
// oldest attempt in the window ages out.
func (l *RateLimiter) allow(client string, now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := dropBefore(l.attempt[client], cutoff)
	if len(recent) >= l.limit {
		l.attempt[client] = recent
		return false, max(recent[0].Add(l.window).Sub(now), time.Second)
	}

	l.attempt[client] = append(recent, now)
	if len(l.attempt) > maxTrackedClients {
		l.forgetIdle(cutoff)
	}
	return true, 0
}

func (l *RateLimiter) forgetIdle(cutoff time.Time) {
	for client, attempts := range l.attempt {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(cutoff) {
			delete(l.attempt, client)
		}
	}
}

// dropBefore returns the suffix of attempts (oldest first) newer than cutoff.
func dropBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	return attempts[i:]
}
