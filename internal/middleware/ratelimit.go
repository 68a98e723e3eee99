package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	limit int
	per   time.Duration

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

type window struct {
	count int
	ends  time.Time
}

func NewLimiter(limit int, per time.Duration) *Limiter {
	return &Limiter{limit: limit, per: per, windows: make(map[string]*window)}
}

// Allow records one request for key. When the window is full it reports how
// long until the next one opens.
func (l *Limiter) Allow(key string, now time.Time) (remaining int, retryAfter time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.per {
		for k, w := range l.windows {
			if !now.Before(w.ends) {
				delete(l.windows, k)
			}
		}
		l.lastSweep = now
	}

	w, found := l.windows[key]
	if !found || !now.Before(w.ends) {
		w = &window{ends: now.Add(l.per)}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return 0, w.ends.Sub(now), false
	}
	w.count++
	return l.limit - w.count, 0, true
}

// RateLimit allows limit requests per client IP in each window of per.
// A non-positive limit disables the check. The client IP is read from
// RemoteAddr, so proxies must be resolved by an earlier middleware.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := NewLimiter(limit, per)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, retry, ok := limiter.Allow(clientKey(r), time.Now())
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				secs := int(retry/time.Second) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"}}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
