package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Policy is a fixed-window limit for one group of routes
type Policy struct {
	Name    string
	Window  time.Duration
	MaxReqs int
	Message string
}

var (
	SignupPolicy = Policy{Name: "signup", Window: time.Hour, MaxReqs: 3, Message: "Too many signup attempts, please try again later"}
	LoginPolicy  = Policy{Name: "login", Window: 15 * time.Minute, MaxReqs: 5, Message: "Too many login attempts, please try again later"}
	APIPolicy    = Policy{Name: "api", Window: time.Minute, MaxReqs: 100, Message: "Too many requests, please try again later"}
)

type window struct {
	start time.Time
	count int
}

// FixedWindowLimiter counts requests per key in fixed windows that start at the key's first request
type FixedWindowLimiter struct {
	mu      sync.Mutex
	policy  Policy
	windows map[string]*window
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewFixedWindowLimiter creates a limiter and starts its cleanup loop
func NewFixedWindowLimiter(policy Policy) *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		policy:  policy,
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow counts a request for key and reports whether it fits in the current window,
// how many requests remain and when the window resets.
func (l *FixedWindowLimiter) Allow(key string) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.policy.Window)) {
		w = &window{start: now}
		l.windows[key] = w
	}
	reset := w.start.Add(l.policy.Window)

	if w.count >= l.policy.MaxReqs {
		return false, 0, reset
	}
	w.count++
	return true, l.policy.MaxReqs - w.count, reset
}

// Stop ends the cleanup loop
func (l *FixedWindowLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// cleanup periodically removes expired windows to prevent memory leaks
func (l *FixedWindowLimiter) cleanup() {
	interval := l.policy.Window
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *FixedWindowLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.start.Add(l.policy.Window)) {
			delete(l.windows, key)
		}
	}
}

// RateLimit rejects requests over the limiter's policy with 429 before any handler runs
func RateLimit(limiter *FixedWindowLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, reset := limiter.Allow(limiter.policy.Name + "|" + keyFunc(r))

			resetIn := int(time.Until(reset).Seconds())
			if resetIn < 0 {
				resetIn = 0
			}
			w.Header().Set("RateLimit-Limit", strconv.Itoa(limiter.policy.MaxReqs))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(resetIn))

			if !allowed {
				respondWithError(w, http.StatusTooManyRequests, limiter.policy.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIPKey extracts the client address for rate limiting.
// chi's RealIP middleware has already folded proxy headers into RemoteAddr.
func GetIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
