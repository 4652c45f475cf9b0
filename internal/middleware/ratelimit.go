package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Rule is a fixed-window allowance for one endpoint class.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Default endpoint classes. Analysis is expensive upstream so it gets the
// tightest budget; response submission is throttled per second to blunt
// scripted spam without slowing a real respondent.
var defaultRules = map[string]Rule{
	"analyze":   {Limit: 5, Window: time.Minute},
	"responses": {Limit: 1, Window: time.Second},
	"default":   {Limit: 120, Window: time.Minute},
}

type window struct {
	count int
	reset time.Time
}

// RateLimiter applies per-IP fixed-window limits to the API. State is in
// memory; a multi-instance deployment would need a shared store, which is
// out of scope here.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	rules   map[string]Rule
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		rules:   defaultRules,
		now:     time.Now,
	}
}

func classify(path string) string {
	switch {
	case strings.HasSuffix(path, "/analyze"):
		return "analyze"
	case strings.HasPrefix(path, "/api/responses"):
		return "responses"
	default:
		return "default"
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces the limits on /api/ paths. Other paths (health,
// version) pass through untouched.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		class := classify(r.URL.Path)
		rule := l.rules[class]
		key := class + "|" + clientIP(r)

		allowed, remaining, reset := l.take(key, rule)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !allowed {
			retryAfter := int(time.Until(reset).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": fmt.Sprintf("rate limit exceeded, retry in %ds", retryAfter),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) take(key string, rule Rule) (allowed bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	win, ok := l.windows[key]
	if !ok || now.After(win.reset) {
		win = &window{reset: now.Add(rule.Window)}
		l.windows[key] = win
	}
	if win.count >= rule.Limit {
		return false, 0, win.reset
	}
	win.count++
	return true, rule.Limit - win.count, win.reset
}

// Sweep drops expired windows. Called periodically from the scheduler so the
// map does not grow with every client ever seen.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, win := range l.windows {
		if now.After(win.reset) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
