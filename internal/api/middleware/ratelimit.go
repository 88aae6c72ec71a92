package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/config"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierPublic RateLimitTier = "public"
	// TierLogin allows a burst of LoginPer15Minutes attempts and refills one
	// token every 15m/limit.
	TierLogin RateLimitTier = "login"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTTL         = 15 * time.Minute
)

// RateLimiter keeps one token bucket per tier and client address. Addresses
// from X-Forwarded-For and X-Real-IP are honoured only when the direct peer
// sits in a trusted proxy range.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limits   map[RateLimitTier]tierLimit
	trusted  []*net.IPNet

	stopOnce sync.Once
	stop     chan struct{}
}

type tierLimit struct {
	every time.Duration
	burst int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter starts a background sweep of idle buckets. Call Stop when
// the server shuts down.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	l := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limits:   make(map[RateLimitTier]tierLimit),
		stop:     make(chan struct{}),
	}
	if cfg.PublicPerMinute > 0 {
		l.limits[TierPublic] = tierLimit{every: time.Minute / time.Duration(cfg.PublicPerMinute), burst: cfg.PublicPerMinute}
	}
	if cfg.LoginPer15Minutes > 0 {
		l.limits[TierLogin] = tierLimit{every: 15 * time.Minute / time.Duration(cfg.LoginPer15Minutes), burst: cfg.LoginPer15Minutes}
	}
	for _, cidr := range cfg.TrustedProxyCIDRs {
		if _, network, err := net.ParseCIDR(strings.TrimSpace(cidr)); err == nil {
			l.trusted = append(l.trusted, network)
		}
	}

	go l.cleanupLoop()
	return l
}

// Allow reports whether the client behind r may proceed in tier. A tier with
// no configured limit always allows.
func (l *RateLimiter) Allow(tier RateLimitTier, r *http.Request) bool {
	if l == nil {
		return true
	}
	limit, ok := l.limits[tier]
	if !ok {
		return true
	}
	return l.limiter(tier, limit, l.clientKey(r)).Allow()
}

// AllowLogin applies the login tier.
func (l *RateLimiter) AllowLogin(r *http.Request) bool {
	return l.Allow(TierLogin, r)
}

// RetryAfter is the wait, in whole seconds, until one more token is available.
func (l *RateLimiter) RetryAfter(tier RateLimitTier) string {
	if l == nil {
		return "60"
	}
	limit, ok := l.limits[tier]
	if !ok {
		return "60"
	}
	seconds := int(limit.every.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func (l *RateLimiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *RateLimiter) limiter(tier RateLimitTier, limit tierLimit, key string) *rate.Limiter {
	lookup := string(tier) + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.limiters[lookup]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Every(limit.every), limit.burst)
	l.limiters[lookup] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (l *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stop:
			return
		}
	}
}

func (l *RateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.limiters, key)
		}
	}
}

func (l *RateLimiter) clientKey(r *http.Request) string {
	if r == nil {
		return ""
	}

	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if l.isTrustedProxy(remoteIP) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	return remoteIP
}

func (l *RateLimiter) isTrustedProxy(ip string) bool {
	if len(l.trusted) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range l.trusted {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// RateLimit applies the public tier to every request except health probes.
func RateLimit(limiter *RateLimiter, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(TierPublic, r) {
				w.Header().Set("Retry-After", limiter.RetryAfter(TierPublic))
				problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", nil, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
