package httpserver

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fdg312/fitdiary/internal/config"
	"golang.org/x/time/rate"
)

// idleTTL — через сколько без запросов клиент удаляется из таблицы лимитеров
const idleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterStore struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiterStore(rps int, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (s *rateLimiterStore) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > idleTTL {
		s.sweep(now)
	}

	c, ok := s.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.clients[ip] = c
	}
	c.lastSeen = now

	return c.limiter.AllowN(now, 1)
}

// sweep drops clients idle for longer than idleTTL. Caller holds mu.
func (s *rateLimiterStore) sweep(now time.Time) {
	for ip, c := range s.clients {
		if now.Sub(c.lastSeen) > idleTTL {
			delete(s.clients, ip)
		}
	}
	s.lastSweep = now
}

// RateLimitMiddleware enforces per-IP rate limiting via token bucket.
// /healthz is never limited. If RateLimitRPS <= 0, the middleware is a pass-through.
func RateLimitMiddleware(cfg *config.Config, next http.Handler) http.Handler {
	if cfg.RateLimitRPS <= 0 {
		return next
	}

	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = cfg.RateLimitRPS
	}

	store := newRateLimiterStore(cfg.RateLimitRPS, burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || store.allow(clientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "rate_limited",
				"message": "Too many requests",
			},
		})
	})
}

// clientIP prefers the first X-Forwarded-For hop (proxied setups), then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
