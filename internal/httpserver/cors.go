package httpserver

import (
	"net/http"
	"strings"

	"github.com/fdg312/fitdiary/internal/config"
)

const (
	corsAllowMethods = "GET,POST,DELETE,OPTIONS"
	// Idempotency-Key нужен клиенту для повторов apply
	corsAllowHeaders = "Authorization,Content-Type,Idempotency-Key"
	corsMaxAge       = "600"
)

// CORSMiddleware adds CORS headers for allowed origins and answers preflights.
func CORSMiddleware(cfg *config.Config, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(cfg.CORSAllowedOrigins))
	for _, o := range cfg.CORSAllowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		ok := origin != "" && allowed[origin]

		if ok {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if cfg.CORSAllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method != http.MethodOptions || origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		// preflight: unknown origin gets 204 without CORS headers, browser blocks it
		if ok {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
