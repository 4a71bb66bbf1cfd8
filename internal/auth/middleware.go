package auth

import (
	"log"
	"net/http"
	"strings"

	"github.com/fdg312/fitdiary/internal/config"
)

// Middleware — middleware для проверки авторизации
type Middleware struct {
	config  *config.Config
	service *Service
}

func NewMiddleware(cfg *config.Config, service *Service) *Middleware {
	return &Middleware{
		config:  cfg,
		service: service,
	}
}

// Wrap picks the auth policy for the configured mode.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	switch {
	case m.config.AuthMode == config.AuthModeNone:
		return m.DefaultUser(next)
	case m.config.AuthRequired:
		return m.RequireAuth(next)
	default:
		return m.OptionalAuth(next)
	}
}

// DefaultUser attaches DefaultUserID to every request.
func (m *Middleware) DefaultUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), DefaultUserID)))
	})
}

// RequireAuth — middleware для защиты эндпоинтов
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := m.authenticateHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// OptionalAuth validates Bearer token only when it is provided.
// Without token, requests run as DefaultUserID.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Public endpoints must always be reachable.
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if strings.TrimSpace(authHeader) == "" {
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), DefaultUserID)))
			return
		}

		userID, err := m.authenticateHeader(authHeader)
		if err != nil {
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		log.Printf("auth token accepted: sub=%s method=%s path=%s", userID, r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (m *Middleware) authenticateHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrInvalidToken
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrInvalidToken
	}

	return m.service.VerifyJWT(parts[1])
}

func isPublicPath(path string) bool {
	return path == "/healthz" || strings.HasPrefix(path, "/v1/auth/")
}
