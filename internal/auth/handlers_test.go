package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fdg312/fitdiary/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

func setupTestService(mode string, required bool) (*Service, *config.Config) {
	cfg := &config.Config{
		AuthMode:      mode,
		AuthRequired:  required,
		JWTSecret:     "test-secret-key-for-testing-only",
		JWTIssuer:     "fitdiary-test",
		JWTTTLMinutes: 60,
	}
	return NewService(cfg), cfg
}

func TestHandleDevAuth(t *testing.T) {
	service, _ := setupTestService(config.AuthModeDev, true)
	handler := NewHandlers(service)

	t.Run("EmptyBody", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/auth/dev", nil)
		w := httptest.NewRecorder()

		handler.HandleDevAuth(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}

		var resp DevAuthResponse
		json.NewDecoder(w.Body).Decode(&resp)

		if resp.AccessToken == "" {
			t.Fatal("expected access_token not empty")
		}
		if resp.UserID != "dev-user" {
			t.Errorf("expected user_id 'dev-user', got '%s'", resp.UserID)
		}

		sub, err := service.VerifyJWT(resp.AccessToken)
		if err != nil {
			t.Fatalf("expected issued token to verify, got %v", err)
		}
		if sub != "dev-user" {
			t.Errorf("expected sub 'dev-user', got '%s'", sub)
		}
	})

	t.Run("CustomUser", func(t *testing.T) {
		body, _ := json.Marshal(DevAuthRequest{UserID: "alice"})
		req := httptest.NewRequest("POST", "/v1/auth/dev", bytes.NewReader(body))
		w := httptest.NewRecorder()

		handler.HandleDevAuth(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}

		var resp DevAuthResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.UserID != "alice" {
			t.Errorf("expected user_id 'alice', got '%s'", resp.UserID)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/auth/dev", strings.NewReader("{"))
		w := httptest.NewRecorder()

		handler.HandleDevAuth(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

func TestHandleDevAuthDisabled(t *testing.T) {
	service, _ := setupTestService(config.AuthModeNone, false)
	handler := NewHandlers(service)

	req := httptest.NewRequest("POST", "/v1/auth/dev", nil)
	w := httptest.NewRecorder()

	handler.HandleDevAuth(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestVerifyJWT(t *testing.T) {
	service, cfg := setupTestService(config.AuthModeDev, true)

	t.Run("Expired", func(t *testing.T) {
		service.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		defer func() { service.now = time.Now }()

		token, err := service.generateJWTWithTTL("bob", time.Minute)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		service.now = time.Now

		if _, err := service.VerifyJWT(token); err != ErrInvalidToken {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": "bob",
			"iss": "someone-else",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))

		if _, err := service.VerifyJWT(token); err != ErrInvalidToken {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": "bob",
			"iss": cfg.JWTIssuer,
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))

		if _, err := service.VerifyJWT(token); err != ErrInvalidToken {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestMiddleware(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetUserID(r.Context())
		w.Write([]byte(userID))
	})

	t.Run("NoneModeUsesDefaultUser", func(t *testing.T) {
		service, cfg := setupTestService(config.AuthModeNone, false)
		h := NewMiddleware(cfg, service).Wrap(echo)

		req := httptest.NewRequest("GET", "/v1/diary/meals", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Body.String() != DefaultUserID {
			t.Fatalf("expected user %q, got %q", DefaultUserID, w.Body.String())
		}
	})

	t.Run("RequiredRejectsMissingToken", func(t *testing.T) {
		service, cfg := setupTestService(config.AuthModeDev, true)
		h := NewMiddleware(cfg, service).Wrap(echo)

		req := httptest.NewRequest("GET", "/v1/diary/meals", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", w.Code)
		}
	})

	t.Run("RequiredAllowsPublicPath", func(t *testing.T) {
		service, cfg := setupTestService(config.AuthModeDev, true)
		h := NewMiddleware(cfg, service).Wrap(echo)

		req := httptest.NewRequest("GET", "/healthz", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("RequiredAcceptsToken", func(t *testing.T) {
		service, cfg := setupTestService(config.AuthModeDev, true)
		h := NewMiddleware(cfg, service).Wrap(echo)

		resp, err := service.SignInDev(context.Background(), &DevAuthRequest{UserID: "carol"})
		if err != nil {
			t.Fatalf("sign in: %v", err)
		}

		req := httptest.NewRequest("GET", "/v1/diary/meals", nil)
		req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK || w.Body.String() != "carol" {
			t.Fatalf("expected 200/carol, got %d/%s", w.Code, w.Body.String())
		}
	})

	t.Run("OptionalFallsBackToDefault", func(t *testing.T) {
		service, cfg := setupTestService(config.AuthModeDev, false)
		h := NewMiddleware(cfg, service).Wrap(echo)

		req := httptest.NewRequest("GET", "/v1/diary/meals", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Body.String() != DefaultUserID {
			t.Fatalf("expected user %q, got %q", DefaultUserID, w.Body.String())
		}
	})

	t.Run("OptionalRejectsBadToken", func(t *testing.T) {
		service, cfg := setupTestService(config.AuthModeDev, false)
		h := NewMiddleware(cfg, service).Wrap(echo)

		req := httptest.NewRequest("GET", "/v1/diary/meals", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", w.Code)
		}
	})
}
