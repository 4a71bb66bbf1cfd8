package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/fitdiary/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrDevDisabled  = errors.New("dev auth disabled")
)

// DefaultUserID is used for every request when AUTH_MODE=none.
const DefaultUserID = "default"

const devUserID = "dev-user"

// Service — сервис авторизации
type Service struct {
	config *config.Config
	now    func() time.Time
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		now:    time.Now,
	}
}

// SignInDev — dev-авторизация, выдает JWT на JWT_TTL_MINUTES
func (s *Service) SignInDev(ctx context.Context, req *DevAuthRequest) (*DevAuthResponse, error) {
	_ = ctx

	if s.config.AuthMode != config.AuthModeDev {
		return nil, ErrDevDisabled
	}

	userID := devUserID
	if req != nil && strings.TrimSpace(req.UserID) != "" {
		userID = strings.TrimSpace(req.UserID)
	}

	ttl := time.Duration(s.config.JWTTTLMinutes) * time.Minute
	accessToken, err := s.generateJWTWithTTL(userID, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dev JWT: %w", err)
	}

	return &DevAuthResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		UserID:      userID,
	}, nil
}

func (s *Service) generateJWTWithTTL(userID string, ttl time.Duration) (string, error) {
	now := s.now()
	exp := now.Add(ttl)

	claims := jwt.MapClaims{
		"sub": userID,
		"iss": s.config.JWTIssuer,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// VerifyJWT — проверка JWT токена, возвращает sub
func (s *Service) VerifyJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer(s.config.JWTIssuer), jwt.WithExpirationRequired())

	if err != nil {
		return "", ErrInvalidToken
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		sub, ok := claims["sub"].(string)
		if !ok || sub == "" {
			return "", ErrInvalidToken
		}
		return sub, nil
	}

	return "", ErrInvalidToken
}
