package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumistudy/lumi-backend/internal/config"
)

// ErrInvalidToken covers every token validation failure.
var ErrInvalidToken = errors.New("invalid token")

// TokenType distinguishes learner tokens from anything else the identity
// service may issue against the shared signing secret.
type TokenType string

const TokenTypeLearner TokenType = "learner"

// Claims extends JWT standard claims with app-specific fields. Tokens are
// issued by the platform's identity service; this service only validates.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	LearnerID uuid.UUID `json:"learner_id"`
}

// AuthService validates learner JWTs.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// ValidateToken parses and validates a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.LearnerID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
