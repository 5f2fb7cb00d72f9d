package auth

import (
	"errors"
	"time"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidAlgorithm = errors.New("invalid signing algorithm")
	ErrEmptySecretKey   = errors.New("secret key cannot be empty")
	ErrWeakSecretKey    = errors.New("secret key must be at least 32 characters")
	ErrInvalidDuration  = errors.New("duration must be positive")
)

// Claims represents the session token claims. ImpersonatedBy and
// ImpersonatedAt are only present on impersonation tokens.
type Claims struct {
	UserID         uuid.UUID       `json:"user_id"`
	Email          string          `json:"email"`
	Role           domain.UserRole `json:"role"`
	ImpersonatedBy *uuid.UUID      `json:"impersonated_by,omitempty"`
	ImpersonatedAt *time.Time      `json:"impersonated_at,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 session tokens
type TokenService struct {
	secretKey []byte
}

// NewTokenService creates a token service. The secret must be at least 32
// characters to resist brute forcing.
func NewTokenService(secretKey string) (*TokenService, error) {
	if secretKey == "" {
		return nil, ErrEmptySecretKey
	}
	if len(secretKey) < 32 {
		return nil, ErrWeakSecretKey
	}
	return &TokenService{secretKey: []byte(secretKey)}, nil
}

// GenerateToken issues a token for a normal login session
func (s *TokenService) GenerateToken(user *domain.User, ttl time.Duration) (string, time.Time, error) {
	return s.generate(user, ttl, nil)
}

// GenerateImpersonationToken issues a token acting as the target user,
// carrying the admin's identity in the impersonation claims.
func (s *TokenService) GenerateImpersonationToken(target *domain.User, adminID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	return s.generate(target, ttl, &adminID)
}

func (s *TokenService) generate(user *domain.User, ttl time.Duration, impersonatedBy *uuid.UUID) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, ErrInvalidDuration
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if impersonatedBy != nil {
		claims.ImpersonatedBy = impersonatedBy
		claims.ImpersonatedAt = &now
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a session token and returns its claims
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAlgorithm
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
