package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/clearbill/billing-api/internal/domain"
	"go.uber.org/zap"
)

// SessionStore looks up sessions during token verification. Implemented by
// repository.SessionRepository.
type SessionStore interface {
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
}

// Middleware handles authentication for HTTP requests
type Middleware struct {
	tokens   *TokenService
	sessions SessionStore
	logger   *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(tokens *TokenService, sessions SessionStore, logger *zap.Logger) *Middleware {
	return &Middleware{
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
	}
}

// Authenticate validates the bearer token and its backing session row.
// A token whose session was deleted (logout) or has expired is rejected even
// when the signature is still valid.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "Unauthorized: invalid authorization header format", http.StatusUnauthorized)
			return
		}
		token := parts[1]

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}

		session, err := m.sessions.GetByToken(r.Context(), token)
		if err != nil {
			http.Error(w, "Unauthorized: session not found", http.StatusUnauthorized)
			return
		}
		if time.Now().After(session.ExpiresAt) {
			http.Error(w, "Unauthorized: session expired", http.StatusUnauthorized)
			return
		}

		userCtx := &UserContext{
			UserID:         claims.UserID,
			Email:          claims.Email,
			Role:           claims.Role,
			ImpersonatedBy: claims.ImpersonatedBy,
			Token:          token,
		}

		ctx := WithUserContext(r.Context(), userCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin ensures the authenticated user holds the ADMIN role
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userCtx, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, "Forbidden: no user context", http.StatusForbidden)
			return
		}

		if !userCtx.IsAdmin() {
			m.logger.Warn("admin route denied",
				zap.String("path", r.URL.Path),
				zap.String("user_id", userCtx.UserID.String()),
				zap.String("role", string(userCtx.Role)),
			)
			http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
