package auth_test

import (
	"testing"
	"time"

	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *domain.User {
	return &domain.User{
		BaseModel: domain.BaseModel{ID: uuid.New()},
		Email:     "user@example.com",
		Role:      domain.RoleClient,
	}
}

func TestNewTokenService_RejectsWeakSecrets(t *testing.T) {
	_, err := auth.NewTokenService("")
	assert.ErrorIs(t, err, auth.ErrEmptySecretKey)

	_, err = auth.NewTokenService("too-short")
	assert.ErrorIs(t, err, auth.ErrWeakSecretKey)

	_, err = auth.NewTokenService(testSecret)
	assert.NoError(t, err)
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)
	user := testUser()

	token, expiresAt, err := svc.GenerateToken(user, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, domain.RoleClient, claims.Role)
	assert.Nil(t, claims.ImpersonatedBy)
}

func TestTokenService_ImpersonationClaims(t *testing.T) {
	svc, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)
	target := testUser()
	adminID := uuid.New()

	token, _, err := svc.GenerateImpersonationToken(target, adminID, 8*time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	// The token acts as the target but names the admin behind it.
	assert.Equal(t, target.ID, claims.UserID)
	require.NotNil(t, claims.ImpersonatedBy)
	assert.Equal(t, adminID, *claims.ImpersonatedBy)
	assert.NotNil(t, claims.ImpersonatedAt)
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	svc, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)
	other, err := auth.NewTokenService("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	token, _, err := other.GenerateToken(testUser(), time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_RejectsExpiredToken(t *testing.T) {
	svc, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	_, _, err = svc.GenerateToken(testUser(), -time.Minute)
	assert.ErrorIs(t, err, auth.ErrInvalidDuration)

	// Claim timestamps are truncated to whole seconds, so sleep past that.
	token, _, err := svc.GenerateToken(testUser(), 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, auth.VerifyPassword(hash, "correct horse battery staple"))
	assert.False(t, auth.VerifyPassword(hash, "wrong password"))
	assert.False(t, auth.VerifyPassword("not-a-hash", "anything"))
}

func TestGenerateTempPassword(t *testing.T) {
	a, err := auth.GenerateTempPassword()
	require.NoError(t, err)
	b, err := auth.GenerateTempPassword()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(a), 12)
	assert.NotEqual(t, a, b)
}
