package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/config"
	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/clearbill/billing-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const adminEmail = "admin@clearbill.at"

type authFixture struct {
	db         *gorm.DB
	auth       *service.AuthService
	clientRepo *repository.ClientRepository
}

func setupAuthService(t *testing.T) *authFixture {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	tokens, err := auth.NewTokenService("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	auditSvc := service.NewAuditLogService(auditRepo, zap.NewNop())
	svc := service.NewAuthService(
		userRepo, clientRepo, sessionRepo, tokens, auditSvc,
		config.AuthConfig{SessionTTLHours: 168, ImpersonationTTLHours: 8},
		adminEmail,
		zap.NewNop(),
	)

	return &authFixture{
		db:         db,
		auth:       svc,
		clientRepo: clientRepo,
	}
}

// createUser persists a user with a real password hash so login works
func (fx *authFixture) createUser(t *testing.T, email, password string, role domain.UserRole, active bool) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		Role:         role,
		IsActive:     active,
	}
	require.NoError(t, fx.db.Create(user).Error)
	if !active {
		// GORM drops zero-value fields on insert, letting the column's
		// default:true win; persist the disabled state explicitly.
		require.NoError(t, fx.db.Model(user).Update("is_active", false).Error)
	}
	return user
}

func TestAuthService_Register_ProvisionsClientUser(t *testing.T) {
	fx := setupAuthService(t)
	ctx := context.Background()

	resp, err := fx.auth.Register(ctx, nil, &domain.RegisterRequest{
		Email:    "Maria@Example.com",
		Password: "super-secret-pw",
		Name:     "Maria Huber",
		Company:  "Huber KG",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "maria@example.com", resp.User.Email)
	assert.Equal(t, domain.RoleClient, resp.User.Role)

	// Registration opens a session immediately.
	var sessions int64
	require.NoError(t, fx.db.Model(&domain.Session{}).Where("user_id = ?", resp.User.ID).Count(&sessions).Error)
	assert.Equal(t, int64(1), sessions)

	// A client record is created alongside, typed from the company field.
	client, err := fx.clientRepo.GetByUserID(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClientTypeCompany, client.Type)
	assert.Equal(t, "Huber KG", client.Name)

	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionRegister))
}

func TestAuthService_Register_AdminEmailGetsAdminRole(t *testing.T) {
	fx := setupAuthService(t)
	ctx := context.Background()

	resp, err := fx.auth.Register(ctx, nil, &domain.RegisterRequest{
		Email:    "Admin@ClearBill.at",
		Password: "super-secret-pw",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RoleAdmin, resp.User.Role)

	// Admins do not get a client record.
	_, err = fx.clientRepo.GetByUserID(ctx, resp.User.ID)
	assert.Error(t, err)
}

func TestAuthService_Register_DuplicateEmailConflicts(t *testing.T) {
	fx := setupAuthService(t)
	ctx := context.Background()

	req := &domain.RegisterRequest{Email: "dup@example.com", Password: "super-secret-pw"}
	_, err := fx.auth.Register(ctx, nil, req)
	require.NoError(t, err)

	_, err = fx.auth.Register(ctx, nil, req)
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestAuthService_Login(t *testing.T) {
	fx := setupAuthService(t)
	ctx := context.Background()
	fx.createUser(t, "user@example.com", "correct-password", domain.RoleClient, true)

	resp, err := fx.auth.Login(ctx, nil, &domain.LoginRequest{
		Email:    "USER@example.com",
		Password: "correct-password",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionLogin))
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	fx := setupAuthService(t)
	fx.createUser(t, "user@example.com", "correct-password", domain.RoleClient, true)

	_, err := fx.auth.Login(context.Background(), nil, &domain.LoginRequest{
		Email:    "user@example.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	fx := setupAuthService(t)

	_, err := fx.auth.Login(context.Background(), nil, &domain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestAuthService_Login_DisabledAccount(t *testing.T) {
	fx := setupAuthService(t)
	fx.createUser(t, "user@example.com", "correct-password", domain.RoleClient, false)

	_, err := fx.auth.Login(context.Background(), nil, &domain.LoginRequest{
		Email:    "user@example.com",
		Password: "correct-password",
	})
	assert.ErrorIs(t, err, service.ErrAccountDisabled)
}

func TestAuthService_Logout_DeletesSession(t *testing.T) {
	fx := setupAuthService(t)
	user := fx.createUser(t, "user@example.com", "correct-password", domain.RoleClient, true)

	resp, err := fx.auth.Login(context.Background(), nil, &domain.LoginRequest{
		Email:    "user@example.com",
		Password: "correct-password",
	})
	require.NoError(t, err)

	ctx := auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Token:  resp.Token,
	})
	require.NoError(t, fx.auth.Logout(ctx, nil))

	var sessions int64
	require.NoError(t, fx.db.Model(&domain.Session{}).Where("user_id = ?", user.ID).Count(&sessions).Error)
	assert.Equal(t, int64(0), sessions)
	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionLogout))
}

func TestAuthService_ChangePassword(t *testing.T) {
	fx := setupAuthService(t)
	user := fx.createUser(t, "user@example.com", "old-password-123", domain.RoleClient, true)

	err := fx.auth.ChangePassword(ctxAs(user), &domain.ChangePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "new-password-456",
	})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	err = fx.auth.ChangePassword(ctxAs(user), &domain.ChangePasswordRequest{
		CurrentPassword: "old-password-123",
		NewPassword:     "new-password-456",
	})
	require.NoError(t, err)

	_, err = fx.auth.Login(context.Background(), nil, &domain.LoginRequest{
		Email:    "user@example.com",
		Password: "new-password-456",
	})
	assert.NoError(t, err)
}

// linkClient creates a client record linked to the given user
func (fx *authFixture) linkClient(t *testing.T, user *domain.User) *domain.Client {
	t.Helper()
	client := testutil.CreateTestClient(t, fx.db, "Linked GmbH")
	require.NoError(t, fx.db.Model(client).Update("user_id", user.ID).Error)
	client.UserID = &user.ID
	return client
}

func TestAuthService_LoginAsClient(t *testing.T) {
	fx := setupAuthService(t)
	admin := fx.createUser(t, adminEmail, "admin-password-1", domain.RoleAdmin, true)
	target := fx.createUser(t, "client@example.com", "client-password", domain.RoleClient, true)
	client := fx.linkClient(t, target)

	resp, err := fx.auth.LoginAsClient(ctxAs(admin), nil, client.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, target.Email, resp.User.Email)
	assert.Equal(t, admin.ID.String(), resp.ImpersonatedBy)

	// The impersonation session is short-lived and flagged with the admin.
	var session domain.Session
	require.NoError(t, fx.db.Where("user_id = ?", target.ID).First(&session).Error)
	require.NotNil(t, session.ImpersonatedBy)
	assert.Equal(t, admin.ID, *session.ImpersonatedBy)
	assert.WithinDuration(t, time.Now().Add(8*time.Hour), session.ExpiresAt, time.Minute)

	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionLoginAsClient))
}

func TestAuthService_LoginAsClient_NonAdminAuditedThenDenied(t *testing.T) {
	fx := setupAuthService(t)
	caller := fx.createUser(t, "sneaky@example.com", "client-password", domain.RoleClient, true)
	target := fx.createUser(t, "client@example.com", "client-password", domain.RoleClient, true)
	client := fx.linkClient(t, target)

	_, err := fx.auth.LoginAsClient(ctxAs(caller), nil, client.ID)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)

	// The rejected attempt leaves an audit trail and no session.
	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionFailedLoginAsClient))
	var sessions int64
	require.NoError(t, fx.db.Model(&domain.Session{}).Count(&sessions).Error)
	assert.Equal(t, int64(0), sessions)
}

func TestAuthService_LoginAsClient_AdminTargetAuditedThenDenied(t *testing.T) {
	fx := setupAuthService(t)
	admin := fx.createUser(t, adminEmail, "admin-password-1", domain.RoleAdmin, true)
	otherAdmin := fx.createUser(t, "second-admin@example.com", "admin-password-2", domain.RoleAdmin, true)
	client := fx.linkClient(t, otherAdmin)

	_, err := fx.auth.LoginAsClient(ctxAs(admin), nil, client.ID)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionFailedLoginAsClient))
}

func TestAuthService_LoginAsClient_OwnLinkedClientDenied(t *testing.T) {
	fx := setupAuthService(t)
	admin := fx.createUser(t, adminEmail, "admin-password-1", domain.RoleAdmin, true)
	client := fx.linkClient(t, admin)

	// Impersonating the client linked to the acting admin's own account is
	// refused. Since the linked user carries the admin role, the role check
	// denies it before the dedicated self check is ever reached.
	_, err := fx.auth.LoginAsClient(ctxAs(admin), nil, client.ID)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)

	var sessions int64
	require.NoError(t, fx.db.Model(&domain.Session{}).Count(&sessions).Error)
	assert.Zero(t, sessions)

	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionFailedLoginAsClient))
}

func TestAuthService_LoginAsClient_DisabledTarget(t *testing.T) {
	fx := setupAuthService(t)
	admin := fx.createUser(t, adminEmail, "admin-password-1", domain.RoleAdmin, true)
	target := fx.createUser(t, "client@example.com", "client-password", domain.RoleClient, false)
	client := fx.linkClient(t, target)

	_, err := fx.auth.LoginAsClient(ctxAs(admin), nil, client.ID)
	assert.ErrorIs(t, err, service.ErrAccountDisabled)

	// A disabled target is an operational condition, not a privilege misuse: no audit row.
	assert.Equal(t, int64(0), countAuditRows(t, fx.db, domain.AuditActionFailedLoginAsClient))
}

func TestAuthService_LoginAsClient_ClientWithoutUser(t *testing.T) {
	fx := setupAuthService(t)
	admin := fx.createUser(t, adminEmail, "admin-password-1", domain.RoleAdmin, true)
	client := testutil.CreateTestClient(t, fx.db, "Unlinked GmbH")

	_, err := fx.auth.LoginAsClient(ctxAs(admin), nil, client.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestAuthService_ListClients_OnlyLinked(t *testing.T) {
	fx := setupAuthService(t)
	target := fx.createUser(t, "client@example.com", "client-password", domain.RoleClient, true)
	fx.linkClient(t, target)
	testutil.CreateTestClient(t, fx.db, "Unlinked GmbH")

	result, err := fx.auth.ListClients(context.Background(), 1, 50)
	require.NoError(t, err)

	dtos := result.Data.([]domain.ClientDTO)
	require.Len(t, dtos, 1)
	assert.Equal(t, "Linked GmbH", dtos[0].Name)
}
