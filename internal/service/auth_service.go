package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/config"
	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/mapper"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AuthService struct {
	userRepo    *repository.UserRepository
	clientRepo  *repository.ClientRepository
	sessionRepo *repository.SessionRepository
	tokens      *auth.TokenService
	audit       *AuditLogService
	authCfg     config.AuthConfig
	adminEmail  string
	logger      *zap.Logger
}

func NewAuthService(
	userRepo *repository.UserRepository,
	clientRepo *repository.ClientRepository,
	sessionRepo *repository.SessionRepository,
	tokens *auth.TokenService,
	audit *AuditLogService,
	authCfg config.AuthConfig,
	adminEmail string,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		clientRepo:  clientRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		audit:       audit,
		authCfg:     authCfg,
		adminEmail:  strings.ToLower(adminEmail),
		logger:      logger,
	}
}

// Register creates a new user account and signs it in. The reserved admin
// email always receives the ADMIN role; everyone else is a CLIENT and gets
// a client record provisioned alongside the account.
func (s *AuthService) Register(ctx context.Context, r *http.Request, req *domain.RegisterRequest) (*domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("a user with email %s already exists: %w", email, ErrConflict)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := domain.RoleClient
	if email == s.adminEmail {
		role = domain.RoleAdmin
	}

	country := strings.ToUpper(req.Country)
	if country == "" {
		country = "AT"
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		Name:         req.Name,
		Company:      req.Company,
		VATNumber:    req.VATNumber,
		Phone:        req.Phone,
		Address:      req.Address,
		PostalCode:   req.PostalCode,
		City:         req.City,
		Country:      country,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("a user with email %s already exists: %w", email, ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if role == domain.RoleClient {
		if err := s.provisionClient(ctx, user); err != nil {
			s.logger.Error("failed to provision client for new user",
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
		}
	}

	s.audit.Log(ctx, r, LogEntry{
		Action:    domain.AuditActionRegister,
		UserID:    &user.ID,
		UserEmail: user.Email,
		UserName:  user.Name,
	})

	return s.startSession(ctx, user)
}

// provisionClient creates a client record for a freshly registered user
func (s *AuthService) provisionClient(ctx context.Context, user *domain.User) error {
	max, err := s.clientRepo.MaxClientNumber(ctx)
	if err != nil {
		return err
	}

	clientType := domain.ClientTypePrivate
	name := user.Name
	if user.Company != "" {
		clientType = domain.ClientTypeCompany
		name = user.Company
	}
	if name == "" {
		name = user.Email
	}

	client := &domain.Client{
		ClientNumber: max + 1,
		Type:         clientType,
		Name:         name,
		VATNumber:    user.VATNumber,
		Address:      user.Address,
		Country:      user.Country,
		Phone:        user.Phone,
		Email:        user.Email,
		UserID:       &user.ID,
	}
	return s.clientRepo.Create(ctx, client)
}

// Login verifies credentials and opens a session
func (s *AuthService) Login(ctx context.Context, r *http.Request, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.audit.Log(ctx, r, LogEntry{
		Action:    domain.AuditActionLogin,
		UserID:    &user.ID,
		UserEmail: user.Email,
		UserName:  user.Name,
	})

	return s.startSession(ctx, user)
}

// startSession mints a token and persists the matching session row
func (s *AuthService) startSession(ctx context.Context, user *domain.User) (*domain.LoginResponse, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user, s.authCfg.SessionTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	session := &domain.Session{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &domain.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		User:      mapper.ToUserDTO(user),
	}, nil
}

// Logout invalidates the caller's session token
func (s *AuthService) Logout(ctx context.Context, r *http.Request) error {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}

	if err := s.sessionRepo.DeleteByToken(ctx, userCtx.Token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.audit.Log(ctx, r, LogEntry{
		Action:    domain.AuditActionLogout,
		UserID:    &userCtx.UserID,
		UserEmail: userCtx.Email,
	})
	return nil
}

// Me returns the authenticated user's profile
func (s *AuthService) Me(ctx context.Context) (*domain.UserDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, userCtx.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", ErrUserNotFound)
	}

	dto := mapper.ToUserDTO(user)
	return &dto, nil
}

// UpdateProfile updates the authenticated user's profile fields
func (s *AuthService) UpdateProfile(ctx context.Context, r *http.Request, req *domain.UpdateProfileRequest) (*domain.UserDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, userCtx.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", ErrUserNotFound)
	}

	user.Name = req.Name
	user.Company = req.Company
	user.VATNumber = req.VATNumber
	user.Homepage = req.Homepage
	user.Phone = req.Phone
	user.Address = req.Address
	user.PostalCode = req.PostalCode
	user.City = req.City
	if req.Country != "" {
		user.Country = strings.ToUpper(req.Country)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.audit.Log(ctx, r, LogEntry{
		Action:    domain.AuditActionUpdate,
		UserID:    &user.ID,
		UserEmail: user.Email,
		UserName:  user.Name,
		Details:   map[string]interface{}{"scope": "profile"},
	})

	dto := mapper.ToUserDTO(user)
	return &dto, nil
}

// ChangePassword verifies the current password and sets a new one
func (s *AuthService) ChangePassword(ctx context.Context, req *domain.ChangePasswordRequest) error {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, userCtx.UserID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", ErrUserNotFound)
	}

	if !auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
		return ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash

	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// ListClients returns all clients with a linked user account, for admins
// picking an impersonation target.
func (s *AuthService) ListClients(ctx context.Context, page, pageSize int) (*domain.PaginatedResponse, error) {
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	if page < 1 {
		page = 1
	}

	clients, total, err := s.clientRepo.List(ctx, page, pageSize, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	dtos := make([]domain.ClientDTO, 0, len(clients))
	for i := range clients {
		if clients[i].UserID == nil {
			continue
		}
		dtos = append(dtos, mapper.ToClientDTO(&clients[i]))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// LoginAsClient lets an admin obtain a session as a specific client's user.
// Every check is terminal; the two checks that indicate a possible probe
// (non-admin caller, cross-role target) write their audit entry before the
// error is returned, never after.
func (s *AuthService) LoginAsClient(ctx context.Context, r *http.Request, clientID uuid.UUID) (*domain.ImpersonationResponse, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	// 1. The acting user must exist.
	admin, err := s.userRepo.GetByID(ctx, userCtx.UserID)
	if err != nil {
		return nil, fmt.Errorf("acting user not found: %w", ErrUnauthorized)
	}

	// 2. The acting user must be an admin. Audit-then-raise: a non-admin
	// calling this endpoint is an attack signal, not a user error.
	if admin.Role != domain.RoleAdmin {
		s.auditFailedImpersonation(ctx, r, admin, clientID, "caller is not an admin")
		return nil, fmt.Errorf("only admins may impersonate clients: %w", ErrPermissionDenied)
	}

	// 3. The acting admin must be active.
	if !admin.IsActive {
		return nil, fmt.Errorf("admin account is disabled: %w", ErrAccountDisabled)
	}

	// 4. The target client must exist and have a linked user.
	client, err := s.clientRepo.GetByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client not found: %w", ErrNotFound)
	}
	if client.UserID == nil {
		return nil, fmt.Errorf("client has no user account: %w", ErrNotFound)
	}
	target, err := s.userRepo.GetByID(ctx, *client.UserID)
	if err != nil {
		return nil, fmt.Errorf("client user not found: %w", ErrNotFound)
	}

	// 5. The target must be a CLIENT. Impersonating another admin is the
	// second attack signal that is audited before rejection.
	if target.Role != domain.RoleClient {
		s.auditFailedImpersonation(ctx, r, admin, clientID, "target user is not a client")
		return nil, fmt.Errorf("cannot impersonate a non-client account: %w", ErrPermissionDenied)
	}

	// 6. The target must be active.
	if !target.IsActive {
		return nil, fmt.Errorf("target account is disabled: %w", ErrAccountDisabled)
	}

	// 7. No self-impersonation.
	if target.ID == admin.ID {
		return nil, fmt.Errorf("cannot impersonate yourself: %w", ErrPermissionDenied)
	}

	// Audit the successful impersonation before minting the credential so a
	// crash mid-handling never leaves an unrecorded session.
	if err := s.audit.Record(ctx, r, LogEntry{
		Action:    domain.AuditActionLoginAsClient,
		UserID:    &admin.ID,
		UserEmail: admin.Email,
		UserName:  admin.Name,
		Details: map[string]interface{}{
			"clientId":        client.ID.String(),
			"targetUserId":    target.ID.String(),
			"targetUserEmail": target.Email,
			"targetUserName":  target.Name,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to record impersonation: %w", err)
	}

	token, expiresAt, err := s.tokens.GenerateImpersonationToken(target, admin.ID, s.authCfg.ImpersonationTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	session := &domain.Session{
		UserID:         target.ID,
		Token:          token,
		ExpiresAt:      expiresAt,
		ImpersonatedBy: &admin.ID,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("admin impersonating client",
		zap.String("admin_id", admin.ID.String()),
		zap.String("client_id", client.ID.String()),
		zap.String("target_user_id", target.ID.String()))

	return &domain.ImpersonationResponse{
		Token:          token,
		ExpiresAt:      expiresAt.UTC().Format(time.RFC3339),
		User:           mapper.ToUserDTO(target),
		ImpersonatedBy: admin.ID.String(),
	}, nil
}

// auditFailedImpersonation writes the failed-attempt entry synchronously so
// the record exists before the rejection propagates
func (s *AuthService) auditFailedImpersonation(ctx context.Context, r *http.Request, actor *domain.User, clientID uuid.UUID, reason string) {
	if err := s.audit.Record(ctx, r, LogEntry{
		Action:    domain.AuditActionFailedLoginAsClient,
		UserID:    &actor.ID,
		UserEmail: actor.Email,
		UserName:  actor.Name,
		Details: map[string]interface{}{
			"clientId": clientID.String(),
			"reason":   reason,
		},
	}); err != nil {
		s.logger.Error("failed to audit impersonation attempt",
			zap.String("actor_id", actor.ID.String()),
			zap.Error(err))
	}
}
