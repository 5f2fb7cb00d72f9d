package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/mapper"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ClientService struct {
	clientRepo *repository.ClientRepository
	userRepo   *repository.UserRepository
	logger     *zap.Logger
}

func NewClientService(
	clientRepo *repository.ClientRepository,
	userRepo *repository.UserRepository,
	logger *zap.Logger,
) *ClientService {
	return &ClientService{
		clientRepo: clientRepo,
		userRepo:   userRepo,
		logger:     logger,
	}
}

// NextClientNumber returns the number the next created client would receive
func (s *ClientService) NextClientNumber(ctx context.Context) (int, error) {
	max, err := s.clientRepo.MaxClientNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to determine next client number: %w", err)
	}
	return max + 1, nil
}

// Create creates a client. When the request asks for a user account and
// carries an email, a CLIENT user is provisioned with a generated temporary
// password that is returned exactly once. The existence pre-checks here are
// best effort; the unique constraints on client_number, email and user_id
// are the real guarantee.
func (s *ClientService) Create(ctx context.Context, req *domain.CreateClientRequest) (*domain.CreateClientResponse, error) {
	number := 0
	if req.ClientNumber != nil {
		number = *req.ClientNumber
		exists, err := s.clientRepo.ExistsByClientNumber(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("failed to check client number: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("client number %d is already taken: %w", number, ErrConflict)
		}
	} else {
		next, err := s.NextClientNumber(ctx)
		if err != nil {
			return nil, err
		}
		number = next
	}

	clientType := req.Type
	if clientType == "" {
		clientType = domain.ClientTypeCompany
	}
	if !clientType.IsValid() {
		return nil, fmt.Errorf("invalid client type %q: %w", clientType, ErrInvalidInput)
	}

	country := req.Country
	if country == "" {
		country = "AT"
	}

	client := &domain.Client{
		ClientNumber: number,
		Type:         clientType,
		Name:         req.Name,
		VATNumber:    req.VATNumber,
		Address:      req.Address,
		Country:      strings.ToUpper(country),
		Phone:        req.Phone,
		Email:        req.Email,
		Homepage:     req.Homepage,
		Note:         req.Note,
	}

	tempPassword := ""
	switch {
	case req.UserID != nil:
		if _, err := s.userRepo.GetByID(ctx, *req.UserID); err != nil {
			return nil, fmt.Errorf("linked user not found: %w", ErrNotFound)
		}
		linked, err := s.clientRepo.ExistsByUserID(ctx, *req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to check user link: %w", err)
		}
		if linked {
			return nil, fmt.Errorf("user is already linked to a client: %w", ErrConflict)
		}
		client.UserID = req.UserID

	case req.CreateUserAccount:
		if req.Email == "" {
			return nil, fmt.Errorf("an email is required to create a user account: %w", ErrInvalidInput)
		}
		user, password, err := s.provisionUser(ctx, req)
		if err != nil {
			return nil, err
		}
		client.UserID = &user.ID
		tempPassword = password
	}

	if err := s.clientRepo.Create(ctx, client); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("client already exists: %w", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s.logger.Info("client created",
		zap.String("client_id", client.ID.String()),
		zap.Int("client_number", client.ClientNumber),
		zap.Bool("user_provisioned", tempPassword != ""))

	return &domain.CreateClientResponse{
		Client:       mapper.ToClientDTO(client),
		TempPassword: tempPassword,
	}, nil
}

func (s *ClientService) provisionUser(ctx context.Context, req *domain.CreateClientRequest) (*domain.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, "", fmt.Errorf("a user with email %s already exists: %w", email, ErrConflict)
	}

	password, err := auth.GenerateTempPassword()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleClient,
		IsActive:     true,
		Name:         req.Name,
		VATNumber:    req.VATNumber,
		Phone:        req.Phone,
		Address:      req.Address,
		Country:      strings.ToUpper(req.Country),
	}
	if req.Type == domain.ClientTypeCompany {
		user.Company = req.Name
	}
	if user.Country == "" {
		user.Country = "AT"
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, "", fmt.Errorf("a user with email %s already exists: %w", email, ErrConflict)
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	return user, password, nil
}

func (s *ClientService) GetByID(ctx context.Context, id uuid.UUID) (*domain.ClientDTO, error) {
	client, err := s.clientRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", ErrNotFound)
	}

	dto := mapper.ToClientDTO(client)
	return &dto, nil
}

// Update modifies a client and propagates email, name and password changes
// to the linked user account when one exists.
func (s *ClientService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateClientRequest) (*domain.ClientDTO, error) {
	client, err := s.clientRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", ErrNotFound)
	}

	if req.ClientNumber != nil && *req.ClientNumber != client.ClientNumber {
		exists, err := s.clientRepo.ExistsByClientNumber(ctx, *req.ClientNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to check client number: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("client number %d is already taken: %w", *req.ClientNumber, ErrConflict)
		}
		client.ClientNumber = *req.ClientNumber
	}

	if req.Type != "" {
		if !req.Type.IsValid() {
			return nil, fmt.Errorf("invalid client type %q: %w", req.Type, ErrInvalidInput)
		}
		client.Type = req.Type
	}

	client.Name = req.Name
	client.VATNumber = req.VATNumber
	client.Address = req.Address
	if req.Country != "" {
		client.Country = strings.ToUpper(req.Country)
	}
	client.Phone = req.Phone
	client.Email = req.Email
	client.Homepage = req.Homepage
	client.Note = req.Note

	if req.UserID != nil && (client.UserID == nil || *req.UserID != *client.UserID) {
		if _, err := s.userRepo.GetByID(ctx, *req.UserID); err != nil {
			return nil, fmt.Errorf("linked user not found: %w", ErrNotFound)
		}
		linked, err := s.clientRepo.ExistsByUserID(ctx, *req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to check user link: %w", err)
		}
		if linked {
			return nil, fmt.Errorf("user is already linked to a client: %w", ErrConflict)
		}
		client.UserID = req.UserID
	}

	if err := s.clientRepo.Update(ctx, client); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("client already exists: %w", ErrConflict)
		}
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	if client.UserID != nil {
		if err := s.syncLinkedUser(ctx, client, req); err != nil {
			return nil, err
		}
	}

	dto := mapper.ToClientDTO(client)
	return &dto, nil
}

// syncLinkedUser keeps the linked user account in step with the client record
func (s *ClientService) syncLinkedUser(ctx context.Context, client *domain.Client, req *domain.UpdateClientRequest) error {
	user, err := s.userRepo.GetByID(ctx, *client.UserID)
	if err != nil {
		s.logger.Warn("client references missing user",
			zap.String("client_id", client.ID.String()),
			zap.String("user_id", client.UserID.String()))
		return nil
	}

	changed := false
	if req.Email != "" && !strings.EqualFold(req.Email, user.Email) {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		exists, err := s.userRepo.ExistsByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return fmt.Errorf("a user with email %s already exists: %w", email, ErrConflict)
		}
		user.Email = email
		changed = true
	}
	if req.Name != "" && req.Name != user.Name {
		user.Name = req.Name
		changed = true
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = hash
		changed = true
	}

	if !changed {
		return nil
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update linked user: %w", err)
	}
	return nil
}

// Delete removes a client permanently. The linked user account survives.
func (s *ClientService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.clientRepo.GetByID(ctx, id); err != nil {
		return fmt.Errorf("failed to get client: %w", ErrNotFound)
	}

	if err := s.clientRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	s.logger.Info("client deleted", zap.String("client_id", id.String()))
	return nil
}

func (s *ClientService) List(ctx context.Context, page, pageSize int, search string) (*domain.PaginatedResponse, error) {
	// Clamp page size
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	if page < 1 {
		page = 1
	}

	clients, total, err := s.clientRepo.List(ctx, page, pageSize, search)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	dtos := make([]domain.ClientDTO, len(clients))
	for i := range clients {
		dtos[i] = mapper.ToClientDTO(&clients[i])
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
