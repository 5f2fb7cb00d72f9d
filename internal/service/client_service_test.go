package service_test

import (
	"context"
	"testing"

	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/clearbill/billing-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type clientFixture struct {
	db       *gorm.DB
	clients  *service.ClientService
	userRepo *repository.UserRepository
}

func setupClientService(t *testing.T) *clientFixture {
	db := testutil.SetupTestDB(t)
	clientRepo := repository.NewClientRepository(db)
	userRepo := repository.NewUserRepository(db)
	svc := service.NewClientService(clientRepo, userRepo, zap.NewNop())
	return &clientFixture{db: db, clients: svc, userRepo: userRepo}
}

func TestClientService_Create_AssignsNextNumber(t *testing.T) {
	fx := setupClientService(t)

	first, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "Alpha GmbH"})
	require.NoError(t, err)
	second, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "Beta GmbH"})
	require.NoError(t, err)

	assert.Equal(t, first.Client.ClientNumber+1, second.Client.ClientNumber)
	assert.Equal(t, domain.ClientTypeCompany, first.Client.Type)
	assert.Equal(t, "AT", first.Client.Country)
	assert.Empty(t, first.TempPassword)
}

func TestClientService_Create_ContinuesAfterManualNumber(t *testing.T) {
	fx := setupClientService(t)

	manual := 500
	_, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "Manual", ClientNumber: &manual})
	require.NoError(t, err)

	next, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "Auto"})
	require.NoError(t, err)
	assert.Equal(t, 501, next.Client.ClientNumber)
}

func TestClientService_Create_DuplicateNumberConflicts(t *testing.T) {
	fx := setupClientService(t)

	number := 42
	_, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "First", ClientNumber: &number})
	require.NoError(t, err)

	_, err = fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "Second", ClientNumber: &number})
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestClientService_Create_ProvisionsUserAccount(t *testing.T) {
	fx := setupClientService(t)

	resp, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{
		Name:              "ACME GmbH",
		Type:              domain.ClientTypeCompany,
		Email:             "Office@ACME.example",
		CreateUserAccount: true,
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.TempPassword)
	require.NotNil(t, resp.Client.UserID)

	user, err := fx.userRepo.GetByID(context.Background(), *resp.Client.UserID)
	require.NoError(t, err)

	// The provisioned account is a CLIENT user with the normalized email and
	// the company carried over; the temp password actually works.
	assert.Equal(t, domain.RoleClient, user.Role)
	assert.True(t, user.IsActive)
	assert.Equal(t, "office@acme.example", user.Email)
	assert.Equal(t, "ACME GmbH", user.Company)
	assert.True(t, auth.VerifyPassword(user.PasswordHash, resp.TempPassword))
}

func TestClientService_Create_UserAccountRequiresEmail(t *testing.T) {
	fx := setupClientService(t)

	_, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{
		Name:              "No Mail GmbH",
		CreateUserAccount: true,
	})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestClientService_Create_DuplicateEmailConflicts(t *testing.T) {
	fx := setupClientService(t)
	existing := testutil.CreateTestUser(t, fx.db, domain.RoleClient)

	_, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{
		Name:              "Dup GmbH",
		Email:             existing.Email,
		CreateUserAccount: true,
	})
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestClientService_Create_LinkedUserMustBeFree(t *testing.T) {
	fx := setupClientService(t)
	user := testutil.CreateTestUser(t, fx.db, domain.RoleClient)

	_, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "First", UserID: &user.ID})
	require.NoError(t, err)

	_, err = fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "Second", UserID: &user.ID})
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestClientService_Update_PropagatesToLinkedUser(t *testing.T) {
	fx := setupClientService(t)
	user := testutil.CreateTestUser(t, fx.db, domain.RoleClient)

	created, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{
		Name:   "Old Name GmbH",
		UserID: &user.ID,
	})
	require.NoError(t, err)

	_, err = fx.clients.Update(context.Background(), created.Client.ID, &domain.UpdateClientRequest{
		Name:     "New Name GmbH",
		Email:    "new@example.com",
		Password: "brand-new-secret",
	})
	require.NoError(t, err)

	updated, err := fx.userRepo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, "New Name GmbH", updated.Name)
	assert.True(t, auth.VerifyPassword(updated.PasswordHash, "brand-new-secret"))
}

func TestClientService_Update_EmailCollisionConflicts(t *testing.T) {
	fx := setupClientService(t)
	user := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	other := testutil.CreateTestUser(t, fx.db, domain.RoleClient)

	created, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{
		Name:   "Linked GmbH",
		UserID: &user.ID,
	})
	require.NoError(t, err)

	_, err = fx.clients.Update(context.Background(), created.Client.ID, &domain.UpdateClientRequest{
		Name:  "Linked GmbH",
		Email: other.Email,
	})
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestClientService_Delete_KeepsLinkedUser(t *testing.T) {
	fx := setupClientService(t)
	user := testutil.CreateTestUser(t, fx.db, domain.RoleClient)

	created, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{
		Name:   "Ephemeral GmbH",
		UserID: &user.ID,
	})
	require.NoError(t, err)

	require.NoError(t, fx.clients.Delete(context.Background(), created.Client.ID))

	_, err = fx.clients.GetByID(context.Background(), created.Client.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	survivor, err := fx.userRepo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, survivor.IsActive)
}

func TestClientService_List_Search(t *testing.T) {
	fx := setupClientService(t)
	_, err := fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "Huber Installationen"})
	require.NoError(t, err)
	_, err = fx.clients.Create(context.Background(), &domain.CreateClientRequest{Name: "Maier Consulting"})
	require.NoError(t, err)

	result, err := fx.clients.List(context.Background(), 1, 20, "huber")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	dtos := result.Data.([]domain.ClientDTO)
	require.Len(t, dtos, 1)
	assert.Equal(t, "Huber Installationen", dtos[0].Name)
}
