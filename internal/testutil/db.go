package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens an in-memory SQLite database with the full schema
// migrated. Every call gets an isolated database.
func SetupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:testdb%d?cache=shared&_fk=1&mode=memory", uniqueInt())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to open in-memory test database")

	err = db.AutoMigrate(
		&domain.User{},
		&domain.Client{},
		&domain.Invoice{},
		&domain.InvoiceItem{},
		&domain.Quote{},
		&domain.QuoteItem{},
		&domain.Session{},
		&domain.AuditLog{},
	)
	require.NoError(t, err, "Failed to migrate test schema")

	return db
}

// CreateTestUser creates a user with a unique email
func CreateTestUser(t *testing.T, db *gorm.DB, role domain.UserRole) *domain.User {
	user := &domain.User{
		Email:        fmt.Sprintf("user-%d@example.com", uniqueInt()),
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuvwxyz012345678901234567890123456",
		Name:         "Test User",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTestClient creates a client with a unique client number
func CreateTestClient(t *testing.T, db *gorm.DB, name string) *domain.Client {
	client := &domain.Client{
		ClientNumber: int(uniqueInt() % 1000000),
		Type:         domain.ClientTypeCompany,
		Name:         name,
		Email:        "client@example.com",
		Country:      "AT",
	}
	require.NoError(t, db.Create(client).Error)
	return client
}

// CreateTestInvoice creates a draft invoice with a single item
func CreateTestInvoice(t *testing.T, db *gorm.DB, user *domain.User, client *domain.Client, number string) *domain.Invoice {
	invoice := &domain.Invoice{
		Number:    number,
		UserID:    user.ID,
		ClientID:  &client.ID,
		IssueDate: time.Now().UTC(),
		Status:    domain.InvoiceStatusDraft,
		Subtotal:  decimal.NewFromInt(100),
		TaxRate:   decimal.NewFromInt(20),
		TaxAmount: decimal.NewFromInt(20),
		Total:     decimal.NewFromInt(120),
		Items: []domain.InvoiceItem{
			{
				Position:    1,
				ProductName: "Consulting",
				Description: "One day of consulting",
				Quantity:    decimal.NewFromInt(1),
				UnitName:    "day",
				UnitPrice:   decimal.NewFromInt(100),
				Total:       decimal.NewFromInt(100),
			},
		},
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice
}

// CreateTestQuote creates a draft quote with a single item
func CreateTestQuote(t *testing.T, db *gorm.DB, user *domain.User, client *domain.Client, number string) *domain.Quote {
	quote := &domain.Quote{
		Number:    number,
		UserID:    user.ID,
		ClientID:  &client.ID,
		IssueDate: time.Now().UTC(),
		Status:    domain.QuoteStatusDraft,
		Subtotal:  decimal.NewFromInt(100),
		TaxRate:   decimal.NewFromInt(20),
		TaxAmount: decimal.NewFromInt(20),
		Total:     decimal.NewFromInt(120),
		Items: []domain.QuoteItem{
			{
				Position:    1,
				ProductName: "Consulting",
				Description: "One day of consulting",
				Quantity:    decimal.NewFromInt(1),
				UnitName:    "day",
				UnitPrice:   decimal.NewFromInt(100),
				Total:       decimal.NewFromInt(100),
			},
		},
	}
	require.NoError(t, db.Create(quote).Error)
	return quote
}

var counter int64

// uniqueInt returns a process-unique integer for test data
func uniqueInt() int64 {
	counter++
	return time.Now().UnixNano() + counter
}
