package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate assigns a fresh UUID when none was supplied. IDs are generated
// application-side so the same models work on PostgreSQL and SQLite.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// UserRole represents the role of a user
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleClient UserRole = "CLIENT"
)

// IsValid checks if the UserRole is a valid enum value
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleClient:
		return true
	}
	return false
}

// User represents an account that can sign in to the platform
type User struct {
	BaseModel
	Email        string     `gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string     `gorm:"type:varchar(255);not null;column:password_hash"`
	Role         UserRole   `gorm:"type:varchar(20);not null;default:'CLIENT';index"`
	IsActive     bool       `gorm:"not null;default:true;column:is_active"`
	Name         string     `gorm:"type:varchar(200)"`
	Company      string     `gorm:"type:varchar(200)"`
	VATNumber    string     `gorm:"type:varchar(50);column:vat_number"`
	Homepage     string     `gorm:"type:varchar(255)"`
	Phone        string     `gorm:"type:varchar(50)"`
	Address      string     `gorm:"type:varchar(500)"`
	PostalCode   string     `gorm:"type:varchar(20);column:postal_code"`
	City         string     `gorm:"type:varchar(100)"`
	Country      string     `gorm:"type:varchar(2);not null;default:'AT'"`
	ProfileImage string     `gorm:"type:varchar(500);column:profile_image"`
	LastLogin    *time.Time `gorm:"column:last_login"`
	Client       *Client    `gorm:"foreignKey:UserID"`
}

// ClientType represents the legal form of a client
type ClientType string

const (
	ClientTypeCompany ClientType = "COMPANY"
	ClientTypePrivate ClientType = "PRIVATE"
)

// IsValid checks if the ClientType is a valid enum value
func (t ClientType) IsValid() bool {
	switch t {
	case ClientTypeCompany, ClientTypePrivate:
		return true
	}
	return false
}

// Client represents a customer that invoices and quotes are issued to
type Client struct {
	BaseModel
	ClientNumber int        `gorm:"not null;uniqueIndex;column:client_number"`
	Type         ClientType `gorm:"type:varchar(20);not null;default:'COMPANY'"`
	Name         string     `gorm:"type:varchar(200);not null;index"`
	VATNumber    string     `gorm:"type:varchar(50);column:vat_number"`
	Address      string     `gorm:"type:varchar(500)"`
	Country      string     `gorm:"type:varchar(2);not null;default:'AT'"`
	Phone        string     `gorm:"type:varchar(50)"`
	Email        string     `gorm:"type:varchar(255)"`
	Homepage     string     `gorm:"type:varchar(255)"`
	Note         string     `gorm:"type:text"`
	UserID       *uuid.UUID `gorm:"type:uuid;uniqueIndex;column:user_id"`
	User         *User      `gorm:"foreignKey:UserID"`
}

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// IsValid checks if the InvoiceStatus is a valid enum value
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// QuoteStatus represents the lifecycle state of a quote
type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "DRAFT"
	QuoteStatusSent      QuoteStatus = "SENT"
	QuoteStatusAccepted  QuoteStatus = "ACCEPTED"
	QuoteStatusDeclined  QuoteStatus = "DECLINED"
	QuoteStatusConverted QuoteStatus = "CONVERTED"
)

// IsValid checks if the QuoteStatus is a valid enum value
func (s QuoteStatus) IsValid() bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusDeclined, QuoteStatusConverted:
		return true
	}
	return false
}

// Invoice represents an issued (or draft) invoice
type Invoice struct {
	BaseModel
	Number            string           `gorm:"type:varchar(50);not null;uniqueIndex"`
	UserID            uuid.UUID        `gorm:"type:uuid;not null;index;column:user_id"`
	User              *User            `gorm:"foreignKey:UserID"`
	ClientID          *uuid.UUID       `gorm:"type:uuid;index;column:client_id"`
	Client            *Client          `gorm:"foreignKey:ClientID"`
	IssueDate         time.Time        `gorm:"type:date;not null;column:issue_date"`
	DueDate           *time.Time       `gorm:"type:date;column:due_date"`
	ServiceStart      *time.Time       `gorm:"type:date;column:service_start"`
	ServiceEnd        *time.Time       `gorm:"type:date;column:service_end"`
	Status            InvoiceStatus    `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	Subtotal          decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0"`
	TaxRate           decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:20;column:tax_rate"`
	TaxAmount         decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0;column:tax_amount"`
	Total             decimal.Decimal  `gorm:"type:numeric(15,2);not null;default:0"`
	GlobalDiscount    decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0;column:global_discount"`
	IsReverseCharge   bool             `gorm:"not null;default:false;column:is_reverse_charge"`
	ReverseChargeNote string           `gorm:"type:varchar(500);column:reverse_charge_note"`
	Notes             string           `gorm:"type:text"`
	PaidAt            *time.Time       `gorm:"column:paid_at"`
	PaidAmount        *decimal.Decimal `gorm:"type:numeric(15,2);column:paid_amount"`
	Items             []InvoiceItem    `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// InvoiceItem represents a single line on an invoice
type InvoiceItem struct {
	BaseModel
	InvoiceID   uuid.UUID        `gorm:"type:uuid;not null;index;column:invoice_id"`
	Position    int              `gorm:"not null;default:0"`
	ProductName string           `gorm:"type:varchar(200);column:product_name"`
	Description string           `gorm:"type:text;not null"`
	Quantity    decimal.Decimal  `gorm:"type:numeric(10,2);not null"`
	UnitName    string           `gorm:"type:varchar(50);column:unit_name"`
	UnitPrice   decimal.Decimal  `gorm:"type:numeric(15,2);not null;column:unit_price"`
	TaxRate     *decimal.Decimal `gorm:"type:numeric(5,2);column:tax_rate"`
	Discount    decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0"`
	Total       decimal.Decimal  `gorm:"type:numeric(15,2);not null"`
}

// Quote represents an offer that may later be converted into an invoice
type Quote struct {
	BaseModel
	Number               string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	UserID               uuid.UUID       `gorm:"type:uuid;not null;index;column:user_id"`
	User                 *User           `gorm:"foreignKey:UserID"`
	ClientID             *uuid.UUID      `gorm:"type:uuid;index;column:client_id"`
	Client               *Client         `gorm:"foreignKey:ClientID"`
	IssueDate            time.Time       `gorm:"type:date;not null;column:issue_date"`
	ValidUntil           *time.Time      `gorm:"type:date;column:valid_until"`
	ServiceStart         *time.Time      `gorm:"type:date;column:service_start"`
	ServiceEnd           *time.Time      `gorm:"type:date;column:service_end"`
	Status               QuoteStatus     `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	Subtotal             decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0"`
	TaxRate              decimal.Decimal `gorm:"type:numeric(5,2);not null;default:20;column:tax_rate"`
	TaxAmount            decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0;column:tax_amount"`
	Total                decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0"`
	GlobalDiscount       decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0;column:global_discount"`
	IsReverseCharge      bool            `gorm:"not null;default:false;column:is_reverse_charge"`
	ReverseChargeNote    string          `gorm:"type:varchar(500);column:reverse_charge_note"`
	Notes                string          `gorm:"type:text"`
	ConvertedToInvoiceID *uuid.UUID      `gorm:"type:uuid;column:converted_to_invoice_id"`
	ConvertedAt          *time.Time      `gorm:"column:converted_at"`
	Items                []QuoteItem     `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE"`
}

// QuoteItem represents a single line on a quote
type QuoteItem struct {
	BaseModel
	QuoteID     uuid.UUID        `gorm:"type:uuid;not null;index;column:quote_id"`
	Position    int              `gorm:"not null;default:0"`
	ProductName string           `gorm:"type:varchar(200);column:product_name"`
	Description string           `gorm:"type:text;not null"`
	Quantity    decimal.Decimal  `gorm:"type:numeric(10,2);not null"`
	UnitName    string           `gorm:"type:varchar(50);column:unit_name"`
	UnitPrice   decimal.Decimal  `gorm:"type:numeric(15,2);not null;column:unit_price"`
	TaxRate     *decimal.Decimal `gorm:"type:numeric(5,2);column:tax_rate"`
	Discount    decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0"`
	Total       decimal.Decimal  `gorm:"type:numeric(15,2);not null"`
}

// Session represents a bearer-token session. Expired sessions are not
// garbage-collected; they are rejected at verification time.
type Session struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index;column:user_id"`
	User           *User      `gorm:"foreignKey:UserID"`
	Token          string     `gorm:"type:varchar(1000);not null;uniqueIndex"`
	ExpiresAt      time.Time  `gorm:"not null;column:expires_at"`
	ImpersonatedBy *uuid.UUID `gorm:"type:uuid;column:impersonated_by"`
	CreatedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate assigns a fresh UUID when none was supplied
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionLogin                   AuditAction = "LOGIN"
	AuditActionLogout                  AuditAction = "LOGOUT"
	AuditActionRegister                AuditAction = "REGISTER"
	AuditActionUpdate                  AuditAction = "UPDATE"
	AuditActionLoginAsClient           AuditAction = "LOGIN_AS_CLIENT"
	AuditActionFailedLoginAsClient     AuditAction = "FAILED_LOGIN_AS_CLIENT_ATTEMPT"
	AuditActionInvoiceSent             AuditAction = "INVOICE_SENT"
	AuditActionQuoteSent               AuditAction = "QUOTE_SENT"
	AuditActionQuoteConvertedToInvoice AuditAction = "QUOTE_CONVERTED_TO_INVOICE"
)

// AuditLog represents an append-only audit trail entry. Application logic
// never mutates or deletes rows of this table.
type AuditLog struct {
	ID        uuid.UUID   `gorm:"type:uuid;primary_key"`
	UserID    *uuid.UUID  `gorm:"type:uuid;index;column:user_id"`
	UserEmail string      `gorm:"type:varchar(255);column:user_email"`
	UserName  string      `gorm:"type:varchar(200);column:user_name"`
	Action    AuditAction `gorm:"type:varchar(50);not null;index"`
	Details   string      `gorm:"type:jsonb"`
	IPAddress string      `gorm:"type:varchar(64);column:ip_address"`
	UserAgent string      `gorm:"type:text;column:user_agent"`
	CreatedAt time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// BeforeCreate assigns a fresh UUID when none was supplied
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
