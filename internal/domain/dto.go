package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DTOs for API responses

type UserDTO struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"isActive"`
	Name         string    `json:"name,omitempty"`
	Company      string    `json:"company,omitempty"`
	VATNumber    string    `json:"vatNumber,omitempty"`
	Homepage     string    `json:"homepage,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	PostalCode   string    `json:"postalCode,omitempty"`
	City         string    `json:"city,omitempty"`
	Country      string    `json:"country"`
	ProfileImage string    `json:"profileImage,omitempty"`
	LastLogin    *string   `json:"lastLogin,omitempty"` // ISO 8601
	CreatedAt    string    `json:"createdAt"`           // ISO 8601
	UpdatedAt    string    `json:"updatedAt"`           // ISO 8601
}

type ClientDTO struct {
	ID           uuid.UUID  `json:"id"`
	ClientNumber int        `json:"clientNumber"`
	Type         ClientType `json:"type"`
	Name         string     `json:"name"`
	VATNumber    string     `json:"vatNumber,omitempty"`
	Address      string     `json:"address,omitempty"`
	Country      string     `json:"country"`
	Phone        string     `json:"phone,omitempty"`
	Email        string     `json:"email,omitempty"`
	Homepage     string     `json:"homepage,omitempty"`
	Note         string     `json:"note,omitempty"`
	UserID       *uuid.UUID `json:"userId,omitempty"`
	CreatedAt    string     `json:"createdAt"` // ISO 8601
	UpdatedAt    string     `json:"updatedAt"` // ISO 8601
}

type InvoiceItemDTO struct {
	ID          uuid.UUID        `json:"id"`
	Position    int              `json:"position"`
	ProductName string           `json:"productName,omitempty"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitName    string           `json:"unitName,omitempty"`
	UnitPrice   decimal.Decimal  `json:"unitPrice"`
	TaxRate     *decimal.Decimal `json:"taxRate,omitempty"`
	Discount    decimal.Decimal  `json:"discount"`
	Total       decimal.Decimal  `json:"total"`
}

type InvoiceDTO struct {
	ID                uuid.UUID        `json:"id"`
	Number            string           `json:"number"`
	UserID            uuid.UUID        `json:"userId"`
	ClientID          *uuid.UUID       `json:"clientId,omitempty"`
	ClientName        string           `json:"clientName,omitempty"`
	IssueDate         string           `json:"issueDate"` // ISO 8601 date
	DueDate           *string          `json:"dueDate,omitempty"`
	ServiceStart      *string          `json:"serviceStart,omitempty"`
	ServiceEnd        *string          `json:"serviceEnd,omitempty"`
	Status            InvoiceStatus    `json:"status"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	TaxRate           decimal.Decimal  `json:"taxRate"`
	TaxAmount         decimal.Decimal  `json:"taxAmount"`
	Total             decimal.Decimal  `json:"total"`
	GlobalDiscount    decimal.Decimal  `json:"globalDiscount"`
	IsReverseCharge   bool             `json:"isReverseCharge"`
	ReverseChargeNote string           `json:"reverseChargeNote,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	PaidAt            *string          `json:"paidAt,omitempty"`
	PaidAmount        *decimal.Decimal `json:"paidAmount,omitempty"`
	Items             []InvoiceItemDTO `json:"items"`
	CreatedAt         string           `json:"createdAt"` // ISO 8601
	UpdatedAt         string           `json:"updatedAt"` // ISO 8601
}

type QuoteItemDTO struct {
	ID          uuid.UUID        `json:"id"`
	Position    int              `json:"position"`
	ProductName string           `json:"productName,omitempty"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitName    string           `json:"unitName,omitempty"`
	UnitPrice   decimal.Decimal  `json:"unitPrice"`
	TaxRate     *decimal.Decimal `json:"taxRate,omitempty"`
	Discount    decimal.Decimal  `json:"discount"`
	Total       decimal.Decimal  `json:"total"`
}

type QuoteDTO struct {
	ID                   uuid.UUID       `json:"id"`
	Number               string          `json:"number"`
	UserID               uuid.UUID       `json:"userId"`
	ClientID             *uuid.UUID      `json:"clientId,omitempty"`
	ClientName           string          `json:"clientName,omitempty"`
	IssueDate            string          `json:"issueDate"` // ISO 8601 date
	ValidUntil           *string         `json:"validUntil,omitempty"`
	ServiceStart         *string         `json:"serviceStart,omitempty"`
	ServiceEnd           *string         `json:"serviceEnd,omitempty"`
	Status               QuoteStatus     `json:"status"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	TaxRate              decimal.Decimal `json:"taxRate"`
	TaxAmount            decimal.Decimal `json:"taxAmount"`
	Total                decimal.Decimal `json:"total"`
	GlobalDiscount       decimal.Decimal `json:"globalDiscount"`
	IsReverseCharge      bool            `json:"isReverseCharge"`
	ReverseChargeNote    string          `json:"reverseChargeNote,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	ConvertedToInvoiceID *uuid.UUID      `json:"convertedToInvoiceId,omitempty"`
	ConvertedAt          *string         `json:"convertedAt,omitempty"`
	Items                []QuoteItemDTO  `json:"items"`
	CreatedAt            string          `json:"createdAt"` // ISO 8601
	UpdatedAt            string          `json:"updatedAt"` // ISO 8601
}

type AuditLogDTO struct {
	ID        uuid.UUID   `json:"id"`
	UserID    *uuid.UUID  `json:"userId,omitempty"`
	UserEmail string      `json:"userEmail,omitempty"`
	UserName  string      `json:"userName,omitempty"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details,omitempty"`
	IPAddress string      `json:"ipAddress,omitempty"`
	UserAgent string      `json:"userAgent,omitempty"`
	CreatedAt string      `json:"createdAt"` // ISO 8601
}

// Error type identifiers used in API error responses
const (
	ErrorTypeValidation   = "validation_error"
	ErrorTypeBadRequest   = "bad_request"
	ErrorTypeUnauthorized = "unauthorized"
	ErrorTypeForbidden    = "forbidden"
	ErrorTypeNotFound     = "not_found"
	ErrorTypeConflict     = "conflict"
	ErrorTypeDependency   = "dependency_error"
	ErrorTypeInternal     = "internal_error"
)

// APIError represents a standardized API error response
type APIError struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Pagination response wrapper
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// Auth DTOs

type RegisterRequest struct {
	Email      string `json:"email" validate:"required,email,max=255"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	Name       string `json:"name,omitempty" validate:"max=200"`
	Company    string `json:"company,omitempty" validate:"max=200"`
	VATNumber  string `json:"vatNumber,omitempty" validate:"max=50"`
	Phone      string `json:"phone,omitempty" validate:"max=50"`
	Address    string `json:"address,omitempty" validate:"max=500"`
	PostalCode string `json:"postalCode,omitempty" validate:"max=20"`
	City       string `json:"city,omitempty" validate:"max=100"`
	Country    string `json:"country,omitempty" validate:"omitempty,len=2"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the session token and the authenticated user
type LoginResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expiresAt"` // ISO 8601
	User      UserDTO `json:"user"`
}

// ImpersonationResponse contains the impersonation session and both parties
type ImpersonationResponse struct {
	Token          string  `json:"token"`
	ExpiresAt      string  `json:"expiresAt"` // ISO 8601
	User           UserDTO `json:"user"`      // the impersonated client user
	ImpersonatedBy string  `json:"impersonatedBy"`
}

type UpdateProfileRequest struct {
	Name       string `json:"name,omitempty" validate:"max=200"`
	Company    string `json:"company,omitempty" validate:"max=200"`
	VATNumber  string `json:"vatNumber,omitempty" validate:"max=50"`
	Homepage   string `json:"homepage,omitempty" validate:"max=255"`
	Phone      string `json:"phone,omitempty" validate:"max=50"`
	Address    string `json:"address,omitempty" validate:"max=500"`
	PostalCode string `json:"postalCode,omitempty" validate:"max=20"`
	City       string `json:"city,omitempty" validate:"max=100"`
	Country    string `json:"country,omitempty" validate:"omitempty,len=2"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

// Client request DTOs

type CreateClientRequest struct {
	ClientNumber      *int       `json:"clientNumber,omitempty" validate:"omitempty,min=1"`
	Type              ClientType `json:"type,omitempty"`
	Name              string     `json:"name" validate:"required,max=200"`
	VATNumber         string     `json:"vatNumber,omitempty" validate:"max=50"`
	Address           string     `json:"address,omitempty" validate:"max=500"`
	Country           string     `json:"country,omitempty" validate:"omitempty,len=2"`
	Phone             string     `json:"phone,omitempty" validate:"max=50"`
	Email             string     `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Homepage          string     `json:"homepage,omitempty" validate:"max=255"`
	Note              string     `json:"note,omitempty"`
	UserID            *uuid.UUID `json:"userId,omitempty"`
	CreateUserAccount bool       `json:"createUserAccount"`
}

type UpdateClientRequest struct {
	ClientNumber *int       `json:"clientNumber,omitempty" validate:"omitempty,min=1"`
	Type         ClientType `json:"type,omitempty"`
	Name         string     `json:"name" validate:"required,max=200"`
	VATNumber    string     `json:"vatNumber,omitempty" validate:"max=50"`
	Address      string     `json:"address,omitempty" validate:"max=500"`
	Country      string     `json:"country,omitempty" validate:"omitempty,len=2"`
	Phone        string     `json:"phone,omitempty" validate:"max=50"`
	Email        string     `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Homepage     string     `json:"homepage,omitempty" validate:"max=255"`
	Note         string     `json:"note,omitempty"`
	UserID       *uuid.UUID `json:"userId,omitempty"`
	// Password, when set, is propagated to the linked user account
	Password string `json:"password,omitempty" validate:"omitempty,min=8,max=128"`
}

// CreateClientResponse carries the client plus, when a user account was
// provisioned, the generated temporary password. The password is shown
// exactly once and never persisted in plaintext.
type CreateClientResponse struct {
	Client       ClientDTO `json:"client"`
	TempPassword string    `json:"tempPassword,omitempty"`
}

// Invoice and quote request DTOs

type DocumentItemRequest struct {
	ProductName string           `json:"productName,omitempty" validate:"max=200"`
	Description string           `json:"description" validate:"required,max=2000"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitName    string           `json:"unitName,omitempty" validate:"max=50"`
	UnitPrice   decimal.Decimal  `json:"unitPrice"`
	TaxRate     *decimal.Decimal `json:"taxRate,omitempty"`
	Discount    decimal.Decimal  `json:"discount"`
}

type CreateInvoiceRequest struct {
	Number          string                `json:"number,omitempty" validate:"max=50"` // custom number override
	UserID          *uuid.UUID            `json:"userId,omitempty"`                   // admin only, defaults to acting user
	ClientID        *uuid.UUID            `json:"clientId,omitempty"`
	IssueDate       *time.Time            `json:"issueDate,omitempty"`
	DueDate         *time.Time            `json:"dueDate,omitempty"`
	ServiceStart    *time.Time            `json:"serviceStart,omitempty"`
	ServiceEnd      *time.Time            `json:"serviceEnd,omitempty"`
	TaxRate         *decimal.Decimal      `json:"taxRate,omitempty"`
	GlobalDiscount  decimal.Decimal       `json:"globalDiscount"`
	IsReverseCharge bool                  `json:"isReverseCharge"`
	Notes           string                `json:"notes,omitempty" validate:"max=5000"`
	Items           []DocumentItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateInvoiceRequest is a partial update: only supplied fields are touched.
// Items, when present, replace the existing lines wholesale.
type UpdateInvoiceRequest struct {
	ClientID        *uuid.UUID            `json:"clientId,omitempty"`
	IssueDate       *time.Time            `json:"issueDate,omitempty"`
	DueDate         *time.Time            `json:"dueDate,omitempty"`
	ServiceStart    *time.Time            `json:"serviceStart,omitempty"`
	ServiceEnd      *time.Time            `json:"serviceEnd,omitempty"`
	TaxRate         *decimal.Decimal      `json:"taxRate,omitempty"`
	GlobalDiscount  *decimal.Decimal      `json:"globalDiscount,omitempty"`
	IsReverseCharge *bool                 `json:"isReverseCharge,omitempty"`
	Notes           *string               `json:"notes,omitempty" validate:"omitempty,max=5000"`
	Items           []DocumentItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

type CreateQuoteRequest struct {
	Number          string                `json:"number,omitempty" validate:"max=50"` // custom number override
	UserID          *uuid.UUID            `json:"userId,omitempty"`                   // admin only, defaults to acting user
	ClientID        *uuid.UUID            `json:"clientId,omitempty"`
	IssueDate       *time.Time            `json:"issueDate,omitempty"`
	ValidUntil      *time.Time            `json:"validUntil,omitempty"`
	ServiceStart    *time.Time            `json:"serviceStart,omitempty"`
	ServiceEnd      *time.Time            `json:"serviceEnd,omitempty"`
	TaxRate         *decimal.Decimal      `json:"taxRate,omitempty"`
	GlobalDiscount  decimal.Decimal       `json:"globalDiscount"`
	IsReverseCharge bool                  `json:"isReverseCharge"`
	Notes           string                `json:"notes,omitempty" validate:"max=5000"`
	Items           []DocumentItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateQuoteRequest is a partial update: only supplied fields are touched.
// Items, when present, replace the existing lines wholesale.
type UpdateQuoteRequest struct {
	ClientID        *uuid.UUID            `json:"clientId,omitempty"`
	IssueDate       *time.Time            `json:"issueDate,omitempty"`
	ValidUntil      *time.Time            `json:"validUntil,omitempty"`
	ServiceStart    *time.Time            `json:"serviceStart,omitempty"`
	ServiceEnd      *time.Time            `json:"serviceEnd,omitempty"`
	TaxRate         *decimal.Decimal      `json:"taxRate,omitempty"`
	GlobalDiscount  *decimal.Decimal      `json:"globalDiscount,omitempty"`
	IsReverseCharge *bool                 `json:"isReverseCharge,omitempty"`
	Notes           *string               `json:"notes,omitempty" validate:"omitempty,max=5000"`
	Items           []DocumentItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// UpdateInvoiceStatusRequest changes the invoice lifecycle state
type UpdateInvoiceStatusRequest struct {
	Status     InvoiceStatus    `json:"status" validate:"required"`
	PaidAmount *decimal.Decimal `json:"paidAmount,omitempty"`
}

// UpdateQuoteStatusRequest changes the quote lifecycle state
type UpdateQuoteStatusRequest struct {
	Status QuoteStatus `json:"status" validate:"required"`
}

// SendDocumentRequest contains delivery options for sending an invoice or quote
type SendDocumentRequest struct {
	Recipient string `json:"recipient,omitempty" validate:"omitempty,email"`
	SendCopy  bool   `json:"sendCopy"`
	Message   string `json:"message,omitempty" validate:"max=2000"`
}

// SendDocumentResponse reports the delivery outcome
type SendDocumentResponse struct {
	Sent      bool   `json:"sent"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
}

// ConvertQuoteResponse contains the invoice created from a quote
type ConvertQuoteResponse struct {
	Quote   *QuoteDTO   `json:"quote"`
	Invoice *InvoiceDTO `json:"invoice"`
}

// InvoiceStatsDTO holds aggregated revenue figures for a user or the platform
type InvoiceStatsDTO struct {
	TotalCount        int64           `json:"totalCount"`
	DraftCount        int64           `json:"draftCount"`
	SentCount         int64           `json:"sentCount"`
	PaidCount         int64           `json:"paidCount"`
	OverdueCount      int64           `json:"overdueCount"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`      // sum of PAID totals
	OutstandingAmount decimal.Decimal `json:"outstandingAmount"` // sum of SENT and OVERDUE totals
}
