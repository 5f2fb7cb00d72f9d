package mapper

import (
	"time"

	"github.com/clearbill/billing-api/internal/domain"
)

const timestampFormat = "2006-01-02T15:04:05Z"
const dateFormat = "2006-01-02"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func formatTimestampPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTimestamp(*t)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateFormat)
	return &s
}

// ToUserDTO converts User to UserDTO
func ToUserDTO(user *domain.User) domain.UserDTO {
	return domain.UserDTO{
		ID:           user.ID,
		Email:        user.Email,
		Role:         user.Role,
		IsActive:     user.IsActive,
		Name:         user.Name,
		Company:      user.Company,
		VATNumber:    user.VATNumber,
		Homepage:     user.Homepage,
		Phone:        user.Phone,
		Address:      user.Address,
		PostalCode:   user.PostalCode,
		City:         user.City,
		Country:      user.Country,
		ProfileImage: user.ProfileImage,
		LastLogin:    formatTimestampPtr(user.LastLogin),
		CreatedAt:    formatTimestamp(user.CreatedAt),
		UpdatedAt:    formatTimestamp(user.UpdatedAt),
	}
}

// ToClientDTO converts Client to ClientDTO
func ToClientDTO(client *domain.Client) domain.ClientDTO {
	return domain.ClientDTO{
		ID:           client.ID,
		ClientNumber: client.ClientNumber,
		Type:         client.Type,
		Name:         client.Name,
		VATNumber:    client.VATNumber,
		Address:      client.Address,
		Country:      client.Country,
		Phone:        client.Phone,
		Email:        client.Email,
		Homepage:     client.Homepage,
		Note:         client.Note,
		UserID:       client.UserID,
		CreatedAt:    formatTimestamp(client.CreatedAt),
		UpdatedAt:    formatTimestamp(client.UpdatedAt),
	}
}

// ToInvoiceDTO converts Invoice to InvoiceDTO
func ToInvoiceDTO(invoice *domain.Invoice) domain.InvoiceDTO {
	dto := domain.InvoiceDTO{
		ID:                invoice.ID,
		Number:            invoice.Number,
		UserID:            invoice.UserID,
		ClientID:          invoice.ClientID,
		IssueDate:         invoice.IssueDate.Format(dateFormat),
		DueDate:           formatDatePtr(invoice.DueDate),
		ServiceStart:      formatDatePtr(invoice.ServiceStart),
		ServiceEnd:        formatDatePtr(invoice.ServiceEnd),
		Status:            invoice.Status,
		Subtotal:          invoice.Subtotal,
		TaxRate:           invoice.TaxRate,
		TaxAmount:         invoice.TaxAmount,
		Total:             invoice.Total,
		GlobalDiscount:    invoice.GlobalDiscount,
		IsReverseCharge:   invoice.IsReverseCharge,
		ReverseChargeNote: invoice.ReverseChargeNote,
		Notes:             invoice.Notes,
		PaidAt:            formatTimestampPtr(invoice.PaidAt),
		PaidAmount:        invoice.PaidAmount,
		Items:             make([]domain.InvoiceItemDTO, len(invoice.Items)),
		CreatedAt:         formatTimestamp(invoice.CreatedAt),
		UpdatedAt:         formatTimestamp(invoice.UpdatedAt),
	}
	if invoice.Client != nil {
		dto.ClientName = invoice.Client.Name
	}
	for i, item := range invoice.Items {
		dto.Items[i] = domain.InvoiceItemDTO{
			ID:          item.ID,
			Position:    item.Position,
			ProductName: item.ProductName,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitName:    item.UnitName,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			Discount:    item.Discount,
			Total:       item.Total,
		}
	}
	return dto
}

// ToQuoteDTO converts Quote to QuoteDTO
func ToQuoteDTO(quote *domain.Quote) domain.QuoteDTO {
	dto := domain.QuoteDTO{
		ID:                   quote.ID,
		Number:               quote.Number,
		UserID:               quote.UserID,
		ClientID:             quote.ClientID,
		IssueDate:            quote.IssueDate.Format(dateFormat),
		ValidUntil:           formatDatePtr(quote.ValidUntil),
		ServiceStart:         formatDatePtr(quote.ServiceStart),
		ServiceEnd:           formatDatePtr(quote.ServiceEnd),
		Status:               quote.Status,
		Subtotal:             quote.Subtotal,
		TaxRate:              quote.TaxRate,
		TaxAmount:            quote.TaxAmount,
		Total:                quote.Total,
		GlobalDiscount:       quote.GlobalDiscount,
		IsReverseCharge:      quote.IsReverseCharge,
		ReverseChargeNote:    quote.ReverseChargeNote,
		Notes:                quote.Notes,
		ConvertedToInvoiceID: quote.ConvertedToInvoiceID,
		ConvertedAt:          formatTimestampPtr(quote.ConvertedAt),
		Items:                make([]domain.QuoteItemDTO, len(quote.Items)),
		CreatedAt:            formatTimestamp(quote.CreatedAt),
		UpdatedAt:            formatTimestamp(quote.UpdatedAt),
	}
	if quote.Client != nil {
		dto.ClientName = quote.Client.Name
	}
	for i, item := range quote.Items {
		dto.Items[i] = domain.QuoteItemDTO{
			ID:          item.ID,
			Position:    item.Position,
			ProductName: item.ProductName,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitName:    item.UnitName,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			Discount:    item.Discount,
			Total:       item.Total,
		}
	}
	return dto
}

// ToAuditLogDTO converts AuditLog to AuditLogDTO
func ToAuditLogDTO(entry *domain.AuditLog) domain.AuditLogDTO {
	return domain.AuditLogDTO{
		ID:        entry.ID,
		UserID:    entry.UserID,
		UserEmail: entry.UserEmail,
		UserName:  entry.UserName,
		Action:    entry.Action,
		Details:   entry.Details,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		CreatedAt: formatTimestamp(entry.CreatedAt),
	}
}
