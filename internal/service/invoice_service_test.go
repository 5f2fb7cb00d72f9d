package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/clearbill/billing-api/internal/billing"
	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/clearbill/billing-api/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func boolPtr(b bool) *bool { return &b }

func TestInvoiceService_Create_ComputesTotals(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")

	req := &domain.CreateInvoiceRequest{
		ClientID:       &client.ID,
		GlobalDiscount: dec("10"),
		Items: []domain.DocumentItemRequest{
			{Description: "Consulting", Quantity: dec("3"), UnitPrice: dec("100"), Discount: dec("10")},
			{Description: "Travel", Quantity: dec("1"), UnitPrice: dec("50")},
		},
	}

	dto, err := fx.invoices.Create(ctxAs(admin), req)
	require.NoError(t, err)

	// Lines: 3*100 less 10% = 270.00, 1*50 = 50.00. Subtotal 320.00 less
	// the 10% global discount = 288.00, plus 20% VAT = 345.60.
	assert.True(t, dto.Subtotal.Equal(dec("288.00")), "subtotal was %s", dto.Subtotal)
	assert.True(t, dto.TaxAmount.Equal(dec("57.60")), "tax was %s", dto.TaxAmount)
	assert.True(t, dto.Total.Equal(dec("345.60")), "total was %s", dto.Total)
	assert.Equal(t, domain.InvoiceStatusDraft, dto.Status)
	require.Len(t, dto.Items, 2)
	assert.True(t, dto.Items[0].Total.Equal(dec("270.00")))
	assert.True(t, dto.Items[1].Total.Equal(dec("50.00")))
	assert.Equal(t, fmt.Sprintf("INV-%d-0001", time.Now().UTC().Year()), dto.Number)
}

func TestInvoiceService_Create_SequentialNumbers(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")

	req := &domain.CreateInvoiceRequest{
		ClientID: &client.ID,
		Items:    []domain.DocumentItemRequest{{Description: "Work", Quantity: dec("1"), UnitPrice: dec("100")}},
	}

	first, err := fx.invoices.Create(ctxAs(admin), req)
	require.NoError(t, err)
	second, err := fx.invoices.Create(ctxAs(admin), req)
	require.NoError(t, err)

	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("INV-%d-0001", year), first.Number)
	assert.Equal(t, fmt.Sprintf("INV-%d-0002", year), second.Number)
}

func TestInvoiceService_Create_ReverseCharge(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)

	req := &domain.CreateInvoiceRequest{
		IsReverseCharge: true,
		Items:           []domain.DocumentItemRequest{{Description: "Export service", Quantity: dec("2"), UnitPrice: dec("500")}},
	}

	dto, err := fx.invoices.Create(ctxAs(admin), req)
	require.NoError(t, err)

	assert.True(t, dto.TaxRate.IsZero(), "tax rate was %s", dto.TaxRate)
	assert.True(t, dto.TaxAmount.IsZero())
	assert.True(t, dto.Total.Equal(dec("1000.00")))
	assert.Equal(t, billing.ReverseChargeNote, dto.ReverseChargeNote)
}

func TestInvoiceService_Create_CustomNumber(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)

	req := &domain.CreateInvoiceRequest{
		Number: "INV-2020-0099",
		Items:  []domain.DocumentItemRequest{{Description: "Backdated", Quantity: dec("1"), UnitPrice: dec("10")}},
	}

	dto, err := fx.invoices.Create(ctxAs(admin), req)
	require.NoError(t, err)
	assert.Equal(t, "INV-2020-0099", dto.Number)

	// The same custom number again is a conflict, not a silent renumber.
	_, err = fx.invoices.Create(ctxAs(admin), req)
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestInvoiceService_Create_OwnerFromClientLink(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	clientUser := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	client := testutil.CreateTestClient(t, fx.db, "Linked GmbH")
	require.NoError(t, fx.db.Model(client).Update("user_id", clientUser.ID).Error)

	req := &domain.CreateInvoiceRequest{
		ClientID: &client.ID,
		Items:    []domain.DocumentItemRequest{{Description: "Work", Quantity: dec("1"), UnitPrice: dec("100")}},
	}

	dto, err := fx.invoices.Create(ctxAs(admin), req)
	require.NoError(t, err)
	assert.Equal(t, clientUser.ID, dto.UserID)
}

func TestInvoiceService_Create_ExplicitUserRequiresAdmin(t *testing.T) {
	fx := setupDocumentServices(t)
	clientUser := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	other := testutil.CreateTestUser(t, fx.db, domain.RoleClient)

	req := &domain.CreateInvoiceRequest{
		UserID: &other.ID,
		Items:  []domain.DocumentItemRequest{{Description: "Work", Quantity: dec("1"), UnitPrice: dec("100")}},
	}

	_, err := fx.invoices.Create(ctxAs(clientUser), req)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}

func TestInvoiceService_Create_RejectsInvalidItems(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)

	cases := []struct {
		name string
		item domain.DocumentItemRequest
	}{
		{"zero quantity", domain.DocumentItemRequest{Description: "x", Quantity: dec("0"), UnitPrice: dec("10")}},
		{"negative price", domain.DocumentItemRequest{Description: "x", Quantity: dec("1"), UnitPrice: dec("-5")}},
		{"discount above 100", domain.DocumentItemRequest{Description: "x", Quantity: dec("1"), UnitPrice: dec("10"), Discount: dec("101")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.invoices.Create(ctxAs(admin), &domain.CreateInvoiceRequest{
				Items: []domain.DocumentItemRequest{tc.item},
			})
			assert.ErrorIs(t, err, service.ErrInvalidInput)
		})
	}
}

func TestInvoiceService_GetByID_EnforcesOwnership(t *testing.T) {
	fx := setupDocumentServices(t)
	owner := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	stranger := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, owner, client, "INV-2025-0001")

	_, err := fx.invoices.GetByID(ctxAs(owner), invoice.ID)
	assert.NoError(t, err)

	_, err = fx.invoices.GetByID(ctxAs(stranger), invoice.ID)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)

	_, err = fx.invoices.GetByID(ctxAs(admin), invoice.ID)
	assert.NoError(t, err)
}

func TestInvoiceService_List_ClientScopedToOwnDocuments(t *testing.T) {
	fx := setupDocumentServices(t)
	owner := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	other := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	testutil.CreateTestInvoice(t, fx.db, owner, client, "INV-2025-0001")
	testutil.CreateTestInvoice(t, fx.db, other, client, "INV-2025-0002")

	// A client asking for someone else's documents still only gets their own.
	result, err := fx.invoices.List(ctxAs(owner), repository.InvoiceFilter{UserID: &other.ID}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	dtos := result.Data.([]domain.InvoiceDTO)
	require.Len(t, dtos, 1)
	assert.Equal(t, owner.ID, dtos[0].UserID)
}

func TestInvoiceService_Update_ItemsOnlyOnDraft(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")
	require.NoError(t, fx.db.Model(invoice).Update("status", domain.InvoiceStatusSent).Error)

	_, err := fx.invoices.Update(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceRequest{
		Items: []domain.DocumentItemRequest{{Description: "Changed", Quantity: dec("1"), UnitPrice: dec("999")}},
	})
	assert.ErrorIs(t, err, service.ErrNotDraft)

	// Non-item fields of a sent invoice stay editable, and totals are untouched.
	dto, err := fx.invoices.Update(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceRequest{
		Notes: strPtr("Zahlbar binnen 14 Tagen"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Zahlbar binnen 14 Tagen", dto.Notes)
	assert.True(t, dto.Total.Equal(dec("120")), "total was %s", dto.Total)
	require.Len(t, dto.Items, 1)
}

func TestInvoiceService_Update_ReverseChargeWithoutItemsRecomputes(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "DE Import GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")
	require.NoError(t, fx.db.Model(invoice).Update("status", domain.InvoiceStatusSent).Error)

	// Toggling reverse charge without touching the items must still zero the
	// tax, not just attach the note.
	dto, err := fx.invoices.Update(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceRequest{
		IsReverseCharge: boolPtr(true),
	})
	require.NoError(t, err)
	assert.True(t, dto.IsReverseCharge)
	assert.NotEmpty(t, dto.ReverseChargeNote)
	assert.True(t, dto.TaxAmount.IsZero(), "tax was %s", dto.TaxAmount)
	assert.True(t, dto.Subtotal.Equal(dec("100.00")), "subtotal was %s", dto.Subtotal)
	assert.True(t, dto.Total.Equal(dec("100.00")), "total was %s", dto.Total)
	require.Len(t, dto.Items, 1)

	// Toggling back with an explicit rate restores the tax and drops the note.
	dto, err = fx.invoices.Update(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceRequest{
		IsReverseCharge: boolPtr(false),
		TaxRate:         decPtr("20"),
	})
	require.NoError(t, err)
	assert.False(t, dto.IsReverseCharge)
	assert.Empty(t, dto.ReverseChargeNote)
	assert.True(t, dto.TaxAmount.Equal(dec("20.00")), "tax was %s", dto.TaxAmount)
	assert.True(t, dto.Total.Equal(dec("120.00")), "total was %s", dto.Total)
}

func TestInvoiceService_Update_GlobalDiscountWithoutItemsRecomputes(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")

	dto, err := fx.invoices.Update(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceRequest{
		GlobalDiscount: decPtr("10"),
	})
	require.NoError(t, err)

	assert.True(t, dto.GlobalDiscount.Equal(dec("10")))
	assert.True(t, dto.Subtotal.Equal(dec("90.00")), "subtotal was %s", dto.Subtotal)
	assert.True(t, dto.TaxAmount.Equal(dec("18.00")), "tax was %s", dto.TaxAmount)
	assert.True(t, dto.Total.Equal(dec("108.00")), "total was %s", dto.Total)
}

func TestInvoiceService_Update_ReplacesItemsWholesale(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")

	dto, err := fx.invoices.Update(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceRequest{
		Items: []domain.DocumentItemRequest{
			{Description: "New line A", Quantity: dec("2"), UnitPrice: dec("40")},
			{Description: "New line B", Quantity: dec("1"), UnitPrice: dec("20")},
		},
	})
	require.NoError(t, err)

	// The old item is gone, exactly the new set remains, totals recomputed.
	require.Len(t, dto.Items, 2)
	assert.Equal(t, "New line A", dto.Items[0].Description)
	assert.Equal(t, 1, dto.Items[0].Position)
	assert.Equal(t, 2, dto.Items[1].Position)
	assert.True(t, dto.Subtotal.Equal(dec("100.00")), "subtotal was %s", dto.Subtotal)
	assert.True(t, dto.Total.Equal(dec("120.00")), "total was %s", dto.Total)
}

func TestInvoiceService_Update_RequiresAdmin(t *testing.T) {
	fx := setupDocumentServices(t)
	owner := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, owner, client, "INV-2025-0001")

	_, err := fx.invoices.Update(ctxAs(owner), invoice.ID, &domain.UpdateInvoiceRequest{Notes: strPtr("mine")})
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}

func TestInvoiceService_UpdateStatus_Transitions(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")

	cases := []struct {
		name    string
		from    domain.InvoiceStatus
		to      domain.InvoiceStatus
		allowed bool
	}{
		{"draft to sent", domain.InvoiceStatusDraft, domain.InvoiceStatusSent, true},
		{"draft to paid", domain.InvoiceStatusDraft, domain.InvoiceStatusPaid, false},
		{"sent to paid", domain.InvoiceStatusSent, domain.InvoiceStatusPaid, true},
		{"sent to overdue", domain.InvoiceStatusSent, domain.InvoiceStatusOverdue, true},
		{"overdue to paid", domain.InvoiceStatusOverdue, domain.InvoiceStatusPaid, true},
		{"sent to cancelled", domain.InvoiceStatusSent, domain.InvoiceStatusCancelled, true},
		{"paid to cancelled", domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled, false},
		{"cancelled to sent", domain.InvoiceStatusCancelled, domain.InvoiceStatusSent, false},
		{"same status no-op", domain.InvoiceStatusSent, domain.InvoiceStatusSent, true},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, fmt.Sprintf("INV-2025-%04d", i+10))
			require.NoError(t, fx.db.Model(invoice).Update("status", tc.from).Error)

			dto, err := fx.invoices.UpdateStatus(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceStatusRequest{Status: tc.to})
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.to, dto.Status)
			} else {
				assert.ErrorIs(t, err, service.ErrInvalidStatusTransition)
			}
		})
	}
}

func TestInvoiceService_UpdateStatus_PaidStampsPayment(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")
	require.NoError(t, fx.db.Model(invoice).Update("status", domain.InvoiceStatusSent).Error)

	dto, err := fx.invoices.UpdateStatus(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceStatusRequest{Status: domain.InvoiceStatusPaid})
	require.NoError(t, err)

	require.NotNil(t, dto.PaidAt)
	require.NotNil(t, dto.PaidAmount)
	assert.True(t, dto.PaidAmount.Equal(dec("120")), "paid amount was %s", dto.PaidAmount)
}

func TestInvoiceService_UpdateStatus_PartialPayment(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")
	require.NoError(t, fx.db.Model(invoice).Update("status", domain.InvoiceStatusSent).Error)

	paid := dec("100.50")
	dto, err := fx.invoices.UpdateStatus(ctxAs(admin), invoice.ID, &domain.UpdateInvoiceStatusRequest{
		Status:     domain.InvoiceStatusPaid,
		PaidAmount: &paid,
	})
	require.NoError(t, err)
	require.NotNil(t, dto.PaidAmount)
	assert.True(t, dto.PaidAmount.Equal(paid))
}

func TestInvoiceService_Send_DeliversAndMarksSent(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")

	resp, err := fx.invoices.Send(ctxAs(admin), nil, invoice.ID, &domain.SendDocumentRequest{})
	require.NoError(t, err)

	assert.True(t, resp.Sent)
	assert.Equal(t, "sent", resp.Status)
	assert.Equal(t, client.Email, resp.Recipient)

	require.Len(t, fx.mail.sent, 1)
	assert.Equal(t, "Rechnung INV-2025-0001", fx.mail.sent[0].Subject)
	assert.Equal(t, "INV-2025-0001.pdf", fx.mail.sent[0].AttachmentName)
	assert.Contains(t, fx.mail.sent[0].Body, "INV-2025-0001")

	assert.Equal(t, []string{"invoices/INV-2025-0001.pdf"}, fx.archive.paths)

	dto, err := fx.invoices.GetByID(ctxAs(admin), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSent, dto.Status)

	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionInvoiceSent))
}

func TestInvoiceService_Send_SendCopy(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")

	_, err := fx.invoices.Send(ctxAs(admin), nil, invoice.ID, &domain.SendDocumentRequest{SendCopy: true})
	require.NoError(t, err)

	require.Len(t, fx.mail.sent, 2)
	assert.Equal(t, admin.Email, fx.mail.sent[1].To)
	assert.Equal(t, "[Copy] Rechnung INV-2025-0001", fx.mail.sent[1].Subject)
}

func TestInvoiceService_Send_DegradedMailReportsSkipped(t *testing.T) {
	fx := setupDocumentServices(t)
	fx.mail.enabled = false
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")

	resp, err := fx.invoices.Send(ctxAs(admin), nil, invoice.ID, &domain.SendDocumentRequest{})
	require.NoError(t, err)

	assert.False(t, resp.Sent)
	assert.Equal(t, "skipped", resp.Status)

	// The invoice still transitions, the operation is a no-op delivery.
	dto, err := fx.invoices.GetByID(ctxAs(admin), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSent, dto.Status)
}

func TestInvoiceService_Send_RenderFailureIsDeliveryError(t *testing.T) {
	fx := setupDocumentServices(t)
	fx.renderer.broken = true
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")

	_, err := fx.invoices.Send(ctxAs(admin), nil, invoice.ID, &domain.SendDocumentRequest{})
	assert.ErrorIs(t, err, service.ErrDelivery)

	// The invoice survives the failed delivery untouched.
	dto, getErr := fx.invoices.GetByID(ctxAs(admin), invoice.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.InvoiceStatusDraft, dto.Status)
}

func TestInvoiceService_Send_MailFailureIsDeliveryError(t *testing.T) {
	fx := setupDocumentServices(t)
	fx.mail.broken = true
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")

	_, err := fx.invoices.Send(ctxAs(admin), nil, invoice.ID, &domain.SendDocumentRequest{})
	assert.ErrorIs(t, err, service.ErrDelivery)
}

func TestInvoiceService_Send_NoRecipient(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	require.NoError(t, fx.db.Model(client).Update("email", "").Error)
	invoice := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")

	_, err := fx.invoices.Send(ctxAs(admin), nil, invoice.ID, &domain.SendDocumentRequest{})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestInvoiceService_MarkOverdue(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	nextWeek := time.Now().UTC().AddDate(0, 0, 7)

	pastDue := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0001")
	require.NoError(t, fx.db.Model(pastDue).Updates(map[string]interface{}{
		"status": domain.InvoiceStatusSent, "due_date": yesterday,
	}).Error)

	notDue := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0002")
	require.NoError(t, fx.db.Model(notDue).Updates(map[string]interface{}{
		"status": domain.InvoiceStatusSent, "due_date": nextWeek,
	}).Error)

	draftPastDue := testutil.CreateTestInvoice(t, fx.db, admin, client, "INV-2025-0003")
	require.NoError(t, fx.db.Model(draftPastDue).Update("due_date", yesterday).Error)

	count, err := fx.invoices.MarkOverdue(ctxAs(admin))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	dto, err := fx.invoices.GetByID(ctxAs(admin), pastDue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOverdue, dto.Status)

	dto, err = fx.invoices.GetByID(ctxAs(admin), draftPastDue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, dto.Status)
}

func TestInvoiceService_Stats_ClientSeesOwnFiguresOnly(t *testing.T) {
	fx := setupDocumentServices(t)
	owner := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	other := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")

	own := testutil.CreateTestInvoice(t, fx.db, owner, client, "INV-2025-0001")
	require.NoError(t, fx.db.Model(own).Update("status", domain.InvoiceStatusPaid).Error)
	testutil.CreateTestInvoice(t, fx.db, other, client, "INV-2025-0002")

	stats, err := fx.invoices.Stats(ctxAs(owner), &other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalCount)
	assert.Equal(t, int64(1), stats.PaidCount)
	assert.True(t, stats.TotalRevenue.Equal(dec("120")), "revenue was %s", stats.TotalRevenue)

	all, err := fx.invoices.Stats(ctxAs(admin), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.TotalCount)
}

func TestInvoiceService_Delete_RequiresAdmin(t *testing.T) {
	fx := setupDocumentServices(t)
	owner := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	invoice := testutil.CreateTestInvoice(t, fx.db, owner, client, "INV-2025-0001")

	err := fx.invoices.Delete(ctxAs(owner), invoice.ID)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)

	require.NoError(t, fx.invoices.Delete(ctxAs(admin), invoice.ID))

	_, err = fx.invoices.GetByID(ctxAs(admin), invoice.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}
