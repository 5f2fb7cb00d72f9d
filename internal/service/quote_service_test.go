package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/clearbill/billing-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteService_Create_UsesQuoteSequence(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)

	req := &domain.CreateQuoteRequest{
		Items: []domain.DocumentItemRequest{{Description: "Proposal", Quantity: dec("1"), UnitPrice: dec("100")}},
	}

	first, err := fx.quotes.Create(ctxAs(admin), req)
	require.NoError(t, err)
	second, err := fx.quotes.Create(ctxAs(admin), req)
	require.NoError(t, err)

	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("QUO-%d-0001", year), first.Number)
	assert.Equal(t, fmt.Sprintf("QUO-%d-0002", year), second.Number)
	assert.Equal(t, domain.QuoteStatusDraft, first.Status)
}

func TestQuoteService_Create_IndependentOfInvoiceSequence(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)

	items := []domain.DocumentItemRequest{{Description: "Work", Quantity: dec("1"), UnitPrice: dec("100")}}

	_, err := fx.invoices.Create(ctxAs(admin), &domain.CreateInvoiceRequest{Items: items})
	require.NoError(t, err)
	_, err = fx.invoices.Create(ctxAs(admin), &domain.CreateInvoiceRequest{Items: items})
	require.NoError(t, err)

	quote, err := fx.quotes.Create(ctxAs(admin), &domain.CreateQuoteRequest{Items: items})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("QUO-%d-0001", time.Now().UTC().Year()), quote.Number)
}

func TestQuoteService_UpdateStatus_Transitions(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")

	cases := []struct {
		name    string
		from    domain.QuoteStatus
		to      domain.QuoteStatus
		allowed bool
	}{
		{"draft to sent", domain.QuoteStatusDraft, domain.QuoteStatusSent, true},
		{"draft to accepted", domain.QuoteStatusDraft, domain.QuoteStatusAccepted, false},
		{"sent to accepted", domain.QuoteStatusSent, domain.QuoteStatusAccepted, true},
		{"sent to declined", domain.QuoteStatusSent, domain.QuoteStatusDeclined, true},
		{"accepted to declined", domain.QuoteStatusAccepted, domain.QuoteStatusDeclined, false},
		{"converted stays converted", domain.QuoteStatusConverted, domain.QuoteStatusSent, false},
		{"converted to converted", domain.QuoteStatusConverted, domain.QuoteStatusConverted, false},
		{"direct to converted", domain.QuoteStatusAccepted, domain.QuoteStatusConverted, false},
		{"same status no-op", domain.QuoteStatusSent, domain.QuoteStatusSent, true},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quote := testutil.CreateTestQuote(t, fx.db, admin, client, fmt.Sprintf("QUO-2025-%04d", i+10))
			require.NoError(t, fx.db.Model(quote).Update("status", tc.from).Error)

			dto, err := fx.quotes.UpdateStatus(ctxAs(admin), quote.ID, &domain.UpdateQuoteStatusRequest{Status: tc.to})
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.to, dto.Status)
			} else {
				assert.ErrorIs(t, err, service.ErrInvalidStatusTransition)
			}
		})
	}
}

func TestQuoteService_Update_ConvertedIsImmutable(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, admin, client, "QUO-2025-0001")
	require.NoError(t, fx.db.Model(quote).Update("status", domain.QuoteStatusConverted).Error)

	_, err := fx.quotes.Update(ctxAs(admin), quote.ID, &domain.UpdateQuoteRequest{Notes: strPtr("too late")})
	assert.ErrorIs(t, err, service.ErrAlreadyConverted)
}

func TestQuoteService_Update_ItemsOnlyOnDraft(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, admin, client, "QUO-2025-0001")
	require.NoError(t, fx.db.Model(quote).Update("status", domain.QuoteStatusSent).Error)

	_, err := fx.quotes.Update(ctxAs(admin), quote.ID, &domain.UpdateQuoteRequest{
		Items: []domain.DocumentItemRequest{{Description: "Changed", Quantity: dec("1"), UnitPrice: dec("999")}},
	})
	assert.ErrorIs(t, err, service.ErrNotDraft)
}

func TestQuoteService_Update_ReverseChargeWithoutItemsRecomputes(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "DE Import GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, admin, client, "QUO-2025-0001")

	dto, err := fx.quotes.Update(ctxAs(admin), quote.ID, &domain.UpdateQuoteRequest{
		IsReverseCharge: boolPtr(true),
	})
	require.NoError(t, err)

	assert.True(t, dto.IsReverseCharge)
	assert.NotEmpty(t, dto.ReverseChargeNote)
	assert.True(t, dto.TaxAmount.IsZero(), "tax was %s", dto.TaxAmount)
	assert.True(t, dto.Total.Equal(dec("100.00")), "total was %s", dto.Total)
}

func TestQuoteService_ConvertToInvoice(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, admin, client, "QUO-2025-0001")
	require.NoError(t, fx.db.Model(quote).Update("status", domain.QuoteStatusAccepted).Error)

	before := time.Now().UTC()
	resp, err := fx.quotes.ConvertToInvoice(ctxAs(admin), nil, quote.ID)
	require.NoError(t, err)

	// The quote is closed out and linked to the new invoice.
	assert.Equal(t, domain.QuoteStatusConverted, resp.Quote.Status)
	require.NotNil(t, resp.Quote.ConvertedToInvoiceID)
	assert.Equal(t, resp.Invoice.ID, *resp.Quote.ConvertedToInvoiceID)
	assert.NotNil(t, resp.Quote.ConvertedAt)

	// The invoice starts its own lifecycle from DRAFT with a fresh number.
	inv := resp.Invoice
	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, fmt.Sprintf("INV-%d-0001", before.Year()), inv.Number)
	require.NotNil(t, inv.DueDate)

	// Amounts and items are carried over verbatim, not recomputed.
	assert.True(t, inv.Subtotal.Equal(dec("100")))
	assert.True(t, inv.TaxAmount.Equal(dec("20")))
	assert.True(t, inv.Total.Equal(dec("120")))
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "One day of consulting", inv.Items[0].Description)
	assert.True(t, inv.Items[0].UnitPrice.Equal(dec("100")))

	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionQuoteConvertedToInvoice))
}

func TestQuoteService_ConvertToInvoice_OnlyOnce(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, admin, client, "QUO-2025-0001")

	_, err := fx.quotes.ConvertToInvoice(ctxAs(admin), nil, quote.ID)
	require.NoError(t, err)

	_, err = fx.quotes.ConvertToInvoice(ctxAs(admin), nil, quote.ID)
	assert.ErrorIs(t, err, service.ErrAlreadyConverted)
}

func TestQuoteService_ConvertToInvoice_RequiresAdmin(t *testing.T) {
	fx := setupDocumentServices(t)
	owner := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, owner, client, "QUO-2025-0001")

	_, err := fx.quotes.ConvertToInvoice(ctxAs(owner), nil, quote.ID)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}

func TestQuoteService_ConvertToInvoice_CopiesReverseCharge(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "DE Import GmbH")

	quoteDTO, err := fx.quotes.Create(ctxAs(admin), &domain.CreateQuoteRequest{
		ClientID:        &client.ID,
		IsReverseCharge: true,
		Items:           []domain.DocumentItemRequest{{Description: "Export", Quantity: dec("1"), UnitPrice: dec("1000")}},
	})
	require.NoError(t, err)

	resp, err := fx.quotes.ConvertToInvoice(ctxAs(admin), nil, quoteDTO.ID)
	require.NoError(t, err)

	assert.True(t, resp.Invoice.IsReverseCharge)
	assert.True(t, resp.Invoice.TaxAmount.IsZero())
	assert.NotEmpty(t, resp.Invoice.ReverseChargeNote)
	assert.True(t, resp.Invoice.Total.Equal(dec("1000.00")))
}

func TestQuoteService_Send_DeliversAndMarksSent(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, admin, client, "QUO-2025-0001")

	resp, err := fx.quotes.Send(ctxAs(admin), nil, quote.ID, &domain.SendDocumentRequest{})
	require.NoError(t, err)

	assert.True(t, resp.Sent)
	assert.Equal(t, client.Email, resp.Recipient)

	require.Len(t, fx.mail.sent, 1)
	assert.Equal(t, "Angebot QUO-2025-0001", fx.mail.sent[0].Subject)
	assert.Equal(t, []string{"quotes/QUO-2025-0001.pdf"}, fx.archive.paths)

	dto, err := fx.quotes.GetByID(ctxAs(admin), quote.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusSent, dto.Status)

	assert.Equal(t, int64(1), countAuditRows(t, fx.db, domain.AuditActionQuoteSent))
}

func TestQuoteService_Send_ExplicitRecipientWins(t *testing.T) {
	fx := setupDocumentServices(t)
	admin := testutil.CreateTestUser(t, fx.db, domain.RoleAdmin)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, admin, client, "QUO-2025-0001")

	resp, err := fx.quotes.Send(ctxAs(admin), nil, quote.ID, &domain.SendDocumentRequest{
		Recipient: "procurement@example.com",
		Message:   "Wie besprochen unser Angebot.",
	})
	require.NoError(t, err)

	assert.Equal(t, "procurement@example.com", resp.Recipient)
	require.Len(t, fx.mail.sent, 1)
	assert.Equal(t, "procurement@example.com", fx.mail.sent[0].To)
	assert.Equal(t, "Wie besprochen unser Angebot.", fx.mail.sent[0].Body)
}

func TestQuoteService_GetByID_EnforcesOwnership(t *testing.T) {
	fx := setupDocumentServices(t)
	owner := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	stranger := testutil.CreateTestUser(t, fx.db, domain.RoleClient)
	client := testutil.CreateTestClient(t, fx.db, "ACME GmbH")
	quote := testutil.CreateTestQuote(t, fx.db, owner, client, "QUO-2025-0001")

	_, err := fx.quotes.GetByID(ctxAs(owner), quote.ID)
	assert.NoError(t, err)

	_, err = fx.quotes.GetByID(ctxAs(stranger), quote.ID)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}
