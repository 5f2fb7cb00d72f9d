package handler

import (
	"testing"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUpdateRequestValidation_ItemsOptional(t *testing.T) {
	notes := "Zahlbar binnen 14 Tagen"

	// A partial update without items must pass validation, otherwise the
	// item-less update path is unreachable over HTTP.
	err := validate.Struct(domain.UpdateInvoiceRequest{Notes: &notes})
	assert.NoError(t, err)

	err = validate.Struct(domain.UpdateQuoteRequest{Notes: &notes})
	assert.NoError(t, err)
}

func TestUpdateRequestValidation_SuppliedItemsStillChecked(t *testing.T) {
	// When items are supplied they are validated as on create.
	err := validate.Struct(domain.UpdateInvoiceRequest{
		Items: []domain.DocumentItemRequest{
			{Description: "", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)},
		},
	})
	assert.Error(t, err)
}

func TestCreateRequestValidation_ItemsRequired(t *testing.T) {
	err := validate.Struct(domain.CreateInvoiceRequest{})
	assert.Error(t, err)
}
