// Package billing contains the money arithmetic shared by invoices and
// quotes. All amounts are decimal and rounded half away from zero to two
// places, matching Austrian invoicing practice.
package billing

import (
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the Austrian standard VAT rate in percent.
var DefaultTaxRate = decimal.NewFromInt(20)

// ReverseChargeNote is the note printed on reverse-charge documents instead
// of a VAT amount (UStG 1994 §19 Abs 1).
const ReverseChargeNote = "Übergang der Steuerschuld auf den Leistungsempfänger gemäß § 19 Abs. 1 UStG (Reverse Charge)"

var oneHundred = decimal.NewFromInt(100)

// Line is a single billable position before calculation.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	// Discount is a percentage in [0, 100] applied to this line only.
	Discount decimal.Decimal
}

// Totals is the result of a document calculation.
type Totals struct {
	// LineTotals holds the rounded total per input line, same order.
	LineTotals []decimal.Decimal
	Subtotal   decimal.Decimal
	TaxRate    decimal.Decimal
	TaxAmount  decimal.Decimal
	Total      decimal.Decimal
}

// LineTotal computes quantity * unitPrice reduced by the line discount,
// rounded to two places.
func LineTotal(l Line) decimal.Decimal {
	gross := l.Quantity.Mul(l.UnitPrice)
	if !l.Discount.IsZero() {
		factor := oneHundred.Sub(l.Discount).Div(oneHundred)
		gross = gross.Mul(factor)
	}
	return gross.Round(2)
}

// Compute calculates document totals from its lines.
//
// Each line is rounded first, then summed, so the printed line amounts always
// add up to the printed subtotal. The global discount applies to the subtotal,
// tax to the discounted subtotal. When reverseCharge is set the tax amount is
// forced to zero regardless of the rate.
func Compute(lines []Line, globalDiscount, taxRate decimal.Decimal, reverseCharge bool) Totals {
	if reverseCharge {
		taxRate = decimal.Zero
	}
	t := Totals{
		LineTotals: make([]decimal.Decimal, len(lines)),
		TaxRate:    taxRate,
	}

	subtotal := decimal.Zero
	for i, l := range lines {
		lt := LineTotal(l)
		t.LineTotals[i] = lt
		subtotal = subtotal.Add(lt)
	}

	if !globalDiscount.IsZero() {
		factor := oneHundred.Sub(globalDiscount).Div(oneHundred)
		subtotal = subtotal.Mul(factor).Round(2)
	}
	t.Subtotal = subtotal

	t.TaxAmount = subtotal.Mul(taxRate).Div(oneHundred).Round(2)
	t.Total = subtotal.Add(t.TaxAmount)
	return t
}
