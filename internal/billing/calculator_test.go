package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name string
		line Line
		want string
	}{
		{
			name: "no discount",
			line: Line{Quantity: d("2"), UnitPrice: d("100")},
			want: "200.00",
		},
		{
			name: "ten percent discount",
			line: Line{Quantity: d("2"), UnitPrice: d("100"), Discount: d("10")},
			want: "180.00",
		},
		{
			name: "fractional quantity",
			line: Line{Quantity: d("1.5"), UnitPrice: d("99.99")},
			want: "149.99",
		},
		{
			name: "rounds half away from zero",
			line: Line{Quantity: d("3"), UnitPrice: d("0.335")},
			want: "1.01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineTotal(tt.line)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestCompute(t *testing.T) {
	lines := []Line{{Quantity: d("2"), UnitPrice: d("100"), Discount: d("10")}}

	t.Run("standard VAT", func(t *testing.T) {
		got := Compute(lines, decimal.Zero, d("20"), false)
		assert.Equal(t, "180.00", got.Subtotal.StringFixed(2))
		assert.Equal(t, "36.00", got.TaxAmount.StringFixed(2))
		assert.Equal(t, "216.00", got.Total.StringFixed(2))
	})

	t.Run("global discount", func(t *testing.T) {
		got := Compute(lines, d("10"), d("20"), false)
		assert.Equal(t, "162.00", got.Subtotal.StringFixed(2))
		assert.Equal(t, "32.40", got.TaxAmount.StringFixed(2))
		assert.Equal(t, "194.40", got.Total.StringFixed(2))
	})

	t.Run("reverse charge zeroes tax", func(t *testing.T) {
		got := Compute(lines, decimal.Zero, d("20"), true)
		assert.True(t, got.TaxRate.IsZero())
		assert.Equal(t, "0.00", got.TaxAmount.StringFixed(2))
		assert.Equal(t, got.Subtotal.StringFixed(2), got.Total.StringFixed(2))
	})

	t.Run("line totals sum to subtotal", func(t *testing.T) {
		many := []Line{
			{Quantity: d("3"), UnitPrice: d("33.333")},
			{Quantity: d("7"), UnitPrice: d("14.285"), Discount: d("5")},
			{Quantity: d("1"), UnitPrice: d("0.005")},
		}
		got := Compute(many, decimal.Zero, d("20"), false)
		require.Len(t, got.LineTotals, 3)

		sum := decimal.Zero
		for _, lt := range got.LineTotals {
			assert.True(t, lt.Equal(lt.Round(2)), "line total must already be rounded")
			sum = sum.Add(lt)
		}
		assert.True(t, sum.Equal(got.Subtotal))
	})

	t.Run("recomputing rounded output is stable", func(t *testing.T) {
		first := Compute(lines, d("7"), d("20"), false)
		again := Compute([]Line{{Quantity: d("1"), UnitPrice: first.Subtotal}}, decimal.Zero, d("20"), false)
		assert.Equal(t, first.Subtotal.StringFixed(2), again.Subtotal.StringFixed(2))
	})

	t.Run("empty item list", func(t *testing.T) {
		got := Compute(nil, decimal.Zero, d("20"), false)
		assert.Equal(t, "0.00", got.Subtotal.StringFixed(2))
		assert.Equal(t, "0.00", got.Total.StringFixed(2))
	})
}
