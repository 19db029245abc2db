// Package money owns the line-item arithmetic for sale transactions.
// All amounts are int64 cents; intermediate tax math runs through
// shopspring/decimal so rounding is exact rather than float-approximate.
package money

import "github.com/shopspring/decimal"

type Line struct {
	Quantity       int
	UnitPriceCents int64
	DiscountCents  int64
	TaxRate        float64
}

type LineAmounts struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TotalCents    int64
}

type Totals struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TotalCents    int64
}

// ComputeLine rounds the tax amount half-up to the cent. Each line is
// rounded independently; callers sum already-rounded lines and must not
// re-round the sums, so client and server reconcile penny-exact.
func ComputeLine(line Line) LineAmounts {
	subtotal := int64(line.Quantity) * line.UnitPriceCents
	discount := line.DiscountCents
	if discount > subtotal {
		discount = subtotal
	}

	taxable := decimal.NewFromInt(subtotal - discount)
	tax := taxable.Mul(decimal.NewFromFloat(line.TaxRate)).Round(0).IntPart()

	return LineAmounts{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TaxCents:      tax,
		TotalCents:    subtotal - discount + tax,
	}
}

// Sum adds already-rounded line amounts into transaction totals.
func Sum(lines []LineAmounts) Totals {
	var totals Totals
	for _, line := range lines {
		totals.SubtotalCents += line.SubtotalCents
		totals.DiscountCents += line.DiscountCents
		totals.TaxCents += line.TaxCents
		totals.TotalCents += line.TotalCents
	}
	return totals
}
