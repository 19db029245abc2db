package money

import "testing"

func TestComputeLineRoundsTaxHalfUp(t *testing.T) {
	// 3 * 333 = 999, tax 8.25% = 82.4175 -> 82
	amounts := ComputeLine(Line{Quantity: 3, UnitPriceCents: 333, TaxRate: 0.0825})
	if amounts.SubtotalCents != 999 {
		t.Fatalf("expected subtotal 999, got %d", amounts.SubtotalCents)
	}
	if amounts.TaxCents != 82 {
		t.Fatalf("expected tax 82, got %d", amounts.TaxCents)
	}
	if amounts.TotalCents != 1081 {
		t.Fatalf("expected total 1081, got %d", amounts.TotalCents)
	}

	// 1 * 150 at 5% = 7.5 -> rounds up to 8
	amounts = ComputeLine(Line{Quantity: 1, UnitPriceCents: 150, TaxRate: 0.05})
	if amounts.TaxCents != 8 {
		t.Fatalf("expected half-up tax 8, got %d", amounts.TaxCents)
	}
}

func TestComputeLineDiscountCappedAtSubtotal(t *testing.T) {
	amounts := ComputeLine(Line{Quantity: 1, UnitPriceCents: 500, DiscountCents: 900, TaxRate: 0.1})
	if amounts.DiscountCents != 500 {
		t.Fatalf("expected discount capped at 500, got %d", amounts.DiscountCents)
	}
	if amounts.TaxCents != 0 || amounts.TotalCents != 0 {
		t.Fatalf("expected zeroed line, got %+v", amounts)
	}
}

func TestSumDoesNotReRound(t *testing.T) {
	// Two lines whose taxes each round up; summing pre-rounded lines must
	// keep both cents instead of rounding the combined raw tax once.
	lineA := ComputeLine(Line{Quantity: 1, UnitPriceCents: 150, TaxRate: 0.05}) // raw 7.5 -> 8
	lineB := ComputeLine(Line{Quantity: 1, UnitPriceCents: 150, TaxRate: 0.05}) // raw 7.5 -> 8

	totals := Sum([]LineAmounts{lineA, lineB})
	if totals.TaxCents != 16 {
		t.Fatalf("expected summed tax 16 (8+8), got %d", totals.TaxCents)
	}
	if totals.TotalCents != 316 {
		t.Fatalf("expected total 316, got %d", totals.TotalCents)
	}
}

func TestTotalsIdentity(t *testing.T) {
	lines := []LineAmounts{
		ComputeLine(Line{Quantity: 2, UnitPriceCents: 1299, DiscountCents: 100, TaxRate: 0.0825}),
		ComputeLine(Line{Quantity: 1, UnitPriceCents: 450, TaxRate: 0.0825}),
		ComputeLine(Line{Quantity: 5, UnitPriceCents: 89, TaxRate: 0}),
	}
	totals := Sum(lines)
	if totals.SubtotalCents+totals.TaxCents-totals.DiscountCents != totals.TotalCents {
		t.Fatalf("totals identity violated: %+v", totals)
	}
}
