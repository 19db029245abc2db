package domain

import (
	"math/rand"
	"testing"
)

func TestDerivePurchaseOrderStatusNoneReceived(t *testing.T) {
	items := []PurchaseOrderItem{
		{ProductID: "p1", QtyOrdered: 10, QtyReceived: 0},
		{ProductID: "p2", QtyOrdered: 5, QtyReceived: 0},
	}
	if got := DerivePurchaseOrderStatus(items); got != POStatusApproved {
		t.Fatalf("expected approved, got %s", got)
	}
}

func TestDerivePurchaseOrderStatusPartial(t *testing.T) {
	items := []PurchaseOrderItem{
		{ProductID: "p1", QtyOrdered: 10, QtyReceived: 10},
		{ProductID: "p2", QtyOrdered: 5, QtyReceived: 0},
	}
	if got := DerivePurchaseOrderStatus(items); got != POStatusPartiallyReceived {
		t.Fatalf("expected partially_received, got %s", got)
	}
}

func TestDerivePurchaseOrderStatusAllReceived(t *testing.T) {
	items := []PurchaseOrderItem{
		{ProductID: "p1", QtyOrdered: 10, QtyReceived: 10},
		{ProductID: "p2", QtyOrdered: 5, QtyReceived: 5},
	}
	if got := DerivePurchaseOrderStatus(items); got != POStatusReceived {
		t.Fatalf("expected received, got %s", got)
	}
}

// Property: the derived status always agrees with a direct evaluation of the
// item totals, for random (ordered, received) pairs.
func TestDerivePurchaseOrderStatusProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 500; round++ {
		count := 1 + rng.Intn(6)
		items := make([]PurchaseOrderItem, 0, count)
		for i := 0; i < count; i++ {
			ordered := 1 + rng.Intn(100)
			received := rng.Intn(ordered + 1)
			items = append(items, PurchaseOrderItem{
				QtyOrdered:  ordered,
				QtyReceived: received,
			})
		}

		totalOrdered, totalReceived := 0, 0
		allFull := true
		for _, item := range items {
			totalOrdered += item.QtyOrdered
			totalReceived += item.QtyReceived
			if item.QtyReceived < item.QtyOrdered {
				allFull = false
			}
			if item.QtyPending() != item.QtyOrdered-item.QtyReceived {
				t.Fatalf("pending mismatch for %+v", item)
			}
		}

		want := POStatusApproved
		switch {
		case allFull:
			want = POStatusReceived
		case totalReceived > 0:
			want = POStatusPartiallyReceived
		}

		if got := DerivePurchaseOrderStatus(items); got != want {
			t.Fatalf("round %d: expected %s, got %s (items=%+v)", round, want, got, items)
		}
	}
}

func TestTerminalPOStatus(t *testing.T) {
	for _, status := range []string{POStatusClosed, POStatusCancelled} {
		if !TerminalPOStatus(status) {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	for _, status := range []string{POStatusDraft, POStatusSubmitted, POStatusApproved, POStatusPartiallyReceived, POStatusReceived} {
		if TerminalPOStatus(status) {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}
