package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
)

func newTestStore(t *testing.T) (*Store, domain.Vendor, domain.Product) {
	t.Helper()
	s := New()
	ctx := context.Background()

	vendor, err := s.CreateVendor(ctx, domain.Vendor{Name: "Test Vendor"})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		SKU:             "SKU-TEST-01",
		Name:            "Test Product",
		VendorID:        vendor.ID,
		UnitPriceCents:  500,
		TaxRate:         0.1,
		QuantityInStock: 10,
		ReorderLevel:    5,
		ReorderQuantity: 20,
		Active:          true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return s, *vendor, *product
}

func saleTx(product domain.Product, qty int) domain.Transaction {
	return domain.Transaction{
		CashierID:  "cashier",
		TerminalID: "t1",
		Items: []domain.TransactionItem{{
			ProductID:         product.ID,
			SKU:               product.SKU,
			Name:              product.Name,
			Quantity:          qty,
			UnitPriceCents:    product.UnitPriceCents,
			TaxRate:           product.TaxRate,
			LineSubtotalCents: int64(qty) * product.UnitPriceCents,
		}},
		Payments: []domain.Payment{{Method: domain.PaymentMethodCash, AmountCents: int64(qty) * product.UnitPriceCents}},
	}
}

func TestSaleDeductsStockAndAssignsNumber(t *testing.T) {
	s, _, product := newTestStore(t)
	ctx := context.Background()

	tx, err := s.CreateSaleTransaction(ctx, saleTx(product, 7))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !strings.HasPrefix(tx.Number, "S-") {
		t.Fatalf("expected display number, got %q", tx.Number)
	}
	if tx.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed, got %s", tx.Status)
	}

	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.QuantityInStock != 3 {
		t.Fatalf("expected stock 3, got %d", got.QuantityInStock)
	}
}

func TestSaleInsufficientStockLeavesStateUntouched(t *testing.T) {
	s, _, product := newTestStore(t)
	ctx := context.Background()

	// stock=10, sell 7 -> 3, then selling 5 must fail and stock stays 3.
	if _, err := s.CreateSaleTransaction(ctx, saleTx(product, 7)); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	_, err := s.CreateSaleTransaction(ctx, saleTx(product, 5))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	got, _ := s.GetProduct(ctx, product.ID)
	if got.QuantityInStock != 3 {
		t.Fatalf("expected stock unchanged at 3, got %d", got.QuantityInStock)
	}
	entries, _ := s.ListAdjustments(ctx, product.ID, 0)
	for _, e := range entries {
		if e.Type == domain.AdjustmentSale && e.QuantityChange == -5 {
			t.Fatal("failed sale must not write a ledger entry")
		}
	}
}

func TestVoidRestoresStockExactly(t *testing.T) {
	s, _, product := newTestStore(t)
	ctx := context.Background()

	tx, err := s.CreateSaleTransaction(ctx, saleTx(product, 4))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	voided, err := s.VoidSaleTransaction(ctx, tx.ID, "customer changed mind", "manager", time.Now().UTC())
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != domain.TxStatusVoided || voided.VoidedBy != "manager" {
		t.Fatalf("unexpected voided tx %+v", voided)
	}

	got, _ := s.GetProduct(ctx, product.ID)
	if got.QuantityInStock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got.QuantityInStock)
	}

	// Voiding twice must name the prior void, not apply again.
	_, err = s.VoidSaleTransaction(ctx, tx.ID, "again", "manager", time.Now().UTC())
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if !strings.Contains(err.Error(), "already voided by manager") {
		t.Fatalf("expected error to name prior void, got %v", err)
	}
	got, _ = s.GetProduct(ctx, product.ID)
	if got.QuantityInStock != 10 {
		t.Fatalf("double void must not restock again, got %d", got.QuantityInStock)
	}
}

func TestAdjustmentLedgerChains(t *testing.T) {
	s, _, product := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateAdjustment(ctx, product.ID, domain.AdjustmentDamage, -2, "dropped pallet", "manager"); err != nil {
		t.Fatalf("damage adjustment: %v", err)
	}
	if _, err := s.CreateAdjustment(ctx, product.ID, domain.AdjustmentFound, 1, "recount", "manager"); err != nil {
		t.Fatalf("found adjustment: %v", err)
	}
	if _, err := s.CreateSaleTransaction(ctx, saleTx(product, 3)); err != nil {
		t.Fatalf("sale: %v", err)
	}

	entries, err := s.ListAdjustments(ctx, product.ID, 0)
	if err != nil {
		t.Fatalf("list adjustments: %v", err)
	}
	// Newest first; walk oldest to newest and check the chain.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.NewQuantity-e.OldQuantity != e.QuantityChange {
			t.Fatalf("entry delta mismatch: %+v", e)
		}
		if i < len(entries)-1 {
			prev := entries[i+1]
			if e.OldQuantity != prev.NewQuantity {
				t.Fatalf("ledger chain broken: %+v follows %+v", e, prev)
			}
		}
	}

	got, _ := s.GetProduct(ctx, product.ID)
	sum := 0
	for _, e := range entries {
		sum += e.QuantityChange
	}
	if got.QuantityInStock != sum {
		t.Fatalf("stock %d != sum of ledger deltas %d", got.QuantityInStock, sum)
	}
}

func TestAdjustmentCannotDriveStockNegative(t *testing.T) {
	s, _, product := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateAdjustment(ctx, product.ID, domain.AdjustmentTheft, -11, "", "manager")
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	got, _ := s.GetProduct(ctx, product.ID)
	if got.QuantityInStock != 10 {
		t.Fatalf("expected stock unchanged, got %d", got.QuantityInStock)
	}
}

func createApprovedPO(t *testing.T, s *Store, vendorID string, items []domain.PurchaseOrderItem) *domain.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{VendorID: vendorID, CreatedBy: "manager", Items: items})
	if err != nil {
		t.Fatalf("create po: %v", err)
	}
	if po.Status != domain.POStatusDraft || !strings.HasPrefix(po.Number, "PO-") {
		t.Fatalf("unexpected draft %+v", po)
	}
	if po, err = s.SubmitPurchaseOrder(ctx, po.ID, time.Now().UTC()); err != nil {
		t.Fatalf("submit po: %v", err)
	}
	if po, err = s.ApprovePurchaseOrder(ctx, po.ID, "admin", time.Now().UTC()); err != nil {
		t.Fatalf("approve po: %v", err)
	}
	return po
}

func TestPOReceiveLifecycle(t *testing.T) {
	s, vendor, productA := newTestStore(t)
	ctx := context.Background()
	productB, err := s.CreateProduct(ctx, domain.Product{SKU: "SKU-TEST-02", Name: "Second Product", VendorID: vendor.ID, UnitPriceCents: 300, Active: true})
	if err != nil {
		t.Fatalf("create product b: %v", err)
	}

	po := createApprovedPO(t, s, vendor.ID, []domain.PurchaseOrderItem{
		{ProductID: productA.ID, QtyOrdered: 100, UnitCostCents: 350},
		{ProductID: productB.ID, QtyOrdered: 50, UnitCostCents: 200},
	})
	itemA, itemB := po.Items[0], po.Items[1]

	// Close before fully received must fail.
	if _, err := s.ClosePurchaseOrder(ctx, po.ID, time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on early close, got %v", err)
	}

	po, err = s.ReceivePurchaseOrderItems(ctx, po.ID, []domain.POReceiptLine{{ItemID: itemA.ID, QtyReceived: 60}}, "manager", time.Now().UTC())
	if err != nil {
		t.Fatalf("receive 60: %v", err)
	}
	if po.Status != domain.POStatusPartiallyReceived {
		t.Fatalf("expected partially_received, got %s", po.Status)
	}

	po, err = s.ReceivePurchaseOrderItems(ctx, po.ID, []domain.POReceiptLine{
		{ItemID: itemA.ID, QtyReceived: 40},
		{ItemID: itemB.ID, QtyReceived: 50},
	}, "manager", time.Now().UTC())
	if err != nil {
		t.Fatalf("receive remainder: %v", err)
	}
	if po.Status != domain.POStatusReceived {
		t.Fatalf("expected received, got %s", po.Status)
	}

	// Receiving credits stock and updates last cost.
	gotA, _ := s.GetProduct(ctx, productA.ID)
	if gotA.QuantityInStock != 110 {
		t.Fatalf("expected stock 110, got %d", gotA.QuantityInStock)
	}
	if gotA.LastCostCents != 350 {
		t.Fatalf("expected last cost 350, got %d", gotA.LastCostCents)
	}

	po, err = s.ClosePurchaseOrder(ctx, po.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if po.Status != domain.POStatusClosed {
		t.Fatalf("expected closed, got %s", po.Status)
	}
	if _, err := s.CancelPurchaseOrder(ctx, po.ID, "late", time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected cancel of closed po to fail, got %v", err)
	}
}

func TestOverReceiptRejectedWithZeroStateChange(t *testing.T) {
	s, vendor, product := newTestStore(t)
	ctx := context.Background()

	po := createApprovedPO(t, s, vendor.ID, []domain.PurchaseOrderItem{
		{ProductID: product.ID, QtyOrdered: 10, UnitCostCents: 100},
	})
	item := po.Items[0]

	if _, err := s.ReceivePurchaseOrderItems(ctx, po.ID, []domain.POReceiptLine{{ItemID: item.ID, QtyReceived: 8}}, "manager", time.Now().UTC()); err != nil {
		t.Fatalf("receive 8: %v", err)
	}
	_, err := s.ReceivePurchaseOrderItems(ctx, po.ID, []domain.POReceiptLine{{ItemID: item.ID, QtyReceived: 3}}, "manager", time.Now().UTC())
	if !errors.Is(err, store.ErrOverReceipt) {
		t.Fatalf("expected ErrOverReceipt, got %v", err)
	}

	got, _ := s.GetPurchaseOrder(ctx, po.ID)
	if got.Items[0].QtyReceived != 8 {
		t.Fatalf("expected received unchanged at 8, got %d", got.Items[0].QtyReceived)
	}
	p, _ := s.GetProduct(ctx, product.ID)
	if p.QuantityInStock != 18 {
		t.Fatalf("expected stock unchanged at 18, got %d", p.QuantityInStock)
	}
}

func TestConcurrentDisjointReceivesBothSucceed(t *testing.T) {
	s, vendor, productA := newTestStore(t)
	ctx := context.Background()
	productB, err := s.CreateProduct(ctx, domain.Product{SKU: "SKU-TEST-02", Name: "Second Product", VendorID: vendor.ID, UnitPriceCents: 300, Active: true})
	if err != nil {
		t.Fatalf("create product b: %v", err)
	}

	po := createApprovedPO(t, s, vendor.ID, []domain.PurchaseOrderItem{
		{ProductID: productA.ID, QtyOrdered: 30, UnitCostCents: 100},
		{ProductID: productB.ID, QtyOrdered: 20, UnitCostCents: 100},
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, line := range []domain.POReceiptLine{
		{ItemID: po.Items[0].ID, QtyReceived: 30},
		{ItemID: po.Items[1].ID, QtyReceived: 20},
	} {
		wg.Add(1)
		go func(i int, line domain.POReceiptLine) {
			defer wg.Done()
			_, errs[i] = s.ReceivePurchaseOrderItems(ctx, po.ID, []domain.POReceiptLine{line}, "manager", time.Now().UTC())
		}(i, line)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("receive %d failed: %v", i, err)
		}
	}
	got, _ := s.GetPurchaseOrder(ctx, po.ID)
	if got.Status != domain.POStatusReceived {
		t.Fatalf("expected received after both, got %s", got.Status)
	}
}

func TestConcurrentJointOverReceiveExactlyOneSucceeds(t *testing.T) {
	s, vendor, product := newTestStore(t)
	ctx := context.Background()

	po := createApprovedPO(t, s, vendor.ID, []domain.PurchaseOrderItem{
		{ProductID: product.ID, QtyOrdered: 10, UnitCostCents: 100},
	})
	item := po.Items[0]

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ReceivePurchaseOrderItems(ctx, po.ID, []domain.POReceiptLine{{ItemID: item.ID, QtyReceived: 7}}, "manager", time.Now().UTC())
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, store.ErrOverReceipt) {
				t.Fatalf("expected ErrOverReceipt, got %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one failure, got %d", failures)
	}
	got, _ := s.GetPurchaseOrder(ctx, po.ID)
	if got.Items[0].QtyReceived != 7 {
		t.Fatalf("expected received 7, got %d", got.Items[0].QtyReceived)
	}
}

func TestStoredValueCorrectionScenario(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	account, err := s.CreateStoredValueAccount(ctx, domain.StoredValueAccount{CardNumber: "GC-1001", InitialBalanceCents: 2000}, "manager")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if account.CurrentBalanceCents != 2000 {
		t.Fatalf("expected balance 2000, got %d", account.CurrentBalanceCents)
	}

	entry, err := s.AdjustStoredValue(ctx, account.ID, domain.StoredValueCorrection, 1500, "audit correction", "manager")
	if err != nil {
		t.Fatalf("correction +15: %v", err)
	}
	if entry.BalanceBeforeCents != 2000 || entry.BalanceAfterCents != 3500 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	_, err = s.AdjustStoredValue(ctx, account.ID, domain.StoredValueCorrection, -4000, "bad correction", "manager")
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	got, _ := s.GetStoredValueAccount(ctx, account.ID)
	if got.CurrentBalanceCents != 3500 {
		t.Fatalf("expected balance unchanged at 3500, got %d", got.CurrentBalanceCents)
	}
}

func TestStoredValueDebitRequiresActiveUnexpired(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	expired := time.Now().UTC().Add(-time.Hour)
	account, err := s.CreateStoredValueAccount(ctx, domain.StoredValueAccount{CardNumber: "GC-1002", InitialBalanceCents: 1000, ExpiresAt: &expired}, "manager")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if _, err := s.AdjustStoredValue(ctx, account.ID, domain.StoredValueRedemption, -500, "", "cashier"); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected redemption on expired account to fail, got %v", err)
	}
	// Corrections stay allowed in both directions so the balance can be
	// repaired; only redemptions are gated on account state.
	if _, err := s.AdjustStoredValue(ctx, account.ID, domain.StoredValueCorrection, 100, "goodwill", "manager"); err != nil {
		t.Fatalf("upward correction on expired account should succeed: %v", err)
	}
	entry, err := s.AdjustStoredValue(ctx, account.ID, domain.StoredValueCorrection, -300, "reverse erroneous credit", "manager")
	if err != nil {
		t.Fatalf("downward correction on expired account should succeed: %v", err)
	}
	if entry.BalanceBeforeCents != 1100 || entry.BalanceAfterCents != 800 {
		t.Fatalf("unexpected correction entry %+v", entry)
	}

	// Same rules on an inactive account.
	s.mu.Lock()
	deactivated := s.svAccounts[account.ID]
	deactivated.Active = false
	s.svAccounts[account.ID] = deactivated
	s.mu.Unlock()
	if _, err := s.AdjustStoredValue(ctx, account.ID, domain.StoredValueRedemption, -100, "", "cashier"); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected redemption on inactive account to fail, got %v", err)
	}
	if _, err := s.AdjustStoredValue(ctx, account.ID, domain.StoredValueCorrection, -100, "shrink card", "manager"); err != nil {
		t.Fatalf("downward correction on inactive account should succeed: %v", err)
	}
}

func TestReorderListSelectsAtOrBelowLevel(t *testing.T) {
	s, _, product := newTestStore(t)
	ctx := context.Background()

	// stock=10 > level=5: not eligible yet.
	under, _ := s.ListUnderstockedProducts(ctx)
	if len(under) != 0 {
		t.Fatalf("expected no understocked products, got %d", len(under))
	}

	if _, err := s.CreateSaleTransaction(ctx, saleTx(product, 7)); err != nil {
		t.Fatalf("sale: %v", err)
	}
	under, _ = s.ListUnderstockedProducts(ctx)
	if len(under) != 1 || under[0].ID != product.ID {
		t.Fatalf("expected product to be understocked at 3, got %+v", under)
	}
}

func TestMoveCategoryRejectsCycle(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	root, _ := s.CreateCategory(ctx, domain.Category{Name: "Root"})
	child, _ := s.CreateCategory(ctx, domain.Category{Name: "Child", ParentID: root.ID})
	grandchild, _ := s.CreateCategory(ctx, domain.Category{Name: "Grandchild", ParentID: child.ID})

	if _, err := s.MoveCategory(ctx, root.ID, grandchild.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
	moved, err := s.MoveCategory(ctx, grandchild.ID, root.ID)
	if err != nil {
		t.Fatalf("legal move failed: %v", err)
	}
	if moved.ParentID != root.ID {
		t.Fatalf("expected parent %s, got %s", root.ID, moved.ParentID)
	}
}
