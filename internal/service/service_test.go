package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agastya71/mysl-pos-project-sub005/internal/auth"
	"github.com/agastya71/mysl-pos-project-sub005/internal/cache"
	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/payment"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store/memory"
)

// recordingProcessor tracks authorize/capture/void/refund calls and can be
// told to decline.
type recordingProcessor struct {
	decline   bool
	nextAuth  int
	captured  []string
	voided    []string
	refunded  []string
	authCount int
}

func (p *recordingProcessor) Authorize(_ context.Context, method string, amountCents int64, tenderToken string) (payment.Authorization, error) {
	if p.decline {
		return payment.Authorization{}, fmt.Errorf("%w: card refused", payment.ErrDeclined)
	}
	p.nextAuth++
	p.authCount++
	return payment.Authorization{AuthID: fmt.Sprintf("auth-%d", p.nextAuth), Method: method, AmountCents: amountCents}, nil
}

func (p *recordingProcessor) Capture(_ context.Context, authID string) error {
	p.captured = append(p.captured, authID)
	return nil
}

func (p *recordingProcessor) Void(_ context.Context, authID string) error {
	p.voided = append(p.voided, authID)
	return nil
}

func (p *recordingProcessor) Refund(_ context.Context, authID string, _ int64) error {
	p.refunded = append(p.refunded, authID)
	return nil
}

type testEnv struct {
	svc       *Service
	repo      *memory.Store
	processor *recordingProcessor
	manager   *auth.Manager
	product   domain.Product
	vendor    domain.Vendor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	processor := &recordingProcessor{}
	manager := auth.NewManager("test-secret", time.Hour, nil)
	svc := New(repo, processor, cache.NoopReorderReportCache{}, time.Minute, "main-store")

	vendor, err := repo.CreateVendor(ctx, domain.Vendor{Name: "Test Vendor"})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	product, err := repo.CreateProduct(ctx, domain.Product{
		SKU:             "SKU-SVC-01",
		Name:            "Service Product",
		VendorID:        vendor.ID,
		UnitPriceCents:  333,
		TaxRate:         0.0825,
		QuantityInStock: 10,
		ReorderLevel:    5,
		ReorderQuantity: 20,
		LastCostCents:   200,
		Active:          true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	return &testEnv{svc: svc, repo: repo, processor: processor, manager: manager, product: *product, vendor: *vendor}
}

func (e *testEnv) grant(role string) auth.Grant {
	return e.manager.Authorize(domain.Actor{Username: role + "-user", Role: role})
}

func TestCreateTransactionComputesMoneyAndChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 3 * 333 = 999, tax 8.25% = 82.4175 -> 82, total 1081. Cash 1500 -> change 419.
	tx, err := env.svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 3}},
		Payments:   []domain.PaymentRequest{{Method: domain.PaymentMethodCash, AmountCents: 1500}},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.SubtotalCents != 999 || tx.TaxCents != 82 || tx.TotalCents != 1081 {
		t.Fatalf("unexpected totals %+v", tx)
	}
	if tx.ChangeCents != 419 {
		t.Fatalf("expected change 419, got %d", tx.ChangeCents)
	}
	if tx.SubtotalCents+tx.TaxCents-tx.DiscountCents != tx.TotalCents {
		t.Fatalf("totals identity violated: %+v", tx)
	}
	if tx.CashierID != "cashier-user" {
		t.Fatalf("expected cashier attribution, got %s", tx.CashierID)
	}

	product, _ := env.repo.GetProduct(ctx, env.product.ID)
	if product.QuantityInStock != 7 {
		t.Fatalf("expected stock 7, got %d", product.QuantityInStock)
	}
}

func TestCreateTransactionNonCashMustSumExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// total for 1 unit = 333 + 27 tax = 360. Card overpaying must fail.
	_, err := env.svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 1}},
		Payments:   []domain.PaymentRequest{{Method: domain.PaymentMethodCreditCard, AmountCents: 400, TenderToken: "tok-1"}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for non-cash overpay, got %v", err)
	}

	// Underpayment must fail too.
	_, err = env.svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 1}},
		Payments:   []domain.PaymentRequest{{Method: domain.PaymentMethodCash, AmountCents: 100}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for underpayment, got %v", err)
	}

	// Exact card payment succeeds and is authorized then captured.
	tx, err := env.svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 1}},
		Payments:   []domain.PaymentRequest{{Method: domain.PaymentMethodCreditCard, AmountCents: 360, TenderToken: "tok-1"}},
	})
	if err != nil {
		t.Fatalf("exact card payment: %v", err)
	}
	if tx.ChangeCents != 0 {
		t.Fatalf("expected no change, got %d", tx.ChangeCents)
	}
	if tx.Payments[0].AuthID == "" {
		t.Fatal("expected auth id on card payment")
	}
	if tx.Payments[0].TenderToken != "" {
		t.Fatal("tender token must not be persisted")
	}
	if len(env.processor.captured) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(env.processor.captured))
	}
}

func TestCreateTransactionMixedTender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// total 360: card 200 + cash 200 -> change 40.
	tx, err := env.svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 1}},
		Payments: []domain.PaymentRequest{
			{Method: domain.PaymentMethodCreditCard, AmountCents: 200, TenderToken: "tok-1"},
			{Method: domain.PaymentMethodCash, AmountCents: 200},
		},
	})
	if err != nil {
		t.Fatalf("mixed tender: %v", err)
	}
	if tx.ChangeCents != 40 {
		t.Fatalf("expected change 40, got %d", tx.ChangeCents)
	}
}

func TestCreateTransactionDeclinedPaymentPersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.processor.decline = true
	ctx := context.Background()

	_, err := env.svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 2}},
		Payments:   []domain.PaymentRequest{{Method: domain.PaymentMethodDebitCard, AmountCents: 720, TenderToken: "tok-bad"}},
	})
	if !errors.Is(err, payment.ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}

	product, _ := env.repo.GetProduct(ctx, env.product.ID)
	if product.QuantityInStock != 10 {
		t.Fatalf("declined payment must not touch stock, got %d", product.QuantityInStock)
	}
}

func TestCreateTransactionStoreFailureVoidsAuthorizations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Quantity 20 passes pricing but fails the stock check in the store;
	// the already-authorized card payment must be voided.
	// total = 20*333=6660, tax = 549.45 -> 549, total 7209.
	_, err := env.svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 20}},
		Payments:   []domain.PaymentRequest{{Method: domain.PaymentMethodCreditCard, AmountCents: 7209, TenderToken: "tok-1"}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if len(env.processor.voided) != 1 {
		t.Fatalf("expected 1 voided authorization, got %d", len(env.processor.voided))
	}
	if len(env.processor.captured) != 0 {
		t.Fatalf("expected no captures, got %d", len(env.processor.captured))
	}
}

func TestVoidTransactionRefundsAndRestocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 1}},
		Payments:   []domain.PaymentRequest{{Method: domain.PaymentMethodCreditCard, AmountCents: 360, TenderToken: "tok-1"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Cashiers cannot void.
	_, err = env.svc.VoidTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionVoidRequest{TransactionID: tx.ID, Reason: "mistake"})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier void, got %v", err)
	}

	voided, err := env.svc.VoidTransaction(ctx, env.grant(auth.RoleManager), domain.TransactionVoidRequest{TransactionID: tx.ID, Reason: "mistake"})
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != domain.TxStatusVoided {
		t.Fatalf("expected voided, got %s", voided.Status)
	}
	if len(env.processor.refunded) != 1 {
		t.Fatalf("expected 1 refund, got %d", len(env.processor.refunded))
	}

	product, _ := env.repo.GetProduct(ctx, env.product.ID)
	if product.QuantityInStock != 10 {
		t.Fatalf("expected stock restored, got %d", product.QuantityInStock)
	}
}

func TestVoidRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.VoidTransaction(context.Background(), env.grant(auth.RoleManager), domain.TransactionVoidRequest{TransactionID: "tx-x"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPurchaseOrderLifecycleThroughService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.grant(auth.RoleManager)

	po, err := env.svc.CreatePurchaseOrder(ctx, manager, domain.POCreateRequest{
		VendorID: env.vendor.ID,
		Items:    []domain.POItemRequest{{ProductID: env.product.ID, QtyOrdered: 25, UnitCostCents: 210}},
	})
	if err != nil {
		t.Fatalf("create po: %v", err)
	}
	if po.TotalCents != 25*210 {
		t.Fatalf("expected total %d, got %d", 25*210, po.TotalCents)
	}

	// Cashiers cannot touch purchasing.
	if _, err := env.svc.SubmitPurchaseOrder(ctx, env.grant(auth.RoleCashier), po.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if po, err = env.svc.SubmitPurchaseOrder(ctx, manager, po.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if po, err = env.svc.ApprovePurchaseOrder(ctx, manager, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if po.ApprovedBy != "manager-user" {
		t.Fatalf("expected approver attribution, got %s", po.ApprovedBy)
	}

	po, err = env.svc.ReceiveItems(ctx, manager, po.ID, domain.POReceiveRequest{
		Lines: []domain.POReceiptLine{{ItemID: po.Items[0].ID, QtyReceived: 25}},
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if po.Status != domain.POStatusReceived {
		t.Fatalf("expected received, got %s", po.Status)
	}
	if po, err = env.svc.ClosePurchaseOrder(ctx, manager, po.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if po.Status != domain.POStatusClosed {
		t.Fatalf("expected closed, got %s", po.Status)
	}

	product, _ := env.repo.GetProduct(ctx, env.product.ID)
	if product.QuantityInStock != 35 {
		t.Fatalf("expected stock 35, got %d", product.QuantityInStock)
	}
	if product.LastCostCents != 210 {
		t.Fatalf("expected last cost updated to 210, got %d", product.LastCostCents)
	}
}

type recordingCache struct {
	stored *domain.ReorderReport
	gets   int
	sets   int
}

func (c *recordingCache) Get(context.Context, string) (*domain.ReorderReport, bool, error) {
	c.gets++
	if c.stored != nil {
		return c.stored, true, nil
	}
	return nil, false, nil
}

func (c *recordingCache) Set(_ context.Context, _ string, value *domain.ReorderReport, _ time.Duration) error {
	c.sets++
	c.stored = value
	return nil
}

func TestReorderSuggestionsGroupsByVendorAndCaches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rc := &recordingCache{}
	svc := New(env.repo, env.processor, rc, time.Minute, "main-store")

	// Sell down to 3 (level 5) so the product becomes eligible.
	if _, err := svc.CreateTransaction(ctx, env.grant(auth.RoleCashier), domain.TransactionCreateRequest{
		TerminalID: "t1",
		Items:      []domain.SaleLineRequest{{ProductID: env.product.ID, Quantity: 7}},
		Payments:   []domain.PaymentRequest{{Method: domain.PaymentMethodCash, AmountCents: 1000000}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	report, err := svc.ReorderSuggestions(ctx)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if len(report.Groups) != 1 {
		t.Fatalf("expected 1 vendor group, got %d", len(report.Groups))
	}
	group := report.Groups[0]
	if group.VendorID != env.vendor.ID || group.VendorName != env.vendor.Name {
		t.Fatalf("unexpected group %+v", group)
	}
	line := group.Lines[0]
	if line.SuggestedQty != 20 || line.LastCostCents != 200 || line.EstimatedCostCents != 4000 {
		t.Fatalf("unexpected line %+v", line)
	}
	if rc.sets != 1 {
		t.Fatalf("expected report cached once, got %d sets", rc.sets)
	}

	// Second call is served from the cache.
	if _, err := svc.ReorderSuggestions(ctx); err != nil {
		t.Fatalf("cached reorder: %v", err)
	}
	if rc.sets != 1 {
		t.Fatalf("expected no second cache write, got %d", rc.sets)
	}
}

func TestStoredValuePermissionsAndFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.CreateStoredValueAccount(ctx, env.grant(auth.RoleCashier), domain.StoredValueAccountCreateRequest{CardNumber: "GC-1"}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier, got %v", err)
	}

	manager := env.grant(auth.RoleManager)
	account, err := env.svc.CreateStoredValueAccount(ctx, manager, domain.StoredValueAccountCreateRequest{
		CardNumber:          "GC-1",
		InitialBalanceCents: 2000,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	entry, err := env.svc.AdjustStoredValue(ctx, manager, domain.StoredValueAdjustRequest{
		AccountID:   account.ID,
		Type:        domain.StoredValueRedemption,
		AmountCents: -500,
		Reason:      "gift card payment",
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if entry.BalanceAfterCents != 1500 {
		t.Fatalf("expected balance 1500, got %d", entry.BalanceAfterCents)
	}

	entries, _ := env.svc.ListStoredValueEntries(ctx, account.ID, 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
}

func TestInventoryAdjustmentPermissionAndAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.CreateAdjustment(ctx, env.grant(auth.RoleCashier), domain.AdjustmentCreateRequest{
		ProductID: env.product.ID, Type: domain.AdjustmentDamage, QuantityChange: -1,
	}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	manager := env.grant(auth.RoleManager)
	if _, err := env.svc.CreateAdjustment(ctx, manager, domain.AdjustmentCreateRequest{
		ProductID: env.product.ID, Type: domain.AdjustmentDamage, QuantityChange: -2, Reason: "dropped",
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	logs, err := env.svc.ListAuditLogs(ctx, manager, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "inventory_adjust" && entry.ActorID == "manager-user" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an inventory_adjust audit entry attributed to the manager")
	}
}

func TestCatalogManagementRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.CreateProduct(ctx, env.grant(auth.RoleCashier), domain.ProductCreateRequest{
		SKU: "SKU-X", Name: "X", UnitPriceCents: 100,
	}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	created, err := env.svc.CreateProduct(ctx, env.grant(auth.RoleAdmin), domain.ProductCreateRequest{
		SKU: "sku-new-01", Name: "New Product", UnitPriceCents: 100, InitialStock: 5,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.SKU != "SKU-NEW-01" {
		t.Fatalf("expected sku uppercased, got %s", created.SKU)
	}
	if created.QuantityInStock != 5 {
		t.Fatalf("expected initial stock 5, got %d", created.QuantityInStock)
	}
}
