// Package memory implements the repository on in-process maps. The mutex
// plays the role the row locks play in postgres: every mutating method
// validates and writes under one lock acquisition, so no caller observes
// partial state.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
	"github.com/agastya71/mysl-pos-project-sub005/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	skuIndex        map[string]string
	vendors         map[string]domain.Vendor
	categories      map[string]domain.Category
	transactions    map[string]*domain.Transaction
	purchaseOrders  map[string]*domain.PurchaseOrder
	adjustments     []domain.InventoryAdjustment
	svAccounts      map[string]domain.StoredValueAccount
	cardIndex       map[string]string
	svEntries       []domain.StoredValueEntry
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	counters        map[string]int64
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		skuIndex:        make(map[string]string),
		vendors:         make(map[string]domain.Vendor),
		categories:      make(map[string]domain.Category),
		transactions:    make(map[string]*domain.Transaction),
		purchaseOrders:  make(map[string]*domain.PurchaseOrder),
		adjustments:     make([]domain.InventoryAdjustment, 0, 128),
		svAccounts:      make(map[string]domain.StoredValueAccount),
		cardIndex:       make(map[string]string),
		svEntries:       make([]domain.StoredValueEntry, 0, 64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
		counters:        make(map[string]int64),
	}
}

// NewSeeded returns a store pre-loaded with a demo catalog and dev user
// accounts for running without a database.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	vendor := domain.Vendor{ID: xid.New("ven"), Name: "Acme Wholesale", Email: "orders@acme.example", CreatedAt: now}
	s.vendors[vendor.ID] = vendor

	grocery := domain.Category{ID: xid.New("cat"), Name: "Grocery", CreatedAt: now}
	beverage := domain.Category{ID: xid.New("cat"), Name: "Beverage", CreatedAt: now}
	s.categories[grocery.ID] = grocery
	s.categories[beverage.ID] = beverage

	seed := []domain.Product{
		{SKU: "SKU-RICE-01", Name: "Rice 5kg", CategoryID: grocery.ID, UnitPriceCents: 1250, TaxRate: 0, QuantityInStock: 80, ReorderLevel: 20, ReorderQuantity: 40, LastCostCents: 900},
		{SKU: "SKU-EGGS-01", Name: "Eggs Dozen", CategoryID: grocery.ID, UnitPriceCents: 365, TaxRate: 0, QuantityInStock: 120, ReorderLevel: 30, ReorderQuantity: 60, LastCostCents: 240},
		{SKU: "SKU-COFFEE-01", Name: "Ground Coffee 340g", CategoryID: beverage.ID, UnitPriceCents: 899, TaxRate: 0.0825, QuantityInStock: 45, ReorderLevel: 10, ReorderQuantity: 24, LastCostCents: 610},
		{SKU: "SKU-WATER-01", Name: "Mineral Water 600ml", CategoryID: beverage.ID, UnitPriceCents: 120, TaxRate: 0.0825, QuantityInStock: 200, ReorderLevel: 48, ReorderQuantity: 96, LastCostCents: 55},
	}
	for _, p := range seed {
		p.ID = xid.New("prd")
		p.VendorID = vendor.ID
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.skuIndex[p.SKU] = p.ID
	}

	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds dev/demo accounts. Credentials come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded defaults are used
// with a warning when unset. Production deployments use postgres instead.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// nextNumberLocked allocates the next value of a named counter. Callers
// hold the write lock; numbers are sequential per counter and never reused.
func (s *Store) nextNumberLocked(name string) int64 {
	s.counters[name]++
	return s.counters[name]
}

// adjustStockLocked is the inventory ledger primitive. Every stock mutation
// in this store goes through it: it validates the delta against the current
// quantity, rejects negative results, writes the product and the ledger
// entry together. Callers hold the write lock.
func (s *Store) adjustStockLocked(productID, adjType string, change int, reason, referenceID, actorID string, at time.Time) (*domain.InventoryAdjustment, error) {
	product, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	oldQty := product.QuantityInStock
	newQty := oldQty + change
	if newQty < 0 {
		return nil, fmt.Errorf("%w: product %s has %d in stock, change %d would go negative", store.ErrInsufficientStock, productID, oldQty, change)
	}

	product.QuantityInStock = newQty
	product.UpdatedAt = at
	s.products[productID] = product

	entry := domain.InventoryAdjustment{
		ID:             xid.New("adj"),
		ProductID:      productID,
		Type:           adjType,
		QuantityChange: change,
		OldQuantity:    oldQty,
		NewQuantity:    newQty,
		Reason:         reason,
		ReferenceID:    referenceID,
		ActorID:        actorID,
		CreatedAt:      at,
	}
	s.adjustments = append(s.adjustments, entry)
	return &entry, nil
}

// adjustBalanceLocked is the stored-value ledger primitive. Redemptions
// require an active, unexpired account; credits and corrections in either
// direction are allowed regardless so a balance can always be repaired.
func (s *Store) adjustBalanceLocked(accountID, entryType string, amountCents int64, reason, actorID string, at time.Time) (*domain.StoredValueEntry, error) {
	account, ok := s.svAccounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: stored-value account %s", store.ErrNotFound, accountID)
	}
	if entryType == domain.StoredValueRedemption {
		if !account.Active {
			return nil, fmt.Errorf("%w: account %s is inactive, redemptions not allowed", store.ErrInvalidState, accountID)
		}
		if account.ExpiresAt != nil && account.ExpiresAt.Before(at) {
			return nil, fmt.Errorf("%w: account %s expired at %s", store.ErrInvalidState, accountID, account.ExpiresAt.Format(time.RFC3339))
		}
	}

	before := account.CurrentBalanceCents
	after := before + amountCents
	if after < 0 {
		return nil, fmt.Errorf("%w: account %s balance %d, change %d would go negative", store.ErrInsufficientBalance, accountID, before, amountCents)
	}

	account.CurrentBalanceCents = after
	s.svAccounts[accountID] = account

	entry := domain.StoredValueEntry{
		ID:                 xid.New("sve"),
		AccountID:          accountID,
		Type:               entryType,
		AmountCents:        amountCents,
		BalanceBeforeCents: before,
		BalanceAfterCents:  after,
		Reason:             reason,
		ActorID:            actorID,
		CreatedAt:          at,
	}
	s.svEntries = append(s.svEntries, entry)
	return &entry, nil
}

// --- catalog ---

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" {
		return nil, fmt.Errorf("%w: product requires sku and name", store.ErrValidation)
	}
	if _, exists := s.skuIndex[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s", store.ErrDuplicate, product.SKU)
	}
	if product.VendorID != "" {
		if _, ok := s.vendors[product.VendorID]; !ok {
			return nil, fmt.Errorf("%w: vendor %s", store.ErrNotFound, product.VendorID)
		}
	}
	if product.CategoryID != "" {
		if _, ok := s.categories[product.CategoryID]; !ok {
			return nil, fmt.Errorf("%w: category %s", store.ErrNotFound, product.CategoryID)
		}
	}

	now := time.Now().UTC()
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.CreatedAt = now
	product.UpdatedAt = now

	initial := product.QuantityInStock
	product.QuantityInStock = 0
	s.products[product.ID] = product
	s.skuIndex[product.SKU] = product.ID

	if initial > 0 {
		if _, err := s.adjustStockLocked(product.ID, domain.AdjustmentInitial, initial, "initial stock", "", "system", now); err != nil {
			delete(s.products, product.ID)
			delete(s.skuIndex, product.SKU)
			return nil, err
		}
	}

	created := s.products[product.ID]
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, product.ID)
	}

	// Stock is owned by the ledger; updates never touch it.
	product.SKU = existing.SKU
	product.QuantityInStock = existing.QuantityInStock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) ListProducts(_ context.Context, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(vendor.Name) == "" {
		return nil, fmt.Errorf("%w: vendor requires a name", store.ErrValidation)
	}
	if vendor.ID == "" {
		vendor.ID = xid.New("ven")
	}
	vendor.CreatedAt = time.Now().UTC()
	s.vendors[vendor.ID] = vendor
	return &vendor, nil
}

func (s *Store) GetVendor(_ context.Context, id string) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, ok := s.vendors[id]
	if !ok {
		return nil, fmt.Errorf("%w: vendor %s", store.ErrNotFound, id)
	}
	return &vendor, nil
}

func (s *Store) ListVendors(_ context.Context) ([]domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendors := make([]domain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		vendors = append(vendors, v)
	}
	slices.SortFunc(vendors, func(a, b domain.Vendor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return vendors, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(category.Name) == "" {
		return nil, fmt.Errorf("%w: category requires a name", store.ErrValidation)
	}
	if category.ParentID != "" {
		if _, ok := s.categories[category.ParentID]; !ok {
			return nil, fmt.Errorf("%w: parent category %s", store.ErrNotFound, category.ParentID)
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	category.CreatedAt = time.Now().UTC()
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) MoveCategory(_ context.Context, categoryID string, newParentID string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.categories[categoryID]
	if !ok {
		return nil, fmt.Errorf("%w: category %s", store.ErrNotFound, categoryID)
	}
	if newParentID != "" {
		if _, ok := s.categories[newParentID]; !ok {
			return nil, fmt.Errorf("%w: parent category %s", store.ErrNotFound, newParentID)
		}
		// Walk up from the new parent; hitting the moved node means a cycle.
		cursor := newParentID
		for cursor != "" {
			if cursor == categoryID {
				return nil, fmt.Errorf("%w: moving category %s under %s creates a cycle", store.ErrValidation, categoryID, newParentID)
			}
			cursor = s.categories[cursor].ParentID
		}
	}

	category.ParentID = newParentID
	s.categories[categoryID] = category
	return &category, nil
}

// --- sales ---

func (s *Store) CreateSaleTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: transaction requires at least one item", store.ErrValidation)
	}

	// Validate every line before touching stock so a late failure cannot
	// leave earlier deductions applied.
	needed := make(map[string]int)
	for _, item := range tx.Items {
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrNotFound, item.ProductID)
		}
		needed[item.ProductID] += item.Quantity
	}
	for productID, qty := range needed {
		if have := s.products[productID].QuantityInStock; have < qty {
			return nil, fmt.Errorf("%w: product %s has %d in stock, need %d", store.ErrInsufficientStock, productID, have, qty)
		}
	}

	now := time.Now().UTC()
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	tx.Number = fmt.Sprintf("S-%06d", s.nextNumberLocked("sale"))
	tx.Status = domain.TxStatusCompleted
	tx.CreatedAt = now

	for _, item := range tx.Items {
		if _, err := s.adjustStockLocked(item.ProductID, domain.AdjustmentSale, -item.Quantity, "", tx.ID, tx.CashierID, now); err != nil {
			return nil, err
		}
	}

	stored := tx
	s.transactions[tx.ID] = &stored
	result := stored
	return &result, nil
}

func (s *Store) VoidSaleTransaction(_ context.Context, id string, reason string, actorID string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
	}
	if tx.Status != domain.TxStatusCompleted {
		if tx.Status == domain.TxStatusVoided {
			return nil, fmt.Errorf("%w: cannot void transaction %s: already voided by %s at %s", store.ErrInvalidState, id, tx.VoidedBy, tx.VoidedAt.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("%w: cannot void transaction %s in status %s", store.ErrInvalidState, id, tx.Status)
	}

	for _, item := range tx.Items {
		if _, err := s.adjustStockLocked(item.ProductID, domain.AdjustmentVoid, item.Quantity, reason, tx.ID, actorID, at); err != nil {
			return nil, err
		}
	}

	tx.Status = domain.TxStatusVoided
	tx.VoidReason = reason
	tx.VoidedBy = actorID
	voidedAt := at
	tx.VoidedAt = &voidedAt

	result := *tx
	return &result, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
	}
	result := *tx
	return &result, nil
}

// --- purchasing ---

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[po.VendorID]; !ok {
		return nil, fmt.Errorf("%w: vendor %s", store.ErrNotFound, po.VendorID)
	}
	if len(po.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase order requires at least one item", store.ErrValidation)
	}
	for i := range po.Items {
		item := &po.Items[i]
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if item.QtyOrdered < 1 {
			return nil, fmt.Errorf("%w: item %s quantity must be positive", store.ErrValidation, item.ProductID)
		}
		if item.ID == "" {
			item.ID = xid.New("poi")
		}
		item.QtyReceived = 0
	}

	if po.ID == "" {
		po.ID = xid.New("po")
	}
	po.Number = fmt.Sprintf("PO-%06d", s.nextNumberLocked("po"))
	po.Status = domain.POStatusDraft
	po.CreatedAt = time.Now().UTC()

	stored := po
	s.purchaseOrders[po.ID] = &stored
	result := clonePO(&stored)
	return &result, nil
}

func (s *Store) UpdatePurchaseOrderItems(_ context.Context, poID string, items []domain.PurchaseOrderItem, totalCents int64) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[poID]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, poID)
	}
	if po.Status != domain.POStatusDraft {
		return nil, fmt.Errorf("%w: purchase order %s is %s, items editable only in draft", store.ErrInvalidState, poID, po.Status)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: purchase order requires at least one item", store.ErrValidation)
	}
	for i := range items {
		item := &items[i]
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if item.QtyOrdered < 1 {
			return nil, fmt.Errorf("%w: item %s quantity must be positive", store.ErrValidation, item.ProductID)
		}
		if item.ID == "" {
			item.ID = xid.New("poi")
		}
		item.QtyReceived = 0
	}

	po.Items = items
	po.TotalCents = totalCents
	result := clonePO(po)
	return &result, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	result := clonePO(po)
	return &result, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PurchaseOrder, 0, len(s.purchaseOrders))
	for _, po := range s.purchaseOrders {
		if status != "" && po.Status != status {
			continue
		}
		orders = append(orders, clonePO(po))
	}
	slices.SortFunc(orders, func(a, b domain.PurchaseOrder) int {
		return strings.Compare(b.Number, a.Number)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) SubmitPurchaseOrder(_ context.Context, id string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	if po.Status != domain.POStatusDraft {
		return nil, fmt.Errorf("%w: cannot submit purchase order %s from status %s", store.ErrInvalidState, id, po.Status)
	}
	if len(po.Items) == 0 {
		return nil, fmt.Errorf("%w: cannot submit purchase order %s with no items", store.ErrValidation, id)
	}

	po.Status = domain.POStatusSubmitted
	submittedAt := at
	po.SubmittedAt = &submittedAt
	result := clonePO(po)
	return &result, nil
}

func (s *Store) ApprovePurchaseOrder(_ context.Context, id string, approvedBy string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	if po.Status != domain.POStatusSubmitted {
		return nil, fmt.Errorf("%w: cannot approve purchase order %s from status %s", store.ErrInvalidState, id, po.Status)
	}

	po.Status = domain.POStatusApproved
	po.ApprovedBy = approvedBy
	approvedAt := at
	po.ApprovedAt = &approvedAt
	result := clonePO(po)
	return &result, nil
}

func (s *Store) ReceivePurchaseOrderItems(_ context.Context, id string, lines []domain.POReceiptLine, actorID string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	if po.Status != domain.POStatusApproved && po.Status != domain.POStatusPartiallyReceived {
		return nil, fmt.Errorf("%w: cannot receive on purchase order %s in status %s", store.ErrInvalidState, id, po.Status)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: receive requires at least one line", store.ErrValidation)
	}

	// Validate all lines before mutating anything.
	itemsByID := make(map[string]*domain.PurchaseOrderItem, len(po.Items))
	for i := range po.Items {
		itemsByID[po.Items[i].ID] = &po.Items[i]
	}
	increments := make(map[string]int, len(lines))
	for _, line := range lines {
		item, ok := itemsByID[line.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: purchase order %s has no item %s", store.ErrNotFound, id, line.ItemID)
		}
		if line.QtyReceived < 1 {
			return nil, fmt.Errorf("%w: item %s receive quantity must be positive", store.ErrValidation, line.ItemID)
		}
		increments[line.ItemID] += line.QtyReceived
		if item.QtyReceived+increments[line.ItemID] > item.QtyOrdered {
			return nil, fmt.Errorf("%w: item %s ordered %d, received %d, cannot add %d", store.ErrOverReceipt, line.ItemID, item.QtyOrdered, item.QtyReceived, increments[line.ItemID])
		}
	}

	for itemID, qty := range increments {
		item := itemsByID[itemID]
		if _, err := s.adjustStockLocked(item.ProductID, domain.AdjustmentReceipt, qty, "", po.ID, actorID, at); err != nil {
			return nil, err
		}
		item.QtyReceived += qty

		if product, ok := s.products[item.ProductID]; ok {
			product.LastCostCents = item.UnitCostCents
			s.products[item.ProductID] = product
		}
	}

	po.Status = domain.DerivePurchaseOrderStatus(po.Items)
	result := clonePO(po)
	return &result, nil
}

func (s *Store) CancelPurchaseOrder(_ context.Context, id string, reason string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	if domain.TerminalPOStatus(po.Status) {
		return nil, fmt.Errorf("%w: cannot cancel purchase order %s in status %s", store.ErrInvalidState, id, po.Status)
	}

	po.Status = domain.POStatusCancelled
	po.CancelReason = reason
	cancelledAt := at
	po.CancelledAt = &cancelledAt
	result := clonePO(po)
	return &result, nil
}

func (s *Store) ClosePurchaseOrder(_ context.Context, id string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
	}
	if po.Status != domain.POStatusReceived {
		return nil, fmt.Errorf("%w: cannot close purchase order %s in status %s, must be fully received", store.ErrInvalidState, id, po.Status)
	}

	po.Status = domain.POStatusClosed
	closedAt := at
	po.ClosedAt = &closedAt
	result := clonePO(po)
	return &result, nil
}

func clonePO(po *domain.PurchaseOrder) domain.PurchaseOrder {
	clone := *po
	clone.Items = slices.Clone(po.Items)
	return clone
}

// --- inventory ledger ---

func (s *Store) CreateAdjustment(_ context.Context, productID string, adjType string, change int, reason string, actorID string) (*domain.InventoryAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch adjType {
	case domain.AdjustmentDamage, domain.AdjustmentTheft, domain.AdjustmentFound, domain.AdjustmentCorrection, domain.AdjustmentInitial:
	default:
		return nil, fmt.Errorf("%w: unknown adjustment type %q", store.ErrValidation, adjType)
	}
	if change == 0 {
		return nil, fmt.Errorf("%w: adjustment change must be non-zero", store.ErrValidation)
	}
	return s.adjustStockLocked(productID, adjType, change, reason, "", actorID, time.Now().UTC())
}

func (s *Store) ListAdjustments(_ context.Context, productID string, limit int) ([]domain.InventoryAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryAdjustment, 0, limit)
	for i := len(s.adjustments) - 1; i >= 0; i-- {
		entry := s.adjustments[i]
		if productID != "" && entry.ProductID != productID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// --- stored value ---

func (s *Store) CreateStoredValueAccount(_ context.Context, account domain.StoredValueAccount, actorID string) (*domain.StoredValueAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(account.CardNumber) == "" {
		return nil, fmt.Errorf("%w: stored-value account requires a card number", store.ErrValidation)
	}
	if account.InitialBalanceCents < 0 {
		return nil, fmt.Errorf("%w: initial balance must be non-negative", store.ErrValidation)
	}
	if _, exists := s.cardIndex[account.CardNumber]; exists {
		return nil, fmt.Errorf("%w: card %s", store.ErrDuplicate, account.CardNumber)
	}

	if account.ID == "" {
		account.ID = xid.New("sva")
	}
	account.CurrentBalanceCents = 0
	account.Active = true
	account.CreatedAt = time.Now().UTC()
	s.svAccounts[account.ID] = account
	s.cardIndex[account.CardNumber] = account.ID

	if account.InitialBalanceCents > 0 {
		if _, err := s.adjustBalanceLocked(account.ID, domain.StoredValueInitial, account.InitialBalanceCents, "initial balance", actorID, account.CreatedAt); err != nil {
			delete(s.svAccounts, account.ID)
			delete(s.cardIndex, account.CardNumber)
			return nil, err
		}
	}

	created := s.svAccounts[account.ID]
	return &created, nil
}

func (s *Store) GetStoredValueAccount(_ context.Context, id string) (*domain.StoredValueAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.svAccounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: stored-value account %s", store.ErrNotFound, id)
	}
	return &account, nil
}

func (s *Store) AdjustStoredValue(_ context.Context, accountID string, entryType string, amountCents int64, reason string, actorID string) (*domain.StoredValueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch entryType {
	case domain.StoredValuePurchase, domain.StoredValueRedemption, domain.StoredValueCorrection:
	default:
		return nil, fmt.Errorf("%w: unknown stored-value entry type %q", store.ErrValidation, entryType)
	}
	if amountCents == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", store.ErrValidation)
	}
	if entryType == domain.StoredValuePurchase && amountCents < 0 {
		return nil, fmt.Errorf("%w: purchase amount must be positive", store.ErrValidation)
	}
	if entryType == domain.StoredValueRedemption && amountCents > 0 {
		return nil, fmt.Errorf("%w: redemption amount must be negative", store.ErrValidation)
	}
	return s.adjustBalanceLocked(accountID, entryType, amountCents, reason, actorID, time.Now().UTC())
}

func (s *Store) ListStoredValueEntries(_ context.Context, accountID string, limit int) ([]domain.StoredValueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StoredValueEntry, 0, limit)
	for i := len(s.svEntries) - 1; i >= 0; i-- {
		entry := s.svEntries[i]
		if accountID != "" && entry.AccountID != accountID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// --- reorder advisor ---

func (s *Store) ListUnderstockedProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if p.QuantityInStock <= p.ReorderLevel {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

// --- audit ---

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: user %s", store.ErrDuplicate, user.Username)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
