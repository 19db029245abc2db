package store

import (
	"context"
	"errors"
	"time"

	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
)

// Error taxonomy. Business-rule rejections are sentinel errors so callers
// can branch with errors.Is; implementations wrap them with the entity id
// and the violated rule, e.g.
// fmt.Errorf("%w: product %s has 3 in stock, need 5", ErrInsufficientStock, id).
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverReceipt         = errors.New("receipt exceeds ordered quantity")
	ErrConcurrencyConflict = errors.New("concurrent update conflict, retry")
	ErrDuplicate           = errors.New("already exists")
)

// Repository is the single persistence boundary. Every method that mutates
// a stock level or a balance performs the read-validate-write sequence and
// its audit row inside one atomic unit, under a lock on the mutated row;
// no partial state ever commits.
type Repository interface {
	// Catalog.
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error)

	CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error)
	GetVendor(ctx context.Context, id string) (*domain.Vendor, error)
	ListVendors(ctx context.Context) ([]domain.Vendor, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	// MoveCategory reparents a node. The ancestor walk that rejects cycles
	// runs inside the same transaction as the update.
	MoveCategory(ctx context.Context, categoryID string, newParentID string) (*domain.Category, error)

	// Sales.
	CreateSaleTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	VoidSaleTransaction(ctx context.Context, id string, reason string, actorID string, at time.Time) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// Purchasing.
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	UpdatePurchaseOrderItems(ctx context.Context, poID string, items []domain.PurchaseOrderItem, totalCents int64) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	SubmitPurchaseOrder(ctx context.Context, id string, at time.Time) (*domain.PurchaseOrder, error)
	ApprovePurchaseOrder(ctx context.Context, id string, approvedBy string, at time.Time) (*domain.PurchaseOrder, error)
	ReceivePurchaseOrderItems(ctx context.Context, id string, lines []domain.POReceiptLine, actorID string, at time.Time) (*domain.PurchaseOrder, error)
	CancelPurchaseOrder(ctx context.Context, id string, reason string, at time.Time) (*domain.PurchaseOrder, error)
	ClosePurchaseOrder(ctx context.Context, id string, at time.Time) (*domain.PurchaseOrder, error)

	// Inventory ledger.
	CreateAdjustment(ctx context.Context, productID string, adjType string, change int, reason string, actorID string) (*domain.InventoryAdjustment, error)
	ListAdjustments(ctx context.Context, productID string, limit int) ([]domain.InventoryAdjustment, error)

	// Stored value.
	CreateStoredValueAccount(ctx context.Context, account domain.StoredValueAccount, actorID string) (*domain.StoredValueAccount, error)
	GetStoredValueAccount(ctx context.Context, id string) (*domain.StoredValueAccount, error)
	AdjustStoredValue(ctx context.Context, accountID string, entryType string, amountCents int64, reason string, actorID string) (*domain.StoredValueEntry, error)
	ListStoredValueEntries(ctx context.Context, accountID string, limit int) ([]domain.StoredValueEntry, error)

	// Reorder advisor (read-only).
	ListUnderstockedProducts(ctx context.Context) ([]domain.Product, error)

	// Audit.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// Users.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
