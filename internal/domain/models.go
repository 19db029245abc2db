package domain

import "time"

type Product struct {
	ID              string    `json:"id"`
	SKU             string    `json:"sku"`
	Name            string    `json:"name"`
	CategoryID      string    `json:"category_id,omitempty"`
	VendorID        string    `json:"vendor_id,omitempty"`
	UnitPriceCents  int64     `json:"unit_price_cents"`
	TaxRate         float64   `json:"tax_rate"`
	QuantityInStock int       `json:"quantity_in_stock"`
	ReorderLevel    int       `json:"reorder_level"`
	ReorderQuantity int       `json:"reorder_quantity"`
	LastCostCents   int64     `json:"last_cost_cents"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	CategoryID      string  `json:"category_id,omitempty"`
	VendorID        string  `json:"vendor_id,omitempty"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	TaxRate         float64 `json:"tax_rate"`
	InitialStock    int     `json:"initial_stock"`
	ReorderLevel    int     `json:"reorder_level"`
	ReorderQuantity int     `json:"reorder_quantity"`
}

type ProductUpdateRequest struct {
	Name            *string  `json:"name,omitempty"`
	CategoryID      *string  `json:"category_id,omitempty"`
	VendorID        *string  `json:"vendor_id,omitempty"`
	UnitPriceCents  *int64   `json:"unit_price_cents,omitempty"`
	TaxRate         *float64 `json:"tax_rate,omitempty"`
	ReorderLevel    *int     `json:"reorder_level,omitempty"`
	ReorderQuantity *int     `json:"reorder_quantity,omitempty"`
	Active          *bool    `json:"active,omitempty"`
}

type Vendor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type VendorCreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Category nodes form a tree via ParentID. Reparenting must reject cycles
// inside the same transaction that performs the move.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

const (
	TxStatusCompleted = "completed"
	TxStatusVoided    = "voided"
	TxStatusRefunded  = "refunded"
)

const (
	PaymentMethodCash       = "cash"
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodDebitCard  = "debit_card"
	PaymentMethodCheck      = "check"
)

// TransactionItem carries a frozen product snapshot so later catalog edits
// never alter historical receipts. Rows are append-only.
type TransactionItem struct {
	ProductID         string  `json:"product_id"`
	SKU               string  `json:"sku"`
	Name              string  `json:"name"`
	CategoryID        string  `json:"category_id,omitempty"`
	Quantity          int     `json:"quantity"`
	UnitPriceCents    int64   `json:"unit_price_cents"`
	TaxRate           float64 `json:"tax_rate"`
	DiscountCents     int64   `json:"discount_cents"`
	LineSubtotalCents int64   `json:"line_subtotal_cents"`
	LineTaxCents      int64   `json:"line_tax_cents"`
	LineTotalCents    int64   `json:"line_total_cents"`
}

type Payment struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	TenderToken string `json:"tender_token,omitempty"`
	AuthID      string `json:"auth_id,omitempty"`
}

type Transaction struct {
	ID            string            `json:"id"`
	Number        string            `json:"number"`
	Status        string            `json:"status"`
	CashierID     string            `json:"cashier_id"`
	TerminalID    string            `json:"terminal_id"`
	CustomerID    string            `json:"customer_id,omitempty"`
	SubtotalCents int64             `json:"subtotal_cents"`
	TaxCents      int64             `json:"tax_cents"`
	DiscountCents int64             `json:"discount_cents"`
	TotalCents    int64             `json:"total_cents"`
	ChangeCents   int64             `json:"change_cents"`
	VoidReason    string            `json:"void_reason,omitempty"`
	VoidedBy      string            `json:"voided_by,omitempty"`
	VoidedAt      *time.Time        `json:"voided_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []TransactionItem `json:"items"`
	Payments      []Payment         `json:"payments"`
}

type SaleLineRequest struct {
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	DiscountCents int64  `json:"discount_cents"`
}

type PaymentRequest struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	TenderToken string `json:"tender_token,omitempty"`
}

type TransactionCreateRequest struct {
	TerminalID string            `json:"terminal_id"`
	CustomerID string            `json:"customer_id,omitempty"`
	Items      []SaleLineRequest `json:"items"`
	Payments   []PaymentRequest  `json:"payments"`
}

type TransactionVoidRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

const (
	POStatusDraft             = "draft"
	POStatusSubmitted         = "submitted"
	POStatusApproved          = "approved"
	POStatusPartiallyReceived = "partially_received"
	POStatusReceived          = "received"
	POStatusClosed            = "closed"
	POStatusCancelled         = "cancelled"
)

type PurchaseOrderItem struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	QtyOrdered    int    `json:"qty_ordered"`
	QtyReceived   int    `json:"qty_received"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

// QtyPending is always derived, never stored.
func (i PurchaseOrderItem) QtyPending() int {
	return i.QtyOrdered - i.QtyReceived
}

type PurchaseOrder struct {
	ID           string              `json:"id"`
	Number       string              `json:"number"`
	VendorID     string              `json:"vendor_id"`
	Status       string              `json:"status"`
	TotalCents   int64               `json:"total_cents"`
	CreatedBy    string              `json:"created_by"`
	SubmittedAt  *time.Time          `json:"submitted_at,omitempty"`
	ApprovedBy   string              `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time          `json:"approved_at,omitempty"`
	CancelReason string              `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time          `json:"cancelled_at,omitempty"`
	ClosedAt     *time.Time          `json:"closed_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	Items        []PurchaseOrderItem `json:"items"`
}

type POItemRequest struct {
	ProductID     string `json:"product_id"`
	QtyOrdered    int    `json:"qty_ordered"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type POCreateRequest struct {
	VendorID string          `json:"vendor_id"`
	Items    []POItemRequest `json:"items"`
}

type POReceiptLine struct {
	ItemID      string `json:"item_id"`
	QtyReceived int    `json:"qty_received"`
}

type POReceiveRequest struct {
	Lines []POReceiptLine `json:"lines"`
}

type POCancelRequest struct {
	Reason string `json:"reason"`
}

const (
	AdjustmentDamage     = "damage"
	AdjustmentTheft      = "theft"
	AdjustmentFound      = "found"
	AdjustmentCorrection = "correction"
	AdjustmentInitial    = "initial"
	AdjustmentSale       = "sale"
	AdjustmentVoid       = "void"
	AdjustmentReceipt    = "receipt"
)

// InventoryAdjustment is the append-only stock ledger. For every entry
// NewQuantity - OldQuantity == QuantityChange, and entries on one product
// chain: entry N+1 old equals entry N new.
type InventoryAdjustment struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	Type           string    `json:"type"`
	QuantityChange int       `json:"quantity_change"`
	OldQuantity    int       `json:"old_quantity"`
	NewQuantity    int       `json:"new_quantity"`
	Reason         string    `json:"reason,omitempty"`
	ReferenceID    string    `json:"reference_id,omitempty"`
	ActorID        string    `json:"actor_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type AdjustmentCreateRequest struct {
	ProductID      string `json:"product_id"`
	Type           string `json:"type"`
	QuantityChange int    `json:"quantity_change"`
	Reason         string `json:"reason"`
}

const (
	StoredValuePurchase   = "purchase"
	StoredValueRedemption = "redemption"
	StoredValueCorrection = "correction"
	StoredValueInitial    = "initial"
)

type StoredValueAccount struct {
	ID                  string     `json:"id"`
	CardNumber          string     `json:"card_number"`
	CustomerID          string     `json:"customer_id,omitempty"`
	InitialBalanceCents int64      `json:"initial_balance_cents"`
	CurrentBalanceCents int64      `json:"current_balance_cents"`
	Active              bool       `json:"active"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

type StoredValueEntry struct {
	ID                 string    `json:"id"`
	AccountID          string    `json:"account_id"`
	Type               string    `json:"type"`
	AmountCents        int64     `json:"amount_cents"`
	BalanceBeforeCents int64     `json:"balance_before_cents"`
	BalanceAfterCents  int64     `json:"balance_after_cents"`
	Reason             string    `json:"reason,omitempty"`
	ActorID            string    `json:"actor_id"`
	CreatedAt          time.Time `json:"created_at"`
}

type StoredValueAccountCreateRequest struct {
	CardNumber          string `json:"card_number"`
	CustomerID          string `json:"customer_id,omitempty"`
	InitialBalanceCents int64  `json:"initial_balance_cents"`
	ExpiresAt           string `json:"expires_at,omitempty"`
}

type StoredValueAdjustRequest struct {
	AccountID   string `json:"account_id"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

type ReorderLine struct {
	ProductID          string `json:"product_id"`
	SKU                string `json:"sku"`
	Name               string `json:"name"`
	QuantityInStock    int    `json:"quantity_in_stock"`
	ReorderLevel       int    `json:"reorder_level"`
	SuggestedQty       int    `json:"suggested_qty"`
	LastCostCents      int64  `json:"last_cost_cents"`
	EstimatedCostCents int64  `json:"estimated_cost_cents"`
}

type VendorReorderGroup struct {
	VendorID   string        `json:"vendor_id"`
	VendorName string        `json:"vendor_name"`
	Lines      []ReorderLine `json:"lines"`
}

type ReorderReport struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Groups      []VendorReorderGroup `json:"groups"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is the persistence model for auth credentials. Password holds
// a bcrypt hash and never serializes.
type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}
