// Package postgres implements the repository on PostgreSQL. Every mutation
// of a stock level, balance, or lifecycle status runs inside one
// transaction that takes a FOR UPDATE lock on the mutated row before
// reading it; lock waits are bounded by lock_timeout and surface as
// store.ErrConcurrencyConflict rather than hangs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
	"github.com/agastya71/mysl-pos-project-sub005/internal/xid"
)

type Store struct {
	db                *sql.DB
	lockTimeoutMillis int
}

func New(ctx context.Context, databaseURL string, lockTimeoutMillis int) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if lockTimeoutMillis < 1 {
		lockTimeoutMillis = 5000
	}
	return &Store{db: db, lockTimeoutMillis: lockTimeoutMillis}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// begin opens a transaction with a bounded lock_timeout so a contended row
// lock fails fast instead of blocking the handler.
func (s *Store) begin(ctx context.Context, iso sql.IsolationLevel) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: iso})
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeoutMillis)); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return tx, nil
}

// mapConflict translates serialization failures, deadlocks, and lock
// timeouts into the retryable conflict error.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// adjustStock is the inventory ledger primitive. It locks the product row,
// validates the delta, and writes the new quantity and the ledger entry in
// the caller's open transaction. All stock mutations go through here.
func adjustStock(ctx context.Context, tx *sql.Tx, productID, adjType string, change int, reason, referenceID, actorID string, at time.Time) (*domain.InventoryAdjustment, error) {
	var oldQty int
	err := tx.QueryRowContext(ctx, `
		SELECT quantity_in_stock
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&oldQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		return nil, err
	}

	newQty := oldQty + change
	if newQty < 0 {
		return nil, fmt.Errorf("%w: product %s has %d in stock, change %d would go negative", store.ErrInsufficientStock, productID, oldQty, change)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity_in_stock = $2, updated_at = $3 WHERE id = $1
	`, productID, newQty, at); err != nil {
		return nil, err
	}

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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_adjustments
			(id, product_id, type, quantity_change, old_quantity, new_quantity, reason, reference_id, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.ProductID, entry.Type, entry.QuantityChange, entry.OldQuantity, entry.NewQuantity,
		nullIfEmpty(entry.Reason), nullIfEmpty(entry.ReferenceID), entry.ActorID, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// adjustBalance is the stored-value ledger primitive. Redemptions require
// an active, unexpired account; credits and corrections in either direction
// are allowed regardless so a balance can always be repaired.
func adjustBalance(ctx context.Context, tx *sql.Tx, accountID, entryType string, amountCents int64, reason, actorID string, at time.Time) (*domain.StoredValueEntry, error) {
	var (
		before    int64
		active    bool
		expiresAt sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `
		SELECT current_balance_cents, active, expires_at
		FROM stored_value_accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&before, &active, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: stored-value account %s", store.ErrNotFound, accountID)
		}
		return nil, err
	}

	if entryType == domain.StoredValueRedemption {
		if !active {
			return nil, fmt.Errorf("%w: account %s is inactive, redemptions not allowed", store.ErrInvalidState, accountID)
		}
		if expiresAt.Valid && expiresAt.Time.Before(at) {
			return nil, fmt.Errorf("%w: account %s expired at %s", store.ErrInvalidState, accountID, expiresAt.Time.UTC().Format(time.RFC3339))
		}
	}

	after := before + amountCents
	if after < 0 {
		return nil, fmt.Errorf("%w: account %s balance %d, change %d would go negative", store.ErrInsufficientBalance, accountID, before, amountCents)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE stored_value_accounts SET current_balance_cents = $2 WHERE id = $1
	`, accountID, after); err != nil {
		return nil, err
	}

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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stored_value_entries
			(id, account_id, type, amount_cents, balance_before_cents, balance_after_cents, reason, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.AccountID, entry.Type, entry.AmountCents, entry.BalanceBeforeCents, entry.BalanceAfterCents,
		nullIfEmpty(entry.Reason), entry.ActorID, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// nextNumber allocates the next value of a named counter inside the
// caller's transaction, so a rolled-back operation leaves at most a gap in
// the sequence, never a duplicate.
func nextNumber(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var value int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name).Scan(&value)
	return value, err
}

// lockProducts takes FOR UPDATE locks on the given product rows in id
// order, so two operations touching the same set cannot deadlock.
func lockProducts(ctx context.Context, tx *sql.Tx, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	rows, err := tx.QueryContext(ctx, `
		SELECT id, sku, name, COALESCE(category_id,''), COALESCE(vendor_id,''),
		       unit_price_cents, tax_rate, quantity_in_stock, reorder_level,
		       reorder_quantity, last_cost_cents, active
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.VendorID,
			&p.UnitPriceCents, &p.TaxRate, &p.QuantityInStock, &p.ReorderLevel,
			&p.ReorderQuantity, &p.LastCostCents, &p.Active); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const productColumns = `
	id, sku, name, COALESCE(category_id,''), COALESCE(vendor_id,''),
	unit_price_cents, tax_rate, quantity_in_stock, reorder_level,
	reorder_quantity, last_cost_cents, active, created_at, updated_at
`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.VendorID,
		&p.UnitPriceCents, &p.TaxRate, &p.QuantityInStock, &p.ReorderLevel,
		&p.ReorderQuantity, &p.LastCostCents, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, fmt.Errorf("%w: product requires sku and name", store.ErrValidation)
	}

	tx, err := s.begin(ctx, sql.LevelReadCommitted)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	initial := product.QuantityInStock

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products
			(id, sku, name, category_id, vendor_id, unit_price_cents, tax_rate,
			 quantity_in_stock, reorder_level, reorder_quantity, last_cost_cents,
			 active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,$10,$11,$12,$12)
	`, product.ID, product.SKU, product.Name, nullIfEmpty(product.CategoryID), nullIfEmpty(product.VendorID),
		product.UnitPriceCents, product.TaxRate, product.ReorderLevel, product.ReorderQuantity,
		product.LastCostCents, product.Active, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s", store.ErrDuplicate, product.SKU)
		}
		return nil, err
	}

	if initial > 0 {
		if _, err := adjustStock(ctx, tx, product.ID, domain.AdjustmentInitial, initial, "initial stock", "", "system", now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapConflict(err)
	}

	product.QuantityInStock = initial
	product.CreatedAt = now
	product.UpdatedAt = now
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	// Stock is owned by the ledger; updates never touch quantity_in_stock.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category_id = $3, vendor_id = $4, unit_price_cents = $5,
		    tax_rate = $6, reorder_level = $7, reorder_quantity = $8,
		    active = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.CategoryID), nullIfEmpty(product.VendorID),
		product.UnitPriceCents, product.TaxRate, product.ReorderLevel, product.ReorderQuantity, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, product.ID)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[product.ID] = product
	}
	return result, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if strings.TrimSpace(vendor.Name) == "" {
		return nil, fmt.Errorf("%w: vendor requires a name", store.ErrValidation)
	}
	if vendor.ID == "" {
		vendor.ID = xid.New("ven")
	}
	vendor.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, email, phone, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, vendor.ID, vendor.Name, nullIfEmpty(vendor.Email), nullIfEmpty(vendor.Phone), vendor.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (s *Store) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	var vendor domain.Vendor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email,''), COALESCE(phone,''), created_at
		FROM vendors WHERE id = $1
	`, id).Scan(&vendor.ID, &vendor.Name, &vendor.Email, &vendor.Phone, &vendor.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: vendor %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	vendor.CreatedAt = vendor.CreatedAt.UTC()
	return &vendor, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(email,''), COALESCE(phone,''), created_at
		FROM vendors ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0, 32)
	for rows.Next() {
		var vendor domain.Vendor
		if err := rows.Scan(&vendor.ID, &vendor.Name, &vendor.Email, &vendor.Phone, &vendor.CreatedAt); err != nil {
			return nil, err
		}
		vendor.CreatedAt = vendor.CreatedAt.UTC()
		vendors = append(vendors, vendor)
	}
	return vendors, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, fmt.Errorf("%w: category requires a name", store.ErrValidation)
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	category.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, parent_id, created_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, nullIfEmpty(category.ParentID), category.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(parent_id,''), created_at
		FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.ParentID, &category.CreatedAt); err != nil {
			return nil, err
		}
		category.CreatedAt = category.CreatedAt.UTC()
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (s *Store) MoveCategory(ctx context.Context, categoryID string, newParentID string) (*domain.Category, error) {
	tx, err := s.begin(ctx, sql.LevelSerializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var category domain.Category
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(parent_id,''), created_at
		FROM categories WHERE id = $1
		FOR UPDATE
	`, categoryID).Scan(&category.ID, &category.Name, &category.ParentID, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: category %s", store.ErrNotFound, categoryID)
		}
		return nil, mapConflict(err)
	}

	if newParentID != "" {
		// Walk up from the new parent inside the same transaction; hitting
		// the moved node means a cycle.
		cursor := newParentID
		for cursor != "" {
			if cursor == categoryID {
				return nil, fmt.Errorf("%w: moving category %s under %s creates a cycle", store.ErrValidation, categoryID, newParentID)
			}
			var parent sql.NullString
			err := tx.QueryRowContext(ctx, `SELECT parent_id FROM categories WHERE id = $1`, cursor).Scan(&parent)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("%w: parent category %s", store.ErrNotFound, cursor)
				}
				return nil, err
			}
			cursor = parent.String
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE categories SET parent_id = $2 WHERE id = $1
	`, categoryID, nullIfEmpty(newParentID)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapConflict(err)
	}

	category.ParentID = newParentID
	category.CreatedAt = category.CreatedAt.UTC()
	return &category, nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
