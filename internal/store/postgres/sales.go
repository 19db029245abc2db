package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
	"github.com/agastya71/mysl-pos-project-sub005/internal/xid"
)

// CreateSaleTransaction persists a computed sale and deducts stock for
// every line, all inside one serializable transaction. Product rows are
// locked in id order before any read, so a racing sale or void on the same
// products sees this sale's effect or fails fast, never both succeeding
// from stale reads.
func (s *Store) CreateSaleTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: transaction requires at least one item", store.ErrValidation)
	}

	pgTx, err := s.begin(ctx, sql.LevelSerializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	ids := make([]string, 0, len(tx.Items))
	needed := make(map[string]int, len(tx.Items))
	for _, item := range tx.Items {
		if _, seen := needed[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		needed[item.ProductID] += item.Quantity
	}

	products, err := lockProducts(ctx, pgTx, ids)
	if err != nil {
		return nil, mapConflict(err)
	}
	for productID, qty := range needed {
		product, ok := products[productID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrNotFound, productID)
		}
		if product.QuantityInStock < qty {
			return nil, fmt.Errorf("%w: product %s has %d in stock, need %d", store.ErrInsufficientStock, productID, product.QuantityInStock, qty)
		}
	}

	now := time.Now().UTC()
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	seq, err := nextNumber(ctx, pgTx, "sale")
	if err != nil {
		return nil, mapConflict(err)
	}
	tx.Number = fmt.Sprintf("S-%06d", seq)
	tx.Status = domain.TxStatusCompleted
	tx.CreatedAt = now

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions
			(id, number, status, cashier_id, terminal_id, customer_id,
			 subtotal_cents, tax_cents, discount_cents, total_cents, change_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, tx.ID, tx.Number, tx.Status, tx.CashierID, tx.TerminalID, nullIfEmpty(tx.CustomerID),
		tx.SubtotalCents, tx.TaxCents, tx.DiscountCents, tx.TotalCents, tx.ChangeCents, tx.CreatedAt)
	if err != nil {
		return nil, mapConflict(err)
	}

	for i, item := range tx.Items {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items
				(transaction_id, line_no, product_id, sku, name, category_id, quantity,
				 unit_price_cents, tax_rate, discount_cents,
				 line_subtotal_cents, line_tax_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, tx.ID, i+1, item.ProductID, item.SKU, item.Name, nullIfEmpty(item.CategoryID), item.Quantity,
			item.UnitPriceCents, item.TaxRate, item.DiscountCents,
			item.LineSubtotalCents, item.LineTaxCents, item.LineTotalCents)
		if err != nil {
			return nil, err
		}

		if _, err := adjustStock(ctx, pgTx, item.ProductID, domain.AdjustmentSale, -item.Quantity, "", tx.ID, tx.CashierID, now); err != nil {
			return nil, err
		}
	}

	for i, payment := range tx.Payments {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO transaction_payments
				(transaction_id, line_no, method, amount_cents, tender_token, auth_id)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tx.ID, i+1, payment.Method, payment.AmountCents, nullIfEmpty(payment.TenderToken), nullIfEmpty(payment.AuthID))
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	result := tx
	return &result, nil
}

// VoidSaleTransaction re-checks the status under a FOR UPDATE lock so two
// racing voids cannot both restock.
func (s *Store) VoidSaleTransaction(ctx context.Context, id string, reason string, actorID string, at time.Time) (*domain.Transaction, error) {
	pgTx, err := s.begin(ctx, sql.LevelSerializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var (
		status   string
		voidedBy sql.NullString
		voidedAt sql.NullTime
	)
	err = pgTx.QueryRowContext(ctx, `
		SELECT status, voided_by, voided_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status, &voidedBy, &voidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
		}
		return nil, mapConflict(err)
	}
	if status != domain.TxStatusCompleted {
		if status == domain.TxStatusVoided {
			return nil, fmt.Errorf("%w: cannot void transaction %s: already voided by %s at %s", store.ErrInvalidState, id, voidedBy.String, voidedAt.Time.UTC().Format(time.RFC3339))
		}
		return nil, fmt.Errorf("%w: cannot void transaction %s in status %s", store.ErrInvalidState, id, status)
	}

	items, err := s.queryItems(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	if _, err := lockProducts(ctx, pgTx, ids); err != nil {
		return nil, mapConflict(err)
	}
	for _, item := range items {
		if _, err := adjustStock(ctx, pgTx, item.ProductID, domain.AdjustmentVoid, item.Quantity, reason, id, actorID, at); err != nil {
			return nil, err
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, void_reason = $3, voided_by = $4, voided_at = $5
		WHERE id = $1
	`, id, domain.TxStatusVoided, reason, actorID, at); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	return s.GetTransaction(ctx, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryItems(ctx context.Context, q querier, txID string) ([]domain.TransactionItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, sku, name, COALESCE(category_id,''), quantity,
		       unit_price_cents, tax_rate, discount_cents,
		       line_subtotal_cents, line_tax_cents, line_total_cents
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY line_no
	`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionItem, 0, 8)
	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.CategoryID, &item.Quantity,
			&item.UnitPriceCents, &item.TaxRate, &item.DiscountCents,
			&item.LineSubtotalCents, &item.LineTaxCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) queryPayments(ctx context.Context, q querier, txID string) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT method, amount_cents, COALESCE(tender_token,''), COALESCE(auth_id,'')
		FROM transaction_payments
		WHERE transaction_id = $1
		ORDER BY line_no
	`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 2)
	for rows.Next() {
		var payment domain.Payment
		if err := rows.Scan(&payment.Method, &payment.AmountCents, &payment.TenderToken, &payment.AuthID); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var (
		tx       domain.Transaction
		customer sql.NullString
		reason   sql.NullString
		voidedBy sql.NullString
		voidedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, status, cashier_id, terminal_id, customer_id,
		       subtotal_cents, tax_cents, discount_cents, total_cents, change_cents,
		       void_reason, voided_by, voided_at, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &tx.Number, &tx.Status, &tx.CashierID, &tx.TerminalID, &customer,
		&tx.SubtotalCents, &tx.TaxCents, &tx.DiscountCents, &tx.TotalCents, &tx.ChangeCents,
		&reason, &voidedBy, &voidedAt, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	tx.CustomerID = customer.String
	tx.VoidReason = reason.String
	tx.VoidedBy = voidedBy.String
	if voidedAt.Valid {
		t := voidedAt.Time.UTC()
		tx.VoidedAt = &t
	}
	tx.CreatedAt = tx.CreatedAt.UTC()

	if tx.Items, err = s.queryItems(ctx, s.db, id); err != nil {
		return nil, err
	}
	if tx.Payments, err = s.queryPayments(ctx, s.db, id); err != nil {
		return nil, err
	}
	return &tx, nil
}
