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

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if len(po.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase order requires at least one item", store.ErrValidation)
	}
	for i := range po.Items {
		if po.Items[i].QtyOrdered < 1 {
			return nil, fmt.Errorf("%w: item %s quantity must be positive", store.ErrValidation, po.Items[i].ProductID)
		}
	}

	pgTx, err := s.begin(ctx, sql.LevelReadCommitted)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var vendorExists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM vendors WHERE id = $1)`, po.VendorID).Scan(&vendorExists); err != nil {
		return nil, err
	}
	if !vendorExists {
		return nil, fmt.Errorf("%w: vendor %s", store.ErrNotFound, po.VendorID)
	}

	if po.ID == "" {
		po.ID = xid.New("po")
	}
	seq, err := nextNumber(ctx, pgTx, "po")
	if err != nil {
		return nil, mapConflict(err)
	}
	po.Number = fmt.Sprintf("PO-%06d", seq)
	po.Status = domain.POStatusDraft
	po.CreatedAt = time.Now().UTC()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, number, vendor_id, status, total_cents, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, po.ID, po.Number, po.VendorID, po.Status, po.TotalCents, po.CreatedBy, po.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range po.Items {
		item := &po.Items[i]
		if item.ID == "" {
			item.ID = xid.New("poi")
		}
		item.QtyReceived = 0
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (id, po_id, product_id, qty_ordered, qty_received, unit_cost_cents)
			VALUES ($1,$2,$3,$4,0,$5)
		`, item.ID, po.ID, item.ProductID, item.QtyOrdered, item.UnitCostCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	result := po
	return &result, nil
}

// UpdatePurchaseOrderItems replaces the item set of a draft. The status
// check runs under a lock on the PO row so a concurrent submit cannot race
// the edit.
func (s *Store) UpdatePurchaseOrderItems(ctx context.Context, poID string, items []domain.PurchaseOrderItem, totalCents int64) (*domain.PurchaseOrder, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: purchase order requires at least one item", store.ErrValidation)
	}

	pgTx, err := s.begin(ctx, sql.LevelSerializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	status, err := lockPOStatus(ctx, pgTx, poID)
	if err != nil {
		return nil, err
	}
	if status != domain.POStatusDraft {
		return nil, fmt.Errorf("%w: purchase order %s is %s, items editable only in draft", store.ErrInvalidState, poID, status)
	}

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM purchase_order_items WHERE po_id = $1`, poID); err != nil {
		return nil, err
	}
	for i := range items {
		item := &items[i]
		if item.QtyOrdered < 1 {
			return nil, fmt.Errorf("%w: item %s quantity must be positive", store.ErrValidation, item.ProductID)
		}
		if item.ID == "" {
			item.ID = xid.New("poi")
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (id, po_id, product_id, qty_ordered, qty_received, unit_cost_cents)
			VALUES ($1,$2,$3,$4,0,$5)
		`, item.ID, poID, item.ProductID, item.QtyOrdered, item.UnitCostCents)
		if err != nil {
			return nil, err
		}
	}
	if _, err := pgTx.ExecContext(ctx, `UPDATE purchase_orders SET total_cents = $2 WHERE id = $1`, poID, totalCents); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	return s.GetPurchaseOrder(ctx, poID)
}

func (s *Store) SubmitPurchaseOrder(ctx context.Context, id string, at time.Time) (*domain.PurchaseOrder, error) {
	return s.transitionPO(ctx, id, func(pgTx *sql.Tx, status string) error {
		if status != domain.POStatusDraft {
			return fmt.Errorf("%w: cannot submit purchase order %s from status %s", store.ErrInvalidState, id, status)
		}
		var count int
		if err := pgTx.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchase_order_items WHERE po_id = $1`, id).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: cannot submit purchase order %s with no items", store.ErrValidation, id)
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE purchase_orders SET status = $2, submitted_at = $3 WHERE id = $1
		`, id, domain.POStatusSubmitted, at)
		return err
	})
}

func (s *Store) ApprovePurchaseOrder(ctx context.Context, id string, approvedBy string, at time.Time) (*domain.PurchaseOrder, error) {
	return s.transitionPO(ctx, id, func(pgTx *sql.Tx, status string) error {
		if status != domain.POStatusSubmitted {
			return fmt.Errorf("%w: cannot approve purchase order %s from status %s", store.ErrInvalidState, id, status)
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE purchase_orders SET status = $2, approved_by = $3, approved_at = $4 WHERE id = $1
		`, id, domain.POStatusApproved, approvedBy, at)
		return err
	})
}

func (s *Store) CancelPurchaseOrder(ctx context.Context, id string, reason string, at time.Time) (*domain.PurchaseOrder, error) {
	return s.transitionPO(ctx, id, func(pgTx *sql.Tx, status string) error {
		if domain.TerminalPOStatus(status) {
			return fmt.Errorf("%w: cannot cancel purchase order %s in status %s", store.ErrInvalidState, id, status)
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE purchase_orders SET status = $2, cancel_reason = $3, cancelled_at = $4 WHERE id = $1
		`, id, domain.POStatusCancelled, reason, at)
		return err
	})
}

func (s *Store) ClosePurchaseOrder(ctx context.Context, id string, at time.Time) (*domain.PurchaseOrder, error) {
	return s.transitionPO(ctx, id, func(pgTx *sql.Tx, status string) error {
		if status != domain.POStatusReceived {
			return fmt.Errorf("%w: cannot close purchase order %s in status %s, must be fully received", store.ErrInvalidState, id, status)
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE purchase_orders SET status = $2, closed_at = $3 WHERE id = $1
		`, id, domain.POStatusClosed, at)
		return err
	})
}

// transitionPO runs a status transition under a FOR UPDATE lock on the PO
// row, so the check and the write are one atomic unit.
func (s *Store) transitionPO(ctx context.Context, id string, apply func(pgTx *sql.Tx, status string) error) (*domain.PurchaseOrder, error) {
	pgTx, err := s.begin(ctx, sql.LevelSerializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	status, err := lockPOStatus(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(pgTx, status); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	return s.GetPurchaseOrder(ctx, id)
}

// ReceivePurchaseOrderItems applies receipt lines under a lock on the PO
// row. Over-receipt validation happens against the locked quantities before
// any stock credit, so a rejection leaves zero state change.
func (s *Store) ReceivePurchaseOrderItems(ctx context.Context, id string, lines []domain.POReceiptLine, actorID string, at time.Time) (*domain.PurchaseOrder, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: receive requires at least one line", store.ErrValidation)
	}

	pgTx, err := s.begin(ctx, sql.LevelSerializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	status, err := lockPOStatus(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}
	if status != domain.POStatusApproved && status != domain.POStatusPartiallyReceived {
		return nil, fmt.Errorf("%w: cannot receive on purchase order %s in status %s", store.ErrInvalidState, id, status)
	}

	items, err := queryPOItems(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}
	itemsByID := make(map[string]*domain.PurchaseOrderItem, len(items))
	for i := range items {
		itemsByID[items[i].ID] = &items[i]
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

	productIDs := make([]string, 0, len(increments))
	seen := make(map[string]bool, len(increments))
	for itemID := range increments {
		pid := itemsByID[itemID].ProductID
		if !seen[pid] {
			seen[pid] = true
			productIDs = append(productIDs, pid)
		}
	}
	if _, err := lockProducts(ctx, pgTx, productIDs); err != nil {
		return nil, mapConflict(err)
	}

	for itemID, qty := range increments {
		item := itemsByID[itemID]
		if _, err := adjustStock(ctx, pgTx, item.ProductID, domain.AdjustmentReceipt, qty, "", id, actorID, at); err != nil {
			return nil, err
		}
		item.QtyReceived += qty

		if _, err := pgTx.ExecContext(ctx, `
			UPDATE purchase_order_items SET qty_received = $2 WHERE id = $1
		`, itemID, item.QtyReceived); err != nil {
			return nil, err
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET last_cost_cents = $2, updated_at = $3 WHERE id = $1
		`, item.ProductID, item.UnitCostCents, at); err != nil {
			return nil, err
		}
	}

	newStatus := domain.DerivePurchaseOrderStatus(items)
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2 WHERE id = $1
	`, id, newStatus); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	return s.GetPurchaseOrder(ctx, id)
}

func lockPOStatus(ctx context.Context, pgTx *sql.Tx, id string) (string, error) {
	var status string
	err := pgTx.QueryRowContext(ctx, `
		SELECT status FROM purchase_orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
		}
		return "", mapConflict(err)
	}
	return status, nil
}

func queryPOItems(ctx context.Context, q querier, poID string) ([]domain.PurchaseOrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, qty_ordered, qty_received, unit_cost_cents
		FROM purchase_order_items
		WHERE po_id = $1
		ORDER BY id
	`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.QtyOrdered, &item.QtyReceived, &item.UnitCostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const poColumns = `
	id, number, vendor_id, status, total_cents, created_by,
	submitted_at, approved_by, approved_at, cancel_reason, cancelled_at, closed_at, created_at
`

func scanPO(row interface{ Scan(...any) error }) (domain.PurchaseOrder, error) {
	var (
		po           domain.PurchaseOrder
		submittedAt  sql.NullTime
		approvedBy   sql.NullString
		approvedAt   sql.NullTime
		cancelReason sql.NullString
		cancelledAt  sql.NullTime
		closedAt     sql.NullTime
	)
	err := row.Scan(&po.ID, &po.Number, &po.VendorID, &po.Status, &po.TotalCents, &po.CreatedBy,
		&submittedAt, &approvedBy, &approvedAt, &cancelReason, &cancelledAt, &closedAt, &po.CreatedAt)
	if err != nil {
		return po, err
	}
	if submittedAt.Valid {
		t := submittedAt.Time.UTC()
		po.SubmittedAt = &t
	}
	po.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		t := approvedAt.Time.UTC()
		po.ApprovedAt = &t
	}
	po.CancelReason = cancelReason.String
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		po.CancelledAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		po.ClosedAt = &t
	}
	po.CreatedAt = po.CreatedAt.UTC()
	return po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id)
	po, err := scanPO(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: purchase order %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	if po.Items, err = queryPOItems(ctx, s.db, id); err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 50
	}

	query := `SELECT ` + poColumns + ` FROM purchase_orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY number DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].Items, err = queryPOItems(ctx, s.db, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}
