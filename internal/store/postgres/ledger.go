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

func (s *Store) CreateAdjustment(ctx context.Context, productID string, adjType string, change int, reason string, actorID string) (*domain.InventoryAdjustment, error) {
	switch adjType {
	case domain.AdjustmentDamage, domain.AdjustmentTheft, domain.AdjustmentFound, domain.AdjustmentCorrection, domain.AdjustmentInitial:
	default:
		return nil, fmt.Errorf("%w: unknown adjustment type %q", store.ErrValidation, adjType)
	}
	if change == 0 {
		return nil, fmt.Errorf("%w: adjustment change must be non-zero", store.ErrValidation)
	}

	pgTx, err := s.begin(ctx, sql.LevelSerializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	entry, err := adjustStock(ctx, pgTx, productID, adjType, change, reason, "", actorID, time.Now().UTC())
	if err != nil {
		return nil, mapConflict(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	return entry, nil
}

func (s *Store) ListAdjustments(ctx context.Context, productID string, limit int) ([]domain.InventoryAdjustment, error) {
	if limit < 1 {
		limit = 50
	}

	query := `
		SELECT id, product_id, type, quantity_change, old_quantity, new_quantity,
		       COALESCE(reason,''), COALESCE(reference_id,''), actor_id, created_at
		FROM inventory_adjustments`
	args := []any{}
	if productID != "" {
		query += ` WHERE product_id = $1`
		args = append(args, productID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InventoryAdjustment, 0, limit)
	for rows.Next() {
		var entry domain.InventoryAdjustment
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.Type, &entry.QuantityChange,
			&entry.OldQuantity, &entry.NewQuantity, &entry.Reason, &entry.ReferenceID,
			&entry.ActorID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) CreateStoredValueAccount(ctx context.Context, account domain.StoredValueAccount, actorID string) (*domain.StoredValueAccount, error) {
	if account.CardNumber == "" {
		return nil, fmt.Errorf("%w: stored-value account requires a card number", store.ErrValidation)
	}
	if account.InitialBalanceCents < 0 {
		return nil, fmt.Errorf("%w: initial balance must be non-negative", store.ErrValidation)
	}

	pgTx, err := s.begin(ctx, sql.LevelReadCommitted)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if account.ID == "" {
		account.ID = xid.New("sva")
	}
	account.Active = true
	account.CreatedAt = time.Now().UTC()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stored_value_accounts
			(id, card_number, customer_id, initial_balance_cents, current_balance_cents, active, expires_at, created_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7)
	`, account.ID, account.CardNumber, nullIfEmpty(account.CustomerID), account.InitialBalanceCents,
		account.Active, nullTime(account.ExpiresAt), account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: card %s", store.ErrDuplicate, account.CardNumber)
		}
		return nil, err
	}

	if account.InitialBalanceCents > 0 {
		if _, err := adjustBalance(ctx, pgTx, account.ID, domain.StoredValueInitial, account.InitialBalanceCents, "initial balance", actorID, account.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	account.CurrentBalanceCents = account.InitialBalanceCents
	return &account, nil
}

func (s *Store) GetStoredValueAccount(ctx context.Context, id string) (*domain.StoredValueAccount, error) {
	var (
		account   domain.StoredValueAccount
		customer  sql.NullString
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, card_number, customer_id, initial_balance_cents, current_balance_cents, active, expires_at, created_at
		FROM stored_value_accounts
		WHERE id = $1
	`, id).Scan(&account.ID, &account.CardNumber, &customer, &account.InitialBalanceCents,
		&account.CurrentBalanceCents, &account.Active, &expiresAt, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: stored-value account %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	account.CustomerID = customer.String
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		account.ExpiresAt = &t
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

func (s *Store) AdjustStoredValue(ctx context.Context, accountID string, entryType string, amountCents int64, reason string, actorID string) (*domain.StoredValueEntry, error) {
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

	pgTx, err := s.begin(ctx, sql.LevelSerializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	entry, err := adjustBalance(ctx, pgTx, accountID, entryType, amountCents, reason, actorID, time.Now().UTC())
	if err != nil {
		return nil, mapConflict(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapConflict(err)
	}
	return entry, nil
}

func (s *Store) ListStoredValueEntries(ctx context.Context, accountID string, limit int) ([]domain.StoredValueEntry, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount_cents, balance_before_cents, balance_after_cents,
		       COALESCE(reason,''), actor_id, created_at
		FROM stored_value_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StoredValueEntry, 0, limit)
	for rows.Next() {
		var entry domain.StoredValueEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Type, &entry.AmountCents,
			&entry.BalanceBeforeCents, &entry.BalanceAfterCents, &entry.Reason,
			&entry.ActorID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) ListUnderstockedProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND quantity_in_stock <= reorder_level
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s", store.ErrDuplicate, user.Username)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return nil
}
