package service

import (
	"context"
	"fmt"
	"time"

	"github.com/agastya71/mysl-pos-project-sub005/internal/auth"
	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
)

func (s *Service) CreateStoredValueAccount(ctx context.Context, grant auth.Grant, req domain.StoredValueAccountCreateRequest) (*domain.StoredValueAccount, error) {
	if err := grant.Require(auth.PermStoredValueAdjust); err != nil {
		return nil, err
	}
	if req.CardNumber == "" {
		return nil, fmt.Errorf("%w: card number is required", store.ErrValidation)
	}
	if req.InitialBalanceCents < 0 {
		return nil, fmt.Errorf("%w: initial balance must be non-negative", store.ErrValidation)
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("%w: expires_at must be RFC3339", store.ErrValidation)
		}
		utc := parsed.UTC()
		expiresAt = &utc
	}

	created, err := s.repo.CreateStoredValueAccount(ctx, domain.StoredValueAccount{
		CardNumber:          req.CardNumber,
		CustomerID:          req.CustomerID,
		InitialBalanceCents: req.InitialBalanceCents,
		ExpiresAt:           expiresAt,
	}, grant.Actor().Username)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "stored_value_account_create", "stored_value_account", created.ID,
		fmt.Sprintf("card=%s,initial=%d", created.CardNumber, created.InitialBalanceCents))
	return created, nil
}

func (s *Service) GetStoredValueAccount(ctx context.Context, id string) (*domain.StoredValueAccount, error) {
	return s.repo.GetStoredValueAccount(ctx, id)
}

func (s *Service) AdjustStoredValue(ctx context.Context, grant auth.Grant, req domain.StoredValueAdjustRequest) (*domain.StoredValueEntry, error) {
	if err := grant.Require(auth.PermStoredValueAdjust); err != nil {
		return nil, err
	}
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", store.ErrValidation)
	}

	entry, err := s.repo.AdjustStoredValue(ctx, req.AccountID, req.Type, req.AmountCents, req.Reason, grant.Actor().Username)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "stored_value_adjust", "stored_value_account", req.AccountID,
		fmt.Sprintf("type=%s,amount=%d,after=%d", entry.Type, entry.AmountCents, entry.BalanceAfterCents))
	return entry, nil
}

func (s *Service) ListStoredValueEntries(ctx context.Context, accountID string, limit int) ([]domain.StoredValueEntry, error) {
	return s.repo.ListStoredValueEntries(ctx, accountID, limit)
}

func (s *Service) CreateAdjustment(ctx context.Context, grant auth.Grant, req domain.AdjustmentCreateRequest) (*domain.InventoryAdjustment, error) {
	if err := grant.Require(auth.PermInventoryAdjust); err != nil {
		return nil, err
	}
	if req.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}

	entry, err := s.repo.CreateAdjustment(ctx, req.ProductID, req.Type, req.QuantityChange, req.Reason, grant.Actor().Username)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "inventory_adjust", "product", req.ProductID,
		fmt.Sprintf("type=%s,change=%d,new=%d", entry.Type, entry.QuantityChange, entry.NewQuantity))
	return entry, nil
}

func (s *Service) ListAdjustments(ctx context.Context, productID string, limit int) ([]domain.InventoryAdjustment, error) {
	return s.repo.ListAdjustments(ctx, productID, limit)
}
