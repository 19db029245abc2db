package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agastya71/mysl-pos-project-sub005/internal/auth"
	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/logger"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
)

func poItemsFromRequest(reqs []domain.POItemRequest) ([]domain.PurchaseOrderItem, int64, error) {
	items := make([]domain.PurchaseOrderItem, 0, len(reqs))
	var totalCents int64
	for _, r := range reqs {
		if r.QtyOrdered < 1 {
			return nil, 0, fmt.Errorf("%w: item %s quantity must be positive", store.ErrValidation, r.ProductID)
		}
		if r.UnitCostCents < 0 {
			return nil, 0, fmt.Errorf("%w: item %s unit cost must be non-negative", store.ErrValidation, r.ProductID)
		}
		items = append(items, domain.PurchaseOrderItem{
			ProductID:     r.ProductID,
			QtyOrdered:    r.QtyOrdered,
			UnitCostCents: r.UnitCostCents,
		})
		totalCents += int64(r.QtyOrdered) * r.UnitCostCents
	}
	return items, totalCents, nil
}

func (s *Service) validatePOProducts(ctx context.Context, items []domain.PurchaseOrderItem) error {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if !product.Active {
			return fmt.Errorf("%w: product %s is inactive", store.ErrNotFound, item.ProductID)
		}
	}
	return nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, grant auth.Grant, req domain.POCreateRequest) (*domain.PurchaseOrder, error) {
	if err := grant.Require(auth.PermPOEdit); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase order requires at least one item", store.ErrValidation)
	}

	items, totalCents, err := poItemsFromRequest(req.Items)
	if err != nil {
		return nil, err
	}
	if err := s.validatePOProducts(ctx, items); err != nil {
		return nil, err
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		VendorID:   req.VendorID,
		TotalCents: totalCents,
		CreatedBy:  grant.Actor().Username,
		Items:      items,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "po_create", "purchase_order", created.ID,
		fmt.Sprintf("number=%s,vendor=%s,total=%d,items=%d", created.Number, created.VendorID, created.TotalCents, len(created.Items)))
	return created, nil
}

func (s *Service) UpdatePurchaseOrderItems(ctx context.Context, grant auth.Grant, poID string, reqs []domain.POItemRequest) (*domain.PurchaseOrder, error) {
	if err := grant.Require(auth.PermPOEdit); err != nil {
		return nil, err
	}

	items, totalCents, err := poItemsFromRequest(reqs)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: purchase order requires at least one item", store.ErrValidation)
	}
	if err := s.validatePOProducts(ctx, items); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePurchaseOrderItems(ctx, poID, items, totalCents)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "po_update_items", "purchase_order", poID,
		fmt.Sprintf("total=%d,items=%d", totalCents, len(items)))
	return updated, nil
}

func (s *Service) SubmitPurchaseOrder(ctx context.Context, grant auth.Grant, poID string) (*domain.PurchaseOrder, error) {
	if err := grant.Require(auth.PermPOEdit); err != nil {
		return nil, err
	}
	po, err := s.repo.SubmitPurchaseOrder(ctx, poID, nowUTC())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "po_submit", "purchase_order", poID, fmt.Sprintf("number=%s", po.Number))
	return po, nil
}

func (s *Service) ApprovePurchaseOrder(ctx context.Context, grant auth.Grant, poID string) (*domain.PurchaseOrder, error) {
	if err := grant.Require(auth.PermPOApprove); err != nil {
		return nil, err
	}
	po, err := s.repo.ApprovePurchaseOrder(ctx, poID, grant.Actor().Username, nowUTC())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "po_approve", "purchase_order", poID, fmt.Sprintf("number=%s", po.Number))
	return po, nil
}

func (s *Service) ReceiveItems(ctx context.Context, grant auth.Grant, poID string, req domain.POReceiveRequest) (*domain.PurchaseOrder, error) {
	if err := grant.Require(auth.PermPOReceive); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: receive requires at least one line", store.ErrValidation)
	}

	po, err := s.repo.ReceivePurchaseOrderItems(ctx, poID, req.Lines, grant.Actor().Username, nowUTC())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "po_receive", "purchase_order", poID,
		fmt.Sprintf("number=%s,status=%s,lines=%d", po.Number, po.Status, len(req.Lines)))
	return po, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, grant auth.Grant, poID string, req domain.POCancelRequest) (*domain.PurchaseOrder, error) {
	if err := grant.Require(auth.PermPOEdit); err != nil {
		return nil, err
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: cancel requires a reason", store.ErrValidation)
	}
	po, err := s.repo.CancelPurchaseOrder(ctx, poID, req.Reason, nowUTC())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "po_cancel", "purchase_order", poID,
		fmt.Sprintf("number=%s,reason=%s", po.Number, req.Reason))
	return po, nil
}

func (s *Service) ClosePurchaseOrder(ctx context.Context, grant auth.Grant, poID string) (*domain.PurchaseOrder, error) {
	if err := grant.Require(auth.PermPOEdit); err != nil {
		return nil, err
	}
	po, err := s.repo.ClosePurchaseOrder(ctx, poID, nowUTC())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "po_close", "purchase_order", poID, fmt.Sprintf("number=%s", po.Number))
	return po, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	return s.repo.ListPurchaseOrders(ctx, status, limit)
}

// ReorderSuggestions builds the vendor-grouped reorder report for products
// at or below their reorder level. The report is a pure read, so results
// are cached briefly; stock mutations at worst delay a suggestion one TTL.
func (s *Service) ReorderSuggestions(ctx context.Context) (*domain.ReorderReport, error) {
	cacheKey := "reorder-report:" + s.storeID
	if cached, ok, err := s.reorderCache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		logger.Log.Warn("reorder cache read failed", zap.Error(err))
	}

	products, err := s.repo.ListUnderstockedProducts(ctx)
	if err != nil {
		return nil, err
	}

	byVendor := make(map[string][]domain.ReorderLine)
	vendorOrder := make([]string, 0, 8)
	for _, p := range products {
		suggested := p.ReorderQuantity
		if suggested < 1 {
			// No configured lot size: suggest refilling to the level.
			suggested = p.ReorderLevel - p.QuantityInStock + 1
		}
		line := domain.ReorderLine{
			ProductID:          p.ID,
			SKU:                p.SKU,
			Name:               p.Name,
			QuantityInStock:    p.QuantityInStock,
			ReorderLevel:       p.ReorderLevel,
			SuggestedQty:       suggested,
			LastCostCents:      p.LastCostCents,
			EstimatedCostCents: int64(suggested) * p.LastCostCents,
		}
		if _, seen := byVendor[p.VendorID]; !seen {
			vendorOrder = append(vendorOrder, p.VendorID)
		}
		byVendor[p.VendorID] = append(byVendor[p.VendorID], line)
	}

	report := &domain.ReorderReport{GeneratedAt: nowUTC(), Groups: make([]domain.VendorReorderGroup, 0, len(byVendor))}
	for _, vendorID := range vendorOrder {
		group := domain.VendorReorderGroup{VendorID: vendorID, Lines: byVendor[vendorID]}
		if vendorID != "" {
			if vendor, err := s.repo.GetVendor(ctx, vendorID); err == nil {
				group.VendorName = vendor.Name
			}
		}
		report.Groups = append(report.Groups, group)
	}

	if err := s.reorderCache.Set(ctx, cacheKey, report, s.reorderTTL); err != nil {
		logger.Log.Warn("reorder cache write failed", zap.Error(err))
	}
	return report, nil
}
