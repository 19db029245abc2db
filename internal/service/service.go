// Package service implements the business operations on top of the
// repository. Every mutating method takes an auth.Grant so permission
// checks cannot be skipped at a call site, and writes an audit log entry
// attributing the change to the grant's actor.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agastya71/mysl-pos-project-sub005/internal/auth"
	"github.com/agastya71/mysl-pos-project-sub005/internal/cache"
	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/logger"
	"github.com/agastya71/mysl-pos-project-sub005/internal/payment"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
	"github.com/agastya71/mysl-pos-project-sub005/internal/xid"
)

type Service struct {
	repo         store.Repository
	processor    payment.Processor
	reorderCache cache.ReorderReportCache
	reorderTTL   time.Duration
	storeID      string
}

func New(repo store.Repository, processor payment.Processor, reorderCache cache.ReorderReportCache, reorderTTL time.Duration, storeID string) *Service {
	if processor == nil {
		processor = payment.StubProcessor{}
	}
	if reorderCache == nil {
		reorderCache = cache.NoopReorderReportCache{}
	}
	if reorderTTL <= 0 {
		reorderTTL = time.Minute
	}
	if storeID == "" {
		storeID = "main-store"
	}
	return &Service{
		repo:         repo,
		processor:    processor,
		reorderCache: reorderCache,
		reorderTTL:   reorderTTL,
		storeID:      storeID,
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (s *Service) logAudit(ctx context.Context, grant auth.Grant, action, entityType, entityID, detail string) {
	actor := grant.Actor()
	if actor.Username == "" {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("aud"),
		ActorID:    actor.Username,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		logger.Log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, grant auth.Grant, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := grant.Require(auth.PermAuditRead); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// --- catalog ---

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, activeOnly)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, grant auth.Grant, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := grant.Require(auth.PermCatalogManage); err != nil {
		return nil, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: product requires sku and name", store.ErrValidation)
	}
	if req.UnitPriceCents < 1 {
		return nil, fmt.Errorf("%w: unit price must be positive", store.ErrValidation)
	}
	if req.TaxRate < 0 || req.TaxRate > 1 {
		return nil, fmt.Errorf("%w: tax rate must be between 0 and 1", store.ErrValidation)
	}
	if req.InitialStock < 0 || req.ReorderLevel < 0 || req.ReorderQuantity < 0 {
		return nil, fmt.Errorf("%w: stock quantities must be non-negative", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:             req.SKU,
		Name:            req.Name,
		CategoryID:      req.CategoryID,
		VendorID:        req.VendorID,
		UnitPriceCents:  req.UnitPriceCents,
		TaxRate:         req.TaxRate,
		QuantityInStock: req.InitialStock,
		ReorderLevel:    req.ReorderLevel,
		ReorderQuantity: req.ReorderQuantity,
		Active:          true,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, grant, "product_create", "product", created.ID,
		fmt.Sprintf("sku=%s,name=%s,price=%d,stock=%d", created.SKU, created.Name, created.UnitPriceCents, req.InitialStock))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, grant auth.Grant, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := grant.Require(auth.PermCatalogManage); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: product name must not be empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.CategoryID != nil {
		updated.CategoryID = *req.CategoryID
	}
	if req.VendorID != nil {
		updated.VendorID = *req.VendorID
	}
	if req.UnitPriceCents != nil {
		if *req.UnitPriceCents < 1 {
			return nil, fmt.Errorf("%w: unit price must be positive", store.ErrValidation)
		}
		updated.UnitPriceCents = *req.UnitPriceCents
	}
	if req.TaxRate != nil {
		if *req.TaxRate < 0 || *req.TaxRate > 1 {
			return nil, fmt.Errorf("%w: tax rate must be between 0 and 1", store.ErrValidation)
		}
		updated.TaxRate = *req.TaxRate
	}
	if req.ReorderLevel != nil {
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.ReorderQuantity != nil {
		updated.ReorderQuantity = *req.ReorderQuantity
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	result, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "product_update", "product", id, fmt.Sprintf("name=%s,price=%d,active=%t", result.Name, result.UnitPriceCents, result.Active))
	return result, nil
}

func (s *Service) CreateVendor(ctx context.Context, grant auth.Grant, req domain.VendorCreateRequest) (*domain.Vendor, error) {
	if err := grant.Require(auth.PermCatalogManage); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: vendor requires a name", store.ErrValidation)
	}

	created, err := s.repo.CreateVendor(ctx, domain.Vendor{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "vendor_create", "vendor", created.ID, fmt.Sprintf("name=%s", created.Name))
	return created, nil
}

func (s *Service) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	return s.repo.ListVendors(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, grant auth.Grant, req domain.CategoryCreateRequest) (*domain.Category, error) {
	if err := grant.Require(auth.PermCatalogManage); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: category requires a name", store.ErrValidation)
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:     strings.TrimSpace(req.Name),
		ParentID: req.ParentID,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "category_create", "category", created.ID, fmt.Sprintf("name=%s,parent=%s", created.Name, created.ParentID))
	return created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) MoveCategory(ctx context.Context, grant auth.Grant, categoryID, newParentID string) (*domain.Category, error) {
	if err := grant.Require(auth.PermCatalogManage); err != nil {
		return nil, err
	}
	moved, err := s.repo.MoveCategory(ctx, categoryID, newParentID)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, grant, "category_move", "category", categoryID, fmt.Sprintf("new_parent=%s", newParentID))
	return moved, nil
}
