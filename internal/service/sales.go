package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agastya71/mysl-pos-project-sub005/internal/auth"
	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/logger"
	"github.com/agastya71/mysl-pos-project-sub005/internal/money"
	"github.com/agastya71/mysl-pos-project-sub005/internal/payment"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
)

// CreateTransaction runs the full sale flow: snapshot products, compute
// per-line money, validate tenders, authorize non-cash payments, then
// persist atomically. A failed persist voids every authorization; captures
// happen only after the sale is committed.
func (s *Service) CreateTransaction(ctx context.Context, grant auth.Grant, req domain.TransactionCreateRequest) (*domain.Transaction, error) {
	if err := grant.Require(auth.PermSaleCreate); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: transaction requires at least one item", store.ErrValidation)
	}
	if len(req.Payments) == 0 {
		return nil, fmt.Errorf("%w: transaction requires at least one payment", store.ErrValidation)
	}
	if strings.TrimSpace(req.TerminalID) == "" {
		return nil, fmt.Errorf("%w: terminal id is required", store.ErrValidation)
	}

	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: product %s quantity must be positive", store.ErrValidation, line.ProductID)
		}
		if line.DiscountCents < 0 {
			return nil, fmt.Errorf("%w: product %s discount must be non-negative", store.ErrValidation, line.ProductID)
		}
		ids = append(ids, line.ProductID)
	}

	// Snapshot for pricing. Stock is re-validated under row locks inside
	// the store; this read only prices and freezes the lines.
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]domain.TransactionItem, 0, len(req.Items))
	amounts := make([]money.LineAmounts, 0, len(req.Items))
	for _, line := range req.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrNotFound, line.ProductID)
		}

		lineAmounts := money.ComputeLine(money.Line{
			Quantity:       line.Quantity,
			UnitPriceCents: product.UnitPriceCents,
			DiscountCents:  line.DiscountCents,
			TaxRate:        product.TaxRate,
		})
		amounts = append(amounts, lineAmounts)
		items = append(items, domain.TransactionItem{
			ProductID:         product.ID,
			SKU:               product.SKU,
			Name:              product.Name,
			CategoryID:        product.CategoryID,
			Quantity:          line.Quantity,
			UnitPriceCents:    product.UnitPriceCents,
			TaxRate:           product.TaxRate,
			DiscountCents:     lineAmounts.DiscountCents,
			LineSubtotalCents: lineAmounts.SubtotalCents,
			LineTaxCents:      lineAmounts.TaxCents,
			LineTotalCents:    lineAmounts.TotalCents,
		})
	}
	totals := money.Sum(amounts)

	payments, changeCents, err := validateTenders(req.Payments, totals.TotalCents)
	if err != nil {
		return nil, err
	}

	// Authorize non-cash tenders before persisting.
	authorized := make([]payment.Authorization, 0, len(payments))
	for i := range payments {
		if payments[i].Method == domain.PaymentMethodCash {
			continue
		}
		authz, err := s.processor.Authorize(ctx, payments[i].Method, payments[i].AmountCents, payments[i].TenderToken)
		if err != nil {
			s.voidAuthorizations(ctx, authorized)
			return nil, err
		}
		authorized = append(authorized, authz)
		payments[i].AuthID = authz.AuthID
		payments[i].TenderToken = ""
	}

	created, err := s.repo.CreateSaleTransaction(ctx, domain.Transaction{
		CashierID:     grant.Actor().Username,
		TerminalID:    req.TerminalID,
		CustomerID:    req.CustomerID,
		SubtotalCents: totals.SubtotalCents,
		TaxCents:      totals.TaxCents,
		DiscountCents: totals.DiscountCents,
		TotalCents:    totals.TotalCents,
		ChangeCents:   changeCents,
		Items:         items,
		Payments:      payments,
	})
	if err != nil {
		s.voidAuthorizations(ctx, authorized)
		return nil, err
	}

	// Capture after commit. A capture failure is a settlement problem, not
	// a sale failure; it is logged for reconciliation.
	for _, authz := range authorized {
		if err := s.processor.Capture(ctx, authz.AuthID); err != nil {
			logger.Log.Error("payment capture failed after commit",
				zap.String("transaction_id", created.ID),
				zap.String("auth_id", authz.AuthID),
				zap.Error(err))
		}
	}

	s.logAudit(ctx, grant, "sale_create", "transaction", created.ID,
		fmt.Sprintf("number=%s,total=%d,items=%d", created.Number, created.TotalCents, len(created.Items)))
	return created, nil
}

// validateTenders enforces the tender rules: payments must cover the total,
// only cash may overpay (the excess is change), and non-cash tenders must
// sum exactly to the remainder not covered by cash.
func validateTenders(reqs []domain.PaymentRequest, totalCents int64) ([]domain.Payment, int64, error) {
	var cashCents, nonCashCents int64
	payments := make([]domain.Payment, 0, len(reqs))
	for _, p := range reqs {
		if p.AmountCents < 1 {
			return nil, 0, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
		}
		switch p.Method {
		case domain.PaymentMethodCash:
			cashCents += p.AmountCents
		case domain.PaymentMethodCreditCard, domain.PaymentMethodDebitCard, domain.PaymentMethodCheck:
			if p.TenderToken == "" {
				return nil, 0, fmt.Errorf("%w: %s payment requires a tender token", store.ErrValidation, p.Method)
			}
			nonCashCents += p.AmountCents
		default:
			return nil, 0, fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, p.Method)
		}
		payments = append(payments, domain.Payment{
			Method:      p.Method,
			AmountCents: p.AmountCents,
			TenderToken: p.TenderToken,
		})
	}

	if nonCashCents > totalCents {
		return nil, 0, fmt.Errorf("%w: non-cash tenders %d exceed total %d", store.ErrValidation, nonCashCents, totalCents)
	}
	if cashCents+nonCashCents < totalCents {
		return nil, 0, fmt.Errorf("%w: payments %d do not cover total %d", store.ErrValidation, cashCents+nonCashCents, totalCents)
	}
	if cashCents == 0 && nonCashCents != totalCents {
		return nil, 0, fmt.Errorf("%w: non-cash tenders %d must sum exactly to total %d", store.ErrValidation, nonCashCents, totalCents)
	}
	return payments, cashCents - (totalCents - nonCashCents), nil
}

func (s *Service) voidAuthorizations(ctx context.Context, authorized []payment.Authorization) {
	for _, authz := range authorized {
		if err := s.processor.Void(ctx, authz.AuthID); err != nil {
			logger.Log.Error("failed to void payment authorization",
				zap.String("auth_id", authz.AuthID),
				zap.Error(err))
		}
	}
}

// VoidTransaction restocks every item and marks the sale voided. Non-cash
// payments are refunded through the processor after the void commits.
func (s *Service) VoidTransaction(ctx context.Context, grant auth.Grant, req domain.TransactionVoidRequest) (*domain.Transaction, error) {
	if err := grant.Require(auth.PermSaleVoid); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: void requires a reason", store.ErrValidation)
	}

	voided, err := s.repo.VoidSaleTransaction(ctx, req.TransactionID, req.Reason, grant.Actor().Username, nowUTC())
	if err != nil {
		return nil, err
	}

	for _, p := range voided.Payments {
		if p.AuthID == "" {
			continue
		}
		if err := s.processor.Refund(ctx, p.AuthID, p.AmountCents); err != nil {
			logger.Log.Error("payment refund failed after void",
				zap.String("transaction_id", voided.ID),
				zap.String("auth_id", p.AuthID),
				zap.Error(err))
		}
	}

	s.logAudit(ctx, grant, "sale_void", "transaction", voided.ID,
		fmt.Sprintf("number=%s,reason=%s", voided.Number, req.Reason))
	return voided, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}
