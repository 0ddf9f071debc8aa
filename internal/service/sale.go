package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"stokbatch/backend/internal/allocation"
	"stokbatch/backend/internal/credit"
	"stokbatch/backend/internal/domain"
	"stokbatch/backend/internal/inventory"
	"stokbatch/backend/internal/store"
)

// ErrSalePersistence wraps store failures while writing the sale record.
// No stock or credit side effects have happened when this is returned.
var ErrSalePersistence = errors.New("sale persistence failed")

// InventoryApplyError reports a sale that was persisted but whose stock
// or credit mutations failed partway. The sale id lets reconciliation
// tooling find the record; no automatic rollback is attempted.
type InventoryApplyError struct {
	SaleID string
	Err    error
}

func (e *InventoryApplyError) Error() string {
	return fmt.Sprintf("sale %s persisted but inventory application failed: %v", e.SaleID, e.Err)
}

func (e *InventoryApplyError) Unwrap() error {
	return e.Err
}

// resolvedLine pairs the stamped sale lines with the stock movement for
// one requested line.
type resolvedLine struct {
	lines    []domain.SaleLine
	movement inventory.Movement
}

// CreateSale runs the sale transaction end to end: resolve every line
// against the current batch snapshot, persist the sale with its batch
// bindings stamped, then apply inventory and credit mutations.
// Resolution failures abort with no side effects; persistence failures
// wrap ErrSalePersistence; failures after persistence return
// *InventoryApplyError carrying the sale id.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	companyID := s.companyOrDefault(req.CompanyID)
	if len(req.Lines) == 0 {
		return domain.Sale{}, store.ErrInvalidSale
	}
	if req.CreditAppliedCents < 0 {
		return domain.Sale{}, store.ErrInvalidSale
	}
	if req.CreditAppliedCents > 0 && strings.TrimSpace(req.CustomerID) == "" {
		return domain.Sale{}, store.ErrInvalidSale
	}

	saleDate := time.Now().UTC()
	if strings.TrimSpace(req.SaleDate) != "" {
		parsed, err := time.Parse("2006-01-02", req.SaleDate)
		if err != nil {
			return domain.Sale{}, store.ErrInvalidSale
		}
		saleDate = parsed
	}

	var customer *domain.Customer
	if strings.TrimSpace(req.CustomerID) != "" {
		found, err := s.repo.GetCustomerByID(ctx, req.CustomerID)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("customer %s: %w", req.CustomerID, err)
		}
		customer = found
	}

	resolved, err := s.resolveLines(ctx, companyID, req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		CompanyID:          companyID,
		SaleDate:           saleDate,
		Payments:           req.Payments,
		CreditAppliedCents: req.CreditAppliedCents,
	}
	if customer != nil {
		sale.CustomerID = customer.ID
		sale.CustomerName = customer.Name
	}
	if actor, ok := ActorFromContext(ctx); ok {
		sale.CreatedBy = actor.Username
	}

	movements := make([]inventory.Movement, 0, len(resolved))
	for _, rl := range resolved {
		sale.Lines = append(sale.Lines, rl.lines...)
		movements = append(movements, rl.movement)
	}
	for _, line := range sale.Lines {
		if line.LineKind == domain.LineKindReturn {
			sale.SubtotalCents -= line.TotalCents
		} else {
			sale.SubtotalCents += line.TotalCents
		}
	}
	sale.GrandTotalCents = sale.SubtotalCents - sale.CreditAppliedCents
	if sale.GrandTotalCents < 0 {
		sale.GrandTotalCents = 0
	}
	sale.CreditAddedCents = credit.ToAdd(sale.Payments, sale.Lines)

	invoice, err := s.nextInvoiceNumber(ctx, companyID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %v", ErrSalePersistence, err)
	}
	sale.InvoiceNumber = invoice

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %v", ErrSalePersistence, err)
	}

	invLedger := inventory.New(s.repo, s.repo)
	if err := invLedger.Apply(ctx, created.ID, movements); err != nil {
		s.invalidateBatches(ctx, companyID)
		return *created, &InventoryApplyError{SaleID: created.ID, Err: err}
	}

	if customer != nil {
		creditLedger := credit.New(s.repo)
		if _, err := creditLedger.Settle(ctx, customer.ID, created.CreditAddedCents, created.CreditAppliedCents); err != nil {
			s.invalidateBatches(ctx, companyID)
			return *created, &InventoryApplyError{SaleID: created.ID, Err: err}
		}
	}

	s.invalidateBatches(ctx, companyID)
	s.logAudit(ctx, companyID, "sale_create", "sale", created.ID, fmt.Sprintf("invoice=%s,lines=%d,total=%d,credit_applied=%d,credit_added=%d", created.InvoiceNumber, len(created.Lines), created.GrandTotalCents, created.CreditAppliedCents, created.CreditAddedCents))
	return *created, nil
}

// resolveLines binds every requested line against one index snapshot.
// Any resolution error aborts the whole sale.
func (s *Service) resolveLines(ctx context.Context, companyID string, reqs []domain.SaleLineRequest) ([]resolvedLine, error) {
	idx, err := s.buildIndex(ctx, companyID)
	if err != nil {
		return nil, err
	}
	resolver := allocation.New(idx, s.strictBatchStock)

	resolved := make([]resolvedLine, 0, len(reqs))
	for i, lineReq := range reqs {
		if lineReq.ProductID == "" || lineReq.Qty < 1 {
			return nil, store.ErrInvalidSale
		}
		kind := lineReq.LineKind
		if kind == "" {
			kind = domain.LineKindSale
		}
		if kind != domain.LineKindSale && kind != domain.LineKindReturn {
			return nil, store.ErrInvalidSale
		}
		lineReq.LineKind = kind

		product, err := s.repo.GetProductByID(ctx, lineReq.ProductID)
		if err != nil {
			return nil, fmt.Errorf("line %d product %s: %w", i+1, lineReq.ProductID, err)
		}
		if product.CompanyID != companyID {
			return nil, store.ErrNotFound
		}

		result, err := resolver.Resolve(*product, lineReq)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		rl := resolvedLine{
			movement: inventory.Movement{
				ProductID:   product.ID,
				Kind:        kind,
				Qty:         lineReq.Qty,
				Allocations: result.Allocations,
			},
		}
		for _, alloc := range result.Allocations {
			rl.lines = append(rl.lines, saleLineFromAllocation(*product, kind, alloc))
		}
		if result.ShortfallQty > 0 {
			// Units the batches could not cover still sell at the product
			// price so totals match the requested quantity.
			rl.lines = append(rl.lines, saleLineFromAllocation(*product, kind, allocation.Allocation{
				Qty:            result.ShortfallQty,
				UnitPriceCents: unitPriceOr(lineReq.UnitPriceCents, product.SellingPriceCents),
				CostPriceCents: product.PurchasePriceCents,
				MRPCents:       product.SellingPriceCents,
			}))
		}
		resolved = append(resolved, rl)
	}
	return resolved, nil
}

func saleLineFromAllocation(product domain.Product, kind string, alloc allocation.Allocation) domain.SaleLine {
	return domain.SaleLine{
		ProductID:      product.ID,
		ProductName:    product.Name,
		Qty:            alloc.Qty,
		UnitPriceCents: alloc.UnitPriceCents,
		CostPriceCents: alloc.CostPriceCents,
		MRPCents:       alloc.MRPCents,
		LineKind:       kind,
		TotalCents:     int64(alloc.Qty) * alloc.UnitPriceCents,
		PurchaseID:     alloc.PurchaseID,
		BatchLineID:    alloc.BatchLineID,
		MatchedArticle: alloc.Article,
		MatchedBarcode: alloc.Barcode,
	}
}

func unitPriceOr(override *int64, fallback int64) int64 {
	if override != nil {
		return *override
	}
	return fallback
}

// nextInvoiceNumber produces the per-company sequential invoice number
// with the company code prefix.
func (s *Service) nextInvoiceNumber(ctx context.Context, companyID string) (string, error) {
	count, err := s.repo.CountSales(ctx, companyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%05d", s.companyCode, count+1), nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, companyID string, includeArchived bool, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListSales(ctx, s.companyOrDefault(companyID), includeArchived, limit)
}

// ArchiveSale hides a sale from default listings and archives its
// products. Stock and credit effects are not reversed.
func (s *Service) ArchiveSale(ctx context.Context, id string) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Sale{}, fmt.Errorf("admin role required")
	}

	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.repo.SetSaleArchived(ctx, id, true); err != nil {
		return domain.Sale{}, err
	}

	seen := map[string]bool{}
	for _, line := range sale.Lines {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			log.Printf("[service] WARN: archive sale %s: load product %s: %v", id, line.ProductID, err)
			continue
		}
		product.Status = domain.ProductStatusArchived
		if _, err := s.repo.UpdateProduct(ctx, *product); err != nil {
			log.Printf("[service] WARN: archive sale %s: archive product %s: %v", id, line.ProductID, err)
		}
	}

	sale.Archived = true
	s.logAudit(ctx, sale.CompanyID, "sale_archive", "sale", sale.ID, fmt.Sprintf("invoice=%s", sale.InvoiceNumber))
	return *sale, nil
}
