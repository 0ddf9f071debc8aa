package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"stokbatch/backend/internal/batchindex"
	"stokbatch/backend/internal/cache"
	"stokbatch/backend/internal/domain"
	"stokbatch/backend/internal/store"
	"stokbatch/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo             store.Repository
	batchCache       cache.BatchSnapshotCache
	defaultCompanyID string
	companyCode      string
	batchCacheTTL    time.Duration
	strictBatchStock bool
}

func New(repo store.Repository, batchCache cache.BatchSnapshotCache, defaultCompanyID string, companyCode string, batchCacheTTL time.Duration, strictBatchStock bool) *Service {
	if defaultCompanyID == "" {
		defaultCompanyID = "main-company"
	}
	if companyCode == "" {
		companyCode = "INV"
	}
	if batchCache == nil {
		batchCache = cache.NoopBatchSnapshotCache{}
	}
	if batchCacheTTL <= 0 {
		batchCacheTTL = 5 * time.Minute
	}

	return &Service{
		repo:             repo,
		batchCache:       batchCache,
		defaultCompanyID: defaultCompanyID,
		companyCode:      companyCode,
		batchCacheTTL:    batchCacheTTL,
		strictBatchStock: strictBatchStock,
	}
}

func (s *Service) companyOrDefault(companyID string) string {
	if strings.TrimSpace(companyID) == "" {
		return s.defaultCompanyID
	}
	return companyID
}

// batchSnapshot returns the company's purchase batches, preferring the
// cache. Writers invalidate after any mutation, so a hit is at most one
// TTL stale.
func (s *Service) batchSnapshot(ctx context.Context, companyID string) ([]domain.PurchaseBatch, error) {
	if batches, ok, err := s.batchCache.Get(ctx, companyID); err != nil {
		log.Printf("[service] WARN: batch cache get company=%s: %v", companyID, err)
	} else if ok {
		return batches, nil
	}

	batches, err := s.repo.ListBatches(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := s.batchCache.Set(ctx, companyID, batches, s.batchCacheTTL); err != nil {
		log.Printf("[service] WARN: batch cache set company=%s: %v", companyID, err)
	}
	return batches, nil
}

func (s *Service) invalidateBatches(ctx context.Context, companyID string) {
	if err := s.batchCache.Invalidate(ctx, companyID); err != nil {
		log.Printf("[service] WARN: batch cache invalidate company=%s: %v", companyID, err)
	}
}

func (s *Service) buildIndex(ctx context.Context, companyID string) (*batchindex.Index, error) {
	batches, err := s.batchSnapshot(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return batchindex.Build(batches), nil
}

func (s *Service) ListProducts(ctx context.Context, companyID string, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.companyOrDefault(companyID), includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Name == "" || req.SellingPriceCents < 1 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidSale
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		CompanyID:         s.companyOrDefault(req.CompanyID),
		Name:              req.Name,
		Barcode:           req.Barcode,
		StockQty:          req.InitialStock,
		SellingPriceCents: req.SellingPriceCents,
		Status:            domain.ProductStatusActive,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, created.CompanyID, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.SellingPriceCents, created.StockQty))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.SellingPriceCents != nil {
		if *req.SellingPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.SellingPriceCents = *req.SellingPriceCents
	}
	if req.Status != nil {
		status := *req.Status
		if status != domain.ProductStatusActive && status != domain.ProductStatusSold && status != domain.ProductStatusArchived {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Status = status
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, saved.CompanyID, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,status=%s", saved.Name, saved.Status))
	return *saved, nil
}

func (s *Service) ListPurchases(ctx context.Context, companyID string) ([]domain.PurchaseBatch, error) {
	return s.repo.ListBatches(ctx, s.companyOrDefault(companyID))
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.PurchaseBatch, error) {
	purchase, err := s.repo.GetPurchaseByID(ctx, id)
	if err != nil {
		return domain.PurchaseBatch{}, err
	}
	return *purchase, nil
}

// CreatePurchase records an incoming stock document. Side effects on the
// product catalog: received quantity raises aggregate stock, batch prices
// backfill missing product prices, and a batch barcode is adopted when
// the product has none.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.PurchaseBatch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseBatch{}, fmt.Errorf("admin role required")
	}

	companyID := s.companyOrDefault(req.CompanyID)
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = domain.PurchaseKindSimple
	}
	if kind != domain.PurchaseKindGST && kind != domain.PurchaseKindSimple {
		return domain.PurchaseBatch{}, store.ErrInvalidSale
	}
	if len(req.Lines) == 0 {
		return domain.PurchaseBatch{}, store.ErrInvalidSale
	}

	purchaseDate := time.Now().UTC()
	if strings.TrimSpace(req.PurchaseDate) != "" {
		parsed, err := time.Parse("2006-01-02", req.PurchaseDate)
		if err != nil {
			return domain.PurchaseBatch{}, store.ErrInvalidSale
		}
		purchaseDate = parsed
	}

	purchase := domain.PurchaseBatch{
		CompanyID:     companyID,
		Kind:          kind,
		PurchaseDate:  purchaseDate,
		SupplierID:    strings.TrimSpace(req.SupplierID),
		SupplierName:  strings.TrimSpace(req.SupplierName),
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Notes:         strings.TrimSpace(req.Notes),
	}

	for _, line := range req.Lines {
		if line.ProductID == "" || line.Qty < 1 || line.UnitCostCents < 0 {
			return domain.PurchaseBatch{}, store.ErrInvalidSale
		}
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return domain.PurchaseBatch{}, fmt.Errorf("purchase line product %s: %w", line.ProductID, err)
		}
		purchase.Lines = append(purchase.Lines, domain.BatchLine{
			ID:             xid.New("bl"),
			ProductID:      product.ID,
			ProductName:    product.Name,
			Article:        strings.TrimSpace(line.Article),
			Barcode:        strings.TrimSpace(line.Barcode),
			QtyReceived:    line.Qty,
			UnitCostCents:  line.UnitCostCents,
			MRPCents:       line.MRPCents,
			SalePriceCents: line.SalePriceCents,
		})
		purchase.TotalCents += int64(line.Qty) * line.UnitCostCents
	}

	created, err := s.repo.CreatePurchase(ctx, purchase)
	if err != nil {
		return domain.PurchaseBatch{}, err
	}

	for _, line := range created.Lines {
		if err := s.repo.AdjustStock(ctx, line.ProductID, line.QtyReceived, store.StockAdd); err != nil {
			return domain.PurchaseBatch{}, fmt.Errorf("restock product %s: %w", line.ProductID, err)
		}
		if err := s.backfillProductFromBatch(ctx, line); err != nil {
			log.Printf("[service] WARN: product backfill from batch line=%s: %v", line.ID, err)
		}
	}

	s.invalidateBatches(ctx, companyID)
	s.logAudit(ctx, companyID, "purchase_create", "purchase", created.ID, fmt.Sprintf("kind=%s,lines=%d,total=%d", created.Kind, len(created.Lines), created.TotalCents))
	return *created, nil
}

// backfillProductFromBatch fills product gaps from a new batch line:
// purchase price, selling price (from the batch MRP), and barcode.
func (s *Service) backfillProductFromBatch(ctx context.Context, line domain.BatchLine) error {
	product, err := s.repo.GetProductByID(ctx, line.ProductID)
	if err != nil {
		return err
	}

	changed := false
	if product.PurchasePriceCents == 0 && line.UnitCostCents > 0 {
		product.PurchasePriceCents = line.UnitCostCents
		changed = true
	}
	if product.SellingPriceCents == 0 && line.MRPCents > 0 {
		product.SellingPriceCents = line.MRPCents
		changed = true
	}
	if product.Barcode == "" && line.Barcode != "" {
		product.Barcode = line.Barcode
		changed = true
	}
	if product.Status == domain.ProductStatusSold {
		// Fresh stock reactivates a sold-out product.
		product.Status = domain.ProductStatusActive
		product.SoldSaleID = ""
		product.SoldAt = nil
		changed = true
	}
	if !changed {
		return nil
	}
	_, err = s.repo.UpdateProduct(ctx, *product)
	return err
}

func (s *Service) SearchBatches(ctx context.Context, companyID string, query string) (domain.BatchSearchResponse, error) {
	companyID = s.companyOrDefault(companyID)
	idx, err := s.buildIndex(ctx, companyID)
	if err != nil {
		return domain.BatchSearchResponse{}, err
	}
	return domain.BatchSearchResponse{
		Query: query,
		Hits:  idx.Search(query),
	}, nil
}

func (s *Service) ListCustomers(ctx context.Context, companyID string) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, s.companyOrDefault(companyID))
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidSale
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		CompanyID: s.companyOrDefault(req.CompanyID),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, created.CompanyID, "customer_create", "customer", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

// ProfitReport aggregates revenue and cost over the sales in a date
// range using the cost price stamped on each line; returns subtract.
func (s *Service) ProfitReport(ctx context.Context, companyID string, from string, to string) (domain.ProfitReport, error) {
	companyID = s.companyOrDefault(companyID)

	fromDate := time.Time{}
	toDate := time.Now().UTC().AddDate(0, 0, 1)
	if strings.TrimSpace(from) != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			return domain.ProfitReport{}, store.ErrInvalidSale
		}
		fromDate = parsed
	}
	if strings.TrimSpace(to) != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			return domain.ProfitReport{}, store.ErrInvalidSale
		}
		toDate = parsed.AddDate(0, 0, 1)
	}

	sales, err := s.repo.ListSales(ctx, companyID, false, 0)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	report := domain.ProfitReport{CompanyID: companyID, From: from, To: to}
	for _, sale := range sales {
		if sale.SaleDate.Before(fromDate) || !sale.SaleDate.Before(toDate) {
			continue
		}
		report.SalesCount++
		for _, line := range sale.Lines {
			revenue := line.TotalCents
			cost := line.CostPriceCents * int64(line.Qty)
			if line.LineKind == domain.LineKindReturn {
				revenue = -revenue
				cost = -cost
			}
			report.TotalRevenueCents += revenue
			report.TotalCostCents += cost
		}
	}
	report.TotalProfitCents = report.TotalRevenueCents - report.TotalCostCents
	if report.TotalRevenueCents != 0 {
		report.ProfitMarginPct = float64(report.TotalProfitCents) / float64(report.TotalRevenueCents) * 100
	}
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, companyID string, date string, limit int) ([]domain.AuditLog, error) {
	companyID = s.companyOrDefault(companyID)

	day := time.Now().UTC()
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidSale
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, companyID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, companyID string, action string, entityType string, entityID string, detail string) {
	if companyID == "" {
		companyID = s.defaultCompanyID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		CompanyID:     companyID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
