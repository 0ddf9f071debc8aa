package service

import (
	"context"
	"errors"
	"testing"

	"stokbatch/backend/internal/allocation"
	"stokbatch/backend/internal/domain"
	"stokbatch/backend/internal/store"
	"stokbatch/backend/internal/store/memory"
)

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func newTestService(strict bool) (*Service, *memory.Store) {
	repo := memory.New()
	svc := New(repo, nil, "cmp_1", "INV", 0, strict)
	return svc, repo
}

// seedProductWithBatches creates a product plus two purchases a week
// apart: 5 units at cost 600 then 4 units at cost 650.
func seedProductWithBatches(t *testing.T, svc *Service) domain.Product {
	t.Helper()
	ctx := adminCtx()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Blue Shirt", SellingPriceCents: 12000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		Kind:         domain.PurchaseKindGST,
		PurchaseDate: "2026-03-01",
		Lines: []domain.PurchaseLineRequest{
			{ProductID: product.ID, Article: "SH-01", Barcode: "890100", Qty: 5, UnitCostCents: 600, MRPCents: 11000, SalePriceCents: 9000},
		},
	})
	if err != nil {
		t.Fatalf("create first purchase: %v", err)
	}
	_, err = svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		Kind:         domain.PurchaseKindSimple,
		PurchaseDate: "2026-03-08",
		Lines: []domain.PurchaseLineRequest{
			{ProductID: product.ID, Article: "SH-01", Barcode: "890101", Qty: 4, UnitCostCents: 650},
		},
	})
	if err != nil {
		t.Fatalf("create second purchase: %v", err)
	}
	return product
}

func TestCreateSaleSplitsFIFOAcrossBatches(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)
	product := seedProductWithBatches(t, svc)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 7}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if len(sale.Lines) != 2 {
		t.Fatalf("expected 2 sale lines, got %d", len(sale.Lines))
	}
	if sale.Lines[0].Qty != 5 || sale.Lines[1].Qty != 2 {
		t.Fatalf("expected 5+2 split, got %d+%d", sale.Lines[0].Qty, sale.Lines[1].Qty)
	}
	// Oldest batch carries a sale price of 9000; the newer one falls back
	// to the product selling price.
	if sale.Lines[0].UnitPriceCents != 9000 || sale.Lines[1].UnitPriceCents != 12000 {
		t.Fatalf("unexpected prices %d/%d", sale.Lines[0].UnitPriceCents, sale.Lines[1].UnitPriceCents)
	}
	if sale.InvoiceNumber != "INV-00001" {
		t.Fatalf("unexpected invoice number %s", sale.InvoiceNumber)
	}

	got, err := repo.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	// 5+4 received on top of 0 initial, minus 7 sold.
	if got.StockQty != 2 {
		t.Fatalf("expected stock 2, got %d", got.StockQty)
	}

	batches, _ := repo.ListBatches(ctx, "cmp_1")
	if batches[0].Lines[0].QtySold != 5 || batches[1].Lines[0].QtySold != 2 {
		t.Fatalf("unexpected sold counters %d/%d", batches[0].Lines[0].QtySold, batches[1].Lines[0].QtySold)
	}
}

func TestCreateSaleBarcodeHintBindsNewestBatch(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)
	product := seedProductWithBatches(t, svc)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 4, MatchHint: "890101"}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if len(sale.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(sale.Lines))
	}
	if sale.Lines[0].MatchedBarcode != "890101" {
		t.Fatalf("expected barcode binding, got %q", sale.Lines[0].MatchedBarcode)
	}
	if sale.Lines[0].CostPriceCents != 650 {
		t.Fatalf("expected newest batch cost, got %d", sale.Lines[0].CostPriceCents)
	}

	batches, _ := repo.ListBatches(ctx, "cmp_1")
	if batches[1].Lines[0].QtySold != 4 {
		t.Fatalf("expected 4 consumed on hinted batch, got %d", batches[1].Lines[0].QtySold)
	}
	if batches[0].Lines[0].QtySold != 0 {
		t.Fatalf("oldest batch must be untouched, got %d", batches[0].Lines[0].QtySold)
	}
	got, _ := repo.GetProductByID(ctx, product.ID)
	if got.StockQty != 5 {
		t.Fatalf("expected stock 5, got %d", got.StockQty)
	}
}

func TestCreateSaleStrictPolicyRejectsShortfall(t *testing.T) {
	ctx := adminCtx()
	svc, _ := newTestService(true)
	product := seedProductWithBatches(t, svc)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 10}},
	})
	if !errors.Is(err, allocation.ErrInsufficientBatchStock) {
		t.Fatalf("expected ErrInsufficientBatchStock, got %v", err)
	}
}

func TestCreateSaleMarksProductSoldWhenStockExhausted(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)
	product := seedProductWithBatches(t, svc)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 9}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	got, _ := repo.GetProductByID(ctx, product.ID)
	if got.StockQty != 0 || got.Status != domain.ProductStatusSold {
		t.Fatalf("expected sold-out product, got stock=%d status=%s", got.StockQty, got.Status)
	}
	if got.SoldSaleID != sale.ID {
		t.Fatalf("expected sale id %s recorded, got %q", sale.ID, got.SoldSaleID)
	}
}

func TestCreateSaleBoundReturnRejectsOverConsumption(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)
	product := seedProductWithBatches(t, svc)

	// Consume 4 from the newest batch first.
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 4, MatchHint: "890101"}},
	}); err != nil {
		t.Fatalf("seed sale: %v", err)
	}

	batches, _ := repo.ListBatches(ctx, "cmp_1")
	lineID := batches[1].Lines[0].ID

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{
			ProductID: product.ID, Qty: 6, LineKind: domain.LineKindReturn,
			ExplicitPurchaseID: batches[1].ID, ExplicitBatchLineID: lineID,
		}},
	})
	if !errors.Is(err, allocation.ErrReturnExceedsSold) {
		t.Fatalf("expected ErrReturnExceedsSold, got %v", err)
	}
}

func TestCreateSaleRejectsForeignCompanyProduct(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)

	foreign, err := repo.CreateProduct(ctx, domain.Product{
		CompanyID: "cmp_other", Name: "Foreign Shirt", SellingPriceCents: 5000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	for _, kind := range []string{domain.LineKindSale, domain.LineKindReturn} {
		_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
			Lines: []domain.SaleLineRequest{{ProductID: foreign.ID, Qty: 1, LineKind: kind}},
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("%s line on foreign product: expected ErrNotFound, got %v", kind, err)
		}
	}
}

func TestSellThenReturnRoundTrip(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)
	product := seedProductWithBatches(t, svc)

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 3}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 3, LineKind: domain.LineKindReturn}},
	}); err != nil {
		t.Fatalf("return: %v", err)
	}

	got, _ := repo.GetProductByID(ctx, product.ID)
	if got.StockQty != 9 {
		t.Fatalf("expected stock restored to 9, got %d", got.StockQty)
	}
	batches, _ := repo.ListBatches(ctx, "cmp_1")
	for _, b := range batches {
		for _, line := range b.Lines {
			if line.QtySold != 0 {
				t.Fatalf("expected all sold counters back at 0, got %d on %s", line.QtySold, line.ID)
			}
		}
	}
}

func TestCreateSaleCreditLifecycle(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)
	product := seedProductWithBatches(t, svc)

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Asha"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	// Paying 10000 by credit method grants 10000 of store credit.
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Lines:      []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
		Payments:   []domain.PaymentSplit{{Method: domain.PaymentMethodCredit, AmountCents: 10000}},
	}); err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	got, _ := repo.GetCustomerByID(ctx, customer.ID)
	if got.CreditBalanceCents != 10000 {
		t.Fatalf("expected balance 10000, got %d", got.CreditBalanceCents)
	}

	// Applying 4000 deducts it.
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID:         customer.ID,
		Lines:              []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
		CreditAppliedCents: 4000,
	}); err != nil {
		t.Fatalf("credit-applied sale: %v", err)
	}
	got, _ = repo.GetCustomerByID(ctx, customer.ID)
	if got.CreditBalanceCents != 6000 {
		t.Fatalf("expected balance 6000, got %d", got.CreditBalanceCents)
	}

	// Over-applying clamps the balance at zero.
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID:         customer.ID,
		Lines:              []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
		CreditAppliedCents: 9000,
	}); err != nil {
		t.Fatalf("over-applied sale: %v", err)
	}
	got, _ = repo.GetCustomerByID(ctx, customer.ID)
	if got.CreditBalanceCents != 0 {
		t.Fatalf("expected balance clamped at 0, got %d", got.CreditBalanceCents)
	}
}

func TestCreateSaleReturnGrantsCreditFromReturnTotal(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)
	product := seedProductWithBatches(t, svc)

	customer, _ := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Ravi"})

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 2}},
	}); err != nil {
		t.Fatalf("seed sale: %v", err)
	}

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Lines:      []domain.SaleLineRequest{{ProductID: product.ID, Qty: 2, LineKind: domain.LineKindReturn}},
	})
	if err != nil {
		t.Fatalf("return sale: %v", err)
	}
	if sale.CreditAddedCents != sale.Lines[0].TotalCents {
		t.Fatalf("expected credit added %d, got %d", sale.Lines[0].TotalCents, sale.CreditAddedCents)
	}
	got, _ := repo.GetCustomerByID(ctx, customer.ID)
	if got.CreditBalanceCents != sale.CreditAddedCents {
		t.Fatalf("expected balance %d, got %d", sale.CreditAddedCents, got.CreditBalanceCents)
	}
}

func TestCreateSaleCreditWithoutCustomerRejected(t *testing.T) {
	ctx := adminCtx()
	svc, _ := newTestService(false)
	product := seedProductWithBatches(t, svc)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:              []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
		CreditAppliedCents: 1000,
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale, got %v", err)
	}
}

func TestPurchaseBackfillsProductFromBatch(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Plain Shirt", SellingPriceCents: 5000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		Lines: []domain.PurchaseLineRequest{
			{ProductID: product.ID, Barcode: "777001", Qty: 3, UnitCostCents: 2500},
		},
	}); err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	got, _ := repo.GetProductByID(ctx, product.ID)
	if got.StockQty != 3 {
		t.Fatalf("expected stock 3, got %d", got.StockQty)
	}
	if got.PurchasePriceCents != 2500 {
		t.Fatalf("expected purchase price backfilled, got %d", got.PurchasePriceCents)
	}
	if got.Barcode != "777001" {
		t.Fatalf("expected barcode adopted, got %q", got.Barcode)
	}
}

func TestInvoiceNumbersAreSequential(t *testing.T) {
	ctx := adminCtx()
	svc, _ := newTestService(false)
	product := seedProductWithBatches(t, svc)

	first, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if first.InvoiceNumber != "INV-00001" || second.InvoiceNumber != "INV-00002" {
		t.Fatalf("unexpected invoice numbers %s, %s", first.InvoiceNumber, second.InvoiceNumber)
	}
}

func TestArchiveSaleArchivesProducts(t *testing.T) {
	ctx := adminCtx()
	svc, repo := newTestService(false)
	product := seedProductWithBatches(t, svc)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	archived, err := svc.ArchiveSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived.Archived {
		t.Fatalf("expected archived sale")
	}

	got, _ := repo.GetProductByID(ctx, product.ID)
	if got.Status != domain.ProductStatusArchived {
		t.Fatalf("expected archived product, got %s", got.Status)
	}

	sales, _ := svc.ListSales(ctx, "", false, 0)
	for _, s := range sales {
		if s.ID == sale.ID {
			t.Fatalf("archived sale must not appear in default listing")
		}
	}
}

func TestProfitReportSubtractsReturns(t *testing.T) {
	ctx := adminCtx()
	svc, _ := newTestService(false)
	product := seedProductWithBatches(t, svc)

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 2}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1, LineKind: domain.LineKindReturn}},
	}); err != nil {
		t.Fatalf("return: %v", err)
	}

	report, err := svc.ProfitReport(ctx, "", "", "")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	// 2 sold at 9000 minus 1 returned at 9000; cost 600 each way.
	if report.TotalRevenueCents != 9000 {
		t.Fatalf("expected revenue 9000, got %d", report.TotalRevenueCents)
	}
	if report.TotalCostCents != 600 {
		t.Fatalf("expected cost 600, got %d", report.TotalCostCents)
	}
	if report.TotalProfitCents != 8400 {
		t.Fatalf("expected profit 8400, got %d", report.TotalProfitCents)
	}
}

func TestBatchSearchEndpointShape(t *testing.T) {
	ctx := adminCtx()
	svc, _ := newTestService(false)
	seedProductWithBatches(t, svc)

	resp, err := svc.SearchBatches(ctx, "", "890100")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Hits) == 0 || !resp.Hits[0].Exact {
		t.Fatalf("expected exact barcode hit, got %+v", resp.Hits)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(false)
	ctx := WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})

	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "X", SellingPriceCents: 100}); err == nil {
		t.Fatalf("expected role error")
	}
}
