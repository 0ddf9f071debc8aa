package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"stokbatch/backend/internal/domain"
)

func TestBatchLineUpdateAndCreditClamp(t *testing.T) {
	databaseURL := os.Getenv("STOKBATCH_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOKBATCH_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	companyID := fmt.Sprintf("cmp-it-%d", stamp)
	purchaseID := fmt.Sprintf("pur-it-%d", stamp)
	lineID := fmt.Sprintf("bl-it-%d", stamp)
	customerID := fmt.Sprintf("cst-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, purchaseID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	})

	now := time.Now().UTC()
	created, err := s.CreatePurchase(ctx, domain.PurchaseBatch{
		ID:           purchaseID,
		CompanyID:    companyID,
		Kind:         domain.PurchaseKindSimple,
		PurchaseDate: now.AddDate(0, 0, -1),
		Lines: []domain.BatchLine{
			{ID: lineID, ProductID: "prd-it", ProductName: "IT Shirt", QtyReceived: 10, UnitCostCents: 5000},
		},
		TotalCents: 50000,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	lines := created.Lines
	lines[0].QtySold = 4
	if err := s.UpdateBatchLines(ctx, purchaseID, lines); err != nil {
		t.Fatalf("update batch lines: %v", err)
	}

	reloaded, err := s.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if len(reloaded.Lines) != 1 || reloaded.Lines[0].ID != lineID {
		t.Fatalf("expected line id to survive update, got %+v", reloaded.Lines)
	}
	if reloaded.Lines[0].QtySold != 4 {
		t.Fatalf("expected qty sold 4, got %d", reloaded.Lines[0].QtySold)
	}

	if _, err := s.CreateCustomer(ctx, domain.Customer{
		ID:        customerID,
		CompanyID: companyID,
		Name:      "IT Customer",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	balance, err := s.AdjustCreditBalance(ctx, customerID, 3000)
	if err != nil {
		t.Fatalf("add credit: %v", err)
	}
	if balance != 3000 {
		t.Fatalf("expected balance 3000, got %d", balance)
	}

	balance, err = s.AdjustCreditBalance(ctx, customerID, -5000)
	if err != nil {
		t.Fatalf("deduct credit: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance clamped at 0, got %d", balance)
	}
}
