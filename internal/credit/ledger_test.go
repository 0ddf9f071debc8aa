package credit

import (
	"context"
	"testing"

	"stokbatch/backend/internal/domain"
	"stokbatch/backend/internal/store/memory"
)

func TestToAddPrefersCreditPayments(t *testing.T) {
	payments := []domain.PaymentSplit{
		{Method: "cash", AmountCents: 5000},
		{Method: domain.PaymentMethodCredit, AmountCents: 2500},
	}
	lines := []domain.SaleLine{
		{LineKind: domain.LineKindReturn, TotalCents: 9000},
	}
	if got := ToAdd(payments, lines); got != 2500 {
		t.Fatalf("expected credit payment total 2500, got %d", got)
	}
}

func TestToAddFallsBackToReturnTotals(t *testing.T) {
	lines := []domain.SaleLine{
		{LineKind: domain.LineKindSale, TotalCents: 12000},
		{LineKind: domain.LineKindReturn, TotalCents: 4000},
		{LineKind: domain.LineKindReturn, TotalCents: 2000},
	}
	if got := ToAdd(nil, lines); got != 6000 {
		t.Fatalf("expected return total 6000, got %d", got)
	}
}

func TestSettleAddsThenDeductsAndClamps(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	customer, err := st.CreateCustomer(ctx, domain.Customer{CompanyID: "cmp_1", Name: "Asha"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	ledger := New(st)

	balance, err := ledger.Settle(ctx, customer.ID, 10000, 0)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 10000 {
		t.Fatalf("expected balance 10000, got %d", balance)
	}

	balance, err = ledger.Settle(ctx, customer.ID, 0, 4000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 6000 {
		t.Fatalf("expected balance 6000, got %d", balance)
	}

	// Applying more than the balance clamps at zero.
	balance, err = ledger.Settle(ctx, customer.ID, 0, 9000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance clamped at 0, got %d", balance)
	}
}

func TestSettleAppliesEarnedCreditBeforeDeducting(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	customer, err := st.CreateCustomer(ctx, domain.Customer{CompanyID: "cmp_1", Name: "Meera"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	ledger := New(st)

	// One sale that both earns 10000 and spends 6000: the earned credit
	// must land before the deduction, or the clamp eats the spend.
	balance, err := ledger.Settle(ctx, customer.ID, 10000, 6000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 4000 {
		t.Fatalf("expected balance 4000, got %d", balance)
	}
}

func TestSettleWithoutCustomerIsNoop(t *testing.T) {
	ledger := New(memory.New())
	balance, err := ledger.Settle(context.Background(), "", 5000, 2000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected 0 balance, got %d", balance)
	}
}
