// Package credit settles customer store-credit effects of a sale.
package credit

import (
	"context"
	"fmt"

	"stokbatch/backend/internal/domain"
	"stokbatch/backend/internal/store"
)

type Ledger struct {
	customers store.CustomerStore
}

func New(customers store.CustomerStore) *Ledger {
	return &Ledger{customers: customers}
}

// ToAdd computes the credit earned by a sale: the total paid via the
// credit method when any, otherwise the value of the returned items.
func ToAdd(payments []domain.PaymentSplit, lines []domain.SaleLine) int64 {
	var creditPaid int64
	for _, p := range payments {
		if p.Method == domain.PaymentMethodCredit {
			creditPaid += p.AmountCents
		}
	}
	if creditPaid > 0 {
		return creditPaid
	}

	var returnTotal int64
	for _, line := range lines {
		if line.LineKind == domain.LineKindReturn {
			returnTotal += line.TotalCents
		}
	}
	return returnTotal
}

// Settle adds the earned credit first, then deducts the applied credit,
// and reports the resulting balance. Adding first keeps the deduction
// from clamping at zero when a sale both earns and spends credit.
// Without a customer both effects are silently skipped.
func (l *Ledger) Settle(ctx context.Context, customerID string, addCents int64, appliedCents int64) (int64, error) {
	if customerID == "" {
		return 0, nil
	}

	var balance int64
	var err error
	if addCents > 0 {
		balance, err = l.customers.AdjustCreditBalance(ctx, customerID, addCents)
		if err != nil {
			return 0, fmt.Errorf("add credit for %s: %w", customerID, err)
		}
	}
	if appliedCents > 0 {
		balance, err = l.customers.AdjustCreditBalance(ctx, customerID, -appliedCents)
		if err != nil {
			return 0, fmt.Errorf("apply credit for %s: %w", customerID, err)
		}
	}
	if appliedCents <= 0 && addCents <= 0 {
		customer, err := l.customers.GetCustomerByID(ctx, customerID)
		if err != nil {
			return 0, err
		}
		balance = customer.CreditBalanceCents
	}
	return balance, nil
}
