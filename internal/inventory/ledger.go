// Package inventory applies resolved allocations to the stores: batch
// sold counters, aggregate product stock, and the sold-out transition.
package inventory

import (
	"context"
	"fmt"
	"time"

	"stokbatch/backend/internal/allocation"
	"stokbatch/backend/internal/domain"
	"stokbatch/backend/internal/store"
)

// Movement is one sale line's worth of stock effect. Qty is the full
// requested quantity; it moves aggregate stock even when the allocations
// cover less.
type Movement struct {
	ProductID   string
	Kind        string
	Qty         int
	Allocations []allocation.Allocation
}

type Ledger struct {
	purchases store.PurchaseStore
	products  store.ProductStore
}

func New(purchases store.PurchaseStore, products store.ProductStore) *Ledger {
	return &Ledger{purchases: purchases, products: products}
}

// Apply mutates batch sold counters and aggregate product stock for every
// movement, then marks products whose stock reached zero as sold under
// the given sale id. Mutations are not idempotent: applying the same sale
// twice double-counts.
func (l *Ledger) Apply(ctx context.Context, saleID string, movements []Movement) error {
	if err := l.applyBatches(ctx, movements); err != nil {
		return err
	}

	deltas := make(map[string]int)
	order := make([]string, 0, len(movements))
	for _, mv := range movements {
		if _, ok := deltas[mv.ProductID]; !ok {
			order = append(order, mv.ProductID)
		}
		if mv.Kind == domain.LineKindReturn {
			deltas[mv.ProductID] += mv.Qty
		} else {
			deltas[mv.ProductID] -= mv.Qty
		}
	}

	now := time.Now()
	for _, productID := range order {
		delta := deltas[productID]
		if delta == 0 {
			continue
		}
		mode := store.StockAdd
		if delta < 0 {
			mode = store.StockSubtract
			delta = -delta
		}
		if err := l.products.AdjustStock(ctx, productID, delta, mode); err != nil {
			return fmt.Errorf("adjust stock for %s: %w", productID, err)
		}
		if mode != store.StockSubtract {
			continue
		}
		product, err := l.products.GetProductByID(ctx, productID)
		if err != nil {
			return fmt.Errorf("reload product %s: %w", productID, err)
		}
		if product.StockQty <= 0 && product.Status == domain.ProductStatusActive {
			if err := l.products.MarkProductSold(ctx, productID, saleID, now); err != nil {
				return fmt.Errorf("mark product %s sold: %w", productID, err)
			}
		}
	}
	return nil
}

// applyBatches rewrites sold counters purchase by purchase. Sales clamp
// at the received ceiling, returns clamp at zero.
func (l *Ledger) applyBatches(ctx context.Context, movements []Movement) error {
	type lineDelta struct {
		lineID string
		delta  int
	}
	byPurchase := make(map[string][]lineDelta)
	order := make([]string, 0)

	for _, mv := range movements {
		sign := 1
		if mv.Kind == domain.LineKindReturn {
			sign = -1
		}
		for _, alloc := range mv.Allocations {
			if alloc.BatchLineID == "" {
				continue
			}
			if _, ok := byPurchase[alloc.PurchaseID]; !ok {
				order = append(order, alloc.PurchaseID)
			}
			byPurchase[alloc.PurchaseID] = append(byPurchase[alloc.PurchaseID], lineDelta{
				lineID: alloc.BatchLineID,
				delta:  sign * alloc.Qty,
			})
		}
	}

	for _, purchaseID := range order {
		purchase, err := l.purchases.GetPurchaseByID(ctx, purchaseID)
		if err != nil {
			return fmt.Errorf("load purchase %s: %w", purchaseID, err)
		}
		lines := purchase.Lines
		for _, ld := range byPurchase[purchaseID] {
			for i := range lines {
				if lines[i].ID != ld.lineID {
					continue
				}
				sold := lines[i].QtySold + ld.delta
				if sold > lines[i].QtyReceived {
					sold = lines[i].QtyReceived
				}
				if sold < 0 {
					sold = 0
				}
				lines[i].QtySold = sold
				break
			}
		}
		if err := l.purchases.UpdateBatchLines(ctx, purchaseID, lines); err != nil {
			return fmt.Errorf("update batch lines for %s: %w", purchaseID, err)
		}
	}
	return nil
}
