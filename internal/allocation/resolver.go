// Package allocation binds sale and return lines to purchase batch lines
// and derives the unit economics stamped onto the persisted sale.
package allocation

import (
	"errors"
	"slices"

	"stokbatch/backend/internal/batchindex"
	"stokbatch/backend/internal/domain"
)

var (
	// ErrBatchNotFound means an explicitly requested batch line does not
	// exist or does not belong to the line's product.
	ErrBatchNotFound = errors.New("batch line not found")
	// ErrInsufficientBatchStock is returned only under the strict stock
	// policy; the default policy tolerates shortfalls.
	ErrInsufficientBatchStock = errors.New("insufficient batch stock")
	// ErrReturnExceedsSold means a return bound to a specific batch line
	// asks for more units than that line has sold.
	ErrReturnExceedsSold = errors.New("return exceeds sold quantity")
)

// Allocation is one resolved binding of sale-line units to a batch line.
// PurchaseID and BatchLineID are empty when the units could not be bound
// to any batch (product-only pricing applies).
type Allocation struct {
	PurchaseID     string
	BatchLineID    string
	Qty            int
	UnitPriceCents int64
	CostPriceCents int64
	MRPCents       int64
	Article        string
	Barcode        string
}

// Result carries the allocations for one sale line. ShortfallQty counts
// units the batches could not cover; those units still move aggregate
// product stock.
type Result struct {
	Allocations  []Allocation
	ShortfallQty int
}

type Resolver struct {
	idx    *batchindex.Index
	strict bool
}

// New builds a resolver over a batch index snapshot. With strict set,
// any sale shortfall becomes ErrInsufficientBatchStock instead of being
// tolerated.
func New(idx *batchindex.Index, strict bool) *Resolver {
	return &Resolver{idx: idx, strict: strict}
}

// Resolve binds one requested line against the index. Sales walk
// explicit binding, then barcode hint, then article hint, then FIFO
// across the product's batches. Returns walk the same binding order,
// then consume batches with the largest sold counters first.
func (r *Resolver) Resolve(product domain.Product, req domain.SaleLineRequest) (Result, error) {
	if req.LineKind == domain.LineKindReturn {
		return r.resolveReturn(product, req)
	}
	return r.resolveSale(product, req)
}

func (r *Resolver) resolveSale(product domain.Product, req domain.SaleLineRequest) (Result, error) {
	if req.ExplicitBatchLineID != "" {
		hit, ok := r.idx.FindLine(req.ExplicitPurchaseID, req.ExplicitBatchLineID)
		if !ok || hit.Line.ProductID != product.ID {
			return Result{}, ErrBatchNotFound
		}
		return r.bindSale(product, req, hit)
	}

	if hint := batchindex.NormalizeTerm(req.MatchHint); hint != "" {
		if hit, ok := r.idx.LookupBarcode(req.MatchHint); ok && hit.Line.ProductID == product.ID {
			return r.bindSale(product, req, hit)
		}
		for _, hit := range r.idx.LookupArticle(req.MatchHint) {
			if hit.Line.ProductID == product.ID {
				return r.bindSale(product, req, hit)
			}
		}
	}

	return r.fifoSale(product, req)
}

// bindSale takes what the bound line can cover and spills the remainder
// into a FIFO walk over the product's other batch lines, so the
// allocated quantities plus shortfall always equal the request.
func (r *Resolver) bindSale(product domain.Product, req domain.SaleLineRequest, hit domain.BatchHit) (Result, error) {
	var res Result
	remaining := req.Qty

	if avail := hit.Line.Available(); avail > 0 {
		take := min(remaining, avail)
		res.Allocations = append(res.Allocations, r.allocation(product, req, hit, take))
		remaining -= take
	}

	for _, next := range r.idx.ProductLines(product.ID) {
		if remaining == 0 {
			break
		}
		if next.Line.ID == hit.Line.ID {
			continue
		}
		avail := next.Line.Available()
		if avail <= 0 {
			continue
		}
		take := min(remaining, avail)
		res.Allocations = append(res.Allocations, r.allocation(product, req, next, take))
		remaining -= take
	}

	if remaining > 0 {
		if r.strict {
			return Result{}, ErrInsufficientBatchStock
		}
		res.ShortfallQty = remaining
	}
	return res, nil
}

// fifoSale splits the requested quantity across the product's batch
// lines, oldest purchase first. Whatever no batch can cover becomes
// shortfall, or an unbound allocation when the product has no batches
// at all.
func (r *Resolver) fifoSale(product domain.Product, req domain.SaleLineRequest) (Result, error) {
	var res Result
	remaining := req.Qty
	hits := r.idx.ProductLines(product.ID)

	for _, hit := range hits {
		if remaining == 0 {
			break
		}
		avail := hit.Line.Available()
		if avail <= 0 {
			continue
		}
		take := min(remaining, avail)
		res.Allocations = append(res.Allocations, r.allocation(product, req, hit, take))
		remaining -= take
	}

	if remaining > 0 {
		if r.strict {
			return Result{}, ErrInsufficientBatchStock
		}
		if len(hits) == 0 {
			// Product tracked without batches: price from the product record.
			res.Allocations = append(res.Allocations, r.unboundAllocation(product, req, remaining))
		} else {
			res.ShortfallQty = remaining
		}
	}
	return res, nil
}

func (r *Resolver) resolveReturn(product domain.Product, req domain.SaleLineRequest) (Result, error) {
	if req.ExplicitBatchLineID != "" {
		hit, ok := r.idx.FindLine(req.ExplicitPurchaseID, req.ExplicitBatchLineID)
		if !ok || hit.Line.ProductID != product.ID {
			return Result{}, ErrBatchNotFound
		}
		return r.bindReturn(product, req, hit)
	}

	if hint := batchindex.NormalizeTerm(req.MatchHint); hint != "" {
		if hit, ok := r.idx.LookupBarcode(req.MatchHint); ok && hit.Line.ProductID == product.ID {
			return r.bindReturn(product, req, hit)
		}
		for _, hit := range r.idx.LookupArticle(req.MatchHint) {
			if hit.Line.ProductID == product.ID {
				return r.bindReturn(product, req, hit)
			}
		}
	}

	// Without a binding, unwind consumption from the most-consumed lines
	// first and clamp at what the batches actually sold.
	hits := r.idx.ProductLines(product.ID)
	slices.SortStableFunc(hits, func(a, b domain.BatchHit) int {
		return b.Line.QtySold - a.Line.QtySold
	})

	var res Result
	remaining := req.Qty
	for _, hit := range hits {
		if remaining == 0 {
			break
		}
		if hit.Line.QtySold <= 0 {
			continue
		}
		take := min(remaining, hit.Line.QtySold)
		res.Allocations = append(res.Allocations, r.allocation(product, req, hit, take))
		remaining -= take
	}

	if remaining > 0 {
		if len(hits) == 0 {
			res.Allocations = append(res.Allocations, r.unboundAllocation(product, req, remaining))
		} else {
			res.ShortfallQty = remaining
		}
	}
	return res, nil
}

// bindReturn unwinds the requested quantity against a single batch
// line, clamped at what that line has sold.
func (r *Resolver) bindReturn(product domain.Product, req domain.SaleLineRequest, hit domain.BatchHit) (Result, error) {
	if req.Qty > hit.Line.QtySold {
		return Result{}, ErrReturnExceedsSold
	}
	return Result{Allocations: []Allocation{r.allocation(product, req, hit, req.Qty)}}, nil
}

func (r *Resolver) allocation(product domain.Product, req domain.SaleLineRequest, hit domain.BatchHit, qty int) Allocation {
	a := Allocation{
		PurchaseID:     hit.PurchaseID,
		BatchLineID:    hit.Line.ID,
		Qty:            qty,
		UnitPriceCents: salePrice(hit.Line, product),
		CostPriceCents: costPrice(hit.Line, product),
		MRPCents:       mrp(hit.Line, product),
		Article:        hit.Line.Article,
		Barcode:        hit.Line.Barcode,
	}
	if req.UnitPriceCents != nil {
		a.UnitPriceCents = *req.UnitPriceCents
	}
	return a
}

func (r *Resolver) unboundAllocation(product domain.Product, req domain.SaleLineRequest, qty int) Allocation {
	a := Allocation{
		Qty:            qty,
		UnitPriceCents: product.SellingPriceCents,
		CostPriceCents: product.PurchasePriceCents,
		MRPCents:       product.SellingPriceCents,
	}
	if req.UnitPriceCents != nil {
		a.UnitPriceCents = *req.UnitPriceCents
	}
	return a
}

// Zero cents on a batch line means the value was never captured; the
// product record backstops each figure.

func mrp(line domain.BatchLine, product domain.Product) int64 {
	if line.MRPCents > 0 {
		return line.MRPCents
	}
	return product.SellingPriceCents
}

func salePrice(line domain.BatchLine, product domain.Product) int64 {
	if line.SalePriceCents > 0 {
		return line.SalePriceCents
	}
	if line.MRPCents > 0 {
		return line.MRPCents
	}
	return product.SellingPriceCents
}

func costPrice(line domain.BatchLine, product domain.Product) int64 {
	if line.UnitCostCents > 0 {
		return line.UnitCostCents
	}
	return product.PurchasePriceCents
}
