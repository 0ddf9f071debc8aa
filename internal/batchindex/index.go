// Package batchindex builds derived lookup structures over a snapshot of
// purchase batches. The index is a pure function of the snapshot: it is
// rebuilt on demand and never incrementally maintained, so callers must
// re-read batches after any write that touches them.
package batchindex

import (
	"slices"
	"strings"

	"stokbatch/backend/internal/domain"
)

type Index struct {
	byBarcode map[string]domain.BatchHit
	byArticle map[string][]domain.BatchHit
	byProduct map[string][]domain.BatchHit
	all       []domain.BatchHit
}

// labelPrefixes are operator-typed qualifiers stripped before matching,
// e.g. "article: AB-12" or "barcode:890123".
var labelPrefixes = []string{"article:", "art:", "barcode:", "bc:"}

// Build indexes every line of the given purchase snapshot. On barcode
// collisions the line from the most recent purchase wins.
func Build(batches []domain.PurchaseBatch) *Index {
	idx := &Index{
		byBarcode: make(map[string]domain.BatchHit),
		byArticle: make(map[string][]domain.BatchHit),
		byProduct: make(map[string][]domain.BatchHit),
	}

	for _, purchase := range batches {
		for _, line := range purchase.Lines {
			hit := domain.BatchHit{
				PurchaseID:   purchase.ID,
				PurchaseDate: purchase.PurchaseDate,
				Line:         line,
			}
			idx.all = append(idx.all, hit)
			idx.byProduct[line.ProductID] = append(idx.byProduct[line.ProductID], hit)

			if barcode := strings.TrimSpace(line.Barcode); barcode != "" {
				existing, ok := idx.byBarcode[barcode]
				if !ok || hit.PurchaseDate.After(existing.PurchaseDate) {
					idx.byBarcode[barcode] = hit
				}
			}
			if key := NormalizeTerm(line.Article); key != "" {
				idx.byArticle[key] = append(idx.byArticle[key], hit)
			}
		}
	}

	// Per-product lists are kept in FIFO order (oldest purchase first).
	for productID := range idx.byProduct {
		hits := idx.byProduct[productID]
		slices.SortStableFunc(hits, func(a, b domain.BatchHit) int {
			return a.PurchaseDate.Compare(b.PurchaseDate)
		})
		idx.byProduct[productID] = hits
	}

	return idx
}

// NormalizeTerm lowercases a search term and strips recognized label
// prefixes and surrounding whitespace.
func NormalizeTerm(term string) string {
	normalized := strings.ToLower(strings.TrimSpace(term))
	for _, prefix := range labelPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			normalized = strings.TrimSpace(normalized[len(prefix):])
			break
		}
	}
	return normalized
}

// LookupBarcode returns the batch line registered for the exact barcode.
func (idx *Index) LookupBarcode(barcode string) (domain.BatchHit, bool) {
	hit, ok := idx.byBarcode[strings.TrimSpace(barcode)]
	return hit, ok
}

// LookupArticle returns every batch line sharing the normalized article
// code, ordered by available quantity descending, tie-broken by newer
// purchase date.
func (idx *Index) LookupArticle(article string) []domain.BatchHit {
	hits := slices.Clone(idx.byArticle[NormalizeTerm(article)])
	slices.SortStableFunc(hits, func(a, b domain.BatchHit) int {
		if availA, availB := a.Line.Available(), b.Line.Available(); availA != availB {
			return availB - availA
		}
		return b.PurchaseDate.Compare(a.PurchaseDate)
	})
	return hits
}

// ProductLines returns the batch lines for a product in FIFO order.
func (idx *Index) ProductLines(productID string) []domain.BatchHit {
	return slices.Clone(idx.byProduct[productID])
}

// Search runs the free-text matcher pipeline over every indexed line:
// exact barcode, exact article, barcode substring, article substring and
// finally product name substring. Exact matches rank first, then higher
// available quantity, then newer purchase date.
func (idx *Index) Search(query string) []domain.BatchHit {
	term := NormalizeTerm(query)
	if term == "" {
		return nil
	}

	var hits []domain.BatchHit
	seen := make(map[string]bool)
	add := func(hit domain.BatchHit, exact bool) {
		if seen[hit.Line.ID] {
			return
		}
		seen[hit.Line.ID] = true
		hit.Exact = exact
		hits = append(hits, hit)
	}

	for _, hit := range idx.all {
		if strings.ToLower(strings.TrimSpace(hit.Line.Barcode)) == term {
			add(hit, true)
		}
	}
	for _, hit := range idx.all {
		if NormalizeTerm(hit.Line.Article) == term {
			add(hit, true)
		}
	}
	for _, hit := range idx.all {
		if strings.Contains(strings.ToLower(hit.Line.Barcode), term) {
			add(hit, false)
		}
	}
	for _, hit := range idx.all {
		if strings.Contains(NormalizeTerm(hit.Line.Article), term) {
			add(hit, false)
		}
	}
	for _, hit := range idx.all {
		if strings.Contains(strings.ToLower(hit.Line.ProductName), term) {
			add(hit, false)
		}
	}

	slices.SortStableFunc(hits, func(a, b domain.BatchHit) int {
		if a.Exact != b.Exact {
			if a.Exact {
				return -1
			}
			return 1
		}
		if availA, availB := a.Line.Available(), b.Line.Available(); availA != availB {
			return availB - availA
		}
		return b.PurchaseDate.Compare(a.PurchaseDate)
	})
	return hits
}

// FindLine resolves an explicit batch line id, optionally constrained to a
// purchase id.
func (idx *Index) FindLine(purchaseID string, lineID string) (domain.BatchHit, bool) {
	for _, hit := range idx.all {
		if hit.Line.ID != lineID {
			continue
		}
		if purchaseID != "" && hit.PurchaseID != purchaseID {
			continue
		}
		return hit, true
	}
	return domain.BatchHit{}, false
}
