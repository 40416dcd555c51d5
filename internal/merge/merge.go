// Package merge left-joins sales rows with the product lookup table.
package merge

import (
	"errors"
	"fmt"

	"SalesAnalytics/internal/domain"
)

// ErrManyToOne means the lookup side carried a repeated SKU. The lookup
// fetcher deduplicates, so hitting it is an internal consistency failure.
var ErrManyToOne = errors.New("lookup side is not unique by seller sku")

// Stats counts how many sales rows found a product name.
type Stats struct {
	Matched   int
	Unmatched int
}

// LeftJoin attaches product names by SellerSKU. Every sales row appears in
// the output exactly once and in input order.
func LeftJoin(sales []domain.SalesRow, lookup []domain.ProductLookupRow) ([]domain.MergedRow, Stats, error) {
	names := make(map[string]*string, len(lookup))
	for _, l := range lookup {
		if _, dup := names[l.SellerSKU]; dup {
			return nil, Stats{}, fmt.Errorf("sku %q: %w", l.SellerSKU, ErrManyToOne)
		}
		name := l.ProductName
		names[l.SellerSKU] = &name
	}

	var stats Stats
	out := make([]domain.MergedRow, len(sales))
	for i, row := range sales {
		out[i] = domain.MergedRow{SalesRow: row}
		if name, ok := names[row.SellerSKU]; ok {
			out[i].ProductName = name
			stats.Matched++
			continue
		}
		stats.Unmatched++
	}
	return out, stats, nil
}
