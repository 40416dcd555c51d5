// Package analytics computes revenue metrics over filtered views.
package analytics

import (
	"github.com/shopspring/decimal"

	"SalesAnalytics/internal/domain"
)

// Summary is the headline block of a dashboard.
type Summary struct {
	Rows    int
	Revenue decimal.Decimal
	// Orders counts distinct non-empty order ids.
	Orders       int
	AverageCheck decimal.Decimal
	// AverageDiscount is the mean of known discounts; invalid when none.
	AverageDiscount decimal.NullDecimal
	// DuplicateOrderIDs is the number of rows whose order id was already seen.
	DuplicateOrderIDs int
	// LineItemDuplication is set when any order id spans several rows.
	LineItemDuplication bool
}

// Summarize aggregates every row of v.
func Summarize(v domain.View) Summary {
	var (
		s         Summary
		discounts decimal.Decimal
		known     int64
		withID    int
	)
	s.Revenue = decimal.Zero
	orders := make(map[string]struct{})

	for r := range v.All() {
		s.Rows++
		s.Revenue = s.Revenue.Add(r.UnitPrice)
		if r.DiscountPercent.Valid {
			discounts = discounts.Add(r.DiscountPercent.Decimal)
			known++
		}
		if r.OrderID != "" {
			withID++
			orders[r.OrderID] = struct{}{}
		}
	}

	s.Orders = len(orders)
	s.DuplicateOrderIDs = withID - s.Orders
	s.LineItemDuplication = s.DuplicateOrderIDs > 0
	s.AverageCheck = decimal.Zero
	if s.Orders > 0 {
		s.AverageCheck = s.Revenue.Div(decimal.NewFromInt(int64(s.Orders))).Round(2)
	}
	if known > 0 {
		s.AverageDiscount = decimal.NewNullDecimal(discounts.Div(decimal.NewFromInt(known)).Round(2))
	}
	return s
}
