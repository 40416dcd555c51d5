package analytics

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/export"
)

// Dimension is a grouping axis for breakdowns.
type Dimension string

const (
	ByCategory    Dimension = "category"
	BySubcategory Dimension = "subcategory"
	ByBrand       Dimension = "brand"
	ByWarehouse   Dimension = "warehouse"
	ByRegion      Dimension = "region"
	ByProduct     Dimension = "product"
	ByChannel     Dimension = "channel"
)

// ParseDimension accepts the names above.
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(s); d {
	case ByCategory, BySubcategory, ByBrand, ByWarehouse, ByRegion, ByProduct, ByChannel:
		return d, nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

func (d Dimension) key(r domain.MergedRow) string {
	switch d {
	case ByCategory:
		return r.Category
	case BySubcategory:
		return r.Subcategory
	case ByBrand:
		return r.Brand
	case ByWarehouse:
		return r.WarehouseLabel
	case ByRegion:
		return r.Region
	case ByProduct:
		if r.ProductName != nil {
			return *r.ProductName
		}
		return r.SellerSKU
	case ByChannel:
		return r.SalesChannel
	}
	return ""
}

// Group is one breakdown line.
type Group struct {
	Key     string
	Revenue decimal.Decimal
	Rows    int
	Orders  int
	// MeanDiscount is rounded to two places; invalid when no row had one.
	MeanDiscount decimal.NullDecimal
	// Share of total revenue in percent, rounded to two places.
	Share decimal.Decimal
}

type accumulator struct {
	revenue   decimal.Decimal
	rows      int
	orders    map[string]struct{}
	discounts decimal.Decimal
	known     int64
}

// Breakdown groups v by dim, sorted by revenue descending then key.
func Breakdown(v domain.View, dim Dimension) []Group {
	acc := map[string]*accumulator{}
	total := decimal.Zero

	for r := range v.All() {
		k := dim.key(r)
		a, ok := acc[k]
		if !ok {
			a = &accumulator{orders: map[string]struct{}{}}
			acc[k] = a
		}
		a.revenue = a.revenue.Add(r.UnitPrice)
		a.rows++
		if r.OrderID != "" {
			a.orders[r.OrderID] = struct{}{}
		}
		if r.DiscountPercent.Valid {
			a.discounts = a.discounts.Add(r.DiscountPercent.Decimal)
			a.known++
		}
		total = total.Add(r.UnitPrice)
	}

	groups := make([]Group, 0, len(acc))
	hundred := decimal.NewFromInt(100)
	for k, a := range acc {
		g := Group{Key: k, Revenue: a.revenue, Rows: a.rows, Orders: len(a.orders), Share: decimal.Zero}
		if a.known > 0 {
			g.MeanDiscount = decimal.NewNullDecimal(a.discounts.Div(decimal.NewFromInt(a.known)).Round(2))
		}
		if !total.IsZero() {
			g.Share = a.revenue.Mul(hundred).Div(total).Round(2)
		}
		groups = append(groups, g)
	}

	slices.SortFunc(groups, func(a, b Group) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return groups
}

// Drilldown is the subcategory breakdown inside one category.
func Drilldown(v domain.View, category string) []Group {
	inside := v.Filter(func(r domain.MergedRow) bool { return r.Category == category })
	return Breakdown(inside, BySubcategory)
}

// BreakdownTable lays groups out for export.
func BreakdownTable(dim Dimension, groups []Group) export.Table {
	t := export.Table{
		Sheet:   string(dim),
		Columns: []string{string(dim), "revenue", "rows", "orders", "mean_discount", "share_percent"},
	}
	for _, g := range groups {
		var discount any
		if g.MeanDiscount.Valid {
			discount = g.MeanDiscount.Decimal
		}
		t.Rows = append(t.Rows, []any{g.Key, g.Revenue, g.Rows, g.Orders, discount, g.Share})
	}
	return t
}

// DrilldownTable is the subcategory table of one category, with the
// category repeated on every row.
func DrilldownTable(category string, groups []Group) export.Table {
	t := BreakdownTable(BySubcategory, groups)
	t.Sheet = "drilldown"
	t.Columns = append([]string{string(ByCategory)}, t.Columns...)
	for i, row := range t.Rows {
		t.Rows[i] = append([]any{category}, row...)
	}
	return t
}
