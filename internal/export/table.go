// Package export renders tables as spreadsheet and delimited-text buffers.
package export

import (
	"time"

	"github.com/shopspring/decimal"

	"SalesAnalytics/internal/domain"
)

// DefaultSheet is the worksheet name of the sales export.
const DefaultSheet = "SalesData"

// Table is a rectangular export. Cell values may be string, bool, int,
// decimal.Decimal, decimal.NullDecimal, time.Time, *time.Time, *string or
// nil.
type Table struct {
	Sheet   string
	Columns []string
	Rows    [][]any
	// Location is used to render timestamps as business wall clock.
	Location *time.Location
}

// SalesColumns is the canonical column order of FromView.
var SalesColumns = []string{
	"order_id",
	"timestamp",
	"last_change_date",
	"warehouse_label",
	"warehouse_name",
	"warehouse_type",
	"region",
	"category",
	"subcategory",
	"brand",
	"seller_sku",
	"product_name",
	"unit_price",
	"discount_percent",
	"is_cancelled",
	"is_return",
	"sales_channel",
}

// FromView copies the selected rows into a table.
func FromView(v domain.View) Table {
	t := Table{
		Sheet:    DefaultSheet,
		Columns:  SalesColumns,
		Rows:     make([][]any, 0, v.Len()),
		Location: v.Location(),
	}
	for r := range v.All() {
		t.Rows = append(t.Rows, []any{
			r.OrderID,
			r.Timestamp,
			r.LastChangeDate,
			r.WarehouseLabel,
			r.WarehouseName,
			r.WarehouseType,
			r.Region,
			r.Category,
			r.Subcategory,
			r.Brand,
			r.SellerSKU,
			r.ProductName,
			r.UnitPrice,
			r.DiscountPercent,
			r.IsCancelled,
			r.IsReturn,
			r.SalesChannel,
		})
	}
	return t
}

// wallClock drops the zone: the same clock reading, labelled UTC.
func wallClock(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// timeValue unwraps time cells; ok is false for non-time values and nil
// pointers report a nil time.
func timeValue(v any) (t *time.Time, ok bool) {
	switch x := v.(type) {
	case time.Time:
		return &x, true
	case *time.Time:
		return x, true
	}
	return nil, false
}

// unwrap flattens nullable wrappers into their value or nil.
func unwrap(v any) any {
	switch x := v.(type) {
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal
	case *string:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}
