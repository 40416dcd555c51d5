package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawFeedRecord is one decoded element of the sales feed array. Numbers are
// kept as json.Number so the normalizer decides how to coerce them.
type RawFeedRecord map[string]any

// Field names a canonical SalesRow column.
type Field string

const (
	FieldTimestamp       Field = "timestamp"
	FieldLastChangeDate  Field = "last_change_date"
	FieldWarehouseName   Field = "warehouse_name"
	FieldWarehouseType   Field = "warehouse_type"
	FieldRegion          Field = "region"
	FieldCategory        Field = "category"
	FieldSubcategory     Field = "subcategory"
	FieldBrand           Field = "brand"
	FieldSellerSKU       Field = "seller_sku"
	FieldUnitPrice       Field = "unit_price"
	FieldDiscountPercent Field = "discount_percent"
	FieldIsCancelled     Field = "is_cancelled"
	FieldOrderID         Field = "order_id"
)

// SalesRow is one normalized transaction line.
type SalesRow struct {
	OrderID         string
	Timestamp       *time.Time
	LastChangeDate  *time.Time
	WarehouseName   string
	WarehouseType   string
	WarehouseLabel  string
	Region          string
	Category        string
	Subcategory     string
	Brand           string
	SellerSKU       string
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.NullDecimal
	IsCancelled     bool
	IsReturn        bool
	SalesChannel    string
}

// ProductLookupRow maps a seller SKU to its human readable product name.
type ProductLookupRow struct {
	SellerSKU   string
	ProductName string
}

// MergedRow is a SalesRow enriched with the looked up product name.
// ProductName is nil when the SKU has no lookup entry.
type MergedRow struct {
	SalesRow
	ProductName *string
}

// RowStatus tags the outcome of turning one raw record into a row.
type RowStatus int

const (
	RowAccepted RowStatus = iota
	RowSkipped
)

// FieldWarning records a best-effort coercion that degraded a field.
type FieldWarning struct {
	Field  Field
	Source string
	Reason string
}

// RowOutcome is the per-record result of feed decoding and normalization.
type RowOutcome struct {
	Row      SalesRow
	Status   RowStatus
	Reason   string
	Warnings []FieldWarning
	// Fields lists the canonical columns the raw record carried.
	Fields []Field
}

// BatchStats aggregates row outcomes for one source load.
type BatchStats struct {
	Records         int
	Accepted        int
	Skipped         int
	Warnings        int
	WarningsByField map[Field]int
	SkipReasons     map[string]int
	Columns         map[Field]bool
}

// NewBatchStats returns zeroed stats with initialized maps.
func NewBatchStats() BatchStats {
	return BatchStats{
		WarningsByField: map[Field]int{},
		SkipReasons:     map[string]int{},
		Columns:         map[Field]bool{},
	}
}

// Add folds a single outcome into the stats.
func (s *BatchStats) Add(o RowOutcome) {
	s.ensure()
	s.Records++
	if o.Status == RowSkipped {
		s.Skipped++
		s.SkipReasons[o.Reason]++
		return
	}
	s.Accepted++
	s.Warnings += len(o.Warnings)
	for _, w := range o.Warnings {
		s.WarningsByField[w.Field]++
	}
	for _, f := range o.Fields {
		s.Columns[f] = true
	}
}

// Merge combines stats from several feeds.
func (s *BatchStats) Merge(other BatchStats) {
	s.ensure()
	s.Records += other.Records
	s.Accepted += other.Accepted
	s.Skipped += other.Skipped
	s.Warnings += other.Warnings
	for k, v := range other.WarningsByField {
		s.WarningsByField[k] += v
	}
	for k, v := range other.SkipReasons {
		s.SkipReasons[k] += v
	}
	for k, v := range other.Columns {
		if v {
			s.Columns[k] = true
		}
	}
}

func (s *BatchStats) ensure() {
	if s.WarningsByField == nil {
		s.WarningsByField = map[Field]int{}
	}
	if s.SkipReasons == nil {
		s.SkipReasons = map[string]int{}
	}
	if s.Columns == nil {
		s.Columns = map[Field]bool{}
	}
}

// FeedResult is everything one feed load produced.
type FeedResult struct {
	URL     string
	Channel string
	Rows    []SalesRow
	Stats   BatchStats
	// Bytes is the body size actually read.
	Bytes int64
	// Oversize is set when the announced size exceeded the warning threshold.
	Oversize bool
}

// Status tells an empty feed apart from one that produced rows.
func (r FeedResult) Status() LoadStatus {
	if len(r.Rows) == 0 {
		return StatusEmpty
	}
	return StatusOK
}

// LookupResult is a deduplicated product lookup table.
type LookupResult struct {
	URL        string
	Rows       []ProductLookupRow
	Duplicates int
}
