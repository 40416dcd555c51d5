// Package normalize turns raw feed records into canonical sales rows.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SalesAnalytics/internal/domain"
)

// returnPrefix marks order ids of returned items.
const returnPrefix = "R"

// offsetLayouts carry an explicit UTC offset and are kept as parsed.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
}

// localLayouts have no offset and are localized to the business timezone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
	"02.01.2006 15:04:05",
	"02.01.2006",
}

// Normalizer converts RawFeedRecord values into SalesRow values. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	schema   Schema
	location *time.Location
}

// New builds a normalizer for schema, localizing offset-less dates to loc.
func New(schema Schema, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{schema: schema, location: loc}
}

// Schema returns the mapping table in use.
func (n *Normalizer) Schema() Schema { return n.schema }

// Normalize never fails: malformed fields degrade to zero values and are
// reported as warnings on the outcome.
func (n *Normalizer) Normalize(raw domain.RawFeedRecord) domain.RowOutcome {
	var (
		row      domain.SalesRow
		warnings []domain.FieldWarning
		fields   []domain.Field
		seen     = map[domain.Field]bool{}
	)

	warn := func(f domain.Field, source, reason string) {
		warnings = append(warnings, domain.FieldWarning{Field: f, Source: source, Reason: reason})
	}

	for _, m := range n.schema.Mappings {
		value, ok := raw[m.Source]
		if !ok || seen[m.Field] {
			continue
		}
		seen[m.Field] = true
		fields = append(fields, m.Field)

		switch m.Field {
		case domain.FieldTimestamp, domain.FieldLastChangeDate:
			ts, reason := n.coerceTime(value)
			if reason != "" {
				warn(m.Field, m.Source, reason)
			}
			if m.Field == domain.FieldTimestamp {
				row.Timestamp = ts
			} else {
				row.LastChangeDate = ts
			}
		case domain.FieldUnitPrice:
			d, reason := coerceDecimal(value)
			if reason != "" {
				warn(m.Field, m.Source, reason)
			}
			if d.Valid {
				row.UnitPrice = d.Decimal
			}
		case domain.FieldDiscountPercent:
			d, reason := coerceDecimal(value)
			if reason != "" {
				warn(m.Field, m.Source, reason)
			}
			row.DiscountPercent = d
		case domain.FieldIsCancelled:
			b, reason := coerceBool(value)
			if reason != "" {
				warn(m.Field, m.Source, reason)
			}
			row.IsCancelled = b
		default:
			s, reason := coerceString(value)
			if reason != "" {
				warn(m.Field, m.Source, reason)
			}
			assignString(&row, m.Field, s)
		}
	}

	row.Brand = strings.ToLower(row.Brand)
	row.SellerSKU = CollapseSKU(row.SellerSKU)
	row.IsReturn = strings.HasPrefix(row.OrderID, returnPrefix)
	row.WarehouseLabel = row.WarehouseType
	if row.WarehouseLabel == "" {
		row.WarehouseLabel = row.WarehouseName
	}

	return domain.RowOutcome{
		Row:      row,
		Status:   domain.RowAccepted,
		Warnings: warnings,
		Fields:   fields,
	}
}

func assignString(row *domain.SalesRow, f domain.Field, s string) {
	switch f {
	case domain.FieldOrderID:
		row.OrderID = s
	case domain.FieldWarehouseName:
		row.WarehouseName = s
	case domain.FieldWarehouseType:
		row.WarehouseType = s
	case domain.FieldRegion:
		row.Region = s
	case domain.FieldCategory:
		row.Category = s
	case domain.FieldSubcategory:
		row.Subcategory = s
	case domain.FieldBrand:
		row.Brand = s
	case domain.FieldSellerSKU:
		row.SellerSKU = s
	}
}

// CollapseSKU undoes the doubled-article feed anomaly: an even-length value
// whose halves are identical is cut to its first half.
func CollapseSKU(sku string) string {
	r := []rune(sku)
	if len(r) == 0 || len(r)%2 != 0 {
		return sku
	}
	half := len(r) / 2
	if string(r[:half]) == string(r[half:]) {
		return string(r[:half])
	}
	return sku
}

// ParseTime parses s with the tolerant layout list. Offset-less values are
// placed in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func (n *Normalizer) coerceTime(v any) (*time.Time, string) {
	switch x := v.(type) {
	case nil:
		return nil, ""
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, ""
		}
		t, err := ParseTime(x, n.location)
		if err != nil {
			return nil, err.Error()
		}
		return &t, ""
	default:
		return nil, fmt.Sprintf("expected date string, got %T", v)
	}
}

func coerceString(v any) (string, string) {
	switch x := v.(type) {
	case nil:
		return "", ""
	case string:
		return strings.TrimSpace(x), ""
	case json.Number:
		return x.String(), "number coerced to string"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), "number coerced to string"
	case bool:
		return strconv.FormatBool(x), "boolean coerced to string"
	default:
		return "", fmt.Sprintf("unsupported value of type %T", v)
	}
}

func coerceDecimal(v any) (decimal.NullDecimal, string) {
	switch x := v.(type) {
	case nil:
		return decimal.NullDecimal{}, ""
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.NullDecimal{}, fmt.Sprintf("invalid number %q", x.String())
		}
		return decimal.NewNullDecimal(d), ""
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(x)), ""
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		if s == "" {
			return decimal.NullDecimal{}, ""
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}, fmt.Sprintf("invalid number %q", x)
		}
		return decimal.NewNullDecimal(d), "string coerced to number"
	default:
		return decimal.NullDecimal{}, fmt.Sprintf("expected number, got %T", v)
	}
}

func coerceBool(v any) (bool, string) {
	switch x := v.(type) {
	case nil:
		return false, ""
	case bool:
		return x, ""
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes":
			return true, "string coerced to boolean"
		case "false", "0", "no", "":
			return false, "string coerced to boolean"
		}
		return false, fmt.Sprintf("invalid boolean %q", x)
	case json.Number:
		return x.String() != "0", "number coerced to boolean"
	case float64:
		return x != 0, "number coerced to boolean"
	default:
		return false, fmt.Sprintf("expected boolean, got %T", v)
	}
}
