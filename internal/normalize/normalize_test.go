package normalize

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"SalesAnalytics/internal/domain"
)

func moscow(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func decodeRecord(t *testing.T, raw string) domain.RawFeedRecord {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var rec domain.RawFeedRecord
	if err := dec.Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return rec
}

func TestNormalizeFullRecord(t *testing.T) {
	t.Parallel()

	loc := moscow(t)
	n := New(SchemaWBStatisticsV1, loc)
	rec := decodeRecord(t, `{
		"date": "2024-01-02T10:30:00",
		"lastChangeDate": "2024-01-02T11:00:00Z",
		"warehouseName": " Коледино ",
		"warehouseType": "Склад WB",
		"regionName": "Московская",
		"category": "Одежда",
		"subject": "Футболки",
		"brand": "ACME",
		"supplierArticle": "ABC1234567ABC1234567",
		"totalPrice": 1234.50,
		"spp": 25,
		"srid": "12345.abc",
		"isCancel": false,
		"unknownField": "dropped"
	}`)

	out := n.Normalize(rec)
	if out.Status != domain.RowAccepted {
		t.Fatalf("expected accepted row, got %v", out.Status)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", out.Warnings)
	}

	row := out.Row
	if row.OrderID != "12345.abc" || row.IsReturn {
		t.Fatalf("unexpected order fields: %q return=%v", row.OrderID, row.IsReturn)
	}
	if row.WarehouseName != "Коледино" {
		t.Fatalf("warehouse name not trimmed: %q", row.WarehouseName)
	}
	if row.WarehouseLabel != "Склад WB" {
		t.Fatalf("warehouse label should prefer type, got %q", row.WarehouseLabel)
	}
	if row.Brand != "acme" {
		t.Fatalf("brand not lowercased: %q", row.Brand)
	}
	if row.SellerSKU != "ABC1234567" {
		t.Fatalf("sku not collapsed: %q", row.SellerSKU)
	}
	if row.UnitPrice.String() != "1234.5" {
		t.Fatalf("unexpected price: %s", row.UnitPrice)
	}
	if !row.DiscountPercent.Valid || row.DiscountPercent.Decimal.IntPart() != 25 {
		t.Fatalf("unexpected discount: %+v", row.DiscountPercent)
	}
	if row.Timestamp == nil {
		t.Fatalf("expected timestamp")
	}
	if row.Timestamp.Location() != loc || row.Timestamp.Hour() != 10 {
		t.Fatalf("offset-less date must be localized to business zone: %v", row.Timestamp)
	}
	if row.LastChangeDate == nil || row.LastChangeDate.Location() != time.UTC {
		t.Fatalf("date with offset must be kept as is: %v", row.LastChangeDate)
	}
	if row.Subcategory != "Футболки" || row.Region != "Московская" || row.Category != "Одежда" {
		t.Fatalf("unexpected dimensions: %+v", row)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	n := New(SchemaWBStatisticsV1, moscow(t))
	rec := decodeRecord(t, `{"date":"2024-01-05","srid":"R1","totalPrice":"10,5","brand":"X","supplierArticle":"AA"}`)

	first := n.Normalize(rec)
	second := n.Normalize(rec)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalization is not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestCollapseSKU(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"ABC1234567ABC1234567": "ABC1234567",
		"ABC1234567XYZ7654321": "ABC1234567XYZ7654321",
		"":                     "",
		"ABA":                  "ABA",
		"abab":                 "ab",
		"артартарт":            "артартарт",
		"артарт":               "арт",
	}
	for in, want := range cases {
		if got := CollapseSKU(in); got != want {
			t.Fatalf("CollapseSKU(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReturnDetection(t *testing.T) {
	t.Parallel()

	n := New(SchemaWBStatisticsV1, time.UTC)
	cases := []struct {
		raw  domain.RawFeedRecord
		want bool
	}{
		{raw: domain.RawFeedRecord{"srid": "R12345"}, want: true},
		{raw: domain.RawFeedRecord{"srid": "12345"}, want: false},
		{raw: domain.RawFeedRecord{}, want: false},
	}
	for _, tc := range cases {
		if got := n.Normalize(tc.raw).Row.IsReturn; got != tc.want {
			t.Fatalf("IsReturn(%v) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeDegradesMalformedFields(t *testing.T) {
	t.Parallel()

	n := New(SchemaWBStatisticsV1, time.UTC)
	out := n.Normalize(domain.RawFeedRecord{
		"date":            "yesterday-ish",
		"totalPrice":      "n/a",
		"isCancel":        "maybe",
		"supplierArticle": json.Number("777"),
		"brand":           []any{"x"},
	})

	if out.Status != domain.RowAccepted {
		t.Fatalf("malformed fields must not skip the row")
	}
	if out.Row.Timestamp != nil {
		t.Fatalf("unparseable date must become nil")
	}
	if !out.Row.UnitPrice.IsZero() {
		t.Fatalf("invalid price must default to zero, got %s", out.Row.UnitPrice)
	}
	if out.Row.IsCancelled {
		t.Fatalf("invalid boolean must default to false")
	}
	if out.Row.SellerSKU != "777" {
		t.Fatalf("numeric sku must be coerced to string, got %q", out.Row.SellerSKU)
	}
	fields := map[domain.Field]bool{}
	for _, w := range out.Warnings {
		fields[w.Field] = true
	}
	for _, f := range []domain.Field{domain.FieldTimestamp, domain.FieldUnitPrice, domain.FieldIsCancelled, domain.FieldSellerSKU, domain.FieldBrand} {
		if !fields[f] {
			t.Fatalf("expected warning for %s, got %+v", f, out.Warnings)
		}
	}
}

func TestNormalizeMissingFieldsDefaults(t *testing.T) {
	t.Parallel()

	out := New(SchemaWBStatisticsV1, time.UTC).Normalize(domain.RawFeedRecord{"warehouseName": "Тула"})
	row := out.Row
	if row.SellerSKU != "" || row.IsCancelled || row.DiscountPercent.Valid || row.Timestamp != nil {
		t.Fatalf("unexpected defaults: %+v", row)
	}
	if row.WarehouseLabel != "Тула" {
		t.Fatalf("label should fall back to warehouse name, got %q", row.WarehouseLabel)
	}
	if len(out.Fields) != 1 || out.Fields[0] != domain.FieldWarehouseName {
		t.Fatalf("unexpected observed fields: %v", out.Fields)
	}
}

func TestWarehouseAliasFirstWins(t *testing.T) {
	t.Parallel()

	out := New(SchemaWBStatisticsV1, time.UTC).Normalize(domain.RawFeedRecord{
		"warehouse":     "second",
		"warehouseName": "first",
	})
	if out.Row.WarehouseName != "first" {
		t.Fatalf("expected declared order to win, got %q", out.Row.WarehouseName)
	}
}

func TestParseTimeLayouts(t *testing.T) {
	t.Parallel()

	loc := moscow(t)
	cases := []struct {
		in      string
		wantUTC string
	}{
		{in: "2024-01-02T10:00:00", wantUTC: "2024-01-02T07:00:00Z"},
		{in: "2024-01-02T10:00:00.123", wantUTC: "2024-01-02T07:00:00.123Z"},
		{in: "2024-01-02 10:00:00", wantUTC: "2024-01-02T07:00:00Z"},
		{in: "2024-01-02", wantUTC: "2024-01-01T21:00:00Z"},
		{in: "02.01.2024", wantUTC: "2024-01-01T21:00:00Z"},
		{in: "2024-01-02T10:00:00+05:00", wantUTC: "2024-01-02T05:00:00Z"},
		{in: "2024-01-02T10:00:00Z", wantUTC: "2024-01-02T10:00:00Z"},
	}
	for _, tc := range cases {
		got, err := ParseTime(tc.in, loc)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", tc.in, err)
		}
		if s := got.UTC().Format(time.RFC3339Nano); s != tc.wantUTC {
			t.Fatalf("ParseTime(%q) = %s, want %s", tc.in, s, tc.wantUTC)
		}
	}

	if _, err := ParseTime("not a date", loc); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}
