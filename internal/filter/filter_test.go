package filter

import (
	"testing"
	"time"

	_ "time/tzdata"

	"SalesAnalytics/internal/domain"
)

func day(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func at(loc *time.Location, y int, m time.Month, d, h int) *time.Time {
	ts := time.Date(y, m, d, h, 0, 0, 0, loc)
	return &ts
}

func dataset(loc *time.Location, rows ...domain.SalesRow) *domain.Dataset {
	merged := make([]domain.MergedRow, len(rows))
	for i, r := range rows {
		merged[i] = domain.MergedRow{SalesRow: r}
	}
	return domain.NewDataset("test", time.Now(), loc, merged, map[domain.Field]bool{domain.FieldTimestamp: true})
}

func fiveDays(loc *time.Location) *domain.Dataset {
	var rows []domain.SalesRow
	for d := 1; d <= 5; d++ {
		rows = append(rows, domain.SalesRow{
			OrderID:     string(rune('0' + d)),
			Timestamp:   at(loc, 2024, time.January, d, 12),
			IsCancelled: d == 3,
		})
	}
	return dataset(loc, rows...)
}

func orderIDs(v domain.View) []string {
	var ids []string
	for r := range v.All() {
		ids = append(ids, r.OrderID)
	}
	return ids
}

func TestApplyDateWindowAndCancellation(t *testing.T) {
	t.Parallel()

	ds := fiveDays(time.UTC)
	view, notices := Apply(ds, domain.FilterSpec{
		DateRange: domain.DateRange{Start: day(t, "2024-01-02"), End: day(t, "2024-01-04")},
	})
	if len(notices) != 0 {
		t.Fatalf("unexpected notices: %v", notices)
	}
	if got := orderIDs(view); len(got) != 2 || got[0] != "2" || got[1] != "4" {
		t.Fatalf("expected rows 2 and 4, got %v", got)
	}
	if ds.Len() != 5 {
		t.Fatalf("dataset must not be modified")
	}

	view, _ = Apply(ds, domain.FilterSpec{
		DateRange:        domain.DateRange{Start: day(t, "2024-01-02"), End: day(t, "2024-01-04")},
		IncludeCancelled: true,
	})
	if view.Len() != 3 {
		t.Fatalf("expected cancelled row to be included, got %v", orderIDs(view))
	}
}

func TestApplySwappedRangeIsCorrected(t *testing.T) {
	t.Parallel()

	ds := fiveDays(time.UTC)
	forward, _ := Apply(ds, domain.FilterSpec{DateRange: domain.DateRange{Start: day(t, "2024-01-01"), End: day(t, "2024-01-05")}})
	swapped, notices := Apply(ds, domain.FilterSpec{DateRange: domain.DateRange{Start: day(t, "2024-01-05"), End: day(t, "2024-01-01")}})

	if len(notices) != 1 || notices[0].Kind != domain.NoticeDateRangeSwapped {
		t.Fatalf("expected a swap notice, got %v", notices)
	}
	a, b := orderIDs(forward), orderIDs(swapped)
	if len(a) != len(b) || len(a) != 4 {
		t.Fatalf("expected identical 4-row views, got %v and %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("views differ at %d: %v vs %v", i, a, b)
		}
	}
}

func TestApplyExcludesReturnsEvenWhenCancelledIncluded(t *testing.T) {
	t.Parallel()

	ds := dataset(time.UTC,
		domain.SalesRow{OrderID: "1", Timestamp: at(time.UTC, 2024, 1, 1, 0)},
		domain.SalesRow{OrderID: "R2", IsReturn: true, Timestamp: at(time.UTC, 2024, 1, 1, 0)},
		domain.SalesRow{OrderID: "R3", IsReturn: true, IsCancelled: true, Timestamp: at(time.UTC, 2024, 1, 1, 0)},
	)
	view, _ := Apply(ds, domain.FilterSpec{IncludeCancelled: true})
	if got := orderIDs(view); len(got) != 1 || got[0] != "1" {
		t.Fatalf("returns must never be selected, got %v", got)
	}
}

func TestApplyWarehouseMembershipPreservesOrder(t *testing.T) {
	t.Parallel()

	ts := at(time.UTC, 2024, 1, 1, 0)
	ds := dataset(time.UTC,
		domain.SalesRow{OrderID: "1", WarehouseLabel: "FBO", Timestamp: ts},
		domain.SalesRow{OrderID: "2", WarehouseLabel: "FBS", Timestamp: ts},
		domain.SalesRow{OrderID: "3", WarehouseLabel: "Koledino", Timestamp: ts},
		domain.SalesRow{OrderID: "4", WarehouseLabel: "FBO", Timestamp: ts},
	)

	view, _ := Apply(ds, domain.FilterSpec{WarehouseTypes: []string{"FBO", "Koledino"}})
	if got := orderIDs(view); len(got) != 3 || got[0] != "1" || got[1] != "3" || got[2] != "4" {
		t.Fatalf("unexpected selection %v", got)
	}

	all, _ := Apply(ds, domain.FilterSpec{})
	if all.Len() != 4 {
		t.Fatalf("empty warehouse set must not filter, got %d", all.Len())
	}
}

func TestApplyWithoutTimestampColumn(t *testing.T) {
	t.Parallel()

	ds := domain.NewDataset("x", time.Now(), time.UTC,
		[]domain.MergedRow{{SalesRow: domain.SalesRow{OrderID: "1"}}}, map[domain.Field]bool{domain.FieldBrand: true})

	view, notices := Apply(ds, domain.FilterSpec{})
	if view.Len() != 0 {
		t.Fatalf("expected empty view")
	}
	if len(notices) != 1 || notices[0].Kind != domain.NoticeSchemaMismatch {
		t.Fatalf("expected schema mismatch, got %v", notices)
	}
}

func TestApplyUsesBusinessLocation(t *testing.T) {
	t.Parallel()

	msk, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 22:30 UTC on Jan 1 is already Jan 2 in Moscow.
	late := time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC)
	ds := dataset(msk,
		domain.SalesRow{OrderID: "1", Timestamp: &late},
		domain.SalesRow{OrderID: "2"},
	)

	view, _ := Apply(ds, domain.FilterSpec{DateRange: domain.DateRange{Start: day(t, "2024-01-02"), End: day(t, "2024-01-02")}})
	if got := orderIDs(view); len(got) != 1 || got[0] != "1" {
		t.Fatalf("expected the late UTC row on the Moscow date, got %v", got)
	}

	unbounded, _ := Apply(ds, domain.FilterSpec{})
	if unbounded.Len() != 2 {
		t.Fatalf("rows without timestamp stay when no window is set, got %d", unbounded.Len())
	}
}

func TestLastDays(t *testing.T) {
	t.Parallel()

	ds := fiveDays(time.UTC)
	r := LastDays(ds, 3)
	if r.Start != day(t, "2024-01-03") || r.End != day(t, "2024-01-05") {
		t.Fatalf("unexpected window %v..%v", r.Start, r.End)
	}
	if !LastDays(ds, 0).IsZero() {
		t.Fatalf("zero days must disable the window")
	}
}
