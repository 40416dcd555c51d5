// Package filter derives views of a merged dataset from a FilterSpec.
package filter

import (
	"fmt"
	"slices"

	"SalesAnalytics/internal/domain"
)

// Apply selects the rows of ds that satisfy spec, in dataset order. Returns
// are always dropped, then cancellations unless spec.IncludeCancelled, then
// rows outside spec.WarehouseTypes when the set is non-empty. The dataset is
// never modified.
func Apply(ds *domain.Dataset, spec domain.FilterSpec) (domain.View, []domain.Notice) {
	var notices []domain.Notice

	if !ds.HasColumn(domain.FieldTimestamp) {
		notices = append(notices, domain.Notice{
			Kind:    domain.NoticeSchemaMismatch,
			Message: "dataset has no timestamp column, nothing to show",
		})
		return domain.NewView(ds, nil), notices
	}

	window, swapped := normalizeRange(spec.DateRange)
	if swapped {
		notices = append(notices, domain.Notice{
			Kind:    domain.NoticeDateRangeSwapped,
			Message: fmt.Sprintf("start date was after end date, using %s..%s", window.Start, window.End),
		})
	}

	var warehouses map[string]struct{}
	if len(spec.WarehouseTypes) > 0 {
		warehouses = make(map[string]struct{}, len(spec.WarehouseTypes))
		for _, w := range spec.WarehouseTypes {
			warehouses[w] = struct{}{}
		}
	}

	loc := ds.Location
	index := make([]int, 0, ds.Len())
	for i, row := range ds.Rows() {
		if !window.IsZero() {
			if row.Timestamp == nil || !inWindow(window, domain.DateOf(*row.Timestamp, loc)) {
				continue
			}
		}
		if row.IsReturn {
			continue
		}
		if row.IsCancelled && !spec.IncludeCancelled {
			continue
		}
		if warehouses != nil {
			if _, ok := warehouses[row.WarehouseLabel]; !ok {
				continue
			}
		}
		index = append(index, i)
	}
	return domain.NewView(ds, slices.Clip(index)), notices
}

// LastDays returns the window of n calendar days ending on the dataset's
// latest date. Zero n or an undated dataset yields the zero range.
func LastDays(ds *domain.Dataset, n int) domain.DateRange {
	if n <= 0 {
		return domain.DateRange{}
	}
	_, last, ok := ds.DateBounds()
	if !ok {
		return domain.DateRange{}
	}
	return domain.DateRange{Start: last.AddDays(-(n - 1)), End: last}
}

func normalizeRange(r domain.DateRange) (domain.DateRange, bool) {
	if r.Start.IsZero() || r.End.IsZero() {
		return r, false
	}
	if r.End.Before(r.Start) {
		return domain.DateRange{Start: r.End, End: r.Start}, true
	}
	return r, false
}

// inWindow treats a zero bound as open.
func inWindow(r domain.DateRange, d domain.Date) bool {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && r.End.Before(d) {
		return false
	}
	return true
}
