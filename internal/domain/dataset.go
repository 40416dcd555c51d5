package domain

import (
	"iter"
	"time"
)

// Dataset is the merged, read-only table shared by filters, analytics and
// exports. It must not be modified after construction.
type Dataset struct {
	LoadID   string
	LoadedAt time.Time
	Location *time.Location
	rows     []MergedRow
	columns  map[Field]bool
}

// NewDataset takes ownership of rows; callers must not retain the slice.
func NewDataset(loadID string, loadedAt time.Time, loc *time.Location, rows []MergedRow, columns map[Field]bool) *Dataset {
	if loc == nil {
		loc = time.UTC
	}
	cols := make(map[Field]bool, len(columns))
	for k, v := range columns {
		if v {
			cols[k] = true
		}
	}
	return &Dataset{
		LoadID:   loadID,
		LoadedAt: loadedAt,
		Location: loc,
		rows:     rows,
		columns:  cols,
	}
}

// Len reports the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Row returns a copy of row i.
func (d *Dataset) Row(i int) MergedRow {
	return d.rows[i]
}

// Rows iterates over all rows in load order.
func (d *Dataset) Rows() iter.Seq2[int, MergedRow] {
	return func(yield func(int, MergedRow) bool) {
		if d == nil {
			return
		}
		for i, r := range d.rows {
			if !yield(i, r) {
				return
			}
		}
	}
}

// HasColumn reports whether any feed record carried the canonical field.
func (d *Dataset) HasColumn(f Field) bool {
	if d == nil {
		return false
	}
	return d.columns[f]
}

// WarehouseLabels lists distinct warehouse labels in first-seen order.
func (d *Dataset) WarehouseLabels() []string {
	seen := map[string]struct{}{}
	var labels []string
	for _, r := range d.Rows() {
		if r.WarehouseLabel == "" {
			continue
		}
		if _, ok := seen[r.WarehouseLabel]; ok {
			continue
		}
		seen[r.WarehouseLabel] = struct{}{}
		labels = append(labels, r.WarehouseLabel)
	}
	return labels
}

// DateBounds returns the first and last business-local dates with a
// timestamp. ok is false when no row carries one.
func (d *Dataset) DateBounds() (minDate, maxDate Date, ok bool) {
	for _, r := range d.Rows() {
		if r.Timestamp == nil {
			continue
		}
		day := DateOf(*r.Timestamp, d.Location)
		if !ok {
			minDate, maxDate, ok = day, day, true
			continue
		}
		if day.Before(minDate) {
			minDate = day
		}
		if maxDate.Before(day) {
			maxDate = day
		}
	}
	return minDate, maxDate, ok
}

// View is a non-owning selection of dataset rows. Its zero value is empty.
type View struct {
	dataset *Dataset
	index   []int
}

// NewView selects the given dataset positions; index is owned by the view.
func NewView(d *Dataset, index []int) View {
	return View{dataset: d, index: index}
}

// Dataset returns the dataset the view selects from.
func (v View) Dataset() *Dataset { return v.dataset }

// Len is the number of selected rows.
func (v View) Len() int { return len(v.index) }

// Row returns the i-th selected row.
func (v View) Row(i int) MergedRow { return v.dataset.rows[v.index[i]] }

// Location is the business location of the underlying dataset.
func (v View) Location() *time.Location {
	if v.dataset == nil {
		return time.UTC
	}
	return v.dataset.Location
}

// All iterates the selected rows in dataset order.
func (v View) All() iter.Seq[MergedRow] {
	return func(yield func(MergedRow) bool) {
		for _, idx := range v.index {
			if !yield(v.dataset.rows[idx]) {
				return
			}
		}
	}
}

// Filter narrows the view further without touching the dataset.
func (v View) Filter(keep func(MergedRow) bool) View {
	out := make([]int, 0, len(v.index))
	for _, idx := range v.index {
		if keep(v.dataset.rows[idx]) {
			out = append(out, idx)
		}
	}
	return View{dataset: v.dataset, index: out}
}
