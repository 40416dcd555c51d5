package analytics

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/export"
)

// Granularity is the bucket width of a time series.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ParseGranularity accepts day, week and month.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Day, Week, Month:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Point is one bucket of a series. Start is the bucket start in the business
// location.
type Point struct {
	Start   time.Time
	Label   string
	Revenue decimal.Decimal
	Rows    int
	Orders  int
}

type bucket struct {
	revenue decimal.Decimal
	rows    int
	orders  map[string]struct{}
}

func (b *bucket) add(r domain.MergedRow) {
	b.revenue = b.revenue.Add(r.UnitPrice)
	b.rows++
	if r.OrderID != "" {
		b.orders[r.OrderID] = struct{}{}
	}
}

// Series buckets rows with a timestamp by period start, ascending. Weeks
// begin on Monday.
func Series(v domain.View, g Granularity) []Point {
	loc := v.Location()
	buckets := map[time.Time]*bucket{}

	for r := range v.All() {
		if r.Timestamp == nil {
			continue
		}
		start := periodStart(r.Timestamp.In(loc), g)
		b, ok := buckets[start]
		if !ok {
			b = &bucket{orders: map[string]struct{}{}}
			buckets[start] = b
		}
		b.add(r)
	}

	points := make([]Point, 0, len(buckets))
	for start, b := range buckets {
		points = append(points, Point{
			Start:   start,
			Label:   label(start, g),
			Revenue: b.revenue,
			Rows:    b.rows,
			Orders:  len(b.orders),
		})
	}
	slices.SortFunc(points, func(a, b Point) int { return a.Start.Compare(b.Start) })
	return points
}

// Hourly returns 24 buckets by business-local hour of day.
func Hourly(v domain.View) []Point {
	loc := v.Location()
	var buckets [24]bucket
	for i := range buckets {
		buckets[i].orders = map[string]struct{}{}
	}
	for r := range v.All() {
		if r.Timestamp == nil {
			continue
		}
		buckets[r.Timestamp.In(loc).Hour()].add(r)
	}

	points := make([]Point, 24)
	for h := range buckets {
		points[h] = Point{
			Start:   time.Date(0, 1, 1, h, 0, 0, 0, loc),
			Label:   fmt.Sprintf("%02d:00", h),
			Revenue: buckets[h].revenue,
			Rows:    buckets[h].rows,
			Orders:  len(buckets[h].orders),
		}
	}
	return points
}

// SeriesTable lays points out for export under sheet.
func SeriesTable(sheet string, points []Point) export.Table {
	t := export.Table{
		Sheet:   sheet,
		Columns: []string{"period", "revenue", "rows", "orders"},
	}
	for _, p := range points {
		t.Rows = append(t.Rows, []any{p.Label, p.Revenue, p.Rows, p.Orders})
	}
	return t
}

func periodStart(t time.Time, g Granularity) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch g {
	case Week:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

func label(start time.Time, g Granularity) string {
	if g == Month {
		return start.Format("2006-01")
	}
	return start.Format(time.DateOnly)
}
