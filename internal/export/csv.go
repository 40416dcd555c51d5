package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CSVOptions controls text rendering.
type CSVOptions struct {
	// KeepTimezone writes RFC 3339 timestamps with their offset instead of
	// business wall clock.
	KeepTimezone bool
}

// CSV renders the table as UTF-8 comma separated text with a header row.
func CSV(t Table, opts CSVOptions) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, csvCell(v, t, opts))
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvCell(v any, t Table, opts CSVOptions) string {
	v = unwrap(v)
	if ts, ok := timeValue(v); ok {
		if ts == nil {
			return ""
		}
		if opts.KeepTimezone {
			if t.Location != nil {
				return ts.In(t.Location).Format(time.RFC3339)
			}
			return ts.Format(time.RFC3339)
		}
		return wallClock(*ts, t.Location).Format(time.DateTime)
	}
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}
