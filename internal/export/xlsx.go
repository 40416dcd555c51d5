package export

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const timestampFormat = "yyyy-mm-dd hh:mm:ss"

// XLSX writes each table to its own worksheet. Timestamps are written as
// business wall clock without a zone, which spreadsheets cannot store.
func XLSX(tables ...Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	format := timestampFormat
	timeStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return nil, fmt.Errorf("create time style: %w", err)
	}

	first := f.GetSheetName(0)
	for i, t := range tables {
		name := t.Sheet
		if name == "" {
			name = DefaultSheet
		}
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, t, timeStyle); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func writeSheet(f *excelize.File, sheet string, t Table, timeStyle int) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open stream writer %s: %w", sheet, err)
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range t.Rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = xlsxCell(v, t, timeStyle)
		}
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(addr, cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet %s: %w", sheet, err)
	}
	return nil
}

func xlsxCell(v any, t Table, timeStyle int) any {
	v = unwrap(v)
	if ts, ok := timeValue(v); ok {
		if ts == nil {
			return nil
		}
		return excelize.Cell{StyleID: timeStyle, Value: wallClock(*ts, t.Location)}
	}
	if d, ok := v.(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return v
}
