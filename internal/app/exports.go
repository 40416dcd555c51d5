package app

import (
	"fmt"
	"os"
	"path/filepath"

	"SalesAnalytics/internal/analytics"
	"SalesAnalytics/internal/config"
	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/export"
	"SalesAnalytics/internal/usecase"
)

// writeExports stores sales.xlsx, sales.csv, breakdowns.xlsx and
// series.xlsx in cfg.Dir.
func writeExports(cfg config.ExportConfig, state usecase.ViewState) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	v := state.View

	table := export.FromView(v)

	xlsx, err := export.XLSX(table)
	if err != nil {
		return fmt.Errorf("sales xlsx: %w", err)
	}
	if err := writeFile(cfg.Dir, "sales.xlsx", xlsx); err != nil {
		return err
	}

	csv, err := export.CSV(table, export.CSVOptions{KeepTimezone: cfg.KeepTimezone})
	if err != nil {
		return fmt.Errorf("sales csv: %w", err)
	}
	if err := writeFile(cfg.Dir, "sales.csv", csv); err != nil {
		return err
	}

	breakdowns, err := breakdownSheets(cfg.Breakdowns, v)
	if err != nil {
		return err
	}
	if len(breakdowns) > 0 {
		data, err := export.XLSX(breakdowns...)
		if err != nil {
			return fmt.Errorf("breakdown xlsx: %w", err)
		}
		if err := writeFile(cfg.Dir, "breakdowns.xlsx", data); err != nil {
			return err
		}
	}

	series, err := export.XLSX(seriesSheets(state)...)
	if err != nil {
		return fmt.Errorf("series xlsx: %w", err)
	}
	return writeFile(cfg.Dir, "series.xlsx", series)
}

// breakdownSheets renders the configured dimensions plus the subcategory
// drilldown of the category with the highest revenue.
func breakdownSheets(dims []string, v domain.View) ([]export.Table, error) {
	var sheets []export.Table
	for _, name := range dims {
		dim, err := analytics.ParseDimension(name)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, analytics.BreakdownTable(dim, analytics.Breakdown(v, dim)))
	}
	if categories := analytics.Breakdown(v, analytics.ByCategory); len(categories) > 0 {
		top := categories[0].Key
		sheets = append(sheets, analytics.DrilldownTable(top, analytics.Drilldown(v, top)))
	}
	return sheets, nil
}

// seriesSheets has day, week and month revenue, and the hourly profile when
// the date window is a single day.
func seriesSheets(state usecase.ViewState) []export.Table {
	sheets := []export.Table{
		analytics.SeriesTable(string(analytics.Day), analytics.Series(state.View, analytics.Day)),
		analytics.SeriesTable(string(analytics.Week), analytics.Series(state.View, analytics.Week)),
		analytics.SeriesTable(string(analytics.Month), analytics.Series(state.View, analytics.Month)),
	}
	if r := state.Spec.DateRange; !r.Start.IsZero() && r.Start == r.End {
		sheets = append(sheets, analytics.SeriesTable("hourly", analytics.Hourly(state.View)))
	}
	return sheets
}

// writeFile replaces name in dir through a temporary file.
func writeFile(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
