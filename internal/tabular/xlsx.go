package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSX reads the first worksheet of an Office Open XML workbook.
type XLSX struct{}

func (XLSX) Name() string { return "xlsx" }

func (XLSX) ContentTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
}

func (XLSX) Extensions() []string { return []string{".xlsx", ".xlsm"} }

func (XLSX) Decode(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return Table{}, nil
	}
	return Table{Header: rows[0], Rows: rows[1:]}, nil
}
