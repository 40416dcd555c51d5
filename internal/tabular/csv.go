package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV reads comma or semicolon separated text with a header row.
type CSV struct{}

func (CSV) Name() string { return "csv" }

func (CSV) ContentTypes() []string {
	return []string{"text/csv", "application/csv", "text/comma-separated-values"}
}

func (CSV) Extensions() []string { return []string{".csv"} }

func (CSV) Decode(r io.Reader) (Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	// Sniff the delimiter on the header line; spreadsheet exports in
	// locales with decimal commas use semicolons.
	line, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Table{}, fmt.Errorf("peek header: %w", err)
	}
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read line %d: %w", len(rows)+2, err)
		}
		rows = append(rows, record)
	}
	return Table{Header: header, Rows: rows}, nil
}
