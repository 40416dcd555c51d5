package tabular

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTML reads the first <table> of a page, as produced by spreadsheet "save
// as web page" exports. Header cells come from <th> or the first row.
type HTML struct{}

func (HTML) Name() string { return "html" }

func (HTML) ContentTypes() []string { return []string{"text/html", "application/xhtml+xml"} }

func (HTML) Extensions() []string { return []string{".html", ".htm"} }

func (HTML) Decode(r io.Reader) (Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("parse document: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return Table{}, fmt.Errorf("document has no table")
	}

	var out Table
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		header := false
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			if goquery.NodeName(cell) == "th" {
				header = true
			}
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) == 0 {
			return
		}
		if out.Header == nil && (header || len(out.Rows) == 0) {
			out.Header = cells
			return
		}
		out.Rows = append(out.Rows, cells)
	})
	return out, nil
}
