// Package tabular decodes spreadsheet-like documents into header-keyed rows.
package tabular

import (
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
)

// Table is a decoded sheet: a header row and data rows aligned to it.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the column position of name (exact match after trimming).
func (t Table) Index(name string) (int, bool) {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i, true
		}
	}
	return -1, false
}

// Cell returns row[col] or "" when the row is short.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// Decoder is a single format implementation (xlsx, csv, html, ...).
type Decoder interface {
	Name() string
	// ContentTypes lists media types handled by the decoder.
	ContentTypes() []string
	// Extensions lists file extensions (with dot) used when the server sends a
	// generic content type.
	Extensions() []string
	Decode(r io.Reader) (Table, error)
}

// ErrUnsupported is returned by Resolve for unknown formats.
type ErrUnsupported struct {
	ContentType string
	Path        string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("no decoder for content type %q (path %q)", e.ContentType, e.Path)
}

// Registry maps content types and extensions to decoders.
type Registry struct {
	byType map[string]Decoder
	byExt  map[string]Decoder
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: map[string]Decoder{}, byExt: map[string]Decoder{}}
}

// DefaultRegistry knows xlsx, csv and html tables.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(XLSX{})
	r.Register(CSV{})
	r.Register(HTML{})
	return r
}

// Register adds or replaces a decoder.
func (r *Registry) Register(d Decoder) {
	if r.byType == nil {
		r.byType = map[string]Decoder{}
	}
	if r.byExt == nil {
		r.byExt = map[string]Decoder{}
	}
	for _, ct := range d.ContentTypes() {
		r.byType[ct] = d
	}
	for _, ext := range d.Extensions() {
		r.byExt[strings.ToLower(ext)] = d
	}
}

// genericTypes are sent by object stores that do not know the file type.
var genericTypes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"binary/octet-stream":      true,
	"application/zip":          true,
}

// Resolve picks a decoder by media type, falling back to the URL path
// extension when the media type is generic.
func (r *Registry) Resolve(contentType, urlPath string) (Decoder, error) {
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		media = strings.ToLower(strings.TrimSpace(contentType))
	}
	if d, ok := r.byType[media]; ok {
		return d, nil
	}
	if genericTypes[media] {
		if d, ok := r.byExt[strings.ToLower(path.Ext(urlPath))]; ok {
			return d, nil
		}
	}
	return nil, &ErrUnsupported{ContentType: contentType, Path: urlPath}
}
