// Package lookup downloads the SKU to product name reference table.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/infrastructure/httpsource"
	"SalesAnalytics/internal/logging"
	"SalesAnalytics/internal/ports"
	"SalesAnalytics/internal/tabular"
)

const (
	DefaultTimeout    = 300 * time.Second
	DefaultSKUColumn  = "Артикул продавца"
	DefaultNameColumn = "Наименование"
)

// Options configures column names and the request deadline.
type Options struct {
	SKUColumn  string
	NameColumn string
	Timeout    time.Duration
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.SKUColumn) == "" {
		o.SKUColumn = DefaultSKUColumn
	}
	if strings.TrimSpace(o.NameColumn) == "" {
		o.NameColumn = DefaultNameColumn
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Fetcher implements ports.LookupSource.
type Fetcher struct {
	client   *http.Client
	registry *tabular.Registry
	opts     Options
	logger   *slog.Logger
}

var _ ports.LookupSource = (*Fetcher)(nil)

// NewFetcher wires the HTTP client and decoder registry. Nil arguments get
// defaults.
func NewFetcher(client *http.Client, registry *tabular.Registry, opts Options, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = httpsource.NewClient(0)
	}
	if registry == nil {
		registry = tabular.DefaultRegistry()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Fetcher{client: client, registry: registry, opts: opts.withDefaults(), logger: logger}
}

// Fetch downloads the table and returns unique SKU rows. The first row wins
// for a repeated SKU; the number of dropped rows is reported as Duplicates.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.LookupResult, error) {
	resp, err := httpsource.Get(ctx, f.client, domain.SourceLookup, rawURL, f.opts.Timeout)
	if err != nil {
		return domain.LookupResult{}, err
	}
	defer resp.Close()

	contentType := resp.Header.Get("Content-Type")
	decoder, err := f.registry.Resolve(contentType, urlPath(rawURL))
	if err != nil {
		return domain.LookupResult{}, domain.NewSourceError(domain.SourceLookup, rawURL, domain.KindContentType, err)
	}

	table, err := decoder.Decode(resp.Body)
	if err != nil {
		if httpsource.IsTimeout(err) || errors.Is(err, context.Canceled) {
			return domain.LookupResult{}, httpsource.Transient(domain.SourceLookup, rawURL, fmt.Errorf("read body: %w", err))
		}
		return domain.LookupResult{}, domain.NewSourceError(domain.SourceLookup, rawURL, domain.KindDecode,
			fmt.Errorf("decode %s: %w", decoder.Name(), err))
	}

	result, err := f.extract(table)
	if err != nil {
		return domain.LookupResult{}, domain.NewSourceError(domain.SourceLookup, rawURL, domain.KindSchema, err)
	}
	result.URL = rawURL

	if result.Duplicates > 0 {
		f.logger.Warn("lookup has repeated SKUs, keeping first occurrence",
			"url", rawURL,
			"discarded", result.Duplicates)
	}
	f.logger.Info("lookup loaded",
		"url", rawURL,
		"format", decoder.Name(),
		"rows", len(result.Rows),
		"duplicates", result.Duplicates)
	return result, nil
}

func (f *Fetcher) extract(table tabular.Table) (domain.LookupResult, error) {
	skuCol, okSKU := table.Index(f.opts.SKUColumn)
	nameCol, okName := table.Index(f.opts.NameColumn)
	if !okSKU || !okName {
		var missing []string
		if !okSKU {
			missing = append(missing, f.opts.SKUColumn)
		}
		if !okName {
			missing = append(missing, f.opts.NameColumn)
		}
		return domain.LookupResult{}, fmt.Errorf("missing required columns %q (have %q)", missing, table.Header)
	}

	seen := make(map[string]struct{}, len(table.Rows))
	result := domain.LookupResult{Rows: make([]domain.ProductLookupRow, 0, len(table.Rows))}
	for _, row := range table.Rows {
		sku := strings.TrimSpace(tabular.Cell(row, skuCol))
		name := strings.TrimSpace(tabular.Cell(row, nameCol))
		// A named row with an empty SKU is kept and matches feed rows that
		// carry no article.
		if sku == "" && name == "" {
			continue
		}
		if _, dup := seen[sku]; dup {
			result.Duplicates++
			continue
		}
		seen[sku] = struct{}{}
		result.Rows = append(result.Rows, domain.ProductLookupRow{SellerSKU: sku, ProductName: name})
	}
	return result, nil
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
