package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/normalize"
	"SalesAnalytics/internal/ports"
)

func newTestFetcher(client *http.Client, opts Options) *Fetcher {
	return NewFetcher(client, normalize.New(normalize.SchemaWBStatisticsV1, time.UTC), opts, nil)
}

func serveBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func kindOf(t *testing.T, err error) domain.FailureKind {
	t.Helper()
	var se *domain.SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected *domain.SourceError, got %T: %v", err, err)
	}
	return se.Kind
}

func TestFetchNormalizesRecords(t *testing.T) {
	t.Parallel()

	body := `[
		{"srid":"1","date":"2024-01-01T10:00:00","supplierArticle":"AA","brand":"Nike","totalPrice":100},
		5,
		null,
		{"srid":"R2","date":"bad date","supplierArticle":"B","totalPrice":50},
		{"srid":"3","isCancel":true}
	]`
	srv := serveBody(t, http.StatusOK, body)

	res, err := newTestFetcher(srv.Client(), Options{}).Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(res.Rows))
	}
	if res.Stats.Records != 5 || res.Stats.Skipped != 2 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
	if res.Stats.SkipReasons[ReasonNotObject] != 1 || res.Stats.SkipReasons[ReasonNullRecord] != 1 {
		t.Fatalf("unexpected skip reasons: %v", res.Stats.SkipReasons)
	}
	if res.Stats.WarningsByField[domain.FieldTimestamp] != 1 {
		t.Fatalf("expected a timestamp warning, got %v", res.Stats.WarningsByField)
	}
	if !res.Stats.Columns[domain.FieldTimestamp] {
		t.Fatalf("timestamp column should be observed")
	}
	if res.Rows[0].Brand != "nike" || res.Rows[0].SellerSKU != "A" {
		t.Fatalf("row not normalized: %+v", res.Rows[0])
	}
	if !res.Rows[1].IsReturn || res.Rows[1].Timestamp != nil {
		t.Fatalf("second row should be a return without timestamp: %+v", res.Rows[1])
	}
	if !res.Rows[2].IsCancelled {
		t.Fatalf("third row should be cancelled")
	}
	if res.Bytes != int64(len(body)) {
		t.Fatalf("expected %d bytes read, got %d", len(body), res.Bytes)
	}
	if res.Status() != domain.StatusOK {
		t.Fatalf("expected ok status")
	}
}

func TestFetchEmptyBodyIsNotAnError(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "  \n", "[]"} {
		srv := serveBody(t, http.StatusOK, body)
		res, err := newTestFetcher(srv.Client(), Options{}).Fetch(context.Background(), srv.URL, nil)
		if err != nil {
			t.Fatalf("body %q: unexpected error %v", body, err)
		}
		if res.Status() != domain.StatusEmpty || len(res.Rows) != 0 {
			t.Fatalf("body %q: expected empty result, got %+v", body, res)
		}
	}
}

func TestFetchFailureKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   domain.FailureKind
	}{
		{name: "malformed", status: http.StatusOK, body: `[{"srid":"1"},{"srid":`, want: domain.KindDecode},
		{name: "not array", status: http.StatusOK, body: `{"srid":"1"}`, want: domain.KindDecode},
		{name: "garbage", status: http.StatusOK, body: `<html>`, want: domain.KindDecode},
		{name: "trailing garbage", status: http.StatusOK, body: `[{"srid":"1"}] garbage`, want: domain.KindDecode},
		{name: "second array", status: http.StatusOK, body: `[{"srid":"1"}][{"srid":"2"}]`, want: domain.KindDecode},
		{name: "encoding", status: http.StatusOK, body: "[{\"brand\":\"\xff\xfe\"}]", want: domain.KindEncoding},
		{name: "server error", status: http.StatusBadGateway, body: `oops`, want: domain.KindTransient},
		{name: "not found", status: http.StatusNotFound, body: ``, want: domain.KindTransient},
	}

	for _, tc := range cases {
		srv := serveBody(t, tc.status, tc.body)
		res, err := newTestFetcher(srv.Client(), Options{}).Fetch(context.Background(), srv.URL, nil)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if got := kindOf(t, err); got != tc.want {
			t.Fatalf("%s: expected kind %s, got %s (%v)", tc.name, tc.want, got, err)
		}
		if len(res.Rows) != 0 {
			t.Fatalf("%s: failed fetch must not return partial rows", tc.name)
		}
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"ftp://example.com/x.json", "not a url", "/relative/path"} {
		_, err := newTestFetcher(nil, Options{}).Fetch(context.Background(), u, nil)
		if err == nil {
			t.Fatalf("%q: expected error", u)
		}
		if got := kindOf(t, err); got != domain.KindConfig {
			t.Fatalf("%q: expected config kind, got %s", u, got)
		}
	}
}

func TestFetchConnectionRefusedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestFetcher(nil, Options{}).Fetch(context.Background(), url, nil)
	if got := kindOf(t, err); got != domain.KindTransient {
		t.Fatalf("expected transient, got %s", got)
	}
}

func TestFetchOversizeWarningIsNotFatal(t *testing.T) {
	t.Parallel()

	body := `[{"srid":"1"},{"srid":"2"}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "999999999")
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	res, err := newTestFetcher(srv.Client(), Options{OversizeThreshold: 1 << 20}).Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("oversize feed must still load: %v", err)
	}
	if !res.Oversize {
		t.Fatalf("expected oversize flag")
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
}

func TestFetchLogsSchema(t *testing.T) {
	t.Parallel()

	srv := serveBody(t, http.StatusOK, `[{"srid":"1"}]`)
	var buf bytes.Buffer
	f := NewFetcher(srv.Client(), normalize.New(normalize.SchemaWBStatisticsV1, time.UTC), Options{},
		slog.New(slog.NewTextHandler(&buf, nil)))

	if _, err := f.Fetch(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !strings.Contains(buf.String(), "schema=wb-statistics-v1") {
		t.Fatalf("load summary should name the schema:\n%s", buf.String())
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []ports.Progress
}

func (r *recordingSink) OnProgress(p ports.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recordingSink) last() (ports.Progress, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ports.Progress{}, 0
	}
	return r.events[len(r.events)-1], len(r.events)
}

func TestFetchReportsProgressInChunks(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 200; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"srid":"%d","supplierArticle":"SKU%d"}`, i, i)
	}
	b.WriteString("]")
	body := b.String()
	srv := serveBody(t, http.StatusOK, body)

	sink := &recordingSink{}
	res, err := newTestFetcher(srv.Client(), Options{ChunkSize: 512}).Fetch(context.Background(), srv.URL, sink)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(res.Rows) != 200 {
		t.Fatalf("expected 200 rows, got %d", len(res.Rows))
	}

	last, count := sink.last()
	if count < len(body)/512 {
		t.Fatalf("expected at least %d progress events, got %d", len(body)/512, count)
	}
	if last.Bytes != int64(len(body)) || last.Total != int64(len(body)) {
		t.Fatalf("unexpected final progress: %+v", last)
	}
	if frac, ok := last.Fraction(); !ok || frac != 1 {
		t.Fatalf("expected complete fraction, got %v %v", frac, ok)
	}

	for _, ev := range sink.events {
		if ev.Bytes > ev.Total {
			t.Fatalf("progress overshoots total: %+v", ev)
		}
	}
}

func TestStreamYieldsBeforeBodyIsConsumed(t *testing.T) {
	t.Parallel()

	const records = 40000
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("["))
		for i := 0; i < records; i++ {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			fmt.Fprintf(w, `{"srid":"%d","supplierArticle":"SKU-%08d","brand":"brand","totalPrice":%d}`, i, i, i)
		}
		_, _ = w.Write([]byte("]"))
	}))
	defer srv.Close()

	const chunk = 4 << 10
	sink := &recordingSink{}
	f := newTestFetcher(srv.Client(), Options{ChunkSize: chunk})

	seen := 0
	var readAtFirstRow int64
	for outcome, err := range f.Stream(context.Background(), srv.URL, sink) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if seen == 0 {
			p, _ := sink.last()
			readAtFirstRow = p.Bytes
		}
		if outcome.Status == domain.RowAccepted {
			seen++
		}
	}

	final, _ := sink.last()
	if seen != records {
		t.Fatalf("expected %d rows, got %d", records, seen)
	}
	if final.Bytes < 2<<20 {
		t.Fatalf("test body too small to prove anything: %d bytes", final.Bytes)
	}
	if readAtFirstRow > 4*chunk {
		t.Fatalf("first row yielded after reading %d bytes; decoder buffers too much", readAtFirstRow)
	}
}

func TestStreamStopsWhenConsumerBreaks(t *testing.T) {
	t.Parallel()

	srv := serveBody(t, http.StatusOK, `[{"srid":"1"},{"srid":"2"},{"srid":"3"}]`)
	f := newTestFetcher(srv.Client(), Options{})

	n := 0
	for _, err := range f.Stream(context.Background(), srv.URL, nil) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected to stop after one row, got %d", n)
	}
}

func TestLogProgressThrottles(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewLogProgress(slog.New(slog.NewTextHandler(&buf, nil)))
	for i := int64(1); i <= 100; i++ {
		sink.OnProgress(ports.Progress{URL: "u", Bytes: i, Total: 100})
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 11 {
		t.Fatalf("expected 11 progress lines (0%%..100%% in 10%% steps), got %d:\n%s", lines, buf.String())
	}

	var nilSink *LogProgress
	nilSink.OnProgress(ports.Progress{URL: "u", Bytes: 1})
}
