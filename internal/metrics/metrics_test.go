package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCountsAndExposes(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.FetchAttempts.WithLabelValues("feed").Add(3)
	r.FetchFailures.WithLabelValues("feed", "transient").Inc()
	r.RowsNormalized.Add(10)
	r.DatasetRows.Set(10)

	if got := testutil.ToFloat64(r.FetchAttempts.WithLabelValues("feed")); got != 3 {
		t.Fatalf("expected 3 attempts, got %v", got)
	}
	if got := testutil.ToFloat64(r.FetchFailures.WithLabelValues("feed", "transient")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"sales_fetch_attempts_total", "sales_rows_normalized_total 10", "sales_dataset_rows 10"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("scrape output lacks %q:\n%s", want, body)
		}
	}
}
