package merge

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"SalesAnalytics/internal/domain"
)

func TestLeftJoinAttachesNames(t *testing.T) {
	t.Parallel()

	sales := []domain.SalesRow{
		{OrderID: "1", SellerSKU: "A"},
		{OrderID: "2", SellerSKU: "B"},
		{OrderID: "3", SellerSKU: "A"},
		{OrderID: "4", SellerSKU: ""},
	}
	lookup := []domain.ProductLookupRow{{SellerSKU: "A", ProductName: "Shirt"}}

	rows, stats, err := LeftJoin(sales, lookup)
	if err != nil {
		t.Fatalf("LeftJoin error: %v", err)
	}
	if stats.Matched != 2 || stats.Unmatched != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if rows[0].ProductName == nil || *rows[0].ProductName != "Shirt" {
		t.Fatalf("row 0 should be matched: %+v", rows[0])
	}
	if rows[1].ProductName != nil || rows[3].ProductName != nil {
		t.Fatalf("unmatched rows must have nil product name")
	}
	for i := range sales {
		if rows[i].OrderID != sales[i].OrderID {
			t.Fatalf("order not preserved at %d", i)
		}
	}
}

func TestLeftJoinRejectsDuplicateLookupKeys(t *testing.T) {
	t.Parallel()

	lookup := []domain.ProductLookupRow{
		{SellerSKU: "A", ProductName: "Shirt"},
		{SellerSKU: "A", ProductName: "Other"},
	}
	_, _, err := LeftJoin([]domain.SalesRow{{SellerSKU: "A"}}, lookup)
	if !errors.Is(err, ErrManyToOne) {
		t.Fatalf("expected ErrManyToOne, got %v", err)
	}
}

func TestLeftJoinPreservesRowCount(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		sales := make([]domain.SalesRow, rng.IntN(200))
		for i := range sales {
			sales[i].SellerSKU = fmt.Sprintf("S%d", rng.IntN(30))
		}
		var lookup []domain.ProductLookupRow
		for k := 0; k < 30; k++ {
			if rng.IntN(2) == 0 {
				lookup = append(lookup, domain.ProductLookupRow{SellerSKU: fmt.Sprintf("S%d", k), ProductName: "n"})
			}
		}

		rows, stats, err := LeftJoin(sales, lookup)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if len(rows) != len(sales) || stats.Matched+stats.Unmatched != len(sales) {
			t.Fatalf("round %d: row count changed: in=%d out=%d stats=%+v", round, len(sales), len(rows), stats)
		}
	}
}
