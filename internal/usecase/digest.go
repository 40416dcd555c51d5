package usecase

import (
	"fmt"
	"strings"
	"time"

	"SalesAnalytics/internal/domain"
)

// BuildDigest formats a load report as plain text for operator channels.
func BuildDigest(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sales load %s: %s\n", r.StartedAt.Format(time.DateTime), r.Status())
	fmt.Fprintf(&b, "Rows: %d (matched %d, without name %d)\n", r.Merge.Matched+r.Merge.Unmatched, r.Merge.Matched, r.Merge.Unmatched)
	if r.Stats.Skipped > 0 || r.Stats.Warnings > 0 {
		fmt.Fprintf(&b, "Skipped records: %d, field warnings: %d\n", r.Stats.Skipped, r.Stats.Warnings)
	}

	for _, f := range r.Feeds {
		name := f.Channel
		if name == "" {
			name = "feed"
		}
		line := fmt.Sprintf("- %s: %s, %d rows", name, f.Status, f.Rows)
		if f.FromCache {
			line += " (cached)"
		}
		if f.Oversize {
			line += ", very large"
		}
		b.WriteString(line + "\n")
	}

	switch {
	case r.Lookup.Status == "":
		b.WriteString("- product names: skipped\n")
	case r.Lookup.Status == domain.StatusFailed:
		b.WriteString("- product names: failed\n")
	default:
		fmt.Fprintf(&b, "- product names: %d", r.Lookup.Rows)
		if r.Lookup.Duplicates > 0 {
			fmt.Fprintf(&b, " (%d repeated SKUs ignored)", r.Lookup.Duplicates)
		}
		b.WriteString("\n")
	}

	for _, f := range r.Failures {
		fmt.Fprintf(&b, "! %s\n", f.UserMessage())
	}
	if r.SnapshotErr != nil {
		b.WriteString("! Snapshot was not saved.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
