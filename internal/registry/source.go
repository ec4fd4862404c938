// Package registry implements the source adapters that turn raw
// ClinicalTrials.gov and ISRCTN payloads into canonical trial records.
package registry

import (
	"context"
	"strings"

	"github.com/sells-group/trialwatch-cli/internal/fetcher"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

// FetchResult holds the normalized records from one source plus the skips
// accumulated while normalizing.
type FetchResult struct {
	Records []trial.Record
	Skips   trial.SkipCounts
}

// Source produces a finite sequence of normalized trial records. Pagination
// and field mapping are the source's own business; callers see only records
// and skip counts.
type Source interface {
	// Name returns the source tag written into each record.
	Name() trial.Source

	// Fetch downloads all pages for the configured watchlist query and
	// normalizes them. An error means the source produced nothing usable
	// after its internal retry policy; callers treat it as fetch-fatal for
	// this source only.
	Fetch(ctx context.Context, f fetcher.Fetcher) (*FetchResult, error)
}

// buildQuery renders the watchlist terms and conditions as the boolean
// expression both registries accept: (t1 OR t2) AND (c1 OR c2).
func buildQuery(terms, conditions []string) string {
	quote := func(ss []string) []string {
		out := make([]string, 0, len(ss))
		for _, s := range ss {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if strings.ContainsRune(s, ' ') {
				s = `"` + s + `"`
			}
			out = append(out, s)
		}
		return out
	}

	termClause := strings.Join(quote(terms), " OR ")
	condClause := strings.Join(quote(conditions), " OR ")
	switch {
	case termClause == "":
		return condClause
	case condClause == "":
		return termClause
	default:
		return "(" + termClause + ") AND (" + condClause + ")"
	}
}
