// Package password implements the ZIP password candidate resolver (§4.K):
// given a ZIP's identifying attributes, return a de-duplicated,
// priority-ordered list of plaintexts to try.
package password

import (
	"context"
	"strings"

	"kenshin-ingest/internal/db"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"

	"github.com/cespare/xxhash/v2"
)

type Resolver struct {
	store *db.PasswordStore
}

func NewResolver(store *db.PasswordStore) *Resolver {
	return &Resolver{store: store}
}

// Candidates returns passwords to try, in scope-priority order, with
// empty/whitespace-only entries and duplicates removed. The returned slice
// never includes a "try with no password" sentinel — callers that need
// one append it themselves (§4.F step 3).
func (r *Resolver) Candidates(ctx context.Context, facilityCode, facilityFolderName, zipName, zipSHA256 string) ([]string, error) {
	rows, err := r.store.CandidatesFor(ctx, facilityCode, facilityFolderName, zipName, zipSHA256)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]bool, len(rows))
	out := make([]string, 0, len(rows))
	for _, c := range rows {
		pw := strings.TrimSpace(c.PasswordText)
		if pw == "" {
			continue
		}
		key := xxhash.Sum64String(pw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, pw)
	}
	metrics.PasswordAttemptsTotal.WithLabelValues("candidates_resolved").Add(float64(len(out)))
	return out, nil
}

// ScopeRank exposes §4.K's fixed scope ordering for anything that needs to
// reason about it outside of the SQL ORDER BY (e.g. tests, diagnostics).
func ScopeRank(s model.PasswordScope) int {
	return model.ScopePriority(s)
}
