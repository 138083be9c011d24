package storage

import (
	"sort"
	"strings"
)

// Match reports whether r passes the brand and since conditions of f.
func (f Filter) Match(r *Run) bool {
	if f.Brand != "" && !strings.EqualFold(strings.TrimSpace(r.Brand), strings.TrimSpace(f.Brand)) {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Apply filters, orders newest first and pages runs in memory. Used by the
// file backends, which cannot push the work down to an engine.
func (f Filter) Apply(runs []*Run) []*Run {
	out := make([]*Run, 0, len(runs))
	for _, r := range runs {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Run{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}
