package serp

import (
	"context"
	"errors"

	"github.com/FranksOps/brandwatch/internal/provenance"
)

var (
	// ErrMissingCredentials is returned by providers that need credentials they were not given.
	ErrMissingCredentials = errors.New("serp: missing credentials")
	// ErrRateLimited is returned when the provider asks the client to back off.
	ErrRateLimited = errors.New("serp: rate limited")
	// ErrBadStatus is returned for any unexpected HTTP status.
	ErrBadStatus = errors.New("serp: unexpected status")
	// ErrMalformedResponse is returned when the provider body cannot be mapped.
	ErrMalformedResponse = errors.New("serp: malformed response")
)

// Result is a single search hit, independent of the provider that produced it.
type Result struct {
	Title   string            `json:"title"`
	Link    string            `json:"link"`
	Snippet string            `json:"snippet"`
	Source  provenance.Source `json:"source"`
}

// SERPProvider abstracts a search engine provider. Results keep the
// provider's ranking and never exceed limit.
type SERPProvider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	return limit
}

func truncate(results []Result, limit int) []Result {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
