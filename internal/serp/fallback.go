package serp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/FranksOps/brandwatch/internal/metrics"
)

// Fallback queries the primary provider and, when it fails or comes back
// empty, the secondary one. Search never returns an error: total failure
// yields an empty slice.
type Fallback struct {
	primary   SERPProvider
	secondary SERPProvider
	logger    *slog.Logger
}

// NewFallback chains two providers. Either may be nil.
func NewFallback(primary, secondary SERPProvider, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Search returns at most limit results (limit below 1 is treated as 1).
func (f *Fallback) Search(ctx context.Context, query string, limit int) []Result {
	limit = clampLimit(limit)

	if f.primary != nil {
		results, err := f.try(ctx, f.primary, query, limit)
		switch {
		case err == nil && len(results) > 0:
			return results
		case errors.Is(err, ErrMissingCredentials):
			f.logger.Info("primary search provider not configured", "provider", f.primary.Name())
		case err != nil:
			f.logger.Warn("primary search failed, using fallback", "provider", f.primary.Name(), "err", err)
		default:
			f.logger.Warn("primary search returned no results, using fallback", "provider", f.primary.Name())
		}
	}

	if f.secondary != nil {
		results, err := f.try(ctx, f.secondary, query, limit)
		if err == nil {
			return results
		}
		f.logger.Error("all search providers failed", "provider", f.secondary.Name(), "query", query, "err", err)
		return []Result{}
	}

	f.logger.Error("no search provider produced results", "query", query)
	return []Result{}
}

func (f *Fallback) try(ctx context.Context, p SERPProvider, query string, limit int) ([]Result, error) {
	results, err := p.Search(ctx, query, limit)
	switch {
	case errors.Is(err, ErrMissingCredentials):
		metrics.RecordSearch(p.Name(), "unconfigured")
		return nil, err
	case err != nil:
		metrics.RecordSearch(p.Name(), "error")
		return nil, err
	case len(results) == 0:
		metrics.RecordSearch(p.Name(), "empty")
		return []Result{}, nil
	}
	metrics.RecordSearch(p.Name(), "ok")
	f.logger.Info("search completed", "provider", p.Name(), "count", len(results))
	return truncate(results, limit), nil
}
