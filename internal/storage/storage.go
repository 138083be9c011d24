package storage

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/sentiment"
	"github.com/FranksOps/brandwatch/internal/serp"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("storage: run not found")

// RunSummary holds the headline counts shown in run listings.
type RunSummary struct {
	TotalSearchResults int  `json:"total_search_results"`
	TotalScrapedItems  int  `json:"total_scraped_items"`
	PlaceholderItems   int  `json:"placeholder_items"`
	HasSentiment       bool `json:"has_sentiment_analysis"`
	HasReport          bool `json:"has_report"`
}

// Run is one persisted brand-monitoring run.
type Run struct {
	ID            string            `json:"id"`
	Brand         string            `json:"brand"`
	CreatedAt     time.Time         `json:"created_at"`
	SearchResults []serp.Result     `json:"search_results"`
	ScrapedData   []dataset.Record  `json:"scraped_data"`
	Sentiment     *sentiment.Score  `json:"sentiment,omitempty"`
	Report        string            `json:"report,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Summary       RunSummary        `json:"summary"`
}

// Summarize recomputes r.Summary from the run contents.
func (r *Run) Summarize() {
	s := RunSummary{
		TotalSearchResults: len(r.SearchResults),
		TotalScrapedItems:  len(r.ScrapedData),
		HasSentiment:       r.Sentiment != nil,
		HasReport:          r.Report != "",
	}
	for _, rec := range r.ScrapedData {
		if rec.Provenance().Synthetic() {
			s.PlaceholderItems++
		}
	}
	r.Summary = s
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	// Brand matches case-insensitively.
	Brand  string
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend stores runs. Query returns newest first. Saving an existing ID
// replaces the stored run.
type Backend interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	Query(ctx context.Context, filter Filter) ([]*Run, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
