// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/provenance"
	"github.com/FranksOps/brandwatch/internal/sentiment"
	"github.com/FranksOps/brandwatch/internal/serp"
	"github.com/FranksOps/brandwatch/internal/storage"
)

// NewRun builds a fully populated run. Timestamps are truncated to the
// millisecond so every backend round-trips them exactly.
func NewRun(id, brand string, created time.Time) *storage.Run {
	r := &storage.Run{
		ID:        id,
		Brand:     brand,
		CreatedAt: created.UTC().Truncate(time.Millisecond),
		SearchResults: []serp.Result{
			{Title: brand + " news", Link: "https://news.example/" + id, Snippet: "All about " + brand, Source: provenance.Fallback},
		},
		ScrapedData: append(
			[]dataset.Record{{"url": "https://example.com/" + id, "markdown": "# " + brand, "provenance": "direct"}},
			dataset.Placeholders([]string{"https://x.com/" + id}, dataset.X)...,
		),
		Sentiment: &sentiment.Score{Label: sentiment.Positive, Score: 0.5, Confidence: 0.4, Source: "lexicon"},
		Report:    "# Report for " + brand,
		Metadata:  map[string]string{"platform": "x"},
	}
	r.Summarize()
	return r
}

// Run exercises b through the full Backend contract. b must start empty.
func Run(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	r1 := NewRun("run-1", "Acme", now.Add(-2*time.Hour))
	r2 := NewRun("run-2", "Globex", now.Add(-1*time.Hour))
	r3 := NewRun("run-3", "acme", now)
	for _, r := range []*storage.Run{r1, r2, r3} {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Failed to save %s: %v", r.ID, err)
		}
	}

	got, err := b.Get(ctx, "run-2")
	if err != nil {
		t.Fatalf("Failed to get run-2: %v", err)
	}
	if got.Brand != "Globex" || !got.CreatedAt.Equal(r2.CreatedAt) {
		t.Errorf("unexpected run %+v", got)
	}
	if got.Summary != r2.Summary {
		t.Errorf("summary mismatch: %+v vs %+v", got.Summary, r2.Summary)
	}
	if len(got.ScrapedData) != 2 || got.ScrapedData[1].Provenance() != provenance.Placeholder {
		t.Errorf("scraped data not preserved: %v", got.ScrapedData)
	}
	if got.Sentiment == nil || got.Sentiment.Label != sentiment.Positive || got.Report != r2.Report {
		t.Errorf("analysis not preserved: %+v", got)
	}
	if len(got.SearchResults) != 1 || got.SearchResults[0].Source != provenance.Fallback {
		t.Errorf("search results not preserved: %v", got.SearchResults)
	}

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "run-3" || all[2].ID != "run-1" {
		t.Fatalf("expected newest first, got %v", runIDs(all))
	}

	brand, err := b.Query(ctx, storage.Filter{Brand: "ACME"})
	if err != nil {
		t.Fatalf("Failed to query by brand: %v", err)
	}
	if len(brand) != 2 {
		t.Errorf("expected 2 acme runs, got %v", runIDs(brand))
	}

	since := now.Add(-90 * time.Minute)
	recent, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Failed to query by since: %v", err)
	}
	if len(recent) != 2 || recent[1].ID != "run-2" {
		t.Errorf("unexpected since result %v", runIDs(recent))
	}

	paged, err := b.Query(ctx, storage.Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Failed to page: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "run-2" {
		t.Errorf("unexpected page %v", runIDs(paged))
	}

	// Re-saving replaces.
	r2.Report = "# Updated"
	r2.Summarize()
	if err := b.Save(ctx, r2); err != nil {
		t.Fatalf("Failed to re-save: %v", err)
	}
	if got, err := b.Get(ctx, "run-2"); err != nil || got.Report != "# Updated" {
		t.Errorf("expected updated report, got %v (%v)", got, err)
	}
	if all, _ := b.Query(ctx, storage.Filter{}); len(all) != 3 {
		t.Errorf("re-save should not duplicate, got %v", runIDs(all))
	}

	if err := b.Delete(ctx, "run-1"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := b.Get(ctx, "run-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected deleted run to be gone, got %v", err)
	}
	if err := b.Delete(ctx, "run-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if all, _ := b.Query(ctx, storage.Filter{}); len(all) != 2 {
		t.Errorf("expected 2 runs after delete, got %v", runIDs(all))
	}

	// An ID that is a suffix of another must not reach the other run.
	long := NewRun("x_1", "Acme", now)
	if err := b.Save(ctx, long); err != nil {
		t.Fatalf("Failed to save x_1: %v", err)
	}
	if _, err := b.Get(ctx, "1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for suffix id, got %v", err)
	}
	if err := b.Delete(ctx, "1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting suffix id, got %v", err)
	}
	if err := b.Save(ctx, NewRun("1", "Acme", now)); err != nil {
		t.Fatalf("Failed to save 1: %v", err)
	}
	for _, id := range []string{"1", "x_1"} {
		if got, err := b.Get(ctx, id); err != nil || got.ID != id {
			t.Errorf("expected run %s, got %v (%v)", id, got, err)
		}
	}
	if err := b.Delete(ctx, "1"); err != nil {
		t.Fatalf("Failed to delete 1: %v", err)
	}
	if got, err := b.Get(ctx, "x_1"); err != nil || got.ID != "x_1" {
		t.Errorf("deleting 1 must keep x_1, got %v (%v)", got, err)
	}
}

func runIDs(runs []*storage.Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
