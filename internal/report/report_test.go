package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/provenance"
	"github.com/FranksOps/brandwatch/internal/sentiment"
	"github.com/FranksOps/brandwatch/internal/serp"
	"github.com/FranksOps/brandwatch/internal/storage"
)

func testRun() *storage.Run {
	return &storage.Run{
		ID:        "run-1",
		Brand:     "Acme",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		SearchResults: []serp.Result{
			{Title: "Acme <script>", Link: "https://www.news.example/a", Snippet: "Acme is great", Source: provenance.Fallback},
			{Title: "Acme again", Link: "https://news.example/b", Snippet: "More | Acme", Source: provenance.Fallback},
			{Title: "Acme blog", Link: "https://blog.example/c", Source: provenance.Feed},
		},
		ScrapedData: dataset.Placeholders([]string{"https://x.com/1", "https://x.com/2"}, dataset.X),
		Sentiment: &sentiment.Score{
			Label: sentiment.Negative, Score: -0.4, Confidence: 0.6, Source: "lexicon",
			NegativeMentions: []string{"Acme broke again"},
		},
	}
}

func TestBuild(t *testing.T) {
	s := Build(testRun())

	if s.TotalSearchResults != 3 || s.TotalScrapedItems != 2 || s.PlaceholderItems != 2 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.SearchBySource["fallback"] != 2 || s.SearchBySource["feed"] != 1 {
		t.Errorf("unexpected source counts %v", s.SearchBySource)
	}
	if s.RecordsBySource["placeholder"] != 2 {
		t.Errorf("unexpected record sources %v", s.RecordsBySource)
	}
	if len(s.TopDomains) != 2 || s.TopDomains[0] != (DomainCount{"news.example", 2}) {
		t.Errorf("unexpected domains %v", s.TopDomains)
	}

	joined := strings.Join(s.Recommendations, "\n")
	for _, want := range []string{"negative mentions", "BRIGHT_DATA_USERNAME", "BRIGHT_DATA_API_KEY"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected recommendation mentioning %s, got %v", want, s.Recommendations)
		}
	}
	if !strings.Contains(strings.Join(s.Findings, "\n"), "2 of 2 scraped item(s) are placeholders") {
		t.Errorf("expected placeholder finding, got %v", s.Findings)
	}
}

func TestBuild_EmptyRun(t *testing.T) {
	s := Build(&storage.Run{Brand: "Nobody"})
	if s.TotalSearchResults != 0 || len(s.Findings) == 0 || len(s.Recommendations) == 0 {
		t.Errorf("unexpected empty summary %+v", s)
	}
	if !strings.Contains(s.ExecutiveSummary, "not analyzed") {
		t.Errorf("unexpected executive summary %q", s.ExecutiveSummary)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Build(testRun())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["total_search_results"] != float64(3) || decoded["brand"] != "Acme" {
		t.Errorf("unexpected JSON %v", decoded)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, Build(testRun())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Brandwatch Report: Acme", "Search Results:  3", "negative (score -0.40, confidence 60%, via lexicon)", "news.example: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text to contain %q\n%s", want, out)
		}
	}
}

func TestWriteMarkdown(t *testing.T) {
	md, err := Markdown(Build(testRun()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"# Brand Monitoring Report: Acme",
		"## Executive Summary",
		"## Brand Mention Overview",
		"## Sentiment Analysis Summary",
		"## Key Findings",
		"## Recommendations",
		"## Next Steps",
		"1. [Acme &lt;script&gt;](https://www.news.example/a): Acme is great",
		`More \| Acme`,
		"- Acme broke again",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, md)
		}
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, Build(testRun())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<title>Brandwatch Report: Acme</title>") {
		t.Errorf("expected HTML title")
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("expected scraped titles to be escaped")
	}
	if !strings.Contains(out, `class="stat-val negative"`) {
		t.Errorf("expected sentiment card")
	}
}

func TestWriteDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.docx")
	if err := WriteDocx(path, Build(testRun())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file: %v", err)
	}
	// A .docx is a zip archive.
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Errorf("expected zip header, got %q", data[:4])
	}
}
