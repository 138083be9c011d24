package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/provenance"
	"github.com/FranksOps/brandwatch/internal/serp"
	"github.com/FranksOps/brandwatch/internal/storage"
)

const searchPage = `<html><body>
<div class="result results_links">
  <h2 class="result__title"><a href="https://acme.example/launch">Acme launches a great new robot</a></h2>
  <a class="result__snippet">Reviewers say Acme is excellent and reliable.</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a href="https://www.youtube.com/watch?v=acme">Acme robot review</a></h2>
  <a class="result__snippet">An honest look at Acme.</a>
</div>
</body></html>`

// setup isolates a command run: fresh working directory, no provider
// credentials, search answered by a local server, results in a temp dir.
func setup(t *testing.T) string {
	t.Helper()
	t.Chdir(t.TempDir())

	for _, k := range []string{
		"BRIGHT_DATA_USERNAME", "BRIGHT_DATA_PASSWORD", "BRIGHT_DATA_API_KEY",
		"OPENAI_API_KEY", "OPENAI_BASE_URL",
		"BRANDWATCH_SEARCH_USERNAME", "BRANDWATCH_SEARCH_PASSWORD",
		"BRANDWATCH_SCRAPE_API_KEY", "BRANDWATCH_SENTIMENT_API_KEY",
	} {
		t.Setenv(k, "")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	}))
	t.Cleanup(ts.Close)
	t.Setenv("BRANDWATCH_SEARCH_FALLBACK_ENDPOINT", ts.URL)

	results := filepath.Join(t.TempDir(), "results")
	t.Setenv("BRANDWATCH_STORAGE_LOCATION", results)

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	return results
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSearch(t *testing.T) {
	setup(t)

	out, _, err := execute(t, "search", "Acme", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var results []serp.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("unexpected output %q: %v", out, err)
	}
	if len(results) != 2 || results[0].Source != provenance.Fallback {
		t.Errorf("unexpected results %+v", results)
	}

	out, _, err = execute(t, "search", "Acme", "-n", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "1. Acme launches") || strings.Contains(out, "2. ") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestScrape_PlaceholdersWithoutKey(t *testing.T) {
	setup(t)

	out, stderr, err := execute(t, "scrape", "https://www.youtube.com/watch?v=a", "https://example.com/post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var records []dataset.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("unexpected output %q: %v", out, err)
	}
	if len(records) != 2 {
		t.Fatalf("expected one record per url, got %d", len(records))
	}
	for _, r := range records {
		if r.Provenance() != provenance.Placeholder {
			t.Errorf("expected placeholder provenance, got %v", r)
		}
	}
	if _, ok := records[0]["youtuber"]; !ok {
		t.Errorf("expected youtube placeholder shape, got %v", records[0])
	}
	if !strings.Contains(stderr, "placeholder") {
		t.Errorf("expected a placeholder warning, got %q", stderr)
	}

	if _, _, err := execute(t, "scrape"); err == nil {
		t.Error("expected error without urls")
	}
	if _, _, err := execute(t, "scrape", "--param", "novalue", "https://example.com"); err == nil {
		t.Error("expected error for malformed --param")
	}
}

func TestMonitorAndResults(t *testing.T) {
	setup(t)
	docx := filepath.Join(t.TempDir(), "report.docx")

	out, stderr, err := execute(t, "monitor", "Acme", "--format", "markdown", "--docx", docx)
	if err != nil {
		t.Fatalf("unexpected error: %v (stderr %s)", err, stderr)
	}
	if !strings.Contains(out, "Executive Summary") || !strings.Contains(out, "Acme") {
		t.Errorf("unexpected report %q", out)
	}
	if !strings.Contains(stderr, "Saved run") {
		t.Errorf("expected save notice, got %q", stderr)
	}
	if info, err := os.Stat(docx); err != nil || info.Size() == 0 {
		t.Errorf("expected docx report: %v", err)
	}

	out, _, err = execute(t, "results", "list", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var runs []*storage.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("unexpected output %q: %v", out, err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one stored run, got %d", len(runs))
	}
	run := runs[0]
	if run.Brand != "Acme" || run.Summary.TotalSearchResults != 2 || run.Sentiment == nil {
		t.Errorf("unexpected stored run %+v", run)
	}
	if run.Sentiment != nil && run.Sentiment.Source != "lexicon" {
		t.Errorf("expected lexicon sentiment without a key, got %s", run.Sentiment.Source)
	}

	out, _, err = execute(t, "results", "list")
	if err != nil || !strings.Contains(out, run.ID) {
		t.Errorf("expected table row for %s, got %q (%v)", run.ID, out, err)
	}

	out, _, err = execute(t, "results", "show", run.ID)
	if err != nil || !strings.Contains(out, "Brandwatch Report: Acme") {
		t.Errorf("unexpected show output %q (%v)", out, err)
	}

	if _, _, err := execute(t, "results", "delete", run.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := execute(t, "results", "show", run.ID); err == nil {
		t.Error("expected error for deleted run")
	}
}

func TestMonitor_NoSaveOutputFile(t *testing.T) {
	results := setup(t)
	report := filepath.Join(t.TempDir(), "out", "report.json")

	_, _, err := execute(t, "monitor", "Acme", "--no-save", "--no-sentiment", "--format", "json", "--output", report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("expected report file: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("expected JSON report, got %q", data)
	}
	if entries, _ := os.ReadDir(results); len(entries) != 0 {
		t.Errorf("expected nothing saved, found %d files", len(entries))
	}

	if _, _, err := execute(t, "monitor", "Acme", "--no-save", "--format", "pdf"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestInvalidConfig(t *testing.T) {
	setup(t)
	if _, _, err := execute(t, "--storage", "mongo", "results", "list"); err == nil {
		t.Error("expected config validation error")
	}
	if _, _, err := execute(t, "--log-level", "loud", "search", "Acme"); err == nil {
		t.Error("expected invalid log level error")
	}
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"discover_by=url", " limit = 5 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"discover_by": "url", "limit": "5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got, _ := parseParams(nil); got != nil {
		t.Errorf("expected nil map, got %v", got)
	}
	if _, err := parseParams([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestScrape_Site(t *testing.T) {
	setup(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://www.youtube.com/watch?v=1</loc></url>
<url><loc>https://acme.example/blog/post</loc></url>
<url><loc>https://acme.example/blog/other</loc></url>
</urlset>`)
	}))
	defer ts.Close()

	out, _, err := execute(t, "scrape", "--site", ts.URL, "--sitemap-limit", "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var records []dataset.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("unexpected output %q: %v", out, err)
	}
	if len(records) != 2 || records[0].URL() != "https://www.youtube.com/watch?v=1" {
		t.Errorf("unexpected records %v", records)
	}
	if _, ok := records[1]["markdown"]; !ok {
		t.Errorf("expected web placeholder for the blog post, got %v", records[1])
	}
}
