//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/brandwatch/internal/app"
	"github.com/FranksOps/brandwatch/internal/config"
	"github.com/FranksOps/brandwatch/internal/dashboard"
	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/pipeline"
	"github.com/FranksOps/brandwatch/internal/provenance"
	"github.com/FranksOps/brandwatch/internal/sentiment"
)

// newApp loads the default config, applies overrides and wires the app.
func newApp(t *testing.T, overrides map[string]any) *app.App {
	t.Helper()
	t.Chdir(t.TempDir())

	v := config.New()
	for _, k := range []string{"search.username", "search.password", "scrape.api_key", "sentiment.api_key", "sentiment.base_url"} {
		v.Set(k, "")
	}
	v.Set("storage.backend", "sqlite")
	v.Set("storage.location", filepath.Join(t.TempDir(), "brandwatch.db"))
	v.Set("collect.fingerprint", "go")
	v.Set("collect.requests_per_second", 0)
	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg, err := config.Load(v, "")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(cfg, logger)
	if err != nil {
		t.Fatalf("failed to wire app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func searchServer(t *testing.T, links ...string) *httptest.Server {
	t.Helper()
	var b strings.Builder
	b.WriteString("<html><body>")
	for i, l := range links {
		fmt.Fprintf(&b, `<div class="result results_links"><h2 class="result__title"><a href="%s">Acme result %d</a></h2>`+
			`<a class="result__snippet">People say Acme is great.</a></div>`, l, i+1)
	}
	b.WriteString("</body></html>")
	page := b.String()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/review", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Acme review</title></head><body>
			<p>We tested the Acme robot for a month. Acme support was excellent.</p>
			<p>Unrelated paragraph.</p></body></html>`)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><body>cf-browser-verification</body></html>`)
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
		t.Error("robots.txt disallowed path was fetched")
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func datasetServer(t *testing.T, triggers *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /datasets/v3/trigger", func(w http.ResponseWriter, r *http.Request) {
		triggers.Add(1)
		if r.URL.Query().Get("dataset_id") != dataset.DefaultDatasetIDs[dataset.YouTube] {
			t.Errorf("unexpected dataset %s", r.URL.Query().Get("dataset_id"))
		}
		fmt.Fprint(w, `{"snapshot_id":"s_1"}`)
	})
	mux.HandleFunc("GET /datasets/v3/progress/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ready"}`)
	})
	mux.HandleFunc("GET /datasets/v3/snapshot/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"url":"https://www.youtube.com/watch?v=acme","title":"Acme unboxing","description":"Acme is great"}]`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func chatServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := `{"sentiment":"positive","score":0.6,"confidence":0.9,"positive_mentions":["excellent support"],"negative_mentions":[],"summary":"Praise."}`
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestIntegration_FullRun(t *testing.T) {
	site := siteServer(t)
	search := searchServer(t,
		site.URL+"/review",
		site.URL+"/blocked",
		site.URL+"/private",
		"https://www.youtube.com/watch?v=acme",
	)
	var triggers atomic.Int32
	api := datasetServer(t, &triggers)
	chat := chatServer(t)

	a := newApp(t, map[string]any{
		"search.fallback_endpoint": search.URL,
		"scrape.api_key":           "key",
		"scrape.base_url":          api.URL,
		"scrape.poll_interval":     10 * time.Millisecond,
		"sentiment.api_key":        "key",
		"sentiment.base_url":       chat.URL + "/v1/",
	})
	ctx := context.Background()
	store, err := a.Store(ctx)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	var stages []string
	run, err := a.Monitor(store).Run(ctx, pipeline.Options{
		Brand:     "Acme",
		Collect:   true,
		Scrape:    true,
		Platform:  dataset.YouTube,
		Sentiment: true,
		Report:    true,
		Save:      true,
		Progress:  func(s string) { stages = append(stages, s) },
	})
	if err != nil {
		t.Fatalf("monitor run failed: %v", err)
	}

	if len(run.SearchResults) != 4 || run.SearchResults[0].Source != provenance.Fallback {
		t.Errorf("unexpected search results %+v", run.SearchResults)
	}
	if run.Metadata["pages_fetched"] != "3" {
		t.Errorf("expected 3 collected pages, got %q", run.Metadata["pages_fetched"])
	}
	if triggers.Load() != 1 {
		t.Errorf("expected one youtube scrape job, got %d", triggers.Load())
	}

	var direct, primary int
	for _, rec := range run.ScrapedData {
		switch rec.Provenance() {
		case provenance.Direct:
			direct++
			if !strings.Contains(rec.Text(), "excellent") {
				t.Errorf("expected page text in direct record, got %v", rec)
			}
		case provenance.Primary:
			primary++
		default:
			t.Errorf("unexpected record provenance %v", rec)
		}
	}
	if direct != 1 || primary != 1 {
		t.Errorf("expected 1 direct and 1 primary record, got %d and %d", direct, primary)
	}

	if run.Sentiment == nil || run.Sentiment.Label != sentiment.Positive || run.Sentiment.Source != "llm" {
		t.Errorf("unexpected sentiment %+v", run.Sentiment)
	}
	if !strings.Contains(run.Report, "Executive Summary") {
		t.Errorf("expected markdown report, got %q", run.Report)
	}
	if len(stages) != 6 {
		t.Errorf("expected 6 progress stages, got %v", stages)
	}

	srv, err := dashboard.New(dashboard.Config{Store: store, Logger: a.Logger})
	if err != nil {
		t.Fatalf("failed to build dashboard: %v", err)
	}
	dash := httptest.NewServer(srv.Handler())
	defer dash.Close()

	resp, err := http.Get(dash.URL + "/api/results/" + run.ID)
	if err != nil {
		t.Fatalf("dashboard request failed: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Brand   string `json:"brand"`
			Summary struct {
				TotalScrapedItems int  `json:"total_scraped_items"`
				HasSentiment      bool `json:"has_sentiment_analysis"`
			} `json:"summary"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode dashboard response: %v", err)
	}
	if !body.Success || body.Data.Brand != "Acme" || body.Data.Summary.TotalScrapedItems != 2 || !body.Data.Summary.HasSentiment {
		t.Errorf("unexpected stored run %+v", body)
	}
}

func TestIntegration_OfflineDegradation(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	a := newApp(t, map[string]any{"search.fallback_endpoint": failing.URL})
	if _, ok := a.Analyzer.(sentiment.Lexicon); !ok {
		t.Fatalf("expected lexicon analyzer without a key, got %T", a.Analyzer)
	}

	urls := []string{"https://www.linkedin.com/posts/acme-1", "https://www.instagram.com/p/acme"}
	run, err := a.Monitor(nil).Run(context.Background(), pipeline.Options{
		Brand:      "Acme",
		Scrape:     true,
		ScrapeURLs: urls,
		Sentiment:  true,
		Report:     true,
	})
	if err != nil {
		t.Fatalf("monitor run failed: %v", err)
	}

	if len(run.SearchResults) != 0 {
		t.Errorf("expected no search results, got %d", len(run.SearchResults))
	}
	if len(run.ScrapedData) != len(urls) || run.Summary.PlaceholderItems != len(urls) {
		t.Fatalf("expected one placeholder per url, got %+v", run.Summary)
	}
	if _, ok := run.ScrapedData[0]["headline"]; !ok {
		t.Errorf("expected linkedin placeholder shape, got %v", run.ScrapedData[0])
	}
	if run.Sentiment == nil || !run.Sentiment.SyntheticOnly || run.Sentiment.Confidence > sentiment.PlaceholderConfidenceCap {
		t.Errorf("expected capped placeholder-only sentiment, got %+v", run.Sentiment)
	}
	if !strings.Contains(run.Report, "BRIGHT_DATA_API_KEY") {
		t.Errorf("expected credential recommendation in report")
	}
}
