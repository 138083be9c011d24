// Package pipeline runs one brand-monitoring pass: search, optional feed
// scan, optional direct page collection, optional platform scrape, sentiment,
// report and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/metrics"
	"github.com/FranksOps/brandwatch/internal/report"
	"github.com/FranksOps/brandwatch/internal/scraper"
	"github.com/FranksOps/brandwatch/internal/sentiment"
	"github.com/FranksOps/brandwatch/internal/serp"
	"github.com/FranksOps/brandwatch/internal/storage"
)

// Searcher never fails; an empty slice means nothing was found.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []serp.Result
}

type FeedSource interface {
	Discover(ctx context.Context, brand string, limit int) []serp.Result
}

type Collector interface {
	Collect(ctx context.Context, urls []string) ([]scraper.Document, error)
}

// Scraper never fails; on any error it returns placeholder records.
type Scraper interface {
	Scrape(ctx context.Context, req dataset.Request) []dataset.Record
}

var (
	_ Searcher  = (*serp.Fallback)(nil)
	_ Collector = (*scraper.Collector)(nil)
	_ Scraper   = (*dataset.Runner)(nil)
)

// Stage names reported through Options.Progress.
const (
	StageSearch    = "searching"
	StageFeeds     = "scanning feeds"
	StageCollect   = "collecting pages"
	StageScrape    = "scraping"
	StageSentiment = "analyzing sentiment"
	StageReport    = "generating report"
	StageSave      = "saving"
)

// ErrNoBrand is returned when Options.Brand is blank.
var ErrNoBrand = errors.New("pipeline: brand is required")

// Options select what one run does.
type Options struct {
	Brand string
	// Limit caps search results and feed items (0 = 10).
	Limit int
	// Scrape submits mention URLs to the platform scraper.
	Scrape bool
	// Platform restricts scraping to one platform. Empty scrapes every
	// platform found among the search results.
	Platform dataset.Platform
	// ScrapeURLs replaces the search-derived scrape targets.
	ScrapeURLs []string
	// MaxScrapeURLs caps targets per platform (0 = 10).
	MaxScrapeURLs int
	Params        map[string]string
	// Collect fetches the top search result pages directly.
	Collect   bool
	Sentiment bool
	Report    bool
	// Save persists the run when a Store is configured.
	Save     bool
	Metadata map[string]string
	// Progress, when set, is called as each stage starts.
	Progress func(stage string)
}

// Monitor wires the stages together. Only Search is required.
type Monitor struct {
	Search    Searcher
	Feeds     FeedSource
	Collector Collector
	Scraper   Scraper
	Analyzer  sentiment.Analyzer
	Store     storage.Backend
	Logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// Run executes one monitoring pass. Stage failures are recorded in the run
// metadata; the error is non-nil only for a blank brand, cancellation or a
// failed save.
func (m *Monitor) Run(ctx context.Context, opts Options) (run *storage.Run, err error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	brand := strings.TrimSpace(opts.Brand)
	if brand == "" {
		return nil, ErrNoBrand
	}
	if m.Search == nil {
		return nil, errors.New("pipeline: search provider is nil")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.MaxScrapeURLs <= 0 {
		opts.MaxScrapeURLs = 10
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(string) {}
	}

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.MonitorRunsTotal.WithLabelValues(outcome).Inc()
	}()

	run = &storage.Run{
		ID:        m.id(),
		Brand:     brand,
		CreatedAt: m.clock().UTC(),
		Metadata:  map[string]string{},
	}
	for k, v := range opts.Metadata {
		run.Metadata[k] = v
	}
	logger = logger.With("run", run.ID, "brand", brand)

	progress(StageSearch)
	run.SearchResults = m.Search.Search(ctx, brand, opts.Limit)
	logger.Info("search complete", "count", len(run.SearchResults))

	if m.Feeds != nil {
		progress(StageFeeds)
		run.SearchResults = mergeResults(run.SearchResults, m.Feeds.Discover(ctx, brand, opts.Limit))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.Collect && m.Collector != nil {
		progress(StageCollect)
		docs, err := m.Collector.Collect(ctx, links(run.SearchResults, dataset.Web, opts.MaxScrapeURLs))
		if err != nil {
			return nil, fmt.Errorf("pipeline: collect: %w", err)
		}
		usable := 0
		for _, d := range docs {
			if d.Usable() {
				run.ScrapedData = append(run.ScrapedData, d.Record())
				usable++
			}
		}
		run.Metadata["pages_fetched"] = fmt.Sprint(len(docs))
		logger.Info("direct collection complete", "pages", len(docs), "usable", usable)
	}

	if opts.Scrape && m.Scraper != nil {
		progress(StageScrape)
		for _, req := range scrapeRequests(run.SearchResults, opts) {
			records := m.Scraper.Scrape(ctx, req)
			run.ScrapedData = append(run.ScrapedData, records...)
			logger.Info("platform scrape complete", "platform", req.Platform, "urls", len(req.URLs), "records", len(records))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.Sentiment && m.Analyzer != nil {
		progress(StageSentiment)
		score, err := sentiment.Evaluate(ctx, m.Analyzer, brand, run.SearchResults, run.ScrapedData)
		if err != nil {
			logger.Warn("sentiment analysis failed", "err", err)
			run.Metadata["sentiment_error"] = err.Error()
		} else {
			run.Sentiment = &score
		}
	}

	if opts.Report {
		progress(StageReport)
		md, err := report.Markdown(report.Build(run))
		if err != nil {
			logger.Warn("report generation failed", "err", err)
			run.Metadata["report_error"] = err.Error()
		} else {
			run.Report = md
		}
	}

	run.Summarize()

	if opts.Save && m.Store != nil {
		progress(StageSave)
		if err := m.Store.Save(ctx, run); err != nil {
			return run, fmt.Errorf("pipeline: save: %w", err)
		}
		logger.Info("run saved")
	}
	return run, nil
}

func (m *Monitor) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func (m *Monitor) id() string {
	if m.newID != nil {
		return m.newID()
	}
	return uuid.NewString()
}

// mergeResults appends extra results whose links are not already present.
func mergeResults(base, extra []serp.Result) []serp.Result {
	seen := make(map[string]struct{}, len(base))
	for _, r := range base {
		seen[r.Link] = struct{}{}
	}
	for _, r := range extra {
		if _, dup := seen[r.Link]; dup {
			continue
		}
		seen[r.Link] = struct{}{}
		base = append(base, r)
	}
	return base
}

// links returns up to n result links on platform p, in result order.
func links(results []serp.Result, p dataset.Platform, n int) []string {
	var out []string
	for _, r := range results {
		if r.Link == "" || dataset.DetectPlatform(r.Link) != p {
			continue
		}
		out = append(out, r.Link)
		if len(out) >= n {
			break
		}
	}
	return out
}

// scrapeRequests groups scrape targets by platform in Platforms() order.
func scrapeRequests(results []serp.Result, opts Options) []dataset.Request {
	if len(opts.ScrapeURLs) > 0 {
		return GroupByPlatform(opts.ScrapeURLs, opts.Platform, opts.Params)
	}

	var reqs []dataset.Request
	for _, p := range dataset.Platforms() {
		if opts.Platform != "" && p != opts.Platform {
			continue
		}
		if urls := links(results, p, opts.MaxScrapeURLs); len(urls) > 0 {
			reqs = append(reqs, dataset.Request{URLs: urls, Platform: p, Params: opts.Params})
		}
	}
	return reqs
}

// GroupByPlatform builds one scrape request per detected platform, in
// first-seen order. A non-empty platform sends every URL there.
func GroupByPlatform(urls []string, platform dataset.Platform, params map[string]string) []dataset.Request {
	if platform != "" {
		return []dataset.Request{{URLs: urls, Platform: platform, Params: params}}
	}
	var order []dataset.Platform
	grouped := make(map[dataset.Platform][]string)
	for _, u := range urls {
		p := dataset.DetectPlatform(u)
		if _, ok := grouped[p]; !ok {
			order = append(order, p)
		}
		grouped[p] = append(grouped[p], u)
	}
	reqs := make([]dataset.Request, 0, len(order))
	for _, p := range order {
		reqs = append(reqs, dataset.Request{URLs: grouped[p], Platform: p, Params: params})
	}
	return reqs
}
