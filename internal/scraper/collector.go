package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"mime"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/brandwatch/internal/analyzer"
	"github.com/FranksOps/brandwatch/internal/bypass"
	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/provenance"
	"github.com/FranksOps/brandwatch/pkg/ratelimit"
)

// CollectConfig tunes the direct page collector.
type CollectConfig struct {
	Concurrency int
	// MaxPages caps how many distinct URLs are fetched (0 = no cap).
	MaxPages int
	// RespectRobots checks robots.txt before each fetch.
	RespectRobots bool
	// UserAgent is the agent name matched against robots.txt groups.
	UserAgent string
	// RequestsPerSecond limits the fetch rate (0 = unlimited).
	RequestsPerSecond float64
	// Jitter applies randomness to the rate limiter (0.0 to 1.0).
	Jitter float64
	// Terms are matched against each page to extract mention sentences.
	Terms []string
	// MaxMarkdownBytes truncates converted page text (0 = 64 KiB).
	MaxMarkdownBytes int
}

// Document is a fetched page reduced to what the monitor needs.
type Document struct {
	URL        string             `json:"url"`
	Title      string             `json:"title,omitempty"`
	Markdown   string             `json:"markdown,omitempty"`
	Mentions   []analyzer.Mention `json:"mentions,omitempty"`
	StatusCode int                `json:"status_code"`
	Blocked    bypass.Verdict     `json:"blocked"`
	Skipped    string             `json:"skipped,omitempty"`
	Error      string             `json:"error,omitempty"`
	FetchedAt  time.Time          `json:"fetched_at"`
}

// Usable reports whether the document carries real page text.
func (d Document) Usable() bool {
	return d.Error == "" && d.Skipped == "" && !d.Blocked.Blocked && d.Markdown != ""
}

// Record converts a usable document into a scraped record tagged as a
// direct fetch.
func (d Document) Record() dataset.Record {
	r := dataset.Record{
		"url":        d.URL,
		"title":      d.Title,
		"markdown":   d.Markdown,
		"provenance": string(provenance.Direct),
	}
	if sentences := analyzer.Sentences(d.Mentions, 5); len(sentences) > 0 {
		r["mentions"] = sentences
	}
	return r
}

// Collector fetches a fixed set of URLs concurrently and converts each HTML
// page to markdown.
type Collector struct {
	cfg     CollectConfig
	fetcher *Fetcher
	logger  *slog.Logger
	auditor *RobotsTxtAuditor
	limiter *ratelimit.Limiter
}

// NewCollector builds a Collector around fetcher.
func NewCollector(cfg CollectConfig, fetcher *Fetcher, logger *slog.Logger) *Collector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	if cfg.MaxMarkdownBytes <= 0 {
		cfg.MaxMarkdownBytes = 64 << 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	var auditor *RobotsTxtAuditor
	if cfg.RespectRobots {
		auditor = NewRobotsTxtAuditor(fetcher, logger)
	}

	return &Collector{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		auditor: auditor,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
	}
}

// Collect fetches the distinct http(s) URLs in urls and returns one Document
// per fetched URL, in input order. Per-page failures are recorded on the
// Document; the error is non-nil only when ctx is done.
func (c *Collector) Collect(ctx context.Context, urls []string) ([]Document, error) {
	targets := c.targets(urls)
	docs := make([]Document, len(targets))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			docs[i] = c.collect(gCtx, target)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// targets normalises, filters and de-duplicates the input URLs.
func (c *Collector) targets(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		u.Fragment = ""
		normalized := u.String()
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
		if c.cfg.MaxPages > 0 && len(out) >= c.cfg.MaxPages {
			break
		}
	}
	return out
}

func (c *Collector) collect(ctx context.Context, target string) Document {
	doc := Document{URL: target, FetchedAt: time.Now().UTC()}

	if c.auditor != nil {
		allowed, err := c.auditor.IsAllowed(ctx, target, c.cfg.UserAgent)
		if err != nil {
			c.logger.Warn("error checking robots.txt", "url", target, "err", err)
		} else if !allowed {
			c.logger.Debug("url blocked by robots.txt", "url", target)
			doc.Skipped = "robots.txt"
			return doc
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		doc.Error = err.Error()
		return doc
	}

	page, _ := c.fetcher.Fetch(ctx, target)
	doc.StatusCode = page.StatusCode
	doc.Blocked = page.Blocked
	doc.FetchedAt = page.FetchedAt
	if page.Error != "" {
		doc.Error = page.Error
		return doc
	}
	if page.Blocked.Blocked {
		c.logger.Info("page behind bot protection", "url", target, "source", page.Blocked.Source)
		return doc
	}
	if page.StatusCode >= 400 {
		doc.Skipped = "status"
		return doc
	}
	if !isHTML(page.Headers.Get("Content-Type")) {
		doc.Skipped = "content-type"
		return doc
	}

	if gq, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body)); err == nil {
		doc.Title = strings.TrimSpace(gq.Find("title").First().Text())
	}

	md, err := htmltomarkdown.ConvertString(string(page.Body), converter.WithDomain(target))
	if err != nil {
		doc.Error = "convert: " + err.Error()
		return doc
	}
	if len(md) > c.cfg.MaxMarkdownBytes {
		md = truncateUTF8(md, c.cfg.MaxMarkdownBytes)
	}
	doc.Markdown = strings.TrimSpace(md)
	doc.Mentions = analyzer.FindMentions(doc.Markdown, target, c.cfg.Terms)
	return doc
}

func isHTML(contentType string) bool {
	if contentType == "" {
		// Servers that omit the header almost always serve HTML.
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func truncateUTF8(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
