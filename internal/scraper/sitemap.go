package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"
)

// maxSitemapDepth bounds recursion through nested sitemap indexes.
const maxSitemapDepth = 3

var errSitemapFull = errors.New("sitemap limit reached")

// SitemapFetcher expands sitemaps and sitemap indexes into page URLs.
type SitemapFetcher struct {
	fetcher *Fetcher
	logger  *slog.Logger
	robots  *RobotsTxtAuditor
}

func NewSitemapFetcher(fetcher *Fetcher, logger *slog.Logger) *SitemapFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapFetcher{
		fetcher: fetcher,
		logger:  logger,
		robots:  NewRobotsTxtAuditor(fetcher, logger),
	}
}

// Discover expands the sitemaps a site advertises in robots.txt, or
// /sitemap.xml when it advertises none. Sitemaps that fail are skipped; the
// error is non-nil only when none of them yields a URL.
func (s *SitemapFetcher) Discover(ctx context.Context, siteURL string, limit int) ([]string, error) {
	if !strings.Contains(siteURL, "://") {
		siteURL = "https://" + siteURL
	}
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("sitemap: invalid site %q", siteURL)
	}

	sitemaps, err := s.robots.Sitemaps(ctx, siteURL)
	if err != nil {
		s.logger.Debug("robots.txt unavailable for sitemap discovery", "site", siteURL, "err", err)
	}
	if len(sitemaps) == 0 {
		sitemaps = []string{u.Scheme + "://" + u.Host + "/sitemap.xml"}
	}

	c := &sitemapCollector{limit: limit, seen: make(map[string]struct{})}
	var errs []error
	for _, sm := range sitemaps {
		if limit > 0 && len(c.urls) >= limit {
			break
		}
		if err := s.expand(ctx, sm, 0, c); err != nil {
			s.logger.Warn("failed to expand sitemap", "url", sm, "err", err)
			errs = append(errs, err)
		}
	}
	if len(c.urls) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c.urls, nil
}

// Expand returns the distinct page URLs reachable from sitemapURL, in
// document order, stopping once limit URLs are collected (limit <= 0 means
// no cap). Nested indexes are followed up to a fixed depth; a failing nested
// sitemap is logged and skipped.
func (s *SitemapFetcher) Expand(ctx context.Context, sitemapURL string, limit int) ([]string, error) {
	c := &sitemapCollector{limit: limit, seen: make(map[string]struct{})}
	if err := s.expand(ctx, sitemapURL, 0, c); err != nil {
		return nil, err
	}
	return c.urls, nil
}

type sitemapCollector struct {
	limit int
	seen  map[string]struct{}
	urls  []string
}

func (c *sitemapCollector) add(u string) error {
	if _, ok := c.seen[u]; ok || u == "" {
		return nil
	}
	c.seen[u] = struct{}{}
	c.urls = append(c.urls, u)
	if c.limit > 0 && len(c.urls) >= c.limit {
		return errSitemapFull
	}
	return nil
}

func (s *SitemapFetcher) expand(ctx context.Context, sitemapURL string, depth int, c *sitemapCollector) error {
	s.logger.Debug("fetching sitemap", "url", sitemapURL, "depth", depth)

	page, _ := s.fetcher.Fetch(ctx, sitemapURL)
	if page.Error != "" {
		return fmt.Errorf("sitemap: fetch %s: %s", sitemapURL, page.Error)
	}
	if page.StatusCode >= 400 {
		return fmt.Errorf("sitemap: %s returned status %d", sitemapURL, page.StatusCode)
	}

	before := len(c.urls)
	err := sitemap.Parse(bytes.NewReader(page.Body), func(e sitemap.Entry) error {
		return c.add(e.GetLocation())
	})
	if errors.Is(err, errSitemapFull) {
		return nil
	}
	if err == nil && len(c.urls) > before {
		return nil
	}

	var nested []string
	indexErr := sitemap.ParseIndex(bytes.NewReader(page.Body), func(e sitemap.IndexEntry) error {
		nested = append(nested, e.GetLocation())
		return nil
	})
	if indexErr != nil || len(nested) == 0 {
		if err == nil {
			err = indexErr
		}
		if err == nil {
			err = errors.New("no entries")
		}
		return fmt.Errorf("sitemap: failed to parse as sitemap or index: %w", err)
	}
	if depth >= maxSitemapDepth {
		s.logger.Warn("sitemap index nested too deeply, skipping", "url", sitemapURL)
		return nil
	}

	for _, u := range nested {
		if c.limit > 0 && len(c.urls) >= c.limit {
			return nil
		}
		if err := s.expand(ctx, u, depth+1, c); err != nil {
			s.logger.Warn("failed to expand nested sitemap", "url", u, "err", err)
		}
	}
	return nil
}
