// Package feeds finds brand mentions in RSS and Atom feeds.
package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/FranksOps/brandwatch/internal/provenance"
	"github.com/FranksOps/brandwatch/internal/serp"
	"github.com/FranksOps/brandwatch/pkg/httpclient"
	"github.com/FranksOps/brandwatch/pkg/ratelimit"
	"github.com/FranksOps/brandwatch/pkg/useragent"
)

// Config lists the feeds to scan.
type Config struct {
	URLs []string
	// MaxAge drops items published longer ago than this (0 = 7 days, matching
	// the one-week search window). Items without a date are kept.
	MaxAge  time.Duration
	Timeout time.Duration
	// Interval spaces consecutive feed requests (0 = no spacing).
	Interval time.Duration
	UAPool   *useragent.Pool
	Logger   *slog.Logger
}

// Source pulls every configured feed and filters items locally.
type Source struct {
	cfg     Config
	client  *httpclient.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

func NewSource(cfg Config) (*Source, error) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("feeds: %w", err)
	}
	return &Source{
		cfg:     cfg,
		client:  client,
		limiter: ratelimit.Every(cfg.Interval, 0.2),
		logger:  cfg.Logger,
		now:     time.Now,
	}, nil
}

// Discover returns up to limit items whose title or description mentions
// brand, in feed order. Feeds that fail to load are logged and skipped.
func (s *Source) Discover(ctx context.Context, brand string, limit int) []serp.Result {
	brand = strings.ToLower(strings.TrimSpace(brand))
	out := []serp.Result{}
	if brand == "" || limit < 1 {
		return out
	}

	cutoff := s.now().Add(-s.cfg.MaxAge)
	seen := make(map[string]struct{})
	parser := gofeed.NewParser()

	for _, feedURL := range s.cfg.URLs {
		if len(out) >= limit || ctx.Err() != nil {
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		feed, err := s.load(ctx, parser, feedURL)
		if err != nil {
			s.logger.Warn("feed unavailable", "feed", feedURL, "err", err)
			continue
		}

		for _, it := range feed.Items {
			if len(out) >= limit {
				break
			}
			if pub := published(it); pub != nil && pub.Before(cutoff) {
				continue
			}
			desc := plainText(it.Description)
			if !strings.Contains(strings.ToLower(it.Title), brand) && !strings.Contains(strings.ToLower(desc), brand) {
				continue
			}
			link := strings.TrimSpace(it.Link)
			if _, dup := seen[link]; dup && link != "" {
				continue
			}
			seen[link] = struct{}{}

			out = append(out, serp.Result{
				Title:   strings.TrimSpace(it.Title),
				Link:    link,
				Snippet: desc,
				Source:  provenance.Feed,
			})
		}
	}

	s.logger.Info("feed scan complete", "feeds", len(s.cfg.URLs), "count", len(out))
	return out
}

func (s *Source) load(ctx context.Context, parser *gofeed.Parser, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.UAPool != nil {
		s.cfg.UAPool.Apply(req.Header)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parser.Parse(resp.Body)
}

func published(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed
	}
	return it.UpdatedParsed
}

// plainText strips markup that feeds commonly embed in descriptions.
func plainText(s string) string {
	if !strings.Contains(s, "<") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
