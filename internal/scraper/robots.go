package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor fetches robots.txt once per host and answers whether a
// URL may be fetched. Any failure to obtain the file allows the fetch.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.RWMutex
	cache   map[string]*robotstxt.RobotsData
}

func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed determines if the given URL is allowed by the host's robots.txt for the provided User-Agent.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("robots: invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, allowing", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.EscapedPath(), userAgent), nil
}

func (r *RobotsTxtAuditor) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()

	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists = r.cache[host]
	if exists {
		return data, nil
	}

	page, _ := r.fetcher.Fetch(ctx, host+"/robots.txt")
	if page.Error != "" {
		// Cancellation is not cached so a later call can retry.
		if ctx.Err() == nil {
			r.cache[host] = nil
		}
		return nil, fmt.Errorf("robots: %s", page.Error)
	}

	// A missing or broken robots.txt allows everything.
	if page.StatusCode >= 400 || page.Blocked.Blocked {
		r.cache[host] = nil
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("robots: parse: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}

// Sitemaps returns the sitemap URLs advertised in the robots.txt of the
// site that siteURL belongs to. A bare host is treated as https.
func (r *RobotsTxtAuditor) Sitemaps(ctx context.Context, siteURL string) ([]string, error) {
	if !strings.Contains(siteURL, "://") {
		siteURL = "https://" + siteURL
	}
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("robots: invalid site %q", siteURL)
	}

	data, err := r.getOrFetch(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return data.Sitemaps, nil
}
