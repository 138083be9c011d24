package serp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/brandwatch/internal/provenance"
	"github.com/FranksOps/brandwatch/pkg/httpclient"
	"github.com/FranksOps/brandwatch/pkg/useragent"
	"github.com/PuerkitoBio/goquery"
)

const DefaultDuckDuckGoEndpoint = "https://html.duckduckgo.com/html"

// DuckDuckGoConfig configures the keyless HTML search provider.
type DuckDuckGoConfig struct {
	Endpoint string
	Timeout  time.Duration
	UAPool   *useragent.Pool
	Logger   *slog.Logger
}

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint. It needs no credentials.
type DuckDuckGo struct {
	cfg    DuckDuckGoConfig
	client *httpclient.Client
	logger *slog.Logger
}

var _ SERPProvider = (*DuckDuckGo)(nil)

// NewDuckDuckGo builds the provider with defaults applied.
func NewDuckDuckGo(cfg DuckDuckGoConfig) (*DuckDuckGo, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultDuckDuckGoEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("serp: %w", err)
	}
	return &DuckDuckGo{cfg: cfg, client: client, logger: logger}, nil
}

// Name implements SERPProvider.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements SERPProvider.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	limit = clampLimit(limit)

	form := url.Values{}
	form.Set("q", query)
	form.Set("b", "")
	form.Set("kl", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("serp: build request: %w", err)
	}
	d.cfg.UAPool.Apply(req.Header)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("serp: duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	// DuckDuckGo answers 202 with an anomaly page when it throttles a client.
	if resp.StatusCode == http.StatusAccepted {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: duckduckgo returned %d", ErrBadStatus, resp.StatusCode)
	}

	return parseDuckDuckGo(resp.Body, limit)
}

// parseDuckDuckGo extracts organic results from the HTML results page.
// Sponsored entries are skipped and redirect links are unwrapped.
func parseDuckDuckGo(r io.Reader, limit int) ([]Result, error) {
	limit = clampLimit(limit)

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	results := make([]Result, 0, limit)
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(results) >= limit {
			return false
		}
		if s.HasClass("result--ad") {
			return true
		}

		titleElem := s.Find(".result__title a").First()
		title := collapseSpace(titleElem.Text())
		link, ok := titleElem.Attr("href")
		if !ok || title == "" || strings.Contains(link, "y.js") {
			return true
		}

		results = append(results, Result{
			Title:   title,
			Link:    unwrapRedirect(link),
			Snippet: collapseSpace(s.Find(".result__snippet").First().Text()),
			Source:  provenance.Fallback,
		})
		return true
	})
	return results, nil
}

// unwrapRedirect turns //duckduckgo.com/l/?uddg=<target>&rut=... into <target>.
func unwrapRedirect(link string) string {
	if !strings.Contains(link, "duckduckgo.com/l/") {
		return link
	}
	raw := link
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return link
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return link
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
