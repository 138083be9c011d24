package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/brandwatch/internal/bypass"
	"github.com/FranksOps/brandwatch/internal/fingerprint"
	"github.com/FranksOps/brandwatch/internal/metrics"
	"github.com/FranksOps/brandwatch/pkg/httpclient"
	"github.com/FranksOps/brandwatch/pkg/proxy"
	"github.com/FranksOps/brandwatch/pkg/useragent"
	"github.com/google/uuid"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// DefaultMaxBodyBytes caps how much of a page body is kept.
const DefaultMaxBodyBytes = 5 << 20

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout            time.Duration
	MaxRedirects       int
	UseCookieJar       bool
	InsecureSkipVerify bool
	MaxBodyBytes       int64
	ProxyPool          *proxy.Pool
	UAPool             *useragent.Pool
	Fingerprint        fingerprint.Profile
	Logger             *slog.Logger
}

// Page is the outcome of a single fetch. Failures are reported in Error
// rather than as a Go error so callers always get a record of the attempt.
type Page struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	StatusCode int            `json:"status_code"`
	Headers    http.Header    `json:"headers,omitempty"`
	Body       []byte         `json:"-"`
	Duration   time.Duration  `json:"duration"`
	FetchedAt  time.Time      `json:"fetched_at"`
	Blocked    bypass.Verdict `json:"blocked"`
	Error      string         `json:"error,omitempty"`
}

// Fetcher performs single URL fetches with fingerprinted TLS, rotating
// User-Agents and optional proxy rotation.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher builds a Fetcher. One client is shared across requests so the
// cookie jar, when enabled, persists for the Fetcher's lifetime.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification disabled for page fetches")
	}

	// The proxy is chosen per request and carried in the request context, so
	// one transport can serve every proxy in the pool.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: client: %w", err)
	}

	return &Fetcher{config: cfg, client: client, logger: logger}, nil
}

// Fetch GETs targetURL and records the response in a Page. The returned
// error is always nil; failures land in Page.Error.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	page := &Page{
		ID:        uuid.New().String(),
		URL:       targetURL,
		FetchedAt: time.Now().UTC(),
	}
	defer f.record(page)

	start := time.Now()
	defer func() { page.Duration = time.Since(start) }()

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}
	if activeProxy != nil {
		ctx = context.WithValue(ctx, proxyKey, activeProxy)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		page.Error = fmt.Sprintf("build request: %v", err)
		return page, nil
	}
	f.config.UAPool.Apply(req.Header)

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.Report(activeProxy, false)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Host).Inc()
		}
		page.Error = fmt.Sprintf("request failed: %v", err)
		return page, nil
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.Report(activeProxy, true)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		page.Error = fmt.Sprintf("read body: %v", err)
	}

	page.StatusCode = resp.StatusCode
	page.Headers = resp.Header
	page.Body = body
	page.Blocked = bypass.Analyze(bypass.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, bypass.DefaultDetectors())

	if page.Blocked.Blocked {
		f.logger.Debug("bot challenge detected", "url", targetURL, "source", page.Blocked.Source)
	}
	return page, nil
}

func (f *Fetcher) record(p *Page) {
	domain := ""
	if u, err := url.Parse(p.URL); err == nil {
		domain = u.Hostname()
	}
	metrics.RecordPageFetch(domain, metrics.PageFetch{
		StatusCode:   p.StatusCode,
		Failed:       p.Error != "",
		DetectedBot:  p.Blocked.Blocked,
		DetectionSrc: p.Blocked.Source,
		Bytes:        len(p.Body),
		Duration:     p.Duration,
	})
}
