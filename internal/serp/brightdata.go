package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/brandwatch/internal/metrics"
	"github.com/FranksOps/brandwatch/internal/provenance"
	"github.com/FranksOps/brandwatch/pkg/httpclient"
	"github.com/FranksOps/brandwatch/pkg/proxy"
	"github.com/FranksOps/brandwatch/pkg/useragent"
)

const (
	DefaultSuperProxyHost = "brd.superproxy.io"
	DefaultSuperProxyPort = 33335
	DefaultGoogleEndpoint = "https://www.google.com/search"
)

type contextKey string

const proxyKey contextKey = "serp_proxy"

// BrightDataConfig configures the proxied Google SERP provider.
type BrightDataConfig struct {
	Username  string
	Password  string
	ProxyHost string
	ProxyPort int
	// ProxyFile lists additional proxy URLs, one per line.
	ProxyFile string
	// Proxies overrides the pool built from the credentials.
	Proxies            *proxy.Pool
	Endpoint           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	UAPool             *useragent.Pool
	Logger             *slog.Logger
}

// BrightData queries Google through the Bright Data super-proxy and reads the
// structured JSON body it returns for brd_json=1.
type BrightData struct {
	cfg    BrightDataConfig
	pool   *proxy.Pool
	client *httpclient.Client
	logger *slog.Logger
}

var _ SERPProvider = (*BrightData)(nil)

// NewBrightData builds the provider. Missing credentials are not an error
// here; Search reports ErrMissingCredentials without touching the network.
func NewBrightData(cfg BrightDataConfig) (*BrightData, error) {
	if cfg.ProxyHost == "" {
		cfg.ProxyHost = DefaultSuperProxyHost
	}
	if cfg.ProxyPort == 0 {
		cfg.ProxyPort = DefaultSuperProxyPort
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGoogleEndpoint
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

	pool := cfg.Proxies
	if pool == nil {
		pool = proxy.NewPool(proxy.Config{})
		if cfg.Username != "" && cfg.Password != "" {
			if err := pool.AddAuthenticated(cfg.ProxyHost, cfg.ProxyPort, cfg.Username, cfg.Password); err != nil {
				return nil, fmt.Errorf("serp: super-proxy: %w", err)
			}
		}
		if cfg.ProxyFile != "" {
			if err := pool.LoadFile(cfg.ProxyFile); err != nil {
				return nil, fmt.Errorf("serp: %w", err)
			}
		}
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:            cfg.Timeout,
		Proxy:              proxyFromContext,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("serp: %w", err)
	}

	return &BrightData{cfg: cfg, pool: pool, client: client, logger: logger}, nil
}

func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey).(*url.URL); ok {
		return u, nil
	}
	return nil, nil
}

// Name implements SERPProvider.
func (b *BrightData) Name() string { return "brightdata" }

// Search implements SERPProvider.
func (b *BrightData) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if b.cfg.Username == "" || b.cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	limit = clampLimit(limit)

	active := b.pool.Next()
	if active == nil {
		return nil, fmt.Errorf("serp: no healthy proxy available")
	}

	req, err := http.NewRequestWithContext(context.WithValue(ctx, proxyKey, active), http.MethodGet, BuildQueryURL(b.cfg.Endpoint, query, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("serp: build request: %w", err)
	}
	b.cfg.UAPool.Apply(req.Header)

	resp, err := b.client.Do(req.Context(), req)
	if err != nil {
		_ = b.pool.Report(active, false)
		metrics.ProxyFailures.WithLabelValues(active.Host).Inc()
		return nil, fmt.Errorf("serp: brightdata request: %w", err)
	}
	defer resp.Body.Close()
	_ = b.pool.Report(active, true)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: brightdata returned %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("serp: read body: %w", err)
	}
	return mapOrganic(body, limit)
}

// BuildQueryURL renders the exact-phrase, past-week Google query with
// structured JSON output requested.
func BuildQueryURL(endpoint, query string, limit int) string {
	words := strings.Fields(query)
	for i, w := range words {
		words[i] = url.QueryEscape(w)
	}
	return fmt.Sprintf("%s?q=%%22%s%%22&tbs=qdr:w&brd_json=1&num=%d", endpoint, strings.Join(words, "+"), limit)
}

type organicEntry struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
}

type brightDataBody struct {
	Organic *[]organicEntry `json:"organic"`
}

// mapOrganic converts a brd_json body into results. It has no side effects.
func mapOrganic(body []byte, limit int) ([]Result, error) {
	var parsed brightDataBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Organic == nil {
		return nil, fmt.Errorf("%w: no organic array", ErrMalformedResponse)
	}

	results := make([]Result, 0, len(*parsed.Organic))
	for _, o := range *parsed.Organic {
		snippet := o.Snippet
		if snippet == "" {
			snippet = o.Description
		}
		results = append(results, Result{
			Title:   o.Title,
			Link:    o.Link,
			Snippet: snippet,
			Source:  provenance.Primary,
		})
	}
	return truncate(results, clampLimit(limit)), nil
}
