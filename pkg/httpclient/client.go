package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// DefaultMaxRedirects is used when Config.MaxRedirects is zero.
const DefaultMaxRedirects = 10

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects caps redirect hops. Zero means DefaultMaxRedirects,
	// a negative value disables following redirects.
	MaxRedirects int
	UseCookieJar bool
	// Proxy selects an upstream proxy per request. Ignored when Transport is set.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables TLS certificate checks. Ignored when Transport is set.
	InsecureSkipVerify bool
	// Provide a custom Transport, e.g. for uTLS fingerprinting
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client wraps a standard http.Client to provide configurable timeouts,
// redirect policies, proxying and cookie management.
type Client struct {
	*http.Client
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects > 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("httpclient: stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		c.Jar = jar
	}

	switch {
	case cfg.Transport != nil:
		c.Transport = cfg.Transport
	case cfg.Proxy != nil || cfg.InsecureSkipVerify:
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.Proxy != nil {
			tr.Proxy = cfg.Proxy
		}
		if cfg.InsecureSkipVerify {
			logger.Warn("TLS certificate verification disabled")
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		c.Transport = tr
	}

	return &Client{Client: c}, nil
}

// Do executes an HTTP request. The provided context.Context should control
// the overarching request timeout/cancellation independent of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}
