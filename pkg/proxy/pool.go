package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when reporting on a proxy the pool does not hold.
	ErrNotFound = errors.New("proxy: not found in pool")
	// ErrNilURL is returned when a nil proxy URL is reported.
	ErrNilURL = errors.New("proxy: url cannot be nil")
)

// Endpoint is a single upstream proxy with health counters.
type Endpoint struct {
	URL           *url.URL
	Failures      int
	Successes     int
	LastUsed      time.Time
	DisabledUntil time.Time
}

func (e *Endpoint) disabled(now time.Time) bool {
	return now.Before(e.DisabledUntil)
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures before an endpoint is benched.
	MaxFailures int
	// Cooldown is how long a benched endpoint stays out of rotation.
	Cooldown time.Duration
}

// Pool rotates over upstream proxies, benching endpoints that keep failing.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*Endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool creates an empty pool. Zero config values fall back to 3 failures
// and a five minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// AddAuthenticated adds an http proxy that requires basic credentials, such as
// a residential super-proxy. Username and password are URL-escaped.
func (p *Pool) AddAuthenticated(host string, port int, username, password string) error {
	if host == "" {
		return errors.New("proxy: host cannot be empty")
	}
	if username == "" || password == "" {
		return errors.New("proxy: username and password are required")
	}
	u := &url.URL{
		Scheme: "http",
		User:   url.UserPassword(username, password),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = append(p.endpoints, &Endpoint{URL: u})
	return nil
}

// Add parses raw proxy URLs, defaulting the scheme to http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*Endpoint, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		parsed = append(parsed, &Endpoint{URL: u})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = append(p.endpoints, parsed...)
	return nil
}

// LoadFile reads one proxy URL per line. Blank lines and '#' comments are skipped.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}

	return p.Add(urls...)
}

// Len reports the number of endpoints, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next healthy proxy, or nil when the pool is empty or every
// endpoint is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	if n == 0 {
		return nil
	}

	now := p.now()
	for i := 0; i < n; i++ {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % n

		if ep.disabled(now) {
			continue
		}
		if !ep.DisabledUntil.IsZero() {
			// back from the bench with a clean slate
			ep.DisabledUntil = time.Time{}
			ep.Failures = 0
		}
		ep.LastUsed = now
		return ep.URL
	}
	return nil
}

// Report records the outcome of a request sent through proxyURL.
func (p *Pool) Report(proxyURL *url.URL, ok bool) error {
	if proxyURL == nil {
		return ErrNilURL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.find(proxyURL)
	if ep == nil {
		return ErrNotFound
	}

	if ok {
		ep.Successes++
		if ep.Failures > 0 {
			ep.Failures--
		}
		return nil
	}

	ep.Failures++
	if ep.Failures >= p.maxFailures {
		ep.DisabledUntil = p.now().Add(p.cooldown)
	}
	return nil
}

// find must be called with the lock held.
func (p *Pool) find(u *url.URL) *Endpoint {
	target := u.String()
	for _, ep := range p.endpoints {
		if ep.URL.String() == target {
			return ep
		}
	}
	return nil
}
