package useragent

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"sync/atomic"
)

// DefaultPool holds current desktop browser User-Agents.
var DefaultPool = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

const (
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"
)

// Pool hands out User-Agents in round-robin or random order.
type Pool struct {
	uas     []string
	counter atomic.Uint64
	random  atomic.Bool
}

// NewPool copies uas into a new pool. An empty slice selects DefaultPool.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{uas: copied}
}

// Next returns the next User-Agent in round-robin order. Safe for concurrent use.
func (p *Pool) Next() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random picks a User-Agent using crypto/rand, degrading to Next on failure.
func (p *Pool) Random() string {
	if len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.Next()
	}
	return p.uas[n.Int64()]
}

// SetRandom switches Apply between round-robin (the default) and random
// selection.
func (p *Pool) SetRandom(on bool) {
	p.random.Store(on)
}

// Len reports how many User-Agents the pool holds.
func (p *Pool) Len() int {
	return len(p.uas)
}

// Apply sets the User-Agent and the Accept headers a desktop browser would send.
func (p *Pool) Apply(h http.Header) {
	ua := p.Next()
	if p.random.Load() {
		ua = p.Random()
	}
	h.Set("User-Agent", ua)
	h.Set("Accept", acceptHTML)
	h.Set("Accept-Language", acceptLanguage)
}
