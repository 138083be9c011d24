package useragent

import (
	"net/http"
	"sync"
	"testing"
)

func TestPool_Next(t *testing.T) {
	p := NewPool([]string{"A", "B", "C"})

	for i, want := range []string{"A", "B", "C", "A"} {
		if got := p.Next(); got != want {
			t.Errorf("call %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestPool_Default(t *testing.T) {
	p := NewPool(nil)
	if p.Len() != len(DefaultPool) {
		t.Errorf("expected pool length %d, got %d", len(DefaultPool), p.Len())
	}
	if got := p.Next(); got != DefaultPool[0] {
		t.Errorf("expected %s, got %s", DefaultPool[0], got)
	}
}

func TestPool_CopiesInput(t *testing.T) {
	uas := []string{"A"}
	p := NewPool(uas)
	uas[0] = "mutated"
	if got := p.Next(); got != "A" {
		t.Errorf("expected pool to be isolated from caller slice, got %s", got)
	}
}

func TestPool_Random(t *testing.T) {
	p := NewPool([]string{"A", "B"})

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		got := p.Random()
		if got != "A" && got != "B" {
			t.Fatalf("unexpected UA: %s", got)
		}
		seen[got] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both entries to be picked, saw %v", seen)
	}
}

func TestPool_Apply(t *testing.T) {
	p := NewPool([]string{"TestBrowser/1.0"})
	h := http.Header{}
	p.Apply(h)

	if h.Get("User-Agent") != "TestBrowser/1.0" {
		t.Errorf("expected User-Agent to be set, got %q", h.Get("User-Agent"))
	}
	if h.Get("Accept") == "" || h.Get("Accept-Language") == "" {
		t.Errorf("expected Accept headers to be set, got %v", h)
	}
}

func TestPool_ApplyRandom(t *testing.T) {
	p := NewPool([]string{"A", "B"})
	p.SetRandom(true)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		h := http.Header{}
		p.Apply(h)
		seen[h.Get("User-Agent")] = true
	}
	if !seen["A"] || !seen["B"] {
		t.Errorf("expected random selection to use both entries, saw %v", seen)
	}
}

func TestPool_Concurrent(t *testing.T) {
	p := NewPool([]string{"A", "B", "C"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Next()
			_ = p.Random()
		}()
	}
	wg.Wait()
}
