package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/brandwatch/internal/provenance"
)

// fakeClock advances its own time on every After call and fires immediately.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type fakeAPI struct {
	t            *testing.T
	statuses     []string
	statusDelay  time.Duration
	triggerCode  int
	snapshotBody string
	noSnapshot   bool

	triggers atomic.Int32
	polls    atomic.Int32
	fetches  atomic.Int32

	mu        sync.Mutex
	lastQuery string
	lastBody  []map[string]string
	lastAuth  string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /datasets/v3/trigger", func(w http.ResponseWriter, r *http.Request) {
		f.triggers.Add(1)
		f.mu.Lock()
		f.lastQuery = r.URL.RawQuery
		f.lastAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		f.mu.Unlock()

		if f.triggerCode != 0 {
			w.WriteHeader(f.triggerCode)
			return
		}
		if f.noSnapshot {
			fmt.Fprint(w, `{"message":"queued"}`)
			return
		}
		fmt.Fprint(w, `{"snapshot_id":"s_123"}`)
	})
	mux.HandleFunc("GET /datasets/v3/progress/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.polls.Add(1)) - 1
		if f.statusDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(f.statusDelay):
			}
		}
		status := "running"
		if len(f.statuses) > 0 {
			if n >= len(f.statuses) {
				n = len(f.statuses) - 1
			}
			status = f.statuses[n]
		}
		fmt.Fprintf(w, `{"snapshot_id":%q,"status":%q}`, r.PathValue("id"), status)
	})
	mux.HandleFunc("GET /datasets/v3/snapshot/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		if r.URL.Query().Get("format") != "json" {
			f.t.Errorf("expected format=json, got %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, f.snapshotBody)
	})
	return mux
}

func newTestRunner(t *testing.T, api *fakeAPI, apiKey string) (*Runner, *fakeClock) {
	t.Helper()
	api.t = t
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)

	clock := newFakeClock()
	r, err := NewRunner(Config{
		APIKey:  apiKey,
		BaseURL: ts.URL,
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r, clock
}

var testURLs = []string{
	"https://www.youtube.com/watch?v=a",
	"https://www.youtube.com/watch?v=b",
	"https://www.youtube.com/watch?v=c",
}

func TestScrape_Success(t *testing.T) {
	api := &fakeAPI{
		statuses:     []string{"running", "running", "ready"},
		snapshotBody: `[{"url":"https://www.youtube.com/watch?v=a","title":"Real video","views":12}]`,
	}
	r, clock := newTestRunner(t, api, "secret")
	start := clock.Now()

	records := r.Scrape(context.Background(), Request{
		URLs:     testURLs,
		Platform: YouTube,
		Params:   map[string]string{"discover_by": "url"},
	})

	if len(records) != 1 {
		t.Fatalf("expected provider output as-is (1 record), got %d", len(records))
	}
	if records[0]["title"] != "Real video" {
		t.Errorf("unexpected record %v", records[0])
	}
	if records[0].Provenance() != provenance.Primary {
		t.Errorf("expected primary provenance, got %q", records[0].Provenance())
	}
	if api.polls.Load() != 3 || api.fetches.Load() != 1 {
		t.Errorf("expected 3 polls and 1 fetch, got %d and %d", api.polls.Load(), api.fetches.Load())
	}
	if got := clock.Now().Sub(start); got != 20*time.Second {
		t.Errorf("expected two poll intervals to elapse, got %s", got)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if api.lastAuth != "Bearer secret" {
		t.Errorf("unexpected auth header %q", api.lastAuth)
	}
	for _, want := range []string{"dataset_id=gd_lk56epmy2i5g7lzu0k", "include_errors=true", "discover_by=url"} {
		if !strings.Contains(api.lastQuery, want) {
			t.Errorf("expected %s in trigger query %q", want, api.lastQuery)
		}
	}
	if len(api.lastBody) != 3 || api.lastBody[1]["url"] != testURLs[1] {
		t.Errorf("unexpected trigger body %v", api.lastBody)
	}
}

func TestScrape_PollTimeout(t *testing.T) {
	api := &fakeAPI{}
	r, clock := newTestRunner(t, api, "secret")
	start := clock.Now()

	begin := time.Now()
	records := r.Scrape(context.Background(), Request{URLs: testURLs, Platform: YouTube})

	if time.Since(begin) > 5*time.Second {
		t.Errorf("poll timeout should not wait in real time")
	}
	if len(records) != len(testURLs) {
		t.Fatalf("expected %d placeholders, got %d", len(testURLs), len(records))
	}
	for _, rec := range records {
		if rec.Provenance() != provenance.Placeholder {
			t.Errorf("expected placeholder provenance, got %q", rec.Provenance())
		}
	}
	// Polls at t=0,10,...,290; the last wait ends exactly on the ceiling.
	if got := api.polls.Load(); got != 30 {
		t.Errorf("expected 30 polls, got %d", got)
	}
	if got := clock.Now().Sub(start); got > r.cfg.MaxWait {
		t.Errorf("scrape ran %s, beyond the %s ceiling", got, r.cfg.MaxWait)
	}
	if api.fetches.Load() != 0 {
		t.Error("snapshot should not be fetched after a timeout")
	}
}

func TestScrape_SlowStatusCallStopsAtCeiling(t *testing.T) {
	api := &fakeAPI{statusDelay: 5 * time.Second}
	r, _ := newTestRunner(t, api, "secret")
	r.cfg.Clock = realClock{}
	r.cfg.MaxWait = 200 * time.Millisecond

	begin := time.Now()
	_, err := r.run(context.Background(), Web, Request{URLs: testURLs[:2]})

	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("status call should be cut off at the ceiling, took %s", elapsed)
	}
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if api.fetches.Load() != 0 {
		t.Error("snapshot should not be fetched after a timeout")
	}
}

func TestScrape_JobFailed(t *testing.T) {
	api := &fakeAPI{statuses: []string{"running", "failed"}}
	r, _ := newTestRunner(t, api, "secret")

	records := r.Scrape(context.Background(), Request{URLs: testURLs[:2], Platform: Web})
	if len(records) != 2 || records[0].Provenance() != provenance.Placeholder {
		t.Fatalf("expected 2 placeholders, got %v", records)
	}
	if api.polls.Load() != 2 {
		t.Errorf("expected polling to stop on failure, got %d polls", api.polls.Load())
	}
}

func TestScrape_PlaceholderCountOnFailure(t *testing.T) {
	cases := []struct {
		name string
		api  *fakeAPI
		key  string
	}{
		{"no api key", &fakeAPI{}, ""},
		{"trigger rejected", &fakeAPI{triggerCode: http.StatusUnauthorized}, "secret"},
		{"missing snapshot id", &fakeAPI{noSnapshot: true}, "secret"},
		{"malformed snapshot", &fakeAPI{statuses: []string{"ready"}, snapshotBody: `{"oops":`}, "secret"},
	}

	for _, tc := range cases {
		for _, platform := range Platforms() {
			for _, n := range []int{1, 4} {
				t.Run(fmt.Sprintf("%s/%s/%d", tc.name, platform, n), func(t *testing.T) {
					r, _ := newTestRunner(t, tc.api, tc.key)
					urls := make([]string, n)
					for i := range urls {
						urls[i] = fmt.Sprintf("https://example.com/%d", i)
					}
					records := r.Scrape(context.Background(), Request{URLs: urls, Platform: platform})
					if len(records) != n {
						t.Fatalf("expected %d records, got %d", n, len(records))
					}
					for i, rec := range records {
						if rec.URL() != urls[i] {
							t.Errorf("record %d: expected url %s, got %s", i, urls[i], rec.URL())
						}
					}
				})
			}
		}
	}
}

func TestScrape_NoAPIKeyMakesNoCalls(t *testing.T) {
	api := &fakeAPI{}
	r, _ := newTestRunner(t, api, "")

	r.Scrape(context.Background(), Request{URLs: testURLs, Platform: X})
	if api.triggers.Load() != 0 {
		t.Errorf("expected no network calls without an api key")
	}
}

func TestScrape_EmptyURLs(t *testing.T) {
	api := &fakeAPI{}
	r, _ := newTestRunner(t, api, "secret")

	records := r.Scrape(context.Background(), Request{Platform: Web})
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty slice, got %v", records)
	}
	if api.triggers.Load() != 0 {
		t.Error("expected no trigger for empty input")
	}
}

func TestScrape_ContextCancelled(t *testing.T) {
	api := &fakeAPI{}
	r, _ := newTestRunner(t, api, "secret")
	r.cfg.Clock = blockingClock{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	records := r.Scrape(ctx, Request{URLs: testURLs, Platform: LinkedIn})
	if len(records) != len(testURLs) || records[0].Provenance() != provenance.Placeholder {
		t.Errorf("expected placeholders after cancellation, got %v", records)
	}
}

func TestScrape_DatasetOverride(t *testing.T) {
	api := &fakeAPI{statuses: []string{"ready"}, snapshotBody: `[]`}
	r, _ := newTestRunner(t, api, "secret")
	r.cfg.Datasets = map[Platform]string{Web: "gd_custom"}

	records := r.Scrape(context.Background(), Request{URLs: testURLs[:1], Platform: "unknown"})
	if len(records) != 0 {
		t.Errorf("expected empty provider output to pass through, got %v", records)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if !strings.Contains(api.lastQuery, "dataset_id=gd_custom") {
		t.Errorf("expected dataset override, got %q", api.lastQuery)
	}
}

// blockingClock never fires and never advances.
type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return time.Time{} }
func (blockingClock) After(time.Duration) <-chan time.Time { return nil }
