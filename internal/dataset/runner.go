package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
)

var (
	ErrMissingAPIKey     = errors.New("dataset: missing api key")
	ErrBadStatus         = errors.New("dataset: unexpected status")
	ErrMissingSnapshotID = errors.New("dataset: trigger response has no snapshot_id")
	ErrJobFailed         = errors.New("dataset: scrape job failed")
	ErrPollTimeout       = errors.New("dataset: scrape job did not finish in time")
)

const DefaultBaseURL = "https://api.brightdata.com"

// Status is the lifecycle state of a scrape job.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

func parseStatus(s string) Status {
	switch s {
	case "ready":
		return StatusReady
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// Job tracks one submitted snapshot for the duration of a Scrape call.
type Job struct {
	SnapshotID string
	Status     Status
	CreatedAt  time.Time
}

// Request describes what to scrape. URLs are submitted as given.
type Request struct {
	URLs     []string
	Platform Platform
	Params   map[string]string
}

// Config configures a Runner.
type Config struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxWait      time.Duration
	// Timeout bounds each individual API call.
	Timeout time.Duration
	// Datasets overrides DefaultDatasetIDs per platform.
	Datasets map[Platform]string
	Clock    Clock
	Logger   *slog.Logger
}

// Runner submits asynchronous scrape jobs, polls them to completion and
// fetches their output. It holds no per-call state and is safe for
// concurrent use.
type Runner struct {
	cfg    Config
	client *httpclient.Client
	logger *slog.Logger
}

// NewRunner applies defaults and builds the HTTP client.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 300 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	return &Runner{cfg: cfg, client: client, logger: logger}, nil
}

// Scrape runs a job for req and returns its records. It never fails: any
// error, a missing API key, or a job that outlives MaxWait yields one
// placeholder record per URL instead.
func (r *Runner) Scrape(ctx context.Context, req Request) []Record {
	if len(req.URLs) == 0 {
		return []Record{}
	}
	platform := ParsePlatform(string(req.Platform))
	logger := r.logger.With("platform", platform, "urls", len(req.URLs))

	start := r.cfg.Clock.Now()
	records, err := r.run(ctx, platform, req)
	elapsed := r.cfg.Clock.Now().Sub(start)

	switch {
	case err == nil:
		metrics.RecordScrapeJob(string(platform), "ready", elapsed)
		logger.Info("scrape completed", "records", len(records))
		return records
	case errors.Is(err, ErrMissingAPIKey):
		metrics.RecordScrapeJob(string(platform), "offline", 0)
		logger.Info("scrape api key not configured, returning placeholder records")
	case errors.Is(err, ErrPollTimeout):
		metrics.RecordScrapeJob(string(platform), "timeout", elapsed)
		logger.Warn("scrape job timed out, returning placeholder records", "max_wait", r.cfg.MaxWait)
	case errors.Is(err, ErrJobFailed):
		metrics.RecordScrapeJob(string(platform), "failed", elapsed)
		logger.Warn("scrape job failed, returning placeholder records", "err", err)
	default:
		metrics.RecordScrapeJob(string(platform), "error", elapsed)
		logger.Warn("scrape error, returning placeholder records", "err", err)
	}
	return Placeholders(req.URLs, platform)
}

func (r *Runner) run(ctx context.Context, platform Platform, req Request) ([]Record, error) {
	if r.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	job, err := r.trigger(ctx, platform, req)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("snapshot created", "snapshot_id", job.SnapshotID)

	if err := r.await(ctx, platform, job); err != nil {
		return nil, err
	}
	return r.fetch(ctx, job)
}

// params merges the platform dataset and fixed options under caller params.
func (r *Runner) params(platform Platform, caller map[string]string) url.Values {
	q := url.Values{}
	id := DefaultDatasetIDs[platform]
	if v, ok := r.cfg.Datasets[platform]; ok && v != "" {
		id = v
	}
	if id != "" {
		q.Set("dataset_id", id)
	}
	q.Set("include_errors", "true")
	for k, v := range caller {
		q.Set(k, v)
	}
	return q
}

type triggerInput struct {
	URL string `json:"url"`
}

func (r *Runner) trigger(ctx context.Context, platform Platform, req Request) (*Job, error) {
	inputs := make([]triggerInput, 0, len(req.URLs))
	for _, u := range req.URLs {
		inputs = append(inputs, triggerInput{URL: u})
	}
	body, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("dataset: encode trigger body: %w", err)
	}

	endpoint := r.cfg.BaseURL + "/datasets/v3/trigger?" + r.params(platform, req.Params).Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dataset: build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := r.doJSON(httpReq, &out); err != nil {
		return nil, fmt.Errorf("dataset: trigger: %w", err)
	}
	if out.SnapshotID == "" {
		return nil, ErrMissingSnapshotID
	}
	return &Job{SnapshotID: out.SnapshotID, Status: StatusPending, CreatedAt: r.cfg.Clock.Now()}, nil
}

// await polls the job until it is ready, it fails, MaxWait elapses or ctx
// ends. Neither the sleeps nor the status calls run past the ceiling.
func (r *Runner) await(ctx context.Context, platform Platform, job *Job) error {
	endpoint := r.cfg.BaseURL + "/datasets/v3/progress/" + url.PathEscape(job.SnapshotID)
	timeout := fmt.Errorf("%w: snapshot %s after %s", ErrPollTimeout, job.SnapshotID, r.cfg.MaxWait)
	for {
		remaining := r.remaining(job)
		if remaining <= 0 {
			return timeout
		}

		status, err := r.progress(ctx, platform, endpoint, remaining)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return timeout
			}
			return fmt.Errorf("dataset: progress: %w", err)
		}

		job.Status = parseStatus(status)
		r.logger.Debug("snapshot status", "snapshot_id", job.SnapshotID, "status", status)
		switch job.Status {
		case StatusReady:
			return nil
		case StatusFailed:
			return fmt.Errorf("%w: snapshot %s", ErrJobFailed, job.SnapshotID)
		}

		wait := min(r.cfg.PollInterval, r.remaining(job))
		if wait <= 0 {
			return timeout
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("dataset: polling cancelled: %w", ctx.Err())
		case <-r.cfg.Clock.After(wait):
		}
	}
}

// remaining is what is left of MaxWait for job.
func (r *Runner) remaining(job *Job) time.Duration {
	return r.cfg.MaxWait - r.cfg.Clock.Now().Sub(job.CreatedAt)
}

// progress makes one status call bounded by limit.
func (r *Runner) progress(ctx context.Context, platform Platform, endpoint string, limit time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	var out struct {
		Status string `json:"status"`
	}
	metrics.ScrapePollTotal.WithLabelValues(string(platform)).Inc()
	if err := r.doJSON(httpReq, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (r *Runner) fetch(ctx context.Context, job *Job) ([]Record, error) {
	endpoint := r.cfg.BaseURL + "/datasets/v3/snapshot/" + url.PathEscape(job.SnapshotID) + "?format=json"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dataset: build snapshot request: %w", err)
	}

	var records []Record
	if err := r.doJSON(httpReq, &records); err != nil {
		return nil, fmt.Errorf("dataset: snapshot: %w", err)
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		rec.tag(provenance.Primary)
		out = append(out, rec)
	}
	return out, nil
}

func (r *Runner) doJSON(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(req.Context(), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d %s", ErrBadStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
