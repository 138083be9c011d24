// Package dashboard serves stored monitoring runs and starts new ones over a
// small JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/brandwatch/internal/config"
	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/metrics"
	"github.com/FranksOps/brandwatch/internal/pipeline"
	"github.com/FranksOps/brandwatch/internal/storage"
)

const maxBodyBytes = 10 << 20

// Runner executes a monitoring pass.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*storage.Run, error)
}

var _ Runner = (*pipeline.Monitor)(nil)

// Config configures a Server. Store is required.
type Config struct {
	Addr        string
	Store       storage.Backend
	Runner      Runner
	Credentials config.Credentials
	// Limit is the default search limit for runs started over the API.
	Limit int
	// Retain caps how many finished run statuses are kept.
	Retain int
	Logger *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	registry *RunRegistry
	mux      *http.ServeMux

	// baseCtx outlives requests so background runs survive the POST that
	// started them; Shutdown cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc
	runMu   sync.Mutex
	wg      sync.WaitGroup
	now     func() time.Time
}

// New builds a Server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("dashboard: store is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":5000"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: NewRegistry(cfg.Retain),
		mux:      http.NewServeMux(),
		baseCtx:  ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/results", s.listResults)
	s.mux.HandleFunc("POST /api/results", s.saveResult)
	s.mux.HandleFunc("GET /api/results/{id}", s.getResult)
	s.mux.HandleFunc("DELETE /api/results/{id}", s.deleteResult)
	s.mux.HandleFunc("POST /api/runs", s.startRun)
	s.mux.HandleFunc("GET /api/runs", s.listRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.getRun)
	s.mux.HandleFunc("GET /api/status", s.status)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Registry exposes the background run registry.
func (s *Server) Registry() *RunRegistry {
	return s.registry
}

// ListenAndServe serves until ctx is done, then shuts down gracefully and
// waits for background runs to stop.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown()
	if err != nil {
		return fmt.Errorf("dashboard: shutdown: %w", err)
	}
	return nil
}

// Shutdown cancels background runs and waits for them to return.
func (s *Server) Shutdown() {
	s.runMu.Lock()
	s.cancel()
	s.runMu.Unlock()
	s.wg.Wait()
}

type envelope map[string]any

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{"success": false, "error": msg})
}

func (s *Server) storageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	s.logger.Error("storage request failed", "err", err)
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{Brand: q.Get("brand")}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since must be RFC 3339: %w", err)
		}
		f.Since = &t
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return f, nil
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.cfg.Store.Query(r.Context(), f)
	if err != nil {
		s.storageError(w, err)
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	s.writeJSON(w, http.StatusOK, envelope{"success": true, "results": runs, "total": len(runs)})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	run, err := s.cfg.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"success": true, "data": run})
}

func (s *Server) saveResult(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		s.writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	var run storage.Run
	if err := json.Unmarshal(body, &run); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	run.Brand = strings.TrimSpace(run.Brand)
	if run.Brand == "" {
		s.writeError(w, http.StatusBadRequest, "brand is required")
		return
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	run.Summarize()

	if err := s.cfg.Store.Save(r.Context(), &run); err != nil {
		s.storageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, envelope{"success": true, "id": run.ID, "message": "Result saved successfully"})
}

func (s *Server) deleteResult(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.storageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Run deleted successfully"})
}

// RunRequest is the body of POST /api/runs. Sentiment and Report default
// to true.
type RunRequest struct {
	Brand     string            `json:"brand"`
	Limit     int               `json:"limit,omitempty"`
	Scrape    bool              `json:"scrape,omitempty"`
	Platform  string            `json:"platform,omitempty"`
	URLs      []string          `json:"urls,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Collect   bool              `json:"collect,omitempty"`
	Sentiment *bool             `json:"sentiment,omitempty"`
	Report    *bool             `json:"report,omitempty"`
}

func (req RunRequest) options(defaultLimit int) pipeline.Options {
	opts := pipeline.Options{
		Brand:      strings.TrimSpace(req.Brand),
		Limit:      req.Limit,
		Scrape:     req.Scrape || len(req.URLs) > 0,
		ScrapeURLs: req.URLs,
		Params:     req.Params,
		Collect:    req.Collect,
		Sentiment:  req.Sentiment == nil || *req.Sentiment,
		Report:     req.Report == nil || *req.Report,
		Save:       true,
		Metadata:   map[string]string{"origin": "dashboard"},
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if req.Platform != "" {
		opts.Platform = dataset.ParsePlatform(req.Platform)
	}
	return opts
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "monitoring runs are not enabled")
		return
	}
	var req RunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	opts := req.options(s.cfg.Limit)
	if opts.Brand == "" {
		s.writeError(w, http.StatusBadRequest, "brand is required")
		return
	}

	s.runMu.Lock()
	if s.baseCtx.Err() != nil {
		s.runMu.Unlock()
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	s.wg.Add(1)
	s.runMu.Unlock()

	st := s.registry.Start(opts.Brand)
	opts.Progress = func(stage string) { s.registry.SetStage(st.ID, stage) }

	go func() {
		defer s.wg.Done()
		logger := s.logger.With("status_id", st.ID, "brand", opts.Brand)
		logger.Info("monitoring run started")

		run, err := s.cfg.Runner.Run(s.baseCtx, opts)
		runID := ""
		if run != nil {
			runID = run.ID
		}
		if err != nil {
			logger.Error("monitoring run failed", "err", err)
		} else {
			logger.Info("monitoring run finished", "run_id", runID)
		}
		s.registry.Finish(st.ID, runID, err)
	}()

	s.writeJSON(w, http.StatusAccepted, envelope{"success": true, "run": st})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.registry.List()
	s.writeJSON(w, http.StatusOK, envelope{"success": true, "runs": runs, "total": len(runs)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	st, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Run status not found")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"success": true, "run": st})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	active := 0
	for _, st := range s.registry.List() {
		if st.State == StateRunning {
			active++
		}
	}
	s.writeJSON(w, http.StatusOK, envelope{
		"success":      true,
		"credentials":  s.cfg.Credentials,
		"runs_active":  active,
		"runs_enabled": s.cfg.Runner != nil,
	})
}
