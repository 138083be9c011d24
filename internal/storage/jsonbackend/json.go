package jsonbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/FranksOps/brandwatch/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

const filePrefix = "brand_monitoring_"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// jsonBackend keeps one indented JSON document per run in a directory,
// named brand_monitoring_<brand>_<timestamp>_<id>.json.
type jsonBackend struct {
	mu  sync.Mutex
	dir string
}

// New creates a directory-backed storage.Backend, creating dir if needed.
func New(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	return &jsonBackend{dir: dir}, nil
}

// FileName returns the file a run is stored under.
func FileName(run *storage.Run) string {
	brand := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(run.Brand), "_"), "_")
	if brand == "" {
		brand = "brand"
	}
	return fmt.Sprintf("%s%s_%s_%s.json", filePrefix, brand, run.CreatedAt.UTC().Format("20060102_150405"), run.ID)
}

func (b *jsonBackend) Save(ctx context.Context, run *storage.Run) error {
	if !validID(run.ID) {
		return fmt.Errorf("jsonbackend: invalid run id %q", run.ID)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// A re-saved run may have a different brand or timestamp.
	if old, err := b.find(run.ID); err == nil {
		_ = os.Remove(old)
	}

	path := filepath.Join(b.dir, FileName(run))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jsonbackend: %w", err)
	}
	return nil
}

func (b *jsonBackend) Get(ctx context.Context, id string) (*storage.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path, err := b.find(id)
	if err != nil {
		return nil, err
	}
	return readRun(path)
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(b.dir, filePrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}

	runs := make([]*storage.Run, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := readRun(p)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return filter.Apply(runs), nil
}

func (b *jsonBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	path, err := b.find(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}
	return nil
}

func (b *jsonBackend) Close() error { return nil }

// validID rejects IDs that could escape dir or act as glob patterns.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\*?[`)
}

// find returns the file holding run id. The glob only narrows the
// candidates: another run's ID may end in "_"+id, so the stored ID decides.
func (b *jsonBackend) find(id string) (string, error) {
	if !validID(id) {
		return "", storage.ErrNotFound
	}
	matches, err := filepath.Glob(filepath.Join(b.dir, filePrefix+"*_"+id+".json"))
	if err != nil {
		return "", fmt.Errorf("jsonbackend: %w", err)
	}
	for _, m := range matches {
		r, err := readRun(m)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return "", err
		}
		if r.ID == id {
			return m, nil
		}
	}
	return "", storage.ErrNotFound
}

func readRun(path string) (*storage.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	var r storage.Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("jsonbackend: %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}
