package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/brandwatch/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// headers defines the CSV column order. The summary columns make the file
// useful in a spreadsheet; run_json carries the full run.
var headers = []string{
	"id",
	"brand",
	"created_at",
	"total_search_results",
	"total_scraped_items",
	"placeholder_items",
	"has_sentiment",
	"has_report",
	"run_json",
}

const colJSON = 8

// rename is swapped in tests to simulate a failed replace.
var rename = os.Rename

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	b := &csvBackend{path: filePath}
	if err := b.open(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *csvBackend) open() error {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("csvbackend: %w", err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return fmt.Errorf("csvbackend: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return fmt.Errorf("csvbackend: %w", err)
		}
	}
	b.file = f
	return nil
}

func toRecord(run *storage.Run) ([]string, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	return []string{
		run.ID,
		run.Brand,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(run.Summary.TotalSearchResults),
		strconv.Itoa(run.Summary.TotalScrapedItems),
		strconv.Itoa(run.Summary.PlaceholderItems),
		strconv.FormatBool(run.Summary.HasSentiment),
		strconv.FormatBool(run.Summary.HasReport),
		string(data),
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, run *storage.Run) error {
	record, err := toRecord(run)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	runs, err := b.readAll()
	if err != nil {
		return err
	}
	for _, r := range runs {
		if r.ID == run.ID {
			return b.rewrite(runs, run.ID, run)
		}
	}

	// Ensure we're at the end of the file for appending (just in case)
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	return nil
}

func (b *csvBackend) Get(ctx context.Context, id string) (*storage.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	runs, err := b.readAll()
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	runs, err := b.readAll()
	if err != nil {
		return nil, err
	}
	return filter.Apply(runs), nil
}

func (b *csvBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	runs, err := b.readAll()
	if err != nil {
		return err
	}
	for _, r := range runs {
		if r.ID == id {
			return b.rewrite(runs, id, nil)
		}
	}
	return storage.ErrNotFound
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

// readAll decodes every row. Malformed rows are skipped.
func (b *csvBackend) readAll() ([]*storage.Run, error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.Run{}, nil
		}
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	var runs []*storage.Run
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		var run storage.Run
		if err := json.Unmarshal([]byte(record[colJSON]), &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// rewrite replaces the file with runs, swapping the run with id for
// replacement (or dropping it when replacement is nil).
// The original file stays open and intact if the rewrite fails.
func (b *csvBackend) rewrite(runs []*storage.Run, id string, replacement *storage.Run) (err error) {
	tmp := b.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	w := csv.NewWriter(f)
	_ = w.Write(headers)
	for _, r := range runs {
		if r.ID == id {
			if replacement == nil {
				continue
			}
			r = replacement
		}
		record, err := toRecord(r)
		if err != nil {
			f.Close()
			return err
		}
		_ = w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("csvbackend: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	_ = b.file.Close()
	if err := rename(tmp, b.path); err != nil {
		if reopenErr := b.open(); reopenErr != nil {
			return fmt.Errorf("csvbackend: %w", errors.Join(err, reopenErr))
		}
		return fmt.Errorf("csvbackend: %w", err)
	}
	return b.open()
}
