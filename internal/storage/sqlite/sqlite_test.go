package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/brandwatch/internal/storage"
	"github.com/FranksOps/brandwatch/internal/storage/storagetest"
)

func TestSQLiteBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "brandwatch.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	storagetest.Run(t, b)
}

func TestSQLiteBackend_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brandwatch.db")
	b, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	if err := b.Save(context.Background(), storagetest.NewRun("r1", "Acme", time.Now())); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	b.Close()

	b, err = New(path)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer b.Close()

	runs, err := b.Query(context.Background(), storage.Filter{Offset: 0, Limit: 10})
	if err != nil || len(runs) != 1 || runs[0].Summary.PlaceholderItems != 1 {
		t.Errorf("expected persisted run, got %v (%v)", runs, err)
	}
}
