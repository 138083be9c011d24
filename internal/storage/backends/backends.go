// Package backends opens a storage.Backend by name.
package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranksOps/brandwatch/internal/storage"
	"github.com/FranksOps/brandwatch/internal/storage/csvbackend"
	"github.com/FranksOps/brandwatch/internal/storage/jsonbackend"
	"github.com/FranksOps/brandwatch/internal/storage/postgres"
	"github.com/FranksOps/brandwatch/internal/storage/sqlite"
)

// Kinds lists the accepted backend names.
var Kinds = []string{"json", "csv", "sqlite", "postgres"}

// Open returns the backend named kind. location is a directory for json,
// a file for csv, a path or DSN for sqlite and a connection string for
// postgres.
func Open(ctx context.Context, kind, location string) (storage.Backend, error) {
	if location == "" {
		return nil, fmt.Errorf("backends: %s backend needs a location", kind)
	}
	switch strings.ToLower(kind) {
	case "json", "":
		return jsonbackend.New(location)
	case "csv":
		return csvbackend.New(location)
	case "sqlite":
		return sqlite.New(location)
	case "postgres", "pg":
		return postgres.New(ctx, location)
	default:
		return nil, fmt.Errorf("backends: unknown backend %q (want one of %s)", kind, strings.Join(Kinds, ", "))
	}
}
