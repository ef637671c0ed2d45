// Package driver opens a store backend from a single URL, so callers
// pick the engine with configuration instead of imports.
package driver

import (
	"context"
	"fmt"
	"strings"

	bunstore "github.com/kartikbazzad/bunstore"
	"github.com/kartikbazzad/bunstore/memory"
	"github.com/kartikbazzad/bunstore/postgres"
	"github.com/kartikbazzad/bunstore/sqlite"
)

// Open opens the backend named by the URL scheme:
//
//	memory://                 in-process store
//	sqlite://path/to/file.db  SQLite database file
//	postgres://user@host/db   PostgreSQL (also postgresql://)
func Open(ctx context.Context, url string) (bunstore.Store, error) {
	switch {
	case url == "memory://" || strings.HasPrefix(url, "memory:"):
		return memory.New(), nil
	case strings.HasPrefix(url, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported store url %q", url)
	}
}

// Setup prepares persistent state for the backend named by the URL.
// PostgreSQL runs schema migrations; SQLite and memory create their
// state on Open, so Setup is a no-op for them.
func Setup(url string) error {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Setup(url)
	case url == "memory://", strings.HasPrefix(url, "memory:"), strings.HasPrefix(url, "sqlite://"):
		return nil
	default:
		return fmt.Errorf("unsupported store url %q", url)
	}
}
