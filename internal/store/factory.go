package store

import (
	"context"
	"fmt"
	"strings"
)

// New picks a backend from the database URL: postgres URLs go to pgx,
// "sqlite:<path>" to the embedded sqlite driver, empty to in-memory.
func New(ctx context.Context, databaseURL string) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case url == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(url, "sqlite:"):
		return NewSQLiteStore(strings.TrimPrefix(url, "sqlite:"))
	default:
		return nil, fmt.Errorf("unsupported database url %q (expected postgres://, postgresql:// or sqlite:)", url)
	}
}
