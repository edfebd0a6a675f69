package site

import (
	"context"
	"fmt"
)

// Counter reports how many site rows exist, soft-deleted ones included.
type Counter interface {
	CountAll(ctx context.Context) (int64, error)
}

// CustomIDGenerator derives the human-readable id from the row count:
// Prefix + zero-padded (count + Offset + 1).  Numbers wider than Width are
// printed in full.
type CustomIDGenerator struct {
	Prefix string
	Offset int64
	Width  int
}

// DefaultCustomIDs yields SITE0021 for an empty table.
var DefaultCustomIDs = CustomIDGenerator{Prefix: "SITE", Offset: 20, Width: 4}

// Format renders the id that follows count existing rows.
func (g CustomIDGenerator) Format(count int64) string {
	return fmt.Sprintf("%s%0*d", g.Prefix, g.Width, count+g.Offset+1)
}

// Generate counts through c and formats the next id.  Uniqueness depends on
// c: the repository passes a counter that holds a locking read inside the
// insert transaction.
func (g CustomIDGenerator) Generate(ctx context.Context, c Counter) (string, error) {
	n, err := c.CountAll(ctx)
	if err != nil {
		return "", fmt.Errorf("count sites: %w", err)
	}
	return g.Format(n), nil
}
