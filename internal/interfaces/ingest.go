package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/marketsync/internal/models"
)

// Chunk is one bounded fetch work-unit: a date sub-range for a single
// symbol, or a single identifier. Produced by the planner, consumed by
// the fetcher.
type Chunk struct {
	Index  int    // 0-based position in the plan
	Label  string // Display label (chunk range or identifier)
	Symbol string
	From   time.Time
	To     time.Time
}

// SourceFetcher fetches one chunk's rows from the external data source.
// "No data" is an empty slice with a nil error, never an error.
type SourceFetcher interface {
	Fetch(ctx context.Context, chunk Chunk) ([]models.PriceRecord, error)
}

// Persister idempotently writes accumulated rows to long-term storage.
// Rows that already exist under their natural key are counted as skipped.
type Persister interface {
	Persist(ctx context.Context, rows []models.PriceRecord) (written int, skipped int, err error)
}
