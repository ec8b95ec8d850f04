package eodhd

import (
	"context"

	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
)

// Fetcher adapts the EODHD client to the core SourceFetcher interface.
// One chunk maps to one GetEOD call. "No data" is an empty slice with a
// nil error, never an error.
type Fetcher struct {
	client *Client
}

// Compile-time assertion
var _ interfaces.SourceFetcher = (*Fetcher)(nil)

// NewFetcher wraps an EODHD client.
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch retrieves one chunk's rows.
func (f *Fetcher) Fetch(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
	bars, err := f.client.GetEOD(ctx, chunk.Symbol, chunk.From, chunk.To)
	if err != nil {
		return nil, err
	}

	rows := make([]models.PriceRecord, 0, len(bars))
	for _, bar := range bars {
		rows = append(rows, models.PriceRecord{
			Symbol:   chunk.Symbol,
			Date:     bar.Date,
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			AdjClose: bar.AdjustedClose,
			Volume:   bar.Volume,
		})
	}
	return rows, nil
}
