package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PriceStorage persists ingested price records. Writes are idempotent under
// the natural (symbol, date) key: a row that already exists is skipped, so
// re-running a job over the same range is safe.
type PriceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPriceStorage creates a new PriceStorage instance
func NewPriceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PriceStorage {
	return &PriceStorage{
		db:     db,
		logger: logger,
	}
}

// Persist writes rows under their natural key and reports how many were
// new versus already present.
func (s *PriceStorage) Persist(ctx context.Context, rows []models.PriceRecord) (int, int, error) {
	written, skipped := 0, 0
	for i := range rows {
		row := rows[i]
		key := row.Key()

		var existing models.PriceRecord
		err := s.db.Store().Get(key, &existing)
		if err == nil {
			skipped++
			continue
		}
		if err != badgerhold.ErrNotFound {
			return written, skipped, fmt.Errorf("failed to check price record %s: %w", key, err)
		}

		if err := s.db.Store().Insert(key, &row); err != nil {
			return written, skipped, fmt.Errorf("failed to persist price record %s: %w", key, err)
		}
		written++
	}

	if s.logger != nil {
		s.logger.Debug().
			Int("written", written).
			Int("skipped", skipped).
			Msg("Price records persisted")
	}
	return written, skipped, nil
}

func (s *PriceStorage) GetPrices(ctx context.Context, symbol string) ([]models.PriceRecord, error) {
	var records []models.PriceRecord
	query := badgerhold.Where("Symbol").Eq(symbol).SortBy("Date")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}
	return records, nil
}

func (s *PriceStorage) CountPrices(ctx context.Context, symbol string) (int, error) {
	count, err := s.db.Store().Count(&models.PriceRecord{}, badgerhold.Where("Symbol").Eq(symbol))
	if err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return int(count), nil
}
