package badger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// eventSequence is a global counter to ensure unique event keys and stable
// ordering even when multiple events are written within the same nanosecond
var eventSequence uint64

// EventStorage implements the append-only progress event log for Badger.
// No update or delete of individual events is exposed.
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

// AppendEvent inserts one event under a jobID_unixNano_seq key. The
// sequence is assigned here if the caller left it zero.
func (s *EventStorage) AppendEvent(ctx context.Context, event *models.ProgressEvent) error {
	if event.JobID == "" {
		return fmt.Errorf("event job ID is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Sequence == 0 {
		event.Sequence = atomic.AddUint64(&eventSequence, 1)
	}

	key := fmt.Sprintf("%s_%d_%d", event.JobID, event.Timestamp.UnixNano(), event.Sequence)
	if err := s.db.Store().Insert(key, event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvents returns a job's events ordered by (Timestamp, Sequence)
// ascending, the replay order that guarantees a non-decreasing percent.
func (s *EventStorage) GetEvents(ctx context.Context, jobID string) ([]models.ProgressEvent, error) {
	var events []models.ProgressEvent
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("Timestamp", "Sequence")
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

func (s *EventStorage) CountEvents(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.ProgressEvent{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}
