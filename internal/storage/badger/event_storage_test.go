package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/models"
)

func TestAppendAndReplayEvents(t *testing.T) {
	db := openTestDB(t)
	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now()
	percents := []int{22, 45, 67, 90, 95, 100}
	for i, p := range percents {
		err := storage.AppendEvent(ctx, &models.ProgressEvent{
			JobID:     "job-1",
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Phase:     models.PhaseFetch,
			Severity:  models.SeveritySuccess,
			Percent:   p,
		})
		if err != nil {
			t.Fatalf("Failed to append event: %v", err)
		}
	}

	// Events for another job must not leak into the replay
	err := storage.AppendEvent(ctx, &models.ProgressEvent{
		JobID:    "job-2",
		Phase:    models.PhaseFetch,
		Severity: models.SeverityError,
		Percent:  10,
	})
	if err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}

	events, err := storage.GetEvents(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if len(events) != len(percents) {
		t.Fatalf("Expected %d events, got %d", len(percents), len(events))
	}
	for i, e := range events {
		if e.Percent != percents[i] {
			t.Errorf("Event %d: expected percent %d, got %d", i, percents[i], e.Percent)
		}
	}

	count, err := storage.CountEvents(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if count != len(percents) {
		t.Errorf("Expected count %d, got %d", len(percents), count)
	}
}

func TestAppendEventsSameTimestamp(t *testing.T) {
	db := openTestDB(t)
	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// Identical timestamps: the assigned sequence keeps ordering and key
	// uniqueness
	ts := time.Now()
	for i := 0; i < 3; i++ {
		err := storage.AppendEvent(ctx, &models.ProgressEvent{
			JobID:     "job-same-ts",
			Timestamp: ts,
			Phase:     models.PhaseFetch,
			Severity:  models.SeveritySuccess,
			Percent:   (i + 1) * 10,
		})
		if err != nil {
			t.Fatalf("Failed to append event %d: %v", i, err)
		}
	}

	events, err := storage.GetEvents(ctx, "job-same-ts")
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			t.Error("Expected events ordered by sequence within equal timestamps")
		}
		if events[i].Percent < events[i-1].Percent {
			t.Error("Expected replay order to preserve non-decreasing percent")
		}
	}
}

func TestAppendEventRequiresJobID(t *testing.T) {
	db := openTestDB(t)
	storage := NewEventStorage(db, arbor.NewLogger())

	err := storage.AppendEvent(context.Background(), &models.ProgressEvent{Percent: 50})
	if err == nil {
		t.Error("Expected error appending event without job ID")
	}
}

func TestGetEventsEmptyJob(t *testing.T) {
	db := openTestDB(t)
	storage := NewEventStorage(db, arbor.NewLogger())

	events, err := storage.GetEvents(context.Background(), "no-events")
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events, got %d", len(events))
	}
}
