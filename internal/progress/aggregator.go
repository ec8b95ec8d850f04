// -----------------------------------------------------------------------
// ProgressAggregator - sole writer of LiveSnapshot, sole inserter of events
// -----------------------------------------------------------------------

package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
)

// kindTracker serializes all events for one data kind. The lock is held
// only while applying a single event, never across an external fetch or
// persist call.
type kindTracker struct {
	mu       sync.Mutex
	snapshot *models.LiveSnapshot
}

// jobTrack carries the per-job monotonic state that survives snapshot
// replacement: a superseded job keeps running and logging, it only loses
// snapshot visibility.
type jobTrack struct {
	percent int
	records int
}

// Aggregator applies progress events to the in-memory live snapshots and
// appends them to the durable event log. It is the only component that
// mutates either.
type Aggregator struct {
	events   interfaces.EventStorage
	logger   arbor.ILogger
	sequence uint64

	mu    sync.RWMutex // guards the maps, not event application
	kinds map[string]*kindTracker
	jobs  map[string]*jobTrack
}

// NewAggregator creates a progress aggregator over the given event log.
func NewAggregator(events interfaces.EventStorage, logger arbor.ILogger) *Aggregator {
	return &Aggregator{
		events: events,
		logger: logger,
		kinds:  make(map[string]*kindTracker),
		jobs:   make(map[string]*jobTrack),
	}
}

func (a *Aggregator) tracker(kind string) *kindTracker {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.kinds[kind]
	if !ok {
		t = &kindTracker{}
		a.kinds[kind] = t
	}
	return t
}

// StartTracking registers a job and makes it the visible snapshot for its
// kind, replacing any previous snapshot wholesale. The superseded job (if
// still running) keeps its event log but is no longer reachable here.
func (a *Aggregator) StartTracking(job *models.Job, totalUnits int) {
	a.mu.Lock()
	a.jobs[job.ID] = &jobTrack{}
	a.mu.Unlock()

	t := a.tracker(job.Kind)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snapshot != nil && a.logger != nil {
		a.logger.Debug().
			Str("kind", job.Kind).
			Str("superseded_job", t.snapshot.JobID).
			Str("job_id", job.ID).
			Msg("Live snapshot replaced by newer job")
	}

	now := time.Now()
	t.snapshot = &models.LiveSnapshot{
		JobID:      job.ID,
		Kind:       job.Kind,
		Status:     models.JobStatusRunning,
		StartedAt:  now,
		UpdatedAt:  now,
		TotalUnits: totalUnits,
	}
}

// Consume applies one event: clamps its percent so a task's sequence never
// decreases, appends it to the event log, and folds it into the snapshot
// if the event's job owns the visible snapshot for its kind.
func (a *Aggregator) Consume(ctx context.Context, kind string, event *models.ProgressEvent) error {
	a.mu.RLock()
	track, known := a.jobs[event.JobID]
	a.mu.RUnlock()
	if !known {
		return fmt.Errorf("unknown job: %s", event.JobID)
	}

	t := a.tracker(kind)
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Sequence = atomic.AddUint64(&a.sequence, 1)

	// Belt and braces on top of the runner's own monotonic construction
	if event.Percent < track.percent {
		event.Percent = track.percent
	}
	track.percent = event.Percent
	if event.RecordsDelta != nil {
		track.records += *event.RecordsDelta
	}

	if err := a.events.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to append progress event: %w", err)
	}

	snap := t.snapshot
	if snap == nil || snap.JobID != event.JobID {
		return nil // Superseded job: durable log only, no visibility
	}

	snap.Percent = event.Percent
	snap.RecordsDownloaded = track.records
	snap.LastMessage = event.Message
	snap.UpdatedAt = event.Timestamp
	if event.Phase == models.PhaseFetch && event.Severity != models.SeverityInfo {
		if snap.UnitIndex < snap.TotalUnits {
			snap.UnitIndex++
		}
	}
	return nil
}

// SetStatus reflects a job's terminal status in its snapshot, if that job
// still owns snapshot visibility for the kind.
func (a *Aggregator) SetStatus(kind, jobID string, status models.JobStatus) {
	t := a.tracker(kind)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot != nil && t.snapshot.JobID == jobID {
		t.snapshot.Status = status
		t.snapshot.UpdatedAt = time.Now()
	}
}

// FinishTracking drops the per-job monotonic state once a job is terminal.
// The snapshot stays visible (with its final status) until a newer job of
// the same kind replaces it.
func (a *Aggregator) FinishTracking(jobID string) {
	a.mu.Lock()
	delete(a.jobs, jobID)
	a.mu.Unlock()
}

// Snapshot returns a copy of the visible snapshot for a kind, or false if
// no job of that kind has started since the process came up.
func (a *Aggregator) Snapshot(kind string) (*models.LiveSnapshot, bool) {
	a.mu.RLock()
	t, ok := a.kinds[kind]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot == nil {
		return nil, false
	}
	return t.snapshot.Clone(), true
}
