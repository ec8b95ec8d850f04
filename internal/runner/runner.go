// -----------------------------------------------------------------------
// JobRunner - owns one job's end-to-end fetch/persist execution
// -----------------------------------------------------------------------

package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
	"github.com/ternarybob/marketsync/internal/planner"
	"github.com/ternarybob/marketsync/internal/progress"
)

// Descriptor describes one ingestion request.
type Descriptor struct {
	Kind  string `validate:"required"`
	Name  string
	Scope models.Scope
}

// Runner plans chunks, drives the fetch/persist loop on a background
// goroutine per job, checks cancellation at chunk boundaries, computes the
// two-phase progress mapping and sets the terminal state.
type Runner struct {
	planner    *planner.Planner
	aggregator *progress.Aggregator
	jobs       interfaces.JobStorage
	fetcher    interfaces.SourceFetcher
	persister  interfaces.Persister
	cancels    *CancelRegistry
	logger     arbor.ILogger

	persistSplit int

	ctx       context.Context
	cancelCtx context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a job runner. persistSplit is the percent boundary between
// the fetch and persist phases (fetch occupies [0, persistSplit)).
func New(
	pln *planner.Planner,
	aggregator *progress.Aggregator,
	jobs interfaces.JobStorage,
	fetcher interfaces.SourceFetcher,
	persister interfaces.Persister,
	persistSplit int,
	logger arbor.ILogger,
) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		planner:      pln,
		aggregator:   aggregator,
		jobs:         jobs,
		fetcher:      fetcher,
		persister:    persister,
		cancels:      NewCancelRegistry(),
		logger:       logger,
		persistSplit: persistSplit,
		ctx:          ctx,
		cancelCtx:    cancel,
	}
}

// Start creates the job row, registers it for cancellation and live
// progress, and hands the fetch/persist loop to its own goroutine. The
// caller never blocks on the loop.
func (r *Runner) Start(ctx context.Context, desc Descriptor) (string, error) {
	if desc.Kind == "" {
		return "", fmt.Errorf("descriptor kind is required")
	}
	if err := desc.Scope.Validate(); err != nil {
		return "", err
	}

	// Planning is pure and deterministic, so the total unit count reported
	// to pollers is fixed before the worker starts.
	chunks, err := r.planner.Plan(desc.Scope)
	if err != nil {
		return "", err
	}

	job := models.NewJob(desc.Kind, desc.Name, desc.Scope)
	if err := r.jobs.CreateJob(ctx, job); err != nil {
		return "", err
	}

	job.MarkRunning()
	if err := r.jobs.UpdateJob(ctx, job); err != nil {
		return "", err
	}

	r.cancels.Register(job.ID)
	r.aggregator.StartTracking(job, len(chunks))

	r.logger.Info().
		Str("job_id", job.ID).
		Str("kind", job.Kind).
		Int("total_units", len(chunks)).
		Msg("Ingestion job started")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job, chunks)
	}()

	return job.ID, nil
}

// Cancel sets the cooperative cancellation flag for a task. It returns
// immediately with no guarantee the job has stopped; the flag is polled
// between chunks.
func (r *Runner) Cancel(ctx context.Context, taskID string) error {
	job, err := r.jobs.GetJob(ctx, taskID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	if !r.cancels.Cancel(taskID) {
		return fmt.Errorf("job has no live worker: %s", taskID)
	}
	r.logger.Info().Str("job_id", taskID).Msg("Cancellation requested")
	return nil
}

// Shutdown cancels the worker context and waits for in-flight jobs to
// settle. Jobs interrupted mid-chunk are picked up by the recovery scanner
// on next start.
func (r *Runner) Shutdown() {
	r.cancelCtx()
	r.wg.Wait()
}

// Wait blocks until all started jobs have reached a terminal state.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run drives one job to a terminal state. Fetch errors are per-chunk and
// recoverable; persist errors are fatal.
func (r *Runner) run(job *models.Job, chunks []interfaces.Chunk) {
	ctx := r.ctx
	defer func() {
		r.cancels.Unregister(job.ID)
		r.aggregator.FinishTracking(job.ID)
	}()

	total := len(chunks)
	var buffered []models.PriceRecord

	for i, chunk := range chunks {
		if r.cancels.IsCancelled(job.ID) {
			r.finishCancelled(ctx, job, i, total)
			return
		}

		rows, err := r.fetcher.Fetch(ctx, chunk)
		percent := r.fetchPercent(i+1, total)

		switch {
		case err != nil:
			job.ItemsFailed++
			r.emit(ctx, job, &models.ProgressEvent{
				JobID:     job.ID,
				Phase:     models.PhaseFetch,
				UnitLabel: chunk.Label,
				Severity:  models.SeverityError,
				Message:   fmt.Sprintf("fetch failed for %s: %v", chunk.Label, err),
				Percent:   percent,
			})
			r.logger.Warn().Err(err).
				Str("job_id", job.ID).
				Str("unit", chunk.Label).
				Msg("Chunk fetch failed, continuing")
		case len(rows) == 0:
			job.ItemsCompleted++
			delta := 0
			r.emit(ctx, job, &models.ProgressEvent{
				JobID:        job.ID,
				Phase:        models.PhaseFetch,
				UnitLabel:    chunk.Label,
				Severity:     models.SeverityWarning,
				Message:      fmt.Sprintf("no data for %s", chunk.Label),
				RecordsDelta: &delta,
				Percent:      percent,
			})
		default:
			job.ItemsCompleted++
			buffered = append(buffered, rows...)
			delta := len(rows)
			r.emit(ctx, job, &models.ProgressEvent{
				JobID:        job.ID,
				Phase:        models.PhaseFetch,
				UnitLabel:    chunk.Label,
				Severity:     models.SeveritySuccess,
				Message:      fmt.Sprintf("fetched %d records for %s", len(rows), chunk.Label),
				RecordsDelta: &delta,
				Percent:      percent,
			})
		}

		// Best-effort counter cache; the event log is the audit source of
		// truth and the row is refreshed again on the terminal transition.
		if err := r.jobs.UpdateJob(ctx, job); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to update job counters")
		}
	}

	if r.cancels.IsCancelled(job.ID) {
		r.finishCancelled(ctx, job, total, total)
		return
	}

	r.persist(ctx, job, buffered)
}

// persist runs the persist phase: at least a start event and a completion
// event, regardless of how many internal steps the persister performs.
func (r *Runner) persist(ctx context.Context, job *models.Job, rows []models.PriceRecord) {
	r.emit(ctx, job, &models.ProgressEvent{
		JobID:    job.ID,
		Phase:    models.PhasePersist,
		Severity: models.SeverityInfo,
		Message:  fmt.Sprintf("persisting %d records", len(rows)),
		Percent:  r.persistStartPercent(),
	})

	written, skipped := 0, 0
	if len(rows) > 0 {
		var err error
		written, skipped, err = r.persister.Persist(ctx, rows)
		if err != nil {
			// Unlike fetch errors, a persist failure is fatal for the job.
			job.MarkFailed(fmt.Sprintf("persist failed: %v", err))
			r.emit(ctx, job, &models.ProgressEvent{
				JobID:    job.ID,
				Phase:    models.PhasePersist,
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("persist failed: %v", err),
				Percent:  r.persistStartPercent(),
			})
			r.finish(ctx, job)
			return
		}
	}

	delta := written
	job.RecordsIngested = written
	job.MarkCompleted()
	r.emit(ctx, job, &models.ProgressEvent{
		JobID:        job.ID,
		Phase:        models.PhasePersist,
		Severity:     models.SeveritySuccess,
		Message:      fmt.Sprintf("persisted %d records (%d already present)", written, skipped),
		RecordsDelta: &delta,
		Percent:      100,
	})
	r.finish(ctx, job)
}

func (r *Runner) finishCancelled(ctx context.Context, job *models.Job, done, total int) {
	job.MarkCancelled()
	r.emit(ctx, job, &models.ProgressEvent{
		JobID:    job.ID,
		Phase:    models.PhaseFetch,
		Severity: models.SeverityInfo,
		Message:  fmt.Sprintf("cancelled after %d of %d units", done, total),
		Percent:  r.fetchPercent(done, total),
	})
	r.finish(ctx, job)
}

// finish persists the terminal row and reflects the status in the live
// snapshot. Job and event writes are not mutually atomic; that weak
// consistency is accepted.
func (r *Runner) finish(ctx context.Context, job *models.Job) {
	if err := r.jobs.UpdateJob(ctx, job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist terminal job state")
	}
	r.aggregator.SetStatus(job.Kind, job.ID, job.Status)

	r.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Int("items_completed", job.ItemsCompleted).
		Int("items_failed", job.ItemsFailed).
		Int("records_ingested", job.RecordsIngested).
		Dur("duration", job.Duration()).
		Msg("Ingestion job finished")
}

func (r *Runner) emit(ctx context.Context, job *models.Job, event *models.ProgressEvent) {
	if err := r.aggregator.Consume(ctx, job.Kind, event); err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record progress event")
	}
}

// fetchPercent maps completed fetch units onto [0, persistSplit] with
// strict, bounded growth; the final unit pins exactly to persistSplit.
func (r *Runner) fetchPercent(completed, total int) int {
	if total <= 0 {
		return r.persistSplit
	}
	return completed * r.persistSplit / total
}

// persistStartPercent is the first persist-phase value, midway between the
// split and completion so pollers see the phase change.
func (r *Runner) persistStartPercent() int {
	return r.persistSplit + (100-r.persistSplit)/2
}
