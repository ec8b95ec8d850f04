package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
	"github.com/ternarybob/marketsync/internal/planner"
	"github.com/ternarybob/marketsync/internal/progress"
)

// ---------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*models.Job)}
}

func (m *memJobStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memJobStore) UpdateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("job not found: %s", job.ID)
	}
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memJobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	clone := *job
	return &clone, nil
}

func (m *memJobStore) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		clone := *j
		out = append(out, &clone)
	}
	return out, len(out), nil
}

func (m *memJobStore) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if j.Status == status {
			clone := *j
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memJobStore) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	jobs, _ := m.GetJobsByStatus(ctx, status)
	return len(jobs), nil
}

func (m *memJobStore) DeleteJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

type memEventStore struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (m *memEventStore) AppendEvent(ctx context.Context, event *models.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memEventStore) GetEvents(ctx context.Context, jobID string) ([]models.ProgressEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProgressEvent
	for _, e := range m.events {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEventStore) CountEvents(ctx context.Context, jobID string) (int, error) {
	events, _ := m.GetEvents(ctx, jobID)
	return len(events), nil
}

// fakeFetcher delegates to a per-test function.
type fakeFetcher struct {
	fetch func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
	return f.fetch(ctx, chunk)
}

// fakePersister counts every row as written unless an error is forced.
type fakePersister struct {
	err       error
	persisted []models.PriceRecord
}

func (p *fakePersister) Persist(ctx context.Context, rows []models.PriceRecord) (int, int, error) {
	if p.err != nil {
		return 0, 0, p.err
	}
	p.persisted = append(p.persisted, rows...)
	return len(rows), 0, nil
}

func rowsFor(symbol string, n int) []models.PriceRecord {
	out := make([]models.PriceRecord, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = models.PriceRecord{Symbol: symbol, Date: base.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	return out
}

type testHarness struct {
	runner    *Runner
	jobs      *memJobStore
	events    *memEventStore
	persister *fakePersister
}

func newHarness(t *testing.T, fetch func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error)) *testHarness {
	t.Helper()
	jobs := newMemJobStore()
	events := &memEventStore{}
	persister := &fakePersister{}
	agg := progress.NewAggregator(events, arbor.NewLogger())
	r := New(planner.New(60), agg, jobs, &fakeFetcher{fetch: fetch}, persister, 90, arbor.NewLogger())
	return &testHarness{runner: r, jobs: jobs, events: events, persister: persister}
}

func fetchEvents(events []models.ProgressEvent) []models.ProgressEvent {
	var out []models.ProgressEvent
	for _, e := range events {
		if e.Phase == models.PhaseFetch {
			out = append(out, e)
		}
	}
	return out
}

func persistEvents(events []models.ProgressEvent) []models.ProgressEvent {
	var out []models.ProgressEvent
	for _, e := range events {
		if e.Phase == models.PhasePersist {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------

func TestRunDateRangeJobToCompletion(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		return rowsFor(chunk.Symbol, 10), nil
	})
	ctx := context.Background()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 199) // 200 days inclusive: four chunks at 60 days
	taskID, err := h.runner.Start(ctx, Descriptor{
		Kind:  "eod_prices",
		Name:  "AAPL backfill",
		Scope: models.NewDateRangeScope("AAPL.US", from, to, 60),
	})
	require.NoError(t, err)
	h.runner.Wait()

	job, err := h.jobs.GetJob(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 4, job.ItemsCompleted)
	assert.Equal(t, 0, job.ItemsFailed)
	assert.Equal(t, 40, job.RecordsIngested)
	require.NotNil(t, job.EndedAt)

	events, err := h.events.GetEvents(ctx, taskID)
	require.NoError(t, err)

	fetched := fetchEvents(events)
	require.Len(t, fetched, 4)
	wantPercents := []int{22, 45, 67, 90}
	for i, e := range fetched {
		assert.Equal(t, wantPercents[i], e.Percent, "fetch unit %d", i)
		assert.Equal(t, models.SeveritySuccess, e.Severity)
	}

	persisted := persistEvents(events)
	require.Len(t, persisted, 2)
	assert.Equal(t, models.SeverityInfo, persisted[0].Severity)
	assert.Equal(t, 95, persisted[0].Percent)
	assert.Equal(t, models.SeveritySuccess, persisted[1].Severity)
	assert.Equal(t, 100, persisted[1].Percent)

	assert.Len(t, h.persister.persisted, 40)
}

func TestRunContinuesPastFetchErrors(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		if chunk.Symbol == "MSFT.US" {
			return nil, fmt.Errorf("upstream 502")
		}
		return rowsFor(chunk.Symbol, 5), nil
	})
	ctx := context.Background()

	taskID, err := h.runner.Start(ctx, Descriptor{
		Kind:  "eod_prices",
		Name:  "watchlist",
		Scope: models.NewIdentifierListScope([]string{"AAPL.US", "MSFT.US", "GOOG.US"}, time.Time{}, time.Time{}),
	})
	require.NoError(t, err)
	h.runner.Wait()

	job, err := h.jobs.GetJob(ctx, taskID)
	require.NoError(t, err)
	// A failed unit does not fail the job
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.ItemsCompleted)
	assert.Equal(t, 1, job.ItemsFailed)
	assert.Equal(t, 10, job.RecordsIngested)

	events, err := h.events.GetEvents(ctx, taskID)
	require.NoError(t, err)

	var errorEvents []models.ProgressEvent
	for _, e := range events {
		if e.Severity == models.SeverityError {
			errorEvents = append(errorEvents, e)
		}
	}
	require.Len(t, errorEvents, 1)
	assert.Equal(t, "MSFT.US", errorEvents[0].UnitLabel)
	assert.Nil(t, errorEvents[0].RecordsDelta)
}

func TestRunEmptyFetchIsWarningNotFailure(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		return nil, nil
	})
	ctx := context.Background()

	taskID, err := h.runner.Start(ctx, Descriptor{
		Kind:  "eod_prices",
		Name:  "delisted",
		Scope: models.NewIdentifierListScope([]string{"GONE.US"}, time.Time{}, time.Time{}),
	})
	require.NoError(t, err)
	h.runner.Wait()

	job, err := h.jobs.GetJob(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.ItemsCompleted)
	assert.Equal(t, 0, job.ItemsFailed)
	assert.Equal(t, 0, job.RecordsIngested)

	events, err := h.events.GetEvents(ctx, taskID)
	require.NoError(t, err)
	fetched := fetchEvents(events)
	require.Len(t, fetched, 1)
	assert.Equal(t, models.SeverityWarning, fetched[0].Severity)
	require.NotNil(t, fetched[0].RecordsDelta)
	assert.Equal(t, 0, *fetched[0].RecordsDelta)
}

func TestRunEmptyPlanCompletesImmediately(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		t.Error("fetcher must not be called for an empty plan")
		return nil, nil
	})
	ctx := context.Background()

	taskID, err := h.runner.Start(ctx, Descriptor{
		Kind:  "eod_prices",
		Name:  "nothing to do",
		Scope: models.NewIdentifierListScope(nil, time.Time{}, time.Time{}),
	})
	require.NoError(t, err)
	h.runner.Wait()

	job, err := h.jobs.GetJob(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 0, job.RecordsIngested)

	events, err := h.events.GetEvents(ctx, taskID)
	require.NoError(t, err)
	// Even a no-op job produces a persist start and a completion event
	require.Len(t, events, 2)
	assert.Equal(t, models.PhasePersist, events[0].Phase)
	assert.Equal(t, 100, events[1].Percent)
}

func TestPersistErrorFailsJob(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		return rowsFor(chunk.Symbol, 3), nil
	})
	h.persister.err = fmt.Errorf("disk full")
	ctx := context.Background()

	taskID, err := h.runner.Start(ctx, Descriptor{
		Kind:  "eod_prices",
		Name:  "doomed",
		Scope: models.NewIdentifierListScope([]string{"AAPL.US"}, time.Time{}, time.Time{}),
	})
	require.NoError(t, err)
	h.runner.Wait()

	job, err := h.jobs.GetJob(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "persist failed")
	assert.Equal(t, 0, job.RecordsIngested)

	events, err := h.events.GetEvents(ctx, taskID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, models.PhasePersist, last.Phase)
	assert.Equal(t, models.SeverityError, last.Severity)
}

func TestCancelBetweenChunks(t *testing.T) {
	var h *testHarness
	var taskID string
	started := make(chan struct{})

	h = newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		if chunk.Index == 0 {
			<-started
			// Flag is set while unit 0 is in flight; the worker notices
			// it at the next chunk boundary.
			assert.NoError(t, h.runner.Cancel(context.Background(), taskID))
		}
		return rowsFor(chunk.Symbol, 5), nil
	})
	ctx := context.Background()

	var err error
	taskID, err = h.runner.Start(ctx, Descriptor{
		Kind:  "eod_prices",
		Name:  "cancelled mid-run",
		Scope: models.NewIdentifierListScope([]string{"AAPL.US", "MSFT.US", "GOOG.US"}, time.Time{}, time.Time{}),
	})
	require.NoError(t, err)
	close(started)
	h.runner.Wait()

	job, err := h.jobs.GetJob(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Equal(t, 1, job.ItemsCompleted, "only the in-flight unit finishes")

	// Nothing reaches the persister on cancellation
	assert.Empty(t, h.persister.persisted)

	events, err := h.events.GetEvents(ctx, taskID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Contains(t, last.Message, "cancelled after 1 of 3")
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		return rowsFor(chunk.Symbol, 1), nil
	})
	ctx := context.Background()

	taskID, err := h.runner.Start(ctx, Descriptor{
		Kind:  "eod_prices",
		Name:  "finished",
		Scope: models.NewIdentifierListScope([]string{"AAPL.US"}, time.Time{}, time.Time{}),
	})
	require.NoError(t, err)
	h.runner.Wait()

	assert.NoError(t, h.runner.Cancel(ctx, taskID))
}

func TestCancelUnknownJob(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		return nil, nil
	})
	assert.Error(t, h.runner.Cancel(context.Background(), "no-such-task"))
}

func TestStartRejectsInvalidDescriptor(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, chunk interfaces.Chunk) ([]models.PriceRecord, error) {
		return nil, nil
	})
	ctx := context.Background()

	_, err := h.runner.Start(ctx, Descriptor{
		Scope: models.NewIdentifierListScope([]string{"AAPL.US"}, time.Time{}, time.Time{}),
	})
	assert.Error(t, err, "kind is required")

	_, err = h.runner.Start(ctx, Descriptor{Kind: "eod_prices", Scope: models.Scope{Type: "bogus"}})
	assert.Error(t, err)
}
