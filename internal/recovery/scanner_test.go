package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/common"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
	"github.com/ternarybob/marketsync/internal/storage/badger"
)

func openJobStorage(t *testing.T) interfaces.JobStorage {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return badger.NewJobStorage(db, logger)
}

func seedJob(t *testing.T, jobs interfaces.JobStorage, status models.JobStatus) *models.Job {
	t.Helper()
	job := models.NewJob("eod_prices", "seed "+string(status),
		models.NewIdentifierListScope([]string{"AAPL.US"}, time.Time{}, time.Time{}))
	switch status {
	case models.JobStatusRunning:
		job.MarkRunning()
	case models.JobStatusCompleted:
		job.MarkCompleted()
	case models.JobStatusFailed:
		job.MarkFailed("seeded failure")
	case models.JobStatusCancelled:
		job.MarkCancelled()
	}
	require.NoError(t, jobs.CreateJob(context.Background(), job))
	return job
}

func TestScanMarksRunningJobsFailed(t *testing.T) {
	jobs := openJobStorage(t)
	ctx := context.Background()

	orphan := seedJob(t, jobs, models.JobStatusRunning)
	completed := seedJob(t, jobs, models.JobStatusCompleted)
	failed := seedJob(t, jobs, models.JobStatusFailed)
	pending := seedJob(t, jobs, models.JobStatusPending)

	scanner := NewScanner(jobs, arbor.NewLogger())
	converted, err := scanner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, converted)

	got, err := jobs.GetJob(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, InterruptedMessage, got.Error)
	require.NotNil(t, got.EndedAt)

	// Terminal and pending jobs are untouched
	got, err = jobs.GetJob(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)

	got, err = jobs.GetJob(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, "seeded failure", got.Error)

	got, err = jobs.GetJob(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
}

func TestScanIsIdempotent(t *testing.T) {
	jobs := openJobStorage(t)
	ctx := context.Background()

	seedJob(t, jobs, models.JobStatusRunning)
	seedJob(t, jobs, models.JobStatusRunning)

	scanner := NewScanner(jobs, arbor.NewLogger())
	converted, err := scanner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, converted)

	converted, err = scanner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, converted, "second scan finds nothing to convert")
}

func TestScanEmptyStore(t *testing.T) {
	jobs := openJobStorage(t)

	scanner := NewScanner(jobs, arbor.NewLogger())
	converted, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, converted)
}
