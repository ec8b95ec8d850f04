// -----------------------------------------------------------------------
// Status service - read-only progress and job history queries
// -----------------------------------------------------------------------

package status

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
	"github.com/ternarybob/marketsync/internal/progress"
)

// JobStats are derived from a job's event log on read.
type JobStats struct {
	Duration         time.Duration           `json:"duration"`
	TotalRecords     int                     `json:"total_records"` // Sum of fetch-phase records_delta
	CountsBySeverity map[models.Severity]int `json:"counts_by_severity"`
}

// JobDetail is the full historical view of one job.
type JobDetail struct {
	Job    *models.Job            `json:"job"`
	Events []models.ProgressEvent `json:"events"`
	Stats  JobStats               `json:"stats"`
}

// Service answers live-snapshot and historical queries. Read-only and
// side-effect-free; safe under arbitrary concurrent polling.
type Service struct {
	aggregator *progress.Aggregator
	jobs       interfaces.JobStorage
	events     interfaces.EventStorage
	logger     arbor.ILogger
}

// NewService creates a status query service.
func NewService(aggregator *progress.Aggregator, jobs interfaces.JobStorage, events interfaces.EventStorage, logger arbor.ILogger) *Service {
	return &Service{
		aggregator: aggregator,
		jobs:       jobs,
		events:     events,
		logger:     logger,
	}
}

// GetLiveSnapshot returns the visible snapshot for a kind, or false when
// no job of that kind has started since the process came up (idle).
func (s *Service) GetLiveSnapshot(kind string) (*models.LiveSnapshot, bool) {
	return s.aggregator.Snapshot(kind)
}

// GetJobDetail returns the job row, its ordered event log and derived
// stats. Works for running and historical jobs alike, including jobs that
// lost snapshot visibility to a newer job of the same kind.
func (s *Service) GetJobDetail(ctx context.Context, taskID string) (*JobDetail, error) {
	job, err := s.jobs.GetJob(ctx, taskID)
	if err != nil {
		return nil, err
	}

	events, err := s.events.GetEvents(ctx, taskID)
	if err != nil {
		return nil, err
	}

	stats := JobStats{
		Duration:         job.Duration(),
		CountsBySeverity: make(map[models.Severity]int),
	}
	for _, e := range events {
		stats.CountsBySeverity[e.Severity]++
		if e.Phase == models.PhaseFetch && e.RecordsDelta != nil {
			stats.TotalRecords += *e.RecordsDelta
		}
	}

	return &JobDetail{
		Job:    job,
		Events: events,
		Stats:  stats,
	}, nil
}

// ListJobs returns one page of jobs plus the total match count.
func (s *Service) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	return s.jobs.ListJobs(ctx, opts)
}
