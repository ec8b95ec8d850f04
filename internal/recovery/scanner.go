// -----------------------------------------------------------------------
// RecoveryScanner - converts jobs orphaned by a crash into failed jobs
// -----------------------------------------------------------------------

package recovery

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
)

// InterruptedMessage marks jobs failed by a restart, so operators can
// separate "genuinely failed" from "orphaned by restart".
const InterruptedMessage = "interrupted by restart"

// Scanner runs once at process start, before any job may be accepted. A
// running status can only legitimately exist while a live worker owns it,
// and live snapshots are never persisted, so any job still marked running
// from a prior process is forced to failed.
type Scanner struct {
	jobs   interfaces.JobStorage
	logger arbor.ILogger
}

// NewScanner creates a recovery scanner.
func NewScanner(jobs interfaces.JobStorage, logger arbor.ILogger) *Scanner {
	return &Scanner{jobs: jobs, logger: logger}
}

// Run marks every still-running job as failed with an interruption marker.
// Running it twice in a row is a no-op the second time. Returns the number
// of jobs converted.
func (s *Scanner) Run(ctx context.Context) (int, error) {
	orphaned, err := s.jobs.GetJobsByStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return 0, err
	}

	startupTime := time.Now()
	converted := 0
	for _, job := range orphaned {
		job.Status = models.JobStatusFailed
		job.Error = InterruptedMessage
		ended := startupTime
		job.EndedAt = &ended
		if err := s.jobs.UpdateJob(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark orphaned job")
			continue
		}
		converted++
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("kind", job.Kind).
			Msg("Orphaned job marked as failed")
	}

	if converted > 0 {
		s.logger.Info().Int("count", converted).Msg("Recovery scan converted orphaned jobs")
	}
	return converted, nil
}
