// -----------------------------------------------------------------------
// Scheduler service - cron-driven recurring ingestion jobs
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/common"
	"github.com/ternarybob/marketsync/internal/models"
	"github.com/ternarybob/marketsync/internal/runner"
)

const defaultLookback = 30 * 24 * time.Hour

// Service starts recurring ingestion jobs from configured cron schedules.
// Each fire is an ordinary job: it shows up in the job table, snapshot and
// event log exactly like an API-started job.
type Service struct {
	runner *runner.Runner
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewService creates the scheduler and registers all configured schedules.
func NewService(r *runner.Runner, schedules []common.ScheduleConfig, logger arbor.ILogger) (*Service, error) {
	s := &Service{
		runner: r,
		cron:   cron.New(),
		logger: logger,
	}

	for _, sched := range schedules {
		sched := sched
		if _, err := s.cron.AddFunc(sched.Cron, func() { s.fire(sched) }); err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", sched.Cron, err)
		}
		logger.Info().
			Str("cron", sched.Cron).
			Str("kind", sched.Kind).
			Int("symbols", len(sched.Symbols)).
			Msg("Ingestion schedule registered")
	}

	return s, nil
}

// Start begins firing schedules.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop stops the cron scheduler; already-started jobs keep running.
func (s *Service) Stop() {
	s.cron.Stop()
}

func (s *Service) fire(sched common.ScheduleConfig) {
	lookback := defaultLookback
	if sched.Lookback != "" {
		if d, err := time.ParseDuration(sched.Lookback); err == nil {
			lookback = d
		}
	}

	now := time.Now()
	name := sched.Name
	if name == "" {
		name = fmt.Sprintf("scheduled %s %s", sched.Kind, now.Format("2006-01-02 15:04"))
	}

	desc := runner.Descriptor{
		Kind:  sched.Kind,
		Name:  name,
		Scope: models.NewIdentifierListScope(sched.Symbols, now.Add(-lookback), now),
	}

	taskID, err := s.runner.Start(context.Background(), desc)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", sched.Kind).Msg("Scheduled ingestion failed to start")
		return
	}
	s.logger.Info().
		Str("job_id", taskID).
		Str("kind", sched.Kind).
		Msg("Scheduled ingestion started")
}
