package interfaces

import (
	"context"

	"github.com/ternarybob/marketsync/internal/models"
)

// JobListOptions controls ListJobs filtering and paging.
// Zero values mean "no filter"; PageSize <= 0 falls back to the default.
type JobListOptions struct {
	Kind     string
	Status   models.JobStatus
	Search   string // Case-insensitive substring match on name and ID
	Page     int    // 1-based
	PageSize int
}

// JobStorage is the persisted one-row-per-job table.
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.Job) error
	UpdateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, int, error)
	GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// EventStorage is the durable, append-only progress event log.
// No update or delete of individual events is exposed to the core.
type EventStorage interface {
	AppendEvent(ctx context.Context, event *models.ProgressEvent) error
	GetEvents(ctx context.Context, jobID string) ([]models.ProgressEvent, error)
	CountEvents(ctx context.Context, jobID string) (int, error)
}

// PriceStorage persists ingested price records under their natural key.
type PriceStorage interface {
	Persister
	GetPrices(ctx context.Context, symbol string) ([]models.PriceRecord, error)
	CountPrices(ctx context.Context, symbol string) (int, error)
}

// StorageManager bundles the storage aggregates behind one connection.
type StorageManager interface {
	JobStorage() JobStorage
	EventStorage() EventStorage
	PriceStorage() PriceStorage
	Close() error
}
