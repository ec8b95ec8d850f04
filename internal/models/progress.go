// -----------------------------------------------------------------------
// ProgressEvent / LiveSnapshot - progress tracking types
// -----------------------------------------------------------------------

package models

import "time"

// Phase identifies which half of the two-phase progress mapping an event
// belongs to. Fetch occupies [0, PSplit); persist occupies [PSplit, 100].
type Phase string

const (
	PhaseFetch   Phase = "fetch"
	PhasePersist Phase = "persist"
)

// Severity classifies a progress event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ProgressEvent is one durable, append-only progress step for a job.
// Events are structured at the source: the runner fills Phase, UnitLabel,
// RecordsDelta and Severity directly, and Message is display-only.
// Replaying a job's events in (Timestamp, Sequence) order yields a
// non-decreasing Percent sequence.
type ProgressEvent struct {
	JobID     string    `json:"job_id" badgerhold:"index"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  uint64    `json:"sequence" badgerhold:"index"` // Global counter for stable ordering within a timestamp

	Phase     Phase    `json:"phase"`
	UnitLabel string   `json:"unit_label,omitempty"` // Chunk label or identifier name
	Message   string   `json:"message"`
	Severity  Severity `json:"severity" badgerhold:"index"`

	RecordsDelta *int `json:"records_delta,omitempty"` // Nil when the unit produced no countable rows (e.g. fetch error)
	Percent      int  `json:"percent"`                 // 0-100
}

// LiveSnapshot is the ephemeral, denormalized progress view of the most
// recently started job of a data kind. It is never persisted and is rebuilt
// from scratch when a newer job of the same kind starts.
type LiveSnapshot struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Status    JobStatus `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UnitIndex         int    `json:"unit_index"`  // Completed units so far
	TotalUnits        int    `json:"total_units"` // Fixed at plan time, never revised
	RecordsDownloaded int    `json:"records_downloaded"`
	Percent           int    `json:"percent"`
	LastMessage       string `json:"last_message"`
}

// Clone returns a copy safe to hand to readers while the aggregator keeps
// mutating the original.
func (s *LiveSnapshot) Clone() *LiveSnapshot {
	c := *s
	return &c
}
