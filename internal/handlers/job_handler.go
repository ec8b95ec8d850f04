// -----------------------------------------------------------------------
// JobHandler - ingestion job API
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
	"github.com/ternarybob/marketsync/internal/runner"
	"github.com/ternarybob/marketsync/internal/services/status"
)

var validate = validator.New()

const dateFormat = "2006-01-02"

// StartJobRequest is the inbound descriptor for a new ingestion job.
// Exactly one scope shape applies: symbol+from+to for a date-range scope,
// or identifiers for an identifier-list scope.
type StartJobRequest struct {
	Kind        string   `json:"kind" validate:"required"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	ChunkDays   int      `json:"chunk_days" validate:"gte=0"`
	Identifiers []string `json:"identifiers"`
}

// JobHandler handles job-related API requests
type JobHandler struct {
	runner        *runner.Runner
	statusService *status.Service
	logger        arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(r *runner.Runner, statusService *status.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		runner:        r,
		statusService: statusService,
		logger:        logger,
	}
}

// StartJobHandler creates and starts an ingestion job
// POST /api/jobs
func (h *JobHandler) StartJobHandler(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	scope, err := req.toScope()
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID, err := h.runner.Start(r.Context(), runner.Descriptor{
		Kind:  req.Kind,
		Name:  req.Name,
		Scope: scope,
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("kind", req.Kind).Msg("Failed to start ingestion job")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteStarted(w, taskID)
}

func (req *StartJobRequest) toScope() (models.Scope, error) {
	parse := func(s string) (time.Time, error) {
		if s == "" {
			return time.Time{}, nil
		}
		return time.Parse(dateFormat, s)
	}

	from, err := parse(req.From)
	if err != nil {
		return models.Scope{}, err
	}
	to, err := parse(req.To)
	if err != nil {
		return models.Scope{}, err
	}

	if len(req.Identifiers) > 0 {
		return models.NewIdentifierListScope(req.Identifiers, from, to), nil
	}
	return models.NewDateRangeScope(req.Symbol, from, to, req.ChunkDays), nil
}

// CancelJobHandler sets the cooperative cancellation flag for a job
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request, taskID string) {
	if err := h.runner.Cancel(r.Context(), taskID); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	// Cancellation is cooperative: the flag is polled at chunk boundaries,
	// so the job may still be running when this response goes out.
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "cancelling",
		"task_id": taskID,
	})
}

// ListJobsHandler returns a paginated list of jobs
// GET /api/jobs?kind=eod_prices&status=completed&search=AAPL&page=1&page_size=50
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &interfaces.JobListOptions{
		Kind:   q.Get("kind"),
		Status: models.JobStatus(q.Get("status")),
		Search: q.Get("search"),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		opts.PageSize = v
	}

	jobs, total, err := h.statusService.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"total": total,
	})
}

// GetJobHandler returns one job with its ordered event log and derived stats
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, taskID string) {
	detail, err := h.statusService.GetJobDetail(r.Context(), taskID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}
