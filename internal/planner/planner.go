// -----------------------------------------------------------------------
// ChunkPlanner - deterministic work-unit planning for ingestion jobs
// -----------------------------------------------------------------------

package planner

import (
	"fmt"
	"time"

	"github.com/ternarybob/marketsync/internal/interfaces"
	"github.com/ternarybob/marketsync/internal/models"
)

const dateFormat = "2006-01-02"

// Planner splits a job's scope into an ordered, finite list of chunks.
// Pure and deterministic: the total count communicated to clients up front
// never needs revision later.
type Planner struct {
	defaultChunkDays int
}

// New creates a planner with the configured default date-range chunk size.
func New(defaultChunkDays int) *Planner {
	return &Planner{defaultChunkDays: defaultChunkDays}
}

// Plan expands a scope into ordered chunks. A degenerate scope (empty
// identifier list, inverted date range) yields an empty chunk list.
func (p *Planner) Plan(scope models.Scope) ([]interfaces.Chunk, error) {
	switch scope.Type {
	case models.ScopeDateRange:
		return p.planDateRange(scope.DateRange), nil
	case models.ScopeIdentifierList:
		return p.planIdentifiers(scope.Identifiers), nil
	default:
		return nil, fmt.Errorf("unknown scope type: %q", scope.Type)
	}
}

func (p *Planner) planDateRange(scope *models.DateRangeScope) []interfaces.Chunk {
	chunkDays := scope.ChunkDays
	if chunkDays <= 0 {
		chunkDays = p.defaultChunkDays
	}

	ranges := splitDateRange(scope.From, scope.To, chunkDays)
	chunks := make([]interfaces.Chunk, len(ranges))
	for i, r := range ranges {
		chunks[i] = interfaces.Chunk{
			Index:  i,
			Label:  fmt.Sprintf("%s %s..%s", scope.Symbol, r.from.Format(dateFormat), r.to.Format(dateFormat)),
			Symbol: scope.Symbol,
			From:   r.from,
			To:     r.to,
		}
	}
	return chunks
}

func (p *Planner) planIdentifiers(scope *models.IdentifierListScope) []interfaces.Chunk {
	chunks := make([]interfaces.Chunk, 0, len(scope.Identifiers))
	for i, id := range scope.Identifiers {
		if id == "" {
			continue
		}
		chunks = append(chunks, interfaces.Chunk{
			Index:  i,
			Label:  id,
			Symbol: id,
			From:   scope.From,
			To:     scope.To,
		})
	}
	// Re-index after dropping empties so Index stays contiguous
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

type dateRange struct {
	from, to time.Time
}

// splitDateRange splits [from, to] into inclusive sub-ranges of at most
// chunkDays days. An inverted range or non-positive chunk size yields nil.
func splitDateRange(from, to time.Time, chunkDays int) []dateRange {
	if from.IsZero() || to.IsZero() || from.After(to) || chunkDays <= 0 {
		return nil
	}

	var ranges []dateRange
	for cur := from; !cur.After(to); cur = cur.AddDate(0, 0, chunkDays) {
		end := cur.AddDate(0, 0, chunkDays-1)
		if end.After(to) {
			end = to
		}
		ranges = append(ranges, dateRange{from: cur, to: end})
	}
	return ranges
}
