package models

import (
	"fmt"
	"time"
)

// ScopeType discriminates the two scope variants.
type ScopeType string

const (
	ScopeDateRange      ScopeType = "date_range"
	ScopeIdentifierList ScopeType = "identifier_list"
)

// DateRangeScope describes a single-symbol ingestion over a date range,
// split into fixed-size day chunks.
type DateRangeScope struct {
	Symbol    string    `json:"symbol"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	ChunkDays int       `json:"chunk_days"` // 0 means use the configured default
}

// IdentifierListScope describes an ingestion over a list of identifiers
// (one chunk per identifier), optionally bounded by a shared date range.
type IdentifierListScope struct {
	Identifiers []string  `json:"identifiers"`
	From        time.Time `json:"from,omitempty"`
	To          time.Time `json:"to,omitempty"`
}

// Scope is a tagged variant: exactly one of DateRange or Identifiers is set,
// selected by Type. The job's Kind field is purely a discriminator for
// snapshot visibility and carries no scope semantics.
type Scope struct {
	Type        ScopeType            `json:"type"`
	DateRange   *DateRangeScope      `json:"date_range,omitempty"`
	Identifiers *IdentifierListScope `json:"identifiers,omitempty"`
}

// NewDateRangeScope builds a date-range scope.
func NewDateRangeScope(symbol string, from, to time.Time, chunkDays int) Scope {
	return Scope{
		Type: ScopeDateRange,
		DateRange: &DateRangeScope{
			Symbol:    symbol,
			From:      from,
			To:        to,
			ChunkDays: chunkDays,
		},
	}
}

// NewIdentifierListScope builds an identifier-list scope.
func NewIdentifierListScope(identifiers []string, from, to time.Time) Scope {
	return Scope{
		Type: ScopeIdentifierList,
		Identifiers: &IdentifierListScope{
			Identifiers: identifiers,
			From:        from,
			To:          to,
		},
	}
}

// Validate checks that the scope variant matches its tag.
func (s Scope) Validate() error {
	switch s.Type {
	case ScopeDateRange:
		if s.DateRange == nil {
			return fmt.Errorf("date_range scope requires date_range payload")
		}
		if s.DateRange.Symbol == "" {
			return fmt.Errorf("date_range scope requires a symbol")
		}
		return nil
	case ScopeIdentifierList:
		if s.Identifiers == nil {
			return fmt.Errorf("identifier_list scope requires identifiers payload")
		}
		return nil
	default:
		return fmt.Errorf("unknown scope type: %q", s.Type)
	}
}
