package models

import (
	"fmt"
	"time"
)

// PriceRecord is one end-of-day bar for a symbol. The natural key
// (Symbol, Date) makes persistence idempotent: re-ingesting the same
// range skips rows that already exist.
type PriceRecord struct {
	Symbol   string    `json:"symbol" badgerhold:"index"`
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close,omitempty"`
	Volume   int64     `json:"volume"`
}

// Key returns the natural storage key for this record.
func (r PriceRecord) Key() string {
	return fmt.Sprintf("%s|%s", r.Symbol, r.Date.Format("2006-01-02"))
}
