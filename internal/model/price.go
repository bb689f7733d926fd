package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StaleSuffix tags a cached price served past its fresh window.
const StaleSuffix = "_STALE"

// PriceCacheEntry is the last-known price for a tracked symbol.
// At most one entry exists per symbol; writes are create-or-update.
type PriceCacheEntry struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Source      string          `json:"source"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Age returns how long ago the entry was last updated.
func (e *PriceCacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.LastUpdated)
}

// AsStale returns a copy of the entry tagged as a degraded fallback.
func (e *PriceCacheEntry) AsStale() *PriceCacheEntry {
	c := *e
	if !strings.HasSuffix(c.Source, StaleSuffix) {
		c.Source += StaleSuffix
	}
	return &c
}

// PriceHistoryEntry is one row of the append-only fetch log.
// History is only ever appended, never updated or deduplicated.
type PriceHistoryEntry struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// CacheStats summarizes the cache table for the stats endpoint.
type CacheStats struct {
	Entries      int       `json:"entries"`
	OldestUpdate time.Time `json:"oldestUpdate,omitzero"`
	NewestUpdate time.Time `json:"newestUpdate,omitzero"`
}
