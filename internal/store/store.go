package store

import (
	"time"

	"InvestTrack/internal/model"

	"github.com/shopspring/decimal"
)

// Store persists last-known prices and the append-only fetch log.
// Get returns (nil, nil) when no entry exists for the symbol.
type Store interface {
	Get(symbol string) (*model.PriceCacheEntry, error)
	Upsert(symbol string, price decimal.Decimal, source string) error
	AppendHistory(symbol string, price decimal.Decimal, source string, ts time.Time) error
	ListAll() ([]model.PriceCacheEntry, error)
	DeleteAll() error
	DeleteWhere(symbols []string) error
	Stats() (model.CacheStats, error)
	Close() error
}
