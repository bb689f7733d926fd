package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"InvestTrack/internal/model"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists price data to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers are not blocked while a refresh run is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_cache (
			symbol       TEXT PRIMARY KEY,
			price        TEXT NOT NULL,
			source       TEXT NOT NULL,
			last_updated INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol    TEXT NOT NULL,
			price     TEXT NOT NULL,
			source    TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_symbol_ts ON price_history(symbol, timestamp)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Get returns the cache entry for symbol, or (nil, nil) when absent.
func (s *SQLiteStore) Get(symbol string) (*model.PriceCacheEntry, error) {
	row := s.db.QueryRow(
		`SELECT symbol, price, source, last_updated FROM price_cache WHERE symbol = ?`, symbol)

	var e model.PriceCacheEntry
	var price string
	var updated int64
	if err := row.Scan(&e.Symbol, &price, &e.Source, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query cache: %w", err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse stored price %q: %w", price, err)
	}
	e.Price = p
	e.LastUpdated = time.Unix(updated, 0)
	return &e, nil
}

// Upsert atomically creates or replaces the entry for symbol.
func (s *SQLiteStore) Upsert(symbol string, price decimal.Decimal, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO price_cache (symbol, price, source, last_updated)
		VALUES (?,?,?,?)
		ON CONFLICT(symbol) DO UPDATE SET
			price = excluded.price,
			source = excluded.source,
			last_updated = excluded.last_updated`,
		symbol, price.String(), source, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", symbol, err)
	}
	return nil
}

// AppendHistory records one fetch event. Callers treat failures as
// non-fatal; the cache entry is the record that matters.
func (s *SQLiteStore) AppendHistory(symbol string, price decimal.Decimal, source string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO price_history (symbol, price, source, timestamp)
		VALUES (?,?,?,?)`,
		symbol, price.String(), source, ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append history %s: %w", symbol, err)
	}
	return nil
}

// ListAll returns every cache entry, ordered by symbol.
func (s *SQLiteStore) ListAll() ([]model.PriceCacheEntry, error) {
	rows, err := s.db.Query(`SELECT symbol, price, source, last_updated FROM price_cache ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	defer rows.Close()

	var out []model.PriceCacheEntry
	for rows.Next() {
		var e model.PriceCacheEntry
		var price string
		var updated int64
		if err := rows.Scan(&e.Symbol, &price, &e.Source, &updated); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse stored price %q: %w", price, err)
		}
		e.Price = p
		e.LastUpdated = time.Unix(updated, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteAll clears the cache table. History is kept.
func (s *SQLiteStore) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM price_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// DeleteWhere removes cache entries for the given symbols.
func (s *SQLiteStore) DeleteWhere(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	args := make([]any, len(symbols))
	for i, sym := range symbols {
		args[i] = sym
	}
	if _, err := s.db.Exec(`DELETE FROM price_cache WHERE symbol IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	return nil
}

// Stats summarizes the cache table.
func (s *SQLiteStore) Stats() (model.CacheStats, error) {
	var stats model.CacheStats
	var oldest, newest sql.NullInt64
	row := s.db.QueryRow(`SELECT COUNT(*), MIN(last_updated), MAX(last_updated) FROM price_cache`)
	if err := row.Scan(&stats.Entries, &oldest, &newest); err != nil {
		return stats, fmt.Errorf("cache stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestUpdate = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		stats.NewestUpdate = time.Unix(newest.Int64, 0)
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}
