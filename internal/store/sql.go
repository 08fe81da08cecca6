package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"stocksignal/models"
)

// SQLStore is the database-backed watchlist. A single mutex serializes
// writes; the watchlist is tiny and contention-free in practice.
type SQLStore struct {
	db     *sql.DB
	driver string
	mu     sync.Mutex
	logger zerolog.Logger
}

// Open connects to the watchlist database and runs migrations. driver
// is "sqlite" (dsn is a file path) or "postgres" (dsn is a connection
// string).
func Open(driver, dsn string) (*SQLStore, error) {
	var driverName string
	switch driver {
	case "sqlite":
		driverName = "sqlite"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// WAL mode so API reads do not block scheduler writes.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	s := &SQLStore{
		db:     db,
		driver: driver,
		logger: log.With().Str("component", "store").Logger(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.Info().Str("driver", driver).Msg("watchlist store opened")
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS watchlist (
		symbol   TEXT PRIMARY KEY,
		added_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create watchlist table: %w", err)
	}
	return nil
}

// Add puts a symbol on the watchlist. Adding an existing symbol is a
// no-op.
func (s *SQLStore) Add(symbol string) error {
	symbol = models.NormalizeTicker(symbol)
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.driver == "postgres" {
		_, err = s.db.Exec(
			`INSERT INTO watchlist (symbol, added_at) VALUES ($1, $2) ON CONFLICT (symbol) DO NOTHING`,
			symbol, time.Now().Unix())
	} else {
		_, err = s.db.Exec(
			`INSERT OR IGNORE INTO watchlist (symbol, added_at) VALUES (?, ?)`,
			symbol, time.Now().Unix())
	}
	if err != nil {
		return fmt.Errorf("add %s: %w", symbol, err)
	}
	return nil
}

// Remove deletes a symbol from the watchlist.
func (s *SQLStore) Remove(symbol string) error {
	symbol = models.NormalizeTicker(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if s.driver == "postgres" {
		res, err = s.db.Exec(`DELETE FROM watchlist WHERE symbol = $1`, symbol)
	} else {
		res, err = s.db.Exec(`DELETE FROM watchlist WHERE symbol = ?`, symbol)
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", symbol, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotWatched, symbol)
	}
	return nil
}

// List returns the watchlist in insertion order.
func (s *SQLStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT symbol FROM watchlist ORDER BY added_at, symbol`)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan watchlist row: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watchlist: %w", err)
	}
	return symbols, nil
}

func (s *SQLStore) Close() error {
	s.logger.Info().Msg("closing watchlist store")
	return s.db.Close()
}
