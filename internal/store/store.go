// Package store persists the watchlist: the set of tickers the
// scheduler analyzes and the UI manages. Backed by SQLite by default,
// Postgres for shared deployments, and an in-memory map for tests.
package store

import "errors"

// ErrNotWatched is returned when removing a ticker that is not on the
// watchlist.
var ErrNotWatched = errors.New("ticker not on watchlist")

// TickerStore is the watchlist persistence contract. Add is idempotent
// and symbols are stored normalized (trimmed, uppercase).
type TickerStore interface {
	Add(symbol string) error
	Remove(symbol string) error
	List() ([]string, error)
	Close() error
}
