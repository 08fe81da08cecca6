package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

// Both backends satisfy the same contract; run the shared suite over
// each.
func openStores(t *testing.T) map[string]TickerStore {
	t.Helper()
	sqlStore, err := Open("sqlite", filepath.Join(t.TempDir(), "watchlist.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]TickerStore{
		"sqlite": sqlStore,
		"memory": NewMemoryStore(),
	}
}

func TestAddListRemove(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, sym := range []string{"aapl", "MSFT", " brk.b "} {
				if err := s.Add(sym); err != nil {
					t.Fatalf("Add(%q): %v", sym, err)
				}
			}

			got, err := s.List()
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			want := []string{"AAPL", "MSFT", "BRK.B"}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("List = %v, want %v", got, want)
			}

			if err := s.Remove("msft"); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			got, _ = s.List()
			if !reflect.DeepEqual(got, []string{"AAPL", "BRK.B"}) {
				t.Errorf("List after remove = %v", got)
			}
		})
	}
}

func TestAddIsIdempotent(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Add("AAPL"); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if err := s.Add("aapl"); err != nil {
				t.Fatalf("duplicate Add must be a no-op: %v", err)
			}
			got, _ := s.List()
			if len(got) != 1 {
				t.Errorf("expected 1 symbol, got %v", got)
			}
		})
	}
}

func TestRemoveUnknownTicker(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Remove("NOPE"); !errors.Is(err, ErrNotWatched) {
				t.Errorf("expected ErrNotWatched, got %v", err)
			}
		})
	}
}

func TestAddRejectsEmptySymbol(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Add("   "); err == nil {
				t.Error("blank symbol must be rejected")
			}
		})
	}
}

func TestSQLStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.db")

	s, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Add("AAPL"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("watchlist not persisted, got %v", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "dsn"); err == nil {
		t.Error("unknown driver must be rejected")
	}
}
