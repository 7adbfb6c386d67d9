// Package localstore persists the unauthenticated shopper's cart and
// wishlist on the device. One serialized record lives under a fixed
// storage key in a small SQLite database; it is a convenience cache,
// not a durable record, so corrupt data is dropped rather than
// surfaced as an error.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"cartsync/internal/model"
)

// storageKey is the fixed key the storefront client has always written
// its state under. Changing it orphans existing device state.
const storageKey = "storefront-state"

// Store is the device-local persistence layer.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open creates or opens the local database at path and prepares the
// state table.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create local store dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	// WAL keeps reads cheap while saves are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS local_state (
			storage_key TEXT PRIMARY KEY,
			payload     TEXT NOT NULL,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init local state table: %w", err)
	}

	return &Store{conn: conn, logger: logger}, nil
}

// Load reads the persisted record. A missing row or corrupt payload
// yields empty collections, never an error: the cache is disposable
// and the engine must always be able to hydrate.
func (s *Store) Load(ctx context.Context) (model.StoredState, error) {
	var payload string
	err := s.conn.QueryRowContext(ctx,
		`SELECT payload FROM local_state WHERE storage_key = ?`, storageKey,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return emptyState(), nil
	}
	if err != nil {
		return model.StoredState{}, model.NewInternalError(fmt.Errorf("read local state: %w", err))
	}

	var state model.StoredState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		s.logger.Warn("corrupt local state discarded", slog.String("error", err.Error()))
		return emptyState(), nil
	}
	if state.CartItems == nil {
		state.CartItems = []model.LineItem{}
	}
	if state.WishlistItems == nil {
		state.WishlistItems = []model.WishlistEntry{}
	}
	return state, nil
}

// Save persists the full record in one transaction. A Load that runs
// after Save returns never observes a partial write.
func (s *Store) Save(ctx context.Context, state model.StoredState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("encode local state: %w", err))
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO local_state (storage_key, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(storage_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`, storageKey, string(payload))
	if err != nil {
		return model.NewInternalError(fmt.Errorf("write local state: %w", err))
	}
	return nil
}

// Clear removes the persisted record. Clearing an empty store is a
// no-op success.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM local_state WHERE storage_key = ?`, storageKey); err != nil {
		return model.NewInternalError(fmt.Errorf("clear local state: %w", err))
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.conn.Close()
}

func emptyState() model.StoredState {
	return model.StoredState{
		CartItems:     []model.LineItem{},
		WishlistItems: []model.WishlistEntry{},
	}
}
