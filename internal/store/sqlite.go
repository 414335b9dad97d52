// Package store persists the node registry to SQLite so a restarted node
// can restore its ledger view without re-registering the world.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/locproof/ledger"
	"github.com/signalsfoundry/locproof/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	account   TEXT PRIMARY KEY,
	address   BLOB NOT NULL,
	lat_micro INTEGER NOT NULL,
	lon_micro INTEGER NOT NULL,
	updated   INTEGER NOT NULL
);
`

// Store is a SQLite-backed registry snapshot.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts one account's registry entry.
func (s *Store) Save(ctx context.Context, account model.AccountID, loc model.NodeLocation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (account, address, lat_micro, lon_micro, updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			address = excluded.address,
			lat_micro = excluded.lat_micro,
			lon_micro = excluded.lon_micro,
			updated = excluded.updated`,
		string(account), loc.Address[:], loc.LatitudeMicro, loc.LongitudeMicro, int64(loc.UpdatedEpoch),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", account, err)
	}
	return nil
}

// Delete removes one account's entry. Deleting an absent account is not an
// error.
func (s *Store) Delete(ctx context.Context, account model.AccountID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE account = ?`, string(account)); err != nil {
		return fmt.Errorf("store: delete %s: %w", account, err)
	}
	return nil
}

// Load reads all persisted entries.
func (s *Store) Load(ctx context.Context) (map[model.AccountID]model.NodeLocation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account, address, lat_micro, lon_micro, updated FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	defer rows.Close()

	out := make(map[model.AccountID]model.NodeLocation)
	for rows.Next() {
		var (
			account string
			addr    []byte
			loc     model.NodeLocation
			updated int64
		)
		if err := rows.Scan(&account, &addr, &loc.LatitudeMicro, &loc.LongitudeMicro, &updated); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		if len(addr) != model.AddressLen {
			return nil, fmt.Errorf("store: account %s has a %d-byte address", account, len(addr))
		}
		copy(loc.Address[:], addr)
		loc.UpdatedEpoch = uint64(updated)
		out[model.AccountID(account)] = loc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	return out, nil
}

// Restore registers all persisted entries into an empty ledger.
func (s *Store) Restore(ctx context.Context, led *ledger.Ledger) error {
	entries, err := s.Load(ctx)
	if err != nil {
		return err
	}
	for account, loc := range entries {
		if err := led.Register(account, loc); err != nil {
			return fmt.Errorf("store: restore %s: %w", account, err)
		}
	}
	return nil
}

// Apply folds one ledger event into the store. Plug it into
// ledger.Subscribe to keep the snapshot current; write failures are
// returned for the caller to log.
func (s *Store) Apply(ctx context.Context, ev ledger.Event) error {
	switch ev.Type {
	case ledger.EventNodeRegistered, ledger.EventNodeUpdated:
		return s.Save(ctx, ev.Account, ev.Location)
	case ledger.EventNodeUnregistered:
		return s.Delete(ctx, ev.Account)
	default:
		// RSSI observations are epoch-scoped working data, not worth
		// persisting across restarts.
		return nil
	}
}
