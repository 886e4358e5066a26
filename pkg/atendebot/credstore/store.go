// Package credstore persists the messaging protocol's authentication material
// across restarts. Entries are keyed "creds" (the protocol identity singleton)
// plus "{category}-{itemId}" pairs for rotating session keys. Payloads are
// arbitrarily nested maps, sequences, scalars and byte sequences; see codec.go
// for how bytes survive the JSON-only storage layer.
package credstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CredsKey is the distinguished singleton key holding the protocol identity.
const CredsKey = "creds"

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
    key        TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// Store is a binary-safe key/value store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// writeMu serializes bulk writes. SQLite already serializes writers at
	// the connection level, but holding the mutex across the whole
	// transaction keeps two concurrent SetBulk calls touching the same key
	// from interleaving their read-modify-write cycles.
	writeMu sync.Mutex
}

// Open prepares the credential store on an existing database connection,
// creating the credentials table if needed.
func Open(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create credentials table: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "credstore"),
	}, nil
}

// Get loads the payloads for the given item IDs within a category. IDs with
// no stored payload are absent from the returned map.
func (s *Store) Get(ctx context.Context, category string, ids []string) (map[string]any, error) {
	out := make(map[string]any, len(ids))
	for _, id := range ids {
		payload, found, err := s.readKey(ctx, keyFor(category, id))
		if err != nil {
			return nil, err
		}
		if found {
			out[id] = payload
		}
	}
	return out, nil
}

// SetBulk applies a batch of credential updates in a single transaction.
// A nil payload deletes the key. If the transaction fails, no update is
// applied and the error is returned for the caller to retry.
func (s *Store) SetBulk(ctx context.Context, updates map[string]map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credential batch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for category, items := range updates {
		for id, payload := range items {
			key := keyFor(category, id)
			if payload == nil {
				if _, err := tx.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", key); err != nil {
					return fmt.Errorf("delete credential %q: %w", key, err)
				}
				continue
			}
			encoded, err := json.Marshal(tagBytes(payload))
			if err != nil {
				return fmt.Errorf("encode credential %q: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO credentials (key, payload, updated_at) VALUES (?, ?, ?)",
				key, string(encoded), now,
			); err != nil {
				return fmt.Errorf("write credential %q: %w", key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credential batch: %w", err)
	}
	return nil
}

// LoadCreds reads the protocol identity singleton. Returns nil with no error
// when nothing is stored yet (fresh pairing required).
func (s *Store) LoadCreds(ctx context.Context) (map[string]any, error) {
	payload, found, err := s.readKey(ctx, CredsKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	creds, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("stored creds has unexpected shape %T", payload)
	}
	return creds, nil
}

// SaveCreds writes the protocol identity singleton. Called on every
// credential rotation signalled by the transport.
func (s *Store) SaveCreds(ctx context.Context, creds map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	encoded, err := json.Marshal(tagBytes(any(creds)))
	if err != nil {
		return fmt.Errorf("encode creds: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO credentials (key, payload, updated_at) VALUES (?, ?, ?)",
		CredsKey, string(encoded), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("write creds: %w", err)
	}
	return nil
}

// Delete removes a single key. Used when the transport signals the key is
// retired (session logout).
func (s *Store) Delete(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete credential %q: %w", key, err)
	}
	return nil
}

// Purge removes every stored credential. Used by `atendebot session clear`
// to force a fresh pairing.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM credentials")
	if err != nil {
		return 0, fmt.Errorf("purge credentials: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of stored credential entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM credentials").Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

// readKey loads and decodes one entry.
func (s *Store) readKey(ctx context.Context, key string) (any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM credentials WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read credential %q: %w", key, err)
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, false, fmt.Errorf("decode credential %q: %w", key, err)
	}
	return untagBytes(decoded), true, nil
}

func keyFor(category, id string) string {
	return category + "-" + id
}
