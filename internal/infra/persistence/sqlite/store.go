// Package sqlite persists the in-memory store state to a SQLite database.
// Entity buckets are stored as JSON blobs snapshotted after every successful
// transaction; the audit ledger lives in its own append-only table guarded by
// triggers so that committed entries cannot be rewritten even with direct SQL
// access.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"vialcore/internal/infra/persistence/memory"
	"vialcore/pkg/domain"
)

type (
	Snapshot    = memory.Snapshot
	Transaction = domain.Transaction
	Result      = domain.Result
	RulesEngine = domain.RulesEngine
)

var _ domain.PersistentStore = (*Store)(nil)

// Store layers SQLite durability over the in-memory transactional store.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
	// persistedLedger counts audit rows already written, so persist only
	// appends the tail.
	persistedLedger int
}

const schema = `
CREATE TABLE IF NOT EXISTS state (
	bucket TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	entry BLOB NOT NULL
);
CREATE TRIGGER IF NOT EXISTS audit_log_no_update
BEFORE UPDATE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;
CREATE TRIGGER IF NOT EXISTS audit_log_no_delete
BEFORE DELETE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;
`

// NewStore opens (or creates) the database file, applies the schema, and
// hydrates the embedded memory store from the persisted snapshot.
func NewStore(path string, engine *RulesEngine) (*Store, error) {
	if path == "" {
		path = "vialcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"reagents", "lots", "vials", "containers", "slots"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := Snapshot{}
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		found = true
		switch bucket {
		case "reagents":
			err = json.Unmarshal(payload, &snapshot.Reagents)
		case "lots":
			err = json.Unmarshal(payload, &snapshot.Lots)
		case "vials":
			err = json.Unmarshal(payload, &snapshot.Vials)
		case "containers":
			err = json.Unmarshal(payload, &snapshot.Containers)
		case "slots":
			err = json.Unmarshal(payload, &snapshot.Slots)
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}

	ledgerRows, err := s.db.Query(`SELECT entry FROM audit_log ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("select audit_log: %w", err)
	}
	defer func() { _ = ledgerRows.Close() }()
	for ledgerRows.Next() {
		var payload []byte
		if err := ledgerRows.Scan(&payload); err != nil {
			return fmt.Errorf("scan audit entry: %w", err)
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return fmt.Errorf("decode audit entry: %w", err)
		}
		snapshot.Ledger = append(snapshot.Ledger, entry)
		found = true
	}
	if err := ledgerRows.Err(); err != nil {
		return fmt.Errorf("iterate audit_log: %w", err)
	}

	if !found {
		return nil
	}
	s.ImportState(snapshot)
	s.persistedLedger = len(snapshot.Ledger)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "reagents":
			data, err = json.Marshal(snapshot.Reagents)
		case "lots":
			data, err = json.Marshal(snapshot.Lots)
		case "vials":
			data, err = json.Marshal(snapshot.Vials)
		case "containers":
			data, err = json.Marshal(snapshot.Containers)
		case "slots":
			data, err = json.Marshal(snapshot.Slots)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	for _, entry := range snapshot.Ledger[s.persistedLedger:] {
		data, mErr := json.Marshal(entry)
		if mErr != nil {
			retErr = mErr
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO audit_log(entry) VALUES(?)`, data); err != nil {
			retErr = fmt.Errorf("append audit entry: %w", err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.persistedLedger = len(snapshot.Ledger)
	return nil
}

// RunInTransaction applies fn within a transaction, then snapshots state to
// SQLite on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB hands out the raw connection for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path reports where the database file lives.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
