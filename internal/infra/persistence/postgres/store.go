// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics. Entity buckets snapshot to a JSONB state table;
// the audit ledger is a dedicated append-only table whose immutability is
// enforced server-side by a trigger.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"vialcore/internal/infra/persistence/memory"
	"vialcore/pkg/domain"
)

// The store must satisfy the full persistence contract.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Matches the OpenPersistentStore default when no DSN is supplied.
	defaultDSN = "postgres://localhost/vialcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions.
type Store struct {
	*memory.Store
	db              *sql.DB
	mu              sync.Mutex
	persistedLedger int
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the schema exists, and hydrates the in-memory store
// from any existing snapshot.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db, persistedLedger: len(snapshot.Ledger)}, nil
}

// RunInTransaction applies fn within a transaction, then snapshots to
// Postgres if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// DB hands out the raw connection for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		seq BIGSERIAL PRIMARY KEY,
		entry JSONB NOT NULL
	)`,
	`CREATE OR REPLACE FUNCTION audit_log_immutable() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'audit_log is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_log_guard ON audit_log`,
	`CREATE TRIGGER audit_log_guard
		BEFORE UPDATE OR DELETE ON audit_log
		FOR EACH ROW EXECUTE FUNCTION audit_log_immutable()`,
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var postgresBuckets = []string{"reagents", "lots", "vials", "containers", "slots"}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := map[string]any{
		"reagents":   &snapshot.Reagents,
		"lots":       &snapshot.Lots,
		"vials":      &snapshot.Vials,
		"containers": &snapshot.Containers,
		"slots":      &snapshot.Slots,
	}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return memory.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}

	ledgerRows, err := db.QueryContext(ctx, `SELECT entry FROM audit_log ORDER BY seq`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select audit_log: %w", err)
	}
	defer func() { _ = ledgerRows.Close() }()
	for ledgerRows.Next() {
		var payload []byte
		if err := ledgerRows.Scan(&payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan audit entry: %w", err)
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode audit entry: %w", err)
		}
		snapshot.Ledger = append(snapshot.Ledger, entry)
	}
	if err := ledgerRows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate audit_log: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range postgresBuckets {
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
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	for _, entry := range snapshot.Ledger[s.persistedLedger:] {
		data, mErr := json.Marshal(entry)
		if mErr != nil {
			return mErr
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO audit_log(entry) VALUES($1)`, data); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.persistedLedger = len(snapshot.Ledger)
	return nil
}

// OverrideSQLOpen redirects connection opening, returning a function that
// restores the real sql.Open. Tests use it to substitute stub drivers.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
