/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the persistence the deployment assistant needs using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  entitlement.SnapshotStore:    Snapshot history per account (capture path)
  entitlement.ExpirationCache:  Persisted classification results

KEY TABLES:
  snapshots:        Ingested provisioning snapshots, append-only. The
                    capture collaborator writes here; the analysis layer
                    only reads. No UPDATE or DELETE on this table.
  expiration_cache: One row per (account, window) holding the serialized
                    classification; replaced wholesale on refresh.
  analysis_runs:    Batch re-analysis run records for audit and UI.

INDEXES:
  - idx_snapshots_account_captured: Ordered per-account history (hot path)
  - idx_runs_status: Run listing by status

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/assistant.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - entitlement/provider.go: Interface definitions
  - entitlement/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian/deploy-assistant/entitlement"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ entitlement.SnapshotStore   = (*Store)(nil)
	_ entitlement.ExpirationCache = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Snapshots (append-only capture history)
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		request_id TEXT NOT NULL,
		request_name TEXT,
		request_type TEXT NOT NULL,
		captured_at TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Ordered per-account reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_snapshots_account_captured
		ON snapshots(account_id, captured_at, request_id);

	-- Expiration cache: one row per (account, window)
	CREATE TABLE IF NOT EXISTS expiration_cache (
		account_id TEXT NOT NULL,
		window_days INTEGER NOT NULL,
		computed_at TEXT NOT NULL,
		records_json TEXT NOT NULL,
		PRIMARY KEY (account_id, window_days)
	);

	-- Analysis Runs (for scheduled batch re-analysis)
	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		window_days INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		accounts_total INTEGER DEFAULT 0,
		accounts_failed INTEGER DEFAULT 0,
		at_risk INTEGER DEFAULT 0,
		extended INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status
		ON analysis_runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_created
		ON analysis_runs(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT STORE (entitlement.SnapshotStore interface)
// =============================================================================

// SaveSnapshot persists one captured snapshot. Snapshots are immutable;
// saving an existing id is a conflict.
func (s *Store) SaveSnapshot(ctx context.Context, snap entitlement.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO snapshots
		(id, account_id, request_id, request_name, request_type, captured_at, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		snap.ID,
		string(snap.AccountID),
		string(snap.RequestID),
		snap.RequestName,
		string(snap.RequestType),
		snap.Timestamp.UTC().Format(time.RFC3339),
		string(snap.RawPayload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshotsForAccount returns the account's history ascending by
// captured_at, ties by request_id. An unknown account returns an empty
// slice, not an error.
func (s *Store) GetSnapshotsForAccount(ctx context.Context, accountID entitlement.AccountID) ([]entitlement.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, account_id, request_id, request_name, request_type, captured_at, payload_json
		FROM snapshots
		WHERE account_id = ?
		ORDER BY captured_at ASC, request_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []entitlement.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// ListAccounts returns every account with at least one snapshot.
func (s *Store) ListAccounts(ctx context.Context) ([]entitlement.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT account_id FROM snapshots ORDER BY account_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []entitlement.AccountID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		accounts = append(accounts, entitlement.AccountID(id))
	}
	return accounts, rows.Err()
}

// AccountSummary is one row of the account listing.
type AccountSummary struct {
	AccountID      entitlement.AccountID
	SnapshotCount  int
	LastCapturedAt time.Time
}

// ListAccountSummaries returns every account with its snapshot count and
// latest capture time.
func (s *Store) ListAccountSummaries(ctx context.Context) ([]AccountSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT account_id, COUNT(*), MAX(captured_at)
		FROM snapshots
		GROUP BY account_id
		ORDER BY account_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list account summaries: %w", err)
	}
	defer rows.Close()

	var summaries []AccountSummary
	for rows.Next() {
		var (
			sum      AccountSummary
			id       string
			captured string
		)
		if err := rows.Scan(&id, &sum.SnapshotCount, &captured); err != nil {
			return nil, fmt.Errorf("failed to scan account summary: %w", err)
		}
		sum.AccountID = entitlement.AccountID(id)
		sum.LastCapturedAt, _ = time.Parse(time.RFC3339, captured)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func scanSnapshot(rows *sql.Rows) (entitlement.Snapshot, error) {
	var (
		snap        entitlement.Snapshot
		accountID   string
		requestID   string
		requestName sql.NullString
		requestType string
		capturedAt  string
		payload     string
	)

	err := rows.Scan(&snap.ID, &accountID, &requestID, &requestName,
		&requestType, &capturedAt, &payload)
	if err != nil {
		return snap, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	snap.AccountID = entitlement.AccountID(accountID)
	snap.RequestID = entitlement.RequestID(requestID)
	snap.RequestName = requestName.String
	snap.RequestType = entitlement.RequestType(requestType)
	snap.Timestamp, _ = time.Parse(time.RFC3339, capturedAt)
	snap.RawPayload = []byte(payload)
	return snap, nil
}

// =============================================================================
// EXPIRATION CACHE (entitlement.ExpirationCache interface)
// =============================================================================

// PutExpirations stores (replacing) the cache entry for (account, window).
func (s *Store) PutExpirations(ctx context.Context, entry entitlement.CachedExpirations) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordsJSON, err := json.Marshal(entry.Records)
	if err != nil {
		return fmt.Errorf("failed to encode expiration records: %w", err)
	}

	query := `
		INSERT INTO expiration_cache (account_id, window_days, computed_at, records_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, window_days) DO UPDATE SET
			computed_at = excluded.computed_at,
			records_json = excluded.records_json
	`

	_, err = s.db.ExecContext(ctx, query,
		string(entry.AccountID),
		entry.WindowDays,
		entry.ComputedAt.UTC().Format(time.RFC3339),
		string(recordsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to put expiration cache entry: %w", err)
	}
	return nil
}

// GetExpirations returns the cache entry for (account, window), or nil
// when no cached result exists.
func (s *Store) GetExpirations(ctx context.Context, accountID entitlement.AccountID, windowDays int) (*entitlement.CachedExpirations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		computedAt  string
		recordsJSON string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT computed_at, records_json FROM expiration_cache WHERE account_id = ? AND window_days = ?",
		string(accountID), windowDays,
	).Scan(&computedAt, &recordsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expiration cache entry: %w", err)
	}

	entry := &entitlement.CachedExpirations{
		AccountID:  accountID,
		WindowDays: windowDays,
	}
	entry.ComputedAt, _ = time.Parse(time.RFC3339, computedAt)
	if err := json.Unmarshal([]byte(recordsJSON), &entry.Records); err != nil {
		return nil, fmt.Errorf("failed to decode expiration records: %w", err)
	}
	return entry, nil
}

// InvalidateExpirations drops all cached windows for an account.
func (s *Store) InvalidateExpirations(ctx context.Context, accountID entitlement.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM expiration_cache WHERE account_id = ?", string(accountID))
	if err != nil {
		return fmt.Errorf("failed to invalidate expiration cache: %w", err)
	}
	return nil
}

// =============================================================================
// ANALYSIS RUNS
// =============================================================================

// AnalysisRun records one batch re-analysis sweep.
type AnalysisRun struct {
	ID             string
	WindowDays     int
	Status         string // pending, running, completed, failed
	AccountsTotal  int
	AccountsFailed int
	AtRisk         int
	Extended       int
	Error          string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// SaveAnalysisRun inserts or updates a run record.
func (s *Store) SaveAnalysisRun(ctx context.Context, run AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO analysis_runs
		(id, window_days, status, accounts_total, accounts_failed, at_risk, extended,
		 error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			accounts_total = excluded.accounts_total,
			accounts_failed = excluded.accounts_failed,
			at_risk = excluded.at_risk,
			extended = excluded.extended,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.WindowDays,
		run.Status,
		run.AccountsTotal,
		run.AccountsFailed,
		run.AtRisk,
		run.Extended,
		nullString(run.Error),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis run: %w", err)
	}
	return nil
}

// ListAnalysisRuns returns the most recent runs, newest first.
func (s *Store) ListAnalysisRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, window_days, status, accounts_total, accounts_failed, at_risk, extended,
		       error, started_at, completed_at, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var (
			run         AnalysisRun
			errText     sql.NullString
			startedAt   sql.NullString
			completedAt sql.NullString
			createdAt   string
		)
		err := rows.Scan(&run.ID, &run.WindowDays, &run.Status,
			&run.AccountsTotal, &run.AccountsFailed, &run.AtRisk, &run.Extended,
			&errText, &startedAt, &completedAt, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		run.Error = errText.String
		run.StartedAt = parseNullTime(startedAt)
		run.CompletedAt = parseNullTime(completedAt)
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
