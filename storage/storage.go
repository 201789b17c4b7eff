package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	databaseFile = "hallbook.db"
	actorFile    = "actor.json"
	configFile   = "config.json"

	busyTimeout = 5 * time.Second
)

var (
	// ErrBusy reports that a competing writer held the database lock past the
	// busy timeout. Callers may retry.
	ErrBusy     = errors.New("storage: database busy")
	ErrNotFound = errors.New("storage: not found")
)

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "hallbook"), nil
}

func DatabasePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, databaseFile), nil
}

func ActorPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, actorFile), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

func ensureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every read and write statement. It runs either directly on
// the pool or inside a transaction.
type Queries struct {
	q querier
}

type DB struct {
	*Queries
	sql *sql.DB
}

type Tx struct {
	*Queries
	tx *sql.Tx
}

// OpenDefault opens the database under the user config dir.
func OpenDefault() (*DB, error) {
	if _, err := ensureConfigDir(); err != nil {
		return nil, err
	}
	path, err := DatabasePath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Open opens (and migrates) the sqlite database at path. Transactions begin
// with BEGIN IMMEDIATE so that concurrent writers are serialized.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", fmt.Sprintf("%d", busyTimeout.Milliseconds()))
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")
	dsn := "file:" + path + "?" + params.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{Queries: &Queries{q: db}, sql: db}, nil
}

func (db *DB) Close() error {
	return db.sql.Close()
}

// Atomically runs fn in one serializable unit. Any error returned by fn rolls
// the transaction back and is returned unchanged, except sqlite lock errors
// which are reported as ErrBusy.
func (db *DB) Atomically(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	if err := fn(&Tx{Queries: &Queries{q: tx}, tx: tx}); err != nil {
		_ = tx.Rollback()
		return mapError(err)
	}
	return mapError(tx.Commit())
}

// Snapshot runs fn against a consistent view of the database and discards
// any writes.
func (db *DB) Snapshot(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback() }()
	return mapError(fn(&Tx{Queries: &Queries{q: tx}, tx: tx}))
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}
	return err
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
	}
	return err
}

func ensureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS venues (
  id TEXT PRIMARY KEY,
  club_id TEXT NOT NULL,
  name TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  timezone TEXT,
  hours TEXT NOT NULL,
  supports_parallel INTEGER NOT NULL DEFAULT 0,
  max_parallel_teams INTEGER NOT NULL DEFAULT 1,
  booking_increment INTEGER NOT NULL DEFAULT 30
);`,
		`CREATE TABLE IF NOT EXISTS courts (
  id TEXT PRIMARY KEY,
  venue_id TEXT NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
  label TEXT NOT NULL,
  sort_order INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1
);`,
		`CREATE TABLE IF NOT EXISTS teams (
  id TEXT PRIMARY KEY,
  club_id TEXT NOT NULL,
  name TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS time_slot_templates (
  id TEXT PRIMARY KEY,
  venue_id TEXT NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
  day_of_week INTEGER NOT NULL,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  status TEXT NOT NULL,
  team_id TEXT,
  uses_custom_times INTEGER NOT NULL DEFAULT 0,
  valid_from TEXT NOT NULL,
  valid_until TEXT,
  assigned_by TEXT,
  assigned_at TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS segment_assignments (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL REFERENCES time_slot_templates(id) ON DELETE CASCADE,
  team_id TEXT NOT NULL,
  day_of_week INTEGER NOT NULL,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  duration_minutes INTEGER NOT NULL,
  status TEXT NOT NULL,
  valid_until TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL REFERENCES time_slot_templates(id),
  venue_id TEXT NOT NULL,
  court_id TEXT,
  team_id TEXT NOT NULL,
  original_team_id TEXT NOT NULL,
  booking_date TEXT NOT NULL,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  status TEXT NOT NULL,
  booked_by_user_id TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  entity TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  action TEXT NOT NULL,
  actor_id TEXT,
  actor_name TEXT,
  reason TEXT,
  at TEXT NOT NULL
);`,
		"CREATE INDEX IF NOT EXISTS idx_templates_venue_day ON time_slot_templates(venue_id, day_of_week);",
		"CREATE INDEX IF NOT EXISTS idx_segments_template ON segment_assignments(template_id, day_of_week);",
		"CREATE INDEX IF NOT EXISTS idx_bookings_venue_date ON bookings(venue_id, booking_date);",
		"CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);",
		"CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity, entity_id);",
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return ensureColumns(db, "bookings", []string{"released_by_team_id", "attended_at"})
}

// ensureColumns adds TEXT columns that were introduced after a table was
// first created.
func ensureColumns(db *sql.DB, table string, columns []string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return fmt.Errorf("inspect %s table: %w", table, err)
	}
	defer rows.Close()

	existing := map[string]struct{}{}
	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	for _, column := range columns {
		if _, ok := existing[column]; ok {
			continue
		}
		_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT;", table, column))
		if err != nil {
			return fmt.Errorf("add %s column %s: %w", table, column, err)
		}
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatDate(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseTimestamp(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseNullDate(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := ParseDate(value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
