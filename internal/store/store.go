package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyCheckedIn  = errors.New("already checked in at a facility")
	ErrNoEvents          = errors.New("no events given")
	ErrRepeatedEvent     = errors.New("event listed more than once")
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrDuplicate         = errors.New("name already exists")
)

type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	// Configure pragmas.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS facilities (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		name                  TEXT NOT NULL UNIQUE,
		address               TEXT NOT NULL DEFAULT '',
		city                  TEXT NOT NULL DEFAULT '',
		state                 TEXT NOT NULL DEFAULT '',
		latitude              REAL,
		longitude             REAL,
		grace_period_minutes  INTEGER,
		hourly_rate           REAL,
		archived              INTEGER NOT NULL DEFAULT 0,
		created_at            TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
		updated_at            TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE TABLE IF NOT EXISTS brokers (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		email       TEXT NOT NULL DEFAULT '',
		phone       TEXT NOT NULL DEFAULT '',
		archived    INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
		updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		number           TEXT NOT NULL UNIQUE,
		broker_id        INTEGER REFERENCES brokers(id),
		recipient_email  TEXT NOT NULL DEFAULT '',
		total_amount     REAL NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'draft',
		due_date         TEXT NOT NULL,
		created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
		sent_at          TEXT,
		paid_at          TEXT
	);

	CREATE TABLE IF NOT EXISTS detention_events (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		facility_id           INTEGER NOT NULL REFERENCES facilities(id),
		broker_id             INTEGER REFERENCES brokers(id),
		load_number           TEXT NOT NULL DEFAULT '',
		event_type            TEXT NOT NULL DEFAULT 'delivery',
		arrival_time          TEXT NOT NULL,
		departure_time        TEXT,
		grace_period_minutes  INTEGER NOT NULL,
		hourly_rate           REAL NOT NULL,
		detention_minutes     INTEGER NOT NULL DEFAULT 0,
		total_amount          REAL NOT NULL DEFAULT 0,
		status                TEXT NOT NULL DEFAULT 'active',
		invoice_id            INTEGER REFERENCES invoices(id),
		notes                 TEXT NOT NULL DEFAULT '',
		created_at            TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_events_facility ON detention_events(facility_id);
	CREATE INDEX IF NOT EXISTS idx_events_arrival  ON detention_events(arrival_time);
	CREATE INDEX IF NOT EXISTS idx_events_status   ON detention_events(status);

	CREATE TABLE IF NOT EXISTS location_points (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id         INTEGER NOT NULL REFERENCES detention_events(id) ON DELETE CASCADE,
		kind             TEXT NOT NULL DEFAULT 'track',
		latitude         REAL NOT NULL,
		longitude        REAL NOT NULL,
		accuracy_meters  REAL NOT NULL DEFAULT 0,
		recorded_at      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS photos (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id   INTEGER NOT NULL REFERENCES detention_events(id) ON DELETE CASCADE,
		path       TEXT NOT NULL,
		caption    TEXT NOT NULL DEFAULT '',
		latitude   REAL,
		longitude  REAL,
		taken_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO settings (key, value) VALUES
		('grace_period_minutes', '120'),
		('hourly_rate',          '75'),
		('invoice_due_days',     '30'),
		('company_name',         ''),
		('company_email',        ''),
		('driver_name',          ''),
		('truck_number',         '');
	`
	_, err := s.db.Exec(ddl)
	return err
}

// DefaultDBPath returns ~/.config/dwell/dwell.db
func DefaultDBPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "dwell", "dwell.db"), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullInt(i sql.NullInt64) *int64 {
	if !i.Valid {
		return nil
	}
	v := i.Int64
	return &v
}

// duplicate maps a unique constraint violation to ErrDuplicate.
func duplicate(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicate
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
