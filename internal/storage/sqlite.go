package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the journal of daemon lifecycle events and settings imports.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "vnhook.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Daemon events ---

// RecordDaemonEvent appends ev to the journal. ID and CreatedAt are filled in
// when empty.
func (s *Store) RecordDaemonEvent(ev DaemonEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO daemon_events (id, created_at, kind, ok, message)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.CreatedAt.UTC().Format(time.RFC3339Nano), ev.Kind, ev.OK, ev.Message,
	)
	return err
}

func (s *Store) GetDaemonEvent(id string) (DaemonEvent, error) {
	var ev DaemonEvent
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, created_at, kind, ok, message
		FROM daemon_events WHERE id = ?`, id,
	).Scan(&ev.ID, &createdAt, &ev.Kind, &ev.OK, &ev.Message)
	if err == sql.ErrNoRows {
		return DaemonEvent{}, ErrNotFound
	}
	if err != nil {
		return DaemonEvent{}, err
	}
	if ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return DaemonEvent{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return ev, nil
}

// RecentDaemonEvents returns up to limit events, newest first.
func (s *Store) RecentDaemonEvents(limit int) ([]DaemonEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, kind, ok, message
		FROM daemon_events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DaemonEvent
	for rows.Next() {
		var ev DaemonEvent
		var createdAt string
		if err := rows.Scan(&ev.ID, &createdAt, &ev.Kind, &ev.OK, &ev.Message); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		ev.CreatedAt = t
		results = append(results, ev)
	}
	return results, rows.Err()
}

// PruneDaemonEvents deletes events older than before and returns how many
// were removed.
func (s *Store) PruneDaemonEvents(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM daemon_events WHERE created_at < ?`, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Settings imports ---

// RecordImport appends rec to the journal. ID and CreatedAt are filled in
// when empty.
func (s *Store) RecordImport(rec ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Status == "" {
		return fmt.Errorf("import record %s has no status", rec.ID)
	}
	_, err := s.db.Exec(`
		INSERT INTO settings_imports (id, created_at, source, field_count, status, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.Source, rec.FieldCount, rec.Status, rec.Error,
	)
	return err
}

// RecentImports returns up to limit import records, newest first.
func (s *Store) RecentImports(limit int) ([]ImportRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, source, field_count, status, error
		FROM settings_imports ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImportRecord
	for rows.Next() {
		var r ImportRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &createdAt, &r.Source, &r.FieldCount, &r.Status, &r.Error); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		results = append(results, r)
	}
	return results, rows.Err()
}
