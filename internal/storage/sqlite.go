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

// DBFile is the journal database filename inside the data directory.
const DBFile = "rsslabel.db"

// Store wraps the SQLite label journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) DBFile in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, DBFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection; an in-memory database is per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
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

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *Store) migrate() error {
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

// --- Label events ---

func (s *Store) RecordEvent(e LabelEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO label_events (id, batch_file, article_index, action, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.BatchFile, e.ArticleIndex, e.Action, e.Label, e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(limit, offset int) ([]LabelEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_file, article_index, action, label, created_at
		FROM label_events ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LabelEvent
	for rows.Next() {
		var e LabelEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.BatchFile, &e.ArticleIndex, &e.Action, &e.Label, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

// CountEvents returns the number of journaled events with the given action.
func (s *Store) CountEvents(action string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM label_events WHERE action = ?", action).Scan(&n)
	return n, err
}

// --- Checkpoints ---

func (s *Store) RecordCheckpoint(c CheckpointRecord) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO checkpoints (id, filename, batch_file, total_articles, labeled_count, cursor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Filename, c.BatchFile, c.TotalArticles, c.LabeledCount, c.Cursor,
		c.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCheckpoint(filename string) (CheckpointRecord, error) {
	var c CheckpointRecord
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, filename, batch_file, total_articles, labeled_count, cursor, created_at
		FROM checkpoints WHERE filename = ?`, filename,
	).Scan(&c.ID, &c.Filename, &c.BatchFile, &c.TotalArticles, &c.LabeledCount, &c.Cursor, &createdAt)
	if err == sql.ErrNoRows {
		return CheckpointRecord{}, ErrNotFound
	}
	if err != nil {
		return CheckpointRecord{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return CheckpointRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

// ListCheckpoints returns journaled checkpoints newest first.
func (s *Store) ListCheckpoints(limit int) ([]CheckpointRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, batch_file, total_articles, labeled_count, cursor, created_at
		FROM checkpoints ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CheckpointRecord
	for rows.Next() {
		var c CheckpointRecord
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Filename, &c.BatchFile, &c.TotalArticles, &c.LabeledCount, &c.Cursor, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}
