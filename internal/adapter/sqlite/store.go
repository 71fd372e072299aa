package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// DefaultFileName is the resume database created inside the output directory.
const DefaultFileName = ".book-cover-fetcher.db"

// Store implements port.ResumeStore using SQLite
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	closed bool
}

// Ensure Store implements port.ResumeStore
var _ port.ResumeStore = (*Store)(nil)

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	// Ensure directory exists
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps writes serialized within the process.
	db.SetMaxOpenConns(1)

	// synchronous=FULL: a committed entry survives power loss.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS resume_entries (
			asset_id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			size INTEGER NOT NULL,
			sha256 TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			completed_at TIMESTAMP NOT NULL
		)`,

		// Create meta table for storing schema state
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', '1')`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// SchemaVersion returns the schema version recorded in the meta table
func (s *Store) SchemaVersion() (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&v)
	return v, err
}
