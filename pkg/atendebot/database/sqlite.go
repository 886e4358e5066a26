// Package database opens the central SQLite database (atendebot.db) shared by
// the credential store and the WhatsApp session tables.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds SQLite-specific configuration.
type Config struct {
	// Path is the database file location.
	Path string `yaml:"path"`

	// JournalMode is the SQLite journal mode (defaults to WAL).
	JournalMode string `yaml:"journal_mode"`

	// BusyTimeout is the lock wait timeout in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:        "./data/atendebot.db",
		JournalMode: "WAL",
		BusyTimeout: 5000,
	}
}

// Open opens or creates the SQLite database with the given configuration.
func Open(config Config) (*sql.DB, error) {
	if config.Path == "" {
		config.Path = "./data/atendebot.db"
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5000
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=ON",
		config.Path, config.JournalMode, config.BusyTimeout)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", config.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// DSN returns the connection string for the configured database. Used by the
// WhatsApp transport, whose session store opens its own connection to the
// same file.
func (c Config) DSN() string {
	path := c.Path
	if path == "" {
		path = "./data/atendebot.db"
	}
	journal := c.JournalMode
	if journal == "" {
		journal = "WAL"
	}
	return fmt.Sprintf("file:%s?_journal_mode=%s&_foreign_keys=ON", path, journal)
}
