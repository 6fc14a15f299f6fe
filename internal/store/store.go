// Package store persists the video catalog, subtitles, playlists and
// user accounts in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicateEntry is returned when a (playlist, video) pair already exists.
	ErrDuplicateEntry = errors.New("store: video already in playlist")
	// ErrUsernameTaken is returned when a username is already registered.
	ErrUsernameTaken = errors.New("store: username taken")
)

// Store wraps the SQLite handle. One Store is shared by all components;
// it is constructed by the application root and passed down explicitly.
type Store struct {
	db *sql.DB
}

// Open initializes the database and runs migrations.
// busy_timeout avoids "database locked" errors under the background
// writers. All pragmas ride the DSN so they apply to every pooled
// connection, not just the one an Exec happens to land on; foreign_keys
// in particular must hold everywhere or cascade deletes silently skip.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		locator TEXT NOT NULL UNIQUE,
		thumbnail TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		last_position_ms INTEGER NOT NULL DEFAULT 0,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		favorite INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL CHECK(kind IN ('file', 'content-handle')),
		date_added TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subtitles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		text TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subtitles_video ON subtitles(video_id, start_ms);

	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		thumbnail TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playlist_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
		video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		UNIQUE(playlist_id, video_id)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_playlist ON playlist_entries(playlist_id, position);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginTx starts a new transaction. Used by the catalog scanner for
// atomic upserts.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}
