package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreatePlaylist creates a named playlist for a user.
func (s *Store) CreatePlaylist(ctx context.Context, p *Playlist) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO playlists (user_id, name, thumbnail, created_at) VALUES (?, ?, ?, ?)",
		p.UserID, p.Name, p.Thumbnail, p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert playlist: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// RenamePlaylist updates the playlist name.
func (s *Store) RenamePlaylist(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE playlists SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePlaylist removes a playlist; entries cascade.
func (s *Store) DeletePlaylist(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPlaylist(row interface{ Scan(...any) error }) (*Playlist, error) {
	var p Playlist
	var created string
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Thumbnail, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &p, nil
}

// PlaylistByID fetches one playlist.
func (s *Store) PlaylistByID(ctx context.Context, id int64) (*Playlist, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, thumbnail, created_at FROM playlists WHERE id = ?", id)
	return scanPlaylist(row)
}

// PlaylistsForUser lists a user's playlists, newest first.
func (s *Store) PlaylistsForUser(ctx context.Context, userID int64) ([]Playlist, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, thumbnail, created_at FROM playlists WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AppendEntry adds a video at the end of a playlist. The position is
// max+1; gaps from earlier removals are kept. A duplicate pair returns
// ErrDuplicateEntry so the caller can offer removal instead.
func (s *Store) AppendEntry(ctx context.Context, playlistID, videoID int64) (*PlaylistEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var maxPos sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(position) FROM playlist_entries WHERE playlist_id = ?",
		playlistID).Scan(&maxPos); err != nil {
		return nil, err
	}

	entry := &PlaylistEntry{
		PlaylistID: playlistID,
		VideoID:    videoID,
		Position:   maxPos.Int64 + 1,
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO playlist_entries (playlist_id, video_id, position) VALUES (?, ?, ?)",
		playlistID, videoID, entry.Position)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateEntry
		}
		return nil, fmt.Errorf("insert playlist entry: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveEntry deletes a (playlist, video) pair. Remaining positions are
// not renumbered.
func (s *Store) RemoveEntry(ctx context.Context, playlistID, videoID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM playlist_entries WHERE playlist_id = ? AND video_id = ?",
		playlistID, videoID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// VideosForPlaylist returns the member videos in entry order.
func (s *Store) VideosForPlaylist(ctx context.Context, playlistID int64) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT v.`+strings.ReplaceAll(videoColumns, ", ", ", v.")+`
	FROM videos v
	INNER JOIN playlist_entries pe ON v.id = pe.video_id
	WHERE pe.playlist_id = ?
	ORDER BY pe.position ASC`, playlistID)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// EntryCount returns the number of videos in a playlist.
func (s *Store) EntryCount(ctx context.Context, playlistID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM playlist_entries WHERE playlist_id = ?", playlistID).Scan(&n)
	return n, err
}

// PlaylistThumbnail resolves the playlist thumbnail, deriving it lazily
// from the first member video when unset.
func (s *Store) PlaylistThumbnail(ctx context.Context, playlistID int64) (string, error) {
	p, err := s.PlaylistByID(ctx, playlistID)
	if err != nil {
		return "", err
	}
	if p.Thumbnail != "" {
		return p.Thumbnail, nil
	}

	var thumb string
	err = s.db.QueryRowContext(ctx, `
	SELECT v.thumbnail
	FROM videos v
	INNER JOIN playlist_entries pe ON v.id = pe.video_id
	WHERE pe.playlist_id = ?
	ORDER BY pe.position ASC
	LIMIT 1`, playlistID).Scan(&thumb)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if thumb != "" {
		_, _ = s.db.ExecContext(ctx,
			"UPDATE playlists SET thumbnail = ? WHERE id = ?", thumb, playlistID)
	}
	return thumb, nil
}
