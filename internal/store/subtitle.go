package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertSubtitle creates a subtitle line and assigns its ID.
// Validation (end > start, non-empty text) happens at the edit surface,
// not here.
func (s *Store) InsertSubtitle(ctx context.Context, sub *Subtitle) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO subtitles (video_id, start_ms, end_ms, text) VALUES (?, ?, ?, ?)",
		sub.VideoID, sub.StartMs, sub.EndMs, sub.Text)
	if err != nil {
		return fmt.Errorf("insert subtitle: %w", err)
	}
	sub.ID, err = res.LastInsertId()
	return err
}

// UpdateSubtitle rewrites timing and text of an existing line.
func (s *Store) UpdateSubtitle(ctx context.Context, sub *Subtitle) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE subtitles SET start_ms = ?, end_ms = ?, text = ? WHERE id = ?",
		sub.StartMs, sub.EndMs, sub.Text, sub.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubtitle removes one line.
func (s *Store) DeleteSubtitle(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM subtitles WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SubtitlesForVideo lists all lines for a video ordered by start time.
func (s *Store) SubtitlesForVideo(ctx context.Context, videoID int64) ([]Subtitle, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, video_id, start_ms, end_ms, text FROM subtitles WHERE video_id = ? ORDER BY start_ms ASC",
		videoID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Subtitle
	for rows.Next() {
		var sub Subtitle
		if err := rows.Scan(&sub.ID, &sub.VideoID, &sub.StartMs, &sub.EndMs, &sub.Text); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// SubtitleActiveAt returns the line covering the given position, or
// ErrNotFound when no line is active. When lines overlap the one with
// the latest start wins.
func (s *Store) SubtitleActiveAt(ctx context.Context, videoID, atMs int64) (*Subtitle, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, video_id, start_ms, end_ms, text
	FROM subtitles
	WHERE video_id = ? AND start_ms <= ? AND end_ms >= ?
	ORDER BY start_ms DESC
	LIMIT 1`, videoID, atMs, atMs)

	var sub Subtitle
	err := row.Scan(&sub.ID, &sub.VideoID, &sub.StartMs, &sub.EndMs, &sub.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
