package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const videoColumns = "id, title, locator, thumbnail, duration_ms, last_position_ms, size_bytes, favorite, kind, date_added"

func scanVideo(row interface{ Scan(...any) error }) (*Video, error) {
	var v Video
	var favorite int
	var added string
	err := row.Scan(&v.ID, &v.Title, &v.Locator, &v.Thumbnail, &v.DurationMs,
		&v.LastPositionMs, &v.SizeBytes, &favorite, &v.Kind, &added)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Favorite = favorite != 0
	v.DateAdded, _ = time.Parse(time.RFC3339, added)
	return &v, nil
}

func collectVideos(rows *sql.Rows) ([]Video, error) {
	defer func() { _ = rows.Close() }()
	var out []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// InsertVideo creates a catalog record and assigns its ID. The source
// kind is derived from the locator.
func (s *Store) InsertVideo(ctx context.Context, v *Video) error {
	if v.DateAdded.IsZero() {
		v.DateAdded = time.Now()
	}
	v.Kind = KindForLocator(v.Locator)
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO videos (title, locator, thumbnail, duration_ms, last_position_ms, size_bytes, favorite, kind, date_added)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Title, v.Locator, v.Thumbnail, v.DurationMs, v.LastPositionMs,
		v.SizeBytes, boolInt(v.Favorite), v.Kind, v.DateAdded.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

// VideoByID fetches one record.
func (s *Store) VideoByID(ctx context.Context, id int64) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE id = ?", id)
	return scanVideo(row)
}

// VideoByLocator fetches the record backed by the given locator.
func (s *Store) VideoByLocator(ctx context.Context, locator string) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE locator = ?", locator)
	return scanVideo(row)
}

// Videos lists the catalog ordered by title.
func (s *Store) Videos(ctx context.Context) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+videoColumns+" FROM videos ORDER BY title ASC")
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// VideosByDateAdded lists the catalog newest-first.
func (s *Store) VideosByDateAdded(ctx context.Context) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+videoColumns+" FROM videos ORDER BY date_added DESC, id DESC")
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// SearchVideos matches titles by substring.
func (s *Store) SearchVideos(ctx context.Context, query string) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+videoColumns+` FROM videos WHERE title LIKE ? ESCAPE '\' ORDER BY title ASC`,
		"%"+escapeLike(query)+"%")
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// FavoriteVideos lists videos with the favorite flag set.
func (s *Store) FavoriteVideos(ctx context.Context) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE favorite = 1 ORDER BY title ASC")
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// VideosUnderPrefix lists file-backed videos whose locator starts with
// the given path prefix. Used by the catalog scanner to detect removals.
func (s *Store) VideosUnderPrefix(ctx context.Context, prefix string) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+videoColumns+` FROM videos WHERE kind = ? AND locator LIKE ? ESCAPE '\' ORDER BY locator`,
		KindFile, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// NextVideoAfter returns the catalog video with the smallest ID greater
// than id, or ErrNotFound.
func (s *Store) NextVideoAfter(ctx context.Context, id int64) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE id > ? ORDER BY id ASC LIMIT 1", id)
	return scanVideo(row)
}

// PreviousVideoBefore returns the catalog video with the largest ID
// smaller than id, or ErrNotFound.
func (s *Store) PreviousVideoBefore(ctx context.Context, id int64) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE id < ? ORDER BY id DESC LIMIT 1", id)
	return scanVideo(row)
}

// UpdateLastPosition persists the playback offset for a video.
func (s *Store) UpdateLastPosition(ctx context.Context, id, positionMs int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE videos SET last_position_ms = ? WHERE id = ?", positionMs, id)
	return err
}

// UpdateDuration records the duration once playback discovers it.
func (s *Store) UpdateDuration(ctx context.Context, id, durationMs int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE videos SET duration_ms = ? WHERE id = ?", durationMs, id)
	return err
}

// UpdateVideoFile refreshes size and title after a rescan.
func (s *Store) UpdateVideoFile(ctx context.Context, id int64, title string, sizeBytes int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE videos SET title = ?, size_bytes = ? WHERE id = ?", title, sizeBytes, id)
	return err
}

// SetFavorite toggles the favorite flag.
func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE videos SET favorite = ? WHERE id = ?", boolInt(favorite), id)
	return err
}

// DeleteVideo removes a record; subtitles and playlist entries cascade.
func (s *Store) DeleteVideo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
