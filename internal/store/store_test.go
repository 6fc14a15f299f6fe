package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reelbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertVideo(t *testing.T, s *Store, title, locator string) *Video {
	t.Helper()
	v := &Video{Title: title, Locator: locator}
	require.NoError(t, s.InsertVideo(context.Background(), v))
	return v
}

func TestVideoRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := &Video{
		Title:      "Holiday",
		Locator:    "/media/videos/holiday.mp4",
		DurationMs: 120000,
		SizeBytes:  1 << 20,
	}
	require.NoError(t, s.InsertVideo(ctx, v))
	require.NotZero(t, v.ID)
	require.Equal(t, KindFile, v.Kind)

	got, err := s.VideoByID(ctx, v.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(v, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Fatalf("video mismatch (-want +got):\n%s", diff)
	}

	handle := insertVideo(t, s, "Clip", "content://media/external/video/42")
	require.Equal(t, KindHandle, handle.Kind)
}

func TestUpdateLastPositionAndDuration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := insertVideo(t, s, "A", "/m/a.mp4")

	require.NoError(t, s.UpdateLastPosition(ctx, v.ID, 50000))
	require.NoError(t, s.UpdateDuration(ctx, v.ID, 120000))

	got, err := s.VideoByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, int64(50000), got.LastPositionMs)
	require.Equal(t, int64(120000), got.DurationMs)
}

func TestNextPreviousVideoByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := insertVideo(t, s, "A", "/m/a.mp4")
	b := insertVideo(t, s, "B", "/m/b.mp4")
	c := insertVideo(t, s, "C", "/m/c.mp4")

	next, err := s.NextVideoAfter(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, b.ID, next.ID)

	prev, err := s.PreviousVideoBefore(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, b.ID, prev.ID)

	_, err = s.NextVideoAfter(ctx, c.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.PreviousVideoBefore(ctx, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubtitleActiveAtSelection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := insertVideo(t, s, "A", "/m/a.mp4")

	first := &Subtitle{VideoID: v.ID, StartMs: 0, EndMs: 5000, Text: "A"}
	second := &Subtitle{VideoID: v.ID, StartMs: 3000, EndMs: 8000, Text: "B"}
	require.NoError(t, s.InsertSubtitle(ctx, first))
	require.NoError(t, s.InsertSubtitle(ctx, second))

	// Overlap: the line with the latest start wins.
	got, err := s.SubtitleActiveAt(ctx, v.ID, 4000)
	require.NoError(t, err)
	require.Equal(t, "B", got.Text)

	got, err = s.SubtitleActiveAt(ctx, v.ID, 2000)
	require.NoError(t, err)
	require.Equal(t, "A", got.Text)

	// Boundaries are inclusive.
	got, err = s.SubtitleActiveAt(ctx, v.ID, 8000)
	require.NoError(t, err)
	require.Equal(t, "B", got.Text)

	_, err = s.SubtitleActiveAt(ctx, v.ID, 9000)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubtitlesCascadeWithVideo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := insertVideo(t, s, "A", "/m/a.mp4")
	require.NoError(t, s.InsertSubtitle(ctx, &Subtitle{VideoID: v.ID, StartMs: 0, EndMs: 1000, Text: "x"}))

	require.NoError(t, s.DeleteVideo(ctx, v.ID))

	subs, err := s.SubtitlesForVideo(ctx, v.ID)
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestCascadeHoldsOnEveryPooledConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := insertVideo(t, s, "A", "/m/a.mp4")
	require.NoError(t, s.InsertSubtitle(ctx, &Subtitle{VideoID: v.ID, StartMs: 0, EndMs: 1000, Text: "x"}))

	// Pin one connection in a transaction so the delete has to run on a
	// second one; foreign_keys must be on there too or the subtitle
	// survives its parent.
	tx, err := s.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	require.NoError(t, s.DeleteVideo(ctx, v.ID))

	subs, err := s.SubtitlesForVideo(ctx, v.ID)
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestPlaylistEntryOrderingAndGaps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &User{Username: "anna", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, u))
	p := &Playlist{UserID: u.ID, Name: "road trip"}
	require.NoError(t, s.CreatePlaylist(ctx, p))

	a := insertVideo(t, s, "A", "/m/a.mp4")
	b := insertVideo(t, s, "B", "/m/b.mp4")
	c := insertVideo(t, s, "C", "/m/c.mp4")

	e1, err := s.AppendEntry(ctx, p.ID, a.ID)
	require.NoError(t, err)
	e2, err := s.AppendEntry(ctx, p.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), e1.Position)
	require.Equal(t, int64(2), e2.Position)

	// Duplicate pair is reported, not silently deduplicated.
	_, err = s.AppendEntry(ctx, p.ID, a.ID)
	require.ErrorIs(t, err, ErrDuplicateEntry)

	// Removal leaves a gap; the next append continues past it.
	require.NoError(t, s.RemoveEntry(ctx, p.ID, b.ID))
	e3, err := s.AppendEntry(ctx, p.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), e3.Position)

	videos, err := s.VideosForPlaylist(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	require.Equal(t, a.ID, videos[0].ID)
	require.Equal(t, c.ID, videos[1].ID)
}

func TestPlaylistThumbnailDerivedFromFirstEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &User{Username: "ben", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, u))
	p := &Playlist{UserID: u.ID, Name: "clips"}
	require.NoError(t, s.CreatePlaylist(ctx, p))

	v := &Video{Title: "A", Locator: "/m/a.mp4", Thumbnail: "/thumbs/a.jpg"}
	require.NoError(t, s.InsertVideo(ctx, v))
	_, err := s.AppendEntry(ctx, p.ID, v.ID)
	require.NoError(t, err)

	thumb, err := s.PlaylistThumbnail(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "/thumbs/a.jpg", thumb)

	// Derived value is persisted.
	got, err := s.PlaylistByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "/thumbs/a.jpg", got.Thumbnail)
}

func TestUserUniqueUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &User{Username: "anna", PasswordHash: "h"}))
	err := s.CreateUser(ctx, &User{Username: "anna", PasswordHash: "h2"})
	require.ErrorIs(t, err, ErrUsernameTaken)

	u, err := s.UserByLogin(ctx, "anna")
	require.NoError(t, err)
	require.Equal(t, "anna", u.Username)

	_, err = s.UserByLogin(ctx, "nobody")
	require.True(t, errors.Is(err, ErrNotFound))
}
