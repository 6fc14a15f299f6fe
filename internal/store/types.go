package store

import (
	"strings"
	"time"
)

// SourceKind distinguishes how a video locator is resolved.
type SourceKind string

const (
	KindFile   SourceKind = "file"
	KindHandle SourceKind = "content-handle"
)

// ContentScheme prefixes locators that go through the content-resolution
// facility instead of the filesystem.
const ContentScheme = "content://"

// KindForLocator derives the source kind from the locator string.
func KindForLocator(locator string) SourceKind {
	if strings.HasPrefix(locator, ContentScheme) {
		return KindHandle
	}
	return KindFile
}

// User is an account record. PasswordHash is a bcrypt hash.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Phone        string
	Email        string
	Avatar       string
	CreatedAt    time.Time
}

// Video is one catalog entry. Durations and positions are milliseconds.
type Video struct {
	ID             int64
	Title          string
	Locator        string
	Thumbnail      string
	DurationMs     int64
	LastPositionMs int64
	SizeBytes      int64
	Favorite       bool
	Kind           SourceKind
	DateAdded      time.Time
}

// Subtitle is a user-authored subtitle line owned by one video.
// End is exclusive of nothing: a position equal to End still shows the line.
type Subtitle struct {
	ID      int64
	VideoID int64
	StartMs int64
	EndMs   int64
	Text    string
}

// Playlist groups videos for one user.
type Playlist struct {
	ID        int64
	UserID    int64
	Name      string
	Thumbnail string
	CreatedAt time.Time
}

// PlaylistEntry orders a video inside a playlist. Positions grow
// monotonically (max+1 on append) and are not compacted on removal.
type PlaylistEntry struct {
	ID         int64
	PlaylistID int64
	VideoID    int64
	Position   int64
}
