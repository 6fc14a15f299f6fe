// Package source turns stored locators into playable sources.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/inf/reelbox/internal/store"
)

var (
	// ErrNotFound means a file-backed locator does not exist or is unreadable.
	ErrNotFound = errors.New("source: not found")
	// ErrPermissionExpired means a content handle can no longer be opened.
	ErrPermissionExpired = errors.New("source: permission expired")
)

// PlayableSource is a verified locator ready to hand to the player engine.
type PlayableSource struct {
	Locator string
	Kind    store.SourceKind
}

// ContentResolver is the platform facility that opens content handles.
// Implementations live outside this package; the daemon may run without
// one, in which case every handle resolution fails.
type ContentResolver interface {
	OpenRead(ctx context.Context, handle string) (io.ReadCloser, error)
	AcquireReadGrant(ctx context.Context, handle string) error
}

// Resolver probes locators for accessibility before playback.
type Resolver struct {
	content ContentResolver
	log     zerolog.Logger
}

// NewResolver creates a resolver. content may be nil when no
// content-resolution facility is available.
func NewResolver(content ContentResolver, log zerolog.Logger) *Resolver {
	return &Resolver{content: content, log: log}
}

// NormalizeLocator repairs the malformed handle form that prefixes the
// scheme with a stray path separator ("/content://..." -> "content://...").
func NormalizeLocator(locator string) string {
	if strings.HasPrefix(locator, "/"+store.ContentScheme) {
		return strings.TrimPrefix(locator, "/")
	}
	return locator
}

// Resolve verifies the locator and returns a playable source.
// File paths are stat+open probed; handles are probe-opened through the
// content facility and closed again. On a successful handle probe a
// persistent read grant is attempted; failing to get one is logged but
// does not fail the current session.
func (r *Resolver) Resolve(ctx context.Context, locator string) (PlayableSource, error) {
	locator = NormalizeLocator(locator)

	if strings.HasPrefix(locator, store.ContentScheme) {
		return r.resolveHandle(ctx, locator)
	}
	return r.resolveFile(locator)
}

func (r *Resolver) resolveFile(path string) (PlayableSource, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return PlayableSource{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return PlayableSource{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	_ = f.Close()
	return PlayableSource{Locator: path, Kind: store.KindFile}, nil
}

func (r *Resolver) resolveHandle(ctx context.Context, handle string) (PlayableSource, error) {
	if r.content == nil {
		return PlayableSource{}, fmt.Errorf("%w: no content resolver", ErrPermissionExpired)
	}

	rc, err := r.content.OpenRead(ctx, handle)
	if err != nil {
		return PlayableSource{}, fmt.Errorf("%w: %v", ErrPermissionExpired, err)
	}
	_ = rc.Close()

	// Best effort: keeps the handle readable across restarts. A failure
	// only risks ErrPermissionExpired on a future load.
	if err := r.content.AcquireReadGrant(ctx, handle); err != nil {
		r.log.Warn().Err(err).Str("handle", handle).Msg("persistent read grant not acquired")
	}

	return PlayableSource{Locator: handle, Kind: store.KindHandle}, nil
}
