package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultDebounce   = 2 * time.Second
	defaultRescanRate = 30 * time.Second
)

// Watcher triggers rescans when files under the media roots change.
// Bursts of filesystem events collapse into a single scan: a short
// debounce absorbs the burst and a rate limiter spaces scans out.
type Watcher struct {
	scanner  *Scanner
	log      zerolog.Logger
	debounce time.Duration
	limiter  *rate.Limiter
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the event settle window (tests use a short one).
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithRescanInterval overrides the minimum spacing between scans.
func WithRescanInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// NewWatcher creates a watcher over the scanner's roots.
func NewWatcher(scanner *Scanner, log zerolog.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		scanner:  scanner,
		log:      log,
		debounce: defaultDebounce,
		limiter:  rate.NewLimiter(rate.Every(defaultRescanRate), 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until the context is cancelled. Directories created
// while watching are added to the watch set.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			w.log.Debug().Err(err).Msg("close watcher")
		}
	}()

	for _, root := range w.scanner.Roots() {
		if err := addRecursive(fsw, root); err != nil {
			w.log.Warn().Err(err).Str("root", root).Msg("media root not watchable")
		}
	}

	var rescan <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := fsw.Add(ev.Name); err != nil {
						w.log.Debug().Err(err).Str("dir", ev.Name).Msg("watch new directory failed")
					}
				}
			}
			if rescan == nil {
				rescan = time.After(w.debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")
		case <-rescan:
			rescan = nil
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
			if _, err := w.scanner.Scan(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("triggered rescan failed")
			}
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
}
