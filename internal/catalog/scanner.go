// Package catalog keeps the video table in sync with the media roots
// on disk.
package catalog

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/inf/reelbox/internal/metrics"
	"github.com/inf/reelbox/internal/store"
)

// scanConcurrency bounds how many roots are walked in parallel.
const scanConcurrency = 4

// Store is the storage surface the scanner maintains.
type Store interface {
	InsertVideo(ctx context.Context, v *store.Video) error
	VideoByLocator(ctx context.Context, locator string) (*store.Video, error)
	VideosUnderPrefix(ctx context.Context, prefix string) ([]store.Video, error)
	UpdateVideoFile(ctx context.Context, id int64, title string, sizeBytes int64) error
	DeleteVideo(ctx context.Context, id int64) error
	Videos(ctx context.Context) ([]store.Video, error)
}

// Result summarizes one full scan.
type Result struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Scanner walks the configured media roots and indexes video files.
type Scanner struct {
	store Store
	roots []string
	exts  map[string]struct{}
	log   zerolog.Logger

	// One scan at a time; the watcher and the rescan endpoint may race.
	scanMu sync.Mutex
}

// NewScanner creates a scanner for the given roots. Extensions are
// matched case-insensitively and must carry their leading dot.
func NewScanner(st Store, roots, exts []string, log zerolog.Logger) *Scanner {
	extSet := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = struct{}{}
	}
	return &Scanner{store: st, roots: roots, exts: extSet, log: log}
}

// Roots returns the configured media roots.
func (sc *Scanner) Roots() []string {
	return sc.roots
}

// Scan walks every root, indexes new files, refreshes changed ones and
// drops entries whose files are gone. Content-handle entries are never
// touched; they have no backing path to check.
func (sc *Scanner) Scan(ctx context.Context) (*Result, error) {
	sc.scanMu.Lock()
	defer sc.scanMu.Unlock()

	start := time.Now()
	result := &Result{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, root := range sc.roots {
		g.Go(func() error {
			return sc.scanRoot(gctx, root, result, &mu)
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, root := range sc.roots {
		if err := sc.removeMissing(ctx, root, result, &mu); err != nil {
			return result, err
		}
	}

	videos, err := sc.store.Videos(ctx)
	if err != nil {
		return result, err
	}
	metrics.RecordCatalogScan(len(videos), time.Since(start).Seconds())

	sc.log.Info().
		Int("added", result.Added).
		Int("updated", result.Updated).
		Int("removed", result.Removed).
		Int("errors", result.Errors).
		Dur("took", time.Since(start)).
		Msg("catalog scan finished")
	return result, nil
}

func (sc *Scanner) scanRoot(ctx context.Context, root string, result *Result, mu *sync.Mutex) error {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		sc.log.Warn().Err(err).Str("root", root).Msg("media root not accessible")
		mu.Lock()
		result.Errors++
		mu.Unlock()
		return nil
	}
	resolved = filepath.Clean(resolved)

	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			sc.log.Warn().Err(walkErr).Str("path", path).Msg("scan walk error")
			mu.Lock()
			result.Errors++
			mu.Unlock()
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := sc.exts[ext]; !ok {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			return nil
		}

		info, err := d.Info()
		if err != nil {
			mu.Lock()
			result.Errors++
			mu.Unlock()
			return nil
		}

		added, updated, err := sc.upsert(ctx, path, d.Name(), info.Size())
		mu.Lock()
		switch {
		case err != nil:
			result.Errors++
		case added:
			result.Added++
		case updated:
			result.Updated++
		}
		mu.Unlock()
		if err != nil {
			sc.log.Warn().Err(err).Str("path", path).Msg("catalog upsert failed")
		}
		return nil
	})
}

func (sc *Scanner) upsert(ctx context.Context, path, filename string, size int64) (added, updated bool, err error) {
	title := strings.TrimSuffix(filename, filepath.Ext(filename))

	existing, err := sc.store.VideoByLocator(ctx, path)
	switch {
	case errors.Is(err, store.ErrNotFound):
		v := &store.Video{
			Title:     title,
			Locator:   path,
			Thumbnail: sidecarThumbnail(path),
			SizeBytes: size,
		}
		if err := sc.store.InsertVideo(ctx, v); err != nil {
			return false, false, err
		}
		return true, false, nil
	case err != nil:
		return false, false, err
	}

	if existing.Title == title && existing.SizeBytes == size {
		return false, false, nil
	}
	if err := sc.store.UpdateVideoFile(ctx, existing.ID, title, size); err != nil {
		return false, false, err
	}
	return false, true, nil
}

func (sc *Scanner) removeMissing(ctx context.Context, root string, result *Result, mu *sync.Mutex) error {
	// Locators were stored against the resolved root path.
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	prefix := filepath.Clean(root) + string(os.PathSeparator)
	videos, err := sc.store.VideosUnderPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, v := range videos {
		if v.Kind != store.KindFile {
			continue
		}
		if _, err := os.Stat(v.Locator); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := sc.store.DeleteVideo(ctx, v.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			mu.Lock()
			result.Errors++
			mu.Unlock()
			continue
		}
		sc.log.Info().Str("locator", v.Locator).Msg("removed vanished video")
		mu.Lock()
		result.Removed++
		mu.Unlock()
	}
	return nil
}

// sidecarThumbnail returns a poster image lying next to the video file,
// empty if there is none.
func sidecarThumbnail(videoPath string) string {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	for _, ext := range []string{".jpg", ".jpeg", ".png"} {
		if info, err := os.Stat(base + ext); err == nil && !info.IsDir() {
			return base + ext
		}
	}
	return ""
}
