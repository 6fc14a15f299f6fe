// Command daemon runs the reelbox media daemon: it indexes the media
// roots, serves the HTTP API and drives the single playback session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/inf/reelbox/internal/api"
	"github.com/inf/reelbox/internal/auth"
	"github.com/inf/reelbox/internal/catalog"
	"github.com/inf/reelbox/internal/config"
	xlog "github.com/inf/reelbox/internal/log"
	"github.com/inf/reelbox/internal/playback"
	"github.com/inf/reelbox/internal/player"
	"github.com/inf/reelbox/internal/source"
	"github.com/inf/reelbox/internal/store"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Hour
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reelbox %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: "reelbox"})
	logger := xlog.WithComponent("daemon")
	logger.Info().Str("version", version).Str("listen", cfg.Listen).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("daemon failed")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	for _, dir := range []string{cfg.DataDir, cfg.ExportDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close")
		}
	}()

	resolver := source.NewResolver(nil, xlog.WithComponent("source"))
	factory := func() player.Engine {
		e := player.NewStubEngine()
		e.AutoPrepare = true
		return e
	}
	manager := playback.NewManager(st, resolver, factory, xlog.WithComponent("playback"))
	defer manager.Close()

	authSvc := auth.NewService(st, xlog.WithComponent("auth"), auth.WithSessionTTL(cfg.SessionTTL))
	scanner := catalog.NewScanner(st, cfg.MediaRoots, cfg.VideoExts, xlog.WithComponent("catalog"))

	if _, err := scanner.Scan(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial catalog scan failed")
	}

	if cfg.Watch && len(cfg.MediaRoots) > 0 {
		watcher := catalog.NewWatcher(scanner, xlog.WithComponent("watcher"))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("media watcher stopped")
			}
		}()
	}

	go pruneSessions(ctx, authSvc, logger)

	server := api.New(cfg.Listen, api.Deps{
		Store:     st,
		Auth:      authSvc,
		Player:    manager,
		Scanner:   scanner,
		ExportDir: cfg.ExportDir(),
		Log:       xlog.WithComponent("api"),
	})

	errC := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}

func pruneSessions(ctx context.Context, svc *auth.Service, logger zerolog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.PruneExpired(); n > 0 {
				logger.Debug().Int("removed", n).Msg("pruned expired sessions")
			}
		}
	}
}
