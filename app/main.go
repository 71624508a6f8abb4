package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-river/app/aggregator"
	"github.com/lysyi3m/rss-river/app/api"
	"github.com/lysyi3m/rss-river/app/cfg"
	"github.com/lysyi3m/rss-river/app/database"
	"github.com/lysyi3m/rss-river/app/feed"
	"github.com/lysyi3m/rss-river/app/tasks"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	appCfg, err := cfg.Load()
	if err != nil {
		return err
	}
	if appCfg == nil {
		// Help was shown
		return nil
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting RSS River", "version", appCfg.Version, "port", appCfg.Port)

	fetcher := feed.NewHTTPFetcher(feed.FetcherOptions{
		UserAgent: appCfg.UserAgent,
		Timeout:   appCfg.FetchTimeout,
		ProxyURL:  appCfg.ProxyURL,
	})
	store := aggregator.New(fetcher, feed.NewParser())

	if appCfg.DBPath != "" {
		db, err := database.Open(appCfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer db.Close()

		archive := database.NewArchive(db)
		feeds, posts, err := archive.RestoreInto(store)
		if err != nil {
			return fmt.Errorf("failed to restore archive: %w", err)
		}
		slog.Info("Archive restored", "path", appCfg.DBPath, "feeds", feeds, "posts", posts)

		store.Subscribe(archive.Handle)
	}

	registerSeeds(store, appCfg.FeedsFile, appCfg.FetchTimeout)

	scheduler := tasks.NewScheduler(store, tasks.SchedulerOptions{
		Interval:    appCfg.PollInterval,
		WorkerCount: appCfg.WorkerCount,
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, api.NewGenerator(appCfg.SelfURL(), appCfg.Version), scheduler, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	// No WriteTimeout: /api/events streams for as long as the client stays.
	httpServer := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr, "feed", appCfg.SelfURL())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	return runErr
}

// registerSeeds registers every seed URL not already known to the store.
// Failures are logged; the scheduler only polls feeds that registered.
func registerSeeds(store *aggregator.Store, path string, timeout time.Duration) {
	seeds, err := feed.LoadSeeds(path)
	if err != nil {
		slog.Error("Failed to load seed list", "path", path, "error", err)
		return
	}

	registered := 0
	for _, seed := range seeds {
		if store.Tracked(seed.URL) {
			slog.Debug("Seed already tracked", "feed", seed.URL)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		_, err := store.Register(ctx, seed.URL)
		cancel()

		if err != nil {
			slog.Warn("Failed to register seed", "feed", seed.URL, "error", err)
			continue
		}
		registered++
	}

	slog.Info("Seed list processed", "path", path, "seeds", len(seeds), "registered", registered)
}
