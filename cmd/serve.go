package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/hnidx/hnidx/pkg/api"
	"github.com/hnidx/hnidx/pkg/config"
	"github.com/hnidx/hnidx/pkg/hn"
	"github.com/hnidx/hnidx/pkg/indexer"
	"github.com/hnidx/hnidx/pkg/janitor"
	"github.com/hnidx/hnidx/pkg/log"
	"github.com/hnidx/hnidx/pkg/storage"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the indexer daemon and HTTP API",
		Action: func(ctx context.Context, c *cli.Command) error {
			setupLogging(c)
			return serve(ctx, c.String("config"))
		},
	}
}

// serve runs the background indexing scheduler, the retention janitor and the
// HTTP API until interrupted. SIGHUP or a config file change reloads the
// background task configuration; the listen address stays fixed for the
// process lifetime.
func serve(ctx context.Context, configPath string) error {
	logger := log.ForService("serve")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}()

	service := newService(store, cfg)
	server := api.NewServer(service, store)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	handler := api.CorsMiddleware(api.RequestIDMiddleware(mux))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopBackground := startBackground(ctx, cfg, store)

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("watching config file for changes: %s", configPath)
		}
	}

	shutdown := func() error {
		logger.Infof("shutting down")
		stopBackground()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}

	reload := func() {
		newCfg, err := config.LoadConfig(configPath)
		if err != nil {
			logger.Errorf("reload failed, keeping current configuration: %v", err)
			return
		}
		if newCfg.DBPath != cfg.DBPath || newCfg.ListenAddr != cfg.ListenAddr {
			logger.Warnf("db_path and listen_addr changes require a restart, ignoring them")
			newCfg.DBPath = cfg.DBPath
			newCfg.ListenAddr = cfg.ListenAddr
		}

		stopBackground()
		cfg = newCfg
		stopBackground = startBackground(ctx, cfg, store)
		logger.Infof("configuration reloaded")
	}

	var watcherEvents chan fsnotify.Event
	var watcherErrors chan error
	if watcher != nil {
		watcherEvents = watcher.Events
		watcherErrors = watcher.Errors
	}

	for {
		select {
		case err := <-httpErrCh:
			stopBackground()
			return fmt.Errorf("HTTP server failed: %w", err)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("received SIGHUP, reloading configuration")
				reload()
			case syscall.SIGINT, syscall.SIGTERM:
				return shutdown()
			}
		case <-ctx.Done():
			return shutdown()
		case event, ok := <-watcherEvents:
			if !ok {
				watcherEvents = nil
				continue
			}
			// Editors often replace the file atomically, which shows up
			// as rename or remove.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("config file removed and not replaced, skipping reload")
					continue
				}
				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					if err := watcher.Add(configPath); err != nil {
						logger.Warnf("failed to re-watch config file: %v", err)
					}
				}
				logger.Infof("config file changed (%s), reloading", event.Op)
				reload()
			}
		case err, ok := <-watcherErrors:
			if !ok {
				watcherErrors = nil
				continue
			}
			logger.Warnf("config file watcher error: %v", err)
		}
	}
}

// startBackground launches the indexer and janitor loops with the given
// configuration and returns a function that stops them and waits for both to
// exit.
func startBackground(parent context.Context, cfg *config.Config, store *storage.Store) func() {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup

	ix := indexer.New(hn.NewClient(), store, indexer.Config{
		Interval:         cfg.Indexer.Interval.Duration,
		BulkTarget:       cfg.Indexer.BulkTarget,
		BulkPageSize:     cfg.Indexer.BulkPageSize,
		IncrementalCount: cfg.Indexer.IncrementalCount,
	})
	jan := janitor.New(store, janitor.Config{
		Interval:    cfg.Janitor.Interval.Duration,
		Retention:   cfg.Janitor.Retention.Duration,
		MaxDBSizeMB: cfg.Janitor.MaxDBSizeMB,
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := ix.Run(ctx); err != nil {
			log.ForService("serve").Errorf("indexer exited: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := jan.Run(ctx); err != nil {
			log.ForService("serve").Errorf("janitor exited: %v", err)
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
