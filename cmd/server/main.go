package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attacknav/internal/config"
	"attacknav/internal/handler"
	"attacknav/internal/hub"
	"attacknav/internal/repository/sqlite"
	"attacknav/internal/service"
	"attacknav/internal/transport"
	"attacknav/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	if err := run(*configPath, *addr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "attacknav: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, dbPath string) error {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if configPath != "" {
		cfg, path, err = config.LoadFromPath(configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)
	if path == "" {
		logger.Info("no config file found, using defaults")
	} else {
		logger.Info("config loaded", "path", path)
	}
	logger.Debug(cfg.Summary())

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer repo.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	fetchOpts := transport.Options{
		Timeout: cfg.Fetch.Timeout.Duration(),
		Rate:    cfg.Fetch.Rate,
		Burst:   cfg.Fetch.Burst,
		Logger:  logger,
	}
	if cfg.Cache.RedisURL != "" {
		cache, err := transport.NewRedisCache(transport.RedisOptions{
			URL: cfg.Cache.RedisURL,
			TTL: cfg.Cache.TTL.Duration(),
		})
		if err != nil {
			logger.Warn("bundle cache disabled", "error", err)
		} else {
			defer cache.Close()
			fetchOpts.Cache = cache
		}
	}
	fetcher := transport.NewFetcher(fetchOpts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event bus feeds the SSE hub
	eventBus := service.NewEventBus()
	sseHub := hub.New(logger)
	go sseHub.Run(ctx)

	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	defer eventBus.Unsubscribe(eventChan)
	go func() {
		for {
			select {
			case event := <-eventChan:
				sseHub.Broadcast(string(event.Type), event)
			case <-ctx.Done():
				return
			}
		}
	}()

	domainSvc := service.NewDomainService(cfg.DomainVersions(), fetcher, repo, eventBus, logger)
	restored, err := domainSvc.Restore(ctx)
	if err != nil {
		logger.Warn("failed to restore snapshots", "error", err)
	} else if restored > 0 {
		logger.Info("restored domains from snapshots", "count", restored)
	}
	layerSvc := service.NewLayerService(repo, domainSvc, eventBus, logger)

	if cfg.BundleDir != "" {
		w := watcher.New(cfg.BundleDir, func(ctx context.Context, path string) {
			if _, err := domainSvc.LoadFile(ctx, path); err != nil {
				logger.Warn("failed to load bundle file", "path", path, "error", err)
			}
		}, logger)
		if err := w.Scan(ctx); err != nil {
			logger.Warn("failed to scan bundle directory", "dir", cfg.BundleDir, "error", err)
		}
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bundle watcher stopped", "error", err)
			}
		}()
	}

	mux := http.NewServeMux()
	handler.Register(mux,
		handler.NewDomainHandler(domainSvc, logger),
		handler.NewLayerHandler(layerSvc, logger),
		sseHub)

	finalHandler := handler.Chain(mux,
		handler.Recover(logger),
		handler.CORS(cfg.Server.CORSOrigins),
		handler.Logger(logger),
	)

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     finalHandler,
		ReadTimeout: 10 * time.Second,
		// No write timeout: SSE streams stay open
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
