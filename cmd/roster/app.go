// ABOUTME: Wires config into the store, auth, notifier, archiver, and HTTP server
// ABOUTME: Run serves until the context is canceled, then shuts down gracefully

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/roster/internal/api"
	"github.com/2389/roster/internal/auth"
	"github.com/2389/roster/internal/backup"
	"github.com/2389/roster/internal/config"
	"github.com/2389/roster/internal/notify"
	"github.com/2389/roster/internal/store"
)

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.DocumentStore
	notifier *notify.Notifier
	server   *http.Server
}

func openStore(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*store.DocumentStore, error) {
	opts := []store.Option{store.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, store.WithMetrics(store.NewMetrics(reg)))
	}
	s, err := store.Open(cfg.Storage.Driver, cfg.Storage.Dir, cfg.Storage.SQLitePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func newAuthService(cfg *config.Config, s store.Store, logger *slog.Logger) *auth.Service {
	opts := []auth.Option{auth.WithLogger(logger)}
	if cfg.Auth.BcryptCost != 0 {
		opts = append(opts, auth.WithBcryptCost(cfg.Auth.BcryptCost))
	}
	return auth.NewService(s, cfg.Auth.TokenTTL, opts...)
}

// newArchiver returns an archiver for the configured sink. The "none" driver
// yields a disabled archiver.
func newArchiver(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (*backup.Archiver, error) {
	var sink backup.Sink
	switch cfg.Driver {
	case "fs":
		fs, err := backup.NewFSSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		sink = fs
	case "s3":
		s3, err := backup.NewS3Sink(ctx, backup.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		sink = s3
	}
	return backup.NewArchiver(sink, cfg.Compress, logger), nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	var (
		reg     *prometheus.Registry
		metrics *api.Metrics
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		metrics = api.NewMetrics(reg)
	}

	var storeReg prometheus.Registerer
	if reg != nil {
		storeReg = reg
	}
	s, err := openStore(cfg, logger, storeReg)
	if err != nil {
		return nil, err
	}

	archiver, err := newArchiver(ctx, cfg.Backup.Archive, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("configuring backup archive: %w", err)
	}

	notifier := notify.New(notify.Config{
		DryRun:       cfg.Notify.DryRun,
		TestCooldown: cfg.Notify.TestCooldown,
		Output:       os.Stdout,
	}, logger)

	srv := api.New(api.Config{
		Store:              s,
		Auth:               newAuthService(cfg, s, logger),
		Notifier:           notifier,
		Archiver:           archiver,
		Logger:             logger,
		AllowedOrigins:     cfg.CORS.AllowedOrigins,
		ResetTokensOnMerge: cfg.Backup.MergeTokens == "reset",
		Metrics:            metrics,
		MetricsPath:        cfg.Metrics.Path,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		notifier: notifier,
		server: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           srv.Handler(),
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}, nil
}

// Run serves on ln until ctx is canceled.
func (a *app) Run(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- a.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", "timeout", a.cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (a *app) Close() error {
	a.notifier.Close()
	return a.store.Close()
}
