package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"council-motions/internal/config"
	dbpkg "council-motions/internal/db"
	"council-motions/internal/documents"
	"council-motions/internal/motion"
	"council-motions/internal/seats"
	"council-motions/internal/store"
)

// app is the wired process: database, adapters and the engine.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *gorm.DB
	repo     *store.Repository
	docs     *documents.Store
	engine   *motion.Engine
	registry *prometheus.Registry

	closers []func()
}

// openApp connects and migrates the database and builds the engine.
// logFile, when set, receives the logs instead of stderr.
func openApp(cfg config.Config, logFile string) (*app, error) {
	log, closeLog, err := newLogger(cfg, logFile)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, closers: []func(){closeLog}}

	log.Debug("config loaded", "event", "config_loaded", "config", cfg.DebugString())

	gormDB, err := dbpkg.Open(cfg)
	if err != nil {
		a.close()
		if errors.Is(err, dbpkg.ErrNotConfigured) {
			return nil, errors.New("DATABASE_URL is required")
		}
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	a.db = gormDB
	a.closers = append(a.closers, func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := dbpkg.AutoMigrate(gormDB); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Debug("migrations applied", "event", "db_migrated")

	a.repo = store.NewRepository(gormDB, log)

	docs, err := documents.Open(documents.Options{
		Dir:        cfg.DocumentDir,
		MaxBytes:   cfg.DocumentMaxBytes,
		MediaTypes: cfg.DocumentMediaTypes,
		Logger:     log,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.docs = docs
	a.closers = append(a.closers, func() { _ = docs.Close() })

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector())

	eng, err := motion.New(motion.Config{
		Store:        a.repo,
		Directory:    a.repo,
		Seats:        seatSource(cfg, gormDB, log),
		Documents:    docs,
		SeatPolicy:   cfg.SeatPolicy,
		Logger:       log,
		PromRegistry: a.registry,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = eng
	return a, nil
}

// seatSource prefers the remote allocation service when one is configured.
func seatSource(cfg config.Config, gormDB *gorm.DB, log *slog.Logger) motion.SeatAllocations {
	if remote := seats.NewRemote(cfg.SeatsAPIURL, cfg.SeatsCacheTTL, log); remote != nil {
		log.Debug("using remote seat allocations", "event", "seats_remote", "url", cfg.SeatsAPIURL)
		return remote
	}
	return seats.NewTable(gormDB)
}

// serveMetrics exposes the registry when METRICS_ADDR is set. The returned
// func shuts the listener down.
func (a *app) serveMetrics() func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("serving prometheus metrics", "event", "metrics_listen", "addr", a.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics listener failed", "event", "metrics_listen_failed", "error", err)
		}
	}()
	return func() { _ = srv.Close() }
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
