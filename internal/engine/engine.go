// Package engine wires the storage backends, schema migrations, domain
// services and the event bus into one embeddable unit. The backend decision
// is made exactly once, at Open: when the relational store cannot be opened
// the engine falls back to the key-value store for the life of the process.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/counterbook/counterbook/internal/app"
	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/events"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/observability"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/schema"
	"github.com/counterbook/counterbook/internal/shared"
	"github.com/counterbook/counterbook/internal/storage"
	"github.com/counterbook/counterbook/internal/storage/badgerstore"
	"github.com/counterbook/counterbook/internal/storage/sqlite"
)

// Engine is the storage engine facade. All operations delegate to the domain
// services, which share one backend and one event bus.
type Engine struct {
	cfg     *app.Config
	log     *slog.Logger
	backend storage.Backend
	metrics *observability.Metrics
	bus     *events.Bus
	mgr     *schema.Manager

	Inventory *inventory.Service
	Customers *customers.Service
	Sales     *sales.Ledger
}

// Open builds the engine: backend selection, migrations, services. A failed
// migration is fatal; the engine never serves a half-migrated store.
func Open(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*Engine, error) {
	metrics := observability.NewMetrics()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	metrics.SetFallbackActive(backend.Kind() == storage.KindBadger)
	instrumented := &meteredBackend{next: backend, metrics: metrics}

	mgr, err := schema.NewManager(instrumented, logger, schema.DefaultSteps(cfg.LowStockDefault))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if err := mgr.ApplyPending(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	version, err := mgr.CurrentVersion(ctx)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	metrics.SetSchemaVersion(version)
	logger.Info("storage ready",
		slog.String("backend", string(backend.Kind())),
		slog.Int("schema_version", version))

	bus := events.NewBus(cfg.EventBufferLen, logger)
	bus.OnPublish = metrics.EventPublished
	bus.OnDrop = metrics.EventDropped

	agg := customers.NewAggregator()
	dedup := shared.NewDedupWindow(cfg.DedupWindow)

	return &Engine{
		cfg:       cfg,
		log:       logger,
		backend:   instrumented,
		metrics:   metrics,
		bus:       bus,
		mgr:       mgr,
		Inventory: inventory.NewService(invRepo{b: instrumented}, bus),
		Customers: customers.NewService(custRepo{b: instrumented}, agg, bus, dedup),
		Sales:     sales.NewLedger(salesRepo{b: instrumented}, agg, bus),
	}, nil
}

// openBackend opens the relational store, falling back to the key-value
// store when it is unavailable. ForceFallback skips the relational attempt.
func openBackend(ctx context.Context, cfg *app.Config, logger *slog.Logger) (storage.Backend, error) {
	if cfg.ForceFallback {
		logger.Info("fallback backend forced by configuration")
		return openFallback(cfg, logger)
	}

	primary, err := sqlite.Open(ctx, cfg.DBPath())
	if err == nil {
		return primary, nil
	}
	logger.Warn("relational store unavailable, switching to key-value fallback",
		slog.String("path", cfg.DBPath()),
		slog.Any("error", err))

	fallback, fbErr := openFallback(cfg, logger)
	if fbErr != nil {
		return nil, fmt.Errorf("open storage: sqlite failed (%w) and fallback failed (%w)", err, fbErr)
	}
	return fallback, nil
}

func openFallback(cfg *app.Config, logger *slog.Logger) (storage.Backend, error) {
	return badgerstore.Open(cfg.FallbackPath(), logger)
}

// Subscribe registers a change-event listener. With no topics it receives
// every event. The returned cancel must be called to release the listener.
func (e *Engine) Subscribe(topics ...string) (<-chan events.Event, func()) {
	return e.bus.Subscribe(topics...)
}

// Metrics exposes the engine's Prometheus collectors.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// Close shuts the bus and the backend down. Safe to call once.
func (e *Engine) Close() error {
	e.bus.Close()
	return e.backend.Close()
}
