package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/counterbook/counterbook/internal/app"
	"github.com/counterbook/counterbook/internal/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	eng, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("engine close", slog.Any("error", err))
		}
	}()

	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "status":
		if err := printStatus(ctx, eng); err != nil {
			logger.Error("status", slog.Any("error", err))
			os.Exit(1)
		}
	case "repair":
		if err := repair(ctx, eng, os.Args[2:], logger); err != nil {
			logger.Error("repair", slog.Any("error", err))
			os.Exit(1)
		}
	case "run":
		run(ctx, eng, cfg, logger, stop)
	default:
		logger.Error("unknown command", slog.String("command", cmd))
		os.Exit(2)
	}
}

func printStatus(ctx context.Context, eng *engine.Engine) error {
	status, err := eng.DatabaseStatus(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

// repair recomputes customer aggregates from the sales ledger, for one
// customer when an id is given and for all of them otherwise.
func repair(ctx context.Context, eng *engine.Engine, args []string, logger *slog.Logger) error {
	if len(args) > 0 {
		agg, err := eng.Customers.Repair(ctx, args[0])
		if err != nil {
			return err
		}
		logger.Info("customer aggregate repaired",
			slog.String("customer_id", args[0]),
			slog.String("total_purchases", agg.TotalPurchases.String()),
			slog.Int("purchase_count", agg.PurchaseCount))
		return nil
	}
	if err := eng.Customers.RepairAll(ctx); err != nil {
		return err
	}
	logger.Info("all customer aggregates repaired")
	return nil
}

func run(ctx context.Context, eng *engine.Engine, cfg *app.Config, logger *slog.Logger, stop func()) {
	events, cancel := eng.Subscribe()
	defer cancel()
	go func() {
		for evt := range events {
			logger.Debug("change event",
				slog.String("topic", evt.Topic),
				slog.String("entity_id", evt.EntityID))
		}
	}()

	var server *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", eng.Metrics().Handler())
		server = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", slog.Any("error", err))
				stop()
			}
		}()
	}

	logger.Info("engine running")
	<-ctx.Done()
	logger.Info("shutting down")

	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", slog.Any("error", err))
		}
	}
}
