// Command server runs the flowengine control surface (spec.md §6): a gin
// HTTP API for starting, inspecting, and controlling workflow runs, with a
// websocket endpoint streaming each run's events. Grounded on the
// teacher's cmd/server/main.go (flag parsing, config load, graceful
// shutdown shape) and go/pkg/server/server.go (gin.Engine + http.Server
// pairing).
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

	"log/slog"

	"github.com/netrun/flowengine/internal/adapters"
	"github.com/netrun/flowengine/internal/api"
	"github.com/netrun/flowengine/internal/config"
	"github.com/netrun/flowengine/internal/logger"
	"github.com/netrun/flowengine/internal/observer"
	"github.com/netrun/flowengine/internal/registry"
	"github.com/netrun/flowengine/pkg/executor"
	"github.com/netrun/flowengine/pkg/expr"
	"github.com/netrun/flowengine/pkg/ports"
)

func main() {
	useMemoryStore := flag.Bool("memory-store", false, "use the in-memory document store instead of Postgres")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting flowengine server", "port", cfg.Server.Port)

	store, err := buildStore(cfg, *useMemoryStore, log)
	if err != nil {
		log.Error("failed to build document store", "error", err)
		os.Exit(1)
	}

	evaluator := expr.NewEngine(cfg.Engine.ExprCacheSize)
	// Real block handlers (SSH/FTP/scan/traffic) are external plugins
	// (spec.md §1); a deployment registers them here before serving traffic.
	handlers := executor.NewRegistry()
	credentials := adapters.NewStaticCredentialResolver(nil)
	hub := observer.NewHub(log)

	env := envAsMap()
	reg := registry.New(store, credentials, handlers, hub, evaluator, env, log)

	cronJob, err := reg.StartRetentionSweep(cfg.Engine.RetentionTTL, cfg.Engine.RetentionSweep)
	if err != nil {
		log.Error("failed to start retention sweep", "error", err)
		os.Exit(1)
	}
	defer cronJob.Stop()

	wsHandler := observer.NewHandler(hub, reg, log)
	srv := api.New(reg, wsHandler, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("http server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server exited gracefully")
}

// buildStore selects the document store backend per flag/config, the way
// the teacher's main.go chooses between storage.NewBunStore and an
// in-memory fallback for local development.
func buildStore(cfg *config.Config, useMemory bool, log *slog.Logger) (ports.DocumentStore, error) {
	if useMemory || cfg.Database.DSN == "" {
		log.Info("using in-memory document store")
		return adapters.NewMemoryStore(), nil
	}

	db, err := adapters.OpenPostgres(adapters.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	bunStore := adapters.NewBunStore(db)
	if err := bunStore.CreateSchema(context.Background()); err != nil {
		return nil, err
	}
	return bunStore, nil
}

// envAsMap exposes the process environment as the $env template root
// (spec.md §4.1): every deployment-provided variable is visible, the way
// the teacher's template engine resolves $env against os.Environ().
func envAsMap() map[string]interface{} {
	out := make(map[string]interface{})
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
