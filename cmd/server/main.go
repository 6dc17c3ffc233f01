package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fit-analyse/dashboard/internal/api"
	"fit-analyse/dashboard/internal/config"
	"fit-analyse/dashboard/internal/db"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/metrics"
	"fit-analyse/dashboard/internal/routes"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	logging.Info("Dashboard companion starting up",
		"environment", cfg.AppEnv,
		"store_backend", cfg.StoreBackend,
		"cache_backend", cfg.CacheBackend,
		"activity_api", cfg.APIBaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.OpenLocalStore(cfg)
	if err != nil {
		logging.Fatal("Failed to open local store", "error", err)
	}
	sx, err := db.OpenSQLX(cfg, gdb)
	if err != nil {
		logging.Fatal("Failed to open sqlx handle", "error", err)
	}
	defer sx.Close()

	version, err := db.Migrate(ctx, gdb, sx)
	if err != nil {
		logging.Fatal("Failed to migrate local store", "error", err)
	}
	logging.Info("Local store ready", "schema_version", version)

	metricsReg := metrics.NewMetricsRegistry()
	deps, err := api.InitDependencies(ctx, cfg, gdb, sx, metricsReg)
	if err != nil {
		logging.Fatal("Failed to initialize dependencies", "error", err)
	}
	defer deps.Cache.Close()
	defer deps.Services.Sessions.Close()

	if cfg.APIToken != "" {
		s, err := deps.Services.Sessions.Start(cfg.APIToken)
		if err != nil {
			logging.Warn("Failed to start session from ACTIVITY_API_TOKEN", "error", err)
		} else {
			logging.Info("Session started from environment token", "session_id", s.ID)
		}
	}

	upSince := time.Now()
	srv := &http.Server{
		Addr:              ":" + cfg.ListenPort,
		Handler:           routes.RegisterRoutes(deps, upSince),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info("Server starting", "port", cfg.ListenPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Graceful shutdown failed", "error", err)
	}
}
