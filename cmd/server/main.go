package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scorewise/scorewise/internal/bundle"
	"github.com/scorewise/scorewise/internal/client"
	"github.com/scorewise/scorewise/internal/config"
	"github.com/scorewise/scorewise/internal/dashboard"
	"github.com/scorewise/scorewise/internal/explain"
	"github.com/scorewise/scorewise/internal/inference"
	"github.com/scorewise/scorewise/internal/monitoring"
	"github.com/scorewise/scorewise/internal/population"
	"github.com/scorewise/scorewise/internal/ratelimit"
)

func main() {
	logger := monitoring.NewLogger()
	slog.SetDefault(logger.Logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err.Error())
		os.Exit(1)
	}

	b, err := bundle.Load(cfg.BundleDir)
	if err != nil {
		logger.Error("failed to load model bundle", "dir", cfg.BundleDir, "error", err.Error())
		os.Exit(1)
	}
	logger.StartupLogger("bundle", fmt.Sprintf("dir=%s version=%s features=%d trees=%d",
		cfg.BundleDir, b.Version, b.Schema.Len(), len(b.Ensemble.Trees)))

	sc, err := inference.NewScorer(b.Transform, b.Ensemble, cfg.Threshold)
	if err != nil {
		logger.Error("failed to build scorer", "error", err.Error())
		os.Exit(1)
	}
	ex, err := explain.NewExplainer(b.Schema, b.Transform, b.Ensemble)
	if err != nil {
		logger.Error("failed to build explainer", "error", err.Error())
		os.Exit(1)
	}
	logger.StartupLogger("scorer", fmt.Sprintf("threshold=%v", sc.Threshold()))

	var pop *population.Store
	if cfg.PopulationCSV != "" {
		pop, err = population.Open(":memory:")
		if err != nil {
			logger.Error("failed to open population store", "error", err.Error())
			os.Exit(1)
		}
		defer pop.Close()

		rows, err := pop.LoadCSV(cfg.PopulationCSV, b.Schema.Features(), cfg.PopulationMaxRows)
		if err != nil {
			logger.Error("failed to load reference population", "csv", cfg.PopulationCSV, "error", err.Error())
			os.Exit(1)
		}
		logger.StartupLogger("population", fmt.Sprintf("csv=%s rows=%d", cfg.PopulationCSV, rows))
	}

	metrics := monitoring.NewMetrics()

	redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting falls back to in-memory", "addr", cfg.RedisAddr, "error", err.Error())
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	limitCfg := ratelimit.DefaultConfig()
	limitCfg.IPLimitPerMin = cfg.IPLimitPerMin
	limiter := ratelimit.NewRateLimiter(redisClient, limitCfg, metrics)

	srv := &server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		schema:     b.Schema,
		features:   featureInfos(b.Schema, b.Transform.IsCategorical, b.Transform.Categories),
		scorer:     sc,
		explainer:  ex,
		population: pop,
		version:    b.Version,
	}

	var dash *dashboard.Handler
	if cfg.DashboardEnabled {
		store := dashboard.NewSessionStore(30 * time.Minute)
		dash, err = dashboard.NewHandler(client.New(cfg.APIBaseURL), store, logger)
		if err != nil {
			logger.Error("failed to build dashboard", "error", err.Error())
			os.Exit(1)
		}
	}

	router := setupRouter(srv, limiter, dash)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "dashboard", cfg.DashboardEnabled)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("server exited")
}
