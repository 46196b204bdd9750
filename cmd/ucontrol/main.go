package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"ucontrol/internal/backend"
	"ucontrol/internal/cache"
	"ucontrol/internal/cli"
	"ucontrol/internal/config"
	apphttp "ucontrol/internal/http"
	"ucontrol/internal/log"
	"ucontrol/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger("info", "text")
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		cli.Fatal(logger, "Server error", err, "port", cfg.Port)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	settings, err := cli.NewSettings(cfg)
	if err != nil {
		return err
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	summary := services.NewSummaryService(result.Repository, settings, cfg.SummaryCacheTTL, logger)
	cutoff := services.NewCutoffService(result.Repository, settings, summary, logger)
	if err := cutoff.Load(ctx); err != nil {
		return fmt.Errorf("load cutoff configuration: %w", err)
	}

	ledgerOpts := []services.LedgerOption{services.WithInvalidator(summary)}
	if result.Publisher != nil {
		ledgerOpts = append(ledgerOpts, services.WithPublisher(result.Publisher))
	}

	caches := cache.NewManager(logger)
	caches.Register(summary.Cache())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(apphttp.Config{
		Addr:              ":" + cfg.Port,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:    cfg.TrustedProxies,
	}, apphttp.Services{
		Ledger:  services.NewLedgerService(result.Repository, settings, logger, ledgerOpts...),
		Budgets: services.NewBudgetService(result.Repository, summary, logger),
		Summary: summary,
		Cutoff:  cutoff,
	}, logger, result.Repository)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ucontrol server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			log.FieldCutoffDay, settings.Current().CutoffDay)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
