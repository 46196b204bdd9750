package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"ucontrol/internal/archive"
	"ucontrol/internal/backend"
	"ucontrol/internal/cli"
	"ucontrol/internal/config"
	"ucontrol/internal/log"
	"ucontrol/internal/ports"
	"ucontrol/internal/scheduler"
	"ucontrol/internal/services"
)

const jobTimeout = 5 * time.Minute

func main() {
	once := flag.Bool("once", false, "check the current date once and exit")
	periodKey := flag.String("period", "", "close this period (YYYY-MM) now and exit")
	flag.Parse()

	cli.LoadEnvFile()

	boot := cli.SetupLogger("info", "text")
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(log.ComponentCloser)

	if err := run(cfg, logger, *once, *periodKey); err != nil {
		cli.Fatal(logger, "Period closer failed", err)
	}
}

func run(cfg *config.Config, logger *log.Logger, once bool, periodKey string) error {
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
	defer result.Cleanup()

	summary := services.NewSummaryService(result.Repository, settings, cfg.SummaryCacheTTL, logger)
	cutoff := services.NewCutoffService(result.Repository, settings, summary, logger)
	if err := cutoff.Load(ctx); err != nil {
		return fmt.Errorf("load cutoff configuration: %w", err)
	}

	var archiver ports.StatementArchiver
	if cfg.ArchiveEnabled() {
		s3, err := archive.NewS3Archiver(ctx, archive.Config{
			Bucket:  cfg.S3Bucket,
			Region:  cfg.AWSRegion,
			Profile: cfg.AWSProfile,
		}, logger)
		if err != nil {
			return fmt.Errorf("initialize statement archive: %w", err)
		}
		archiver = s3
	} else {
		logger.Info("Statement archive disabled - no S3_BUCKET provided")
	}

	var publisher ports.EventPublisher
	if result.Publisher != nil {
		publisher = result.Publisher
	}

	closer := services.NewPeriodCloser(settings, summary, publisher, archiver, logger)

	switch {
	case periodKey != "":
		closed, err := closer.ClosePeriod(ctx, periodKey)
		if err != nil {
			return err
		}
		logger.Info("Manual close finished", log.FieldPeriodKey, periodKey, "closed", closed)
		return nil
	case once:
		return closer.Run(ctx)
	}

	sched := scheduler.New(time.Local, jobTimeout, logger)
	if err := sched.Add(cfg.PeriodCloseSchedule, "close-period", closer.Run); err != nil {
		return err
	}
	// Cutoff changes made through the API are persisted; pick them up.
	if err := sched.Add("@every 1h", "reload-cutoff", cutoff.Load); err != nil {
		return err
	}
	sched.Start()
	// A restart later on a period's first day still closes the previous one.
	// Closes missed on earlier days need -period.
	sched.RunNow("close-period", closer.Run)
	logger.Info("Period closer started", "schedule", cfg.PeriodCloseSchedule, log.FieldCutoffDay, settings.Current().CutoffDay)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(shutdownCtx)
}
