package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"ucontrol/internal/amqp"
	"ucontrol/internal/backend"
	"ucontrol/internal/cli"
	"ucontrol/internal/config"
	"ucontrol/internal/log"
	"ucontrol/internal/services"
	gsheet "ucontrol/internal/sheets/google"
	"ucontrol/internal/worker"
)

func main() {
	exportPeriod := flag.String("export-period", "", "append every entry of this period (YYYY-MM) to the ledger and exit")
	flag.Parse()

	cli.LoadEnvFile()

	boot := cli.SetupLogger("info", "text")
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(log.ComponentWorker)

	if !cfg.SheetsEnabled() {
		cli.Fatal(logger, "Ledger sync disabled", errors.New("GOOGLE_SPREADSHEET_ID is required"))
	}

	logger.Info("Starting ucontrol-worker", log.FieldBackend, cfg.DataBackend)
	if err := run(cfg, logger, *exportPeriod); err != nil {
		cli.Fatal(logger, "Worker failed", err)
	}
	logger.Info("Worker stopped")
}

func run(cfg *config.Config, logger *log.Logger, exportPeriod string) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	// The worker only reads storage; it consumes events with its own client.
	backendConfig.AMQPURL = ""
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer result.Cleanup()
	if backendConfig.Type == backend.MemoryBackend {
		logger.Warn("Memory backend is not shared with the API server; created events are booked from their snapshots")
	}

	ledger, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	if err := ledger.EnsureHeader(ctx); err != nil {
		return fmt.Errorf("ensure ledger header: %w", err)
	}

	settings, err := cli.NewSettings(cfg)
	if err != nil {
		return err
	}
	if _, err := services.NewCutoffService(result.Repository, settings, nil, logger).Refresh(ctx); err != nil {
		return err
	}

	syncWorker := worker.NewSyncWorker(result.Repository, ledger, logger)

	if exportPeriod != "" {
		p, err := settings.Calculator().PeriodForKey(exportPeriod)
		if err != nil {
			return err
		}
		_, err = syncWorker.ExportPeriod(ctx, p)
		return err
	}

	if !cfg.AMQPEnabled() {
		return errors.New("AMQP_URL is required to consume transaction events")
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, backend.SyncBindings, logger)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer client.Close()

	logger.Info("Consuming transaction events", "queue", cfg.AMQPQueue, "exchange", cfg.AMQPExchange)
	err = client.ConsumeTransactions(ctx, syncWorker.HandleTransaction)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume transactions: %w", err)
	}
	return nil
}
