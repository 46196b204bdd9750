// Package cli provides the initialization shared by cmd/ucontrol,
// cmd/ucontrol-worker and cmd/period-closer.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ucontrol/internal/config"
	"ucontrol/internal/log"
	"ucontrol/internal/period"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT values
// and installs it as the slog default. Unknown levels fall back to info.
func SetupLogger(level, format string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Format:    format,
		Component: log.ComponentApp,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Invalid log level, using info", log.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development. A missing file is
// not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it. The process
// exits on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.LogError(context.Background(), "Configuration validation failed", err, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// NewSettings returns the cutoff settings seeded from DEFAULT_CUTOFF_DAY.
// The persisted configuration replaces them once loaded.
func NewSettings(cfg *config.Config) (*period.Settings, error) {
	seed := period.DefaultConfig()
	seed.CutoffDay = cfg.DefaultCutoffDay
	s, err := period.NewSettings(seed)
	if err != nil {
		return nil, fmt.Errorf("default cutoff day: %w", err)
	}
	return s, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Info("Shutdown signal received")
		}
	}()
	return ctx, stop
}

// Fatal logs err and exits with status 1.
func Fatal(logger *log.Logger, msg string, err error, args ...any) {
	logger.LogError(context.Background(), msg, err, log.ErrorTypeInternal, args...)
	os.Exit(1)
}
