package serverapp

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"restql/internal/config"
)

// ReportValidation logs warnings and errors from cfg.Validate and fails
// when there are errors.
func ReportValidation(cfg *config.Config, logger *slog.Logger) error {
	result := cfg.Validate()
	for _, warn := range result.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if !result.HasErrors() {
		return nil
	}
	for _, err := range result.Errors {
		logger.Error("configuration error",
			slog.String("field", err.Field),
			slog.String("message", err.Message),
			slog.String("hint", err.Hint),
		)
	}
	return errors.New("configuration validation failed")
}

// Run serves cfg until SIGINT or SIGTERM, then shuts down gracefully.
func Run(cfg *config.Config, version string) error {
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = version
	}
	if err := ReportValidation(cfg, slog.Default()); err != nil {
		return err
	}

	logger, loggerProvider, err := InitLogger(cfg)
	if err != nil {
		return err
	}

	app, err := New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Init(ctx); err != nil {
		return err
	}

	serverErrors, err := app.Start()
	if err != nil {
		_ = app.Shutdown(context.Background())
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	_, waitErr := app.WaitForStop(stop, serverErrors)

	logger.Info("shutting down server gracefully")
	shutdownErr := app.Shutdown(context.Background())
	if waitErr != nil {
		return waitErr
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	logger.Info("server stopped gracefully")
	return nil
}
