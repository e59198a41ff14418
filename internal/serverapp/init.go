package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"restql/internal/engine"
	"restql/internal/middleware"
)

// Init builds every runtime resource. It is idempotent; on failure all
// resources acquired so far are released.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	loggerProvider := a.loggerProvider
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if metrics.provider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return metrics.provider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	engineCfg, err := BuildEngine(a.cfg, a.logger, metrics.query)
	if err != nil {
		return fmt.Errorf("failed to build query engine: %w", err)
	}
	store := engineCfg.Client.Store
	cleanup.push("pagination store", func(context.Context) error {
		return store.Close()
	})
	eng := engine.New(engineCfg)

	a.logger.Info("query engine ready",
		slog.String("api_url", a.cfg.API.URL),
		slog.Int("entity_overrides", len(a.cfg.API.Path)),
		slog.Int("nested_routes", len(a.cfg.API.PathMap)),
		slog.Int("addons", len(engineCfg.Addons)),
		slog.Bool("pagination", engineCfg.Client.Pagination.Enabled()),
	)

	authenticate, err := middleware.OIDCAuthMiddleware(ctx, oidcAuthConfig(a.cfg), a.logger, metrics.security)
	if err != nil {
		return fmt.Errorf("failed to initialize OIDC auth: %w", err)
	}

	mux := buildRouter(a.cfg, a.logger, eng, store, authenticate, metrics)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux, metrics.security)

	srv := buildServer(a.cfg, handler, fmt.Sprintf(":%d", a.cfg.Server.Port))
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.metrics = metrics
	a.tracerProvider = tracerProvider
	a.engine = eng
	a.handler = handler
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
