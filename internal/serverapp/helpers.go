package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"restql/internal/config"
	"restql/internal/engine"
	"restql/internal/logging"
	"restql/internal/middleware"
	"restql/internal/observability"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	queryPath   = "/query"
	explainPath = "/explain"
	healthPath  = "/health"
	metricsPath = "/metrics"
)

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider it also writes to.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(otelConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	return logger, loggerProvider, nil
}

func otelConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

type metricsSet struct {
	provider *observability.MeterProvider
	query    *observability.QueryMetrics
	security *observability.SecurityMetrics
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (metricsSet, error) {
	if !cfg.Observability.MetricsEnabled {
		return metricsSet{}, nil
	}

	provider, err := observability.InitMeterProvider(otelConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return metricsSet{}, err
	}
	set := metricsSet{provider: provider}

	if set.query, err = observability.InitQueryMetrics(); err != nil {
		_ = provider.Shutdown(context.Background(), logger.Logger)
		return metricsSet{}, err
	}
	if set.security, err = observability.InitSecurityMetrics(); err != nil {
		_ = provider.Shutdown(context.Background(), logger.Logger)
		return metricsSet{}, err
	}
	logger.Info("OpenTelemetry metrics initialized",
		slog.String("service_name", cfg.Observability.ServiceName),
	)
	return set, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.TracesConfig()
	tracerProvider, err := observability.InitTracerProvider(otelConfig(cfg, tracesConfig))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return tracerProvider, nil
}

func oidcAuthConfig(cfg *config.Config) middleware.OIDCAuthConfig {
	return middleware.OIDCAuthConfig{
		Enabled:   cfg.Server.Auth.OIDCEnabled,
		IssuerURL: cfg.Server.Auth.OIDCIssuerURL,
		Audience:  cfg.Server.Auth.OIDCAudience,
		ClockSkew: cfg.Server.Auth.OIDCClockSkew,
		CAFile:    cfg.Server.Auth.OIDCCAFile,
	}
}

// buildRouter registers the query routes behind OIDC plus the open health
// and metrics routes.
func buildRouter(cfg *config.Config, logger *logging.Logger, eng *engine.Engine, store any, authenticate func(http.Handler) http.Handler, metrics metricsSet) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST "+queryPath, authenticate(queryHandler(eng, cfg.Server.MaxBodyBytes, cfg.Server.QueryTimeout)))
	mux.Handle("POST "+explainPath, authenticate(explainHandler(eng, cfg.Server.MaxBodyBytes)))
	mux.HandleFunc("GET "+healthPath, healthHandler(store, healthTimeout))

	if cfg.Observability.MetricsEnabled && metrics.provider != nil {
		mux.Handle("GET "+metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}
	return mux
}

// wrapHTTPHandler applies, outermost first: instrumentation, request
// logging, rate limiting and CORS.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler, security *observability.SecurityMetrics) http.Handler {
	handler = middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.Server.CORSEnabled,
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   cfg.Server.CORSAllowedMethods,
		AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
		ExposeHeaders:    cfg.Server.CORSExposeHeaders,
		AllowCredentials: cfg.Server.CORSAllowCredentials,
		MaxAge:           cfg.Server.CORSMaxAge,
	})(handler)

	handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Enabled: cfg.Server.RateLimitEnabled,
		RPS:     cfg.Server.RateLimitRPS,
		Burst:   cfg.Server.RateLimitBurst,
	}, security)(handler)

	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}
	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case queryPath, explainPath, healthPath, metricsPath:
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", srv.Addr),
			slog.String("api_url", cfg.API.URL),
			slog.String("query_endpoint", queryPath),
			slog.String("health_endpoint", healthPath),
			slog.String("pagination_store", cfg.Pagination.Store),
			slog.Bool("oidc_enabled", cfg.Server.Auth.OIDCEnabled),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", metricsPath))
		}
		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}
