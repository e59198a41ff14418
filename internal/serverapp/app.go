// Package serverapp runs the query gateway: it builds the engine from
// configuration, serves it over HTTP and releases resources on shutdown.
package serverapp

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"restql/internal/config"
	"restql/internal/engine"
	"restql/internal/logging"
	"restql/internal/observability"
)

const healthTimeout = 2 * time.Second

// App owns runtime resources for the gateway lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	tracerProvider *observability.TracerProvider
	metrics        metricsSet

	engine  *engine.Engine
	handler http.Handler
	srv     *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// Engine returns the query engine. It is nil before Init.
func (a *App) Engine() *engine.Engine {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.engine
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg == nil {
		return 0
	}
	return a.cfg.Server.ShutdownTimeout
}
