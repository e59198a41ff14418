package serverapp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"restql/internal/config"
	"restql/internal/logging"
	"restql/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text", Output: io.Discard})
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{URL: apiURL, Timeout: 5 * time.Second},
		Pagination: config.PaginationConfig{
			Store: "memory",
		},
		Server: config.ServerConfig{
			Port:            0,
			MaxBodyBytes:    1 << 20,
			QueryTimeout:    5 * time.Second,
			ShutdownTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "restql",
			Logging:     config.LoggingConfig{Level: "error", Format: "text"},
		},
	}
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	require.Error(t, err)
	_, err = New(testConfig("http://api"), nil)
	require.Error(t, err)
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, make(chan error, 1))
	require.NoError(t, err)
	assert.Equal(t, StopSignal, reason)
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(make(chan os.Signal, 1), serverErrors)
	require.ErrorContains(t, err, "boom")
	assert.Equal(t, StopServerError, reason)
}

func TestWaitForStop_NilChannels(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.WaitForStop(nil, nil)
	require.Error(t, err)

	closed := make(chan error)
	close(closed)
	reason, err := app.WaitForStop(nil, closed)
	require.ErrorContains(t, err, "unexpectedly")
	assert.Equal(t, StopServerError, reason)
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, app.Shutdown(context.Background()))
	require.NoError(t, app.Shutdown(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCleanupStack_RunsInReverseAndContinuesOnError(t *testing.T) {
	var order []string
	stack := cleanupStack{}
	stack.push("first", func(context.Context) error { order = append(order, "first"); return nil })
	stack.push("second", func(context.Context) error { order = append(order, "second"); return errors.New("fail") })
	stack.push("third", func(context.Context) error { order = append(order, "third"); return nil })

	stack.run(context.Background(), testLogger())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.Start()
	require.Error(t, err)
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	app := &App{
		cfg:         testConfig("http://api"),
		logger:      testLogger(),
		srv:         &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()},
		initialized: true,
	}
	app.cleanup.push("HTTP server", func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})

	first, err := app.Start()
	require.NoError(t, err)
	second, err := app.Start()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, app.Shutdown(context.Background()))
}

func TestInit_Idempotent(t *testing.T) {
	app, err := New(testConfig("http://api.example.com"), testLogger())
	require.NoError(t, err)

	require.NoError(t, app.Init(context.Background()))
	handler := app.Handler()
	require.NotNil(t, handler)
	require.NotNil(t, app.Engine())

	require.NoError(t, app.Init(context.Background()))
	assert.Equal(t, app.Engine(), app.Engine())
	require.NoError(t, app.Shutdown(context.Background()))
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	cfg := testConfig("http://api.example.com")
	cfg.Policy = policy.Config{Type: "bogus"}

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.Error(t, app.Init(context.Background()))

	app.stateMu.Lock()
	initialized := app.initialized
	app.stateMu.Unlock()
	assert.False(t, initialized)
	assert.Nil(t, app.Handler())
}

func TestInitFailure_OIDCMisconfigured(t *testing.T) {
	cfg := testConfig("http://api.example.com")
	cfg.Server.Auth.OIDCEnabled = true

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.ErrorContains(t, app.Init(context.Background()), "OIDC")
}
