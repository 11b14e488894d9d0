package droidbg

import (
	"context"
	"net/http"
	"time"

	cfg "github.com/loykin/droidbg/internal/config"
	"github.com/loykin/droidbg/internal/execx"
	"github.com/loykin/droidbg/internal/history"
	"github.com/loykin/droidbg/internal/history/factory"
	"github.com/loykin/droidbg/internal/logger"
	"github.com/loykin/droidbg/internal/metrics"
	"github.com/loykin/droidbg/internal/orchestrator"
	iapi "github.com/loykin/droidbg/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Scenario = orchestrator.Scenario

type Result = orchestrator.Result

type Run = history.Run

type HistorySink = history.Sink

// Orchestrator is a thin facade over internal/orchestrator.Orchestrator.
// It provides a stable public API for embedding.

type Orchestrator struct{ inner *orchestrator.Orchestrator }

// New builds an orchestrator over the real command runner and wall clock.
// sink may be nil to disable run history.
func New(c *Config, sink HistorySink) *Orchestrator {
	return &Orchestrator{inner: orchestrator.New(c, execx.NewRunner(), nil, sink)}
}

func (o *Orchestrator) Run(ctx context.Context, sc Scenario) Result { return o.inner.Run(ctx, sc) }

func (o *Orchestrator) Attach() Scenario             { return o.inner.Attach() }
func (o *Orchestrator) Launch() Scenario             { return o.inner.Launch() }
func (o *Orchestrator) Resolve() Scenario            { return o.inner.Resolve() }
func (o *Orchestrator) Teardown() Scenario           { return o.inner.Teardown() }
func (o *Orchestrator) EnterURL(url string) Scenario { return o.inner.EnterURL(url) }
func (o *Orchestrator) DeviceReady(ctx context.Context) bool {
	return o.inner.Device().IsDeviceReady(ctx)
}

// LoadConfig reads the TOML config at path (optional) with DROIDBG_*
// environment overrides applied.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// SetupLogging installs the process-wide slog default per the config.
func SetupLogging(c *Config) { logger.Setup(c.Log) }

// NewHistorySink builds the configured history sink, or (nil, nil) when
// history is disabled.
func NewHistorySink(c *Config) (HistorySink, error) {
	if c.History.Type == "" && c.History.DSN == "" {
		return nil, nil
	}
	return factory.NewSink(c.History.Type, c.History.DSN, c.History.Table)
}

// NewHTTPServer starts an HTTP server exposing recorded runs and metrics.
// lister is typically the sqlite history sink.
func NewHTTPServer(addr, basePath string, lister history.Lister) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, lister)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it runs
// the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return srv.ListenAndServe()
}
