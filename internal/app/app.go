package app

import (
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vk/streamgridgo/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	outMu    sync.Mutex
	inR      io.Reader
	logger   *slog.Logger
	registry *registry.Registry
	metrics  *prometheus.Registry
	config   *Config
}

// NewApp is the constructor for the main application. Packets are printed to
// outW, logs go to logW, and stdin lines are read from inR. With no modules
// given, the core calculators are registered.
func NewApp(outW, logW io.Writer, inR io.Reader, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	a := &App{outW: outW, inR: inR, logger: logger, config: cfg}
	if len(modules) == 0 {
		modules = coreModules(a.lockedOut())
	}
	a.registry = registry.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "calculators", a.registry.Names())

	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return a
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// lockedOut serializes writes to outW between observers and PrintCalculator.
func (a *App) lockedOut() io.Writer { return writerFunc(a.write) }

func (a *App) write(p []byte) (int, error) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	return a.outW.Write(p)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
