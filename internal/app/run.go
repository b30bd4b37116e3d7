package app

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/vk/streamgridgo/internal/binarygraph"
	"github.com/vk/streamgridgo/internal/calcgraph"
	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/fsutil"
	"github.com/vk/streamgridgo/internal/hcl"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/timestamp"
	"golang.org/x/sync/errgroup"
)

// Run builds the configured graph and either compiles it or runs it until
// every node has closed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	// A broken registration is a programmer error, not a graph error.
	if err := a.registry.ValidateRegistry(ctx); err != nil {
		return fmt.Errorf("invalid calculator registry: %w", err)
	}
	a.logger.Debug("Registry validation passed.")

	g, err := a.buildGraph(ctx)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	if a.config.CompilePath != "" {
		return a.compile(ctx, g)
	}

	outputs := a.config.OutputStreams
	if len(outputs) == 0 {
		outputs = g.ValidatedConfig().OutputStreams()
	}
	for _, name := range outputs {
		if err := g.ObserveOutputStream(name, a.printPacket); err != nil {
			return err
		}
	}

	var ln net.Listener
	if a.config.HealthcheckPort > 0 {
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", a.config.HealthcheckPort))
		if err != nil {
			return fmt.Errorf("health check server: %w", err)
		}
	} else {
		a.logger.Warn("Health check server not started: disabled")
	}

	runErr := a.runGraph(ctx, g, ln)
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Close reports the run error again; keep only the first.
	if err := g.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	a.logger.Info("🏁 Execution finished.")
	return nil
}

// runGraph starts the run, feeds stdin and serves ln, if any, until the
// graph is done.
func (a *App) runGraph(ctx context.Context, g *calcgraph.Graph, ln net.Listener) error {
	if err := g.StartRun(ctx, nil); err != nil {
		if ln != nil {
			ln.Close()
		}
		return err
	}
	a.logger.Info("🚀 Starting graph run...")

	eg, egCtx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(egCtx)
	defer stop()
	if ln != nil {
		eg.Go(func() error { return a.serveHTTP(runCtx, ln) })
	}
	eg.Go(func() error {
		defer stop()
		if err := a.feed(runCtx, g); err != nil {
			return err
		}
		return g.WaitUntilDone(runCtx)
	})
	return eg.Wait()
}

func (a *App) buildGraph(ctx context.Context) (*calcgraph.Graph, error) {
	overrides, err := loadOverrides(a.config.OverridesPath)
	if err != nil {
		return nil, err
	}

	var src calcgraph.Source
	if a.config.BinaryGraphPath != "" {
		src.BinaryGraphPath = a.config.BinaryGraphPath
	} else {
		path, err := fsutil.ResolveFile(a.config.GraphPath, ".hcl")
		if err != nil {
			return nil, err
		}
		if src.GraphConfig, err = hcl.NewLoader().LoadFile(ctx, path); err != nil {
			return nil, err
		}
	}

	return calcgraph.New(ctx, src,
		calcgraph.WithRegistry(a.registry),
		calcgraph.WithLogger(a.logger),
		calcgraph.WithMetrics(a.metrics),
		calcgraph.WithOptionOverrides(overrides),
		calcgraph.WithWorkers(a.config.WorkerCount),
	)
}

func (a *App) compile(ctx context.Context, g *calcgraph.Graph) error {
	if err := binarygraph.WriteFile(a.config.CompilePath, g.ValidatedConfig().Config()); err != nil {
		return fmt.Errorf("failed to write binary graph: %w", err)
	}
	ctxlog.FromContext(ctx).Info("Binary graph written.", "path", a.config.CompilePath)
	return nil
}

// feed adds one string packet per input line, timestamped by line number,
// then closes every graph input stream.
func (a *App) feed(ctx context.Context, g *calcgraph.Graph) error {
	if a.config.InputStream != "" && a.inR != nil {
		scanner := bufio.NewScanner(a.inR)
		var ts timestamp.Timestamp
		for scanner.Scan() {
			if err := g.AddPacketToInputStream(ctx, a.config.InputStream, packet.CreateString(scanner.Text()), ts); err != nil {
				return err
			}
			ts++
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		a.logger.Debug("Input exhausted.", "stream", a.config.InputStream, "packets", int64(ts))
	}
	return g.CloseAllInputStreams()
}

func (a *App) printPacket(stream string, p packet.Packet) error {
	_, err := fmt.Fprintf(a.lockedOut(), "%s: %s\n", stream, p)
	return err
}
