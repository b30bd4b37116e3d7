// Package testutil provides helpers for running calculator graphs in tests.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/calcgraph"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/vk/streamgridgo/internal/timestamp"
)

// Timeout bounds every blocking harness call.
const Timeout = 5 * time.Second

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Collector records the packets of observed streams.
type Collector struct {
	mu      sync.Mutex
	packets map[string][]packet.Packet
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{packets: make(map[string][]packet.Packet)}
}

// Observe is a calcgraph.PacketCallback.
func (c *Collector) Observe(stream string, p packet.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets[stream] = append(c.packets[stream], p)
	return nil
}

// Packets returns the packets seen on stream so far.
func (c *Collector) Packets(stream string) []packet.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]packet.Packet(nil), c.packets[stream]...)
}

// Harness runs one graph and records every graph output stream.
type Harness struct {
	t       *testing.T
	Graph   *calcgraph.Graph
	Logs    *SafeBuffer
	Outputs *Collector
}

// NewHarness builds a graph from HCL text with a registry holding modules.
// The graph is closed when the test ends.
func NewHarness(t *testing.T, src string, modules ...registry.Module) *Harness {
	t.Helper()
	h, err := TryHarness(t, src, modules...)
	require.NoError(t, err)
	return h
}

// TryHarness is NewHarness for configs expected to be rejected.
func TryHarness(t *testing.T, src string, modules ...registry.Module) (*Harness, error) {
	t.Helper()
	logs := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	g, err := calcgraph.New(context.Background(), calcgraph.Source{Text: src},
		calcgraph.WithRegistry(registry.New(modules...)),
		calcgraph.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	h := &Harness{t: t, Graph: g, Logs: logs, Outputs: NewCollector()}
	if err := g.ObserveAllOutputStreams(h.Outputs.Observe); err != nil {
		return nil, err
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), Timeout)
		defer cancel()
		_ = g.Close(ctx)
	})
	return h, nil
}

// Context returns a context bounded by Timeout.
func (h *Harness) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	h.t.Cleanup(cancel)
	return ctx
}

// Start starts the run.
func (h *Harness) Start(sidePackets map[string]packet.Packet) {
	h.t.Helper()
	require.NoError(h.t, h.Graph.StartRun(h.Context(), sidePackets))
}

// Add adds p to a graph input stream at ts microseconds.
func (h *Harness) Add(stream string, ts int64, p packet.Packet) {
	h.t.Helper()
	require.NoError(h.t, h.Graph.AddPacketToInputStream(h.Context(), stream, p, timestamp.New(ts)))
}

// Finish closes the graph inputs and waits for every node to close. It
// returns the run error.
func (h *Harness) Finish() error {
	h.t.Helper()
	require.NoError(h.t, h.Graph.CloseAllInputStreams())
	return h.Graph.WaitUntilDone(h.Context())
}

// Run starts the graph with sidePackets and waits until it is done. It fits
// graphs without input streams.
func (h *Harness) Run(sidePackets map[string]packet.Packet) error {
	h.t.Helper()
	h.Start(sidePackets)
	return h.Graph.WaitUntilDone(h.Context())
}
