package calcgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vk/streamgridgo/internal/binarygraph"
	"github.com/vk/streamgridgo/internal/config"
	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/hcl"
	"github.com/vk/streamgridgo/internal/metrics"
	"github.com/vk/streamgridgo/internal/options"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/vk/streamgridgo/internal/stream"
	"github.com/vk/streamgridgo/internal/timestamp"
	"github.com/vk/streamgridgo/internal/validate"
)

const component = "calcgraph"

// Source names where the graph config comes from. Exactly one field must be
// set.
type Source struct {
	GraphConfig     *config.GraphConfig
	Text            string
	BinaryGraphPath string
}

// PacketCallback receives the packets of an observed stream.
type PacketCallback func(stream string, p packet.Packet) error

type graphState int

const (
	stateConfigured graphState = iota
	stateRunning
	stateClosed
)

// Option configures a Graph.
type Option func(*settings)

type settings struct {
	registry  *registry.Registry
	logger    *slog.Logger
	registrar prometheus.Registerer
	overrides map[string]any
	workers   int
}

// WithRegistry sets the calculators the graph may use.
func WithRegistry(r *registry.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithLogger sets the graph logger. It defaults to the logger of the
// context passed to New.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics registers the engine metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registrar = reg }
}

// WithOptionOverrides modifies calculator options, keyed by
// "<node-name>.<field-name>", before the config is validated.
func WithOptionOverrides(overrides map[string]any) Option {
	return func(s *settings) { s.overrides = overrides }
}

// WithWorkers overrides the worker count of the config.
func WithWorkers(n int) Option {
	return func(s *settings) { s.workers = n }
}

// Graph is a calculator graph. Create it with New.
type Graph struct {
	mu sync.Mutex

	vcfg    *validate.ValidatedGraphConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers int
	addMode stream.AddMode

	observers map[string][]PacketCallback
	pollers   map[string][]*Poller

	state    graphState
	run      *run
	gen      uint64
	bindings map[string]packet.Packet
	// outputSide holds the side packets produced by nodes during the last
	// run.
	outputSide map[string]packet.Packet
	err        error
	// changed is closed and replaced whenever run state changes.
	changed chan struct{}
}

// New loads and validates a graph config.
func New(ctx context.Context, src Source, opts ...Option) (*Graph, error) {
	set := 0
	for _, ok := range []bool{src.GraphConfig != nil, src.Text != "", src.BinaryGraphPath != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, errs.Lifecycle(component, "New",
			"Must provide exactly one of 'binary_graph_path' or 'graph_config'.")
	}

	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.logger == nil {
		s.logger = ctxlog.FromContext(ctx)
	}
	ctx = ctxlog.WithLogger(ctx, s.logger)

	var cfg *config.GraphConfig
	var err error
	switch {
	case src.GraphConfig != nil:
		cfg = src.GraphConfig
	case src.Text != "":
		cfg, err = hcl.NewLoader().LoadString(ctx, src.Text, "graph.hcl")
	default:
		cfg, err = binarygraph.LoadFile(ctx, src.BinaryGraphPath)
	}
	if err != nil {
		return nil, err
	}
	if len(s.overrides) > 0 {
		if cfg, err = options.Apply(cfg, s.registry, s.overrides); err != nil {
			return nil, err
		}
	}

	vcfg, err := validate.Initialize(ctx, cfg, s.registry)
	if err != nil {
		return nil, err
	}
	m, err := metrics.New(s.registrar)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	workers := s.workers
	if workers <= 0 {
		workers = vcfg.NumThreads()
	}
	g := &Graph{
		vcfg:       vcfg,
		logger:     s.logger,
		metrics:    m,
		workers:    workers,
		addMode:    stream.WaitTillNotFull,
		observers:  make(map[string][]PacketCallback),
		pollers:    make(map[string][]*Poller),
		outputSide: make(map[string]packet.Packet),
		changed:    make(chan struct{}),
	}
	s.logger.Debug("Calculator graph created.", "nodes", len(vcfg.Nodes()))
	return g, nil
}

// ValidatedConfig returns the validated config the graph runs.
func (g *Graph) ValidatedConfig() *validate.ValidatedGraphConfig { return g.vcfg }

// ObserveOutputStream calls cb for every packet on the named stream. It must
// be called before StartRun.
func (g *Graph) ObserveOutputStream(name string, cb PacketCallback) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkConfigurable("ObserveOutputStream"); err != nil {
		return err
	}
	if _, ok := g.vcfg.Stream(name); !ok {
		return unknownStream(name, "ObserveOutputStream")
	}
	g.observers[name] = append(g.observers[name], cb)
	return nil
}

// ObserveAllOutputStreams calls cb for every packet on every graph output
// stream.
func (g *Graph) ObserveAllOutputStreams(cb PacketCallback) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkConfigurable("ObserveAllOutputStreams"); err != nil {
		return err
	}
	for _, name := range g.vcfg.OutputStreams() {
		g.observers[name] = append(g.observers[name], cb)
	}
	return nil
}

// AddOutputStreamPoller returns a poller buffering the packets of the named
// stream. It must be called before StartRun.
func (g *Graph) AddOutputStreamPoller(name string) (*Poller, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkConfigurable("AddOutputStreamPoller"); err != nil {
		return nil, err
	}
	if _, ok := g.vcfg.Stream(name); !ok {
		return nil, unknownStream(name, "AddOutputStreamPoller")
	}
	p := newPoller(name)
	g.pollers[name] = append(g.pollers[name], p)
	return p, nil
}

func (g *Graph) checkConfigurable(op string) error {
	switch g.state {
	case stateRunning:
		return errs.Wrap(errs.KindLifecycle, errs.ErrAlreadyStarted, component, op)
	case stateClosed:
		return errs.Wrap(errs.KindLifecycle, errs.ErrGraphClosed, component, op)
	}
	return nil
}

// AddPacketToInputStream adds p, stamped with ts, to a graph input stream.
// Depending on the add mode it blocks or fails while a consumer queue is
// full.
func (g *Graph) AddPacketToInputStream(ctx context.Context, name string, p packet.Packet, ts timestamp.Timestamp) error {
	g.mu.Lock()
	r, err := g.running("AddPacketToInputStream")
	if err != nil {
		g.mu.Unlock()
		return err
	}
	s, ok := r.inputs[name]
	if !ok {
		g.mu.Unlock()
		return unknownStream(name, "AddPacketToInputStream")
	}
	if r.aborted {
		err := g.err
		g.mu.Unlock()
		if err == nil {
			err = errs.ErrGraphClosed
		}
		return errs.Lifecycle(component, "AddPacketToInputStream", "graph run was aborted: %w", err)
	}
	mode := g.addMode
	g.mu.Unlock()

	return s.Add(ctx, p, ts, mode)
}

// CloseInputStream closes a graph input stream.
func (g *Graph) CloseInputStream(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.running("CloseInputStream")
	if err != nil {
		return err
	}
	s, ok := r.inputs[name]
	if !ok {
		return unknownStream(name, "CloseInputStream")
	}
	s.Close()
	return nil
}

// CloseAllInputStreams closes every graph input stream.
func (g *Graph) CloseAllInputStreams() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.running("CloseAllInputStreams")
	if err != nil {
		return err
	}
	r.closeInputs()
	return nil
}

// GraphInputStreamAddMode returns the policy for full graph input queues.
func (g *Graph) GraphInputStreamAddMode() stream.AddMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addMode
}

// SetGraphInputStreamAddMode sets the policy for full graph input queues.
func (g *Graph) SetGraphInputStreamAddMode(mode stream.AddMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addMode = mode
}

// MaxQueueSize returns the queue limit of the graph, -1 when unbounded.
func (g *Graph) MaxQueueSize() int { return g.vcfg.MaxQueueSize() }

// QueueSize returns the number of packets waiting in the fullest consumer
// queue of a stream.
func (g *Graph) QueueSize(name string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.running("QueueSize")
	if err != nil {
		return 0, err
	}
	s, ok := r.streams[name]
	if !ok {
		return 0, unknownStream(name, "QueueSize")
	}
	size := 0
	for _, q := range s.Queues() {
		size = max(size, q.Len())
	}
	return size, nil
}

// HasError reports whether a node failed during the current or last run.
func (g *Graph) HasError() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err != nil
}

// Err returns the errors recorded during the current or last run.
func (g *Graph) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// WaitUntilIdle blocks until no node is queued or running and every
// observer callback has returned. It returns the recorded run error.
func (g *Graph) WaitUntilIdle(ctx context.Context) error {
	return g.waitFor(ctx, "WaitUntilIdle", func(r *run) bool { return r.idle() })
}

// WaitUntilDone blocks until every node has closed, which requires the
// graph input streams to be closed. It returns the recorded run error.
func (g *Graph) WaitUntilDone(ctx context.Context) error {
	return g.waitFor(ctx, "WaitUntilDone", func(r *run) bool { return r.done() })
}

func (g *Graph) waitFor(ctx context.Context, op string, cond func(*run) bool) error {
	for {
		g.mu.Lock()
		r, err := g.running(op)
		if err != nil {
			g.mu.Unlock()
			return err
		}
		if cond(r) {
			err := g.err
			g.mu.Unlock()
			return err
		}
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// GetOutputSidePacket returns a side packet produced by a node. It is
// available once the run is done or the graph is closed.
func (g *Graph) GetOutputSidePacket(name string) (packet.Packet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	info, ok := g.vcfg.SidePacket(name)
	if !ok || info.Producer == validate.GraphNode {
		return packet.Packet{}, errs.Config(component, "GetOutputSidePacket",
			"Unable to find the output side packet %q", name)
	}
	switch {
	case g.state == stateClosed:
	case g.state == stateRunning && g.run.done():
	default:
		return packet.Packet{}, errs.Wrap(errs.KindLifecycle,
			fmt.Errorf("output side packet %q: %w", name, errs.ErrNotAvailable), component, "GetOutputSidePacket")
	}
	p, ok := g.outputSide[name]
	if !ok {
		return packet.Packet{}, errs.Lifecycle(component, "GetOutputSidePacket",
			"The output side packet %q is unavailable.", name)
	}
	return p, nil
}

// running returns the current run. The caller holds g.mu.
func (g *Graph) running(op string) (*run, error) {
	switch g.state {
	case stateConfigured:
		return nil, errs.Wrap(errs.KindLifecycle, errs.ErrNotStarted, component, op)
	case stateClosed:
		return nil, errs.Wrap(errs.KindLifecycle, errs.ErrGraphClosed, component, op)
	}
	return g.run, nil
}

// broadcast wakes everything waiting for a state change. The caller holds
// g.mu.
func (g *Graph) broadcast() {
	close(g.changed)
	g.changed = make(chan struct{})
}

func unknownStream(name, op string) error {
	return errs.Wrap(errs.KindConfig, fmt.Errorf("%w %q", errs.ErrUnknownStream, name), component, op)
}
