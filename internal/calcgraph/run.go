package calcgraph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/executor"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/scheduler"
	"github.com/vk/streamgridgo/internal/stream"
	"github.com/vk/streamgridgo/internal/timestamp"
	"github.com/vk/streamgridgo/internal/validate"
)

// run holds everything that lives from StartRun to Close. All fields are
// guarded by the graph lock.
type run struct {
	g   *Graph
	id  string
	gen uint64
	ctx context.Context

	abort   chan struct{}
	aborted bool

	streams     map[string]*stream.Stream
	inputs      map[string]*stream.Stream
	nodes       []*nodeRuntime // by node index
	observed    map[*stream.Queue]*observation
	sidePackets map[string]packet.Packet

	tracker     *scheduler.Tracker
	exec        *executor.Executor
	stopped     bool
	closedNodes int

	sinkItems   []sinkItem
	sinkPending int
	sinkCond    *sync.Cond
	sinkStop    bool
	sinkDone    chan struct{}
}

type observation struct {
	callbacks []PacketCallback
	pollers   []*Poller
}

type sinkItem struct {
	stream string
	packet packet.Packet
	cb     PacketCallback
}

// StartRun binds the side packets, opens every calculator and starts
// scheduling. Every side packet the graph consumes without producing it
// must be supplied.
func (g *Graph) StartRun(ctx context.Context, sidePackets map[string]packet.Packet) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case stateRunning:
		return errs.Wrap(errs.KindLifecycle, errs.ErrAlreadyStarted, component, "StartRun")
	case stateClosed:
		return errs.Wrap(errs.KindLifecycle, errs.ErrGraphClosed, component, "StartRun")
	}
	return g.startRun(ctx, sidePackets)
}

// Reset closes the current run, if any, and starts a new one with the side
// packets of the previous StartRun. The config is not validated again.
func (g *Graph) Reset(ctx context.Context) error {
	g.mu.Lock()
	started := g.run != nil
	state := g.state
	g.mu.Unlock()
	if !started {
		return errs.Wrap(errs.KindLifecycle, errs.ErrNotStarted, component, "Reset")
	}
	if state == stateRunning {
		if err := g.Close(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			g.logger.Debug("Discarding errors of the previous run.", "error", err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == stateRunning {
		return errs.Wrap(errs.KindLifecycle, errs.ErrAlreadyStarted, component, "Reset")
	}
	return g.startRun(ctx, g.bindings)
}

// startRun is called with g.mu held.
func (g *Graph) startRun(ctx context.Context, sidePackets map[string]packet.Packet) error {
	if err := g.checkSidePackets(sidePackets); err != nil {
		return err
	}
	g.err = nil
	g.outputSide = make(map[string]packet.Packet)

	r := newRun(g, ctx, sidePackets)
	if err := r.open(); err != nil {
		return err
	}
	g.bindings = maps.Clone(sidePackets)
	g.run = r
	g.state = stateRunning
	r.start()

	ctxlog.FromContext(r.ctx).Info("Graph run started.",
		"nodes", len(r.nodes), "streams", len(r.streams), "workers", r.exec.Workers())
	return nil
}

func (g *Graph) checkSidePackets(sidePackets map[string]packet.Packet) error {
	required := append(g.vcfg.RequiredSidePackets(), g.vcfg.InputSidePackets()...)
	for _, name := range required {
		p, ok := sidePackets[name]
		if !ok || p.IsEmpty() {
			return errs.Config(component, "StartRun", "Side packet %q is required but was not provided.", name)
		}
		info, _ := g.vcfg.SidePacket(name)
		if info.TypeName == "" {
			continue
		}
		if err := packet.Conforms(p, info.TypeName); err != nil {
			return fmt.Errorf("side packet %q: %w", name, err)
		}
	}
	return nil
}

// Close closes the graph input streams, stops the sources, waits for every
// node to close and releases the workers. A cancelled ctx aborts the run
// instead of draining it. Closing a closed graph does nothing.
func (g *Graph) Close(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case stateConfigured:
		g.state = stateClosed
		g.mu.Unlock()
		return nil
	case stateClosed:
		g.mu.Unlock()
		return nil
	}
	r := g.run
	r.closeInputs()
	r.stopSources()
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.waitFor(context.Background(), "Close", func(r *run) bool { return r.done() })
	}()
	interrupted := false
	select {
	case <-done:
	case <-ctx.Done():
		interrupted = true
	}

	g.mu.Lock()
	if interrupted {
		r.abortRun()
	}
	g.state = stateClosed
	runErr := g.err
	g.broadcast()
	g.mu.Unlock()

	if interrupted {
		// Workers may be stuck in a calculator; release them in the
		// background.
		go r.shutdown()
		return errors.Join(ctx.Err(), runErr)
	}
	r.shutdown()
	ctxlog.FromContext(r.ctx).Info("Graph run closed.", "failed", runErr != nil)
	return runErr
}

// Cancel aborts the current run without draining it. Blocked adders return
// and every node is closed. Close must still be called.
func (g *Graph) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != stateRunning {
		return
	}
	g.run.abortRun()
}

func newRun(g *Graph, ctx context.Context, sidePackets map[string]packet.Packet) *run {
	id := uuid.NewString()
	g.gen++
	r := &run{
		g:           g,
		id:          id,
		gen:         g.gen,
		ctx:         ctxlog.WithLogger(context.WithoutCancel(ctx), g.logger.With("run_id", id)),
		abort:       make(chan struct{}),
		streams:     make(map[string]*stream.Stream),
		inputs:      make(map[string]*stream.Stream),
		observed:    make(map[*stream.Queue]*observation),
		sidePackets: make(map[string]packet.Packet, len(sidePackets)),
		sinkDone:    make(chan struct{}),
	}
	r.sinkCond = sync.NewCond(&g.mu)
	for name, p := range sidePackets {
		r.sidePackets[name] = p.At(timestamp.Unset)
	}

	for _, name := range g.vcfg.StreamNames() {
		info, _ := g.vcfg.Stream(name)
		s := stream.New(stream.Config{
			Name:     name,
			TypeName: info.TypeName,
			Limit:    g.vcfg.MaxQueueSize(),
			Lock:     &g.mu,
			Abort:    r.abort,
			OnUpdate: r.onStreamUpdate,
			OnWait:   r.onStreamWait,
			Observer: g.metrics,
		})
		r.streams[name] = s
		if info.GraphInput {
			r.inputs[name] = s
		}
	}

	for _, info := range g.vcfg.Nodes() {
		n := newNodeRuntime(info)
		for i, port := range info.Inputs.Entries() {
			n.inputs = append(n.inputs, r.streams[port.Name].AddConsumer(info.Index, i))
			n.required = append(n.required, !info.Contract.Inputs().Index(i).IsOptional())
		}
		for _, port := range info.Outputs.Entries() {
			n.outputs = append(n.outputs, r.streams[port.Name])
		}
		r.nodes = append(r.nodes, n)
	}

	for _, name := range g.vcfg.StreamNames() {
		obs := &observation{callbacks: g.observers[name], pollers: g.pollers[name]}
		if len(obs.callbacks) == 0 && len(obs.pollers) == 0 {
			continue
		}
		for _, p := range obs.pollers {
			p.reset(r.gen)
		}
		r.observed[r.streams[name].AddConsumer(validate.GraphNode, 0)] = obs
	}

	r.tracker = scheduler.NewTracker(len(r.nodes), r.submit)
	r.exec = executor.New(r, g.workers, len(r.nodes))
	return r
}

// open opens the calculators in topological order so that side packets set
// in Open reach the nodes consuming them.
func (r *run) open() error {
	logger := ctxlog.FromContext(r.ctx)
	for _, info := range r.g.vcfg.TopologicalOrder() {
		n := r.nodes[info.Index]
		side := make([]packet.Packet, info.InputSidePackets.Len())
		for i, port := range info.InputSidePackets.Entries() {
			side[i] = r.sidePackets[port.Name]
		}
		n.cc = calculator.NewContext(r.ctx, calculator.ContextConfig{
			Node:              info.Name,
			Options:           info.Options,
			Inputs:            info.Inputs,
			Outputs:           info.Outputs,
			OutputTypes:       info.OutputTypes,
			InputSidePackets:  info.InputSidePackets,
			SidePackets:       side,
			OutputSidePackets: info.OutputSidePackets,
			OutputSideTypes:   info.OutputSideTypes,
		})

		if err := callSafely(func() error { return n.calc.Open(n.cc) }); err != nil {
			r.closeOpened()
			return errs.Wrap(errs.KindRuntime, fmt.Errorf("node %q: %w", info.Name, err), component, "Open")
		}
		n.opened = true
		r.collectSidePackets(n)
		r.flush(n)
		if r.aborted {
			r.closeOpened()
			return r.g.err
		}
		logger.Debug("Node opened.", "node", info.Name, "calculator", info.Calculator)
	}
	return nil
}

// closeOpened closes the calculators opened by a failed StartRun.
func (r *run) closeOpened() {
	order := r.g.vcfg.TopologicalOrder()
	for i := len(order) - 1; i >= 0; i-- {
		n := r.nodes[order[i].Index]
		if !n.opened {
			continue
		}
		if err := callSafely(func() error { return n.calc.Close(n.cc) }); err != nil {
			ctxlog.FromContext(r.ctx).Warn("Closing node after failed start.", "node", n.name(), "error", err)
		}
	}
}

func (r *run) start() {
	go r.dispatch()
	r.exec.Start(r.ctx)
	for i := range r.nodes {
		r.tracker.Notify(i)
	}
}

// shutdown stops the workers and the callback dispatcher. It is called
// without the graph lock once the run is done or aborted.
func (r *run) shutdown() {
	g := r.g
	g.mu.Lock()
	r.stopped = true
	r.abortRun()
	g.mu.Unlock()

	r.exec.Stop()

	for _, obs := range r.observed {
		for _, p := range obs.pollers {
			p.finish(r.gen)
		}
	}

	g.mu.Lock()
	r.sinkStop = true
	r.sinkCond.Broadcast()
	g.mu.Unlock()
	<-r.sinkDone
}

// current reports whether r is the newest run of the graph. A run closed by
// an interrupted Close may still be shutting down after Reset started its
// successor; it must not touch state shared with that successor.
func (r *run) current() bool { return r.gen == r.g.gen }

func (r *run) submit(node int) {
	if r.stopped {
		return
	}
	r.exec.Submit(node)
}

func (r *run) idle() bool { return r.tracker.Idle() && r.sinkPending == 0 }

func (r *run) done() bool { return r.closedNodes == len(r.nodes) && r.sinkPending == 0 }

// RunNode implements executor.Runner. It is the only place a calculator's
// Process and Close are called from.
func (r *run) RunNode(ctx context.Context, idx int) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()

	r.tracker.Begin(idx)
	n := r.nodes[idx]
	switch {
	case n.closed:
		r.end(idx, false)
	case r.aborted || n.stopRequested:
		r.closeNode(n)
		r.end(idx, false)
	case n.isSource():
		r.runSource(n)
	default:
		r.runReady(n)
	}
}

func (r *run) runSource(n *nodeRuntime) {
	idx := n.info.Index
	if len(n.outputs) == 0 {
		r.closeNode(n)
		r.end(idx, false)
		return
	}
	if !n.relief && n.outputsFull() {
		n.throttled = true
		r.end(idx, false)
		return
	}
	n.relief = false

	err := r.invoke(n, timestamp.Unstarted, nil)
	switch {
	case errors.Is(err, calculator.ErrStop):
		r.flush(n)
		r.closeNode(n)
		r.end(idx, false)
	case err != nil:
		r.fail(n.name(), "Process", err)
		r.end(idx, false)
	default:
		r.flush(n)
		r.end(idx, true)
	}
}

func (r *run) runReady(n *nodeRuntime) {
	idx := n.info.Index
	state, ts := scheduler.Check(n.inputs)
	switch state {
	case scheduler.NotReady:
		r.end(idx, false)
		return
	case scheduler.Done:
		r.closeNode(n)
		r.end(idx, false)
		return
	}

	inputs, complete := scheduler.Take(n.inputs, ts, n.required)
	for i, q := range n.inputs {
		r.g.metrics.SetQueueDepth(n.name(), i, q.Len())
	}
	r.wakeThrottledSources()
	if !complete {
		r.advanceBounds(n, ts)
		r.end(idx, true)
		return
	}

	err := r.invoke(n, ts, inputs)
	switch {
	case errors.Is(err, calculator.ErrStop):
		r.flush(n)
		r.closeNode(n)
		r.end(idx, false)
	case err != nil:
		r.fail(n.name(), "Process", err)
		r.end(idx, false)
	default:
		r.advanceBounds(n, ts)
		r.end(idx, true)
	}
}

// invoke calls Process without the graph lock.
func (r *run) invoke(n *nodeRuntime, ts timestamp.Timestamp, inputs []packet.Packet) error {
	if inputs != nil {
		n.cc.SetInputs(ts, inputs)
	}
	r.g.mu.Unlock()
	start := time.Now()
	err := callSafely(func() error { return n.calc.Process(n.cc) })
	recorded := err
	if errors.Is(err, calculator.ErrStop) {
		recorded = nil
	}
	r.g.metrics.RecordProcess(n.name(), time.Since(start), recorded)
	r.g.mu.Lock()
	n.cc.ClearInputs()
	return err
}

// advanceBounds tells downstream nodes that the node is past ts, then
// flushes its emissions.
func (r *run) advanceBounds(n *nodeRuntime, ts timestamp.Timestamp) {
	bound := ts
	if n.hasOffset {
		bound = (ts + timestamp.Timestamp(n.offset)).NextAllowedInStream()
	}
	n.cc.AdvanceOutputBounds(bound)
	r.flush(n)
}

// flush moves what the node emitted into its output streams.
func (r *run) flush(n *nodeRuntime) {
	emissions := n.cc.TakeEmissions()
	if r.aborted {
		return
	}
	for i, em := range emissions {
		s := n.outputs[i]
		for _, p := range em.Packets {
			if err := s.Emit(p); err != nil {
				r.fail(n.name(), "Process", err)
				return
			}
		}
		if em.Closed {
			s.Close()
		} else {
			s.SetNextTimestampBound(em.Bound)
		}
	}
}

// closeNode closes the calculator and its output streams.
func (r *run) closeNode(n *nodeRuntime) {
	if n.closed {
		return
	}
	n.closed = true
	for _, q := range n.inputs {
		q.Detach()
	}
	r.wakeThrottledSources()

	if n.opened {
		r.g.mu.Unlock()
		err := callSafely(func() error { return n.calc.Close(n.cc) })
		r.g.mu.Lock()
		if err != nil {
			r.fail(n.name(), "Close", err)
		}
		r.collectSidePackets(n)
		r.flush(n)
		n.cc.CloseOutputs()
	}
	for _, s := range n.outputs {
		s.Close()
	}
	r.closedNodes++
	ctxlog.FromContext(r.ctx).Debug("Node closed.", "node", n.name(), "closed", r.closedNodes, "total", len(r.nodes))
}

func (r *run) collectSidePackets(n *nodeRuntime) {
	entries := n.info.OutputSidePackets.Entries()
	for i, p := range n.cc.OutputSidePackets() {
		if p.IsEmpty() {
			continue
		}
		name := entries[i].Name
		r.sidePackets[name] = p
		if r.current() {
			r.g.outputSide[name] = p
		}
	}
}

// end finishes a RunNode call.
func (r *run) end(idx int, again bool) {
	r.tracker.End(idx, again)
	if r.tracker.Idle() {
		r.checkThrottling()
	}
	r.g.broadcast()
}

// fail records a node error and aborts the run.
func (r *run) fail(origin, op string, err error) {
	err = errs.Wrap(errs.KindRuntime, err, origin, op)
	if !r.current() {
		ctxlog.FromContext(r.ctx).Debug("Dropping error of a superseded run.", "origin", origin, "error", err)
		r.abortRun()
		return
	}
	r.g.err = errors.Join(r.g.err, err)
	ctxlog.FromContext(r.ctx).Error("Graph run failed.", "origin", origin, "error", err)
	r.abortRun()
}

// abortRun unblocks every waiter and makes every node close.
func (r *run) abortRun() {
	if r.aborted {
		return
	}
	r.aborted = true
	close(r.abort)
	for i, n := range r.nodes {
		if !n.closed {
			r.tracker.Notify(i)
		}
	}
	r.g.broadcast()
}

func (r *run) closeInputs() {
	for _, s := range r.inputs {
		s.Close()
	}
}

// stopSources makes every source node close at its next invocation.
func (r *run) stopSources() {
	for i, n := range r.nodes {
		if n.isSource() && !n.closed {
			n.stopRequested = true
			n.throttled = false
			r.tracker.Notify(i)
		}
	}
}

func (r *run) wakeThrottledSources() {
	for i, n := range r.nodes {
		if n.throttled && !n.closed {
			n.throttled = false
			r.tracker.Notify(i)
		}
	}
}

// checkThrottling handles a graph that went idle while a graph input adder
// or a source is held back by a full queue. Nothing can drain that queue
// any more: the limit is relaxed once, or the run fails when deadlocks are
// reported.
func (r *run) checkThrottling() {
	if r.aborted {
		return
	}
	var blocked []*stream.Stream
	var names []string
	for _, name := range r.g.vcfg.StreamNames() {
		if s := r.streams[name]; s.Waiting() {
			blocked = append(blocked, s)
			names = append(names, fmt.Sprintf("%q", name))
		}
	}
	var sources []*nodeRuntime
	for _, n := range r.nodes {
		if n.throttled && !n.closed {
			sources = append(sources, n)
			for _, name := range n.fullOutputs() {
				names = append(names, fmt.Sprintf("%q", name))
			}
		}
	}
	if len(blocked) == 0 && len(sources) == 0 {
		return
	}

	if r.g.vcfg.ReportDeadlock() {
		r.fail(component, "RunNode", errs.New(errs.KindRuntime, component, "RunNode",
			"Detected a deadlock due to input throttling for: %s. All calculators are idle while packet sources remain active and throttled.",
			strings.Join(names, ", ")))
		return
	}
	ctxlog.FromContext(r.ctx).Debug("Relieving input throttling.", "streams", names)
	for _, s := range blocked {
		s.Relieve()
	}
	for _, n := range sources {
		n.throttled = false
		n.relief = true
		r.tracker.Notify(n.info.Index)
	}
}

// onStreamUpdate wakes the consumers of s and feeds its observers.
func (r *run) onStreamUpdate(s *stream.Stream) {
	for _, q := range s.Queues() {
		if obs, ok := r.observed[q]; ok {
			r.deliver(s, q, obs)
			continue
		}
		if n := q.Node(); !r.nodes[n].closed {
			r.tracker.Notify(n)
		}
	}
}

func (r *run) onStreamWait(*stream.Stream) {
	if r.tracker.Idle() {
		r.checkThrottling()
	}
}

func (r *run) deliver(s *stream.Stream, q *stream.Queue, obs *observation) {
	for {
		p, ok := q.Pop()
		if !ok {
			break
		}
		for _, cb := range obs.callbacks {
			r.sinkItems = append(r.sinkItems, sinkItem{stream: s.Name(), packet: p, cb: cb})
			r.sinkPending++
		}
		for _, pl := range obs.pollers {
			pl.push(r.gen, p)
		}
	}
	if len(r.sinkItems) > 0 {
		r.sinkCond.Signal()
	}
	if q.IsDone() {
		for _, pl := range obs.pollers {
			pl.finish(r.gen)
		}
	}
}

// dispatch runs the observer callbacks, one at a time and in delivery
// order.
func (r *run) dispatch() {
	defer close(r.sinkDone)
	g := r.g
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		for len(r.sinkItems) == 0 && !r.sinkStop {
			r.sinkCond.Wait()
		}
		if len(r.sinkItems) == 0 {
			return
		}
		item := r.sinkItems[0]
		r.sinkItems[0] = sinkItem{}
		r.sinkItems = r.sinkItems[1:]

		if !r.current() {
			r.sinkPending--
			continue
		}

		g.mu.Unlock()
		err := callSafely(func() error { return item.cb(item.stream, item.packet) })
		g.mu.Lock()

		r.sinkPending--
		if err != nil {
			r.fail(item.stream, "ObserveOutputStream", err)
		}
		g.broadcast()
	}
}
