package solution

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/vk/streamgridgo/internal/calcgraph"
	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/timestamp"
)

const component = "solution"

// FrameInterval is the timestamp step between two Process calls, which
// simulates a 30 fps input.
const FrameInterval timestamp.Timestamp = 33333

// ContractError reports an input value the solution cannot turn into a
// packet for its stream.
type ContractError struct {
	Stream   string
	TypeName string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("Unsupported input type %q for stream %q; only image frames and scalars can be created.", e.TypeName, e.Stream)
}

// Result holds the packets one Process call produced, keyed by output
// stream. Outputs without a packet map to the empty packet.
type Result map[string]packet.Packet

// Get returns the packet of the named output.
func (r Result) Get(stream string) packet.Packet { return r[stream] }

// Solution keeps a started graph alive across many Process calls.
type Solution struct {
	graph   *calcgraph.Graph
	inputs  map[string]string // stream name to registered type
	outputs []string

	mu     sync.Mutex
	next   timestamp.Timestamp
	closed bool

	// resultsMu guards results, which observers fill during Process.
	resultsMu sync.Mutex
	results   Result
}

// Config names the streams a solution feeds and reads.
type Config struct {
	Source      calcgraph.Source
	Inputs      []string
	Outputs     []string
	SidePackets map[string]packet.Packet
	Options     []calcgraph.Option
}

// New builds the graph, observes the outputs and starts the run.
func New(ctx context.Context, cfg Config) (*Solution, error) {
	g, err := calcgraph.New(ctx, cfg.Source, cfg.Options...)
	if err != nil {
		return nil, err
	}
	vcfg := g.ValidatedConfig()

	s := &Solution{
		graph:   g,
		inputs:  make(map[string]string, len(cfg.Inputs)),
		outputs: slices.Clone(cfg.Outputs),
		results: make(Result),
	}
	for _, name := range cfg.Inputs {
		info, ok := vcfg.Stream(name)
		if !ok || !info.GraphInput {
			return nil, errs.Config(component, "New", "%q is not a graph input stream", name)
		}
		s.inputs[name] = info.TypeName
	}
	for _, name := range s.outputs {
		if err := g.ObserveOutputStream(name, s.observe); err != nil {
			return nil, err
		}
	}
	if err := g.StartRun(ctx, cfg.SidePackets); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Solution started.", "inputs", len(s.inputs), "outputs", len(s.outputs))
	return s, nil
}

func (s *Solution) observe(stream string, p packet.Packet) error {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	s.results[stream] = p
	return nil
}

// Process feeds one set of input values at the next synthetic timestamp and
// returns the outputs once the graph is idle. Values are converted by the
// registered type of their stream; a packet.Packet is used as is.
func (s *Solution) Process(ctx context.Context, values map[string]any) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errs.Wrap(errs.KindLifecycle, errs.ErrGraphClosed, component, "Process")
	}

	packets := make(map[string]packet.Packet, len(values))
	for _, name := range slices.Sorted(maps.Keys(values)) {
		typeName, ok := s.inputs[name]
		if !ok {
			return nil, errs.Config(component, "Process", "%q is not an input of the solution", name)
		}
		p, err := createPacket(name, typeName, values[name])
		if err != nil {
			return nil, err
		}
		packets[name] = p
	}

	s.resultsMu.Lock()
	clear(s.results)
	s.resultsMu.Unlock()

	ts := s.next
	s.next += FrameInterval
	for _, name := range slices.Sorted(maps.Keys(packets)) {
		if err := s.graph.AddPacketToInputStream(ctx, name, packets[name], ts); err != nil {
			return nil, err
		}
	}
	if err := s.graph.WaitUntilIdle(ctx); err != nil {
		return nil, err
	}

	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	out := make(Result, len(s.outputs))
	for _, name := range s.outputs {
		out[name] = s.results[name]
	}
	return out, nil
}

// Close closes the graph. Closing twice does nothing.
func (s *Solution) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.graph.Close(ctx)
}

// createPacket converts a caller value into a packet for a stream of the
// given registered type. An empty type name accepts any supported value.
func createPacket(stream, typeName string, v any) (packet.Packet, error) {
	if p, ok := v.(packet.Packet); ok {
		return p, nil
	}
	switch typeName {
	case "proto_list", "matrix":
		return packet.Packet{}, &ContractError{Stream: stream, TypeName: typeName}
	}

	var (
		p   packet.Packet
		err error
	)
	switch x := v.(type) {
	case packet.ImageFrame:
		p, err = packet.CreateImageFrame(x.Format, x.Width, x.Height, x.Pixels)
	case string:
		p = packet.CreateString(x)
	case bool:
		p = packet.CreateBool(x)
	case int:
		p = intPacket(typeName, int64(x))
	case int64:
		p = intPacket(typeName, x)
	case uint64:
		p = packet.CreateUint64(x)
	case float32:
		p = packet.CreateFloat(float64(x))
	case float64:
		p = packet.CreateFloat(x)
	case []string:
		p = packet.CreateStringList(x)
	case []bool:
		p = packet.CreateBoolList(x)
	case []int64:
		p = packet.CreateIntList(x)
	case []float64:
		p = packet.CreateFloatList(x)
	default:
		return packet.Packet{}, &ContractError{Stream: stream, TypeName: fmt.Sprintf("%T", v)}
	}
	if err != nil {
		return packet.Packet{}, err
	}
	if typeName != "" {
		if err := packet.Conforms(p, typeName); err != nil {
			return packet.Packet{}, fmt.Errorf("input %q: %w", stream, err)
		}
	}
	return p, nil
}

// intPacket lets Go integers feed float and uint64 streams.
func intPacket(typeName string, v int64) packet.Packet {
	switch typeName {
	case "float":
		return packet.CreateFloat(float64(v))
	case "uint64":
		if v >= 0 {
			return packet.CreateUint64(uint64(v))
		}
	}
	return packet.CreateInt(v)
}
