package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vk/streamgridgo/internal/errs"
	"github.com/zclconf/go-cty/cty"
)

// DefaultMaxQueueSize is the per-stream queue limit used when a graph does
// not set max_queue_size.
const DefaultMaxQueueSize = 100

// GraphConfig is the root of a graph description.
type GraphConfig struct {
	InputStreams      []string
	OutputStreams     []string
	InputSidePackets  []string
	OutputSidePackets []string

	// MaxQueueSize limits every consumer queue. Zero selects
	// DefaultMaxQueueSize and a negative value disables the limit.
	MaxQueueSize int
	// NumThreads sizes the worker pool. Zero uses one worker per CPU.
	NumThreads int
	// ReportDeadlock turns a backpressure deadlock into a graph error instead
	// of relaxing the queue limit.
	ReportDeadlock bool

	Nodes []*Node
}

// Node is one calculator instance in the graph.
type Node struct {
	Name       string
	Calculator string

	InputStreams      []string
	OutputStreams     []string
	InputSidePackets  []string
	OutputSidePackets []string

	// Options holds legacy extension options keyed by extension name.
	Options map[string]cty.Value
	// NodeOptions holds Any-packed typed options.
	NodeOptions *AnyBox
}

// AnyBox is a typed options message identified by its type URL.
type AnyBox struct {
	TypeURL string
	Value   cty.Value
}

// EffectiveMaxQueueSize resolves MaxQueueSize, returning -1 for unbounded.
func (g *GraphConfig) EffectiveMaxQueueSize() int {
	switch {
	case g.MaxQueueSize == 0:
		return DefaultMaxQueueSize
	case g.MaxQueueSize < 0:
		return -1
	default:
		return g.MaxQueueSize
	}
}

// NodeName returns the name of the i-th node. Unnamed nodes are called
// "<Calculator>_<i>".
func (g *GraphConfig) NodeName(i int) string {
	n := g.Nodes[i]
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("%s_%d", n.Calculator, i)
}

// Clone returns a deep copy of the config.
func (g *GraphConfig) Clone() *GraphConfig {
	if g == nil {
		return nil
	}
	out := *g
	out.InputStreams = slices.Clone(g.InputStreams)
	out.OutputStreams = slices.Clone(g.OutputStreams)
	out.InputSidePackets = slices.Clone(g.InputSidePackets)
	out.OutputSidePackets = slices.Clone(g.OutputSidePackets)
	out.Nodes = make([]*Node, len(g.Nodes))
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	return &out
}

// Clone returns a deep copy of the node. cty values are immutable and are
// shared.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.InputStreams = slices.Clone(n.InputStreams)
	out.OutputStreams = slices.Clone(n.OutputStreams)
	out.InputSidePackets = slices.Clone(n.InputSidePackets)
	out.OutputSidePackets = slices.Clone(n.OutputSidePackets)
	out.Options = maps.Clone(n.Options)
	if n.NodeOptions != nil {
		box := *n.NodeOptions
		out.NodeOptions = &box
	}
	return &out
}

// Options is the tagged variant of a node's option fields.
type Options interface {
	isOptions()
}

// NoOptions is reported for nodes without options.
type NoOptions struct{}

// LegacyOptions holds extension options keyed by extension name.
type LegacyOptions struct {
	Extensions map[string]cty.Value
}

// TypedOptions holds an Any-packed options message.
type TypedOptions struct {
	Box AnyBox
}

func (NoOptions) isOptions()     {}
func (LegacyOptions) isOptions() {}
func (TypedOptions) isOptions()  {}

// OptionsVariant returns the node's options as a tagged variant. Populating
// both option fields is a configuration error.
func (n *Node) OptionsVariant() (Options, error) {
	hasLegacy := len(n.Options) > 0
	hasTyped := n.NodeOptions != nil
	switch {
	case hasLegacy && hasTyped:
		return nil, errs.Config("config", "OptionsVariant", "node %q has both options and node_options fields", n.Name)
	case hasLegacy:
		return LegacyOptions{Extensions: n.Options}, nil
	case hasTyped:
		return TypedOptions{Box: *n.NodeOptions}, nil
	default:
		return NoOptions{}, nil
	}
}
