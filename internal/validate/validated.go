package validate

import (
	"fmt"
	"slices"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/config"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/portid"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// GraphNode is the producer or consumer index used for the graph itself.
const GraphNode = -1

// PortRef addresses one port of one node by its tag map position.
type PortRef struct {
	Node     int
	Position int
}

// NodeInfo is a validated node.
type NodeInfo struct {
	Index        int
	Name         string
	Calculator   string
	Registration *registry.Registration
	// Options are the resolved options, converted to the calculator's
	// options type, or cty.NilVal.
	Options  cty.Value
	Contract *calculator.Contract

	Inputs            *portid.TagMap
	Outputs           *portid.TagMap
	InputSidePackets  *portid.TagMap
	OutputSidePackets *portid.TagMap

	// Resolved registered type names by tag map position. An empty name
	// means the type could not be narrowed down and any packet is accepted.
	InputTypes      []string
	OutputTypes     []string
	InputSideTypes  []string
	OutputSideTypes []string
}

// IsSource reports whether the node has no input streams.
func (n *NodeInfo) IsSource() bool { return n.Inputs.Len() == 0 }

// StreamInfo describes the wiring of one stream.
type StreamInfo struct {
	Name string
	// TypeName is the resolved registered type, or "" when unresolved.
	TypeName string
	// Producer is the producing node, or GraphNode for graph input streams.
	Producer         int
	ProducerPosition int
	Consumers        []PortRef
	GraphInput       bool
	GraphOutput      bool
}

// SidePacketInfo describes the wiring of one side packet.
type SidePacketInfo struct {
	Name     string
	TypeName string
	// Producer is the producing node, or GraphNode when the packet must be
	// supplied when a run starts.
	Producer         int
	ProducerPosition int
	Consumers        []PortRef
}

// ValidatedGraphConfig is an immutable, fully checked graph.
type ValidatedGraphConfig struct {
	config      *config.GraphConfig
	binary      []byte
	nodes       []*NodeInfo
	byName      map[string]*NodeInfo
	order       []*NodeInfo
	streams     map[string]*StreamInfo
	sidePackets map[string]*SidePacketInfo

	graphInputs     []string
	graphOutputs    []string
	graphInputSide  []string
	graphOutputSide []string
}

// Config returns a copy of the canonical config.
func (v *ValidatedGraphConfig) Config() *config.GraphConfig { return v.config.Clone() }

// BinaryConfig returns the canonical binary encoding of the config.
func (v *ValidatedGraphConfig) BinaryConfig() []byte { return slices.Clone(v.binary) }

// Nodes returns the nodes in config order. The slice is a copy; the
// NodeInfo values are shared and must not be modified.
func (v *ValidatedGraphConfig) Nodes() []*NodeInfo { return slices.Clone(v.nodes) }

// TopologicalOrder returns the nodes with every producer before its
// consumers. The NodeInfo values are shared, as with Nodes.
func (v *ValidatedGraphConfig) TopologicalOrder() []*NodeInfo { return slices.Clone(v.order) }

// Node looks a node up by name. The result must not be modified.
func (v *ValidatedGraphConfig) Node(name string) (*NodeInfo, bool) {
	n, ok := v.byName[name]
	return n, ok
}

// Stream looks a stream up by name.
func (v *ValidatedGraphConfig) Stream(name string) (*StreamInfo, bool) {
	s, ok := v.streams[name]
	return s, ok
}

// SidePacket looks a side packet up by name.
func (v *ValidatedGraphConfig) SidePacket(name string) (*SidePacketInfo, bool) {
	s, ok := v.sidePackets[name]
	return s, ok
}

// StreamNames returns every stream name, sorted.
func (v *ValidatedGraphConfig) StreamNames() []string { return sortedKeys(v.streams) }

// InputStreams returns the graph input stream names.
func (v *ValidatedGraphConfig) InputStreams() []string { return slices.Clone(v.graphInputs) }

// OutputStreams returns the graph output stream names.
func (v *ValidatedGraphConfig) OutputStreams() []string { return slices.Clone(v.graphOutputs) }

// InputSidePackets returns the side packet names the graph declares as its
// inputs.
func (v *ValidatedGraphConfig) InputSidePackets() []string { return slices.Clone(v.graphInputSide) }

// OutputSidePackets returns the graph output side packet names.
func (v *ValidatedGraphConfig) OutputSidePackets() []string { return slices.Clone(v.graphOutputSide) }

// RequiredSidePackets returns, sorted, the side packets that are consumed by
// some node but produced by none. They must be supplied when a run starts.
func (v *ValidatedGraphConfig) RequiredSidePackets() []string {
	var out []string
	for name, sp := range v.sidePackets {
		if sp.Producer == GraphNode && len(sp.Consumers) > 0 {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// MaxQueueSize returns the queue limit, or -1 for unbounded queues.
func (v *ValidatedGraphConfig) MaxQueueSize() int { return v.config.EffectiveMaxQueueSize() }

// NumThreads returns the configured worker count; zero means one per CPU.
func (v *ValidatedGraphConfig) NumThreads() int { return v.config.NumThreads }

// ReportDeadlock reports whether a backpressure deadlock is an error.
func (v *ValidatedGraphConfig) ReportDeadlock() bool { return v.config.ReportDeadlock }

// RegisteredStreamTypeName returns the resolved type of a stream.
func (v *ValidatedGraphConfig) RegisteredStreamTypeName(name string) (string, error) {
	s, ok := v.streams[name]
	if !ok {
		return "", errs.Wrap(errs.KindConfig, fmt.Errorf("%w %q", errs.ErrUnknownStream, name), "validate", "RegisteredStreamTypeName")
	}
	if s.TypeName == "" {
		return "", errs.Config("validate", "RegisteredStreamTypeName",
			"type of stream %q cannot be resolved", name)
	}
	return s.TypeName, nil
}

// RegisteredSidePacketTypeName returns the resolved type of a side packet.
func (v *ValidatedGraphConfig) RegisteredSidePacketTypeName(name string) (string, error) {
	s, ok := v.sidePackets[name]
	if !ok {
		return "", errs.Config("validate", "RegisteredSidePacketTypeName", "unknown side packet %q", name)
	}
	if s.TypeName == "" {
		return "", errs.Config("validate", "RegisteredSidePacketTypeName",
			"type of side packet %q cannot be resolved", name)
	}
	return s.TypeName, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
