package validate

import (
	"context"
	"fmt"

	"github.com/vk/streamgridgo/internal/binarygraph"
	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/config"
	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/dag"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/hcl"
	"github.com/vk/streamgridgo/internal/portid"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Initialize validates cfg against the calculators in reg. cfg itself is
// not modified.
func Initialize(ctx context.Context, cfg *config.GraphConfig, reg *registry.Registry) (*ValidatedGraphConfig, error) {
	logger := ctxlog.FromContext(ctx)
	if cfg == nil {
		return nil, errs.Lifecycle("validate", "Initialize", "graph config is nil")
	}
	if reg == nil {
		return nil, errs.Lifecycle("validate", "Initialize", "calculator registry is nil")
	}
	logger.Debug("Validating graph config.", "nodes", len(cfg.Nodes))

	v := &ValidatedGraphConfig{
		config:      cfg.Clone(),
		byName:      make(map[string]*NodeInfo),
		streams:     make(map[string]*StreamInfo),
		sidePackets: make(map[string]*SidePacketInfo),
	}
	steps := []func(*registry.Registry) error{
		v.canonicalizeGraph,
		v.bindNodes,
		func(*registry.Registry) error { return v.wireStreams() },
		func(*registry.Registry) error { return v.wireSidePackets() },
		func(*registry.Registry) error { return v.sortNodes() },
		func(*registry.Registry) error { return v.resolveTypes() },
	}
	for _, step := range steps {
		if err := step(reg); err != nil {
			logger.Debug("Graph config rejected.", "error", err)
			return nil, err
		}
	}

	b, err := binarygraph.Marshal(v.config)
	if err != nil {
		return nil, err
	}
	v.binary = b

	logger.Debug("Graph config validated.", "nodes", len(v.nodes), "streams", len(v.streams))
	return v, nil
}

// InitializeText parses HCL graph text and validates it.
func InitializeText(ctx context.Context, src string, reg *registry.Registry) (*ValidatedGraphConfig, error) {
	cfg, err := hcl.NewLoader().LoadString(ctx, src, "graph.hcl")
	if err != nil {
		return nil, err
	}
	return Initialize(ctx, cfg, reg)
}

// InitializeBinary loads a binary graph file and validates it.
func InitializeBinary(ctx context.Context, path string, reg *registry.Registry) (*ValidatedGraphConfig, error) {
	cfg, err := binarygraph.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return Initialize(ctx, cfg, reg)
}

func configError(format string, args ...any) error {
	return errs.Config("validate", "Initialize", format, args...)
}

// canonicalizeGraph rewrites the graph level port lists and queue size in
// canonical form.
func (v *ValidatedGraphConfig) canonicalizeGraph(*registry.Registry) error {
	cfg := v.config
	for _, field := range []struct {
		name  string
		list  *[]string
		names *[]string
	}{
		{"input_stream", &cfg.InputStreams, &v.graphInputs},
		{"output_stream", &cfg.OutputStreams, &v.graphOutputs},
		{"input_side_packet", &cfg.InputSidePackets, &v.graphInputSide},
		{"output_side_packet", &cfg.OutputSidePackets, &v.graphOutputSide},
	} {
		tm, err := portid.NewTagMap(*field.list)
		if err != nil {
			return configError("graph %s: %w", field.name, err)
		}
		*field.list = tm.Canonical()
		*field.names = tm.Names()
	}
	cfg.MaxQueueSize = cfg.EffectiveMaxQueueSize()
	return nil
}

func (v *ValidatedGraphConfig) bindNodes(reg *registry.Registry) error {
	for i, n := range v.config.Nodes {
		if n == nil {
			return configError("node %d is nil", i)
		}
		n.Name = v.config.NodeName(i)
		if _, dup := v.byName[n.Name]; dup {
			return configError("node name %q is used by more than one node", n.Name)
		}
		info, err := bindNode(i, n, reg)
		if err != nil {
			return err
		}
		v.nodes = append(v.nodes, info)
		v.byName[n.Name] = info
	}
	return nil
}

// bindNode resolves the calculator, options and contract of one node and
// canonicalizes the node in place.
func bindNode(index int, n *config.Node, reg *registry.Registry) (*NodeInfo, error) {
	calc, ok := reg.Lookup(n.Calculator)
	if !ok {
		return nil, configError(`Unable to find Calculator "%s"`, n.Calculator)
	}
	options, err := resolveOptions(n, calc)
	if err != nil {
		return nil, err
	}

	info := &NodeInfo{Index: index, Name: n.Name, Calculator: n.Calculator, Registration: calc, Options: options}
	for _, field := range []struct {
		name string
		list *[]string
		tm   **portid.TagMap
	}{
		{"input_stream", &n.InputStreams, &info.Inputs},
		{"output_stream", &n.OutputStreams, &info.Outputs},
		{"input_side_packet", &n.InputSidePackets, &info.InputSidePackets},
		{"output_side_packet", &n.OutputSidePackets, &info.OutputSidePackets},
	} {
		tm, err := portid.NewTagMap(*field.list)
		if err != nil {
			return nil, configError("node %q %s: %w", n.Name, field.name, err)
		}
		*field.list = tm.Canonical()
		*field.tm = tm
	}

	contract := calculator.NewContract(n.Name, info.Inputs, info.Outputs, info.InputSidePackets, info.OutputSidePackets, options)
	if err := calc.GetContract(contract); err != nil {
		return nil, errs.Wrap(errs.KindConfig, fmt.Errorf("node %q: %w", n.Name, err), "validate", "GetContract")
	}
	if err := contract.Check(); err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "validate", "GetContract")
	}
	info.Contract = contract
	return info, nil
}

// resolveOptions checks the node's options against the calculator's options
// type and stores the converted value back into the node.
func resolveOptions(n *config.Node, calc *registry.Registration) (cty.Value, error) {
	variant, err := n.OptionsVariant()
	if err != nil {
		return cty.NilVal, err
	}
	spec := calc.Options
	switch o := variant.(type) {
	case config.LegacyOptions:
		if spec == nil || spec.Extension == "" {
			return cty.NilVal, configError("calculator %q of node %q does not accept options", n.Calculator, n.Name)
		}
		for ext := range o.Extensions {
			if ext != spec.Extension {
				return cty.NilVal, configError("node %q: calculator %q has no options extension %q", n.Name, n.Calculator, ext)
			}
		}
		val, err := convertOptions(n.Name, o.Extensions[spec.Extension], spec)
		if err != nil {
			return cty.NilVal, err
		}
		n.Options = map[string]cty.Value{spec.Extension: val}
		return val, nil
	case config.TypedOptions:
		if spec == nil || spec.TypeURL == "" {
			return cty.NilVal, configError("calculator %q of node %q does not accept node_options", n.Calculator, n.Name)
		}
		if o.Box.TypeURL != spec.TypeURL {
			return cty.NilVal, configError("node %q: node_options type %q does not match %q", n.Name, o.Box.TypeURL, spec.TypeURL)
		}
		val, err := convertOptions(n.Name, o.Box.Value, spec)
		if err != nil {
			return cty.NilVal, err
		}
		n.NodeOptions = &config.AnyBox{TypeURL: spec.TypeURL, Value: val}
		return val, nil
	default:
		return cty.NilVal, nil
	}
}

func convertOptions(node string, val cty.Value, spec *registry.OptionsSpec) (cty.Value, error) {
	out, err := spec.Convert(val)
	if err != nil {
		return cty.NilVal, configError("options of node %q: %w", node, err)
	}
	return out, nil
}

func (v *ValidatedGraphConfig) wireStreams() error {
	for _, name := range v.graphInputs {
		v.streams[name] = &StreamInfo{Name: name, Producer: GraphNode, GraphInput: true}
	}
	for _, n := range v.nodes {
		for pos, port := range n.Outputs.Entries() {
			if s, exists := v.streams[port.Name]; exists {
				if s.GraphInput {
					return configError("stream %q is a graph input stream and cannot be produced by node %q", port.Name, n.Name)
				}
				return configError("stream %q is produced by both node %q and node %q", port.Name, v.nodes[s.Producer].Name, n.Name)
			}
			v.streams[port.Name] = &StreamInfo{Name: port.Name, Producer: n.Index, ProducerPosition: pos}
		}
	}
	for _, n := range v.nodes {
		for pos, port := range n.Inputs.Entries() {
			s, ok := v.streams[port.Name]
			if !ok {
				return configError("input stream %q of node %q is not produced by any node or graph input", port.Name, n.Name)
			}
			s.Consumers = append(s.Consumers, PortRef{Node: n.Index, Position: pos})
		}
	}
	for _, name := range v.graphOutputs {
		s, ok := v.streams[name]
		if !ok {
			return configError("graph output stream %q is not produced by any node", name)
		}
		s.GraphOutput = true
	}
	for _, name := range v.graphInputs {
		if s := v.streams[name]; len(s.Consumers) == 0 && !s.GraphOutput {
			return configError("graph input stream %q is not consumed by any node", name)
		}
	}
	return nil
}

func (v *ValidatedGraphConfig) wireSidePackets() error {
	for _, name := range v.graphInputSide {
		v.sidePackets[name] = &SidePacketInfo{Name: name, Producer: GraphNode}
	}
	for _, n := range v.nodes {
		for pos, port := range n.OutputSidePackets.Entries() {
			if sp, exists := v.sidePackets[port.Name]; exists {
				if sp.Producer == GraphNode {
					return configError("side packet %q is a graph input side packet and cannot be produced by node %q", port.Name, n.Name)
				}
				return configError("side packet %q is produced by both node %q and node %q", port.Name, v.nodes[sp.Producer].Name, n.Name)
			}
			v.sidePackets[port.Name] = &SidePacketInfo{Name: port.Name, Producer: n.Index, ProducerPosition: pos}
		}
	}
	for _, n := range v.nodes {
		for pos, port := range n.InputSidePackets.Entries() {
			sp, ok := v.sidePackets[port.Name]
			if !ok {
				// Consumed but never produced: supplied when the run starts.
				sp = &SidePacketInfo{Name: port.Name, Producer: GraphNode}
				v.sidePackets[port.Name] = sp
			}
			sp.Consumers = append(sp.Consumers, PortRef{Node: n.Index, Position: pos})
		}
	}
	for _, name := range v.graphOutputSide {
		if _, ok := v.sidePackets[name]; !ok {
			return configError("graph output side packet %q is not produced by any node", name)
		}
	}
	return nil
}

// sortNodes rejects cycles and computes the topological order. Both stream
// and side packet edges count.
func (v *ValidatedGraphConfig) sortNodes() error {
	g := dag.New()
	for _, n := range v.nodes {
		g.AddNode(n.Name)
	}
	addEdges := func(producer int, consumers []PortRef) error {
		if producer == GraphNode {
			return nil
		}
		from := v.nodes[producer].Name
		for _, c := range consumers {
			to := v.nodes[c.Node].Name
			if from == to {
				return configError("cycle detected involving node '%s'", from)
			}
			if err := g.AddEdge(from, to); err != nil {
				return configError("%w", err)
			}
		}
		return nil
	}
	for _, name := range sortedKeys(v.streams) {
		s := v.streams[name]
		if err := addEdges(s.Producer, s.Consumers); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(v.sidePackets) {
		sp := v.sidePackets[name]
		if err := addEdges(sp.Producer, sp.Consumers); err != nil {
			return err
		}
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return configError("%w", err)
	}
	for _, name := range order {
		v.order = append(v.order, v.byName[name])
	}
	return nil
}
