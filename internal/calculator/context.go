package calculator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/portid"
	"github.com/vk/streamgridgo/internal/timestamp"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Context is what a calculator sees during Open, Process and Close: the
// inputs at the current timestamp, its output streams, its side packets and
// its options.
type Context struct {
	ctx     context.Context
	node    string
	options cty.Value

	inputTags *portid.TagMap
	inputs    []packet.Packet
	inputTS   timestamp.Timestamp

	outputTags *portid.TagMap
	outputs    []*OutputShard

	sideTags    *portid.TagMap
	sidePackets []packet.Packet

	outSideTags  *portid.TagMap
	outSideTypes []string
	outSide      []packet.Packet
}

// ContextConfig describes a node to NewContext. Type slices are indexed by
// tag map position; an empty type name accepts any packet.
type ContextConfig struct {
	Node    string
	Options cty.Value

	Inputs      *portid.TagMap
	Outputs     *portid.TagMap
	OutputTypes []string

	InputSidePackets *portid.TagMap
	SidePackets      []packet.Packet

	OutputSidePackets *portid.TagMap
	OutputSideTypes   []string
}

// NewContext creates the per-node context. It is called by the engine once
// per node and run.
func NewContext(ctx context.Context, cfg ContextConfig) *Context {
	cc := &Context{
		ctx:          ctxlog.With(ctx, "node", cfg.Node),
		node:         cfg.Node,
		options:      cfg.Options,
		inputTags:    cfg.Inputs,
		inputs:       make([]packet.Packet, cfg.Inputs.Len()),
		inputTS:      timestamp.Unstarted,
		outputTags:   cfg.Outputs,
		sideTags:     cfg.InputSidePackets,
		sidePackets:  cfg.SidePackets,
		outSideTags:  cfg.OutputSidePackets,
		outSideTypes: cfg.OutputSideTypes,
		outSide:      make([]packet.Packet, cfg.OutputSidePackets.Len()),
	}
	for i, p := range cfg.Outputs.Entries() {
		shard := &OutputShard{cc: cc, name: p.Name, next: timestamp.PreStream}
		if i < len(cfg.OutputTypes) {
			shard.typeName = cfg.OutputTypes[i]
		}
		cc.outputs = append(cc.outputs, shard)
	}
	return cc
}

// Context returns the context.Context of the run, carrying the node logger.
func (cc *Context) Context() context.Context { return cc.ctx }

// Logger returns a logger annotated with the node name.
func (cc *Context) Logger() *slog.Logger { return ctxlog.FromContext(cc.ctx) }

// NodeName returns the name of the node.
func (cc *Context) NodeName() string { return cc.node }

// Options returns the node's resolved options, or cty.NilVal.
func (cc *Context) Options() cty.Value { return cc.options }

// DecodeOptions decodes the node's options into target, a pointer to a
// struct with `cty` tags. Attributes left unset decode to nil pointers.
func (cc *Context) DecodeOptions(target any) error {
	if cc.options.IsNull() {
		return nil
	}
	if err := gocty.FromCtyValue(cc.options, target); err != nil {
		return fmt.Errorf("decoding options of node %q: %w", cc.node, err)
	}
	return nil
}

// InputTimestamp returns the timestamp of the current Process call, or
// timestamp.Unstarted outside Process and for source nodes.
func (cc *Context) InputTimestamp() timestamp.Timestamp { return cc.inputTS }

// Input returns the packet on the input addressed by tag and index at the
// current timestamp. The packet is empty if none arrived.
func (cc *Context) Input(tag string, index int) packet.Packet {
	pos := cc.inputTags.Position(tag, index)
	if pos < 0 {
		return packet.Packet{}
	}
	return cc.inputs[pos]
}

// NumInputs returns the number of input streams with tag.
func (cc *Context) NumInputs(tag string) int { return cc.inputTags.NumEntries(tag) }

// InputTags returns the tag map of the node's input streams.
func (cc *Context) InputTags() *portid.TagMap { return cc.inputTags }

// Output returns the output stream addressed by tag and index, or nil.
func (cc *Context) Output(tag string, index int) *OutputShard {
	pos := cc.outputTags.Position(tag, index)
	if pos < 0 {
		return nil
	}
	return cc.outputs[pos]
}

// OutputTags returns the tag map of the node's output streams.
func (cc *Context) OutputTags() *portid.TagMap { return cc.outputTags }

// NumOutputs returns the number of output streams with tag.
func (cc *Context) NumOutputs(tag string) int { return cc.outputTags.NumEntries(tag) }

// InputSidePacketTags returns the tag map of the node's input side packets.
func (cc *Context) InputSidePacketTags() *portid.TagMap { return cc.sideTags }

// InputSidePacket returns the side packet addressed by tag and index.
func (cc *Context) InputSidePacket(tag string, index int) packet.Packet {
	pos := cc.sideTags.Position(tag, index)
	if pos < 0 || pos >= len(cc.sidePackets) {
		return packet.Packet{}
	}
	return cc.sidePackets[pos]
}

// OutputSidePacketTags returns the tag map of the node's output side
// packets.
func (cc *Context) OutputSidePacketTags() *portid.TagMap { return cc.outSideTags }

// SetOutputSidePacket sets the output side packet addressed by tag and
// index. Each output side packet can be set once per run.
func (cc *Context) SetOutputSidePacket(tag string, index int, p packet.Packet) error {
	pos := cc.outSideTags.Position(tag, index)
	if pos < 0 {
		return errs.Config(cc.node, "SetOutputSidePacket", "node has no output side packet %s:%d", tag, index)
	}
	name := cc.outSideTags.Entries()[pos].Name
	if !cc.outSide[pos].IsEmpty() {
		return errs.Lifecycle(cc.node, "SetOutputSidePacket", "output side packet %q was already set", name)
	}
	if typeName := cc.outSideTypes[pos]; typeName != "" {
		if err := packet.Conforms(p, typeName); err != nil {
			return fmt.Errorf("output side packet %q: %w", name, err)
		}
	}
	cc.outSide[pos] = p.At(timestamp.Unset)
	return nil
}

// OutputShard is the producer end of one output stream of a node. Packets
// added during a call are handed to the engine when the call returns.
type OutputShard struct {
	cc       *Context
	name     string
	typeName string
	next     timestamp.Timestamp
	pending  []packet.Packet
	closed   bool
}

// Name returns the stream name.
func (o *OutputShard) Name() string { return o.name }

// Add stamps p with ts and emits it. Empty packets are ignored. ts must not
// be earlier than the input timestamp and must be past every timestamp
// previously emitted on the stream.
func (o *OutputShard) Add(p packet.Packet, ts timestamp.Timestamp) error {
	if p.IsEmpty() {
		return nil
	}
	if o.closed {
		return errs.Lifecycle(o.cc.node, "Add", "output stream %q is closed", o.name)
	}
	if !ts.IsAllowedInStream() {
		return errs.Ordering(o.cc.node, "Add", "timestamp %s is not allowed on stream %q", ts, o.name)
	}
	if in := o.cc.inputTS; in.IsRangeValue() && ts < in {
		return errs.Ordering(o.cc.node, "Add",
			"packet timestamp %s on stream %q is earlier than the input timestamp %s", ts, o.name, in)
	}
	if ts < o.next {
		return errs.Ordering(o.cc.node, "Add",
			"Current minimum expected timestamp is %s but received %s.", o.next, ts)
	}
	if o.typeName != "" {
		if err := packet.Conforms(p, o.typeName); err != nil {
			return fmt.Errorf("output stream %q: %w", o.name, err)
		}
	}
	o.pending = append(o.pending, p.At(ts))
	o.next = ts.NextAllowedInStream()
	return nil
}

// AddPacket emits p at the timestamp it already carries.
func (o *OutputShard) AddPacket(p packet.Packet) error {
	return o.Add(p, p.Timestamp())
}

// SetNextTimestampBound promises that no packet earlier than ts will follow,
// letting downstream nodes settle earlier timestamps.
func (o *OutputShard) SetNextTimestampBound(ts timestamp.Timestamp) {
	if ts > o.next {
		o.next = ts
	}
}

// NextTimestampBound returns the smallest timestamp the stream can still
// carry.
func (o *OutputShard) NextTimestampBound() timestamp.Timestamp { return o.next }

// Close ends the stream. Downstream nodes see it as done.
func (o *OutputShard) Close() {
	o.closed = true
	o.next = timestamp.Done
}

// IsClosed reports whether Close was called.
func (o *OutputShard) IsClosed() bool { return o.closed }
