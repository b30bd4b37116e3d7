package hcl

import "github.com/hashicorp/hcl/v2"

// graphFile is the top-level structure of a graph file.
type graphFile struct {
	InputStreams      []string     `hcl:"input_stream,optional"`
	OutputStreams     []string     `hcl:"output_stream,optional"`
	InputSidePackets  []string     `hcl:"input_side_packet,optional"`
	OutputSidePackets []string     `hcl:"output_side_packet,optional"`
	MaxQueueSize      int          `hcl:"max_queue_size,optional"`
	NumThreads        int          `hcl:"num_threads,optional"`
	ReportDeadlock    bool         `hcl:"report_deadlock,optional"`
	Nodes             []*nodeBlock `hcl:"node,block"`
}

// nodeBlock represents a `node "<Calculator>" { ... }` block.
type nodeBlock struct {
	Calculator        string          `hcl:"calculator,label"`
	Name              string          `hcl:"name,optional"`
	InputStreams      []string        `hcl:"input_stream,optional"`
	OutputStreams     []string        `hcl:"output_stream,optional"`
	InputSidePackets  []string        `hcl:"input_side_packet,optional"`
	OutputSidePackets []string        `hcl:"output_side_packet,optional"`
	Options           []*optionsBlock `hcl:"options,block"`
	NodeOptions       []*optionsBlock `hcl:"node_options,block"`
}

// optionsBlock holds the attributes of an `options` or `node_options` block.
// The label is the extension name or the type URL respectively.
type optionsBlock struct {
	Key  string   `hcl:"key,label"`
	Body hcl.Body `hcl:",remain"`
}
