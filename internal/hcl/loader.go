package hcl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/streamgridgo/internal/config"
	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL graph loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// LoadFile parses the graph file at path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*config.GraphConfig, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.KindLifecycle, err, "hcl", "LoadFile")
		}
		return nil, errs.Wrap(errs.KindConfig, err, "hcl", "LoadFile")
	}
	return l.LoadString(ctx, string(src), path)
}

// LoadString parses graph text. filename is only used in diagnostics.
func (l *Loader) LoadString(ctx context.Context, src, filename string) (*config.GraphConfig, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "file", filename)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL([]byte(src), filename)
	if diags.HasErrors() {
		return nil, parseError(filename, diags)
	}

	var root graphFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, parseError(filename, diags)
	}

	cfg := &config.GraphConfig{
		InputStreams:      root.InputStreams,
		OutputStreams:     root.OutputStreams,
		InputSidePackets:  root.InputSidePackets,
		OutputSidePackets: root.OutputSidePackets,
		MaxQueueSize:      root.MaxQueueSize,
		NumThreads:        root.NumThreads,
		ReportDeadlock:    root.ReportDeadlock,
	}
	for _, nb := range root.Nodes {
		node, err := translateNode(nb)
		if err != nil {
			return nil, parseError(filename, err)
		}
		cfg.Nodes = append(cfg.Nodes, node)
	}

	logger.Debug("HCL loading complete.", "file", filename, "nodes", len(cfg.Nodes))
	return cfg, nil
}

func parseError(filename string, err error) error {
	return errs.Wrap(errs.KindConfig, fmt.Errorf("%w: %s: %w", errs.ErrParse, filename, err), "hcl", "Load")
}

// translateNode converts the HCL node block into the agnostic model.
func translateNode(nb *nodeBlock) (*config.Node, error) {
	node := &config.Node{
		Name:              nb.Name,
		Calculator:        nb.Calculator,
		InputStreams:      nb.InputStreams,
		OutputStreams:     nb.OutputStreams,
		InputSidePackets:  nb.InputSidePackets,
		OutputSidePackets: nb.OutputSidePackets,
	}

	for _, ob := range nb.Options {
		val, err := bodyToObject(ob.Body)
		if err != nil {
			return nil, fmt.Errorf("options %q of node %q: %w", ob.Key, nb.Calculator, err)
		}
		if node.Options == nil {
			node.Options = make(map[string]cty.Value)
		}
		if _, dup := node.Options[ob.Key]; dup {
			return nil, fmt.Errorf("options %q given twice on node %q", ob.Key, nb.Calculator)
		}
		node.Options[ob.Key] = val
	}

	switch len(nb.NodeOptions) {
	case 0:
	case 1:
		ob := nb.NodeOptions[0]
		val, err := bodyToObject(ob.Body)
		if err != nil {
			return nil, fmt.Errorf("node_options %q of node %q: %w", ob.Key, nb.Calculator, err)
		}
		node.NodeOptions = &config.AnyBox{TypeURL: ob.Key, Value: val}
	default:
		return nil, fmt.Errorf("node %q has more than one node_options block", nb.Calculator)
	}
	return node, nil
}

// bodyToObject evaluates every attribute of body into a cty object.
func bodyToObject(body hcl.Body) (cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	fields := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return cty.NilVal, diags
		}
		fields[name] = val
	}
	return cty.ObjectVal(fields), nil
}
