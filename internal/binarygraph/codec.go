package binarygraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/vk/streamgridgo/internal/config"
	"github.com/vk/streamgridgo/internal/ctxlog"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	ctymsgpack "github.com/zclconf/go-cty/cty/msgpack"
)

// formatVersion is bumped whenever the wire layout changes.
const formatVersion = 1

type wireGraph struct {
	Version           int        `msgpack:"version"`
	InputStreams      []string   `msgpack:"input_stream,omitempty"`
	OutputStreams     []string   `msgpack:"output_stream,omitempty"`
	InputSidePackets  []string   `msgpack:"input_side_packet,omitempty"`
	OutputSidePackets []string   `msgpack:"output_side_packet,omitempty"`
	MaxQueueSize      int        `msgpack:"max_queue_size,omitempty"`
	NumThreads        int        `msgpack:"num_threads,omitempty"`
	ReportDeadlock    bool       `msgpack:"report_deadlock,omitempty"`
	Nodes             []wireNode `msgpack:"node,omitempty"`
}

type wireNode struct {
	Name              string      `msgpack:"name,omitempty"`
	Calculator        string      `msgpack:"calculator"`
	InputStreams      []string    `msgpack:"input_stream,omitempty"`
	OutputStreams     []string    `msgpack:"output_stream,omitempty"`
	InputSidePackets  []string    `msgpack:"input_side_packet,omitempty"`
	OutputSidePackets []string    `msgpack:"output_side_packet,omitempty"`
	Options           []wireValue `msgpack:"options,omitempty"`
	NodeOptions       *wireValue  `msgpack:"node_options,omitempty"`
}

// wireValue is a keyed cty value. Key is the extension name of a legacy
// option or the type URL of typed node options.
type wireValue struct {
	Key   string `msgpack:"key"`
	Type  []byte `msgpack:"type"`
	Value []byte `msgpack:"value,omitempty"`
}

// Marshal encodes cfg into its binary form.
func Marshal(cfg *config.GraphConfig) ([]byte, error) {
	if cfg == nil {
		return nil, errs.Lifecycle("binarygraph", "Marshal", "graph config is nil")
	}
	wg := wireGraph{
		Version:           formatVersion,
		InputStreams:      cfg.InputStreams,
		OutputStreams:     cfg.OutputStreams,
		InputSidePackets:  cfg.InputSidePackets,
		OutputSidePackets: cfg.OutputSidePackets,
		MaxQueueSize:      cfg.MaxQueueSize,
		NumThreads:        cfg.NumThreads,
		ReportDeadlock:    cfg.ReportDeadlock,
	}
	for _, n := range cfg.Nodes {
		wn := wireNode{
			Name:              n.Name,
			Calculator:        n.Calculator,
			InputStreams:      n.InputStreams,
			OutputStreams:     n.OutputStreams,
			InputSidePackets:  n.InputSidePackets,
			OutputSidePackets: n.OutputSidePackets,
		}
		keys := make([]string, 0, len(n.Options))
		for k := range n.Options {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			wv, err := encodeValue(k, n.Options[k])
			if err != nil {
				return nil, errs.Wrap(errs.KindConfig, fmt.Errorf("node %q: %w", n.Name, err), "binarygraph", "Marshal")
			}
			wn.Options = append(wn.Options, wv)
		}
		if n.NodeOptions != nil {
			wv, err := encodeValue(n.NodeOptions.TypeURL, n.NodeOptions.Value)
			if err != nil {
				return nil, errs.Wrap(errs.KindConfig, fmt.Errorf("node %q: %w", n.Name, err), "binarygraph", "Marshal")
			}
			wn.NodeOptions = &wv
		}
		wg.Nodes = append(wg.Nodes, wn)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(&wg); err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "binarygraph", "Marshal")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a binary graph produced by Marshal.
func Unmarshal(b []byte) (*config.GraphConfig, error) {
	var wg wireGraph
	if err := msgpack.Unmarshal(b, &wg); err != nil {
		return nil, parseError(err)
	}
	if wg.Version != formatVersion {
		return nil, parseError(fmt.Errorf("unsupported binary graph version %d", wg.Version))
	}
	cfg := &config.GraphConfig{
		InputStreams:      wg.InputStreams,
		OutputStreams:     wg.OutputStreams,
		InputSidePackets:  wg.InputSidePackets,
		OutputSidePackets: wg.OutputSidePackets,
		MaxQueueSize:      wg.MaxQueueSize,
		NumThreads:        wg.NumThreads,
		ReportDeadlock:    wg.ReportDeadlock,
	}
	for _, wn := range wg.Nodes {
		n := &config.Node{
			Name:              wn.Name,
			Calculator:        wn.Calculator,
			InputStreams:      wn.InputStreams,
			OutputStreams:     wn.OutputStreams,
			InputSidePackets:  wn.InputSidePackets,
			OutputSidePackets: wn.OutputSidePackets,
		}
		for _, wv := range wn.Options {
			v, err := decodeValue(wv)
			if err != nil {
				return nil, parseError(fmt.Errorf("node %q option %q: %w", wn.Name, wv.Key, err))
			}
			if n.Options == nil {
				n.Options = make(map[string]cty.Value)
			}
			n.Options[wv.Key] = v
		}
		if wn.NodeOptions != nil {
			v, err := decodeValue(*wn.NodeOptions)
			if err != nil {
				return nil, parseError(fmt.Errorf("node %q node_options: %w", wn.Name, err))
			}
			n.NodeOptions = &config.AnyBox{TypeURL: wn.NodeOptions.Key, Value: v}
		}
		cfg.Nodes = append(cfg.Nodes, n)
	}
	return cfg, nil
}

// LoadFile reads and decodes the binary graph at path.
func LoadFile(ctx context.Context, path string) (*config.GraphConfig, error) {
	ctxlog.FromContext(ctx).Debug("Loading binary graph.", "file", path)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.KindLifecycle, err, "binarygraph", "LoadFile")
		}
		return nil, errs.Wrap(errs.KindConfig, err, "binarygraph", "LoadFile")
	}
	return Unmarshal(b)
}

// WriteFile encodes cfg and writes it to path.
func WriteFile(path string, cfg *config.GraphConfig) error {
	b, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errs.Wrap(errs.KindLifecycle, err, "binarygraph", "WriteFile")
	}
	return nil
}

func encodeValue(key string, v cty.Value) (wireValue, error) {
	ty := v.Type()
	if v.IsNull() {
		ty = cty.DynamicPseudoType
		v = cty.NullVal(ty)
	}
	tb, err := ctyjson.MarshalType(ty)
	if err != nil {
		return wireValue{}, fmt.Errorf("encoding type of %q: %w", key, err)
	}
	vb, err := ctymsgpack.Marshal(v, ty)
	if err != nil {
		return wireValue{}, fmt.Errorf("encoding value of %q: %w", key, err)
	}
	return wireValue{Key: key, Type: tb, Value: vb}, nil
}

func decodeValue(wv wireValue) (cty.Value, error) {
	ty, err := ctyjson.UnmarshalType(wv.Type)
	if err != nil {
		return cty.NilVal, err
	}
	return ctymsgpack.Unmarshal(wv.Value, ty)
}

func parseError(err error) error {
	return errs.Wrap(errs.KindConfig, fmt.Errorf("%w: binary graph: %w", errs.ErrParse, err), "binarygraph", "Unmarshal")
}
