// Package envvars provides EnvSidePacketCalculator, which turns process
// environment variables into side packets.
package envvars

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

const (
	// Name is the registered calculator type.
	Name = "EnvSidePacketCalculator"
	// Extension names the legacy options block.
	Extension = "EnvSidePacketOptions.ext"
	// TypeURL names the typed node_options block.
	TypeURL = "type.googleapis.com/streamgrid.EnvSidePacketOptions"
)

// OptionsType is the cty type of EnvSidePacketOptions.
var OptionsType = cty.ObjectWithOptionalAttrs(map[string]cty.Type{
	"variable": cty.String,
	"default":  cty.String,
}, []string{"variable", "default"})

// Options are the decoded EnvSidePacketOptions.
type Options struct {
	Variable *string `cty:"variable"`
	Default  *string `cty:"default"`
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Calculator sets the VALUE side packet to the variable named in the
// options and the ALL side packet to every "KEY=value" pair, sorted by key.
type Calculator struct{ calculator.Base }

// GetContract declares the output side packets.
func GetContract(c *calculator.Contract) error {
	out := c.OutputSidePackets()
	for _, tag := range out.Tags() {
		switch tag {
		case "VALUE":
			out.Get(tag, 0).Set("string")
		case "ALL":
			out.Get(tag, 0).Set("string_list")
		default:
			return fmt.Errorf("%s does not support output side packet tag %q", Name, tag)
		}
	}
	if out.Len() == 0 {
		return fmt.Errorf("%s needs a VALUE or ALL output side packet", Name)
	}
	return nil
}

// Open reads the environment.
func (Calculator) Open(cc *calculator.Context) error {
	var opts Options
	if err := cc.DecodeOptions(&opts); err != nil {
		return err
	}

	if cc.OutputSidePacketTags().NumEntries("VALUE") > 0 {
		if opts.Variable == nil || *opts.Variable == "" {
			return fmt.Errorf("the VALUE side packet needs the variable option")
		}
		value, ok := os.LookupEnv(*opts.Variable)
		if !ok {
			if opts.Default == nil {
				return fmt.Errorf("environment variable %q is not set", *opts.Variable)
			}
			value = *opts.Default
		}
		if err := cc.SetOutputSidePacket("VALUE", 0, packet.CreateString(value)); err != nil {
			return err
		}
	}

	if cc.OutputSidePacketTags().NumEntries("ALL") > 0 {
		envMap := make(map[string]string)
		for _, e := range os.Environ() {
			pair := strings.SplitN(e, "=", 2)
			if len(pair) == 2 {
				envMap[pair[0]] = pair[1]
			}
		}
		keys := make([]string, 0, len(envMap))
		for k := range envMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		all := make([]string, len(keys))
		for i, k := range keys {
			all[i] = k + "=" + envMap[k]
		}
		if err := cc.SetOutputSidePacket("ALL", 0, packet.CreateStringList(all)); err != nil {
			return err
		}
	}
	return nil
}

// Process implements calculator.Calculator. The node has no streams.
func (Calculator) Process(*calculator.Context) error { return calculator.ErrStop }

// Register registers the calculator with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name:        Name,
		GetContract: GetContract,
		New:         func() calculator.Calculator { return Calculator{} },
		Options: &registry.OptionsSpec{
			Extension: Extension,
			TypeURL:   TypeURL,
			Type:      OptionsType,
		},
	})
}
