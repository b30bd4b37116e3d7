// Package threshold provides ThresholdCalculator, which compares a float
// stream against a configurable threshold.
package threshold

import (
	"errors"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

const (
	// Name is the registered calculator type.
	Name = "ThresholdCalculator"
	// Extension names the legacy options block.
	Extension = "ThresholdOptions.ext"
	// TypeURL names the typed node_options block.
	TypeURL = "type.googleapis.com/streamgrid.ThresholdOptions"
)

// DefaultThreshold applies when the options leave the threshold unset.
const DefaultThreshold = 0.5

// OptionsType is the cty type of ThresholdOptions.
var OptionsType = cty.ObjectWithOptionalAttrs(map[string]cty.Type{
	"threshold": cty.Number,
	"labels":    cty.List(cty.String),
}, []string{"threshold", "labels"})

// Options are the decoded ThresholdOptions.
type Options struct {
	Threshold *float64 `cty:"threshold"`
	Labels    []string `cty:"labels"`
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Calculator emits FLAG true when VALUE is at or above the threshold. With
// two labels configured and a LABEL output it also emits labels[0] below
// and labels[1] at or above the threshold.
type Calculator struct {
	calculator.Base
	threshold float64
	labels    []string
}

// GetContract declares the ports of the calculator.
func GetContract(c *calculator.Contract) error {
	if c.Inputs().Len() != 1 || !c.Inputs().HasTag("VALUE") || !c.Outputs().HasTag("FLAG") {
		return errors.New("ThresholdCalculator needs a VALUE input stream and a FLAG output stream")
	}
	c.Inputs().Get("VALUE", 0).Set("float")
	c.Outputs().Get("FLAG", 0).Set("bool")
	if c.Outputs().HasTag("LABEL") {
		c.Outputs().Get("LABEL", 0).Set("string")
	}
	c.SetTimestampOffset(0)
	return nil
}

// Open decodes the options.
func (t *Calculator) Open(cc *calculator.Context) error {
	var opts Options
	if err := cc.DecodeOptions(&opts); err != nil {
		return err
	}
	t.threshold = DefaultThreshold
	if opts.Threshold != nil {
		t.threshold = *opts.Threshold
	}
	t.labels = opts.Labels
	return nil
}

// Process compares the input against the threshold.
func (t *Calculator) Process(cc *calculator.Context) error {
	v, err := packet.GetFloat(cc.Input("VALUE", 0))
	if err != nil {
		return err
	}
	ts := cc.InputTimestamp()
	above := v >= t.threshold
	if err := cc.Output("FLAG", 0).Add(packet.CreateBool(above), ts); err != nil {
		return err
	}
	if out := cc.Output("LABEL", 0); out != nil && len(t.labels) == 2 {
		label := t.labels[0]
		if above {
			label = t.labels[1]
		}
		return out.Add(packet.CreateString(label), ts)
	}
	return nil
}

// Register registers the calculator with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name:        Name,
		GetContract: GetContract,
		New:         func() calculator.Calculator { return &Calculator{} },
		Options: &registry.OptionsSpec{
			Extension: Extension,
			TypeURL:   TypeURL,
			Type:      OptionsType,
		},
	})
}
