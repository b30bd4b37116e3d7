// Package failing provides FailingCalculator, a pass-through node that
// fails on purpose. It is used to exercise error propagation.
package failing

import (
	"fmt"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/vk/streamgridgo/internal/timestamp"
	"github.com/zclconf/go-cty/cty"
)

const (
	// Name is the registered calculator type.
	Name = "FailingCalculator"
	// TypeURL names the typed node_options block.
	TypeURL = "type.googleapis.com/streamgrid.FailingOptions"
)

// OptionsType is the cty type of FailingOptions.
var OptionsType = cty.ObjectWithOptionalAttrs(map[string]cty.Type{
	"fail_at":       cty.Number,
	"fail_on_open":  cty.Bool,
	"fail_on_close": cty.Bool,
	"message":       cty.String,
}, []string{"fail_at", "fail_on_open", "fail_on_close", "message"})

// Options are the decoded FailingOptions.
type Options struct {
	FailAt      *int64  `cty:"fail_at"`
	FailOnOpen  *bool   `cty:"fail_on_open"`
	FailOnClose *bool   `cty:"fail_on_close"`
	Message     *string `cty:"message"`
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Calculator forwards its input and fails at the configured timestamp.
type Calculator struct {
	opts    Options
	message string
}

// GetContract declares one input and a matching output.
func GetContract(c *calculator.Contract) error {
	if c.Inputs().Len() != 1 || c.Outputs().Len() > 1 {
		return fmt.Errorf("%s needs one input stream and at most one output stream", Name)
	}
	in := c.Inputs().Index(0).SetAny()
	if c.Outputs().Len() == 1 {
		c.Outputs().Index(0).SetSameAs(in)
	}
	c.SetTimestampOffset(0)
	return nil
}

// Open implements calculator.Calculator.
func (f *Calculator) Open(cc *calculator.Context) error {
	if err := cc.DecodeOptions(&f.opts); err != nil {
		return err
	}
	f.message = "induced failure"
	if f.opts.Message != nil {
		f.message = *f.opts.Message
	}
	if f.opts.FailOnOpen != nil && *f.opts.FailOnOpen {
		return fmt.Errorf("%s in Open", f.message)
	}
	return nil
}

// Process implements calculator.Calculator.
func (f *Calculator) Process(cc *calculator.Context) error {
	ts := cc.InputTimestamp()
	if f.opts.FailAt != nil && timestamp.New(*f.opts.FailAt) == ts {
		return fmt.Errorf("%s at timestamp %s", f.message, ts)
	}
	if cc.OutputTags().Len() == 0 {
		return nil
	}
	port := cc.OutputTags().Entries()[0]
	in := cc.InputTags().Entries()[0]
	return cc.Output(port.Tag, port.Index).Add(cc.Input(in.Tag, in.Index), ts)
}

// Close implements calculator.Calculator.
func (f *Calculator) Close(*calculator.Context) error {
	if f.opts.FailOnClose != nil && *f.opts.FailOnClose {
		return fmt.Errorf("%s in Close", f.message)
	}
	return nil
}

// Register registers the calculator with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name:        Name,
		GetContract: GetContract,
		New:         func() calculator.Calculator { return &Calculator{} },
		Options:     &registry.OptionsSpec{TypeURL: TypeURL, Type: OptionsType},
	})
}
