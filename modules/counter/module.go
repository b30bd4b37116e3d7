// Package counter provides CountingSourceCalculator, a source node that
// emits increasing integers.
package counter

import (
	"fmt"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/vk/streamgridgo/internal/timestamp"
	"github.com/zclconf/go-cty/cty"
)

const (
	// Name is the registered calculator type.
	Name = "CountingSourceCalculator"
	// Extension names the legacy options block.
	Extension = "CountingSourceOptions.ext"
	// TypeURL names the typed node_options block.
	TypeURL = "type.googleapis.com/streamgrid.CountingSourceOptions"
)

// OptionsType is the cty type of CountingSourceOptions.
var OptionsType = cty.ObjectWithOptionalAttrs(map[string]cty.Type{
	"max_count":       cty.Number,
	"start":           cty.Number,
	"timestamp_step":  cty.Number,
	"start_timestamp": cty.Number,
}, []string{"max_count", "start", "timestamp_step", "start_timestamp"})

// Options are the decoded CountingSourceOptions.
type Options struct {
	MaxCount       *int64 `cty:"max_count"`
	Start          *int64 `cty:"start"`
	TimestampStep  *int64 `cty:"timestamp_step"`
	StartTimestamp *int64 `cty:"start_timestamp"`
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Calculator emits start, start+1, ... on its only output until max_count
// packets were sent. Packet i is stamped start_timestamp + i*timestamp_step.
// Without max_count it runs until the graph closes.
type Calculator struct {
	calculator.Base
	next, emitted, max int64
	ts, step           int64
}

// GetContract declares the single int output.
func GetContract(c *calculator.Contract) error {
	if c.Inputs().Len() != 0 || c.Outputs().Len() != 1 {
		return fmt.Errorf("%s needs no input streams and exactly one output stream", Name)
	}
	c.Outputs().Index(0).Set("int")
	return nil
}

// Open decodes the options.
func (s *Calculator) Open(cc *calculator.Context) error {
	var opts Options
	if err := cc.DecodeOptions(&opts); err != nil {
		return err
	}
	s.max = -1
	if opts.MaxCount != nil {
		if *opts.MaxCount < 0 {
			return fmt.Errorf("max_count must not be negative, got %d", *opts.MaxCount)
		}
		s.max = *opts.MaxCount
	}
	if opts.Start != nil {
		s.next = *opts.Start
	}
	s.step = 1
	if opts.TimestampStep != nil {
		if *opts.TimestampStep <= 0 {
			return fmt.Errorf("timestamp_step must be positive, got %d", *opts.TimestampStep)
		}
		s.step = *opts.TimestampStep
	}
	if opts.StartTimestamp != nil {
		s.ts = *opts.StartTimestamp
	}
	return nil
}

// Process emits the next value.
func (s *Calculator) Process(cc *calculator.Context) error {
	if s.max >= 0 && s.emitted >= s.max {
		return calculator.ErrStop
	}
	port := cc.OutputTags().Entries()[0]
	if err := cc.Output(port.Tag, port.Index).Add(packet.CreateInt(s.next), timestamp.New(s.ts)); err != nil {
		return err
	}
	s.next++
	s.emitted++
	s.ts += s.step
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
