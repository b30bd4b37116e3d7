// Package sidepacket provides calculators that work on side packets.
package sidepacket

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/vk/streamgridgo/internal/timestamp"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// StringToUint64 parses its string input side packet into a uint64 output
// side packet.
type StringToUint64 struct{ calculator.Base }

// Open does the conversion; the node has nothing to process.
func (StringToUint64) Open(cc *calculator.Context) error {
	s, err := packet.GetString(cc.InputSidePacket("", 0))
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("side packet %q is not an unsigned integer: %w", s, err)
	}
	return cc.SetOutputSidePacket("", 0, packet.CreateUint64(n))
}

// Process implements calculator.Calculator.
func (StringToUint64) Process(*calculator.Context) error { return calculator.ErrStop }

// Tags understood by ToStream. Each output emits the side packet once.
const (
	TagAtPrestream  = "AT_PRESTREAM"
	TagAtZero       = "AT_ZERO"
	TagAtPoststream = "AT_POSTSTREAM"
)

// ToStream emits its input side packet as the single packet of its output
// stream, at the timestamp named by the output tag.
type ToStream struct{ calculator.Base }

var toStreamTimestamps = map[string]timestamp.Timestamp{
	TagAtPrestream:  timestamp.PreStream,
	TagAtZero:       0,
	TagAtPoststream: timestamp.PostStream,
}

func toStreamContract(c *calculator.Contract) error {
	if c.InputSidePackets().Len() != 1 {
		return fmt.Errorf("SidePacketToStreamCalculator needs exactly one input side packet, got %d", c.InputSidePackets().Len())
	}
	if c.Outputs().Len() == 0 {
		return fmt.Errorf("SidePacketToStreamCalculator needs at least one output stream")
	}
	in := c.InputSidePackets().Index(0).SetAny()
	for _, tag := range c.Outputs().Tags() {
		if _, ok := toStreamTimestamps[tag]; !ok {
			return fmt.Errorf("SidePacketToStreamCalculator does not support output tag %q", tag)
		}
		for i := 0; i < c.Outputs().NumEntries(tag); i++ {
			c.Outputs().Get(tag, i).SetSameAs(in)
		}
	}
	return nil
}

// Process emits the side packet and stops.
func (ToStream) Process(cc *calculator.Context) error {
	p := cc.InputSidePacket(cc.InputSidePacketTags().Entries()[0].Tag, 0)
	for tag, ts := range toStreamTimestamps {
		for i := 0; i < cc.NumOutputs(tag); i++ {
			out := cc.Output(tag, i)
			if err := out.Add(p, ts); err != nil {
				return err
			}
			out.Close()
		}
	}
	return calculator.ErrStop
}

// Register registers the calculators with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name: "StringToUint64Calculator",
		GetContract: func(c *calculator.Contract) error {
			if c.InputSidePackets().Len() != 1 || c.OutputSidePackets().Len() != 1 {
				return fmt.Errorf("StringToUint64Calculator needs one input and one output side packet")
			}
			c.InputSidePackets().Index(0).Set("string")
			c.OutputSidePackets().Index(0).Set("uint64")
			return nil
		},
		New: func() calculator.Calculator { return StringToUint64{} },
	})
	r.RegisterCalculator(&registry.Registration{
		Name:        "SidePacketToStreamCalculator",
		GetContract: toStreamContract,
		New:         func() calculator.Calculator { return ToStream{} },
	})
}
