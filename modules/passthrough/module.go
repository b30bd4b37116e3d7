// Package passthrough provides PassThroughCalculator, which forwards every
// input packet to the output at the same position.
package passthrough

import (
	"errors"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/registry"
)

// Name is the registered calculator type.
const Name = "PassThroughCalculator"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Calculator forwards packets unchanged.
type Calculator struct{ calculator.Base }

// GetContract pairs every input with the output at the same tag and index.
// Inputs are optional: each packet is forwarded on its own.
func GetContract(c *calculator.Contract) error {
	if !c.Inputs().TagMap().SameLayout(c.Outputs().TagMap()) {
		return errors.New("Input and output streams to PassThroughCalculator must use matching tags and indexes.")
	}
	if !c.InputSidePackets().TagMap().SameLayout(c.OutputSidePackets().TagMap()) {
		return errors.New("Input and output side packets to PassThroughCalculator must use matching tags and indexes.")
	}
	for i, in := range c.Inputs().All() {
		in.SetAny().Optional()
		c.Outputs().Index(i).SetSameAs(in)
	}
	for i, in := range c.InputSidePackets().All() {
		in.SetAny()
		c.OutputSidePackets().Index(i).SetSameAs(in)
	}
	c.SetTimestampOffset(0)
	return nil
}

// Open forwards the side packets.
func (Calculator) Open(cc *calculator.Context) error {
	for _, port := range cc.InputSidePacketTags().Entries() {
		p := cc.InputSidePacket(port.Tag, port.Index)
		if err := cc.SetOutputSidePacket(port.Tag, port.Index, p); err != nil {
			return err
		}
	}
	return nil
}

// Process forwards the packets present at the input timestamp.
func (Calculator) Process(cc *calculator.Context) error {
	ts := cc.InputTimestamp()
	for _, port := range cc.InputTags().Entries() {
		p := cc.Input(port.Tag, port.Index)
		if p.IsEmpty() {
			continue
		}
		if err := cc.Output(port.Tag, port.Index).Add(p, ts); err != nil {
			return err
		}
	}
	return nil
}

// Register registers the calculator with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name:        Name,
		GetContract: GetContract,
		New:         func() calculator.Calculator { return Calculator{} },
	})
}
