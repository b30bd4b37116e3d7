package calculator

import (
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/timestamp"
)

// The methods in this file are used by the graph engine to drive a Context.

// Emission is what one output stream received during a call.
type Emission struct {
	Packets []packet.Packet
	Bound   timestamp.Timestamp
	Closed  bool
}

// SetInputs installs the input packets for a Process call at ts. inputs is
// indexed by tag map position.
func (cc *Context) SetInputs(ts timestamp.Timestamp, inputs []packet.Packet) {
	cc.inputTS = ts
	copy(cc.inputs, inputs)
	for i := len(inputs); i < len(cc.inputs); i++ {
		cc.inputs[i] = packet.Packet{}
	}
}

// ClearInputs resets the inputs after a call.
func (cc *Context) ClearInputs() {
	cc.inputTS = timestamp.Unstarted
	clear(cc.inputs)
}

// TakeEmissions returns, per output position, the packets emitted since the
// previous call together with the stream's current bound.
func (cc *Context) TakeEmissions() []Emission {
	out := make([]Emission, len(cc.outputs))
	for i, o := range cc.outputs {
		out[i] = Emission{Packets: o.pending, Bound: o.next, Closed: o.closed}
		o.pending = nil
	}
	return out
}

// AdvanceOutputBounds raises the bound of every open output to ts.
func (cc *Context) AdvanceOutputBounds(ts timestamp.Timestamp) {
	for _, o := range cc.outputs {
		if !o.closed {
			o.SetNextTimestampBound(ts)
		}
	}
}

// CloseOutputs closes every output stream.
func (cc *Context) CloseOutputs() {
	for _, o := range cc.outputs {
		o.Close()
	}
}

// OutputSidePackets returns the output side packets by tag map position.
// Unset entries are empty.
func (cc *Context) OutputSidePackets() []packet.Packet {
	return append([]packet.Packet(nil), cc.outSide...)
}
