package scheduler

import (
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/timestamp"
)

// Queue is the view of an input queue the scheduler needs.
type Queue interface {
	Head() (packet.Packet, bool)
	Pop() (packet.Packet, bool)
	NextTimestamp() timestamp.Timestamp
	IsDone() bool
}

// State is the outcome of a readiness check.
type State int

const (
	// NotReady means some input may still receive a packet at the settled
	// timestamp.
	NotReady State = iota
	// Ready means the inputs at the settled timestamp are complete.
	Ready
	// Done means every input is closed and drained.
	Done
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Done:
		return "Done"
	default:
		return "NotReady"
	}
}

// Check returns the readiness of a node with the given input queues and the
// settled timestamp.
func Check[Q Queue](queues []Q) (State, timestamp.Timestamp) {
	settled := timestamp.Done
	for _, q := range queues {
		if ts := q.NextTimestamp(); ts < settled {
			settled = ts
		}
	}
	if settled == timestamp.Done {
		return Done, settled
	}
	for _, q := range queues {
		if _, ok := q.Head(); !ok && q.NextTimestamp() <= settled {
			return NotReady, settled
		}
	}
	return Ready, settled
}

// Take pops the packets stamped ts and returns them by queue position;
// queues without a packet at ts yield an empty packet. complete is false
// when a required queue had no packet at ts.
func Take[Q Queue](queues []Q, ts timestamp.Timestamp, required []bool) (inputs []packet.Packet, complete bool) {
	inputs = make([]packet.Packet, len(queues))
	complete = true
	for i, q := range queues {
		if head, ok := q.Head(); ok && head.Timestamp() == ts {
			inputs[i], _ = q.Pop()
			continue
		}
		if i < len(required) && required[i] {
			complete = false
		}
	}
	return inputs, complete
}
