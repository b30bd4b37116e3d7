package calcgraph

import (
	"fmt"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/stream"
	"github.com/vk/streamgridgo/internal/validate"
)

// nodeRuntime is the per run state of one node. It is guarded by the graph
// lock; the calculator itself is only touched by the worker running the
// node.
type nodeRuntime struct {
	info *validate.NodeInfo
	calc calculator.Calculator
	cc   *calculator.Context

	inputs   []*stream.Queue // by input position
	required []bool
	outputs  []*stream.Stream // by output position

	offset    int64
	hasOffset bool

	opened        bool
	closed        bool
	stopRequested bool
	// throttled is set on a source that found an output queue full.
	throttled bool
	// relief lets a throttled source run once despite full queues.
	relief bool
}

func newNodeRuntime(info *validate.NodeInfo) *nodeRuntime {
	n := &nodeRuntime{info: info, calc: info.Registration.New()}
	n.offset, n.hasOffset = info.Contract.TimestampOffset()
	return n
}

func (n *nodeRuntime) name() string { return n.info.Name }

func (n *nodeRuntime) isSource() bool { return len(n.inputs) == 0 }

func (n *nodeRuntime) outputsFull() bool {
	for _, s := range n.outputs {
		if s.Full() {
			return true
		}
	}
	return false
}

// fullOutputs returns the names of the node's full output streams.
func (n *nodeRuntime) fullOutputs() []string {
	var names []string
	for _, s := range n.outputs {
		if s.Full() {
			names = append(names, s.Name())
		}
	}
	return names
}

// callSafely turns a panicking calculator into an error.
func callSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
