package calculator

import "errors"

// ErrStop is returned from Process by source calculators (nodes without
// input streams) when they have nothing more to produce. It is not treated
// as a failure.
var ErrStop = errors.New("calculator: stop")

// Calculator is the behaviour of a single graph node.
type Calculator interface {
	// Open is called once before any Process call. Output side packets are
	// usually set here.
	Open(cc *Context) error
	// Process is called for every input timestamp at which the node is ready,
	// or repeatedly for source nodes until it returns ErrStop.
	Process(cc *Context) error
	// Close is called once when the node's inputs are done or the graph is
	// shutting down, even after an error.
	Close(cc *Context) error
}

// Base provides no-op Open and Close methods for calculators that only need
// Process.
type Base struct{}

// Open implements Calculator.
func (Base) Open(*Context) error { return nil }

// Close implements Calculator.
func (Base) Close(*Context) error { return nil }
