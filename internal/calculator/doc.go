// Package calculator defines the contract between the graph engine and the
// calculators it schedules.
//
// A calculator type is described by a registry entry whose GetContract
// function declares, for a concrete node, the packet type of every input and
// output stream and side packet. At run time the engine creates one
// Calculator per node and drives it through Open, any number of Process calls
// (one per settled input timestamp) and Close, each time passing the node's
// Context. A Calculator is never invoked concurrently with itself.
package calculator
