// Package calcgraph runs a validated calculator graph.
//
// # Lifecycle
//
//	New ──▶ Configured ──StartRun──▶ Running ──Close──▶ Closed
//	                                   │  ▲                │
//	                                   │  └─────Reset──────┘
//	                                   ▼
//	                                 Done (every node closed)
//
// A Graph is created from exactly one of a GraphConfig, its HCL text, or a
// binary graph file. Observers and pollers are attached while the graph is
// configured. StartRun binds the side packets, creates the streams, opens
// the calculators in topological order and starts the workers.
//
// # Running
//
// Callers push packets with AddPacketToInputStream. Every stream enforces
// strictly increasing timestamps and the graph input add mode decides what
// happens when a consumer queue is full: WAIT_TILL_NOT_FULL blocks the
// caller until a consumer drains. Node invocations happen on the executor's
// workers; a node never runs concurrently with itself.
//
// Observer callbacks run on one dispatcher goroutine, in the order packets
// reached the observed streams. WaitUntilIdle returns once no node is queued
// or running and every callback for the packets seen so far has returned.
//
// # Errors
//
// Ordering and packet type violations fail the call that introduced them.
// Errors raised by calculators abort the run and surface from WaitUntilIdle,
// WaitUntilDone and Close, and through HasError.
//
// # Thread-Safety
//
// All Graph methods are safe for concurrent use. Callbacks must not call
// WaitUntilIdle, WaitUntilDone or Close.
package calcgraph
