// Package scheduler decides when a node of a running graph can be invoked.
//
// # How It Works
//
// Every input of a node is a queue of timestamped packets plus a bound, the
// smallest timestamp a future packet can carry. Check computes the settled
// timestamp t: the minimum over queue heads and the bounds of empty queues.
// The node is ready when some queue holds a packet at t and every empty
// queue's bound lies past t, so no packet at t can still arrive. Once every
// queue is done the node can be closed.
//
// Tracker keeps the per node bookkeeping of a run: a node is either idle,
// queued for a worker, or running, and never runs concurrently with itself.
// The number of queued or running nodes tells the graph when it is idle.
//
// # Relationship with Other Components
//
//   - **Stream:** supplies the queues that Check and Take inspect
//   - **Executor:** receives the node indexes that Tracker submits
//   - **CalculatorGraph:** notifies the Tracker whenever a queue changes
package scheduler
