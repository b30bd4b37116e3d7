// Package stream implements graph streams and the per-consumer queues they
// feed.
//
// A Stream is the producer side of one named stream. Every node input bound
// to the stream owns a Queue. Streams and queues are not synchronized by
// themselves: every method must be called with the graph's Locker held,
// except Add, which takes the lock itself and releases it while waiting for
// queue space.
package stream
