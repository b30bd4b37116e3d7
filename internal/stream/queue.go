package stream

import (
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/timestamp"
)

// Queue is the FIFO of one consumer input. It never reorders or coalesces
// packets.
type Queue struct {
	stream   *Stream
	node     int
	port     int
	packets  []packet.Packet
	bound    timestamp.Timestamp
	limit    int
	detached bool
}

// Node returns the index of the consuming node.
func (q *Queue) Node() int { return q.node }

// Port returns the input position of the queue on its node.
func (q *Queue) Port() int { return q.port }

// Stream returns the stream feeding the queue.
func (q *Queue) Stream() *Stream { return q.stream }

// Len returns the number of queued packets.
func (q *Queue) Len() int { return len(q.packets) }

// Full reports whether the queue reached its limit.
func (q *Queue) Full() bool {
	return !q.detached && q.limit >= 0 && len(q.packets) >= q.limit
}

// Head returns the oldest queued packet.
func (q *Queue) Head() (packet.Packet, bool) {
	if len(q.packets) == 0 {
		return packet.Packet{}, false
	}
	return q.packets[0], true
}

// Pop removes and returns the oldest packet. Producers blocked on a full
// queue are woken.
func (q *Queue) Pop() (packet.Packet, bool) {
	if len(q.packets) == 0 {
		return packet.Packet{}, false
	}
	p := q.packets[0]
	q.packets[0] = packet.Packet{}
	q.packets = q.packets[1:]
	q.stream.signalSpace()
	return p, true
}

// Bound returns the smallest timestamp a packet arriving after the queued
// ones can carry. It is timestamp.Done once the stream is closed.
func (q *Queue) Bound() timestamp.Timestamp { return q.bound }

// NextTimestamp returns the head's timestamp, or Bound for an empty queue.
func (q *Queue) NextTimestamp() timestamp.Timestamp {
	if len(q.packets) > 0 {
		return q.packets[0].Timestamp()
	}
	return q.bound
}

// IsDone reports whether the queue is empty and can receive no more packets.
func (q *Queue) IsDone() bool { return len(q.packets) == 0 && q.bound == timestamp.Done }

// Detach drops queued packets and ignores future ones. It is used when the
// consuming node has closed.
func (q *Queue) Detach() {
	q.detached = true
	clear(q.packets)
	q.packets = nil
	q.bound = timestamp.Done
	q.stream.signalSpace()
}

func (q *Queue) push(p packet.Packet) {
	if q.detached {
		return
	}
	q.packets = append(q.packets, p)
	q.bound = p.Timestamp().NextAllowedInStream()
}

func (q *Queue) raiseBound(ts timestamp.Timestamp) {
	if q.detached {
		return
	}
	if ts > q.bound {
		q.bound = ts
	}
}
