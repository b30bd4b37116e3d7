package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/timestamp"
)

// AddMode selects what adding to a stream with a full consumer queue does.
type AddMode int

const (
	// WaitTillNotFull blocks the adder until every consumer queue has room.
	WaitTillNotFull AddMode = iota
	// AddIfNotFull fails with errs.ErrQueueFull instead of blocking.
	AddIfNotFull
)

// String returns the string representation of AddMode.
func (m AddMode) String() string {
	switch m {
	case WaitTillNotFull:
		return "WAIT_TILL_NOT_FULL"
	case AddIfNotFull:
		return "ADD_IF_NOT_FULL"
	default:
		return fmt.Sprintf("AddMode(%d)", int(m))
	}
}

// Observer receives stream events, typically for metrics. Methods are
// called with the graph lock held.
type Observer interface {
	PacketAdded(stream string)
	Throttled(stream string)
}

// Config describes a stream to New.
type Config struct {
	Name string
	// TypeName is the registered type packets must conform to. Empty
	// accepts anything.
	TypeName string
	// Limit is the consumer queue limit, -1 for unbounded.
	Limit int
	// Lock is the graph lock guarding all streams of a graph.
	Lock sync.Locker
	// Abort is closed when the graph shuts down. Blocked adders return.
	Abort <-chan struct{}
	// OnUpdate is called, with Lock held, after packets, bounds or
	// closure were propagated to the consumer queues.
	OnUpdate func(s *Stream)
	// OnWait is called, with Lock held, right before an adder blocks.
	OnWait   func(s *Stream)
	Observer Observer
}

// Stream is the producer side of one named stream.
type Stream struct {
	cfg    Config
	queues []*Queue
	next   timestamp.Timestamp
	closed bool

	// blocked counts adders waiting for a space signal. It drops to zero
	// when space is signalled, before the woken adders reacquire the lock.
	blocked int
	gen     uint64
	relief  bool
	space   chan struct{}
}

// New creates a stream without consumers.
func New(cfg Config) *Stream {
	return &Stream{cfg: cfg, next: timestamp.PreStream, space: make(chan struct{})}
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.cfg.Name }

// TypeName returns the registered type of the stream, or "".
func (s *Stream) TypeName() string { return s.cfg.TypeName }

// AddConsumer creates the queue for input port of node.
func (s *Stream) AddConsumer(node, port int) *Queue {
	q := &Queue{stream: s, node: node, port: port, bound: timestamp.PreStream, limit: s.cfg.Limit}
	s.queues = append(s.queues, q)
	return q
}

// Queues returns the consumer queues.
func (s *Stream) Queues() []*Queue { return s.queues }

// NextTimestamp returns the smallest timestamp the stream still accepts.
func (s *Stream) NextTimestamp() timestamp.Timestamp { return s.next }

// IsClosed reports whether the stream was closed.
func (s *Stream) IsClosed() bool { return s.closed }

// Full reports whether any consumer queue is full.
func (s *Stream) Full() bool {
	for _, q := range s.queues {
		if q.Full() {
			return true
		}
	}
	return false
}

// Waiting reports whether an adder is blocked on a full queue.
func (s *Stream) Waiting() bool { return s.blocked > 0 }

// Relieve lets the blocked adders push past the queue limit once.
func (s *Stream) Relieve() {
	if s.blocked == 0 {
		return
	}
	s.relief = true
	s.signalSpace()
}

// Add appends p, stamped with ts, from outside the graph. It takes the
// graph lock. In WaitTillNotFull mode it waits for room in every consumer
// queue; in AddIfNotFull mode it fails with errs.ErrQueueFull and leaves the
// stream untouched.
func (s *Stream) Add(ctx context.Context, p packet.Packet, ts timestamp.Timestamp, mode AddMode) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	p = p.At(ts)
	throttled := false
	for {
		if err := s.check(p, "Add"); err != nil {
			return err
		}
		if !s.Full() || s.relief {
			s.relief = false
			s.push(p)
			return nil
		}
		if mode == AddIfNotFull {
			return fmt.Errorf("stream %q: %w", s.cfg.Name, errs.ErrQueueFull)
		}
		if !throttled {
			throttled = true
			if s.cfg.Observer != nil {
				s.cfg.Observer.Throttled(s.cfg.Name)
			}
		}
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

// Emit appends p from a node output. It never blocks.
func (s *Stream) Emit(p packet.Packet) error {
	if err := s.check(p, "Emit"); err != nil {
		return err
	}
	s.push(p)
	return nil
}

// SetNextTimestampBound promises that no packet before ts will follow.
func (s *Stream) SetNextTimestampBound(ts timestamp.Timestamp) {
	if s.closed || ts <= s.next {
		return
	}
	s.next = ts
	for _, q := range s.queues {
		q.raiseBound(ts)
	}
	s.update()
}

// Close ends the stream. Consumers see timestamp.Done once their queues
// drain.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.next = timestamp.Done
	for _, q := range s.queues {
		q.raiseBound(timestamp.Done)
	}
	s.signalSpace()
	s.update()
}

func (s *Stream) check(p packet.Packet, op string) error {
	if s.closed {
		return errs.Lifecycle(s.cfg.Name, op, "stream %q is closed", s.cfg.Name)
	}
	ts := p.Timestamp()
	if !ts.IsAllowedInStream() {
		return errs.Ordering(s.cfg.Name, op, "timestamp %s is not allowed in a stream", ts)
	}
	if ts < s.next {
		return errs.Ordering(s.cfg.Name, op,
			"Current minimum expected timestamp is %s but received %s.", s.next, ts)
	}
	if s.cfg.TypeName != "" {
		if err := packet.Conforms(p, s.cfg.TypeName); err != nil {
			return fmt.Errorf("stream %q: %w", s.cfg.Name, err)
		}
	}
	return nil
}

func (s *Stream) push(p packet.Packet) {
	for _, q := range s.queues {
		q.push(p)
	}
	s.next = p.Timestamp().NextAllowedInStream()
	if s.cfg.Observer != nil {
		s.cfg.Observer.PacketAdded(s.cfg.Name)
	}
	s.update()
}

func (s *Stream) update() {
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(s)
	}
}

// wait releases the lock until queue space may be available.
func (s *Stream) wait(ctx context.Context) error {
	s.blocked++
	gen := s.gen
	space := s.space
	if s.cfg.OnWait != nil {
		s.cfg.OnWait(s)
	}
	s.cfg.Lock.Unlock()
	var err error
	select {
	case <-space:
	case <-ctx.Done():
		err = ctx.Err()
	case <-s.cfg.Abort:
		err = errs.Wrap(errs.KindLifecycle, errs.ErrGraphClosed, s.cfg.Name, "Add")
	}
	s.cfg.Lock.Lock()
	if err != nil && s.gen == gen {
		s.blocked--
	}
	return err
}

// signalSpace wakes every blocked adder.
func (s *Stream) signalSpace() {
	if s.blocked == 0 {
		return
	}
	s.blocked = 0
	s.gen++
	close(s.space)
	s.space = make(chan struct{})
}
