package calcgraph

import (
	"context"
	"errors"
	"sync"

	"github.com/vk/streamgridgo/internal/packet"
)

// ErrStreamDone is returned by Poller.Next once the polled stream is closed
// and every packet was read.
var ErrStreamDone = errors.New("output stream is done")

// Poller buffers the packets of one stream for a caller that pulls them.
type Poller struct {
	stream string

	mu      sync.Mutex
	gen     uint64 // run the poller is bound to
	packets []packet.Packet
	done    bool
	notify  chan struct{}
}

func newPoller(name string) *Poller {
	return &Poller{stream: name, notify: make(chan struct{})}
}

// Stream returns the name of the polled stream.
func (p *Poller) Stream() string { return p.stream }

// QueueSize returns the number of buffered packets.
func (p *Poller) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.packets)
}

// Next returns the next packet, waiting for one if needed.
func (p *Poller) Next(ctx context.Context) (packet.Packet, error) {
	for {
		p.mu.Lock()
		if len(p.packets) > 0 {
			pk := p.packets[0]
			p.packets[0] = packet.Packet{}
			p.packets = p.packets[1:]
			p.mu.Unlock()
			return pk, nil
		}
		if p.done {
			p.mu.Unlock()
			return packet.Packet{}, ErrStreamDone
		}
		notify := p.notify
		p.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return packet.Packet{}, ctx.Err()
		}
	}
}

func (p *Poller) push(gen uint64, pk packet.Packet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.packets = append(p.packets, pk)
	p.wake()
}

func (p *Poller) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || p.done {
		return
	}
	p.done = true
	p.wake()
}

// reset binds the poller to a new run. Calls made on behalf of older runs
// are ignored from then on.
func (p *Poller) reset(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen = gen
	p.packets = nil
	p.done = false
}

func (p *Poller) wake() {
	close(p.notify)
	p.notify = make(chan struct{})
}
