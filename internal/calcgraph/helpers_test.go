package calcgraph

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/vk/streamgridgo/internal/timestamp"
	"github.com/vk/streamgridgo/modules/counter"
	"github.com/vk/streamgridgo/modules/failing"
	"github.com/vk/streamgridgo/modules/image"
	"github.com/vk/streamgridgo/modules/passthrough"
	"github.com/vk/streamgridgo/modules/sidepacket"
	"github.com/vk/streamgridgo/modules/threshold"
)

const testTimeout = 5 * time.Second

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testModule registers the calculators only the tests use.
type testModule struct {
	blocker *blocker
}

func (m *testModule) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name: "JoinCalculator",
		GetContract: func(c *calculator.Contract) error {
			if !c.Inputs().HasTag("A") || !c.Inputs().HasTag("B") {
				return errors.New("JoinCalculator needs A and B input streams")
			}
			c.Inputs().Get("A", 0).SetAny()
			c.Inputs().Get("B", 0).SetAny()
			if c.Outputs().Len() == 1 {
				c.Outputs().Index(0).Set("int")
			}
			return nil
		},
		New: func() calculator.Calculator { return &join{} },
	})
	r.RegisterCalculator(&registry.Registration{
		Name: "PanicCalculator",
		GetContract: func(c *calculator.Contract) error {
			for _, in := range c.Inputs().All() {
				in.SetAny()
			}
			return nil
		},
		New: func() calculator.Calculator { return panicker{} },
	})
	if m.blocker != nil {
		b := m.blocker
		r.RegisterCalculator(&registry.Registration{
			Name: "BlockingCalculator",
			GetContract: func(c *calculator.Contract) error {
				in := c.Inputs().Index(0).SetAny()
				if c.Outputs().Len() == 1 {
					c.Outputs().Index(0).SetSameAs(in)
				}
				return nil
			},
			New: func() calculator.Calculator { return b },
		})
	}
}

// join counts the timestamps at which both of its inputs carried a packet.
type join struct {
	calculator.Base
	count int64
}

func (j *join) Process(cc *calculator.Context) error {
	if cc.Input("A", 0).IsEmpty() || cc.Input("B", 0).IsEmpty() {
		return nil
	}
	j.count++
	if cc.OutputTags().Len() == 0 {
		return nil
	}
	return cc.Output(cc.OutputTags().Entries()[0].Tag, 0).Add(packet.CreateInt(j.count), cc.InputTimestamp())
}

type panicker struct{ calculator.Base }

func (panicker) Process(*calculator.Context) error { panic("calculator exploded") }

// blocker holds every Process call until release is closed.
type blocker struct {
	calculator.Base
	entered chan struct{}
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blocker) Process(cc *calculator.Context) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	if cc.OutputTags().Len() == 0 {
		return nil
	}
	return cc.Output("", 0).Add(cc.Input("", 0), cc.InputTimestamp())
}

func (b *blocker) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-b.entered:
	case <-time.After(testTimeout):
		t.Fatal("BlockingCalculator was never invoked")
	}
}

func testRegistry(extra ...registry.Module) *registry.Registry {
	modules := []registry.Module{
		&passthrough.Module{},
		&sidepacket.Module{},
		&image.Module{},
		&counter.Module{},
		&failing.Module{},
		&threshold.Module{},
	}
	return registry.New(append(modules, extra...)...)
}

// newTestGraph builds a graph from HCL text and closes it when the test
// ends.
func newTestGraph(t *testing.T, src string, opts ...Option) *Graph {
	t.Helper()
	opts = append([]Option{WithRegistry(testRegistry()), WithLogger(discardLogger())}, opts...)
	g, err := New(context.Background(), Source{Text: src}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = g.Close(ctx)
	})
	return g
}

// collector records observed packets.
type collector struct {
	mu      sync.Mutex
	packets []packet.Packet
}

func (c *collector) observe(_ string, p packet.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, p)
	return nil
}

func (c *collector) snapshot() []packet.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]packet.Packet(nil), c.packets...)
}

func (c *collector) ints(t *testing.T) []int64 {
	t.Helper()
	var out []int64
	for _, p := range c.snapshot() {
		v, err := packet.GetInt(p)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func (c *collector) timestamps() []timestamp.Timestamp {
	var out []timestamp.Timestamp
	for _, p := range c.snapshot() {
		out = append(out, p.Timestamp())
	}
	return out
}

func addInts(t *testing.T, g *Graph, stream string, tss ...int64) {
	t.Helper()
	ctx := testContext(t)
	for _, ts := range tss {
		require.NoError(t, g.AddPacketToInputStream(ctx, stream, packet.CreateInt(ts), timestamp.New(ts)))
	}
}
