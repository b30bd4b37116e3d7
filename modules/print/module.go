// Package print provides PrintCalculator, which writes every packet it
// receives in a readable form.
package print

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/registry"
)

// Name is the registered calculator type.
const Name = "PrintCalculator"

// Module implements the registry.Module interface for this package. Out
// receives the printed lines; it defaults to os.Stdout.
type Module struct {
	Out io.Writer
}

// syncWriter serializes writes from print nodes running on different
// workers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Calculator prints the packets on all of its inputs.
type Calculator struct {
	calculator.Base
	out io.Writer
}

// GetContract accepts any number of inputs of any type.
func GetContract(c *calculator.Contract) error {
	if c.Outputs().Len() != 0 {
		return fmt.Errorf("%s has no output streams", Name)
	}
	for _, in := range c.Inputs().All() {
		in.SetAny().Optional()
	}
	return nil
}

// Process prints every packet present at the input timestamp, in tag map
// order.
func (p *Calculator) Process(cc *calculator.Context) error {
	cc.Logger().Debug("Printing input", "timestamp", cc.InputTimestamp())
	for _, port := range cc.InputTags().Entries() {
		pk := cc.Input(port.Tag, port.Index)
		if pk.IsEmpty() {
			continue
		}
		if _, err := fmt.Fprintf(p.out, "      %s = %s\n", port.Name, pk); err != nil {
			return err
		}
	}
	return nil
}

// Register registers the calculator with the engine.
func (m *Module) Register(r *registry.Registry) {
	var out io.Writer = os.Stdout
	if m.Out != nil {
		out = m.Out
	}
	w := &syncWriter{w: out}
	r.RegisterCalculator(&registry.Registration{
		Name:        Name,
		GetContract: GetContract,
		New:         func() calculator.Calculator { return &Calculator{out: w} },
	})
}
