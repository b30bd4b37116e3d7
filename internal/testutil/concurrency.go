package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/registry"
)

// ExecutionRecord is the time span of one Process call.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// MockSleeperModule is a shared, self-contained module for concurrency tests.
// Its SleepCalculator sleeps in Process and records the span of each call,
// keyed by node name.
type MockSleeperModule struct {
	ExecutionTimes map[string][]ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(completionChan chan<- string, sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string][]ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

// Records returns the recorded spans of node.
func (m *MockSleeperModule) Records(node string) []ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutionRecord(nil), m.ExecutionTimes[node]...)
}

type sleeper struct {
	calculator.Base
	m *MockSleeperModule
}

func (s *sleeper) Process(cc *calculator.Context) error {
	startTime := time.Now()
	time.Sleep(s.m.sleepDuration)
	endTime := time.Now()

	s.m.mu.Lock()
	s.m.ExecutionTimes[cc.NodeName()] = append(s.m.ExecutionTimes[cc.NodeName()], ExecutionRecord{Start: startTime, End: endTime})
	s.m.mu.Unlock()

	if s.m.completionChan != nil {
		s.m.completionChan <- cc.NodeName()
	}
	outs := cc.OutputTags().Entries()
	for i, port := range cc.InputTags().Entries() {
		if i >= len(outs) {
			break
		}
		out := cc.Output(outs[i].Tag, outs[i].Index)
		if err := out.Add(cc.Input(port.Tag, port.Index), cc.InputTimestamp()); err != nil {
			return err
		}
	}
	return nil
}

// Register registers SleepCalculator. The i-th input is forwarded to the
// i-th output, if there is one.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name: "SleepCalculator",
		GetContract: func(c *calculator.Contract) error {
			if c.Outputs().Len() > c.Inputs().Len() {
				return fmt.Errorf("SleepCalculator has %d outputs for %d inputs", c.Outputs().Len(), c.Inputs().Len())
			}
			for i, in := range c.Inputs().All() {
				in.SetAny().Optional()
				if i < c.Outputs().Len() {
					c.Outputs().Index(i).SetSameAs(in)
				}
			}
			c.SetTimestampOffset(0)
			return nil
		},
		New: func() calculator.Calculator { return &sleeper{m: m} },
	})
}
