package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/zclconf/go-cty/cty"
)

// Module is the interface that all calculator modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// OptionsSpec describes the options message of an option-bearing calculator.
// Legacy `options` blocks must use Extension as their name and typed
// `node_options` blocks TypeURL as their type URL.
type OptionsSpec struct {
	Extension string
	TypeURL   string
	// Type is the cty object type of the message. Attributes are usually
	// optional so that configs may set only some fields.
	Type cty.Type
}

// Registration holds the compiled Go parts of a calculator type.
type Registration struct {
	Name        string
	GetContract func(c *calculator.Contract) error
	New         func() calculator.Calculator
	Options     *OptionsSpec
}

// Registry holds all registered calculators for a single engine instance.
type Registry struct {
	mu          sync.RWMutex
	calculators map[string]*Registration
}

// New creates and initializes a new Registry, registering the given modules.
func New(modules ...Module) *Registry {
	r := &Registry{calculators: make(map[string]*Registration)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterCalculator registers a calculator type. Registering the same name
// twice, or an incomplete registration, is a programmer error and panics.
func (r *Registry) RegisterCalculator(reg *Registration) {
	if reg == nil || reg.Name == "" || reg.GetContract == nil || reg.New == nil {
		panic(fmt.Sprintf("incomplete calculator registration: %+v", reg))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calculators[reg.Name]; exists {
		panic(fmt.Sprintf("calculator with name '%s' already registered", reg.Name))
	}
	slog.Debug("Registering calculator.", "name", reg.Name, "has_options", reg.Options != nil)
	r.calculators[reg.Name] = reg
}

// Lookup returns the registration for a calculator type name.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.calculators[name]
	return reg, ok
}

// Names returns the registered calculator names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.calculators))
	for name := range r.calculators {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
