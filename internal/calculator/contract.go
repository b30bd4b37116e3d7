package calculator

import (
	"fmt"

	"github.com/vk/streamgridgo/internal/portid"
	"github.com/zclconf/go-cty/cty"
)

// PortSpec is the declared packet type of one port.
type PortSpec struct {
	name     string
	typeName string
	anyType  bool
	sameAs   *PortSpec
	optional bool
}

// Set declares a concrete registered packet type.
func (p *PortSpec) Set(typeName string) *PortSpec {
	p.typeName, p.anyType, p.sameAs = typeName, false, nil
	return p
}

// SetAny accepts packets of any type. The concrete type is taken from the
// port's peers when possible.
func (p *PortSpec) SetAny() *PortSpec {
	p.typeName, p.anyType, p.sameAs = "", true, nil
	return p
}

// SetSameAs declares that the port carries the same type as other.
func (p *PortSpec) SetSameAs(other *PortSpec) *PortSpec {
	p.typeName, p.anyType, p.sameAs = "", false, other
	return p
}

// Optional marks an input port as not required for readiness.
func (p *PortSpec) Optional() *PortSpec {
	p.optional = true
	return p
}

// IsOptional reports whether the port was marked optional.
func (p *PortSpec) IsOptional() bool { return p.optional }

// Name returns the stream or side packet name bound to the port.
func (p *PortSpec) Name() string { return p.name }

// Declared returns the declared type, following SameAs links. isAny is true
// when the chain ends in SetAny. ok is false when no type was declared or
// the links form a loop.
func (p *PortSpec) Declared() (typeName string, isAny bool, ok bool) {
	seen := map[*PortSpec]bool{}
	for cur := p; cur != nil; cur = cur.sameAs {
		if seen[cur] {
			return "", false, false
		}
		seen[cur] = true
		switch {
		case cur.typeName != "":
			return cur.typeName, false, true
		case cur.anyType:
			return "", true, true
		case cur.sameAs == nil:
			return "", false, false
		}
	}
	return "", false, false
}

// SameAsTarget returns the port this port was linked to with SetSameAs.
func (p *PortSpec) SameAsTarget() *PortSpec { return p.sameAs }

// PortSet holds the specs of all ports of one kind, addressed by tag and
// index.
type PortSet struct {
	tags  *portid.TagMap
	specs []*PortSpec
}

func newPortSet(tags *portid.TagMap) *PortSet {
	s := &PortSet{tags: tags}
	for _, p := range tags.Entries() {
		s.specs = append(s.specs, &PortSpec{name: p.Name})
	}
	return s
}

// TagMap returns the underlying tag map.
func (s *PortSet) TagMap() *portid.TagMap { return s.tags }

// Len returns the number of ports.
func (s *PortSet) Len() int { return len(s.specs) }

// HasTag reports whether any port uses tag.
func (s *PortSet) HasTag(tag string) bool { return s.tags.NumEntries(tag) > 0 }

// NumEntries returns the number of ports with tag.
func (s *PortSet) NumEntries(tag string) int { return s.tags.NumEntries(tag) }

// Tags returns the tags in use.
func (s *PortSet) Tags() []string { return s.tags.Tags() }

// Get returns the spec of the port addressed by tag and index, or nil.
func (s *PortSet) Get(tag string, index int) *PortSpec {
	pos := s.tags.Position(tag, index)
	if pos < 0 {
		return nil
	}
	return s.specs[pos]
}

// Index returns the spec at position i in tag map order.
func (s *PortSet) Index(i int) *PortSpec { return s.specs[i] }

// All returns every spec in tag map order.
func (s *PortSet) All() []*PortSpec { return s.specs }

// Contract collects what a calculator declares about one node.
type Contract struct {
	node              string
	options           cty.Value
	inputs            *PortSet
	outputs           *PortSet
	inputSidePackets  *PortSet
	outputSidePackets *PortSet
	timestampOffset   *int64
}

// NewContract prepares the contract for a node with the given port maps and
// resolved options.
func NewContract(node string, inputs, outputs, inputSide, outputSide *portid.TagMap, options cty.Value) *Contract {
	return &Contract{
		node:              node,
		options:           options,
		inputs:            newPortSet(inputs),
		outputs:           newPortSet(outputs),
		inputSidePackets:  newPortSet(inputSide),
		outputSidePackets: newPortSet(outputSide),
	}
}

func (c *Contract) NodeName() string            { return c.node }
func (c *Contract) Options() cty.Value          { return c.options }
func (c *Contract) Inputs() *PortSet            { return c.inputs }
func (c *Contract) Outputs() *PortSet           { return c.outputs }
func (c *Contract) InputSidePackets() *PortSet  { return c.inputSidePackets }
func (c *Contract) OutputSidePackets() *PortSet { return c.outputSidePackets }

// SetTimestampOffset declares that every output packet produced for input
// timestamp t is stamped t+offset. The engine uses it to advance output
// bounds when Process emits nothing.
func (c *Contract) SetTimestampOffset(offset int64) {
	c.timestampOffset = &offset
}

// TimestampOffset returns the declared offset, if any.
func (c *Contract) TimestampOffset() (int64, bool) {
	if c.timestampOffset == nil {
		return 0, false
	}
	return *c.timestampOffset, true
}

// Check verifies that every port received a type.
func (c *Contract) Check() error {
	for _, set := range []struct {
		kind string
		ps   *PortSet
	}{
		{"input stream", c.inputs},
		{"output stream", c.outputs},
		{"input side packet", c.inputSidePackets},
		{"output side packet", c.outputSidePackets},
	} {
		for i, spec := range set.ps.specs {
			if _, _, ok := spec.Declared(); !ok {
				return fmt.Errorf("%s %q of node %q has no declared type", set.kind, set.ps.tags.Entries()[i], c.node)
			}
		}
	}
	return nil
}
