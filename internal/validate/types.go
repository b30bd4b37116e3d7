package validate

import (
	"strings"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/packet"
)

// typeSolver groups ports, streams and side packets that must carry the
// same packet type into classes with a union-find, then narrows each class
// to one registered type.
type typeSolver struct {
	parent []int
	types  []string
	ports  map[*calculator.PortSpec]int
	names  map[string]int
}

func newTypeSolver() *typeSolver {
	return &typeSolver{
		ports: make(map[*calculator.PortSpec]int),
		names: make(map[string]int),
	}
}

func (s *typeSolver) newSlot() int {
	s.parent = append(s.parent, len(s.parent))
	s.types = append(s.types, "")
	return len(s.parent) - 1
}

func (s *typeSolver) portSlot(spec *calculator.PortSpec) int {
	if id, ok := s.ports[spec]; ok {
		return id
	}
	id := s.newSlot()
	s.ports[spec] = id
	return id
}

func (s *typeSolver) nameSlot(key string) int {
	if id, ok := s.names[key]; ok {
		return id
	}
	id := s.newSlot()
	s.names[key] = id
	return id
}

func (s *typeSolver) find(id int) int {
	for s.parent[id] != id {
		s.parent[id] = s.parent[s.parent[id]]
		id = s.parent[id]
	}
	return id
}

func (s *typeSolver) union(a, b int) {
	ra, rb := s.find(a), s.find(b)
	if ra != rb {
		s.parent[rb] = ra
	}
}

// narrow records typeName for the class of id. It returns the conflicting
// class type when typeName cannot be reconciled with it.
func (s *typeSolver) narrow(id int, typeName string) (string, bool) {
	root := s.find(id)
	merged, ok := mergeTypes(s.types[root], typeName)
	if !ok {
		return s.types[root], false
	}
	s.types[root] = merged
	return merged, true
}

func (s *typeSolver) typeOf(id int) string { return s.types[s.find(id)] }

// mergeTypes returns the narrower of two compatible registered types. An
// empty name is compatible with everything.
func mergeTypes(a, b string) (string, bool) {
	switch {
	case a == "" || a == b:
		return b, true
	case b == "":
		return a, true
	case narrower(a, b):
		return a, true
	case narrower(b, a):
		return b, true
	default:
		return "", false
	}
}

func narrower(a, b string) bool {
	switch b {
	case packet.KindImageFrame.String():
		return a == packet.TypeImageFrameRGB
	case packet.KindProto.String():
		return strings.HasPrefix(a, packet.ProtoTypeName(""))
	}
	return false
}

type portGroup struct {
	kind  string
	set   *calculator.PortSet
	key   func(name string) string
	types *[]string
}

func streamKey(name string) string     { return "stream:" + name }
func sidePacketKey(name string) string { return "side_packet:" + name }

func (n *NodeInfo) portGroups() []portGroup {
	c := n.Contract
	return []portGroup{
		{"input stream", c.Inputs(), streamKey, &n.InputTypes},
		{"output stream", c.Outputs(), streamKey, &n.OutputTypes},
		{"input side packet", c.InputSidePackets(), sidePacketKey, &n.InputSideTypes},
		{"output side packet", c.OutputSidePackets(), sidePacketKey, &n.OutputSideTypes},
	}
}

// resolveTypes assigns a registered type to every stream, side packet and
// node port. Any and SameAs declarations take the type of their peers.
func (v *ValidatedGraphConfig) resolveTypes() error {
	s := newTypeSolver()

	for _, n := range v.nodes {
		for _, g := range n.portGroups() {
			for _, spec := range g.set.All() {
				s.union(s.nameSlot(g.key(spec.Name())), s.portSlot(spec))
				if target := spec.SameAsTarget(); target != nil {
					s.union(s.portSlot(spec), s.portSlot(target))
				}
			}
		}
	}

	for _, n := range v.nodes {
		for _, g := range n.portGroups() {
			entries := g.set.TagMap().Entries()
			for i, spec := range g.set.All() {
				typeName, isAny, _ := spec.Declared()
				if isAny || typeName == "" {
					continue
				}
				if !packet.KnownType(typeName) {
					return configError("%s %q of node %q declares unknown packet type %q", g.kind, entries[i], n.Name, typeName)
				}
				if existing, ok := s.narrow(s.portSlot(spec), typeName); !ok {
					return configError("%s %q of node %q declares type %q, which conflicts with %q",
						g.kind, entries[i], n.Name, typeName, existing)
				}
			}
		}
	}

	for _, n := range v.nodes {
		for _, g := range n.portGroups() {
			types := make([]string, g.set.Len())
			for i, spec := range g.set.All() {
				types[i] = s.typeOf(s.portSlot(spec))
			}
			*g.types = types
		}
	}
	for name, st := range v.streams {
		if id, ok := s.names[streamKey(name)]; ok {
			st.TypeName = s.typeOf(id)
		}
	}
	for name, sp := range v.sidePackets {
		if id, ok := s.names[sidePacketKey(name)]; ok {
			sp.TypeName = s.typeOf(id)
		}
	}
	return nil
}
