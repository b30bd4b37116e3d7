package portid

import (
	"fmt"
	"slices"
	"strings"
)

// TagMap is the resolved set of ports of one kind (inputs, outputs, input or
// output side packets) on one node. Every entry has a concrete index.
type TagMap struct {
	entries []Port
	byTag   map[string][]Port
}

// NewTagMap parses and indexes the given port strings. Untagged ports are
// indexed by their position among untagged ports; tagged ports without an
// index get index 0.
func NewTagMap(raw []string) (*TagMap, error) {
	tm := &TagMap{byTag: make(map[string][]Port)}
	names := make(map[string]string, len(raw))
	untagged := 0

	for _, s := range raw {
		p, err := Parse(s)
		if err != nil {
			return nil, err
		}
		switch {
		case p.Tag == "" && p.HasIndex():
			return nil, fmt.Errorf("port %q has an index but no tag", s)
		case p.Tag == "":
			p.Index = untagged
			untagged++
		case !p.HasIndex():
			p.Index = 0
		}
		if prev, dup := names[p.Name]; dup {
			return nil, fmt.Errorf("name %q used by both %q and %q", p.Name, prev, s)
		}
		names[p.Name] = s
		tm.byTag[p.Tag] = append(tm.byTag[p.Tag], p)
	}

	for tag, ports := range tm.byTag {
		slices.SortFunc(ports, func(a, b Port) int { return a.Index - b.Index })
		for i, p := range ports {
			if p.Index != i {
				if i > 0 && ports[i-1].Index == p.Index {
					return nil, fmt.Errorf("tag %q has index %d more than once", tag, p.Index)
				}
				return nil, fmt.Errorf("tag %q has non-contiguous indexes: missing index %d", tag, i)
			}
		}
	}

	for _, tag := range tm.Tags() {
		tm.entries = append(tm.entries, tm.byTag[tag]...)
	}
	return tm, nil
}

// Tags returns the tags in sorted order. The empty tag sorts first.
func (tm *TagMap) Tags() []string {
	tags := make([]string, 0, len(tm.byTag))
	for tag := range tm.byTag {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Len returns the total number of ports.
func (tm *TagMap) Len() int {
	return len(tm.entries)
}

// NumEntries returns the number of ports with the given tag.
func (tm *TagMap) NumEntries(tag string) int {
	return len(tm.byTag[tag])
}

// Get returns the port addressed by tag and index.
func (tm *TagMap) Get(tag string, index int) (Port, bool) {
	ports := tm.byTag[tag]
	if index < 0 || index >= len(ports) {
		return Port{}, false
	}
	return ports[index], true
}

// Entries returns all ports ordered by tag and then index.
func (tm *TagMap) Entries() []Port {
	return slices.Clone(tm.entries)
}

// Position returns the position of the port addressed by tag and index in
// Entries, or -1.
func (tm *TagMap) Position(tag string, index int) int {
	for i, p := range tm.entries {
		if p.Tag == tag && p.Index == index {
			return i
		}
	}
	return -1
}

// Names returns the stream names in Entries order.
func (tm *TagMap) Names() []string {
	names := make([]string, len(tm.entries))
	for i, p := range tm.entries {
		names[i] = p.Name
	}
	return names
}

// Canonical returns the minimal port strings in Entries order: untagged
// ports by name, tags with a single port without the index.
func (tm *TagMap) Canonical() []string {
	out := make([]string, len(tm.entries))
	for i, p := range tm.entries {
		switch {
		case p.Tag == "":
			out[i] = p.Name
		case tm.NumEntries(p.Tag) == 1:
			out[i] = p.Tag + ":" + p.Name
		default:
			out[i] = p.String()
		}
	}
	return out
}

// SameLayout reports whether both maps have the same tags with the same
// number of indexes each.
func (tm *TagMap) SameLayout(other *TagMap) bool {
	if len(tm.byTag) != len(other.byTag) {
		return false
	}
	for tag, ports := range tm.byTag {
		if len(other.byTag[tag]) != len(ports) {
			return false
		}
	}
	return true
}

// String renders the map for error messages.
func (tm *TagMap) String() string {
	return "[" + strings.Join(tm.Canonical(), ", ") + "]"
}
