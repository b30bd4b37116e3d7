package portid

import (
	"fmt"
	"regexp"
	"strconv"
)

// portRegex matches `name`, `TAG:name` and `TAG:index:name`.
var portRegex = regexp.MustCompile(`^(?:([A-Z_][A-Z0-9_]*)(?::(\d+))?:)?([a-z_][a-z0-9_]*)$`)

var nameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Port is the structured form of a port string.
type Port struct {
	Tag   string
	Index int // -1 when the string did not spell out an index.
	Name  string
}

// HasIndex returns true if the port string carried an explicit index.
func (p Port) HasIndex() bool {
	return p.Index != -1
}

// String returns the port in `TAG:index:name` form, omitting the parts that
// were not given.
func (p Port) String() string {
	switch {
	case p.Tag == "":
		return p.Name
	case p.Index < 0:
		return p.Tag + ":" + p.Name
	default:
		return fmt.Sprintf("%s:%d:%s", p.Tag, p.Index, p.Name)
	}
}

// Parse creates a Port by parsing its string representation.
func Parse(raw string) (Port, error) {
	if raw == "" {
		return Port{}, fmt.Errorf("port cannot be empty")
	}

	matches := portRegex.FindStringSubmatch(raw)
	if matches == nil {
		return Port{}, fmt.Errorf("invalid port format: %q (expected TAG:index:name)", raw)
	}

	port := Port{Tag: matches[1], Index: -1, Name: matches[3]}
	if matches[2] != "" {
		index, err := strconv.Atoi(matches[2])
		if err != nil {
			// Unreachable due to regex `\d+`
			return Port{}, fmt.Errorf("internal error parsing index: %w", err)
		}
		port.Index = index
	}
	return port, nil
}

// ValidName reports whether s can name a stream or side packet.
func ValidName(s string) bool {
	return nameRegex.MatchString(s)
}
