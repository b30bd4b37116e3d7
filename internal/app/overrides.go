package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadOverrides reads a YAML map of "node.field" keys to option values.
// An empty path yields no overrides.
func loadOverrides(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading overrides: %w", err)
	}
	var overrides map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing overrides %s: %w", path, err)
	}
	return overrides, nil
}
