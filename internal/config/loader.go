package config

import "context"

// Loader is the interface for a format-specific graph config loader.
type Loader interface {
	// LoadFile reads a graph config from path.
	LoadFile(ctx context.Context, path string) (*GraphConfig, error)
}
