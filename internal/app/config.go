package app

import (
	"errors"
	"slices"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GraphPath       string // HCL file, or a directory holding exactly one
	BinaryGraphPath string // msgpack graph written by --compile
	OverridesPath   string // YAML map of "node.field: value"

	// InputStream receives one string packet per stdin line. Empty means
	// the graph inputs are closed right away.
	InputStream string
	// OutputStreams are printed as packets arrive. Empty prints every graph
	// output stream.
	OutputStreams []string
	// CompilePath, when set, makes Run write the validated graph there in
	// binary form and exit without running it.
	CompilePath string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
}

func NewConfig(cfg Config) (*Config, error) {
	switch {
	case cfg.GraphPath == "" && cfg.BinaryGraphPath == "":
		return nil, errors.New("one of GraphPath or BinaryGraphPath is required")
	case cfg.GraphPath != "" && cfg.BinaryGraphPath != "":
		return nil, errors.New("GraphPath and BinaryGraphPath are mutually exclusive")
	}
	if cfg.WorkerCount < 0 {
		return nil, errors.New("WorkerCount cannot be negative")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, errors.New("HealthcheckPort must be between 0 and 65535")
	}
	if cfg.CompilePath != "" && cfg.InputStream != "" {
		return nil, errors.New("InputStream has no effect when compiling a graph")
	}
	cfg.OutputStreams = slices.Clone(cfg.OutputStreams)
	return &cfg, nil
}
