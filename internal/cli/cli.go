package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/streamgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// streamList collects a repeatable flag.
type streamList []string

func (s *streamList) String() string { return strings.Join(*s, ",") }

func (s *streamList) Set(v string) error {
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*s = append(*s, name)
		}
	}
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("streamgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
StreamGrid - A synchronous dataflow engine for calculator graphs.

Usage:
  streamgrid [options] [GRAPH_PATH]

Arguments:
  GRAPH_PATH
    Path to an .hcl graph file, or a directory containing exactly one.

Options:
`)
		flagSet.PrintDefaults()
	}

	var outputs streamList
	graphFlag := flagSet.String("graph", "", "Path to the HCL graph file or directory.")
	gFlag := flagSet.String("g", "", "Path to the HCL graph file or directory (shorthand).")
	binaryFlag := flagSet.String("binary-graph", "", "Path to a compiled binary graph. Replaces --graph.")
	overridesFlag := flagSet.String("overrides", "", "YAML file of calculator option overrides ('node.field: value').")
	inputFlag := flagSet.String("input-stream", "", "Graph input stream fed with one string packet per stdin line.")
	flagSet.Var(&outputs, "output-stream", "Output stream to print. Repeatable; defaults to every graph output stream.")
	compileFlag := flagSet.String("compile", "", "Write the validated graph in binary form to this path and exit.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Number of executor workers. 0 uses the graph's num_threads.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *graphFlag != "" {
		path = *graphFlag
	} else if *gFlag != "" {
		path = *gFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Graph path determined.", "path", path, "binary_graph", *binaryFlag)

	if path == "" && *binaryFlag == "" {
		slog.Debug("No graph provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		GraphPath:       path,
		BinaryGraphPath: *binaryFlag,
		OverridesPath:   *overridesFlag,
		InputStream:     *inputFlag,
		OutputStreams:   outputs,
		CompilePath:     *compileFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		WorkerCount:     *workersFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
