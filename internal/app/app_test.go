package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/errs"
)

const counterGraph = `
output_stream = ["out"]

node "CountingSourceCalculator" {
  name          = "count"
  output_stream = ["out"]
  node_options "type.googleapis.com/streamgrid.CountingSourceOptions" {
    max_count = 10
  }
}
`

const thresholdGraph = `
input_stream  = ["score"]
output_stream = ["flag"]

node "ThresholdCalculator" {
  input_stream  = ["VALUE:score"]
  output_stream = ["FLAG:flag"]
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newTestApp(t *testing.T, cfg Config, stdin string) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg.LogLevel = "debug"
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}
	t.Cleanup(func() {
		if os.Getenv("STREAMGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return NewApp(out, logs, strings.NewReader(stdin), &cfg), out, logs
}

func TestCompileThenRunBinaryGraph(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "counter.hcl", counterGraph)
	overridesPath := writeFile(t, dir, "overrides.yaml", "count.max_count: 2\n")
	binaryPath := filepath.Join(dir, "counter.bin")
	compiler, _, _ := newTestApp(t, Config{GraphPath: graphPath, OverridesPath: overridesPath, CompilePath: binaryPath}, "")

	// --- Act ---
	require.NoError(t, compiler.Run(context.Background()))
	runner, out, logs := newTestApp(t, Config{BinaryGraphPath: binaryPath}, "")
	err := runner.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "out: int(0)@0\nout: int(1)@1\n", out.String())
	assert.Contains(t, logs.String(), "Execution finished.")
}

func TestRunResolvesGraphDirectory(t *testing.T) {
	t.Run("single file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "graph.hcl", counterGraph)
		writeFile(t, dir, "README.md", "not a graph")
		a, out, _ := newTestApp(t, Config{GraphPath: dir, OverridesPath: writeFile(t, t.TempDir(), "o.yaml", "count.max_count: 1\n")}, "")

		require.NoError(t, a.Run(context.Background()))
		assert.Equal(t, "out: int(0)@0\n", out.String())
	})

	t.Run("ambiguous directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.hcl", counterGraph)
		writeFile(t, dir, "b.hcl", counterGraph)
		a, _, _ := newTestApp(t, Config{GraphPath: dir}, "")

		err := a.Run(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "found 2 .hcl files")
	})
}

func TestRunFailsOnWrongInputType(t *testing.T) {
	// --- Arrange ---
	graphPath := writeFile(t, t.TempDir(), "threshold.hcl", thresholdGraph)
	a, out, _ := newTestApp(t, Config{GraphPath: graphPath, InputStream: "score"}, "0.7\n")

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errs.IsType(err))
	assert.Contains(t, err.Error(), "packet holds string, not float")
	assert.Empty(t, out.String())
}

func TestRunRejectsUnknownOutputStream(t *testing.T) {
	graphPath := writeFile(t, t.TempDir(), "counter.hcl", counterGraph)
	a, _, _ := newTestApp(t, Config{GraphPath: graphPath, OutputStreams: []string{"missing"}}, "")

	err := a.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnknownStream)
}

func TestServeHTTP(t *testing.T) {
	// --- Arrange ---
	a, _, _ := newTestApp(t, Config{GraphPath: "unused.hcl"}, "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serveHTTP(ctx, ln) }()
	base := "http://" + ln.Addr().String()

	get := func(path string) (int, string) {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	// --- Act ---
	healthCode, healthBody := get("/health")
	metricsCode, metricsBody := get("/metrics")
	cancel()

	// --- Assert ---
	assert.Equal(t, http.StatusOK, healthCode)
	assert.Equal(t, "OK\n", healthBody)
	assert.Equal(t, http.StatusOK, metricsCode)
	assert.Contains(t, metricsBody, "go_goroutines")
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		got, err := loadOverrides("")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("values keep their YAML types", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "o.yaml", "th.threshold: 0.25\nth.labels: [low, high]\ncount.max_count: 4\n")

		got, err := loadOverrides(path)

		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"th.threshold":    0.25,
			"th.labels":       []any{"low", "high"},
			"count.max_count": 4,
		}, got)
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "o.yaml", "a: [unterminated\n")

		_, err := loadOverrides(path)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing overrides")
	})
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "hcl graph", cfg: Config{GraphPath: "g.hcl"}},
		{name: "binary graph", cfg: Config{BinaryGraphPath: "g.bin"}},
		{name: "no graph", cfg: Config{}, wantErr: "one of GraphPath or BinaryGraphPath is required"},
		{name: "bad port", cfg: Config{GraphPath: "g.hcl", HealthcheckPort: 70000}, wantErr: "HealthcheckPort"},
		{name: "compile with input", cfg: Config{GraphPath: "g.hcl", CompilePath: "g.bin", InputStream: "in"}, wantErr: "InputStream has no effect"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewConfig(tc.cfg)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.cfg.GraphPath, got.GraphPath)
		})
	}
}
