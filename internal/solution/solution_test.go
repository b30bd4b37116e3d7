package solution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/calcgraph"
	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/vk/streamgridgo/internal/timestamp"
	"github.com/vk/streamgridgo/modules/image"
	"github.com/vk/streamgridgo/modules/threshold"
)

const thresholdGraph = `
input_stream  = ["score"]
output_stream = ["flag", "label"]

node "ThresholdCalculator" {
  input_stream  = ["VALUE:score"]
  output_stream = ["FLAG:flag", "LABEL:label"]
}
`

const imageGraph = `
input_stream  = ["frame"]
output_stream = ["size"]

node "ImagePropertiesCalculator" {
  input_stream  = ["IMAGE:frame"]
  output_stream = ["SIZE:size"]
}
`

const matrixGraph = `
input_stream = ["weights"]

node "MatrixSinkCalculator" {
  input_stream = ["weights"]
}
`

type matrixSink struct{ calculator.Base }

func (matrixSink) Process(*calculator.Context) error { return nil }

type matrixModule struct{}

func (matrixModule) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name: "MatrixSinkCalculator",
		GetContract: func(c *calculator.Contract) error {
			c.Inputs().Index(0).Set("matrix")
			return nil
		},
		New: func() calculator.Calculator { return matrixSink{} },
	})
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newSolution(t *testing.T, src string, inputs, outputs []string) *Solution {
	t.Helper()
	s, err := New(testContext(t), Config{
		Source:  calcgraph.Source{Text: src},
		Inputs:  inputs,
		Outputs: outputs,
		Options: []calcgraph.Option{
			calcgraph.WithRegistry(registry.New(&threshold.Module{}, &image.Module{}, matrixModule{})),
			calcgraph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestProcessAdvancesTimestamps(t *testing.T) {
	// --- Arrange ---
	s := newSolution(t, thresholdGraph, []string{"score"}, []string{"flag", "label"})
	ctx := testContext(t)

	testCases := []struct {
		value    any
		wantFlag bool
		wantTS   timestamp.Timestamp
	}{
		{value: 0.9, wantFlag: true, wantTS: 0},
		{value: float32(0.1), wantFlag: false, wantTS: FrameInterval},
		{value: 1, wantFlag: true, wantTS: 2 * FrameInterval},
	}

	for _, tc := range testCases {
		// --- Act ---
		result, err := s.Process(ctx, map[string]any{"score": tc.value})

		// --- Assert ---
		require.NoError(t, err)
		flag, err := packet.GetBool(result.Get("flag"))
		require.NoError(t, err)
		assert.Equal(t, tc.wantFlag, flag)
		assert.Equal(t, tc.wantTS, result.Get("flag").Timestamp())
		// No labels are configured, so LABEL never carries a packet.
		assert.True(t, result.Get("label").IsEmpty())
	}
}

func TestProcessImageFrame(t *testing.T) {
	// --- Arrange ---
	s := newSolution(t, imageGraph, []string{"frame"}, []string{"size"})
	frame := packet.ImageFrame{Format: packet.FormatSRGB, Width: 2, Height: 2, Pixels: make([]byte, 12)}

	// --- Act ---
	result, err := s.Process(testContext(t), map[string]any{"frame": frame})

	// --- Assert ---
	require.NoError(t, err)
	size, err := packet.GetIntList(result.Get("size"))
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2}, size)
}

func TestProcessRejectsBadInputs(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		inputs  []string
		stream  string
		value   any
		wantErr string
	}{
		{
			name:    "gray image on rgb stream",
			src:     imageGraph,
			inputs:  []string{"frame"},
			stream:  "frame",
			value:   packet.ImageFrame{Format: packet.FormatGray8, Width: 1, Height: 1, Pixels: []byte{7}},
			wantErr: "Input image must contain three channel rgb data",
		},
		{
			name:    "string on float stream",
			src:     thresholdGraph,
			inputs:  []string{"score"},
			stream:  "score",
			value:   "high",
			wantErr: "packet holds string, not float",
		},
		{
			name:    "unknown stream",
			src:     thresholdGraph,
			inputs:  []string{"score"},
			stream:  "missing",
			value:   1.0,
			wantErr: `"missing" is not an input of the solution`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			s := newSolution(t, tc.src, tc.inputs, nil)

			// --- Act ---
			_, err := s.Process(testContext(t), map[string]any{tc.stream: tc.value})

			// --- Assert ---
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestProcessMatrixInputIsContractError(t *testing.T) {
	// --- Arrange ---
	s := newSolution(t, matrixGraph, []string{"weights"}, nil)

	// --- Act ---
	_, err := s.Process(testContext(t), map[string]any{"weights": []float64{1, 2}})

	// --- Assert ---
	var contractErr *ContractError
	require.ErrorAs(t, err, &contractErr)
	assert.Equal(t, "weights", contractErr.Stream)
	assert.Equal(t, "matrix", contractErr.TypeName)
}

func TestProcessAcceptsPackets(t *testing.T) {
	// --- Arrange ---
	s := newSolution(t, matrixGraph, []string{"weights"}, nil)
	m, err := packet.CreateMatrix(1, 2, []float32{1, 2})
	require.NoError(t, err)

	// --- Act ---
	_, err = s.Process(testContext(t), map[string]any{"weights": m})

	// --- Assert ---
	assert.NoError(t, err)
}

func TestNewRejectsUnknownInput(t *testing.T) {
	_, err := New(testContext(t), Config{
		Source:  calcgraph.Source{Text: thresholdGraph},
		Inputs:  []string{"flag"},
		Options: []calcgraph.Option{calcgraph.WithRegistry(registry.New(&threshold.Module{}))},
	})

	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
	assert.ErrorContains(t, err, `"flag" is not a graph input stream`)
}

func TestCloseIsIdempotent(t *testing.T) {
	// --- Arrange ---
	s := newSolution(t, thresholdGraph, []string{"score"}, []string{"flag"})
	ctx := testContext(t)

	// --- Act ---
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	_, err := s.Process(ctx, map[string]any{"score": 1.0})

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrGraphClosed))
}

func TestPoolDispatchesRoundRobin(t *testing.T) {
	// --- Arrange ---
	ctx := testContext(t)
	var (
		mu    sync.Mutex
		built []*Solution
	)
	pool, err := NewPool(ctx, 2, func(context.Context) (*Solution, error) {
		s := newSolution(t, thresholdGraph, []string{"score"}, []string{"flag"})
		mu.Lock()
		built = append(built, s)
		mu.Unlock()
		return s, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, pool.Size())

	// --- Act ---
	var stamps []timestamp.Timestamp
	for i := 0; i < 4; i++ {
		result, err := pool.Process(ctx, map[string]any{"score": 0.7})
		require.NoError(t, err)
		stamps = append(stamps, result.Get("flag").Timestamp())
	}

	// --- Assert ---
	// Each solution keeps its own clock, so alternating requests repeat
	// every timestamp twice.
	assert.Equal(t, []timestamp.Timestamp{0, 0, FrameInterval, FrameInterval}, stamps)
	require.NoError(t, pool.Close(ctx))
	require.NoError(t, pool.Close(ctx))
	_, err = pool.Process(ctx, map[string]any{"score": 0.7})
	assert.ErrorIs(t, err, errs.ErrGraphClosed)
	for _, s := range built {
		_, err := s.Process(ctx, map[string]any{"score": 0.7})
		assert.ErrorIs(t, err, errs.ErrGraphClosed)
	}
}

func TestNewPoolClosesBuiltSolutionsOnFailure(t *testing.T) {
	// --- Arrange ---
	ctx := testContext(t)
	first := newSolution(t, thresholdGraph, []string{"score"}, []string{"flag"})
	calls := 0

	// --- Act ---
	_, err := NewPool(ctx, 3, func(context.Context) (*Solution, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return nil, errors.New("no capacity")
	})

	// --- Assert ---
	require.ErrorContains(t, err, "no capacity")
	_, err = first.Process(ctx, map[string]any{"score": 1.0})
	assert.ErrorIs(t, err, errs.ErrGraphClosed)
}

func TestNewPoolRejectsNonPositiveSize(t *testing.T) {
	_, err := NewPool(context.Background(), 0, nil)

	assert.True(t, errs.IsConfig(err))
}
