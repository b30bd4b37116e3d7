package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/testutil"
)

func TestCountingSource(t *testing.T) {
	testCases := []struct {
		name    string
		options string
		wantVal []int64
		wantTS  []int64
	}{
		{
			name:    "max count only",
			options: `max_count = 3`,
			wantVal: []int64{0, 1, 2},
			wantTS:  []int64{0, 1, 2},
		},
		{
			name: "start and timestamps",
			options: `
    max_count       = 3
    start           = 10
    start_timestamp = 100
    timestamp_step  = 33333`,
			wantVal: []int64{10, 11, 12},
			wantTS:  []int64{100, 33433, 66766},
		},
		{
			name:    "zero count",
			options: `max_count = 0`,
			wantVal: []int64{},
			wantTS:  []int64{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			src := `
output_stream = ["out"]
node "CountingSourceCalculator" {
  output_stream = ["out"]
  node_options "type.googleapis.com/streamgrid.CountingSourceOptions" {
    ` + tc.options + `
  }
}
`
			h := testutil.NewHarness(t, src, &Module{})

			// --- Act ---
			err := h.Run(nil)

			// --- Assert ---
			require.NoError(t, err)
			got := h.Outputs.Packets("out")
			assert.Equal(t, tc.wantVal, testutil.Ints(t, got))
			assert.Equal(t, tc.wantTS, testutil.Timestamps(got))
		})
	}
}

func TestCountingSourceRejectsBadOptions(t *testing.T) {
	testCases := []struct {
		name    string
		options string
		wantErr string
	}{
		{name: "negative max count", options: `max_count = -1`, wantErr: "max_count must not be negative"},
		{name: "zero step", options: `timestamp_step = 0`, wantErr: "timestamp_step must be positive"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := `
output_stream = ["out"]
node "CountingSourceCalculator" {
  output_stream = ["out"]
  options "CountingSourceOptions.ext" {
    ` + tc.options + `
  }
}
`
			h := testutil.NewHarness(t, src, &Module{})

			err := h.Graph.StartRun(h.Context(), nil)

			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
