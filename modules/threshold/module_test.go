package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/testutil"
)

func flags(t *testing.T, packets []packet.Packet) []bool {
	t.Helper()
	var out []bool
	for _, p := range packets {
		v, err := packet.GetBool(p)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestThreshold(t *testing.T) {
	testCases := []struct {
		name       string
		options    string
		values     []float64
		wantFlags  []bool
		wantLabels []string
	}{
		{
			name:      "default threshold",
			values:    []float64{0.1, 0.5, 0.9},
			wantFlags: []bool{false, true, true},
		},
		{
			name: "typed options with labels",
			options: `
  node_options "type.googleapis.com/streamgrid.ThresholdOptions" {
    threshold = 2
    labels    = ["low", "high"]
  }`,
			values:     []float64{1, 3},
			wantFlags:  []bool{false, true},
			wantLabels: []string{"low", "high"},
		},
		{
			name: "legacy options",
			options: `
  options "ThresholdOptions.ext" {
    threshold = -1
  }`,
			values:    []float64{-2, 0},
			wantFlags: []bool{false, true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			src := `
input_stream  = ["value"]
output_stream = ["flag", "label"]
node "ThresholdCalculator" {
  input_stream  = ["VALUE:value"]
  output_stream = ["FLAG:flag", "LABEL:label"]
` + tc.options + `
}
`
			h := testutil.NewHarness(t, src, &Module{})
			h.Start(nil)

			// --- Act ---
			for i, v := range tc.values {
				h.Add("value", int64(i), packet.CreateFloat(v))
			}
			require.NoError(t, h.Finish())

			// --- Assert ---
			assert.Equal(t, tc.wantFlags, flags(t, h.Outputs.Packets("flag")))
			var labels []string
			for _, p := range h.Outputs.Packets("label") {
				s, err := packet.GetString(p)
				require.NoError(t, err)
				labels = append(labels, s)
			}
			assert.Equal(t, tc.wantLabels, labels)
		})
	}
}

func TestThresholdRejectsWrongPacketType(t *testing.T) {
	// --- Arrange ---
	src := `
input_stream = ["value"]
node "ThresholdCalculator" {
  input_stream  = ["VALUE:value"]
  output_stream = ["FLAG:flag"]
}
`
	h := testutil.NewHarness(t, src, &Module{})
	h.Start(nil)

	// --- Act ---
	err := h.Graph.AddPacketToInputStream(h.Context(), "value", packet.CreateInt(1), 0)

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errs.IsType(err))
}

func TestThresholdRejectsUnknownOption(t *testing.T) {
	src := `
input_stream = ["value"]
node "ThresholdCalculator" {
  input_stream  = ["VALUE:value"]
  output_stream = ["FLAG:flag"]
  node_options "type.googleapis.com/streamgrid.ThresholdOptions" {
    cutoff = 1
  }
}
`
	_, err := testutil.TryHarness(t, src, &Module{})

	require.Error(t, err)
	assert.ErrorContains(t, err, "cutoff")
}
