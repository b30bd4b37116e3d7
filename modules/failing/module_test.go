package failing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/errs"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/testutil"
)

func graph(options string) string {
	return `
input_stream  = ["in"]
output_stream = ["out"]
node "FailingCalculator" {
  input_stream  = ["in"]
  output_stream = ["out"]
  node_options "type.googleapis.com/streamgrid.FailingOptions" {
    ` + options + `
  }
}
`
}

func TestFailsAtTimestamp(t *testing.T) {
	// --- Arrange ---
	h := testutil.NewHarness(t, graph(`
    fail_at = 1
    message = "bad frame"`), &Module{})
	h.Start(nil)

	// --- Act ---
	h.Add("in", 0, packet.CreateInt(0))
	h.Add("in", 1, packet.CreateInt(1))
	err := h.Graph.WaitUntilDone(h.Context())

	// --- Assert ---
	require.Error(t, err)
	assert.True(t, errs.IsRuntime(err))
	assert.ErrorContains(t, err, "bad frame at timestamp 1")
	assert.Equal(t, []int64{0}, testutil.Ints(t, h.Outputs.Packets("out")))
}

func TestFailsOnClose(t *testing.T) {
	// --- Arrange ---
	h := testutil.NewHarness(t, graph(`fail_on_close = true`), &Module{})
	h.Start(nil)
	h.Add("in", 0, packet.CreateInt(7))

	// --- Act ---
	err := h.Finish()

	// --- Assert ---
	require.Error(t, err)
	assert.ErrorContains(t, err, "induced failure in Close")
	assert.Equal(t, []int64{7}, testutil.Ints(t, h.Outputs.Packets("out")))
}

func TestForwardsWithoutFailure(t *testing.T) {
	h := testutil.NewHarness(t, graph(``), &Module{})
	h.Start(nil)

	h.Add("in", 3, packet.CreateInt(3))
	h.Add("in", 4, packet.CreateInt(4))

	require.NoError(t, h.Finish())
	assert.Equal(t, []int64{3, 4}, testutil.Timestamps(h.Outputs.Packets("out")))
}
