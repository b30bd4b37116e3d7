package envvars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/testutil"
)

func graph(options string) string {
	return `
node "EnvSidePacketCalculator" {
  output_side_packet = ["VALUE:value", "ALL:all"]
  node_options "type.googleapis.com/streamgrid.EnvSidePacketOptions" {
    ` + options + `
  }
}
`
}

func TestEnvSidePackets(t *testing.T) {
	// --- Arrange ---
	t.Setenv("STREAMGRID_TEST_VALUE", "hello")
	h := testutil.NewHarness(t, graph(`variable = "STREAMGRID_TEST_VALUE"`), &Module{})

	// --- Act ---
	err := h.Run(nil)

	// --- Assert ---
	require.NoError(t, err)
	p, err := h.Graph.GetOutputSidePacket("value")
	require.NoError(t, err)
	value, err := packet.GetString(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", value)

	p, err = h.Graph.GetOutputSidePacket("all")
	require.NoError(t, err)
	all, err := packet.GetStringList(p)
	require.NoError(t, err)
	assert.Contains(t, all, "STREAMGRID_TEST_VALUE=hello")
	assert.IsNonDecreasing(t, all)
}

func TestEnvSidePacketDefault(t *testing.T) {
	// --- Arrange ---
	src := `
node "EnvSidePacketCalculator" {
  output_side_packet = ["VALUE:value"]
  node_options "type.googleapis.com/streamgrid.EnvSidePacketOptions" {
    variable = "STREAMGRID_TEST_UNSET_VARIABLE"
    default  = "fallback"
  }
}
`
	h := testutil.NewHarness(t, src, &Module{})

	// --- Act ---
	err := h.Run(nil)

	// --- Assert ---
	require.NoError(t, err)
	p, err := h.Graph.GetOutputSidePacket("value")
	require.NoError(t, err)
	value, err := packet.GetString(p)
	require.NoError(t, err)
	assert.Equal(t, "fallback", value)
}

func TestEnvSidePacketMissingVariable(t *testing.T) {
	h := testutil.NewHarness(t, graph(`variable = "STREAMGRID_TEST_UNSET_VARIABLE"`), &Module{})

	err := h.Graph.StartRun(h.Context(), nil)

	require.Error(t, err)
	assert.ErrorContains(t, err, `environment variable "STREAMGRID_TEST_UNSET_VARIABLE" is not set`)
}

func TestEnvSidePacketRejectsUnknownTag(t *testing.T) {
	src := `
node "EnvSidePacketCalculator" {
  output_side_packet = ["PATH:path"]
}
`
	_, err := testutil.TryHarness(t, src, &Module{})

	require.Error(t, err)
	assert.ErrorContains(t, err, `does not support output side packet tag "PATH"`)
}
