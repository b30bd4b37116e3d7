package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/packet"
)

// AssertNodeOpened checks the harness logs to confirm that a node was
// opened. Unnamed nodes are called "<Calculator>_<index>".
func AssertNodeOpened(t *testing.T, h *Harness, node string) {
	t.Helper()

	nodeAttr := fmt.Sprintf(" node=%s ", node)
	for _, line := range strings.Split(h.Logs.String(), "\n") {
		if strings.Contains(line, `msg="Node opened."`) && strings.Contains(line, nodeAttr) {
			return
		}
	}
	require.Fail(t, "node not opened", "expected log output for opening node %q was not found in logs", node)
}

// Ints extracts int payloads and fails the test on any other packet.
func Ints(t *testing.T, packets []packet.Packet) []int64 {
	t.Helper()
	out := make([]int64, 0, len(packets))
	for _, p := range packets {
		v, err := packet.GetInt(p)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

// Timestamps returns the timestamps of packets in microseconds.
func Timestamps(packets []packet.Packet) []int64 {
	out := make([]int64, 0, len(packets))
	for _, p := range packets {
		out = append(out, p.Timestamp().Microseconds())
	}
	return out
}
