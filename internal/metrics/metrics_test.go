package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// --- Arrange ---
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	// --- Act ---
	m.PacketAdded("in")
	m.PacketAdded("in")
	m.Throttled("in")
	m.RecordProcess("pass", time.Millisecond, nil)
	m.RecordProcess("pass", time.Millisecond, errors.New("boom"))
	m.SetQueueDepth("pass", 0, 3)

	// --- Assert ---
	assert.Equal(t, 2.0, testutil.ToFloat64(m.packetsAdded.WithLabelValues("in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.throttledAdds.WithLabelValues("in")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.processCalls.WithLabelValues("pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processErrors.WithLabelValues("pass")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("pass", "0")))
}

func TestMetricsReuseRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)

	second, err := New(reg)
	require.NoError(t, err)

	second.PacketAdded("in")
	assert.Equal(t, 1.0, testutil.ToFloat64(first.packetsAdded.WithLabelValues("in")))
}

func TestNilMetrics(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	assert.NotPanics(t, func() {
		m.PacketAdded("in")
		m.Throttled("in")
		m.RecordProcess("n", time.Second, nil)
		m.SetQueueDepth("n", 0, 1)
	})
}
