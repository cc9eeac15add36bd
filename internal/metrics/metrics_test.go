package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "ok"},
		{1, "exit_1"},
		{127, "exit_127"},
		{-1, "transport"},
		{-2, "watchdog"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExecutionClass(tt.code))
	}
}

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.ObserveTransition("lost")
	r.ObserveTransition("lost")
	r.ObserveTransition("new")
	r.ObserveExecution(-2)
	r.ObserveBatch(true, 3, 2)
	r.ObserveBatch(false, 0, 0)
	r.ObserveChunk(4)
	r.ObserveChunk(2)
	r.ObserveSNMP(false)
	r.ObserveStoreFailure("executions")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Transitions.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Transitions.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Executions.WithLabelValues("watchdog")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.HostsUp))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.HostsDown))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Batches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreFailures.WithLabelValues("apply_batch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreFailures.WithLabelValues("executions")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ChunksDrained))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.DispatchTarget))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SNMPPolls.WithLabelValues("error")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveTransition("new")
		r.ObserveProbe("icmp", time.Millisecond)
		r.ObserveBatch(true, 1, 1)
		r.ObserveExecution(0)
		r.ObserveURL("https://x", 200, time.Now())
		r.ObserveSNMP(true)
		r.ObserveChunk(1)
	})
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveURL("https://example.com:443/", 200, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "fleet.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `fleet_url_status{url="https://example.com:443/"} 200`)
	assert.Contains(t, string(data), "fleet_url_cert_expiry_timestamp_seconds")
}
