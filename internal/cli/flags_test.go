package cli

import (
	"testing"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty string returns zero", flag: "", want: 0},
		{name: "valid seconds", flag: "5s", want: 5 * time.Second},
		{name: "valid milliseconds", flag: "500ms", want: 500 * time.Millisecond},
		{name: "valid complex duration", flag: "1m30s", want: 90 * time.Second},
		{name: "invalid format returns error", flag: "soon", wantErr: true},
		{name: "missing unit returns error", flag: "5", wantErr: true},
		{name: "negative returns error", flag: "-5s", wantErr: true},
		{name: "zero returns error", flag: "0s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeout(tt.flag)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddTuningFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	var flags TuningFlags
	AddTuningFlags(cmd, &flags, "probe timeout")

	require.NoError(t, cmd.Flags().Parse([]string{"--chunk-size", "8", "--timeout", "2s"}))
	assert.Equal(t, 8, flags.ChunkSize)
	assert.Equal(t, "2s", flags.Timeout)
	assert.Equal(t, "probe timeout", cmd.Flags().Lookup("timeout").Usage)
}

func TestTuningFlags_Apply(t *testing.T) {
	chunk, timeout := 64, 5*time.Second

	require.NoError(t, TuningFlags{}.Apply(&chunk, &timeout))
	assert.Equal(t, 64, chunk)
	assert.Equal(t, 5*time.Second, timeout)

	require.NoError(t, TuningFlags{ChunkSize: 4, Timeout: "1s"}.Apply(&chunk, &timeout))
	assert.Equal(t, 4, chunk)
	assert.Equal(t, time.Second, timeout)

	assert.Error(t, TuningFlags{Timeout: "later"}.Apply(&chunk, &timeout))
}

func TestQueryArg(t *testing.T) {
	q, err := queryArg([]string{"%prod", "&", "!%db"})
	require.NoError(t, err)
	assert.Equal(t, "%prod & !%db", q)

	_, err = queryArg([]string{" "})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrQuery))
}
