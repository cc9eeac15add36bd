package integration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecSimpleCommand(t *testing.T) {
	svc, _ := NewRemoteService(t)

	results, err := svc.Exec(t.Context(), testHostName, "echo hello")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ReturnCode)
	assert.Equal(t, "hello", results[0].FirstLine())
	assert.Equal(t, GetTestSSHUser(), results[0].User)
}

func TestExecCommandWithExitCode(t *testing.T) {
	svc, _ := NewRemoteService(t)

	results, err := svc.Exec(t.Context(), testHostName, "exit 42")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 42, results[0].ReturnCode, "exit code should be preserved")
}

func TestExecCommandWithStderr(t *testing.T) {
	svc, _ := NewRemoteService(t)

	results, err := svc.Exec(t.Context(), testHostName, "echo error message >&2")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Stderr, "error message")
}

func TestExecRecordsExecution(t *testing.T) {
	svc, st := NewRemoteService(t)

	_, err := svc.Exec(t.Context(), testHostName, "uname -s")
	require.NoError(t, err)

	execs, err := st.ListExecutions(t.Context(), testHostName, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "uname -s", execs[0].Cmdline)
	assert.NotEmpty(t, execs[0].RunID)
	assert.False(t, execs[0].End.Before(execs[0].Start))
}

func TestRunScript(t *testing.T) {
	svc, st := NewRemoteService(t)

	path := filepath.Join(t.TempDir(), "check.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho one\necho two\n"), 0o644))

	results, err := svc.RunScript(t.Context(), testHostName, path)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ReturnCode)
	assert.Equal(t, []string{"one", "two"}, strings.Fields(results[0].Stdout))

	execs, err := st.ListExecutions(t.Context(), testHostName, 1)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "check.sh", execs[0].Cmdline)
}

func TestExecUnreachableHost(t *testing.T) {
	svc, _ := NewRemoteService(t)

	_, err := svc.AddHost(t.Context(), "nowhere.invalid", "127.0.0.1:1", "")
	require.NoError(t, err)

	results, err := svc.Exec(t.Context(), "nowhere.invalid", "true")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, remote.TransportFailure, results[0].ReturnCode)
	assert.NotEmpty(t, results[0].Status)
}
