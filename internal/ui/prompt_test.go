package ui

import (
	"testing"

	fleeterrors "github.com/rileyhilliard/fleet/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withoutTerminal(t *testing.T) {
	t.Helper()
	prev := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal = prev })
}

func TestPromptPassword_NoTerminal(t *testing.T) {
	withoutTerminal(t)

	_, err := PromptPassword("Password for deployment")
	require.Error(t, err)
	assert.True(t, fleeterrors.IsCode(err, fleeterrors.ErrConfig))
}

func TestConfirm_NoTerminalReturnsDefault(t *testing.T) {
	withoutTerminal(t)

	ok, err := Confirm("Remove 3 hosts?", false)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Confirm("Remove 3 hosts?", true)
	require.NoError(t, err)
	assert.True(t, ok)
}
