package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

// plain disables colors for the duration of a test.
func plain(t *testing.T) {
	t.Helper()
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
}

func TestRenderExecution(t *testing.T) {
	plain(t)

	tests := []struct {
		name   string
		line   ExecutionLine
		symbol string
	}{
		{"success", ExecutionLine{User: "root", Host: "a.lan", Cmdline: "uptime", Code: 0, Output: "up 3 days", Duration: 250 * time.Millisecond}, SymbolExecOK},
		{"exit code", ExecutionLine{User: "root", Host: "a.lan", Cmdline: "false", Code: 1}, SymbolExecFailed},
		{"transport", ExecutionLine{User: "root", Host: "a.lan", Cmdline: "uptime", Code: -1, Output: "connection refused"}, SymbolExecWarning},
		{"watchdog", ExecutionLine{User: "root", Host: "a.lan", Cmdline: "sleep 60", Code: -2}, SymbolExecWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderExecution(tt.line)
			assert.True(t, strings.HasPrefix(out, tt.line.User+"@"+tt.line.Host))
			assert.Contains(t, out, " "+tt.symbol+" ")
			assert.Contains(t, out, tt.line.Cmdline)
			assert.Contains(t, out, tt.line.Output)
		})
	}

	out := RenderExecution(tests[0].line)
	assert.True(t, strings.HasSuffix(out, "(0.250)"))
}

func TestRenderURL(t *testing.T) {
	plain(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	out := RenderURL(URLLine{
		URL:          "https://example.org:443/",
		Status:       200,
		ResponseTime: 120 * time.Millisecond,
		Expire:       now.Add(90 * 24 * time.Hour),
	}, now)
	assert.Contains(t, out, "https://example.org:443/")
	assert.Contains(t, out, "[200/0.120]")
	assert.Contains(t, out, "Expire: in 90 days (2026-04-01)")

	out = RenderURL(URLLine{URL: "https://down.example:443/", Status: -1, Error: "dial tcp: connection refused\nmore"}, now)
	assert.Contains(t, out, "[-1/0.000]")
	assert.Contains(t, out, "Expire: -")
	assert.Contains(t, out, "connection refused")
	assert.NotContains(t, out, "more")
}

func TestHumanExpiry(t *testing.T) {
	plain(t)
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "-", HumanExpiry(time.Time{}, now))
	assert.Equal(t, "in 5 days (2026-01-15)", HumanExpiry(now.Add(5*24*time.Hour), now))
	assert.Equal(t, "expired 3 days ago (2026-01-07)", HumanExpiry(now.Add(-3*24*time.Hour), now))
}

func TestChunkLine(t *testing.T) {
	assert.Equal(t, "Processing 64 hosts… 10.0.0.1 → 10.0.0.64 (remains: 190)",
		ChunkLine(64, "10.0.0.1", "10.0.0.64", 190))
}

func TestTransitionLine(t *testing.T) {
	plain(t)
	assert.Equal(t, SymbolComplete+" a.lan back", TransitionLine("a.lan", "back"))
	assert.Equal(t, SymbolFail+" a.lan lost", TransitionLine("a.lan", "lost"))
}
