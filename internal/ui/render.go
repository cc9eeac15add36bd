package ui

import (
	"fmt"
	"strings"
	"time"
)

// ExecutionLine is one host's outcome of a remote command.
type ExecutionLine struct {
	User     string
	Host     string
	Cmdline  string
	Code     int
	Output   string // first line of output, or the failure status
	Duration time.Duration
}

// RenderExecution renders "user@host  cmd  ✓ output  (1.234)". Negative
// codes mean the command never reported an exit status.
func RenderExecution(l ExecutionLine) string {
	var symbol string
	switch {
	case l.Code == 0:
		symbol = SuccessStyle().Render(SymbolExecOK)
	case l.Code > 0:
		symbol = ErrorStyle().Render(SymbolExecFailed)
	default:
		symbol = WarningStyle().Render(SymbolExecWarning)
	}

	return padRight(l.User+"@"+l.Host, 32) +
		padRight(l.Cmdline, 16) +
		symbol + " " +
		padRight(l.Output, 60) +
		MutedStyle().Render(fmt.Sprintf("(%.3f)", l.Duration.Seconds()))
}

// URLLine is one endpoint's latest check.
type URLLine struct {
	URL          string
	Status       int
	ResponseTime time.Duration
	Expire       time.Time // zero without TLS
	Error        string
}

// RenderURL renders "<url>  [status/seconds]  Expire: <when>".
func RenderURL(l URLLine, now time.Time) string {
	status := fmt.Sprintf("[%d/%.3f]", l.Status, l.ResponseTime.Seconds())
	switch {
	case l.Status < 0:
		status = ErrorStyle().Render(status)
	case l.Status >= 400:
		status = WarningStyle().Render(status)
	default:
		status = SuccessStyle().Render(status)
	}

	line := padRight(l.URL, 80) + padRight(status, 20) + "Expire: " + HumanExpiry(l.Expire, now)
	if l.Error != "" {
		line += "\n  " + MutedStyle().Render(firstLine(l.Error))
	}
	return line
}

// HumanExpiry renders a certificate expiry relative to now.
func HumanExpiry(expire, now time.Time) string {
	if expire.IsZero() {
		return "-"
	}
	date := expire.Format("2006-01-02")
	d := expire.Sub(now)
	days := int(d.Hours() / 24)
	switch {
	case d < 0:
		return ErrorStyle().Render(fmt.Sprintf("expired %d days ago (%s)", -days, date))
	case days < 14:
		return WarningStyle().Render(fmt.Sprintf("in %d days (%s)", days, date))
	default:
		return fmt.Sprintf("in %d days (%s)", days, date)
	}
}

// ChunkLine is the progress line printed as a chunk of targets is launched.
func ChunkLine(size int, first, last string, remaining int) string {
	return fmt.Sprintf("Processing %d hosts… %s %s %s (remains: %d)", size, first, SymbolArrow, last, remaining)
}

// TransitionLine announces a host that changed state during a sweep.
func TransitionLine(host, outcome string) string {
	switch outcome {
	case "back", "new":
		return SuccessStyle().Render(SymbolComplete) + " " + host + " " + MutedStyle().Render(outcome)
	case "lost":
		return ErrorStyle().Render(SymbolFail) + " " + host + " " + MutedStyle().Render(outcome)
	default:
		return "  " + host + " " + outcome
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	line, _, _ := strings.Cut(s, "\n")
	return line
}
