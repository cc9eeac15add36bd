package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a new Bubbles table with default styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{
			Title: c.Title,
			Width: c.Width,
		}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.
		Foreground(ColorPrimary)
	// Nothing is focused, so the selected row must look like any other.
	s.Selected = s.Cell

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table string.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}

	t := NewTable(columns, tableRows)
	return t.View()
}

// HostRow is one line of the inventory listing.
type HostRow struct {
	FQDN       string
	IP         string
	Reachable  bool
	SeenUp     bool
	Delay      float64 // seconds
	LastChange *time.Time
	Up         int
	Down       int
	Tags       []string
}

// RenderHostTable renders the inventory listing. Status is ● when the host
// answered its latest probe, ✗ when it didn't and ○ when it never has.
func RenderHostTable(rows []HostRow, now time.Time) string {
	if len(rows) == 0 {
		return "No hosts in the inventory"
	}

	var b strings.Builder
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)

	b.WriteString(header.Render(
		"  " + padRight("HOST", 34) + padRight("IP", 17) + padRight("DELAY", 10) +
			padRight("CHANGED", 14) + padRight("UP/DOWN", 11) + "TAGS"))
	b.WriteString("\n")

	for _, r := range rows {
		var icon, delay string
		switch {
		case !r.SeenUp && !r.Reachable:
			icon = MutedStyle().Render(SymbolPending)
			delay = MutedStyle().Render("-")
		case r.Reachable:
			icon = SuccessStyle().Render(SymbolComplete)
			delay = fmt.Sprintf("%.1fms", r.Delay*1000)
		default:
			icon = ErrorStyle().Render(SymbolFail)
			delay = ErrorStyle().Render("down")
		}

		changed := "-"
		if r.LastChange != nil {
			changed = HumanAge(now.Sub(*r.LastChange))
		}

		b.WriteString("  ")
		b.WriteString(icon)
		b.WriteString(" ")
		b.WriteString(padRight(r.FQDN, 32))
		b.WriteString(padRight(r.IP, 17))
		b.WriteString(padRight(delay, 10))
		b.WriteString(padRight(MutedStyle().Render(changed), 14))
		b.WriteString(padRight(fmt.Sprintf("%d/%d", r.Up, r.Down), 11))
		b.WriteString(MutedStyle().Render(strings.Join(r.Tags, ",")))
		b.WriteString("\n")
	}
	return b.String()
}

// HumanAge renders a duration the way people say it: "12s ago", "3h ago",
// "5d ago".
func HumanAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// padRight pads a string to the specified width.
func padRight(s string, width int) string {
	// Account for ANSI codes when calculating visible length
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
