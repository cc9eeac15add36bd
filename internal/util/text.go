// Package util holds small text helpers shared by the remote and cli
// packages.
package util

import (
	"strconv"
	"strings"
)

// ShellQuote wraps s in single quotes so a POSIX shell reads it literally.
func ShellQuote(s string) string {
	// ' becomes '\'' (close, escaped quote, reopen)
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Pluralize returns singular if count is 1, otherwise plural.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// Count renders "1 host", "3 hosts" and so on.
func Count(n int, singular, plural string) string {
	return strconv.Itoa(n) + " " + Pluralize(n, singular, plural)
}
