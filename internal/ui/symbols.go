package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Task completed successfully
	SymbolFail     = "✗" // Task failed
	SymbolPending  = "○" // Host never seen up
	SymbolProgress = "◐" // Task in progress
	SymbolComplete = "●" // Host up
	SymbolSkipped  = "⊘" // Task skipped

	SymbolArrow = "→"
)

// Execution outcome symbols, as printed in the one-line execution summary.
const (
	SymbolExecOK      = "✓"
	SymbolExecFailed  = "❌"
	SymbolExecWarning = "⚠"
)
