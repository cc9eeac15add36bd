// Package ui renders fleet's terminal output.
//
// # Components Overview
//
//	RenderHostTable - Inventory listing with reachability symbols
//	RenderExecution - One line per host for remote commands
//	RenderURL       - URL check summary with certificate expiry
//	Progress        - Chunk lines plus a Bubble Tea spinner and bar on terminals
//	PromptPassword  - Huh password input, refused without a terminal
//
// # Color Scheme
//
// Colors are ANSI codes for broad terminal compatibility:
//
//	ColorSuccess   (green)  - Reachable hosts, zero exit codes
//	ColorError     (red)    - Unreachable hosts, failed commands
//	ColorWarning   (yellow) - Commands without an exit status, expiring certificates
//	ColorMuted     (gray)   - Timing and secondary details
//	ColorSecondary (blue)   - In-progress indicators
//
// Use DisableColors() to switch to monochrome output (for --no-color flag).
package ui
