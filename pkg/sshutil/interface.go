package sshutil

import (
	"context"
	"io"
)

// Runner runs commands on one remote host. Both the real Client and the
// mock in pkg/sshutil/testing satisfy it.
type Runner interface {
	// Run executes cmd and returns its exit status. The status is -1 with a
	// non-nil error when the command couldn't run or ctx ended first. A
	// non-zero status with nil error means the command ran and failed.
	Run(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error)

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}
