package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/rileyhilliard/fleet/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Run runs cmd in a new session. When ctx ends before the command exits,
// the remote process is sent SIGKILL, the session is torn down and ctx's
// error is returned.
func (c *Client) Run(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	session, err := c.Client.NewSession()
	if err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create SSH session",
			"Connection may have been closed. Try reconnecting.")
	}
	defer session.Close()

	session.Stdin = stdin
	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Start(cmd); err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Failed to start command: %s", cmd),
			"The server refused the exec request.")
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err := <-done:
		return exitStatus(cmd, err)
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return -1, ctx.Err()
	}
}

func exitStatus(cmd string, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, errors.WrapWithCode(err, errors.ErrExec,
		fmt.Sprintf("Command ended without an exit status: %s", cmd),
		"The connection dropped while the command was running.")
}

// Exec runs cmd on r, feeding it stdin when non-nil, and returns its
// buffered output.
func Exec(ctx context.Context, r Runner, cmd string, stdin []byte) (stdout, stderr []byte, exitCode int, err error) {
	var in io.Reader
	if stdin != nil {
		in = bytes.NewReader(stdin)
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode, err = r.Run(ctx, cmd, in, &stdoutBuf, &stderrBuf)
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitCode, err
}
