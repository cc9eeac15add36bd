package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// FailReason categorizes why a probe failed.
type FailReason int

const (
	FailUnknown FailReason = iota
	FailTimeout
	FailRefused
	FailUnreachable
	FailAuth
	FailHostKey
	FailTLS
)

// String returns a human-readable description of the failure reason.
func (r FailReason) String() string {
	switch r {
	case FailTimeout:
		return "connection timed out"
	case FailRefused:
		return "connection refused"
	case FailUnreachable:
		return "host unreachable"
	case FailAuth:
		return "authentication failed"
	case FailHostKey:
		return "host key verification failed"
	case FailTLS:
		return "tls handshake failed"
	default:
		return "unknown error"
	}
}

// Error is a failed probe with a categorized reason.
type Error struct {
	Target string
	Reason FailReason
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("probe %s failed: %s (%v)", e.Target, e.Reason, e.Cause)
	}
	return fmt.Sprintf("probe %s failed: %s", e.Target, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Categorize converts a network error into an *Error with a failure reason.
// Returns nil for a nil err.
func Categorize(target string, err error) *Error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	pe := &Error{Target: target, Reason: FailUnknown, Cause: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		pe.Reason = FailTimeout
		return pe
	case errors.Is(err, syscall.ECONNREFUSED):
		pe.Reason = FailRefused
		return pe
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		pe.Reason = FailUnreachable
		return pe
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout"):
		pe.Reason = FailTimeout
	case strings.Contains(errStr, "connection refused"):
		pe.Reason = FailRefused
	case strings.Contains(errStr, "no route to host"),
		strings.Contains(errStr, "network is unreachable"),
		strings.Contains(errStr, "host is down"):
		pe.Reason = FailUnreachable
	case strings.Contains(errStr, "unable to authenticate"),
		strings.Contains(errStr, "no supported methods"),
		strings.Contains(errStr, "permission denied"),
		strings.Contains(errStr, "authentication failed"):
		pe.Reason = FailAuth
	case strings.Contains(errStr, "host key"):
		pe.Reason = FailHostKey
	case strings.Contains(errStr, "x509:"), strings.Contains(errStr, "tls:"):
		pe.Reason = FailTLS
	}

	return pe
}
