package probe

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailReason
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: FailTimeout},
		{name: "i/o timeout text", err: errors.New("dial tcp: i/o timeout"), want: FailTimeout},
		{name: "refused errno", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: FailRefused},
		{name: "refused text", err: errors.New("connection refused"), want: FailRefused},
		{name: "no route", err: errors.New("connect: no route to host"), want: FailUnreachable},
		{name: "net unreachable errno", err: syscall.ENETUNREACH, want: FailUnreachable},
		{name: "auth", err: errors.New("ssh: unable to authenticate, attempted methods [none publickey]"), want: FailAuth},
		{name: "host key", err: errors.New("ssh: host key mismatch"), want: FailHostKey},
		{name: "tls", err: errors.New("x509: certificate has expired"), want: FailTLS},
		{name: "other", err: errors.New("something odd"), want: FailUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := Categorize("10.0.0.1", tt.err)
			if assert.NotNil(t, pe) {
				assert.Equal(t, tt.want, pe.Reason)
				assert.ErrorIs(t, pe, tt.err)
			}
		})
	}
}

func TestCategorize_Nil(t *testing.T) {
	assert.Nil(t, Categorize("x", nil))
}

func TestCategorize_AlreadyCategorized(t *testing.T) {
	orig := &Error{Target: "a", Reason: FailAuth}
	assert.Same(t, orig, Categorize("b", fmt.Errorf("wrap: %w", orig)))
}

func TestErrorString(t *testing.T) {
	e := &Error{Target: "h", Reason: FailRefused, Cause: errors.New("boom")}
	assert.Equal(t, "probe h failed: connection refused (boom)", e.Error())
	assert.Equal(t, "probe h failed: host unreachable", (&Error{Target: "h", Reason: FailUnreachable}).Error())
}
