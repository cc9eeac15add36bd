package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	names map[string][]string
}

func (f fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if n, ok := f.names[addr]; ok {
		return n, nil
	}
	return nil, errors.New("no PTR record")
}

func listenLocal(t *testing.T) (port int, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, func() { ln.Close() }
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestTCPConnect_Open(t *testing.T) {
	port, stop := listenLocal(t)
	defer stop()

	delay, ok, err := TCPConnect(context.Background(), "127.0.0.1", port, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, delay, time.Duration(0))
}

func TestTCPConnect_RefusedCountsAsUp(t *testing.T) {
	_, ok, err := TCPConnect(context.Background(), "127.0.0.1", closedPort(t), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

// expiredContext makes every dial fail before a packet leaves, whatever the
// local network does with the address.
func expiredContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	t.Cleanup(cancel)
	return ctx
}

func TestTCPConnect_Unreachable(t *testing.T) {
	_, ok, err := TCPConnect(expiredContext(t), "192.0.2.1", 22, 100*time.Millisecond)
	assert.False(t, ok)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FailTimeout, pe.Reason)
}

func TestPinger_TCPOnly(t *testing.T) {
	port, stop := listenLocal(t)
	defer stop()

	p := &Pinger{
		Timeout:  time.Second,
		TCPPort:  port,
		TCPOnly:  true,
		Resolver: fakeResolver{names: map[string][]string{"127.0.0.1": {"web1.example.com."}}},
	}

	res := p.Ping(context.Background(), "127.0.0.1")
	assert.True(t, res.Reachable)
	assert.Equal(t, MethodTCP, res.Method)
	assert.Equal(t, "web1.example.com", res.FQDN)
	assert.Equal(t, "web1", res.Hostname)
	assert.Equal(t, "127.0.0.1", res.Address)
	assert.NoError(t, res.Err)
}

func TestPinger_UnresolvedNameFallsBackToAddress(t *testing.T) {
	p := &Pinger{
		Timeout:  100 * time.Millisecond,
		TCPPort:  22,
		TCPOnly:  true,
		Resolver: fakeResolver{},
	}

	res := p.Ping(expiredContext(t), "192.0.2.1")
	assert.False(t, res.Reachable)
	assert.Equal(t, "192.0.2.1", res.FQDN)
	assert.Equal(t, "192.0.2.1", res.Hostname)
	assert.Error(t, res.Err)
}

func TestPinger_ICMPOrFallback(t *testing.T) {
	// Whether ICMP sockets are allowed depends on the machine; either way
	// loopback must come back reachable once the TCP fallback port listens.
	port, stop := listenLocal(t)
	defer stop()

	p := NewPinger(time.Second, port, nil)
	p.Resolver = fakeResolver{}

	res := p.Ping(context.Background(), "127.0.0.1")
	assert.True(t, res.Reachable, "method %s err %v", res.Method, res.Err)
	assert.Contains(t, []string{MethodICMP, MethodTCP}, res.Method)
}

func TestPinger_EchoRejectsNonIPv4(t *testing.T) {
	p := &Pinger{Timeout: time.Second}
	for _, addr := range []string{"localhost", "::1", ""} {
		_, _, err := p.echo(context.Background(), addr)
		assert.Error(t, err, addr)
	}
}
