package sshutil_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
	sshtesting "github.com/rileyhilliard/fleet/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func startServer(t *testing.T, backend *sshtesting.MockClient, opts sshtesting.ServerOptions) *sshtesting.Server {
	t.Helper()
	srv, err := sshtesting.StartServer(backend, opts)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func dialOptions(t *testing.T, signer ssh.Signer) sshutil.DialOptions {
	return sshutil.DialOptions{
		User:           "root",
		Signers:        []ssh.Signer{signer},
		HostKeyPolicy:  sshutil.HostKeyAcceptNew,
		KnownHosts:     filepath.Join(t.TempDir(), "known_hosts"),
		ConnectTimeout: 2 * time.Second,
		BannerTimeout:  2 * time.Second,
		AuthTimeout:    2 * time.Second,
		SSHConfig:      sshutil.NoSSHConfig,
	}
}

func TestDial_RunWithKey(t *testing.T) {
	signer := newSigner(t)
	backend := sshtesting.NewMockClient("web1")
	backend.SetCommandResponse("uptime", sshtesting.CommandResponse{Stdout: []byte(" 10:00 up 3 days\n")})
	srv := startServer(t, backend, sshtesting.ServerOptions{AuthorizedKeys: []ssh.PublicKey{signer.PublicKey()}})

	client, err := sshutil.Dial(context.Background(), "ops@"+srv.Addr, dialOptions(t, signer))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, srv.Addr, client.GetAddress())
	assert.Equal(t, "ops", client.User)
	assert.Equal(t, []string{"ops"}, srv.Logins())

	stdout, _, code, err := sshutil.Exec(context.Background(), client, "uptime", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, " 10:00 up 3 days\n", string(stdout))
}

func TestDial_NonZeroExitAndStderr(t *testing.T) {
	signer := newSigner(t)
	backend := sshtesting.NewMockClient("web1")
	backend.SetCommandResponse("false-ish", sshtesting.CommandResponse{Stderr: []byte("nope\n"), ExitCode: 3})
	srv := startServer(t, backend, sshtesting.ServerOptions{AuthorizedKeys: []ssh.PublicKey{signer.PublicKey()}})

	client, err := sshutil.Dial(context.Background(), srv.Addr, dialOptions(t, signer))
	require.NoError(t, err)
	defer client.Close()

	_, stderr, code, err := sshutil.Exec(context.Background(), client, "false-ish", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "nope\n", string(stderr))
}

func TestDial_StdinReachesCommand(t *testing.T) {
	signer := newSigner(t)
	backend := sshtesting.NewMockClient("web1")
	srv := startServer(t, backend, sshtesting.ServerOptions{AuthorizedKeys: []ssh.PublicKey{signer.PublicKey()}})

	client, err := sshutil.Dial(context.Background(), srv.Addr, dialOptions(t, signer))
	require.NoError(t, err)
	defer client.Close()

	code, err := client.Run(context.Background(), "cat > /tmp/script.sh", strings.NewReader("echo hi\n"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	content, err := backend.GetFS().ReadFile("/tmp/script.sh")
	require.NoError(t, err)
	assert.Equal(t, "echo hi\n", string(content))
}

func TestRun_ContextEndsLongCommand(t *testing.T) {
	signer := newSigner(t)
	backend := sshtesting.NewMockClient("web1")
	backend.SetCommandResponse("sleep 600", sshtesting.CommandResponse{Delay: 10 * time.Minute})
	srv := startServer(t, backend, sshtesting.ServerOptions{AuthorizedKeys: []ssh.PublicKey{signer.PublicKey()}})

	client, err := sshutil.Dial(context.Background(), srv.Addr, dialOptions(t, signer))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	code, err := client.Run(ctx, "sleep 600", nil, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDial_Password(t *testing.T) {
	backend := sshtesting.NewMockClient("web1")
	srv := startServer(t, backend, sshtesting.ServerOptions{Password: "s3cret"})

	opts := dialOptions(t, newSigner(t))
	opts.Signers = nil
	opts.Password = "s3cret"
	client, err := sshutil.Dial(context.Background(), srv.Addr, opts)
	require.NoError(t, err)
	client.Close()

	opts.Password = "wrong"
	_, err = sshutil.Dial(context.Background(), srv.Addr, opts)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestDial_NoAuthMethods(t *testing.T) {
	opts := dialOptions(t, newSigner(t))
	opts.Signers = nil
	_, err := sshutil.Dial(context.Background(), "127.0.0.1:1", opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No SSH auth methods")
}

func TestDial_Unreachable(t *testing.T) {
	opts := dialOptions(t, newSigner(t))
	opts.ConnectTimeout = 500 * time.Millisecond
	_, err := sshutil.Dial(context.Background(), "127.0.0.1:1", opts)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestDial_HandshakeTimeout(t *testing.T) {
	signer := newSigner(t)
	srv := startServer(t, sshtesting.NewMockClient("web1"), sshtesting.ServerOptions{
		AuthorizedKeys: []ssh.PublicKey{signer.PublicKey()},
		HandshakeDelay: 2 * time.Second,
	})

	opts := dialOptions(t, signer)
	opts.BannerTimeout = 100 * time.Millisecond
	opts.AuthTimeout = 100 * time.Millisecond

	start := time.Now()
	_, err := sshutil.Dial(context.Background(), srv.Addr, opts)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestDial_HostKeyPolicies(t *testing.T) {
	signer := newSigner(t)
	backend := sshtesting.NewMockClient("web1")
	srv := startServer(t, backend, sshtesting.ServerOptions{AuthorizedKeys: []ssh.PublicKey{signer.PublicKey()}})

	opts := dialOptions(t, signer)

	// strict rejects a host missing from known_hosts
	opts.HostKeyPolicy = sshutil.HostKeyStrict
	_, err := sshutil.Dial(context.Background(), srv.Addr, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not in")

	// accept-new learns it
	opts.HostKeyPolicy = sshutil.HostKeyAcceptNew
	client, err := sshutil.Dial(context.Background(), srv.Addr, opts)
	require.NoError(t, err)
	client.Close()

	data, err := os.ReadFile(opts.KnownHosts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ssh-ed25519")

	// and strict now accepts it
	opts.HostKeyPolicy = sshutil.HostKeyStrict
	client, err = sshutil.Dial(context.Background(), srv.Addr, opts)
	require.NoError(t, err)
	client.Close()

	// a different server on the same address would be a mismatch; simulate
	// by pointing a second server's key at the learned entry
	other := startServer(t, backend, sshtesting.ServerOptions{AuthorizedKeys: []ssh.PublicKey{signer.PublicKey()}})
	line := strings.Replace(string(data), srv.Addr[strings.LastIndex(srv.Addr, ":")+1:], other.Addr[strings.LastIndex(other.Addr, ":")+1:], 1)
	require.NoError(t, os.WriteFile(opts.KnownHosts, []byte(line), 0o600))

	opts.HostKeyPolicy = sshutil.HostKeyAcceptNew
	_, err = sshutil.Dial(context.Background(), other.Addr, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host key mismatch")

	opts.HostKeyPolicy = sshutil.HostKeyOff
	client, err = sshutil.Dial(context.Background(), other.Addr, opts)
	require.NoError(t, err)
	client.Close()
}

func TestDial_UnknownPolicy(t *testing.T) {
	opts := dialOptions(t, newSigner(t))
	opts.HostKeyPolicy = "yolo"
	_, err := sshutil.Dial(context.Background(), "127.0.0.1:1", opts)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
