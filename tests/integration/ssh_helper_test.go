package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/inventory"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/metrics"
	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/stretchr/testify/require"
)

// testHostName is the inventory name of the SSH test server.
const testHostName = "ssh-test.fleet"

// RequireSSH skips the test unless a test SSH server is configured.
func RequireSSH(t *testing.T) {
	t.Helper()
	if os.Getenv("FLEET_TEST_SSH_HOST") == "" {
		t.Skip("Skipping: FLEET_TEST_SSH_HOST not set (SSH test server not available)")
	}
	if os.Getenv("FLEET_TEST_SSH_KEY") == "" {
		t.Skip("Skipping: FLEET_TEST_SSH_KEY not set (SSH test key not available)")
	}
}

// GetTestSSHHost returns host:port of the test server.
func GetTestSSHHost() string {
	return os.Getenv("FLEET_TEST_SSH_HOST")
}

// GetTestSSHUser returns the login for the test server, defaulting to root.
func GetTestSSHUser() string {
	if u := os.Getenv("FLEET_TEST_SSH_USER"); u != "" {
		return u
	}
	return "root"
}

// NewRemoteService builds a service on a scratch store whose inventory holds
// the test server. The fleet key is generated under the temp dir; the test
// server's key is set as the host's key file.
func NewRemoteService(t *testing.T) (*inventory.Service, *store.Store) {
	t.Helper()
	RequireSSH(t)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "fleet.db")
	cfg.SSH.User = GetTestSSHUser()
	cfg.SSH.PrivateKey = filepath.Join(dir, "fleet_rsa")
	cfg.SSH.PublicKey = cfg.SSH.PrivateKey + ".pub"
	cfg.SSH.HostKeyPolicy = config.HostKeyOff
	require.NoError(t, config.Validate(cfg))

	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	key, err := remote.LoadOrCreateKey(cfg.SSH.PrivateKey, cfg.SSH.PublicKey)
	require.NoError(t, err)

	log := logger.NewBufferLogger()
	rec := metrics.New()
	coord := remote.NewCoordinator(remote.SettingsFrom(cfg.SSH), key, rec, log)
	svc := inventory.New(cfg, st, inventory.Deps{Remote: coord, Metrics: rec, Logger: log})

	_, err = svc.AddHost(t.Context(), testHostName, GetTestSSHHost(), "")
	require.NoError(t, err)
	require.NoError(t, svc.SetLogin(t.Context(), testHostName, GetTestSSHUser(), os.Getenv("FLEET_TEST_SSH_KEY")))
	return svc, st
}
