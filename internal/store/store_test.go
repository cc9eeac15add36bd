package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "fleet.db")
	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), s.userVersion())
	require.NoError(t, s.Close())

	// reopening is a no-op migration
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, len(migrations), s.userVersion())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrStore))
}

func TestEnsureHost(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.EnsureHost(ctx, "web1.example.com", "web1", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureHost(ctx, "web1.example.com", "other", "10.0.0.99")
	require.NoError(t, err)
	assert.False(t, created)

	h, err := s.GetHost(ctx, "web1.example.com")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "web1", h.Hostname)
	assert.Equal(t, "10.0.0.1", h.IP)
	assert.Equal(t, Unreachable, h.PingDelay)
	assert.False(t, h.Reachable())
	assert.False(t, h.SeenUp())
	assert.Nil(t, h.LastCheck)
	assert.Zero(t, h.Up+h.Down+h.AdjacentUp+h.AdjacentDown)
}

func TestGetHost_Missing(t *testing.T) {
	s := newTestStore(t)
	h, err := s.GetHost(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestSaveHost_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureHost(ctx, "db1", "db1", "10.0.0.2")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	h := &Host{
		FQDN: "db1", Hostname: "db1", IP: "10.0.0.3", PingDelay: 0.012,
		FirstUp: &now, LastUp: &now, LastCheck: &now, LastChange: &now,
		AdjacentUp: 2, Up: 5, Down: 1, User: "ops",
	}
	require.NoError(t, s.SaveHost(ctx, h))

	got, err := s.GetHost(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", got.IP)
	assert.InDelta(t, 0.012, got.PingDelay, 1e-9)
	require.NotNil(t, got.FirstUp)
	assert.True(t, now.Equal(*got.FirstUp))
	assert.Nil(t, got.LastDown)
	assert.Equal(t, 2, got.AdjacentUp)
	assert.Equal(t, 5, got.Up)
	assert.Equal(t, "ops", got.User)
}

func TestListHosts_NeverUpFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"c", "a", "b"} {
		_, err := s.EnsureHost(ctx, n, n, "")
		require.NoError(t, err)
	}
	now := time.Now()
	require.NoError(t, s.SaveHost(ctx, &Host{FQDN: "b", Hostname: "b", PingDelay: 0.1, FirstUp: &now}))

	known, err := s.ListHosts(ctx, false)
	require.NoError(t, err)
	require.Len(t, known, 1)
	assert.Equal(t, "b", known[0].FQDN)

	all, err := s.ListHosts(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].FQDN)

	names, err := s.HostNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	byName, err := s.HostsByName(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, byName, 2)
	assert.Equal(t, "c", byName[0].FQDN)
	assert.Equal(t, "a", byName[1].FQDN)
}

func TestDeleteHost_CascadesExecutionsAndTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureHost(ctx, "web1", "web1", "")
	require.NoError(t, err)
	require.NoError(t, s.TagHost(ctx, "web1", "prod", ""))
	require.NoError(t, s.InsertExecution(ctx, &Execution{
		RunID: "r1", FQDN: "web1", Cmdline: "uptime", ReturnCode: 0,
		Start: time.Now(), End: time.Now(),
	}))

	deleted, err := s.DeleteHost(ctx, "web1")
	require.NoError(t, err)
	assert.True(t, deleted)

	execs, err := s.ListExecutions(ctx, "web1", 10)
	require.NoError(t, err)
	assert.Empty(t, execs)

	tags, err := s.HostTags(ctx, "web1")
	require.NoError(t, err)
	assert.Empty(t, tags)

	deleted, err = s.DeleteHost(ctx, "web1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestExecution_RequiresKnownHost(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertExecution(context.Background(), &Execution{RunID: "r", FQDN: "ghost", Cmdline: "true"})
	assert.Error(t, err)
}

func TestExecutions_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, n := range []string{"a", "b"} {
		_, err := s.EnsureHost(ctx, n, n, "")
		require.NoError(t, err)
	}

	start := time.UnixMilli(1700000000123)
	end := start.Add(1500 * time.Millisecond)
	for i, host := range []string{"a", "b", "a"} {
		require.NoError(t, s.InsertExecution(ctx, &Execution{
			RunID: "run", User: "root", FQDN: host, Cmdline: fmt.Sprintf("cmd%d", i),
			ReturnCode: -2, Status: "timeout", Start: start, End: end,
		}))
	}

	all, err := s.ListExecutions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "cmd2", all[0].Cmdline)
	assert.Equal(t, -2, all[0].ReturnCode)
	assert.True(t, start.Equal(all[0].Start))
	assert.Equal(t, 1500*time.Millisecond, all[0].End.Sub(all[0].Start))

	onlyA, err := s.ListExecutions(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "cmd2", onlyA[0].Cmdline)
}

func TestTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, n := range []string{"web1", "web2"} {
		_, err := s.EnsureHost(ctx, n, n, "")
		require.NoError(t, err)
	}

	require.NoError(t, s.TagHost(ctx, "web1", "prod", "production"))
	require.NoError(t, s.TagHost(ctx, "web1", "prod", "updated"))
	require.NoError(t, s.TagHost(ctx, "web2", "staging", ""))
	assert.Error(t, s.TagHost(ctx, "ghost", "prod", ""), "tagging an unknown host violates the foreign key")

	ok, err := s.IsTagged(ctx, "web1", "prod")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsTagged(ctx, "web2", "prod")
	require.NoError(t, err)
	assert.False(t, ok)

	tags, err := s.HostTags(ctx, "web1")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "updated", tags[0].Description)

	idx, err := s.TagIndex(ctx)
	require.NoError(t, err)
	assert.True(t, idx["web2"]["staging"])
	assert.False(t, idx["web2"]["prod"])

	removed, err := s.UntagHost(ctx, "web1", "prod")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.UntagHost(ctx, "web1", "prod")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := fmt.Errorf("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.EnsureHost(ctx, "a", "a", ""); err != nil {
			return err
		}
		if err := tx.InsertHostUpdate(ctx, &HostUpdate{UpdateTime: time.Now(), Network: "10.0.0.0/30"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	h, err := s.GetHost(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, h)

	updates, err := s.ListHostUpdates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestHostUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &HostUpdate{
		UpdateTime: time.Unix(1700000000, 0), Network: "10.0.0.0/24",
		Up: 3, Down: 251, Back: 1, Lost: 2, New: 3, Duration: 2500 * time.Millisecond,
	}
	require.NoError(t, s.InsertHostUpdate(ctx, u))
	assert.NotZero(t, u.ID)
	require.NoError(t, s.InsertHostUpdate(ctx, &HostUpdate{UpdateTime: time.Now(), Selection: "%prod"}))

	got, err := s.ListHostUpdates(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "%prod", got[0].Selection)
	assert.Equal(t, 251, got[1].Down)
	assert.Equal(t, 2500*time.Millisecond, got[1].Duration)
}

func TestURLs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &URLRecord{Proto: "https", Host: "example.com", Path: "/", Port: 443}
	require.NoError(t, s.AddURL(ctx, u))

	list, err := s.ListURLs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, -1, list[0].Status)
	assert.Nil(t, list[0].CheckTime)

	now := time.Unix(1700000000, 0)
	u.CheckTime = &now
	u.Status = 200
	u.ResponseTime = 0.05
	u.Expire = 1800000000
	require.NoError(t, s.SaveURLCheck(ctx, u))

	list, err = s.ListURLs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 200, list[0].Status)
	assert.Equal(t, int64(1800000000), list[0].Expire)
	require.NotNil(t, list[0].CheckTime)

	deleted, err := s.DeleteURL(ctx, "https", "example.com", "/", 443, "")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestSNMPReadings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &SNMPReading{Host: "sw1", MIB: "SNMPv2-MIB", OID: "sysDescr", Value: "v1", CheckTime: time.Now(), Selection: "%switch"}
	require.NoError(t, s.SaveSNMPReading(ctx, r))
	r.Value = "v2"
	require.NoError(t, s.SaveSNMPReading(ctx, r))

	got, err := s.ListSNMPReadings(ctx, "sw1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].Value)
	assert.Equal(t, "%switch", got[0].Selection)
	assert.Empty(t, got[0].GetError)

	r.Value = ""
	r.GetError = "request timeout"
	require.NoError(t, s.SaveSNMPReading(ctx, r))
	got, err = s.ListSNMPReadings(ctx, "sw1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Value)
	assert.Equal(t, "request timeout", got[0].GetError)
}

func TestSelectionCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.LookupSelection(ctx, "web", "%web")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.StoreSelection(ctx, "web", "%web", []string{"web1", "web2"}))
	objs, found, err := s.LookupSelection(ctx, "web", "%web")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"web1", "web2"}, objs)

	// an empty result is still a cache hit
	require.NoError(t, s.StoreSelection(ctx, "none", "ghost", nil))
	objs, found, err = s.LookupSelection(ctx, "none", "ghost")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, objs)

	require.NoError(t, s.DeleteSelections(ctx, "web"))
	_, found, err = s.LookupSelection(ctx, "web", "%web")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.ClearSelections(ctx))
	_, found, err = s.LookupSelection(ctx, "none", "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}
