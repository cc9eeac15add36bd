package inventory

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rileyhilliard/fleet/internal/availability"
	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePinger answers for the addresses in up, naming them from names.
type fakePinger struct {
	mu    sync.Mutex
	up    map[string]bool
	names map[string]string
	seen  []string
}

func (p *fakePinger) Ping(_ context.Context, addr string) probe.PingResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, addr)
	r := probe.PingResult{Address: addr, FQDN: p.names[addr], Hostname: p.names[addr], Method: "fake"}
	if p.up[addr] {
		r.Reachable = true
		r.Delay = 3 * time.Millisecond
	}
	return r
}

type noResolver struct{}

func (noResolver) LookupIP(context.Context, string, string) ([]net.IP, error) {
	return nil, fmt.Errorf("no dns in tests")
}

type fakeChecker struct{}

func (fakeChecker) Check(_ context.Context, t probe.URLTarget) probe.URLCheck {
	c := probe.URLCheck{Target: t, CheckTime: time.Now(), Status: -1}
	if t.Host == "down.example" {
		c.Err = fmt.Errorf("connection refused")
		return c
	}
	c.Status = 200
	c.ResponseTime = 20 * time.Millisecond
	c.TotalTime = 25 * time.Millisecond
	c.Content = "ok"
	c.Expire = time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)
	return c
}

// fakePoller answers sysDescr on every host except quiet ones.
type fakePoller struct {
	quiet map[string]bool
}

func (p fakePoller) Get(_ context.Context, t probe.SNMPTarget) probe.SNMPValue {
	v := probe.SNMPValue{Target: t, CheckTime: time.Now()}
	if p.quiet[t.Host] {
		v.Err = fmt.Errorf("request timeout")
		return v
	}
	v.Numeric = ".1.3.6.1.2.1.1.1.0"
	v.Value = "Linux " + t.Host
	return v
}

// fakeExecutor records what it was asked to run and succeeds everywhere.
type fakeExecutor struct {
	cmdline string
	script  []byte
	pubkey  string
	targets []remote.Target
}

func (e *fakeExecutor) results(cmdline string, hosts []remote.Target) []remote.ExecutionResult {
	e.targets = hosts
	out := make([]remote.ExecutionResult, len(hosts))
	now := time.Now()
	for i, h := range hosts {
		out[i] = remote.ExecutionResult{
			RunID:   "run-1",
			Target:  h,
			User:    h.User,
			Cmdline: cmdline,
			Stdout:  "hello from " + h.FQDN,
			Start:   now,
			End:     now.Add(time.Second),
		}
	}
	return out
}

func (e *fakeExecutor) Execute(_ context.Context, cmdline string, hosts []remote.Target, _ int) ([]remote.ExecutionResult, error) {
	e.cmdline = cmdline
	return e.results(cmdline, hosts), nil
}

func (e *fakeExecutor) RunScript(_ context.Context, name string, script []byte, hosts []remote.Target, _ int) ([]remote.ExecutionResult, error) {
	e.script = script
	return e.results("script "+name, hosts), nil
}

func (e *fakeExecutor) Deploy(_ context.Context, pubkey string, hosts []remote.Target, _ int, prompt remote.PasswordFunc) ([]remote.ExecutionResult, error) {
	if _, err := prompt(); err != nil {
		return nil, err
	}
	e.pubkey = pubkey
	return e.results("deploy key", hosts), nil
}

type fixture struct {
	svc    *Service
	store  *store.Store
	pinger *fakePinger
	exec   *fakeExecutor
	quiet  map[string]bool // SNMP agents that stopped answering
	log    *logger.BufferLogger
}

func newFixture(t *testing.T, policy string) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "fleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Ping.ChunkSize = 2
	if policy != "" {
		cfg.Selection.CachePolicy = policy
	}

	f := &fixture{
		store:  st,
		pinger: &fakePinger{up: map[string]bool{}, names: map[string]string{}},
		exec:   &fakeExecutor{},
		quiet:  map[string]bool{"10.0.0.2": true},
		log:    logger.NewBufferLogger(),
	}
	f.svc = New(cfg, st, Deps{
		Pinger:   f.pinger,
		URLs:     fakeChecker{},
		SNMP:     fakePoller{quiet: f.quiet},
		Remote:   f.exec,
		Resolver: noResolver{},
		Logger:   f.log,
	})
	return f
}

func names(hosts []HostView) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.FQDN
	}
	return out
}

func TestSweep_RecordsBatch(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.pinger.up["10.9.0.1"] = true
	f.pinger.names["10.9.0.1"] = "a.lan"

	sum, err := f.svc.Sweep(ctx, "10.9.0.0/30")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Up)
	assert.Equal(t, 1, sum.Down)
	assert.Equal(t, 1, sum.New)
	require.Len(t, sum.Changes, 1)
	assert.Equal(t, "a.lan", sum.Changes[0].FQDN)

	hosts, err := f.svc.Hosts(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.lan"}, names(hosts))

	all, err := f.svc.Hosts(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.9.0.2", "a.lan"}, names(all))

	ups, err := f.svc.Updates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "10.9.0.0/30", ups[0].Network)
	assert.Equal(t, 1, ups[0].Up)
}

func TestSweep_InvalidNetwork(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.svc.Sweep(context.Background(), "not-a-network")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrProbe))
}

func TestSweep_CancelledRecordsNothing(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Sweep(ctx, "10.9.0.0/29")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDispatch))

	ups, err := f.svc.Updates(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, ups)
	all, err := f.svc.Hosts(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRecheck_KeepsInventoryNames(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.AddHost(ctx, "db1.lan", "10.0.0.7", "")
	require.NoError(t, err)
	_, err = f.svc.AddHost(ctx, "db2.lan", "", "")
	require.NoError(t, err)
	f.pinger.up["10.0.0.7"] = true

	sum, err := f.svc.Recheck(ctx, "db1.lan|db2.lan")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Up)
	assert.Equal(t, 1, sum.Down)
	assert.Equal(t, []availability.Change{{FQDN: "db1.lan", Outcome: availability.New}}, sum.Changes)

	// db2 has no address and doesn't resolve, so its name is pinged
	assert.ElementsMatch(t, []string{"10.0.0.7", "db2.lan"}, f.pinger.seen)

	all, err := f.svc.Hosts(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"db1.lan", "db2.lan"}, names(all))

	f.pinger.up["10.0.0.7"] = false
	sum, err = f.svc.Recheck(ctx, "db1.lan")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Lost)

	ups, err := f.svc.Updates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, "db1.lan", ups[0].Selection)
}

func TestAddHost_RejectsBadNames(t *testing.T) {
	f := newFixture(t, "")
	for _, name := range []string{"", "web 1", "%prod", "a|b"} {
		_, err := f.svc.AddHost(context.Background(), name, "", "")
		require.Error(t, err, name)
		assert.True(t, errors.IsCode(err, errors.ErrQuery), name)
	}
}

func TestTag_CachePolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy string
		want   []string
	}{
		{"memoize keeps the stale answer", config.CacheMemoize, []string{}},
		{"invalidate re-evaluates", config.CacheInvalidateOnTagChange, []string{"web1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.policy)
			ctx := context.Background()
			for _, h := range []string{"web1", "web2"} {
				_, err := f.svc.AddHost(ctx, h, "", "")
				require.NoError(t, err)
			}

			res, err := f.svc.Select(ctx, "", "%prod", false)
			require.NoError(t, err)
			assert.Empty(t, res.Objects)

			require.NoError(t, f.svc.Tag(ctx, "prod", "production", "web1"))

			res, err = f.svc.Select(ctx, "", "%prod", false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Objects)

			res, err = f.svc.Select(ctx, "", "%prod", true)
			require.NoError(t, err)
			assert.Equal(t, []string{"web1"}, res.Objects)
		})
	}
}

func TestTag_UnknownHost(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.svc.AddHost(ctx, "web1", "", "")
	require.NoError(t, err)

	err = f.svc.Tag(ctx, "prod", "", "web1", "ghost")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrQuery))

	// the transaction rolled back
	tags, err := f.svc.Tags(ctx, "web1")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestUntag(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	for _, h := range []string{"web1", "web2"} {
		_, err := f.svc.AddHost(ctx, h, "", "")
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Tag(ctx, "prod", "", "web1", "web2"))

	n, err := f.svc.Untag(ctx, "prod", "web1", "web3")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hosts, err := f.svc.Hosts(ctx, true)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Empty(t, hosts[0].Tags)
	assert.Equal(t, []string{"prod"}, hosts[1].Tags)
}

func TestImportSSHConfig(t *testing.T) {
	f := newFixture(t, config.CacheInvalidateOnTagChange)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "ssh_config")
	require.NoError(t, os.WriteFile(path, []byte(`Host build
  HostName 10.1.1.5
  User ci
  IdentityFile /keys/ci_ed25519

Host gw bastion
  HostName gw.example.com

Host *.internal
  User nobody
`), 0o600))

	imported, err := f.svc.ImportSSHConfig(ctx, path)
	require.NoError(t, err)
	sort.Strings(imported)
	assert.Equal(t, []string{"bastion", "build", "gw"}, imported)

	host, err := f.store.GetHost(ctx, "build")
	require.NoError(t, err)
	require.NotNil(t, host)
	assert.Equal(t, "ci", host.User)
	assert.Equal(t, "/keys/ci_ed25519", host.SSHKeyFile)

	tags, err := f.svc.Tags(ctx, "build")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "10.1.1.5 as ci", tags[0].Description)

	res, err := f.svc.Select(ctx, "", "%"+ImportTag, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"bastion", "build", "gw"}, res.Objects)
}

func TestURLs_CheckAndRecord(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.AddURL(ctx, "https://up.example/health")
	require.NoError(t, err)
	_, err = f.svc.AddURL(ctx, "http://down.example:8080/")
	require.NoError(t, err)

	checks, err := f.svc.CheckURLs(ctx)
	require.NoError(t, err)
	require.Len(t, checks, 2)

	urls, err := f.svc.URLs(ctx)
	require.NoError(t, err)
	require.Len(t, urls, 2)

	byHost := map[string]store.URLRecord{}
	for _, u := range urls {
		byHost[u.Host] = u
	}
	up := byHost["up.example"]
	assert.Equal(t, 200, up.Status)
	assert.Equal(t, 443, up.Port)
	assert.InDelta(t, 0.02, up.ResponseTime, 1e-9)
	assert.Equal(t, time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC).Unix(), up.Expire)
	assert.NotNil(t, up.CheckTime)

	down := byHost["down.example"]
	assert.Equal(t, -1, down.Status)
	assert.Equal(t, "connection refused", down.GetError)
	assert.Zero(t, down.Expire)

	require.NoError(t, f.svc.RemoveURL(ctx, "http://down.example:8080/"))
	err = f.svc.RemoveURL(ctx, "http://down.example:8080/")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrQuery))
}

func TestPollSNMP(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.svc.AddHost(ctx, "sw1", "10.0.0.1", "")
	require.NoError(t, err)
	_, err = f.svc.AddHost(ctx, "sw2", "10.0.0.2", "")
	require.NoError(t, err)

	values, err := f.svc.PollSNMP(ctx, "sw1|sw2", []string{"sysDescr"})
	require.NoError(t, err)
	require.Len(t, values, 2)

	failed := 0
	for _, v := range values {
		if v.Err != nil {
			failed++
			assert.Equal(t, "sw2", v.Target.Host)
		}
	}
	assert.Equal(t, 1, failed)

	readings, err := f.svc.SNMPReadings(ctx, "")
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "sw1", readings[0].Host)
	assert.Equal(t, probe.DefaultMIB, readings[0].MIB)
	assert.Equal(t, "sysDescr", readings[0].OID)
	assert.Equal(t, "Linux 10.0.0.1", readings[0].Value)
	assert.Empty(t, readings[0].GetError)
	assert.Equal(t, "sw1|sw2", readings[0].Selection)

	assert.Equal(t, "sw2", readings[1].Host)
	assert.Empty(t, readings[1].Value)
	assert.Equal(t, "request timeout", readings[1].GetError)

	_, err = f.svc.PollSNMP(ctx, "sw1", nil)
	assert.True(t, errors.IsCode(err, errors.ErrQuery))
}

func TestPollSNMP_FailedReadReplacesValue(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.svc.AddHost(ctx, "sw1", "10.0.0.1", "")
	require.NoError(t, err)

	_, err = f.svc.PollSNMP(ctx, "sw1", []string{"sysDescr"})
	require.NoError(t, err)
	first, err := f.svc.SNMPReadings(ctx, "sw1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "Linux 10.0.0.1", first[0].Value)

	f.quiet["10.0.0.1"] = true

	values, err := f.svc.PollSNMP(ctx, "sw1", []string{"sysDescr"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.Error(t, values[0].Err)

	second, err := f.svc.SNMPReadings(ctx, "sw1")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Empty(t, second[0].Value)
	assert.Equal(t, "request timeout", second[0].GetError)
	assert.False(t, second[0].CheckTime.Before(first[0].CheckTime))
}

func TestSplitObject(t *testing.T) {
	tests := []struct {
		in, mib, oid string
	}{
		{"IF-MIB::ifNumber", "IF-MIB", "ifNumber"},
		{"sysUpTime", probe.DefaultMIB, "sysUpTime"},
		{".1.3.6.1.2.1.1.3.0", "", ".1.3.6.1.2.1.1.3.0"},
	}
	for _, tt := range tests {
		mib, oid := splitObject(tt.in)
		assert.Equal(t, tt.mib, mib, tt.in)
		assert.Equal(t, tt.oid, oid, tt.in)
	}
}

func TestExec_RecordsExecutions(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.svc.AddHost(ctx, "web1", "10.0.0.5", "deploy")
	require.NoError(t, err)
	_, err = f.svc.AddHost(ctx, "web2", "", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.SetLogin(ctx, "web2", "ops", "/keys/web2"))

	results, err := f.svc.Exec(ctx, "web1|web2", "uptime")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "uptime", f.exec.cmdline)
	assert.Equal(t, []remote.Target{
		{FQDN: "web1", Address: "10.0.0.5", User: "deploy"},
		{FQDN: "web2", User: "ops", KeyFile: "/keys/web2"},
	}, f.exec.targets)

	execs, err := f.svc.Executions(ctx, "web1", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "run-1", execs[0].RunID)
	assert.Equal(t, "uptime", execs[0].Cmdline)
	assert.Equal(t, "hello from web1", execs[0].Stdout)
}

func TestExec_Errors(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.Exec(ctx, "nothing", "uptime")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrQuery))

	bare := New(config.DefaultConfig(), f.store, Deps{Pinger: f.pinger})
	_, err = bare.Exec(ctx, "web1", "uptime")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestRunScript(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.svc.AddHost(ctx, "web1", "", "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "check.sh")
	require.NoError(t, os.WriteFile(path, []byte("df -h /\n"), 0o644))

	results, err := f.svc.RunScript(ctx, "web1", path)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "df -h /\n", string(f.exec.script))
	assert.Equal(t, "script check.sh", results[0].Cmdline)

	_, err = f.svc.RunScript(ctx, "web1", filepath.Join(t.TempDir(), "missing.sh"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
}

func TestDeploy(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.svc.AddHost(ctx, "web1", "", "")
	require.NoError(t, err)

	results, err := f.svc.Deploy(ctx, "web1", "ssh-ed25519 AAAA test", func() (string, error) { return "pw", nil })
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ssh-ed25519 AAAA test", f.exec.pubkey)

	execs, err := f.svc.Executions(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}
