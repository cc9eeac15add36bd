// Package remote runs commands across many hosts over SSH and deploys the
// fleet key to them. Every host yields an ExecutionResult; connection
// problems and runaway commands are classified into the return code instead
// of surfacing as errors.
package remote

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/dispatch"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/metrics"
	"github.com/rileyhilliard/fleet/internal/util"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
	"golang.org/x/crypto/ssh"
)

// Return codes that don't come from the remote command.
const (
	TransportFailure = -1
	WatchdogTimeout  = -2
)

// KeyMarker tags lines fleet appends to authorized_keys.
const KeyMarker = "##fleet key##"

// Target is one host to run against.
type Target struct {
	FQDN    string
	Address string // dialed instead of FQDN when set
	User    string // overrides the configured login
	KeyFile string // overrides the fleet key for Execute and RunScript
}

func (t Target) dialHost() string {
	if t.Address != "" {
		return t.Address
	}
	return t.FQDN
}

// ExecutionResult is the outcome of a command on one host.
type ExecutionResult struct {
	RunID      string
	Target     Target
	User       string
	Cmdline    string
	ReturnCode int
	Stdout     string
	Stderr     string
	// Status explains negative return codes; empty otherwise.
	Status string
	Start  time.Time
	End    time.Time
}

// Duration is the wall time spent on the host, dial included.
func (r ExecutionResult) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// FirstLine is the first line of stdout, else stderr, else the status.
func (r ExecutionResult) FirstLine() string {
	for _, s := range []string{r.Stdout, r.Stderr} {
		if s != "" {
			line, _, _ := strings.Cut(s, "\n")
			return line
		}
	}
	return r.Status
}

// Symbol is ✓ for success, ❌ for a non-zero exit and ⚠ when the command
// never reported an exit status.
func (r ExecutionResult) Symbol() string {
	switch {
	case r.ReturnCode == 0:
		return "✓"
	case r.ReturnCode > 0:
		return "❌"
	default:
		return "⚠"
	}
}

func (r ExecutionResult) String() string {
	return fmt.Sprintf("%s@%s %s %s %s (%.3fs)",
		r.User, r.Target.FQDN, r.Cmdline, r.Symbol(), r.FirstLine(), r.Duration().Seconds())
}

// DialFunc opens a session to host. sshutil.Dial is the production dialer.
type DialFunc func(ctx context.Context, host string, opts sshutil.DialOptions) (sshutil.Runner, error)

func defaultDial(ctx context.Context, host string, opts sshutil.DialOptions) (sshutil.Runner, error) {
	c, err := sshutil.Dial(ctx, host, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// PasswordFunc asks the operator for the deployment password.
type PasswordFunc func() (string, error)

// Settings are the SSH knobs the coordinator needs.
type Settings struct {
	User           string
	HostKeyPolicy  string
	KnownHosts     string
	ConnectTimeout time.Duration
	BannerTimeout  time.Duration
	AuthTimeout    time.Duration
	ExecTimeout    time.Duration
	SSHConfig      string // sshutil.NoSSHConfig disables the lookup
}

// SettingsFrom copies the relevant fields out of the loaded configuration.
func SettingsFrom(cfg config.SSHConfig) Settings {
	return Settings{
		User:           cfg.User,
		HostKeyPolicy:  cfg.HostKeyPolicy,
		KnownHosts:     cfg.KnownHosts,
		ConnectTimeout: cfg.ConnectTimeout,
		BannerTimeout:  cfg.BannerTimeout,
		AuthTimeout:    cfg.AuthTimeout,
		ExecTimeout:    cfg.ExecTimeout,
		SSHConfig:      cfg.SSHConfigFile,
	}
}

// Coordinator runs commands on many hosts at once.
type Coordinator struct {
	settings Settings
	key      *KeyPair
	dial     DialFunc
	log      logger.Logger
	metrics  *metrics.Recorder
	now      func() time.Time

	// OnChunk, when set, is called as each chunk of hosts is launched.
	OnChunk func(dispatch.ChunkProgress)
}

// NewCoordinator creates a coordinator authenticating with key. A nil key
// restricts it to Deploy.
func NewCoordinator(settings Settings, key *KeyPair, rec *metrics.Recorder, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Noop()
	}
	return &Coordinator{
		settings: settings,
		key:      key,
		dial:     defaultDial,
		log:      log,
		metrics:  rec,
		now:      time.Now,
	}
}

// WithDialer replaces the dialer, mainly for tests.
func (c *Coordinator) WithDialer(dial DialFunc) *Coordinator {
	c.dial = dial
	return c
}

// job is one unit of work handed to the dispatcher.
type job struct {
	target  Target
	cmdline string
	stdin   []byte
	// record is stored in the result in place of cmdline.
	record string
}

// Execute runs cmdline on every host, chunkSize hosts at a time.
func (c *Coordinator) Execute(ctx context.Context, cmdline string, hosts []Target, chunkSize int) ([]ExecutionResult, error) {
	if strings.TrimSpace(cmdline) == "" {
		return nil, errors.New(errors.ErrExec, "No command given", "Pass the command after --, e.g. fleet exec web -- uptime")
	}
	if c.key == nil {
		return nil, errors.New(errors.ErrSSH, "No SSH key loaded", "Run fleet key to create one")
	}
	opts := c.keyOptions()
	return c.run(ctx, "exec", hosts, chunkSize, opts, func(t Target) job {
		return job{target: t, cmdline: cmdline, record: cmdline}
	})
}

// RunScript streams script to each host's shell on stdin. name is what gets
// recorded as the command line.
func (c *Coordinator) RunScript(ctx context.Context, name string, script []byte, hosts []Target, chunkSize int) ([]ExecutionResult, error) {
	if len(bytes.TrimSpace(script)) == 0 {
		return nil, errors.New(errors.ErrExec, "Script is empty", "")
	}
	if c.key == nil {
		return nil, errors.New(errors.ErrSSH, "No SSH key loaded", "Run fleet key to create one")
	}
	opts := c.keyOptions()
	return c.run(ctx, "script", hosts, chunkSize, opts, func(t Target) job {
		return job{target: t, cmdline: "sh -s", stdin: script, record: name}
	})
}

// Deploy appends pubkey to authorized_keys on every host, logging in with
// a password obtained once from prompt.
func (c *Coordinator) Deploy(ctx context.Context, pubkey string, hosts []Target, chunkSize int, prompt PasswordFunc) ([]ExecutionResult, error) {
	pubkey = strings.TrimSpace(pubkey)
	if pubkey == "" {
		return nil, errors.New(errors.ErrExec, "No public key to deploy", "Run fleet key to create one")
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubkey)); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH, "Public key is not in authorized_keys format", "")
	}
	if len(hosts) == 0 {
		return []ExecutionResult{}, nil
	}
	if prompt == nil {
		return nil, errors.New(errors.ErrSSH, "No password source for deployment", "")
	}
	password, err := prompt()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH, "Couldn't read password", "")
	}

	opts := c.baseOptions()
	opts.Password = password
	cmd := DeployCommand(pubkey, c.now())
	return c.run(ctx, "deploy", hosts, chunkSize, opts, func(t Target) job {
		return job{target: t, cmdline: cmd, record: cmd}
	})
}

// DeployCommand builds the shell chain that installs pubkey.
func DeployCommand(pubkey string, now time.Time) string {
	line := fmt.Sprintf("%s %s %s", strings.TrimSpace(pubkey), KeyMarker, now.Format("2006-01-02 15:04:05"))
	return "mkdir -p .ssh && chmod 0700 .ssh && echo " + util.ShellQuote(line) +
		" >> .ssh/authorized_keys && chmod 0600 .ssh/authorized_keys"
}

func (c *Coordinator) baseOptions() sshutil.DialOptions {
	return sshutil.DialOptions{
		User:           c.settings.User,
		HostKeyPolicy:  c.settings.HostKeyPolicy,
		KnownHosts:     c.settings.KnownHosts,
		ConnectTimeout: c.settings.ConnectTimeout,
		BannerTimeout:  c.settings.BannerTimeout,
		AuthTimeout:    c.settings.AuthTimeout,
		SSHConfig:      c.settings.SSHConfig,
	}
}

func (c *Coordinator) keyOptions() sshutil.DialOptions {
	opts := c.baseOptions()
	opts.Signers = []ssh.Signer{c.key.Signer}
	return opts
}

func (c *Coordinator) run(ctx context.Context, kind string, hosts []Target, chunkSize int, opts sshutil.DialOptions, build func(Target) job) ([]ExecutionResult, error) {
	runID := uuid.NewString()
	log := c.log.With("run", runID)
	if c.key != nil {
		log = log.With("key", c.key.Fingerprint()[:16])
	}
	log.Debug("starting %s on %d hosts", kind, len(hosts))

	jobs := make([]job, 0, len(hosts))
	for _, h := range hosts {
		jobs = append(jobs, build(h))
	}

	res, err := dispatch.Run(ctx, jobs, dispatch.Options[job, ExecutionResult]{
		ChunkSize: chunkSize,
		Label:     func(j job) string { return j.target.FQDN },
		OnChunk: func(p dispatch.ChunkProgress) {
			c.metrics.ObserveChunk(p.Size)
			if c.OnChunk != nil {
				c.OnChunk(p)
			}
		},
		Recover: func(j job, v interface{}) ExecutionResult {
			now := c.now()
			return ExecutionResult{
				RunID: runID, Target: j.target, User: c.loginFor(j.target, opts), Cmdline: j.record,
				ReturnCode: TransportFailure, Status: fmt.Sprintf("worker panic: %v", v),
				Start: now, End: now,
			}
		},
		Logger: log,
	}, func(wctx context.Context, j job) ExecutionResult {
		return c.execOne(wctx, runID, j, opts, log)
	})
	if err != nil {
		return nil, err
	}

	for _, r := range res.Items {
		c.metrics.ObserveExecution(r.ReturnCode)
	}
	log.Info("%s finished on %d hosts in %s", kind, res.Processed, res.Duration.Round(time.Millisecond))
	return res.Items, nil
}

func (c *Coordinator) loginFor(t Target, opts sshutil.DialOptions) string {
	if t.User != "" {
		return t.User
	}
	return opts.User
}

// execOne dials, runs and classifies a single job. It never returns an error.
func (c *Coordinator) execOne(ctx context.Context, runID string, j job, opts sshutil.DialOptions, log logger.Logger) ExecutionResult {
	opts.User = c.loginFor(j.target, opts)
	res := ExecutionResult{
		RunID:   runID,
		Target:  j.target,
		User:    opts.User,
		Cmdline: j.record,
		Start:   c.now(),
	}

	if j.target.KeyFile != "" && opts.Password == "" {
		signer, err := LoadSigner(j.target.KeyFile)
		if err != nil {
			res.ReturnCode = TransportFailure
			res.Status = statusText(err)
			res.End = c.now()
			return res
		}
		opts.Signers = []ssh.Signer{signer}
	}

	client, err := c.dial(ctx, j.target.dialHost(), opts)
	if err != nil {
		log.Debug("dial %s failed: %v", j.target.FQDN, err)
		res.ReturnCode = TransportFailure
		res.Status = statusText(err)
		res.End = c.now()
		return res
	}
	defer client.Close()

	wctx := ctx
	if c.settings.ExecTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, c.settings.ExecTimeout)
		defer cancel()
	}

	stdout, stderr, code, err := sshutil.Exec(wctx, client, j.cmdline, j.stdin)
	res.End = c.now()

	switch {
	case err != nil && ctx.Err() == nil && stderrors.Is(wctx.Err(), context.DeadlineExceeded):
		res.ReturnCode = WatchdogTimeout
		res.Status = fmt.Sprintf("Execution left unsupervised after %s", c.settings.ExecTimeout)
		log.Warn("%s: %s", j.target.FQDN, res.Status)
	case err != nil:
		res.ReturnCode = TransportFailure
		res.Status = statusText(err)
		log.Debug("%s: %v", j.target.FQDN, err)
	default:
		res.ReturnCode = code
		res.Stdout = strings.TrimSpace(string(stdout))
		res.Stderr = strings.TrimSpace(string(stderr))
	}
	return res
}

// statusText flattens an error into a single line for the execution record.
func statusText(err error) string {
	var fe *errors.Error
	if stderrors.As(err, &fe) {
		if fe.Cause != nil {
			return fe.Message + ": " + strings.TrimSpace(fe.Cause.Error())
		}
		return fe.Message
	}
	return err.Error()
}
