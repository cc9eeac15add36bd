// Package inventory ties the fleet together: it resolves selections to
// hosts, fans probes and remote commands out through the dispatcher and
// records every outcome in the store.
package inventory

import (
	"context"
	"net"
	"time"

	"github.com/rileyhilliard/fleet/internal/availability"
	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/metrics"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/rileyhilliard/fleet/internal/selection"
	"github.com/rileyhilliard/fleet/internal/store"
)

// Pinger checks whether an address answers.
type Pinger interface {
	Ping(ctx context.Context, addr string) probe.PingResult
}

// URLChecker fetches one endpoint.
type URLChecker interface {
	Check(ctx context.Context, target probe.URLTarget) probe.URLCheck
}

// SNMPPoller reads one object from one agent.
type SNMPPoller interface {
	Get(ctx context.Context, target probe.SNMPTarget) probe.SNMPValue
}

// Executor runs commands on remote hosts. *remote.Coordinator is the
// production implementation.
type Executor interface {
	Execute(ctx context.Context, cmdline string, hosts []remote.Target, chunkSize int) ([]remote.ExecutionResult, error)
	RunScript(ctx context.Context, name string, script []byte, hosts []remote.Target, chunkSize int) ([]remote.ExecutionResult, error)
	Deploy(ctx context.Context, pubkey string, hosts []remote.Target, chunkSize int, prompt remote.PasswordFunc) ([]remote.ExecutionResult, error)
}

// Reporter receives progress while targets are processed. *ui.Progress
// satisfies it.
type Reporter interface {
	Chunk(size int, first, last string, remaining int)
	Advance(n int)
	Println(line string)
	Stop()
}

type noopReporter struct{}

func (noopReporter) Chunk(int, string, string, int) {}
func (noopReporter) Advance(int)                    {}
func (noopReporter) Println(string)                 {}
func (noopReporter) Stop()                          {}

// IPResolver looks up addresses for host names. *net.Resolver satisfies it.
type IPResolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Deps are the collaborators of a Service. Nil probes are built from the
// configuration; a nil Remote disables Exec, RunScript and Deploy.
type Deps struct {
	Pinger   Pinger
	URLs     URLChecker
	SNMP     SNMPPoller
	Remote   Executor
	Resolver IPResolver
	Metrics  *metrics.Recorder
	Logger   logger.Logger

	// Progress, when set, creates a reporter for each run.
	Progress func(label string, total int) Reporter
}

// Service implements the fleet operations on top of one store.
type Service struct {
	cfg     *config.Config
	store   *store.Store
	tracker *availability.Tracker
	engine  *selection.Engine

	pinger   Pinger
	urls     URLChecker
	snmp     SNMPPoller
	remote   Executor
	resolver IPResolver
	metrics  *metrics.Recorder
	log      logger.Logger

	progress func(label string, total int) Reporter
	now      func() time.Time
}

// New creates a Service. cfg must already be validated.
func New(cfg *config.Config, st *store.Store, deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}

	s := &Service{
		cfg:      cfg,
		store:    st,
		tracker:  availability.NewTracker(st, deps.Metrics, log.With("component", "availability")),
		engine:   selection.NewEngine(st, st, selection.Policy(cfg.Selection.CachePolicy), log.With("component", "selection")),
		pinger:   deps.Pinger,
		urls:     deps.URLs,
		snmp:     deps.SNMP,
		remote:   deps.Remote,
		resolver: deps.Resolver,
		metrics:  deps.Metrics,
		log:      log,
		progress: deps.Progress,
		now:      time.Now,
	}

	if s.resolver == nil {
		s.resolver = net.DefaultResolver
	}
	if s.pinger == nil {
		p := probe.NewPinger(cfg.Ping.Timeout, cfg.Ping.TCPPort, log.With("component", "ping"))
		p.Privileged = cfg.Ping.Privileged
		p.TCPOnly = cfg.Ping.Method == config.PingTCP
		s.pinger = p
	}
	if s.urls == nil {
		s.urls = probe.NewHTTPChecker(cfg.HTTP.Timeout, cfg.HTTP.Insecure, cfg.HTTP.MaxBody)
	}
	if s.snmp == nil {
		s.snmp = &probe.SNMPGetter{
			Community: cfg.SNMP.Community,
			Port:      cfg.SNMP.Port,
			Version:   cfg.SNMP.Version,
			Timeout:   cfg.SNMP.Timeout,
			Retries:   cfg.SNMP.Retries,
		}
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *store.Store {
	return s.store
}

// Now is the clock used for ages in listings.
func (s *Service) Now() time.Time {
	return s.now()
}

// Selections returns the selection engine.
func (s *Service) Selections() *selection.Engine {
	return s.engine
}

func (s *Service) reporter(label string, total int) Reporter {
	if s.progress == nil {
		return noopReporter{}
	}
	return s.progress(label, total)
}

// Select evaluates query, from the cache when possible. rebuild discards
// the cached entries under name first.
func (s *Service) Select(ctx context.Context, name, query string, rebuild bool) (selection.Result, error) {
	if rebuild {
		return s.engine.Rebuild(ctx, name, query)
	}
	return s.engine.Select(ctx, name, query)
}

// selectHosts resolves query to inventory rows, in selection order.
func (s *Service) selectHosts(ctx context.Context, query string) ([]store.Host, error) {
	res, err := s.engine.Select(ctx, "", query)
	if err != nil {
		return nil, err
	}
	hosts, err := s.store.HostsByName(ctx, res.Objects)
	if err != nil {
		return nil, wrapStore(err, "Can't load selected hosts")
	}
	return hosts, nil
}

// address is what probes dial for h.
func address(h store.Host) string {
	if h.IP != "" {
		return h.IP
	}
	return h.FQDN
}
