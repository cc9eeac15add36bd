package inventory

import (
	"context"
	"fmt"
	"net"

	"github.com/rileyhilliard/fleet/internal/availability"
	"github.com/rileyhilliard/fleet/internal/dispatch"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/probe"
)

// pingTarget is one address to probe. FQDN, when set, replaces whatever
// the address resolves to so the result lands on an existing row.
type pingTarget struct {
	Addr string
	FQDN string
}

func (t pingTarget) String() string {
	if t.FQDN != "" {
		return t.FQDN
	}
	return t.Addr
}

// Sweep pings every usable address of cidr and records the results as one
// batch. An empty cidr means the configured network, then the network of
// the first non-loopback interface.
func (s *Service) Sweep(ctx context.Context, cidr string) (availability.BatchSummary, error) {
	if cidr == "" {
		cidr = s.cfg.Network
	}
	if cidr == "" {
		def, err := probe.DefaultNetwork()
		if err != nil {
			return availability.BatchSummary{}, err
		}
		cidr = def
	}

	addrs, err := probe.Hosts(cidr)
	if err != nil {
		return availability.BatchSummary{}, err
	}

	targets := make([]pingTarget, len(addrs))
	for i, a := range addrs {
		targets[i] = pingTarget{Addr: a}
	}

	s.log.Info("sweeping %s: %d addresses", cidr, len(targets))
	results, err := s.ping(ctx, "Sweeping "+cidr, targets)
	if err != nil {
		return availability.BatchSummary{}, err
	}

	return s.tracker.ApplyProbeBatch(ctx, availability.Batch{
		Network: cidr,
		Results: results,
	})
}

// Recheck pings the hosts selected by query and records the results.
func (s *Service) Recheck(ctx context.Context, query string) (availability.BatchSummary, error) {
	hosts, err := s.selectHosts(ctx, query)
	if err != nil {
		return availability.BatchSummary{}, err
	}

	targets := make([]pingTarget, len(hosts))
	for i, h := range hosts {
		targets[i] = pingTarget{Addr: address(h), FQDN: h.FQDN}
	}

	results, err := s.ping(ctx, "Rechecking "+query, targets)
	if err != nil {
		return availability.BatchSummary{}, err
	}

	return s.tracker.ApplyProbeBatch(ctx, availability.Batch{
		Selection: query,
		Results:   results,
	})
}

// ping dispatches the pinger over targets. A cancelled run records nothing.
func (s *Service) ping(ctx context.Context, label string, targets []pingTarget) ([]probe.PingResult, error) {
	rep := s.reporter(label, len(targets))
	defer rep.Stop()

	res, err := dispatch.Run(ctx, targets, dispatch.Options[pingTarget, probe.PingResult]{
		ChunkSize: s.cfg.Ping.ChunkSize,
		Label:     pingTarget.String,
		OnChunk: func(p dispatch.ChunkProgress) {
			s.metrics.ObserveChunk(p.Size)
			rep.Chunk(p.Size, p.First, p.Last, p.Remaining)
		},
		OnChunkDone: func(_ dispatch.ChunkProgress, rs []probe.PingResult) {
			rep.Advance(len(rs))
		},
		Recover: func(t pingTarget, v interface{}) probe.PingResult {
			return probe.PingResult{
				Address:  t.Addr,
				Hostname: t.Addr,
				FQDN:     t.String(),
				Err:      fmt.Errorf("probe panic: %v", v),
			}
		},
		Logger: s.log,
	}, func(wctx context.Context, t pingTarget) probe.PingResult {
		r := s.pinger.Ping(wctx, s.resolve(wctx, t.Addr))
		if t.FQDN != "" {
			r.FQDN = t.FQDN
		}
		return r
	})
	if err != nil {
		return nil, err
	}
	if res.Cancelled {
		return nil, errors.New(errors.ErrDispatch,
			fmt.Sprintf("Host update cancelled after %d of %d addresses", res.Processed, len(targets)),
			"Nothing was recorded; run the command again")
	}
	return res.Items, nil
}

// resolve turns a host name into its first IPv4 address so the ICMP path
// can be used. Addresses and names that don't resolve are returned as-is.
func (s *Service) resolve(ctx context.Context, addr string) string {
	if net.ParseIP(addr) != nil {
		return addr
	}
	ips, err := s.resolver.LookupIP(ctx, "ip4", addr)
	if err != nil || len(ips) == 0 {
		s.log.Debug("can't resolve %s: %v", addr, err)
		return addr
	}
	return ips[0].String()
}
