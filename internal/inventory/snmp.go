package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/dispatch"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/store"
)

// snmpJob is one object on one selected host.
type snmpJob struct {
	fqdn   string
	target probe.SNMPTarget
}

// splitObject accepts "MIB::name", a bare name in the default MIB, or a
// numeric OID.
func splitObject(object string) (mib, oid string) {
	if m, name, ok := strings.Cut(object, "::"); ok {
		return m, name
	}
	if strings.Trim(object, ".0123456789") == "" {
		return "", object
	}
	return probe.DefaultMIB, object
}

// PollSNMP reads objects from every host selected by query and stores every
// outcome. A failed read is returned with Err set and replaces the stored
// value with an empty one carrying the error.
func (s *Service) PollSNMP(ctx context.Context, query string, objects []string) ([]probe.SNMPValue, error) {
	if len(objects) == 0 {
		return nil, errors.New(errors.ErrQuery, "No SNMP objects given", "Name at least one object, e.g. sysDescr")
	}
	hosts, err := s.selectHosts(ctx, query)
	if err != nil {
		return nil, err
	}

	jobs := make([]snmpJob, 0, len(hosts)*len(objects))
	for _, h := range hosts {
		for _, o := range objects {
			mib, oid := splitObject(o)
			jobs = append(jobs, snmpJob{fqdn: h.FQDN, target: probe.SNMPTarget{Host: address(h), MIB: mib, OID: oid}})
		}
	}

	rep := s.reporter("Polling SNMP", len(jobs))
	res, err := dispatch.Run(ctx, jobs, dispatch.Options[snmpJob, probe.SNMPValue]{
		ChunkSize: s.cfg.SNMP.ChunkSize,
		Label:     func(j snmpJob) string { return j.fqdn },
		OnChunk: func(p dispatch.ChunkProgress) {
			s.metrics.ObserveChunk(p.Size)
			rep.Chunk(p.Size, p.First, p.Last, p.Remaining)
		},
		OnChunkDone: func(_ dispatch.ChunkProgress, vs []probe.SNMPValue) {
			rep.Advance(len(vs))
		},
		Recover: func(j snmpJob, v interface{}) probe.SNMPValue {
			return probe.SNMPValue{Target: j.target, CheckTime: time.Now(), Err: fmt.Errorf("poll panic: %v", v)}
		},
		Logger: s.log,
	}, func(wctx context.Context, j snmpJob) probe.SNMPValue {
		v := s.snmp.Get(wctx, j.target)
		// Report under the inventory name rather than the dialed address.
		v.Target.Host = j.fqdn
		return v
	})
	rep.Stop()
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, v := range res.Items {
			s.metrics.ObserveSNMP(v.Err == nil)
			if err := tx.SaveSNMPReading(ctx, snmpReading(v, query)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("snmp readings not recorded: %v", err)
		s.metrics.ObserveStoreFailure("snmp_readings")
		return res.Items, wrapStore(err, "Can't record SNMP readings")
	}
	return res.Items, nil
}

func snmpReading(v probe.SNMPValue, query string) *store.SNMPReading {
	r := &store.SNMPReading{
		Host:      v.Target.Host,
		MIB:       v.Target.MIB,
		OID:       v.Target.OID,
		Value:     v.Value,
		CheckTime: v.CheckTime,
		Selection: query,
	}
	if r.MIB == "" {
		r.MIB = "numeric"
	}
	if r.CheckTime.IsZero() {
		r.CheckTime = time.Now()
	}
	if v.Err != nil {
		r.Value = ""
		r.GetError = v.Err.Error()
	}
	return r
}

// SNMPReadings lists stored values, optionally for one host.
func (s *Service) SNMPReadings(ctx context.Context, fqdn string) ([]store.SNMPReading, error) {
	rs, err := s.store.ListSNMPReadings(ctx, fqdn)
	if err != nil {
		return nil, wrapStore(err, "Can't list SNMP readings")
	}
	return rs, nil
}
