package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/fleet/internal/dispatch"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/store"
)

func targetOf(u store.URLRecord) probe.URLTarget {
	return probe.URLTarget{
		Proto:    u.Proto,
		User:     u.User,
		Password: u.Password,
		Host:     u.Host,
		Port:     u.Port,
		Path:     u.Path,
	}
}

func recordOf(c probe.URLCheck) store.URLRecord {
	checked := c.CheckTime
	r := store.URLRecord{
		Proto:        c.Target.Proto,
		Host:         c.Target.Host,
		Path:         c.Target.Path,
		Port:         c.Target.Port,
		User:         c.Target.User,
		Password:     c.Target.Password,
		CheckTime:    &checked,
		Status:       c.Status,
		ResponseTime: c.ResponseTime.Seconds(),
		TotalTime:    c.TotalTime.Seconds(),
		Headers:      c.Headers,
		Content:      c.Content,
		Certificate:  c.Certificate,
	}
	if !c.Expire.IsZero() {
		r.Expire = c.Expire.Unix()
	}
	if c.Err != nil {
		r.GetError = c.Err.Error()
	}
	return r
}

// AddURL registers an endpoint for monitoring.
func (s *Service) AddURL(ctx context.Context, raw string) (probe.URLTarget, error) {
	t, err := probe.ParseURLTarget(raw)
	if err != nil {
		return probe.URLTarget{}, err
	}
	rec := store.URLRecord{Proto: t.Proto, Host: t.Host, Path: t.Path, Port: t.Port, User: t.User, Password: t.Password}
	if err := s.store.AddURL(ctx, &rec); err != nil {
		return probe.URLTarget{}, wrapStore(err, "Can't add URL "+t.String())
	}
	return t, nil
}

// RemoveURL stops monitoring an endpoint.
func (s *Service) RemoveURL(ctx context.Context, raw string) error {
	t, err := probe.ParseURLTarget(raw)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteURL(ctx, t.Proto, t.Host, t.Path, t.Port, t.User)
	if err != nil {
		return wrapStore(err, "Can't remove URL "+t.String())
	}
	if !ok {
		return errors.New(errors.ErrQuery,
			fmt.Sprintf("%s is not monitored", t.String()),
			"List monitored URLs with 'fleet url ls'")
	}
	return nil
}

// URLs lists the monitored endpoints with their latest check.
func (s *Service) URLs(ctx context.Context) ([]store.URLRecord, error) {
	urls, err := s.store.ListURLs(ctx)
	if err != nil {
		return nil, wrapStore(err, "Can't list URLs")
	}
	return urls, nil
}

// CheckURLs GETs every monitored endpoint and stores the outcomes.
func (s *Service) CheckURLs(ctx context.Context) ([]probe.URLCheck, error) {
	urls, err := s.URLs(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]probe.URLTarget, len(urls))
	for i, u := range urls {
		targets[i] = targetOf(u)
	}

	rep := s.reporter("Checking URLs", len(targets))
	res, err := dispatch.Run(ctx, targets, dispatch.Options[probe.URLTarget, probe.URLCheck]{
		ChunkSize: s.cfg.HTTP.ChunkSize,
		Label:     probe.URLTarget.String,
		OnChunk: func(p dispatch.ChunkProgress) {
			s.metrics.ObserveChunk(p.Size)
			rep.Chunk(p.Size, p.First, p.Last, p.Remaining)
		},
		OnChunkDone: func(_ dispatch.ChunkProgress, cs []probe.URLCheck) {
			rep.Advance(len(cs))
		},
		Recover: func(t probe.URLTarget, v interface{}) probe.URLCheck {
			return probe.URLCheck{Target: t, CheckTime: time.Now(), Status: -1, Err: fmt.Errorf("check panic: %v", v)}
		},
		Logger: s.log,
	}, s.urls.Check)
	rep.Stop()
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, c := range res.Items {
			rec := recordOf(c)
			if err := tx.SaveURLCheck(ctx, &rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("url checks not recorded: %v", err)
		s.metrics.ObserveStoreFailure("url_checks")
		return res.Items, wrapStore(err, "Can't record URL checks")
	}

	for _, c := range res.Items {
		s.metrics.ObserveURL(c.Target.String(), c.Status, c.Expire)
		s.metrics.ObserveProbe("http", c.ResponseTime)
	}
	return res.Items, nil
}
