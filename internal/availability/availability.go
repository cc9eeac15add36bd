// Package availability folds probe results into the per-host up/down
// history kept in the inventory.
package availability

import (
	"context"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/metrics"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/store"
)

// Outcome classifies one probe result against the host's previous state.
type Outcome int

const (
	StillDown Outcome = iota
	StillUp
	Lost // up to down
	Back // down to up, seen before
	New  // first success ever
)

func (o Outcome) String() string {
	switch o {
	case StillUp:
		return "up"
	case Lost:
		return "lost"
	case Back:
		return "back"
	case New:
		return "new"
	default:
		return "down"
	}
}

// Transition applies one probe result to prev and returns the new state.
// last_check, ip and hostname are refreshed on every result.
func Transition(prev store.Host, res probe.PingResult, now time.Time) (store.Host, Outcome) {
	h := prev
	wasAlive := prev.Reachable()
	seenBefore := prev.SeenUp()
	ts := now

	h.LastCheck = &ts
	if res.Address != "" {
		h.IP = res.Address
	}
	if res.Hostname != "" {
		h.Hostname = res.Hostname
	}

	if !res.Reachable {
		h.PingDelay = store.Unreachable
		h.Down++
		if !wasAlive {
			h.AdjacentDown++
			h.LastDown = &ts
			return h, StillDown
		}
		h.AdjacentDown = 1
		h.LastChange = &ts
		return h, Lost
	}

	h.PingDelay = delaySeconds(res.Delay)
	h.Up++
	if wasAlive {
		h.AdjacentUp++
		h.LastUp = &ts
		return h, StillUp
	}

	h.LastChange = &ts
	h.AdjacentUp = 1
	if seenBefore {
		return h, Back
	}
	h.FirstUp = &ts
	h.LastUp = &ts
	// Lifetime down is kept: up+down counts every batch the host was in.
	h.AdjacentDown = 0
	return h, New
}

// delaySeconds never returns the unreachable sentinel for a measured delay.
func delaySeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

// Batch is one sweep or recheck worth of results. Exactly one of Network
// and Selection is normally set and is recorded on the summary row.
type Batch struct {
	Network   string
	Selection string
	Results   []probe.PingResult
	Started   time.Time
}

// BatchSummary counts a batch's outcomes. Up and Down count current state;
// Back, Lost and New count transitions.
type BatchSummary struct {
	Up       int
	Down     int
	Back     int
	Lost     int
	New      int
	Duration time.Duration

	// Changes lists hosts that transitioned, in result order.
	Changes []Change
}

// Change is one host transition within a batch.
type Change struct {
	FQDN    string
	Outcome Outcome
}

// TxStore runs a function inside one write transaction.
type TxStore interface {
	WithTx(ctx context.Context, fn func(*store.Tx) error) error
}

// Tracker applies probe batches to the inventory.
type Tracker struct {
	store   TxStore
	metrics *metrics.Recorder
	log     logger.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

// NewTracker creates a Tracker. rec may be nil.
func NewTracker(st TxStore, rec *metrics.Recorder, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Noop()
	}
	return &Tracker{store: st, metrics: rec, log: log, Now: time.Now}
}

// ApplyProbeBatch records every result and appends a summary row, all in a
// single transaction. On error nothing is committed.
func (t *Tracker) ApplyProbeBatch(ctx context.Context, b Batch) (BatchSummary, error) {
	now := t.Now()
	if b.Started.IsZero() {
		b.Started = now
	}

	var sum BatchSummary
	var outcomes []Outcome
	err := t.store.WithTx(ctx, func(tx *store.Tx) error {
		sum = BatchSummary{}
		outcomes = outcomes[:0]

		for _, res := range b.Results {
			fqdn := res.FQDN
			if fqdn == "" {
				fqdn = res.Address
			}
			if fqdn == "" {
				continue
			}

			if _, err := tx.EnsureHost(ctx, fqdn, res.Hostname, res.Address); err != nil {
				return err
			}
			prev, err := tx.GetHost(ctx, fqdn)
			if err != nil {
				return err
			}
			if prev == nil {
				return errors.New(errors.ErrStore, "Host "+fqdn+" vanished during batch", "")
			}

			next, outcome := Transition(*prev, res, now)
			if err := tx.SaveHost(ctx, &next); err != nil {
				return err
			}

			outcomes = append(outcomes, outcome)
			sum.count(fqdn, outcome)
		}

		sum.Duration = now.Sub(b.Started)
		return tx.InsertHostUpdate(ctx, &store.HostUpdate{
			UpdateTime: now,
			Network:    b.Network,
			Selection:  b.Selection,
			Up:         sum.Up,
			Down:       sum.Down,
			Back:       sum.Back,
			Lost:       sum.Lost,
			New:        sum.New,
			Duration:   sum.Duration,
		})
	})
	if err != nil {
		t.metrics.ObserveBatch(false, 0, 0)
		t.log.Error("probe batch not recorded: %v", err)
		return BatchSummary{}, errors.WrapWithCode(err, errors.ErrStore,
			"Failed to record probe batch", "No host state was changed; rerun the sweep")
	}

	for _, o := range outcomes {
		t.metrics.ObserveTransition(o.String())
	}
	for _, res := range b.Results {
		if res.Reachable {
			t.metrics.ObserveProbe(res.Method, res.Delay)
		}
	}
	t.metrics.ObserveBatch(true, sum.Up, sum.Down)

	t.log.Info("batch applied: up=%d down=%d new=%d back=%d lost=%d in %s",
		sum.Up, sum.Down, sum.New, sum.Back, sum.Lost, sum.Duration.Round(time.Millisecond))
	return sum, nil
}

func (s *BatchSummary) count(fqdn string, o Outcome) {
	switch o {
	case StillUp:
		s.Up++
	case StillDown:
		s.Down++
	case Lost:
		s.Down++
		s.Lost++
	case Back:
		s.Up++
		s.Back++
	case New:
		s.Up++
		s.New++
	}
	if o != StillUp && o != StillDown {
		s.Changes = append(s.Changes, Change{FQDN: fqdn, Outcome: o})
	}
}
