// Package scheduler re-merges calendars on a cron schedule and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"calmerge/internal/calendar"
	"calmerge/internal/ics"
	appLog "calmerge/internal/log"
)

// Merger is the part of calendar.Service the refresher drives.
type Merger interface {
	Merge(ctx context.Context) (calendar.Result, error)
}

// Refresher runs merges from a cron schedule and from manual triggers.
// Runs never overlap; a trigger arriving during a run is coalesced into
// one follow-up run.
type Refresher struct {
	merger Merger
	spec   string
	cron   *cron.Cron

	trigger chan struct{}
	stopCh  chan struct{}
	done    chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
}

// NewRefresher validates spec (standard five-field cron or a descriptor
// such as "@hourly"). An empty spec disables the schedule; Trigger still
// works.
func NewRefresher(m Merger, spec string, loc *time.Location) (*Refresher, error) {
	if m == nil {
		return nil, errors.New("scheduler: merger is nil")
	}
	if loc == nil {
		loc = time.Local
	}
	if spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("scheduler: invalid refresh spec %q: %w", spec, err)
		}
	}
	return &Refresher{
		merger:  m,
		spec:    spec,
		cron:    cron.New(cron.WithLocation(loc)),
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the schedule and the worker loop. It returns immediately.
func (r *Refresher) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("scheduler: already started")
	}
	if r.spec != "" {
		if _, err := r.cron.AddFunc(r.spec, func() { r.Trigger() }); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		r.cron.Start()
		appLog.Info("refresh schedule started", "spec", r.spec)
	}

	go func() {
		defer close(r.done)
		for {
			select {
			case <-r.trigger:
				r.run(ctx)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Trigger requests a merge. It reports false if one is already pending.
func (r *Refresher) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop halts the schedule and waits for the worker loop to exit.
func (r *Refresher) Stop() {
	if !r.started.Load() {
		return
	}
	r.stopOnce.Do(func() {
		<-r.cron.Stop().Done()
		close(r.stopCh)
	})
	<-r.done
}

func (r *Refresher) run(ctx context.Context) {
	res, err := r.merger.Merge(ctx)
	switch {
	case errors.Is(err, ics.ErrNoSources):
		appLog.Warn("scheduled merge found no sources", "failed", len(res.Failures))
	case err != nil:
		appLog.Error("scheduled merge failed", err)
	default:
		appLog.Debug("scheduled merge done", "events", res.Events, "merged", res.Merged)
	}
}
