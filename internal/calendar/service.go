// Package calendar runs the merge pipeline against a storage backend and
// serves the merged result to readers.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"calmerge/internal/ics"
	appLog "calmerge/internal/log"
	"calmerge/internal/metric"
	"calmerge/internal/model"
	"calmerge/internal/store"
	"calmerge/internal/week"
)

// Result is the outcome of one merge, shaped for status display.
type Result struct {
	// Sources lists the labels that were merged, in merge order.
	Sources     []string              `json:"sources"`
	Merged      int                   `json:"merged"`
	Events      int                   `json:"events"`
	Failures    []model.SourceFailure `json:"failures"`
	Message     string                `json:"message"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Service owns the merge pipeline. Merges run one at a time; readers use a
// cached copy of the last published calendar.
type Service struct {
	backend   store.Backend
	merger    *ics.Merger
	projector *week.Projector

	mergeMu sync.Mutex

	cacheMu sync.RWMutex
	current *model.MergedCalendar
}

// NewService builds a service that normalizes into loc.
func NewService(backend store.Backend, loc *time.Location, expandRecurrences bool) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		backend:   backend,
		merger:    ics.NewMerger(ics.NewNormalizer(loc)),
		projector: week.NewProjector(loc, expandRecurrences),
	}
}

func (s *Service) Backend() store.Backend { return s.backend }

func (s *Service) Location() *time.Location { return s.projector.Location }

// Merge lists every feed, merges the ones that parse and publishes the
// result. A feed that cannot be read or parsed is reported in
// Result.Failures and skipped. When nothing is left to merge the error is
// a *ics.NoSourcesError and the previous output is left untouched.
func (s *Service) Merge(ctx context.Context) (Result, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	started := time.Now()

	raws, failures, err := s.backend.ListSources(ctx)
	if err != nil {
		metric.ObserveMerge(metric.ResultError, time.Since(started))
		appLog.Error("merge: list sources failed", err)
		return Result{Message: "Error listing calendars"}, fmt.Errorf("list sources: %w", err)
	}
	attempted := len(raws) + len(failures)
	for _, f := range failures {
		metric.SourceFailed(f.Label)
	}

	docs := make([]*ics.Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := ics.Load(raw.Label, raw.Data)
		if err != nil {
			appLog.Error("merge: skipping unreadable source", err, "label", raw.Label)
			metric.SourceFailed(raw.Label)
			failures = append(failures, model.SourceFailure{Label: raw.Label, Reason: err.Error()})
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		nse := &ics.NoSourcesError{Attempted: attempted, Failures: failures}
		metric.ObserveMerge(metric.ResultNoSources, time.Since(started))
		appLog.Warn("merge: nothing to merge", "attempted", nse.Attempted, "failed", len(failures))
		msg := "No calendar files found"
		if nse.Attempted > 0 {
			msg = "No calendar could be read"
		}
		return Result{Failures: failures, Message: msg}, nse
	}

	merged, err := s.merger.Merge(docs)
	if err != nil {
		metric.ObserveMerge(metric.ResultError, time.Since(started))
		return Result{Failures: failures, Message: "Error merging calendars"}, err
	}

	if err := s.backend.WriteMerged(ctx, merged.Serialize()); err != nil {
		metric.ObserveMerge(metric.ResultError, time.Since(started))
		appLog.Error("merge: publish failed", err)
		return Result{Failures: failures, Message: "Error writing merged calendar"}, fmt.Errorf("write merged: %w", err)
	}

	cal := merged.Calendar
	s.cacheMu.Lock()
	s.current = &cal
	s.cacheMu.Unlock()

	metric.ObserveMerge(metric.ResultOK, time.Since(started))
	metric.SetMerged(len(cal.Events), len(cal.Sources), cal.GeneratedAt)

	res := Result{
		Sources:     cal.Sources,
		Merged:      len(docs),
		Events:      len(cal.Events),
		Failures:    failures,
		Message:     fmt.Sprintf("Successfully merged %d calendar file(s)", len(docs)),
		GeneratedAt: cal.GeneratedAt,
	}
	if len(failures) > 0 {
		res.Message += fmt.Sprintf(", %d could not be read", len(failures))
	}

	appLog.Info("merge completed",
		"sources", attempted,
		"merged", res.Merged,
		"failed", len(failures),
		"events", res.Events,
		"took", time.Since(started).String(),
	)
	return res, nil
}

// Current returns the published calendar, re-reading it from the backend
// when nothing is cached. It returns store.ErrNotFound before the first
// merge.
func (s *Service) Current(ctx context.Context) (*model.MergedCalendar, error) {
	s.cacheMu.RLock()
	cur := s.current
	s.cacheMu.RUnlock()
	if cur != nil {
		return cur, nil
	}

	data, err := s.backend.ReadMerged(ctx)
	if err != nil {
		return nil, err
	}
	cal, err := s.merger.Reload("merged_output", data)
	if err != nil {
		return nil, fmt.Errorf("reload merged output: %w", err)
	}

	s.cacheMu.Lock()
	if s.current == nil {
		s.current = cal
	}
	cur = s.current
	s.cacheMu.Unlock()
	return cur, nil
}

// EnsureMerged returns the published calendar, merging first if none
// exists yet.
func (s *Service) EnsureMerged(ctx context.Context) (*model.MergedCalendar, error) {
	cal, err := s.Current(ctx)
	if err == nil {
		return cal, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	appLog.Info("no merged calendar yet; merging")
	if _, err := s.Merge(ctx); err != nil {
		return nil, err
	}
	return s.Current(ctx)
}

// Week projects the published calendar onto the week containing weekStart.
func (s *Service) Week(ctx context.Context, weekStart time.Time) (week.Window, error) {
	cal, err := s.EnsureMerged(ctx)
	if err != nil {
		return week.Window{}, err
	}
	return s.projector.Project(cal.Events, weekStart)
}

// Import validates data as a calendar, stores it under label and merges.
func (s *Service) Import(ctx context.Context, label string, data []byte) (Result, error) {
	if _, err := ics.Load(label, data); err != nil {
		return Result{}, err
	}
	if err := store.Put(ctx, s.backend, label, data); err != nil {
		return Result{}, err
	}
	appLog.Info("source imported", "label", label, "bytes", len(data))
	return s.Merge(ctx)
}

// DeleteSource removes a feed and the now stale merged output. The next
// reader triggers a fresh merge.
func (s *Service) DeleteSource(ctx context.Context, label string) error {
	r, ok := s.backend.(store.SourceRemover)
	if !ok {
		return store.ErrReadOnly
	}

	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	if err := r.DeleteSource(ctx, label); err != nil {
		return err
	}
	if err := r.DeleteMerged(ctx); err != nil {
		return fmt.Errorf("delete merged output: %w", err)
	}

	s.cacheMu.Lock()
	s.current = nil
	s.cacheMu.Unlock()

	appLog.Info("source deleted", "label", label)
	return nil
}
