// Package remote reads feeds from subscription URLs and publishes the
// merged calendar to a local directory.
package remote

import (
	"context"
	"errors"
	"sort"

	"calmerge/internal/ics"
	"calmerge/internal/model"
	"calmerge/internal/store"
	"calmerge/internal/store/fsstore"
)

// Store fetches feeds over HTTP. Merged output and removal of the merged
// file are delegated to an fsstore.Store.
type Store struct {
	feeds   []ics.Feed
	fetcher *ics.Fetcher
	out     *fsstore.Store
}

var _ store.Backend = (*Store)(nil)

// New creates a backend for feeds. Labels must be unique.
func New(feeds []ics.Feed, fetcher *ics.Fetcher, out *fsstore.Store) (*Store, error) {
	if fetcher == nil || out == nil {
		return nil, errors.New("remote: fetcher and output store are required")
	}
	seen := make(map[string]bool, len(feeds))
	for _, f := range feeds {
		if err := store.ValidateLabel(f.Label); err != nil {
			return nil, err
		}
		if seen[f.Label] {
			return nil, errors.New("remote: duplicate feed label " + f.Label)
		}
		seen[f.Label] = true
	}

	sorted := append([]ics.Feed(nil), feeds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })
	return &Store{feeds: sorted, fetcher: fetcher, out: out}, nil
}

// Feeds returns the configured feeds in label order.
func (s *Store) Feeds() []ics.Feed {
	return append([]ics.Feed(nil), s.feeds...)
}

// ListSources fetches every feed concurrently; the result is in label order.
func (s *Store) ListSources(ctx context.Context) ([]model.RawSource, []model.SourceFailure, error) {
	results, errs := s.fetcher.FetchAll(ctx, s.feeds)

	sources := make([]model.RawSource, 0, len(results))
	for _, r := range results {
		sources = append(sources, model.RawSource{Label: r.Feed.Label, Data: r.Body})
	}
	var failures []model.SourceFailure
	for _, e := range errs {
		failures = append(failures, model.SourceFailure{Label: e.Feed.Label, Reason: e.Err.Error()})
	}
	return sources, failures, nil
}

func (s *Store) WriteMerged(ctx context.Context, data []byte) error {
	return s.out.WriteMerged(ctx, data)
}

func (s *Store) ReadMerged(ctx context.Context) ([]byte, error) {
	return s.out.ReadMerged(ctx)
}

// DeleteMerged drops the local merged output. Feeds are configuration and
// cannot be deleted through the backend.
func (s *Store) DeleteMerged(ctx context.Context) error {
	return s.out.DeleteMerged(ctx)
}
