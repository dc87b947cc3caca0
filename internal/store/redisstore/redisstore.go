// Package redisstore keeps feeds and the merged calendar in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appLog "calmerge/internal/log"
	"calmerge/internal/model"
	"calmerge/internal/store"
)

// Store is a Redis-backed store.Backend.
//
// Feeds live under <prefix>source:<label> and their labels in the set
// <prefix>sources. The merged calendar is written to a staging key and
// renamed onto <prefix>merged inside MULTI/EXEC.
type Store struct {
	client *redis.Client
	keys   keys
}

var (
	_ store.Backend       = (*Store)(nil)
	_ store.SourceWriter  = (*Store)(nil)
	_ store.SourceRemover = (*Store)(nil)
)

// New wraps client. An empty prefix selects DefaultKeyPrefix.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, keys: newKeys(prefix)}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ListSources(ctx context.Context) ([]model.RawSource, []model.SourceFailure, error) {
	labels, err := s.client.SMembers(ctx, s.keys.Sources()).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redisstore: list labels: %w", err)
	}
	sort.Strings(labels)
	if len(labels) == 0 {
		return []model.RawSource{}, nil, nil
	}

	cmds := make([]*redis.StringCmd, len(labels))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, label := range labels {
			cmds[i] = pipe.Get(ctx, s.keys.Source(label))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("redisstore: read sources: %w", err)
	}

	sources := make([]model.RawSource, 0, len(labels))
	var failures []model.SourceFailure
	for i, label := range labels {
		data, err := cmds[i].Bytes()
		if err != nil {
			reason := err.Error()
			if errors.Is(err, redis.Nil) {
				reason = "feed listed but its data is missing"
			}
			appLog.Error("redisstore: read source failed", err, "label", label)
			failures = append(failures, model.SourceFailure{Label: label, Reason: reason})
			continue
		}
		sources = append(sources, model.RawSource{Label: label, Data: data})
	}
	return sources, failures, nil
}

func (s *Store) WriteMerged(ctx context.Context, data []byte) error {
	staging := s.keys.Staging(uuid.NewString())
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, staging, data, 0)
		pipe.Rename(ctx, staging, s.keys.Merged())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: publish merged: %w", err)
	}
	return nil
}

func (s *Store) ReadMerged(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.keys.Merged()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: read merged: %w", err)
	}
	return data, nil
}

func (s *Store) PutSource(ctx context.Context, label string, data []byte) error {
	if err := store.ValidateLabel(label); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.Source(label), data, 0)
		pipe.SAdd(ctx, s.keys.Sources(), label)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: put %q: %w", label, err)
	}
	return nil
}

func (s *Store) DeleteSource(ctx context.Context, label string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.keys.Sources(), label)
		pipe.Del(ctx, s.keys.Source(label))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: delete %q: %w", label, err)
	}
	if removed.Val() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMerged(ctx context.Context) error {
	if err := s.client.Del(ctx, s.keys.Merged()).Err(); err != nil {
		return fmt.Errorf("redisstore: delete merged: %w", err)
	}
	return nil
}
