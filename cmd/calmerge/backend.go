package main

import (
	"context"
	"fmt"

	"calmerge/internal/config"
	"calmerge/internal/ics"
	"calmerge/internal/store"
	"calmerge/internal/store/fsstore"
	"calmerge/internal/store/redisstore"
	"calmerge/internal/store/remote"
	"calmerge/internal/store/sqlstore"
)

// openBackend builds the configured storage backend. The returned func
// releases its connections.
func openBackend(ctx context.Context, conf *config.Config) (store.Backend, func(), error) {
	noop := func() {}
	st := conf.Storage

	switch st.Backend {
	case config.BackendFS:
		b, err := fsstore.New(st.Dir, st.MergedFile)
		return b, noop, err

	case config.BackendRemote:
		out, err := fsstore.New(st.Dir, st.MergedFile)
		if err != nil {
			return nil, noop, err
		}
		feeds := make([]ics.Feed, 0, len(conf.Sources))
		for _, s := range conf.Sources {
			feeds = append(feeds, ics.Feed{Label: s.Name, URL: s.URL})
		}
		b, err := remote.New(feeds, ics.NewFetcher(st.CacheDir, st.FetchTimeout), out)
		return b, noop, err

	case config.BackendRedis:
		client, err := redisstore.Connect(ctx, redisstore.ConnectOptions{
			Addr:     st.Redis.Addr,
			Username: st.Redis.Username,
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
		})
		if err != nil {
			return nil, noop, err
		}
		b := redisstore.New(client, st.Redis.KeyPrefix)
		return b, func() { _ = b.Close() }, nil

	case config.BackendSQLite:
		b, err := sqlstore.Open(ctx, st.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return b, func() { _ = b.Close() }, nil
	}

	return nil, noop, fmt.Errorf("unknown storage backend %q", st.Backend)
}
