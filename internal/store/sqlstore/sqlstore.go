// Package sqlstore keeps feeds and the merged calendar in SQLite through
// bun.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"calmerge/internal/model"
	"calmerge/internal/store"
)

const mergedRowID = 1

type sourceRow struct {
	bun.BaseModel `bun:"table:sources"`

	Label     string    `bun:"label,pk"`
	Data      []byte    `bun:"data,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type mergedRow struct {
	bun.BaseModel `bun:"table:merged_output"`

	ID        int64     `bun:"id,pk"`
	Data      []byte    `bun:"data,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// Store is a SQLite-backed store.Backend.
type Store struct {
	db *bun.DB
}

var (
	_ store.Backend       = (*Store)(nil)
	_ store.SourceWriter  = (*Store)(nil)
	_ store.SourceRemover = (*Store)(nil)
)

// Open connects to dsn (a file path or ":memory:") and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlstore: dsn is empty")
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	// ":memory:" databases are per connection.
	sqldb.SetMaxOpenConns(1)

	s := &Store{db: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := s.createSchema(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, m := range []interface{}{
			(*sourceRow)(nil),
			(*mergedRow)(nil),
		} {
			if _, err := tx.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: create schema: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListSources(ctx context.Context) ([]model.RawSource, []model.SourceFailure, error) {
	var rows []sourceRow
	if err := s.db.NewSelect().Model(&rows).Order("label ASC").Scan(ctx); err != nil {
		return nil, nil, fmt.Errorf("sqlstore: list sources: %w", err)
	}
	sources := make([]model.RawSource, 0, len(rows))
	for _, r := range rows {
		sources = append(sources, model.RawSource{Label: r.Label, Data: r.Data})
	}
	return sources, nil, nil
}

// WriteMerged replaces the merged row in one transaction.
func (s *Store) WriteMerged(ctx context.Context, data []byte) error {
	row := &mergedRow{ID: mergedRowID, Data: data, CreatedAt: time.Now().UTC()}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("data = EXCLUDED.data").
			Set("created_at = EXCLUDED.created_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sqlstore: write merged: %w", err)
		}
		return nil
	})
}

func (s *Store) ReadMerged(ctx context.Context) ([]byte, error) {
	var row mergedRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", mergedRowID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: read merged: %w", err)
	}
	return row.Data, nil
}

func (s *Store) PutSource(ctx context.Context, label string, data []byte) error {
	if err := store.ValidateLabel(label); err != nil {
		return err
	}
	row := &sourceRow{Label: label, Data: data, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (label) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: put %q: %w", label, err)
	}
	return nil
}

func (s *Store) DeleteSource(ctx context.Context, label string) error {
	res, err := s.db.NewDelete().Model((*sourceRow)(nil)).Where("label = ?", label).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: delete %q: %w", label, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMerged(ctx context.Context) error {
	_, err := s.db.NewDelete().Model((*mergedRow)(nil)).Where("id = ?", mergedRowID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: delete merged: %w", err)
	}
	return nil
}
