// Package store defines where source feeds come from and where the merged
// calendar goes. Concrete backends live in the sub-packages.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"calmerge/internal/model"
)

// ErrNotFound is returned when a feed or the merged output does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrReadOnly is returned by helpers when a backend cannot accept feeds.
var ErrReadOnly = errors.New("store: backend does not accept feeds")

// Backend is the storage contract of the merge pipeline.
type Backend interface {
	// ListSources returns every feed sorted by label. Feeds that cannot be
	// read are reported in the failure slice; the error is reserved for
	// the backend itself being unusable.
	ListSources(ctx context.Context) ([]model.RawSource, []model.SourceFailure, error)

	// WriteMerged publishes data as the merged output. Readers see either
	// the previous output or data, never a partial write.
	WriteMerged(ctx context.Context, data []byte) error

	// ReadMerged returns the last published output or ErrNotFound.
	ReadMerged(ctx context.Context) ([]byte, error)
}

// SourceWriter is implemented by backends that can store feeds.
type SourceWriter interface {
	PutSource(ctx context.Context, label string, data []byte) error
}

// SourceRemover is implemented by backends that can delete feeds.
type SourceRemover interface {
	DeleteSource(ctx context.Context, label string) error
	DeleteMerged(ctx context.Context) error
}

// ValidateLabel rejects labels that cannot be used as a file or key name.
func ValidateLabel(label string) error {
	switch {
	case strings.TrimSpace(label) == "":
		return errors.New("label is empty")
	case label != strings.TrimSpace(label):
		return fmt.Errorf("label %q has surrounding whitespace", label)
	case label == "." || label == "..":
		return fmt.Errorf("label %q is reserved", label)
	case strings.ContainsAny(label, `/\`):
		return fmt.Errorf("label %q contains a path separator", label)
	}
	return nil
}

// Put stores a feed if b supports it.
func Put(ctx context.Context, b Backend, label string, data []byte) error {
	w, ok := b.(SourceWriter)
	if !ok {
		return ErrReadOnly
	}
	if err := ValidateLabel(label); err != nil {
		return err
	}
	return w.PutSource(ctx, label, data)
}
