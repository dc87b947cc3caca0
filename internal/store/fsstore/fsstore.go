// Package fsstore keeps feeds as *.ics files in one directory and writes the
// merged calendar next to them.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	appLog "calmerge/internal/log"
	"calmerge/internal/model"
	"calmerge/internal/store"
)

// DefaultMergedName is the merged output file name.
const DefaultMergedName = "merged_output.ics"

// Store is a directory-backed store.Backend.
type Store struct {
	dir        string
	mergedName string
}

var (
	_ store.Backend       = (*Store)(nil)
	_ store.SourceWriter  = (*Store)(nil)
	_ store.SourceRemover = (*Store)(nil)
)

// New opens dir, creating it if needed.
func New(dir, mergedName string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("fsstore: directory is empty")
	}
	if mergedName == "" {
		mergedName = DefaultMergedName
	}
	if filepath.Base(mergedName) != mergedName {
		return nil, fmt.Errorf("fsstore: merged name %q must be a plain file name", mergedName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: %w", err)
	}
	return &Store{dir: dir, mergedName: mergedName}, nil
}

func (s *Store) Dir() string { return s.dir }

// MergedPath is where WriteMerged publishes.
func (s *Store) MergedPath() string {
	return filepath.Join(s.dir, s.mergedName)
}

// ListSources reads every calendar file except the merged output.
func (s *Store) ListSources(ctx context.Context) ([]model.RawSource, []model.SourceFailure, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("fsstore: list %s: %w", s.dir, err)
	}

	type candidate struct {
		label string
		name  string
	}
	var files []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.EqualFold(name, s.mergedName) {
			continue
		}
		label := model.LabelFromName(name)
		if label == name {
			// not a calendar extension
			continue
		}
		files = append(files, candidate{label: label, name: name})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].label != files[j].label {
			return files[i].label < files[j].label
		}
		return files[i].name < files[j].name
	})

	sources := make([]model.RawSource, 0, len(files))
	var failures []model.SourceFailure
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.name))
		if err != nil {
			appLog.Error("fsstore: read source failed", err, "label", f.label, "file", f.name)
			failures = append(failures, model.SourceFailure{Label: f.label, Reason: err.Error()})
			continue
		}
		sources = append(sources, model.RawSource{Label: f.label, Data: data})
	}
	return sources, failures, nil
}

func (s *Store) WriteMerged(_ context.Context, data []byte) error {
	return WriteFileAtomic(s.MergedPath(), data, 0o644)
}

func (s *Store) ReadMerged(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.MergedPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	return data, err
}

// PutSource writes data as <label>.ics.
func (s *Store) PutSource(_ context.Context, label string, data []byte) error {
	if err := store.ValidateLabel(label); err != nil {
		return err
	}
	name := label + ".ics"
	if strings.EqualFold(name, s.mergedName) {
		return fmt.Errorf("fsstore: label %q collides with the merged output", label)
	}
	return WriteFileAtomic(filepath.Join(s.dir, name), data, 0o644)
}

// DeleteSource removes every file whose label is label.
func (s *Store) DeleteSource(_ context.Context, label string) error {
	if err := store.ValidateLabel(label); err != nil {
		return err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.EqualFold(name, s.mergedName) || model.LabelFromName(name) != label || name == label {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return err
		}
		removed++
	}
	if removed == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMerged(_ context.Context) error {
	err := os.Remove(s.MergedPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calmerge-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
