package store

import (
	"context"
	"errors"
	"testing"

	"calmerge/internal/model"
)

func TestValidateLabel(t *testing.T) {
	tests := []struct {
		label   string
		wantErr bool
	}{
		{label: "work", wantErr: false},
		{label: "Google Calendar", wantErr: false},
		{label: "", wantErr: true},
		{label: "   ", wantErr: true},
		{label: " work", wantErr: true},
		{label: "..", wantErr: true},
		{label: "a/b", wantErr: true},
		{label: `a\b`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			err := ValidateLabel(tt.label)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLabel(%q) error = %v, wantErr %v", tt.label, err, tt.wantErr)
			}
		})
	}
}

type readOnly struct{}

func (readOnly) ListSources(context.Context) ([]model.RawSource, []model.SourceFailure, error) {
	return nil, nil, nil
}
func (readOnly) WriteMerged(context.Context, []byte) error { return nil }
func (readOnly) ReadMerged(context.Context) ([]byte, error) { return nil, ErrNotFound }

func TestPutRequiresWriter(t *testing.T) {
	err := Put(context.Background(), readOnly{}, "work", []byte("x"))
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("Put() error = %v, want ErrReadOnly", err)
	}
}
