package ics

import (
	"errors"
	"fmt"
	"strings"

	"calmerge/internal/model"
)

// ErrNoSources is matched by errors.Is on a *NoSourcesError.
var ErrNoSources = errors.New("no input calendars")

// ParseError reports a feed whose bytes are not a well-formed calendar.
// The feed is skipped; the merge continues with the rest.
type ParseError struct {
	Label string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Label, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingFieldError marks an event record without DTSTART or DTEND. Such
// records are dropped silently; the error only feeds debug logging.
type MissingFieldError struct {
	UID   string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("event %q: missing %s", e.UID, e.Field)
}

// NoSourcesError is returned when a merge has nothing to merge: either the
// backend listed no feeds or every feed failed.
type NoSourcesError struct {
	Attempted int
	Failures  []model.SourceFailure
}

func (e *NoSourcesError) Error() string {
	if e.Attempted == 0 {
		return ErrNoSources.Error()
	}
	labels := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		labels = append(labels, f.Label)
	}
	return fmt.Sprintf("%v: all %d feed(s) failed (%s)", ErrNoSources, e.Attempted, strings.Join(labels, ", "))
}

func (e *NoSourcesError) Is(target error) bool { return target == ErrNoSources }

// TimeZoneResolutionError reports that the configured display zone could
// not be loaded. The caller still receives a usable fallback location.
type TimeZoneResolutionError struct {
	Name     string
	Fallback string
	Err      error
}

func (e *TimeZoneResolutionError) Error() string {
	return fmt.Sprintf("resolve time zone %q: %v (using %s)", e.Name, e.Err, e.Fallback)
}

func (e *TimeZoneResolutionError) Unwrap() error { return e.Err }
