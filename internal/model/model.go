package model

import (
	"path"
	"strings"
	"time"
)

const (
	// DefaultSummary replaces an absent SUMMARY.
	DefaultSummary = "No Title"
	// UnknownSource is used when an event carries no source tag.
	UnknownSource = "unknown"
)

// EventTime is either a full timestamp (DateOnly == false, Time carries a
// zone) or a calendar date (DateOnly == true, Time is midnight UTC of that
// date and only its year/month/day are meaningful).
type EventTime struct {
	Time     time.Time
	DateOnly bool
}

// NewDate builds a date-only EventTime.
func NewDate(year int, month time.Month, day int) EventTime {
	return EventTime{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), DateOnly: true}
}

// NewTimestamp builds a timed EventTime.
func NewTimestamp(t time.Time) EventTime {
	return EventTime{Time: t}
}

// Date returns the civil date of the value. For timestamps this is the date
// in the timestamp's own location, so callers must normalize first.
func (t EventTime) Date() (int, time.Month, int) {
	return t.Time.Date()
}

// IsZero reports whether the value was never set.
func (t EventTime) IsZero() bool {
	return t.Time.IsZero()
}

// CalendarEvent is one occurrence extracted from a source feed, normalized
// into the display zone. Values are never mutated after normalization.
type CalendarEvent struct {
	UID     string
	Summary string
	Source  string

	Start EventTime
	End   EventTime

	// AllDay is true iff Start carries no time-of-day.
	AllDay bool

	// RRule and ExDates are only set for recurring events. Expansion is
	// done by the week projection, not during normalization.
	RRule   string
	ExDates []time.Time

	// StartZone is the zone DTSTART was written in. Recurrence rules are
	// evaluated there. Nil means the location of Start.Time.
	StartZone *time.Location
}

// Recurring reports whether the event carries a recurrence rule.
func (e CalendarEvent) Recurring() bool {
	return e.RRule != ""
}

// RuleZone returns the zone recurrence rules of e are evaluated in.
func (e CalendarEvent) RuleZone() *time.Location {
	if e.StartZone != nil {
		return e.StartZone
	}
	return e.Start.Time.Location()
}

// RawSource is an undecoded calendar feed as handed over by a storage
// backend.
type RawSource struct {
	Label string
	Data  []byte
}

// SourceFailure describes a feed that could not be read or parsed.
type SourceFailure struct {
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// CalendarSource is a named feed and the events normalized out of it.
type CalendarSource struct {
	Label  string
	Events []CalendarEvent
}

// MergedCalendar is the union of all sources' events, in source-processing
// order, each still tagged with its origin label.
type MergedCalendar struct {
	// Sources lists the labels that contributed, deduplicated, in merge order.
	Sources     []string
	Events      []CalendarEvent
	GeneratedAt time.Time
}

var calendarExtensions = []string{".ics", ".ical", ".icalendar", ".ifb"}

// LabelFromName derives a source label from a file or object name by
// dropping any directory part and a calendar extension.
func LabelFromName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	lower := strings.ToLower(base)
	for _, ext := range calendarExtensions {
		if strings.HasSuffix(lower, ext) && len(base) > len(ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}
