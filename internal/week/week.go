// Package week projects a merged event set onto Monday-aligned 7-day
// windows.
package week

import (
	"sort"
	"time"

	"calmerge/internal/ics"
	"calmerge/internal/model"
)

const (
	// DateLayout is the civil-date form used in URLs and flags.
	DateLayout = "2006-01-02"

	allDayLabel = "All-day"
	unknownEnd  = "??:??"
	clockLayout = "15:04"
	daysInWeek  = 7
)

// Day is one civil date of a window and the events that start on it.
type Day struct {
	// Date is midnight of the day in the projector's location.
	Date   time.Time
	Events []model.CalendarEvent
}

// Weekend reports whether the day is a Saturday or Sunday.
func (d Day) Weekend() bool {
	wd := d.Date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Key returns the day as YYYY-MM-DD.
func (d Day) Key() string {
	return d.Date.Format(DateLayout)
}

// Window is a Monday-to-Sunday projection.
type Window struct {
	Start time.Time
	Days  [daysInWeek]Day
}

// End is the exclusive upper bound of the window.
func (w Window) End() time.Time {
	return w.Start.AddDate(0, 0, daysInWeek)
}

// Events flattens the window in day order.
func (w Window) Events() []model.CalendarEvent {
	var out []model.CalendarEvent
	for _, d := range w.Days {
		out = append(out, d.Events...)
	}
	return out
}

// MondayOf returns midnight of the Monday of t's week, in t's location.
func MondayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

// Projector buckets events into week windows.
type Projector struct {
	Location *time.Location
	// ExpandRecurrences turns RRULE events into their occurrences inside
	// the window before bucketing. When false a recurring event only shows
	// on its first date.
	ExpandRecurrences bool
}

// NewProjector creates a projector for loc. A nil loc means time.Local.
func NewProjector(loc *time.Location, expand bool) *Projector {
	if loc == nil {
		loc = time.Local
	}
	return &Projector{Location: loc, ExpandRecurrences: expand}
}

// Project builds the window for the week containing weekStart. Each event
// is placed on the day of its start: the literal date for all-day events,
// the date in the projector's location for timed ones. Within a day
// all-day events come first, then timed events by ascending start.
func (p *Projector) Project(events []model.CalendarEvent, weekStart time.Time) (Window, error) {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	y, m, d := weekStart.Date()
	start := MondayOf(time.Date(y, m, d, 0, 0, 0, 0, loc))

	w := Window{Start: start}
	index := make(map[string]int, daysInWeek)
	for i := range w.Days {
		w.Days[i].Date = start.AddDate(0, 0, i)
		index[w.Days[i].Key()] = i
	}

	if p.ExpandRecurrences {
		expanded, err := ics.ExpandRecurrences(events, ics.ExpandConfig{
			Location:   loc,
			RangeStart: start,
			RangeEnd:   w.End(),
		})
		if err != nil {
			return Window{}, err
		}
		events = expanded
	}

	for _, ev := range events {
		i, ok := index[effectiveDate(ev, loc)]
		if !ok {
			continue
		}
		w.Days[i].Events = append(w.Days[i].Events, ev)
	}

	for i := range w.Days {
		sortDay(w.Days[i].Events, loc)
	}
	return w, nil
}

func effectiveDate(ev model.CalendarEvent, loc *time.Location) string {
	if ev.AllDay || ev.Start.DateOnly {
		return ev.Start.Time.Format(DateLayout)
	}
	return ev.Start.Time.In(loc).Format(DateLayout)
}

// sortDay orders by (timed, time-of-day). The sort is stable so events
// with equal keys keep merge order.
func sortDay(events []model.CalendarEvent, loc *time.Location) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		if a.AllDay {
			return false
		}
		return clockOffset(a.Start.Time.In(loc)) < clockOffset(b.Start.Time.In(loc))
	})
}

func clockOffset(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

// TimeLabel renders the time column of an agenda line: "All-day",
// "HH:MM - HH:MM", or "HH:MM - ??:??" when the end carries no time.
func TimeLabel(ev model.CalendarEvent, loc *time.Location) string {
	if ev.AllDay {
		return allDayLabel
	}
	if loc == nil {
		loc = time.Local
	}
	start := ev.Start.Time.In(loc).Format(clockLayout)
	if ev.End.DateOnly || ev.End.IsZero() {
		return start + " - " + unknownEnd
	}
	return start + " - " + ev.End.Time.In(loc).Format(clockLayout)
}

// Cursor is the only navigation state: the Monday being viewed.
type Cursor struct {
	Start time.Time
}

// NewCursor positions a cursor on the week containing t.
func NewCursor(t time.Time) Cursor {
	return Cursor{Start: MondayOf(t)}
}

func (c Cursor) Prev() Cursor { return Cursor{Start: c.Start.AddDate(0, 0, -daysInWeek)} }

func (c Cursor) Next() Cursor { return Cursor{Start: c.Start.AddDate(0, 0, daysInWeek)} }

// Today jumps to the week containing now.
func (c Cursor) Today(now time.Time) Cursor { return NewCursor(now) }

// Summary holds the headline numbers shown next to a calendar.
type Summary struct {
	Total   int      `json:"total_events"`
	Sources []string `json:"sources"`
	AllDay  int      `json:"all_day_events"`
}

// Summarize counts events, distinct sources (sorted) and all-day events.
func Summarize(events []model.CalendarEvent) Summary {
	s := Summary{Total: len(events), Sources: []string{}}
	seen := make(map[string]bool)
	for _, ev := range events {
		if ev.AllDay {
			s.AllDay++
		}
		if !seen[ev.Source] {
			seen[ev.Source] = true
			s.Sources = append(s.Sources, ev.Source)
		}
	}
	sort.Strings(s.Sources)
	return s
}
