package ics

import (
	"bytes"
	"errors"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "calmerge/internal/log"
)

// PropertySource is the vendor extension carrying an event's origin label.
const PropertySource = ical.ComponentProperty("X-SOURCE")

// Document is one parsed feed. Every VEVENT in Cal carries PropertySource.
type Document struct {
	Label string
	Cal   *ical.Calendar
}

// Events returns the event records of the document.
func (d *Document) Events() []*ical.VEvent {
	if d == nil || d.Cal == nil {
		return nil
	}
	return d.Cal.Events()
}

// Load parses body as an iCalendar document and stamps each VEVENT with
// label. An event that already carries a non-empty X-SOURCE keeps it, so a
// previously merged output can be loaded again without losing provenance.
//
// Malformed input yields a *ParseError; the caller should skip the feed.
func Load(label string, body []byte) (*Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ParseError{Label: label, Err: errors.New("empty calendar body")}
	}
	if !bytes.Contains(bytes.ToUpper(body), []byte("BEGIN:VCALENDAR")) {
		return nil, &ParseError{Label: label, Err: errors.New("missing BEGIN:VCALENDAR")}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "label", label)
		return nil, &ParseError{Label: label, Err: err}
	}

	events := cal.Events()
	for _, ev := range events {
		Stamp(ev, label)
	}

	appLog.Debug("ics parse completed", "label", label, "event_count", len(events))
	return &Document{Label: label, Cal: cal}, nil
}

// Stamp sets the source tag on ev unless one is already present.
func Stamp(ev *ical.VEvent, label string) {
	if p := ev.GetProperty(PropertySource); p != nil && strings.TrimSpace(p.Value) != "" {
		return
	}
	ev.SetProperty(PropertySource, label)
}

// SourceOf returns the source tag of ev, or "" if it has none.
func SourceOf(ev *ical.VEvent) string {
	if p := ev.GetProperty(PropertySource); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}
