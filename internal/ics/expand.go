package ics

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calmerge/internal/log"
	"calmerge/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Location is the display zone of timed occurrences. If nil, time.Local is used.
	Location *time.Location

	// RangeStart / RangeEnd bound the half-open window [RangeStart, RangeEnd).
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single rule. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandRecurrences replaces every recurring event with its occurrences
// inside the configured window. Non-recurring events are returned as-is,
// and input order is preserved (occurrences of one rule stay adjacent).
//
// An event whose RRULE cannot be parsed is kept as a single occurrence.
func ExpandRecurrences(events []model.CalendarEvent, cfg ExpandConfig) ([]model.CalendarEvent, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if !ev.Recurring() {
			out = append(out, ev)
			continue
		}

		occ, err := expandEvent(ev, cfg)
		if err != nil {
			appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
			out = append(out, ev)
			continue
		}
		out = append(out, occ...)
	}
	return out, nil
}

func expandEvent(ev model.CalendarEvent, cfg ExpandConfig) ([]model.CalendarEvent, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(ev.RRule, "RRULE:"))
	if err != nil {
		return nil, err
	}

	// All-day rules run on floating dates in UTC. Timed rules run in the
	// zone DTSTART was written in, as RFC 5545 requires.
	rangeStart, rangeEnd := cfg.RangeStart, cfg.RangeEnd
	dtstart := ev.Start.Time
	if ev.AllDay {
		rangeStart = floatingDate(rangeStart)
		rangeEnd = floatingDate(rangeEnd)
	} else {
		dtstart = dtstart.In(ev.RuleZone())
	}
	opt.Dtstart = dtstart

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		if ev.AllDay {
			set.ExDate(floatingDate(ex))
		} else {
			set.ExDate(ex.In(dtstart.Location()))
		}
	}

	times := set.Between(rangeStart, rangeEnd, true)
	// Between is inclusive at both ends; the window is half-open.
	if n := len(times); n > 0 && !times[n-1].Before(rangeEnd) {
		times = times[:n-1]
	}
	if len(times) > cfg.MaxOccurrencesPerEvent {
		appLog.Warn("expand: truncated occurrences", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		times = times[:cfg.MaxOccurrencesPerEvent]
	}

	out := make([]model.CalendarEvent, 0, len(times))
	for _, t := range times {
		out = append(out, shiftEvent(ev, t, cfg.Location))
	}
	return out, nil
}

// shiftEvent moves ev so that it starts at start, keeping its duration.
// Timed occurrences are converted into loc. The occurrence drops the rule
// so it is never expanded twice.
func shiftEvent(ev model.CalendarEvent, start time.Time, loc *time.Location) model.CalendarEvent {
	occ := ev
	occ.RRule = ""
	occ.ExDates = nil

	if ev.AllDay {
		days := int(floatingDate(start).Sub(ev.Start.Time).Hours() / 24)
		occ.Start = model.EventTime{Time: ev.Start.Time.AddDate(0, 0, days), DateOnly: true}
		occ.End = ev.End
		if ev.End.DateOnly {
			occ.End = model.EventTime{Time: ev.End.Time.AddDate(0, 0, days), DateOnly: true}
		}
		return occ
	}

	occ.Start = model.EventTime{Time: start.In(loc)}
	if !ev.End.DateOnly {
		occ.End = model.EventTime{Time: start.Add(ev.End.Time.Sub(ev.Start.Time)).In(loc)}
	}
	return occ
}

// floatingDate maps t's civil date to midnight UTC.
func floatingDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
