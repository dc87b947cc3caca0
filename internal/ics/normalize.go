package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calmerge/internal/log"
	"calmerge/internal/model"
)

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
)

// Normalizer turns raw VEVENT records into model.CalendarEvent values
// anchored to one display location.
type Normalizer struct {
	// Location is both the zone attached to floating timestamps and the
	// zone every timed event is converted into. If nil, time.Local is used.
	Location *time.Location
}

// NewNormalizer creates a Normalizer for loc.
func NewNormalizer(loc *time.Location) *Normalizer {
	return &Normalizer{Location: loc}
}

func (n *Normalizer) location() *time.Location {
	if n == nil || n.Location == nil {
		return time.Local
	}
	return n.Location
}

// Normalize converts every event of doc. Records lacking DTSTART or DTEND
// are skipped; this never fails.
func (n *Normalizer) Normalize(doc *Document) []model.CalendarEvent {
	raw := doc.Events()
	out := make([]model.CalendarEvent, 0, len(raw))
	skipped := 0

	for _, ve := range raw {
		ev, err := n.NormalizeEvent(ve)
		if err != nil {
			skipped++
			appLog.Debug("ics event skipped", "label", doc.Label, "reason", err.Error())
			continue
		}
		out = append(out, ev)
	}

	if skipped > 0 {
		appLog.Info("ics events skipped", "label", doc.Label, "skipped", skipped, "kept", len(out))
	}
	return out
}

// NormalizeEvent converts a single record. It returns a *MissingFieldError
// when DTSTART or DTEND is absent or unreadable.
func (n *Normalizer) NormalizeEvent(ve *ical.VEvent) (model.CalendarEvent, error) {
	var out model.CalendarEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = strings.TrimSpace(p.Value)
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || strings.TrimSpace(startProp.Value) == "" {
		return out, &MissingFieldError{UID: out.UID, Field: "DTSTART"}
	}
	endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	if endProp == nil || strings.TrimSpace(endProp.Value) == "" {
		return out, &MissingFieldError{UID: out.UID, Field: "DTEND"}
	}

	loc := n.location()

	start, err := parseTimeProp(startProp, loc)
	if err != nil {
		return out, &MissingFieldError{UID: out.UID, Field: "DTSTART"}
	}
	end, err := parseTimeProp(endProp, loc)
	if err != nil {
		return out, &MissingFieldError{UID: out.UID, Field: "DTEND"}
	}

	out.Start = start
	out.End = end
	out.AllDay = start.DateOnly
	if !start.DateOnly {
		out.StartZone = valueZone(startProp, loc)
	}

	out.Summary = model.DefaultSummary
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && strings.TrimSpace(p.Value) != "" {
		out.Summary = p.Value
	}

	out.Source = SourceOf(ve)
	if out.Source == "" {
		out.Source = model.UnknownSource
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = strings.TrimSpace(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		out.ExDates = append(out.ExDates, parseExDates(p, loc)...)
	}

	return out, nil
}

// parseTimeProp reads a DTSTART/DTEND style property.
//
//   - VALUE=DATE or a value without 'T' is a date-only value; no zone applies.
//   - A trailing 'Z' is UTC.
//   - TZID selects the zone; an unknown TZID is treated like a floating time.
//   - A floating time is interpreted in loc.
//
// Timed values are returned converted into loc.
func parseTimeProp(p *ical.IANAProperty, loc *time.Location) (model.EventTime, error) {
	value := cleanTimeValue(p.Value)
	if value == "" {
		return model.EventTime{}, errors.New("empty time value")
	}

	if paramEquals(p, "VALUE", "DATE") || !strings.Contains(value, "T") {
		if len(value) < len(layoutDate) {
			return model.EventTime{}, fmt.Errorf("invalid date %q", value)
		}
		d, err := time.Parse(layoutDate, value[:len(layoutDate)])
		if err != nil {
			return model.EventTime{}, err
		}
		return model.EventTime{Time: d, DateOnly: true}, nil
	}

	t, err := parseDateTime(value, valueZone(p, loc))
	if err != nil {
		return model.EventTime{}, err
	}
	return model.EventTime{Time: t.In(loc)}, nil
}

// valueZone returns the zone a timed value was written in: UTC for a
// trailing 'Z', the TZID zone when it resolves, loc otherwise.
func valueZone(p *ical.IANAProperty, loc *time.Location) *time.Location {
	if strings.HasSuffix(cleanTimeValue(p.Value), "Z") {
		return time.UTC
	}
	if tzid := param(p, "TZID"); tzid != "" {
		if tzLoc, err := loadTZID(tzid); err == nil {
			return tzLoc
		}
		appLog.Debug("unknown TZID; treating as floating", "tzid", tzid)
	}
	return loc
}

func parseDateTime(value string, src *time.Location) (time.Time, error) {
	if strings.HasSuffix(value, "Z") {
		return time.Parse(layoutDateTime+"Z", value)
	}
	// Drop fractional or trailing garbage beyond seconds.
	if len(value) > len(layoutDateTime) {
		value = value[:len(layoutDateTime)]
	}
	return time.ParseInLocation(layoutDateTime, value, src)
}

// parseExDates handles comma-separated EXDATE values.
func parseExDates(p *ical.IANAProperty, loc *time.Location) []time.Time {
	var out []time.Time
	for _, part := range strings.Split(p.Value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		single := *p
		single.Value = part
		et, err := parseTimeProp(&single, loc)
		if err != nil {
			continue
		}
		out = append(out, et.Time)
	}
	return out
}

// cleanTimeValue accepts the basic format and tolerates extended ISO
// separators some exporters emit.
func cleanTimeValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.ReplaceAll(v, "-", "")
	v = strings.ReplaceAll(v, ":", "")
	return strings.ToUpper(v)
}

func param(p *ical.IANAProperty, key string) string {
	if p.ICalParameters == nil {
		return ""
	}
	for k, vs := range p.ICalParameters {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func paramEquals(p *ical.IANAProperty, key, want string) bool {
	return strings.EqualFold(param(p, key), want)
}
