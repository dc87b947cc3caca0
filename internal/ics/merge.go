package ics

import (
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "calmerge/internal/log"
	"calmerge/internal/model"
)

// DefaultProductID is used only when the first feed declares no PRODID.
const DefaultProductID = "-//calmerge//Merged Calendar//EN"

// uidNamespace scopes the name-based UIDs given to events that arrive
// without one.
var uidNamespace = uuid.MustParse("9d8f8a76-2a53-4f0c-8b4e-5d0f3f6b7c21")

// Merged is the result of one merge cycle.
type Merged struct {
	Doc      *ical.Calendar
	Calendar model.MergedCalendar
}

// Serialize renders the aggregate back to interchange bytes.
func (m *Merged) Serialize() []byte {
	return []byte(m.Doc.Serialize())
}

// Merger combines loaded documents into one calendar.
type Merger struct {
	Normalizer *Normalizer
	// Now is used for MergedCalendar.GeneratedAt; defaults to time.Now.
	Now func() time.Time
}

// NewMerger creates a Merger that normalizes with n.
func NewMerger(n *Normalizer) *Merger {
	return &Merger{Normalizer: n, Now: time.Now}
}

// Merge builds the aggregate from docs, in order.
//
// Calendar-level properties come from the first document only. Every
// VEVENT of every document is stamped with its label and appended; events
// are never de-duplicated. Records without DTSTART or DTEND are left out
// of the aggregate. VTIMEZONE definitions are carried once per TZID.
func (m *Merger) Merge(docs []*Document) (*Merged, error) {
	if len(docs) == 0 {
		return nil, &NoSourcesError{}
	}

	agg := &ical.Calendar{
		Components:         []ical.Component{},
		CalendarProperties: []ical.CalendarProperty{},
	}

	agg.CalendarProperties = append(agg.CalendarProperties, docs[0].Cal.CalendarProperties...)
	if !hasCalendarProperty(agg, "VERSION") {
		agg.SetVersion("2.0")
	}
	if !hasCalendarProperty(agg, "PRODID") {
		agg.SetProductId(DefaultProductID)
	}

	var (
		timezones []ical.Component
		records   []ical.Component
		seenTZ    = make(map[string]bool)
		seenLabel = make(map[string]bool)
		result    model.MergedCalendar
	)

	for _, doc := range docs {
		if !seenLabel[doc.Label] {
			seenLabel[doc.Label] = true
			result.Sources = append(result.Sources, doc.Label)
		}

		skipped := 0
		for i, comp := range doc.Cal.Components {
			switch c := comp.(type) {
			case *ical.VEvent:
				Stamp(c, doc.Label)
				ensureUID(c, doc.Label, i)
				ev, err := m.Normalizer.NormalizeEvent(c)
				if err != nil {
					skipped++
					appLog.Debug("ics event dropped from merge", "label", doc.Label, "reason", err.Error())
					continue
				}
				records = append(records, c)
				result.Events = append(result.Events, ev)
			case *ical.VTimezone:
				id := ""
				if p := c.GetProperty(ical.ComponentProperty("TZID")); p != nil {
					id = strings.TrimSpace(p.Value)
				}
				if id == "" || seenTZ[id] {
					continue
				}
				seenTZ[id] = true
				timezones = append(timezones, c)
			}
		}
		if skipped > 0 {
			appLog.Info("ics events skipped", "label", doc.Label, "skipped", skipped)
		}
	}

	agg.Components = append(agg.Components, timezones...)
	agg.Components = append(agg.Components, records...)

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	result.GeneratedAt = now()

	appLog.Info("ics merge completed",
		"sources", len(result.Sources),
		"records", len(records),
		"events", len(result.Events),
		"timezones", len(timezones),
	)

	return &Merged{Doc: agg, Calendar: result}, nil
}

// Reload parses previously merged bytes back into a MergedCalendar. Event
// tags come from X-SOURCE; label is only used for events without one.
func (m *Merger) Reload(label string, data []byte) (*model.MergedCalendar, error) {
	doc, err := Load(label, data)
	if err != nil {
		return nil, err
	}

	events := m.Normalizer.Normalize(doc)
	out := &model.MergedCalendar{Events: events}

	seen := make(map[string]bool)
	for _, ev := range events {
		if !seen[ev.Source] {
			seen[ev.Source] = true
			out.Sources = append(out.Sources, ev.Source)
		}
	}
	return out, nil
}

func hasCalendarProperty(cal *ical.Calendar, token string) bool {
	for _, p := range cal.CalendarProperties {
		if strings.EqualFold(p.IANAToken, token) {
			return true
		}
	}
	return false
}

// ensureUID gives a UID-less record a name-based UUID so repeated merges of
// the same feed produce the same identifier.
func ensureUID(ev *ical.VEvent, label string, index int) {
	if p := ev.GetProperty(ical.ComponentPropertyUniqueId); p != nil && strings.TrimSpace(p.Value) != "" {
		return
	}

	var b strings.Builder
	b.WriteString(label)
	for _, prop := range []ical.ComponentProperty{ical.ComponentPropertyDtStart, ical.ComponentPropertyDtEnd, ical.ComponentPropertySummary} {
		b.WriteByte(0)
		if p := ev.GetProperty(prop); p != nil {
			b.WriteString(p.Value)
		}
	}
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(index))

	ev.SetProperty(ical.ComponentPropertyUniqueId, uuid.NewSHA1(uidNamespace, []byte(b.String())).String())
}
