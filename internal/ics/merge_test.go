package ics

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"calmerge/internal/model"
)

func mustLoad(t *testing.T, label string, body []byte) *Document {
	t.Helper()
	doc, err := Load(label, body)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", label, err)
	}
	return doc
}

func fixedMerger(loc *time.Location) *Merger {
	m := NewMerger(NewNormalizer(loc))
	m.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

func TestMergeTagsEventsBySource(t *testing.T) {
	m := fixedMerger(utc)
	merged, err := m.Merge([]*Document{
		mustLoad(t, "personal", personalFeed()),
		mustLoad(t, "work", workFeed()),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	events := merged.Calendar.Events
	if len(events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(events))
	}
	if events[0].Source != "personal" || events[1].Source != "work" {
		t.Errorf("sources = %q, %q; want personal, work", events[0].Source, events[1].Source)
	}
	if !reflect.DeepEqual(merged.Calendar.Sources, []string{"personal", "work"}) {
		t.Errorf("Sources = %v", merged.Calendar.Sources)
	}
	if len(merged.Doc.Events()) != 2 {
		t.Errorf("aggregate has %d VEVENTs, want 2", len(merged.Doc.Events()))
	}
	for _, ev := range merged.Doc.Events() {
		if SourceOf(ev) == "" {
			t.Error("aggregate VEVENT without X-SOURCE")
		}
	}
}

func TestMergeCopiesFirstCalendarMetadataOnly(t *testing.T) {
	first := calendarBytes("-//first//EN", join(
		[]string{"X-WR-CALNAME:First"},
		vevent("UID:a", "DTSTART:20240304T090000Z", "DTEND:20240304T100000Z"),
	)...)
	second := calendarBytes("-//second//EN", join(
		[]string{"X-WR-CALNAME:Second"},
		vevent("UID:b", "DTSTART:20240304T090000Z", "DTEND:20240304T100000Z"),
	)...)

	merged, err := fixedMerger(utc).Merge([]*Document{mustLoad(t, "a", first), mustLoad(t, "b", second)})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	out := string(merged.Serialize())
	if !strings.Contains(out, "PRODID:-//first//EN") || !strings.Contains(out, "X-WR-CALNAME:First") {
		t.Errorf("first calendar metadata missing:\n%s", out)
	}
	if strings.Contains(out, "-//second//EN") || strings.Contains(out, "X-WR-CALNAME:Second") {
		t.Errorf("second calendar metadata leaked:\n%s", out)
	}
}

func TestMergeNeverDeduplicatesEvents(t *testing.T) {
	m := fixedMerger(utc)
	merged, err := m.Merge([]*Document{
		mustLoad(t, "work", workFeed()),
		mustLoad(t, "work-copy", workFeed()),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(merged.Calendar.Events) != 2 {
		t.Errorf("len(Events) = %d, want 2", len(merged.Calendar.Events))
	}
}

func TestMergeCarriesTimezonesOnce(t *testing.T) {
	tz := []string{
		"BEGIN:VTIMEZONE",
		"TZID:Europe/Berlin",
		"BEGIN:STANDARD",
		"DTSTART:19701025T030000",
		"TZOFFSETFROM:+0200",
		"TZOFFSETTO:+0100",
		"END:STANDARD",
		"END:VTIMEZONE",
	}
	a := calendarBytes("-//a//EN", join(tz, vevent("UID:a", "DTSTART;TZID=Europe/Berlin:20240304T090000", "DTEND;TZID=Europe/Berlin:20240304T100000"))...)
	b := calendarBytes("-//b//EN", join(tz, vevent("UID:b", "DTSTART;TZID=Europe/Berlin:20240305T090000", "DTEND;TZID=Europe/Berlin:20240305T100000"))...)

	merged, err := fixedMerger(utc).Merge([]*Document{mustLoad(t, "a", a), mustLoad(t, "b", b)})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	count := 0
	for _, c := range merged.Doc.Components {
		if _, ok := c.(*ical.VTimezone); ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("VTIMEZONE count = %d, want 1", count)
	}
	if got := merged.Calendar.Events[0].Start.Time; !got.Equal(time.Date(2024, 3, 4, 8, 0, 0, 0, utc)) {
		t.Errorf("Berlin start = %v, want 08:00 UTC", got)
	}
}

func TestMergeAssignsStableUIDs(t *testing.T) {
	body := calendarBytes("-//x//EN", vevent("DTSTART:20240304T090000Z", "DTEND:20240304T100000Z", "SUMMARY:No uid")...)

	first, err := fixedMerger(utc).Merge([]*Document{mustLoad(t, "x", body)})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	second, err := fixedMerger(utc).Merge([]*Document{mustLoad(t, "x", body)})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	uid := first.Calendar.Events[0].UID
	if uid == "" {
		t.Fatal("UID not assigned")
	}
	if uid != second.Calendar.Events[0].UID {
		t.Errorf("UIDs differ across merges: %q vs %q", uid, second.Calendar.Events[0].UID)
	}
}

func TestMergeNoSources(t *testing.T) {
	_, err := fixedMerger(utc).Merge(nil)
	if !errors.Is(err, ErrNoSources) {
		t.Fatalf("Merge(nil) error = %v, want ErrNoSources", err)
	}
	var nse *NoSourcesError
	if !errors.As(err, &nse) || nse.Attempted != 0 {
		t.Errorf("error = %#v, want *NoSourcesError with Attempted 0", err)
	}
}

func TestMergeRoundTrip(t *testing.T) {
	display := time.FixedZone("UTC+1", 3600)
	m := fixedMerger(display)

	merged, err := m.Merge([]*Document{
		mustLoad(t, "personal", personalFeed()),
		mustLoad(t, "work", workFeed()),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	reloaded, err := m.Reload("merged_output", merged.Serialize())
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	assertSameEvents(t, merged.Calendar.Events, reloaded.Events)

	// Merging the output again as a single source keeps every tag.
	again, err := m.Merge([]*Document{mustLoad(t, "merged_output", merged.Serialize())})
	if err != nil {
		t.Fatalf("Merge(output) error = %v", err)
	}
	assertSameEvents(t, merged.Calendar.Events, again.Calendar.Events)
}

func TestMergeIdempotent(t *testing.T) {
	run := func() []model.CalendarEvent {
		merged, err := NewMerger(NewNormalizer(utc)).Merge([]*Document{
			mustLoad(t, "personal", personalFeed()),
			mustLoad(t, "work", workFeed()),
		})
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		return merged.Calendar.Events
	}
	assertSameEvents(t, run(), run())
}

func assertSameEvents(t *testing.T, want, got []model.CalendarEvent) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("event count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.UID != g.UID || w.Summary != g.Summary || w.Source != g.Source || w.AllDay != g.AllDay {
			t.Errorf("event %d = %+v, want %+v", i, g, w)
		}
		if !w.Start.Time.Equal(g.Start.Time) || w.Start.DateOnly != g.Start.DateOnly {
			t.Errorf("event %d start = %v, want %v", i, g.Start, w.Start)
		}
		if !w.End.Time.Equal(g.End.Time) || w.End.DateOnly != g.End.DateOnly {
			t.Errorf("event %d end = %v, want %v", i, g.End, w.End)
		}
	}
}

func TestMergeDropsRecordsMissingTimes(t *testing.T) {
	body := calendarBytes("-//x//EN", join(
		vevent("UID:good", "DTSTART:20240304T090000Z", "DTEND:20240304T100000Z"),
		vevent("UID:no-end", "DTSTART:20240304T110000Z"),
	)...)

	merged, err := fixedMerger(utc).Merge([]*Document{mustLoad(t, "x", body)})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(merged.Calendar.Events) != 1 || merged.Calendar.Events[0].UID != "good" {
		t.Errorf("Events = %+v, want only good", merged.Calendar.Events)
	}
	if out := string(merged.Serialize()); strings.Contains(out, "no-end") {
		t.Errorf("serialized output still has the malformed record:\n%s", out)
	}
}
