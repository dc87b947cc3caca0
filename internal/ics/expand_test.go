package ics

import (
	"testing"
	"time"

	"calmerge/internal/model"
)

func TestExpandRecurrences(t *testing.T) {
	weekStart := time.Date(2024, 3, 4, 0, 0, 0, 0, utc)
	weekEnd := weekStart.AddDate(0, 0, 7)

	timed := model.CalendarEvent{
		UID:     "daily",
		Summary: "Standup",
		Source:  "work",
		Start:   model.NewTimestamp(time.Date(2024, 3, 1, 9, 0, 0, 0, utc)),
		End:     model.NewTimestamp(time.Date(2024, 3, 1, 9, 15, 0, 0, utc)),
	}

	tests := []struct {
		name       string
		event      model.CalendarEvent
		wantStarts []time.Time
	}{
		{
			name: "daily count clipped to window",
			event: func() model.CalendarEvent {
				ev := timed
				ev.RRule = "FREQ=DAILY;COUNT=5"
				return ev
			}(),
			wantStarts: []time.Time{
				time.Date(2024, 3, 4, 9, 0, 0, 0, utc),
				time.Date(2024, 3, 5, 9, 0, 0, 0, utc),
			},
		},
		{
			name: "weekly on weekdays with exdate",
			event: func() model.CalendarEvent {
				ev := timed
				ev.RRule = "FREQ=WEEKLY;BYDAY=MO,WE,FR"
				ev.ExDates = []time.Time{time.Date(2024, 3, 6, 9, 0, 0, 0, utc)}
				return ev
			}(),
			wantStarts: []time.Time{
				time.Date(2024, 3, 4, 9, 0, 0, 0, utc),
				time.Date(2024, 3, 8, 9, 0, 0, 0, utc),
			},
		},
		{
			name: "occurrence on window end is excluded",
			event: func() model.CalendarEvent {
				ev := timed
				ev.Start = model.NewTimestamp(time.Date(2024, 3, 4, 0, 0, 0, 0, utc))
				ev.End = model.NewTimestamp(time.Date(2024, 3, 4, 1, 0, 0, 0, utc))
				ev.RRule = "FREQ=WEEKLY"
				return ev
			}(),
			wantStarts: []time.Time{time.Date(2024, 3, 4, 0, 0, 0, 0, utc)},
		},
		{
			name: "all-day yearly",
			event: model.CalendarEvent{
				UID:    "bday",
				Source: "personal",
				Start:  model.NewDate(2020, time.March, 7),
				End:    model.NewDate(2020, time.March, 8),
				AllDay: true,
				RRule:  "RRULE:FREQ=YEARLY",
			},
			wantStarts: []time.Time{time.Date(2024, 3, 7, 0, 0, 0, 0, utc)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandRecurrences([]model.CalendarEvent{tt.event}, ExpandConfig{
				Location:   utc,
				RangeStart: weekStart,
				RangeEnd:   weekEnd,
			})
			if err != nil {
				t.Fatalf("ExpandRecurrences() error = %v", err)
			}
			if len(got) != len(tt.wantStarts) {
				t.Fatalf("got %d occurrences, want %d: %+v", len(got), len(tt.wantStarts), got)
			}
			for i, want := range tt.wantStarts {
				occ := got[i]
				if !occ.Start.Time.Equal(want) {
					t.Errorf("occurrence %d start = %v, want %v", i, occ.Start.Time, want)
				}
				if occ.Recurring() {
					t.Errorf("occurrence %d still carries RRULE", i)
				}
				if d, wd := occ.End.Time.Sub(occ.Start.Time), tt.event.End.Time.Sub(tt.event.Start.Time); d != wd {
					t.Errorf("occurrence %d duration = %v, want %v", i, d, wd)
				}
				if occ.AllDay != tt.event.AllDay || occ.Start.DateOnly != tt.event.AllDay {
					t.Errorf("occurrence %d AllDay = %v, want %v", i, occ.AllDay, tt.event.AllDay)
				}
			}
		})
	}
}

func TestExpandKeepsPlainAndBrokenEvents(t *testing.T) {
	plain := model.CalendarEvent{UID: "plain", Start: model.NewTimestamp(time.Date(2024, 3, 4, 9, 0, 0, 0, utc))}
	broken := model.CalendarEvent{UID: "broken", Start: plain.Start, RRule: "FREQ=SOMETIMES"}

	got, err := ExpandRecurrences([]model.CalendarEvent{plain, broken}, ExpandConfig{
		Location:   utc,
		RangeStart: time.Date(2024, 3, 4, 0, 0, 0, 0, utc),
		RangeEnd:   time.Date(2024, 3, 11, 0, 0, 0, 0, utc),
	})
	if err != nil {
		t.Fatalf("ExpandRecurrences() error = %v", err)
	}
	if len(got) != 2 || got[0].UID != "plain" || got[1].UID != "broken" {
		t.Errorf("got %+v, want plain and broken unchanged", got)
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	_, err := ExpandRecurrences(nil, ExpandConfig{
		RangeStart: time.Date(2024, 3, 11, 0, 0, 0, 0, utc),
		RangeEnd:   time.Date(2024, 3, 4, 0, 0, 0, 0, utc),
	})
	if err == nil {
		t.Fatal("ExpandRecurrences() error = nil, want error")
	}
}

func TestExpandRunsRuleInEventZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}
	ve := loadOne(t,
		"UID:weekly-berlin",
		"DTSTART;TZID=Europe/Berlin:20240108T090000",
		"DTEND;TZID=Europe/Berlin:20240108T093000",
		"RRULE:FREQ=WEEKLY;BYDAY=MO",
		"EXDATE;TZID=Europe/Berlin:20240408T090000",
	)
	ev, err := NewNormalizer(utc).NormalizeEvent(ve)
	if err != nil {
		t.Fatalf("NormalizeEvent() error = %v", err)
	}
	if z := ev.RuleZone(); z.String() != "Europe/Berlin" {
		t.Fatalf("RuleZone() = %v, want Europe/Berlin", z)
	}
	if ev.Start.Time.Location() != utc {
		t.Fatalf("Start in %v, want display zone", ev.Start.Time.Location())
	}

	// Berlin switches to summer time on 2024-03-31; UTC does not.
	got, err := ExpandRecurrences([]model.CalendarEvent{ev}, ExpandConfig{
		Location:   utc,
		RangeStart: time.Date(2024, 3, 25, 0, 0, 0, 0, utc),
		RangeEnd:   time.Date(2024, 4, 15, 0, 0, 0, 0, utc),
	})
	if err != nil {
		t.Fatalf("ExpandRecurrences() error = %v", err)
	}

	want := []time.Time{
		time.Date(2024, 3, 25, 8, 0, 0, 0, utc),
		time.Date(2024, 4, 1, 7, 0, 0, 0, utc),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		occ := got[i]
		if !occ.Start.Time.Equal(w) {
			t.Errorf("occurrence %d start = %v, want %v", i, occ.Start.Time, w)
		}
		if occ.Start.Time.Location() != utc {
			t.Errorf("occurrence %d in %v, want display zone", i, occ.Start.Time.Location())
		}
		if h := occ.Start.Time.In(berlin).Hour(); h != 9 {
			t.Errorf("occurrence %d at %02d:00 Berlin, want 09:00", i, h)
		}
		if d := occ.End.Time.Sub(occ.Start.Time); d != 30*time.Minute {
			t.Errorf("occurrence %d duration = %v, want 30m", i, d)
		}
	}
}
