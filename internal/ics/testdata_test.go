package ics

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// calendarBytes wraps body lines in a VCALENDAR envelope with CRLF endings.
func calendarBytes(prodID string, lines ...string) []byte {
	all := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:" + prodID}
	all = append(all, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

func vevent(lines ...string) []string {
	out := []string{"BEGIN:VEVENT"}
	out = append(out, lines...)
	return append(out, "END:VEVENT")
}

func join(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// workFeed has one timed event 09:00-10:00 UTC on 2024-03-04.
func workFeed() []byte {
	return calendarBytes("-//work//EN", vevent(
		"UID:work-1",
		"DTSTART:20240304T090000Z",
		"DTEND:20240304T100000Z",
		"SUMMARY:Standup",
	)...)
}

// personalFeed has one all-day event on 2024-03-04.
func personalFeed() []byte {
	return calendarBytes("-//personal//EN", vevent(
		"UID:personal-1",
		"DTSTART;VALUE=DATE:20240304",
		"DTEND;VALUE=DATE:20240305",
		"SUMMARY:Holiday",
	)...)
}

var utc = time.UTC
