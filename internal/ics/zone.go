package ics

import (
	"errors"
	"strings"
	"time"
)

// ResolveLocation returns the display zone for name.
//
//   - "" or "local": the process zone (time.Local, which honors $TZ and the
//     system zoneinfo).
//   - an IANA name: loaded from the zone database.
//
// If the name cannot be loaded, a fixed zone matching the local clock's
// current offset is returned together with a *TimeZoneResolutionError.
func ResolveLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return localLocation(), nil
	}

	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}

	fallback := clockLocation()
	return fallback, &TimeZoneResolutionError{Name: name, Fallback: fallback.String(), Err: err}
}

func localLocation() *time.Location {
	if time.Local != nil {
		return time.Local
	}
	return clockLocation()
}

// clockLocation derives a fixed zone from the offset the local clock
// reports right now.
func clockLocation() *time.Location {
	zoneName, offset := time.Now().Zone()
	if zoneName == "" {
		zoneName = "UTC"
	}
	if offset == 0 && zoneName == "UTC" {
		return time.UTC
	}
	return time.FixedZone(zoneName, offset)
}

// loadTZID resolves a TZID parameter. Outlook-style quoted ids and the
// "/mozilla.org/..." prefix are tolerated.
func loadTZID(tzid string) (*time.Location, error) {
	tzid = strings.Trim(strings.TrimSpace(tzid), `"`)
	if tzid == "" {
		return nil, errors.New("empty TZID")
	}
	if i := strings.Index(tzid, "/mozilla.org/"); i >= 0 {
		rest := tzid[i+len("/mozilla.org/"):]
		if j := strings.Index(rest, "/"); j >= 0 {
			tzid = rest[j+1:]
		}
	}
	if strings.EqualFold(tzid, "UTC") || strings.EqualFold(tzid, "GMT") || strings.EqualFold(tzid, "Z") {
		return time.UTC, nil
	}
	return time.LoadLocation(tzid)
}
