package main

import (
	"fmt"
	"io"
	"time"

	"calmerge/internal/style"
	"calmerge/internal/week"
)

// writeAgenda prints a window as a plain-text agenda, one block per day.
func writeAgenda(w io.Writer, win week.Window, loc *time.Location) error {
	last := win.End().AddDate(0, 0, -1)
	if _, err := fmt.Fprintf(w, "Week of %s to %s (%s)\n", win.Start.Format("Jan 2"), last.Format("Jan 2, 2006"), loc); err != nil {
		return err
	}

	for _, d := range win.Days {
		header := d.Date.Format("Monday, Jan 2")
		if d.Weekend() {
			header += " (weekend)"
		}
		if _, err := fmt.Fprintf(w, "\n%s\n", header); err != nil {
			return err
		}
		if len(d.Events) == 0 {
			if _, err := fmt.Fprintln(w, "  -"); err != nil {
				return err
			}
			continue
		}
		for _, ev := range d.Events {
			_, err := fmt.Fprintf(w, "  %s %-15s %s [%s]\n", style.Icon(ev.Source), week.TimeLabel(ev, loc), ev.Summary, ev.Source)
			if err != nil {
				return err
			}
		}
	}

	sum := week.Summarize(win.Events())
	_, err := fmt.Fprintf(w, "\n%d event(s), %d all-day, sources: %v\n", sum.Total, sum.AllDay, sum.Sources)
	return err
}
