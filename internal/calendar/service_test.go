package calendar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"calmerge/internal/ics"
	"calmerge/internal/store"
	"calmerge/internal/store/fsstore"
)

func feed(prodID string, events ...[]string) string {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:" + prodID}
	for _, ev := range events {
		lines = append(lines, "BEGIN:VEVENT")
		lines = append(lines, ev...)
		lines = append(lines, "END:VEVENT")
	}
	lines = append(lines, "END:VCALENDAR", "")
	return strings.Join(lines, "\r\n")
}

var (
	workICS = feed("-//work//EN", []string{
		"UID:work-1", "DTSTART:20240304T090000Z", "DTEND:20240304T100000Z", "SUMMARY:Standup",
	})
	personalICS = feed("-//personal//EN", []string{
		"UID:personal-1", "DTSTART;VALUE=DATE:20240304", "DTEND;VALUE=DATE:20240305", "SUMMARY:Holiday",
	})
)

func newFSService(t *testing.T, files map[string]string) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	backend, err := fsstore.New(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	return NewService(backend, time.UTC, false), dir
}

func TestMergeAndProjectScenario(t *testing.T) {
	svc, dir := newFSService(t, map[string]string{"work.ics": workICS, "personal.ics": personalICS})
	ctx := context.Background()

	res, err := svc.Merge(ctx)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Merged != 2 || res.Events != 2 || len(res.Failures) != 0 {
		t.Errorf("Result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, fsstore.DefaultMergedName)); err != nil {
		t.Errorf("merged output not written: %v", err)
	}

	w, err := svc.Week(ctx, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Week() error = %v", err)
	}
	monday := w.Days[0].Events
	if len(monday) != 2 {
		t.Fatalf("monday has %d events, want 2", len(monday))
	}
	if monday[0].Source != "personal" || !monday[0].AllDay || monday[1].Source != "work" {
		t.Errorf("monday = %+v, want personal all-day then work", monday)
	}
}

func TestMergeSkipsBadFeedsAndEvents(t *testing.T) {
	withBadEvent := feed("-//mixed//EN",
		[]string{"UID:ok", "DTSTART:20240305T090000Z", "DTEND:20240305T100000Z", "SUMMARY:Fine"},
		[]string{"UID:no-end", "DTSTART:20240305T110000Z", "SUMMARY:Broken"},
	)
	svc, _ := newFSService(t, map[string]string{
		"mixed.ics":  withBadEvent,
		"broken.ics": "this is not a calendar",
	})

	res, err := svc.Merge(context.Background())
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Merged != 1 || res.Events != 1 {
		t.Errorf("Result = %+v, want 1 feed and 1 event", res)
	}
	if len(res.Failures) != 1 || res.Failures[0].Label != "broken" {
		t.Errorf("Failures = %+v, want broken", res.Failures)
	}
}

func TestMergeWithNoSourcesKeepsPreviousOutput(t *testing.T) {
	svc, dir := newFSService(t, map[string]string{fsstore.DefaultMergedName: "previous"})

	res, err := svc.Merge(context.Background())
	if !errors.Is(err, ics.ErrNoSources) {
		t.Fatalf("Merge() error = %v, want ErrNoSources", err)
	}
	var nse *ics.NoSourcesError
	if !errors.As(err, &nse) || nse.Attempted != 0 {
		t.Errorf("error = %#v, want Attempted 0", err)
	}
	if res.Message == "" {
		t.Error("Result.Message is empty")
	}

	got, err := os.ReadFile(filepath.Join(dir, fsstore.DefaultMergedName))
	if err != nil || string(got) != "previous" {
		t.Errorf("merged output = %q, %v; want untouched", got, err)
	}
}

func TestMergeAllFeedsBroken(t *testing.T) {
	svc, dir := newFSService(t, map[string]string{"a.ics": "garbage", "b.ics": ""})

	_, err := svc.Merge(context.Background())
	var nse *ics.NoSourcesError
	if !errors.As(err, &nse) {
		t.Fatalf("Merge() error = %v, want *NoSourcesError", err)
	}
	if nse.Attempted != 2 || len(nse.Failures) != 2 {
		t.Errorf("NoSourcesError = %+v", nse)
	}
	if _, err := os.Stat(filepath.Join(dir, fsstore.DefaultMergedName)); !os.IsNotExist(err) {
		t.Errorf("merged output exists after failed merge: %v", err)
	}
}

func TestCurrentReloadsPublishedOutput(t *testing.T) {
	svc, dir := newFSService(t, map[string]string{"work.ics": workICS, "personal.ics": personalICS})
	ctx := context.Background()
	if _, err := svc.Merge(ctx); err != nil {
		t.Fatal(err)
	}

	backend, err := fsstore.New(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	restarted := NewService(backend, time.UTC, false)
	cal, err := restarted.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if len(cal.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(cal.Events))
	}
	tags := map[string]bool{}
	for _, ev := range cal.Events {
		tags[ev.Source] = true
	}
	if !tags["work"] || !tags["personal"] {
		t.Errorf("reloaded tags = %v, want work and personal", tags)
	}
}

func TestEnsureMergedAutoMerges(t *testing.T) {
	svc, _ := newFSService(t, map[string]string{"work.ics": workICS})
	ctx := context.Background()

	if _, err := svc.Current(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Current() error = %v, want ErrNotFound", err)
	}
	cal, err := svc.EnsureMerged(ctx)
	if err != nil {
		t.Fatalf("EnsureMerged() error = %v", err)
	}
	if len(cal.Events) != 1 || cal.Events[0].Source != "work" {
		t.Errorf("EnsureMerged() = %+v", cal)
	}
}

func TestImportAndDeleteSource(t *testing.T) {
	svc, dir := newFSService(t, map[string]string{"work.ics": workICS})
	ctx := context.Background()

	if _, err := svc.Import(ctx, "personal", []byte("nope")); err == nil {
		t.Error("Import(invalid) error = nil")
	}
	res, err := svc.Import(ctx, "personal", []byte(personalICS))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Events != 2 {
		t.Errorf("events after import = %d, want 2", res.Events)
	}

	if err := svc.DeleteSource(ctx, "work"); err != nil {
		t.Fatalf("DeleteSource() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, fsstore.DefaultMergedName)); !os.IsNotExist(err) {
		t.Errorf("merged output still present after delete: %v", err)
	}

	cal, err := svc.EnsureMerged(ctx)
	if err != nil {
		t.Fatalf("EnsureMerged() error = %v", err)
	}
	if len(cal.Events) != 1 || cal.Events[0].Source != "personal" {
		t.Errorf("after delete = %+v, want only personal", cal.Events)
	}

	if err := svc.DeleteSource(ctx, "work"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteSource() error = %v, want ErrNotFound", err)
	}
}
