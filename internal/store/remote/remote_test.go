package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"calmerge/internal/ics"
	"calmerge/internal/store/fsstore"
)

const feedBody = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//t//EN\r\nEND:VCALENDAR\r\n"

func TestListSourcesInLabelOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := fsstore.New(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	s, err := New([]ics.Feed{
		{Label: "zeta", URL: srv.URL + "/ok?feed=zeta"},
		{Label: "broken", URL: srv.URL + "/down"},
		{Label: "alpha", URL: srv.URL + "/ok?feed=alpha"},
	}, ics.NewFetcher(t.TempDir(), time.Second), out)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sources, failures, err := s.ListSources(context.Background())
	if err != nil {
		t.Fatalf("ListSources() error = %v", err)
	}
	if len(sources) != 2 || sources[0].Label != "alpha" || sources[1].Label != "zeta" {
		t.Errorf("sources = %+v, want alpha, zeta", sources)
	}
	if len(failures) != 1 || failures[0].Label != "broken" {
		t.Errorf("failures = %+v, want broken", failures)
	}

	if err := s.WriteMerged(context.Background(), []byte("merged")); err != nil {
		t.Fatalf("WriteMerged() error = %v", err)
	}
	got, err := s.ReadMerged(context.Background())
	if err != nil || string(got) != "merged" {
		t.Errorf("ReadMerged() = %q, %v", got, err)
	}
}

func TestNewRejectsDuplicateLabels(t *testing.T) {
	out, err := fsstore.New(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = New([]ics.Feed{{Label: "a", URL: "http://x"}, {Label: "a", URL: "http://y"}}, ics.NewFetcher(t.TempDir(), 0), out)
	if err == nil {
		t.Error("New() error = nil, want duplicate label error")
	}
}
