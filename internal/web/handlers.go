package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"calmerge/internal/calendar"
	"calmerge/internal/ics"
	appLog "calmerge/internal/log"
	"calmerge/internal/model"
	"calmerge/internal/store"
	"calmerge/internal/style"
	"calmerge/internal/week"
)

// weekResponse is the JSON shape of GET /api/week.
type weekResponse struct {
	Start    string        `json:"start"`
	End      string        `json:"end"`
	Prev     string        `json:"prev"`
	Next     string        `json:"next"`
	Today    string        `json:"today"`
	TimeZone string        `json:"timezone"`
	Days     []dayDTO      `json:"days"`
	Legend   []style.Style `json:"legend"`
	Message  string        `json:"message,omitempty"`
}

type dayDTO struct {
	Date    string     `json:"date"`
	Weekday string     `json:"weekday"`
	Weekend bool       `json:"weekend"`
	Today   bool       `json:"today"`
	Events  []eventDTO `json:"events"`
}

// eventDTO is one agenda line. Start and End are YYYY-MM-DD for date values
// and RFC 3339 in the display zone otherwise.
type eventDTO struct {
	UID       string `json:"uid"`
	Summary   string `json:"summary"`
	Source    string `json:"source"`
	AllDay    bool   `json:"all_day"`
	Start     string `json:"start"`
	End       string `json:"end"`
	TimeLabel string `json:"time_label"`
	Color     string `json:"color"`
	Icon      string `json:"icon"`
}

type sourceDTO struct {
	style.Style
	Bytes int `json:"bytes"`
}

type sourcesResponse struct {
	Sources  []sourceDTO           `json:"sources"`
	Failures []model.SourceFailure `json:"failures"`
}

type statsResponse struct {
	week.Summary
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleWeek returns the Monday-aligned window containing ?date=. The date
// may be YYYY-MM-DD or an English phrase ("next monday"); empty is today.
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	loc := s.svc.Location()
	now := s.now().In(loc)

	day, err := week.ParseDate(r.URL.Query().Get("date"), now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		legend  []style.Style
		message string
	)
	win, err := s.svc.Week(r.Context(), day)
	switch {
	case errors.Is(err, ics.ErrNoSources):
		win, err = week.NewProjector(loc, false).Project(nil, day)
		message = "No calendar files found"
	case err == nil:
		if cal, cerr := s.svc.Current(r.Context()); cerr == nil {
			legend = style.Legend(cal.Sources)
		}
	}
	if err != nil {
		appLog.Error("api week failed", err, "date", day.Format(week.DateLayout))
		writeError(w, http.StatusInternalServerError, "failed to build week")
		return
	}

	cur := week.NewCursor(win.Start)
	todayKey := now.Format(week.DateLayout)
	resp := weekResponse{
		Start:    win.Start.Format(week.DateLayout),
		End:      win.End().Format(week.DateLayout),
		Prev:     cur.Prev().Start.Format(week.DateLayout),
		Next:     cur.Next().Start.Format(week.DateLayout),
		Today:    cur.Today(now).Start.Format(week.DateLayout),
		TimeZone: loc.String(),
		Days:     make([]dayDTO, 0, len(win.Days)),
		Legend:   legend,
		Message:  message,
	}
	if resp.Legend == nil {
		resp.Legend = []style.Style{}
	}
	for _, d := range win.Days {
		dto := dayDTO{
			Date:    d.Key(),
			Weekday: d.Date.Weekday().String(),
			Weekend: d.Weekend(),
			Today:   d.Key() == todayKey,
			Events:  make([]eventDTO, 0, len(d.Events)),
		}
		for _, ev := range d.Events {
			dto.Events = append(dto.Events, toEventDTO(ev, loc))
		}
		resp.Days = append(resp.Days, dto)
	}

	writeJSON(w, http.StatusOK, resp)
}

func toEventDTO(ev model.CalendarEvent, loc *time.Location) eventDTO {
	st := style.Resolve(ev.Source)
	return eventDTO{
		UID:       ev.UID,
		Summary:   ev.Summary,
		Source:    ev.Source,
		AllDay:    ev.AllDay,
		Start:     formatEventTime(ev.Start, loc),
		End:       formatEventTime(ev.End, loc),
		TimeLabel: week.TimeLabel(ev, loc),
		Color:     st.Color,
		Icon:      st.Icon,
	}
}

func formatEventTime(t model.EventTime, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if t.DateOnly {
		return t.Time.Format(week.DateLayout)
	}
	return t.Time.In(loc).Format(time.RFC3339)
}

// handleMerge runs a merge and reports its status. With ?async=1 and a
// refresher wired, the merge is only queued.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "1" && s.refresh != nil {
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": s.refresh()})
		return
	}

	res, err := s.svc.Merge(r.Context())
	s.writeMergeResult(w, res, err)
}

func (s *Server) writeMergeResult(w http.ResponseWriter, res calendar.Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, ics.ErrNoSources):
		writeJSON(w, http.StatusUnprocessableEntity, res)
	default:
		appLog.Error("api merge failed", err)
		msg := res.Message
		if msg == "" {
			msg = "merge failed"
		}
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	raws, failures, err := s.svc.Backend().ListSources(r.Context())
	if err != nil {
		appLog.Error("api sources failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}

	resp := sourcesResponse{
		Sources:  make([]sourceDTO, 0, len(raws)),
		Failures: failures,
	}
	if resp.Failures == nil {
		resp.Failures = []model.SourceFailure{}
	}
	for _, raw := range raws {
		resp.Sources = append(resp.Sources, sourceDTO{Style: style.Resolve(raw.Label), Bytes: len(raw.Data)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	if err := store.ValidateLabel(label); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.svc.DeleteSource(r.Context(), label)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"deleted": label})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "no such source")
	case errors.Is(err, store.ErrReadOnly):
		writeError(w, http.StatusMethodNotAllowed, "storage backend does not accept deletes")
	default:
		appLog.Error("api delete source failed", err, "label", label)
		writeError(w, http.StatusInternalServerError, "failed to delete source")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	cal, err := s.svc.EnsureMerged(r.Context())
	switch {
	case errors.Is(err, ics.ErrNoSources):
		writeJSON(w, http.StatusOK, statsResponse{Summary: week.Summarize(nil)})
		return
	case err != nil:
		appLog.Error("api stats failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load calendar")
		return
	}

	resp := statsResponse{Summary: week.Summarize(cal.Events)}
	if !cal.GeneratedAt.IsZero() {
		at := cal.GeneratedAt
		resp.GeneratedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMergedFile serves the published calendar, merging first if needed.
func (s *Server) handleMergedFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := s.svc.EnsureMerged(ctx); err != nil {
		if errors.Is(err, ics.ErrNoSources) {
			http.Error(w, "no calendar files found", http.StatusNotFound)
			return
		}
		appLog.Error("merged file: ensure merged failed", err)
		http.Error(w, "failed to build merged calendar", http.StatusInternalServerError)
		return
	}

	data, err := s.svc.Backend().ReadMerged(ctx)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="merged_output.ics"`)
	_, _ = w.Write(data)
}
