package server

import (
	"encoding/json"
	"net/http"

	"skysched/database/schemas"
	"skysched/scheduler"
)

// eventJSON is the wire shape of one occurrence. Time is trimmed to HH:MM;
// the store keeps seconds.
type eventJSON struct {
	ID          string  `json:"id"`
	SeriesID    string  `json:"series_id"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Text        string  `json:"text"`
	Color       string  `json:"color"`
	IsRecurring bool    `json:"is_recurring"`
	Duration    float64 `json:"duration"`
	CreatedBy   string  `json:"created_by"`
	Owner       string  `json:"owner"`
}

func toEventJSON(o schemas.Occurrence) eventJSON {
	t := o.TimeOfDay
	if len(t) >= 5 {
		t = t[:5]
	}
	return eventJSON{
		ID:          o.ID,
		SeriesID:    o.SeriesID,
		Date:        o.Date,
		Time:        t,
		Text:        o.Text,
		Color:       o.Color,
		IsRecurring: o.IsRecurring,
		Duration:    o.Duration,
		CreatedBy:   o.CreatedBy,
		Owner:       o.Owner,
	}
}

func toEventJSONList(occs []schemas.Occurrence) []eventJSON {
	out := make([]eventJSON, 0, len(occs))
	for _, o := range occs {
		out = append(out, toEventJSON(o))
	}
	return out
}

func (s *Server) identity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, err := s.IDs.Resolve(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Status: "error", Message: err.Error()})
		return Identity{}, false
	}
	return id, true
}

func (s *Server) saveEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	var payload scheduler.EventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid JSON"})
		return
	}

	result, err := s.Manager.SaveEvent(r.Context(), id.TargetOwner, id.Editor, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status   string `json:"status"`
		Created  bool   `json:"created"`
		ID       string `json:"id"`
		SeriesID string `json:"series_id,omitempty"`
	}{Status: "success", Created: result.Created, ID: result.ID, SeriesID: result.SeriesID})
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	var in struct {
		ID              string `json:"id"`
		DeleteRecurring bool   `json:"delete_recurring"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid JSON"})
		return
	}

	deleted, err := s.Manager.DeleteEvent(r.Context(), id.TargetOwner, id.Editor, in.ID, in.DeleteRecurring)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status  string `json:"status"`
		Deleted int64  `json:"deleted"`
	}{Status: "success", Deleted: deleted})
}

func (s *Server) loadEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	events, err := s.Manager.LoadEvents(r.Context(), id.TargetOwner,
		r.URL.Query().Get("date_from"), r.URL.Query().Get("date_to"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status string      `json:"status"`
		Events []eventJSON `json:"events"`
	}{Status: "success", Events: toEventJSONList(events)})
}

func (s *Server) loadSeriesEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	events, err := s.Manager.LoadSeriesEvents(r.Context(), id.TargetOwner,
		r.URL.Query().Get("series_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status string      `json:"status"`
		Events []eventJSON `json:"events"`
	}{Status: "success", Events: toEventJSONList(events)})
}

func (s *Server) checkConflict(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if q.Get("date") == "" || q.Get("time") == "" || q.Get("duration") == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "date, time and duration are required"})
		return
	}
	duration, err := parseFloatQuery(r, "duration", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid duration"})
		return
	}

	report, err := s.Manager.CheckConflict(r.Context(), id.TargetOwner,
		q.Get("date"), q.Get("time"), duration, q.Get("exclude_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status      string      `json:"status"`
		HasConflict bool        `json:"has_conflict"`
		Message     string      `json:"message"`
		Conflicting []eventJSON `json:"conflicting_events"`
	}{Status: "success", HasConflict: report.HasConflict, Message: report.Message, Conflicting: toEventJSONList(report.Conflicting)})
}
