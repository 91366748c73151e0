package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "skysched.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(context.Background(), db, NewHeaderResolver([]string{"admin"}), false)
	if err != nil {
		t.Fatalf("server init: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, target, user, actAs string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	if actAs != "" {
		req.Header.Set("X-Act-As", actAs)
	}

	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, req)

	// non-JSON bodies (method guards, health) are left undecoded
	var out map[string]any
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func saveBody(date, timeOfDay, text string, recurring bool) map[string]any {
	return map[string]any{
		"date": date, "time": timeOfDay, "text": text, "is_recurring": recurring,
	}
}

func TestSaveEvent_HTTPRoundTrip(t *testing.T) {
	s := newTestServer(t)

	rec, out := doJSON(t, s, http.MethodPost, "/api/save-event/", "alice", "",
		saveBody("2024-06-03", "10:00", "Math", false))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, out)
	}
	if out["status"] != "success" || out["created"] != true {
		t.Fatalf("unexpected body %v", out)
	}
	if out["id"] == "" || out["id"] == nil {
		t.Fatalf("no id in response: %v", out)
	}
	if _, ok := out["series_id"]; ok {
		t.Fatalf("series_id present on standalone save: %v", out)
	}

	rec, out = doJSON(t, s, http.MethodGet,
		"/api/load-events/?date_from=2024-06-03&date_to=2024-06-03", "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("load status %d", rec.Code)
	}
	events := out["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0].(map[string]any)
	if ev["time"] != "10:00" {
		t.Fatalf("wire time %q, want HH:MM", ev["time"])
	}
	if ev["owner"] != "alice" || ev["created_by"] != "alice" || ev["duration"] != 1.0 {
		t.Fatalf("unexpected event %v", ev)
	}
}

func TestSaveEvent_RecurringReturnsSeries(t *testing.T) {
	s := newTestServer(t)

	rec, out := doJSON(t, s, http.MethodPost, "/api/save-event/", "alice", "",
		saveBody("2024-06-04", "18:00", "Piano", true))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, out)
	}
	seriesID, _ := out["series_id"].(string)
	if seriesID == "" {
		t.Fatalf("recurring save returned no series_id: %v", out)
	}

	rec, out = doJSON(t, s, http.MethodGet,
		"/api/load-series-events/?series_id="+seriesID, "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("load series status %d", rec.Code)
	}
	if n := len(out["events"].([]any)); n != 52 {
		t.Fatalf("got %d series events, want 52", n)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	s := newTestServer(t)

	// 401: no identity
	rec, _ := doJSON(t, s, http.MethodPost, "/api/save-event/", "", "",
		saveBody("2024-06-03", "10:00", "", false))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no identity: status %d, want 401", rec.Code)
	}

	// 400: malformed date
	rec, out := doJSON(t, s, http.MethodPost, "/api/save-event/", "alice", "",
		saveBody("soon", "10:00", "", false))
	if rec.Code != http.StatusBadRequest || out["status"] != "error" {
		t.Fatalf("bad date: status %d body %v", rec.Code, out)
	}

	// 409: slot taken
	doJSON(t, s, http.MethodPost, "/api/save-event/", "alice", "",
		saveBody("2024-06-03", "10:00", "Math", false))
	rec, _ = doJSON(t, s, http.MethodPost, "/api/save-event/", "alice", "",
		saveBody("2024-06-03", "10:00", "Chem", false))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: status %d, want 409", rec.Code)
	}

	// 404: unknown id
	rec, _ = doJSON(t, s, http.MethodPost, "/api/delete-event/", "alice", "",
		map[string]any{"id": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status %d, want 404", rec.Code)
	}
}

func TestImpersonation(t *testing.T) {
	s := newTestServer(t)

	// admin books on alice's calendar
	rec, out := doJSON(t, s, http.MethodPost, "/api/save-event/", "admin", "alice",
		saveBody("2024-06-03", "10:00", "Review", false))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin act-as save: status %d %v", rec.Code, out)
	}
	id := out["id"].(string)

	rec, out = doJSON(t, s, http.MethodGet,
		"/api/load-events/?date_from=2024-06-03&date_to=2024-06-03", "alice", "", nil)
	if rec.Code != http.StatusOK || len(out["events"].([]any)) != 1 {
		t.Fatalf("event did not land on alice's calendar: %v", out)
	}

	// 403: alice does not own the authorship
	body := saveBody("2024-06-03", "10:00", "Mine", false)
	body["id"] = id
	rec, _ = doJSON(t, s, http.MethodPost, "/api/save-event/", "alice", "", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign-authored edit: status %d, want 403", rec.Code)
	}

	// a non-superuser's X-Act-As is silently ignored
	rec, _ = doJSON(t, s, http.MethodPost, "/api/save-event/", "bob", "alice",
		saveBody("2024-06-05", "09:00", "Sneaky", false))
	if rec.Code != http.StatusOK {
		t.Fatalf("bob save: status %d", rec.Code)
	}
	_, out = doJSON(t, s, http.MethodGet,
		"/api/load-events/?date_from=2024-06-05&date_to=2024-06-05", "bob", "", nil)
	if len(out["events"].([]any)) != 1 {
		t.Fatalf("bob's event missing from his own calendar: %v", out)
	}
	_, out = doJSON(t, s, http.MethodGet,
		"/api/load-events/?date_from=2024-06-05&date_to=2024-06-05", "alice", "", nil)
	if len(out["events"].([]any)) != 0 {
		t.Fatalf("bob impersonated alice without privilege: %v", out)
	}
}

func TestCheckConflictEndpoint(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/save-event/", "alice", "",
		saveBody("2024-06-03", "09:00", "Math", false))

	// 400: duration missing
	rec, _ := doJSON(t, s, http.MethodGet,
		"/api/check-conflict/?date=2024-06-03&time=09:30", "alice", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing duration: status %d, want 400", rec.Code)
	}

	rec, out := doJSON(t, s, http.MethodGet,
		"/api/check-conflict/?date=2024-06-03&time=10:00&duration=1", "alice", "", nil)
	if rec.Code != http.StatusOK || out["has_conflict"] != false {
		t.Fatalf("back-to-back slot flagged: %v", out)
	}

	rec, out = doJSON(t, s, http.MethodGet,
		"/api/check-conflict/?date=2024-06-03&time=09:30&duration=1", "alice", "", nil)
	if rec.Code != http.StatusOK || out["has_conflict"] != true {
		t.Fatalf("overlap not flagged: %v", out)
	}
	if n := len(out["conflicting_events"].([]any)); n != 1 {
		t.Fatalf("%d conflicting events, want 1", n)
	}
}

func TestDeleteEventEndpoint(t *testing.T) {
	s := newTestServer(t)

	_, out := doJSON(t, s, http.MethodPost, "/api/save-event/", "alice", "",
		saveBody("2024-06-04", "18:00", "Piano", true))
	id := out["id"].(string)

	rec, out := doJSON(t, s, http.MethodPost, "/api/delete-event/", "alice", "",
		map[string]any{"id": id, "delete_recurring": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete series: status %d %v", rec.Code, out)
	}
	if out["deleted"] != float64(52) {
		t.Fatalf("deleted %v rows, want 52", out["deleted"])
	}

	_, out = doJSON(t, s, http.MethodGet,
		fmt.Sprintf("/api/load-events/?date_from=%s&date_to=%s", "2024-06-04", "2025-06-04"),
		"alice", "", nil)
	if n := len(out["events"].([]any)); n != 0 {
		t.Fatalf("%d events survive series delete", n)
	}
}

func TestMethodGuards(t *testing.T) {
	s := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodGet, "/api/save-event/", "alice", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET save-event: status %d, want 405", rec.Code)
	}
	rec, _ = doJSON(t, s, http.MethodGet, "/api/delete-event/", "alice", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET delete-event: status %d, want 405", rec.Code)
	}
}
