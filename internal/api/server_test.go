package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"liverelay/internal/chat"
	"liverelay/internal/monitoring"
	"liverelay/internal/signaling"
)

type stubRegistry struct {
	open int
}

func (r *stubRegistry) Stats() map[string]int {
	return map[string]int{"open_connections": r.open}
}

func newTestServer(t *testing.T) (*Server, *signaling.Store, *chat.Store) {
	t.Helper()
	sessions := signaling.NewStore(zerolog.Nop())
	rooms := chat.NewStore(zerolog.Nop())
	metrics := monitoring.New(
		func() float64 { return 3 },
		func() float64 { return float64(sessions.Count()) },
		func() float64 { return float64(rooms.Count()) },
	)
	return NewServer(sessions, rooms, &stubRegistry{open: 3}, metrics, zerolog.Nop()), sessions, rooms
}

func TestServer_Health(t *testing.T) {
	srv, sessions, rooms := newTestServer(t)
	sessions.JoinInstructor("math-101", "conn-i", "teacher", time.Now())
	rooms.Join("room-1", "conn-i", chat.Participant{UserID: "teacher"})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Sessions    int    `json:"sessions"`
		Rooms       int    `json:"rooms"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
	if body.Connections != 3 || body.Sessions != 1 || body.Rooms != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestServer_Stats(t *testing.T) {
	srv, sessions, _ := newTestServer(t)
	sessions.JoinInstructor("math-101", "conn-i", "teacher", time.Now())
	sessions.JoinStudent("math-101", "conn-s", "alice", time.Now())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Registry map[string]int `json:"registry"`
		Sessions map[string]int `json:"sessions"`
		Rooms    map[string]int `json:"rooms"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Registry["open_connections"] != 3 {
		t.Errorf("open_connections = %d, want 3", body.Registry["open_connections"])
	}
	if body.Sessions["live_sessions"] != 1 || body.Sessions["students"] != 1 {
		t.Errorf("sessions = %v", body.Sessions)
	}
	if body.Rooms["live_rooms"] != 0 {
		t.Errorf("live_rooms = %d, want 0", body.Rooms["live_rooms"])
	}
}

func TestServer_GetOnly(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/health", "/api/stats"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s status = %d, want 405", path, rec.Code)
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, metric := range []string{
		"liverelay_open_connections 3",
		"liverelay_live_sessions 0",
		"liverelay_live_rooms 0",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %q", metric)
		}
	}
}
