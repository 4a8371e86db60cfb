package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/Zubariev/quarantine/internal/game"
)

func TestClientSendsBearerAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		switch r.URL.Path {
		case "/v1/stats/history":
			if r.URL.Query().Get("stat") != "stress" || r.URL.Query().Get("limit") != "5" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"entries": []map[string]any{
				{"stat_type": "stress", "previous_value": 50, "new_value": 40, "change": -10},
			}})
		case "/v1/stats":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["stat_type"] != "money" || body["value"] != float64(-25) {
				t.Errorf("unexpected body %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]int64{"money": 975})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	entries, err := c.History(context.Background(), "tok", "stress", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].Stat != game.StatStress || entries[0].Delta != -10 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	money, err := c.UpdateStat(context.Background(), "tok", "money", -25, "groceries")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if money != 975 {
		t.Fatalf("expected 975, got %d", money)
	}
}

func TestClientDecodesScheduleConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "Time conflict at hour 11", "hour": 11})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.SaveSchedule(context.Background(), "tok", game.DaySchedule{
		Date: "2026-03-01",
		Blocks: []game.ScheduleBlock{
			{ActivityID: "work-freelance", StartHour: 9, DurationHours: 3},
		},
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Hour == nil || *apiErr.Hour != 11 {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !IsAPIError(err) {
		t.Fatalf("IsAPIError should be true")
	}
}

func TestClientNetworkErrorIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClient(base).Stats(context.Background(), "tok")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if IsAPIError(err) {
		t.Fatalf("transport error reported as api error: %v", err)
	}
}

func TestScheduleBodyShape(t *testing.T) {
	body := ScheduleBody(game.DaySchedule{Date: "2026-03-01"})
	blocks, ok := body["blocks"].([]map[string]any)
	if !ok || len(blocks) != 0 {
		t.Fatalf("empty schedule should send an empty block list: %#v", body["blocks"])
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("QG_HOME", t.TempDir())
	if _, err := LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := SaveSession(Session{Email: "p@example.com"}); err == nil {
		t.Fatalf("expected error saving a session without a token")
	}
	if err := SaveSession(Session{AccessToken: "a", Email: "p@example.com", UserID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := SaveSession(Session{AccessToken: "b", Email: "p@example.com", UserID: "u1"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	s, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.AccessToken != "b" || s.UserID != "u1" || s.SavedAt.IsZero() {
		t.Fatalf("unexpected session: %+v", s)
	}
	dir, _ := BaseDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
}
