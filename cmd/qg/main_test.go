package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/Zubariev/quarantine/internal/game"
)

func TestParseBlock(t *testing.T) {
	tests := []struct {
		in      string
		want    game.ScheduleBlock
		wantErr bool
	}{
		{in: "work-freelance@9+4", want: game.ScheduleBlock{ActivityID: "work-freelance", StartHour: 9, DurationHours: 4}},
		{in: " nap@14 ", want: game.ScheduleBlock{ActivityID: "nap", StartHour: 14, DurationHours: 1}},
		{in: "nap", wantErr: true},
		{in: "@9+1", wantErr: true},
		{in: "nap@x+1", wantErr: true},
		{in: "nap@9+y", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseBlock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseBlock(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseBlock(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseBlock(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestScheduleFromArgsValidatesLocally(t *testing.T) {
	sched, err := scheduleFromArgs("2026-03-01", []string{"work-freelance@9+4", "lunch@13"})
	if err != nil {
		t.Fatalf("valid schedule: %v", err)
	}
	if sched.Date != "2026-03-01" || len(sched.Blocks) != 2 {
		t.Fatalf("unexpected schedule: %+v", sched)
	}

	_, err = scheduleFromArgs("2026-03-01", []string{"work-freelance@9+4", "lunch@12"})
	var conflict game.TimeConflictError
	if !errors.As(err, &conflict) || conflict.Hour != 12 {
		t.Fatalf("expected conflict at 12, got %v", err)
	}

	if _, err := scheduleFromArgs("2026-03-01", []string{"sleep@22+4"}); !errors.Is(err, game.ErrBlockPastMidnight) {
		t.Fatalf("expected past-midnight error, got %v", err)
	}
	if _, err := scheduleFromArgs("03/01/2026", nil); !errors.Is(err, game.ErrInvalidDate) {
		t.Fatalf("expected invalid date, got %v", err)
	}
}

func TestParseEffects(t *testing.T) {
	got, err := parseEffects([]string{"stress=-10", "Tone=5", "stress=-2"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["stress"] != -12 || got["tone"] != 5 || len(got) != 2 {
		t.Fatalf("unexpected effects: %v", got)
	}
	if _, err := parseEffects([]string{"luck=1"}); !errors.Is(err, game.ErrInvalidStat) {
		t.Fatalf("expected invalid stat, got %v", err)
	}
	if _, err := parseEffects([]string{"stress"}); err == nil {
		t.Fatalf("expected error for missing delta")
	}
}

func TestFormatPrice(t *testing.T) {
	if got := formatPrice(game.PurchaseRealMoney, 499); got != "$4.99" {
		t.Fatalf("real money: %q", got)
	}
	if got := formatPrice(game.PurchaseRealMoney, 1000); got != "$10.00" {
		t.Fatalf("real money: %q", got)
	}
	if got := formatPrice(game.PurchaseInGame, 1234567); got != "1,234,567 coins" {
		t.Fatalf("in game: %q", got)
	}
	if got := comma(-1500); got != "-1,500" {
		t.Fatalf("comma: %q", got)
	}
}

func TestTimelineMarksBlocks(t *testing.T) {
	out := timeline([]game.ScheduleBlock{{ActivityID: "work-freelance", StartHour: 9, DurationHours: 2}},
		[]game.Activity{{ID: "work-freelance", Name: "Freelance Work"}})
	lines := strings.Split(out, "\n")
	if len(lines) != game.HoursPerDay {
		t.Fatalf("expected %d rows, got %d", game.HoursPerDay, len(lines))
	}
	if !strings.Contains(lines[9], "Freelance Work (2h)") {
		t.Fatalf("start row missing block: %q", lines[9])
	}
	if !strings.Contains(lines[10], "Freelance Work") || strings.Contains(lines[10], "(2h)") {
		t.Fatalf("continuation row wrong: %q", lines[10])
	}
	if strings.Contains(lines[11], "Freelance") {
		t.Fatalf("block leaked past its end: %q", lines[11])
	}
}
