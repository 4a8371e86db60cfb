package game

import (
	"errors"
	"math"
	"testing"
)

func TestValidateActivityID(t *testing.T) {
	valid := []string{"rest-sleep", "work_1", "a", "yoga2"}
	for _, s := range valid {
		if err := ValidateActivityID(s); err != nil {
			t.Fatalf("expected id %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"", "-lead", "Upper", "has space", "x/y"}
	for _, s := range invalid {
		if err := ValidateActivityID(s); err == nil {
			t.Fatalf("expected id %q to fail", s)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		stat Stat
		v    int64
		want int64
	}{
		{StatHunger, -5, 0},
		{StatHunger, 110, 100},
		{StatStress, 42, 42},
		{StatTone, 100, 100},
		{StatHealth, 0, 0},
		{StatMoney, -1, 0},
		{StatMoney, 5_000_000, 5_000_000},
	}
	for _, tc := range tests {
		if got := Clamp(tc.stat, tc.v); got != tc.want {
			t.Fatalf("clamp(%s, %d) got=%d want=%d", tc.stat, tc.v, got, tc.want)
		}
	}
}

func TestApplyClamped(t *testing.T) {
	if got := ApplyClamped(StatHunger, 90, 20); got != 100 {
		t.Fatalf("hunger 90+20 got %d want 100", got)
	}
	if got := ApplyClamped(StatStress, 10, -30); got != 0 {
		t.Fatalf("stress 10-30 got %d want 0", got)
	}
	if got := ApplyClamped(StatMoney, math.MaxInt64-1, 10); got != math.MaxInt64 {
		t.Fatalf("money overflow got %d want saturation", got)
	}
}

func TestParseStat(t *testing.T) {
	s, err := ParseStat(" Hunger ")
	if err != nil || s != StatHunger {
		t.Fatalf("got %q, %v", s, err)
	}
	if _, err := ParseStat("happiness"); !errors.Is(err, ErrInvalidStat) {
		t.Fatalf("expected ErrInvalidStat, got %v", err)
	}
}

func TestNormalizeEffects(t *testing.T) {
	got, skipped := NormalizeEffects(map[string]int64{
		"hunger": 5,
		"HUNGER": 3,
		"mood":   9,
		"money":  -20,
	})
	if got[StatHunger] != 8 {
		t.Fatalf("duplicate keys should sum, got %d", got[StatHunger])
	}
	if got[StatMoney] != -20 {
		t.Fatalf("money got %d", got[StatMoney])
	}
	if len(skipped) != 1 || skipped[0] != "mood" {
		t.Fatalf("skipped got %v", skipped)
	}
}

func TestEffectsScale(t *testing.T) {
	e := Effects{StatStress: -10, StatTone: 3}.Scale(3)
	if e[StatStress] != -30 || e[StatTone] != 9 {
		t.Fatalf("scale got %v", e)
	}
}

func TestTotalPrice(t *testing.T) {
	got, err := TotalPrice(100, 3)
	if err != nil || got != 300 {
		t.Fatalf("got %d, %v", got, err)
	}
	for _, qty := range []int64{0, -1, MaxQuantity + 1} {
		if _, err := TotalPrice(100, qty); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("qty=%d expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
	if _, err := TotalPrice(math.MaxInt64/2, 3); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestUnitsForUses(t *testing.T) {
	tests := []struct {
		uses, limit, want int64
	}{
		{0, 5, 0},
		{1, 5, 1},
		{5, 5, 1},
		{6, 5, 2},
		{10, 5, 2},
		{3, 0, 0},
	}
	for _, tc := range tests {
		if got := UnitsForUses(tc.uses, tc.limit); got != tc.want {
			t.Fatalf("uses=%d limit=%d got=%d want=%d", tc.uses, tc.limit, got, tc.want)
		}
	}
}

func TestValidateBlocks(t *testing.T) {
	ok := []ScheduleBlock{
		{ActivityID: "work", StartHour: 9, DurationHours: 4},
		{ActivityID: "eat", StartHour: 13, DurationHours: 1},
	}
	if err := ValidateBlocks(ok); err != nil {
		t.Fatalf("adjacent blocks should not conflict: %v", err)
	}

	err := ValidateBlocks([]ScheduleBlock{
		{ActivityID: "work", StartHour: 9, DurationHours: 4},
		{ActivityID: "eat", StartHour: 11, DurationHours: 1},
	})
	var conflict TimeConflictError
	if !errors.As(err, &conflict) || conflict.Hour != 11 {
		t.Fatalf("expected conflict at hour 11, got %v", err)
	}

	err = ValidateBlocks([]ScheduleBlock{{ActivityID: "rest", StartHour: 22, DurationHours: 3}})
	if !errors.Is(err, ErrBlockPastMidnight) {
		t.Fatalf("expected past-midnight error, got %v", err)
	}

	bad := [][]ScheduleBlock{
		{{ActivityID: "rest", StartHour: 24, DurationHours: 1}},
		{{ActivityID: "rest", StartHour: -1, DurationHours: 1}},
		{{ActivityID: "rest", StartHour: 0, DurationHours: 0}},
		{{ActivityID: "", StartHour: 0, DurationHours: 1}},
	}
	for _, blocks := range bad {
		if err := ValidateBlocks(blocks); !errors.Is(err, ErrInvalidBlock) {
			t.Fatalf("blocks %+v expected ErrInvalidBlock, got %v", blocks, err)
		}
	}
}

func TestDecodeBlocksSkipsMalformed(t *testing.T) {
	raw := []byte(`[
		{"activity_id":"work","start_hour":9,"duration_hours":2},
		{"activity_id":"eat","start_hour":"noon","duration_hours":1},
		{"activity_id":"rest","start_hour":23,"duration_hours":2},
		{"activity_id":"nap","start_hour":14,"duration_hours":1}
	]`)
	got := decodeBlocks(raw)
	if len(got) != 2 || got[0].ActivityID != "work" || got[1].ActivityID != "nap" {
		t.Fatalf("got %+v", got)
	}
	if got := decodeBlocks([]byte(`{"not":"a list"}`)); len(got) != 0 {
		t.Fatalf("expected empty for non-list payload, got %+v", got)
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsValidation(ActivitiesNotFoundError{IDs: []string{"x"}}) {
		t.Fatalf("missing activities should be a validation error")
	}
	if !IsConflict(TimeConflictError{Hour: 3}) {
		t.Fatalf("time conflict should be a conflict")
	}
	if !IsNotFound(ErrNotInInventory) || IsNotFound(ErrInsufficientFunds) {
		t.Fatalf("not found classification wrong")
	}
	if !IsPaymentRejection(ErrInvalidSignature) {
		t.Fatalf("signature failure should be a payment rejection")
	}
}
