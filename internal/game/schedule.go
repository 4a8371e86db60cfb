package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ParseDate accepts YYYY-MM-DD and returns the canonical form.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q, expected YYYY-MM-DD", ErrInvalidDate, raw)
	}
	return d, nil
}

func validBlockShape(b ScheduleBlock) bool {
	return b.StartHour >= 0 && b.StartHour < HoursPerDay &&
		b.DurationHours >= 1 && b.DurationHours <= MaxActivityHours &&
		strings.TrimSpace(b.ActivityID) != ""
}

// ValidateBlocks checks block shape, then walks a 24-slot occupancy grid in
// list order. It does not resolve activity ids.
func ValidateBlocks(blocks []ScheduleBlock) error {
	for i, b := range blocks {
		if !validBlockShape(b) {
			return fmt.Errorf("%w: block %d needs activity_id, start_hour 0-23 and duration_hours 1-%d",
				ErrInvalidBlock, i, MaxActivityHours)
		}
	}
	var occupied [HoursPerDay]bool
	for _, b := range blocks {
		for hour := b.StartHour; hour < b.EndHour(); hour++ {
			if hour >= HoursPerDay {
				return fmt.Errorf("%w (starts at %d, duration %d)", ErrBlockPastMidnight, b.StartHour, b.DurationHours)
			}
			if occupied[hour] {
				return TimeConflictError{Hour: hour}
			}
			occupied[hour] = true
		}
	}
	return nil
}

// GetSchedule returns the stored day, or an empty day when none exists.
// Stored blocks that no longer validate are dropped.
func (s *Service) GetSchedule(ctx context.Context, userID, date string) (DaySchedule, error) {
	d, err := ParseDate(date)
	if err != nil {
		return DaySchedule{}, err
	}
	day := d.Format(DateLayout)

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	rec, err := s.store.GetSchedule(sctx, userID, day)
	if errors.Is(err, ErrRecordNotFound) {
		return DaySchedule{Date: day, Blocks: []ScheduleBlock{}}, nil
	}
	if err != nil {
		return DaySchedule{}, err
	}
	return s.decodeSchedule(userID, rec), nil
}

// SaveSchedule validates and fully replaces the user's schedule for the day.
func (s *Service) SaveSchedule(ctx context.Context, userID string, sched DaySchedule) (DaySchedule, error) {
	d, err := ParseDate(sched.Date)
	if err != nil {
		return DaySchedule{}, err
	}
	day := d.Format(DateLayout)
	blocks := sched.Blocks
	if blocks == nil {
		blocks = []ScheduleBlock{}
	}
	if err := ValidateBlocks(blocks); err != nil {
		return DaySchedule{}, err
	}
	if err := s.resolveActivities(ctx, userID, blocks); err != nil {
		return DaySchedule{}, err
	}

	payload, err := json.Marshal(blocks)
	if err != nil {
		return DaySchedule{}, err
	}
	now := s.now()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpsertSchedule(sctx, userID, day, payload, now); err != nil {
		return DaySchedule{}, err
	}
	s.log.Info("schedule saved",
		"user_id", userID,
		"date", day,
		"blocks", len(blocks),
	)
	return DaySchedule{Date: day, Blocks: blocks, UpdatedAt: &now}, nil
}

func (s *Service) resolveActivities(ctx context.Context, userID string, blocks []ScheduleBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(blocks))
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if _, ok := seen[b.ActivityID]; ok {
			continue
		}
		seen[b.ActivityID] = struct{}{}
		ids = append(ids, b.ActivityID)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	found, err := s.store.FindVisibleActivityIDs(sctx, userID, ids)
	if err != nil {
		return err
	}
	for _, id := range found {
		delete(seen, id)
	}
	if len(seen) == 0 {
		return nil
	}
	missing := make([]string, 0, len(seen))
	for id := range seen {
		missing = append(missing, id)
	}
	sort.Strings(missing)
	return ActivitiesNotFoundError{IDs: missing}
}

// SyncRange returns one day per date in [start, end], inclusive.
func (s *Service) SyncRange(ctx context.Context, userID, start, end string) ([]DaySchedule, error) {
	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidRange)
	}
	if to.Sub(from) > MaxSyncRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: at most %d days", ErrRangeTooLarge, MaxSyncRangeDays)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	records, err := s.store.ListSchedules(sctx, userID, from.Format(DateLayout), to.Format(DateLayout))
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]ScheduleRecord, len(records))
	for _, rec := range records {
		byDate[rec.Date] = rec
	}

	var out []DaySchedule
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day := d.Format(DateLayout)
		if rec, ok := byDate[day]; ok {
			out = append(out, s.decodeSchedule(userID, rec))
			continue
		}
		out = append(out, DaySchedule{Date: day, Blocks: []ScheduleBlock{}})
	}
	return out, nil
}

func (s *Service) decodeSchedule(userID string, rec ScheduleRecord) DaySchedule {
	out := DaySchedule{Date: rec.Date, Blocks: decodeBlocks(rec.Blocks)}
	if !rec.UpdatedAt.IsZero() {
		t := rec.UpdatedAt.UTC()
		out.UpdatedAt = &t
	}
	if len(rec.Blocks) > 0 && len(out.Blocks) == 0 && string(rec.Blocks) != "[]" {
		s.log.Warn("stored schedule had no readable blocks",
			"user_id", userID,
			"date", rec.Date,
		)
	}
	return out
}

// decodeBlocks decodes each element on its own so one bad block never hides
// the rest.
func decodeBlocks(raw []byte) []ScheduleBlock {
	out := []ScheduleBlock{}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return out
	}
	for _, elem := range elems {
		var b ScheduleBlock
		if err := json.Unmarshal(elem, &b); err != nil {
			continue
		}
		if !validBlockShape(b) || b.EndHour() > HoursPerDay {
			continue
		}
		out = append(out, b)
	}
	return out
}
