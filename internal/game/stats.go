package game

import (
	"context"
	"fmt"
)

// GetStats returns the user's stats, creating the default record on first use.
func (s *Service) GetStats(ctx context.Context, userID string) (Stats, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.EnsureStats(sctx, userID, DefaultStats())
}

// ApplyDelta adds delta to one stat, clamps it and records a history entry.
func (s *Service) ApplyDelta(ctx context.Context, userID, statName string, delta int64, reason string) (Stat, int64, error) {
	stat, err := ParseStat(statName)
	if err != nil {
		return "", 0, err
	}
	if delta > MaxStatDelta || delta < -MaxStatDelta {
		return "", 0, fmt.Errorf("%w: |delta| must be <= %d", ErrInvalidDelta, MaxStatDelta)
	}
	applied, err := s.ApplyVector(ctx, userID, Effects{stat: delta}, reason)
	if err != nil {
		return "", 0, err
	}
	if v, ok := applied[stat]; ok {
		return stat, v, nil
	}
	// zero delta: nothing written, report the current value
	current, err := s.GetStats(ctx, userID)
	if err != nil {
		return "", 0, err
	}
	return stat, current.Get(stat), nil
}

// ApplyVector applies every non-zero entry of effects with the same clamp
// rule as ApplyDelta. It returns the new value of each applied field.
func (s *Service) ApplyVector(ctx context.Context, userID string, effects Effects, reason string) (map[Stat]int64, error) {
	out := make(map[Stat]int64, len(effects))
	current, err := s.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	changes := make(map[Stat]int64, len(effects))
	var history []StatHistoryEntry
	for _, stat := range AllStats {
		delta, ok := effects[stat]
		if !ok || delta == 0 {
			continue
		}
		prev := current.Get(stat)
		next := ApplyClamped(stat, prev, delta)
		changes[stat] = next
		out[stat] = next
		history = append(history, StatHistoryEntry{
			ID:            newID(),
			UserID:        userID,
			Stat:          stat,
			PreviousValue: prev,
			NewValue:      next,
			Delta:         delta,
			Reason:        reason,
			CreatedAt:     now,
		})
	}
	if len(changes) == 0 {
		return out, nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpdateStats(sctx, userID, changes); err != nil {
		return nil, err
	}
	for stat := range changes {
		s.events.StatChanged(stat)
	}
	s.appendHistory(ctx, userID, history)
	return out, nil
}

func (s *Service) appendHistory(ctx context.Context, userID string, entries []StatHistoryEntry) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.InsertStatHistory(sctx, entries); err != nil {
		s.log.Warn("stat history write failed",
			"user_id", userID,
			"entries", len(entries),
			"err", err,
		)
	}
}

// History returns the newest history entries, optionally for one stat.
func (s *Service) History(ctx context.Context, userID, statFilter string, limit int) ([]StatHistoryEntry, error) {
	var stat Stat
	if statFilter != "" {
		parsed, err := ParseStat(statFilter)
		if err != nil {
			return nil, err
		}
		stat = parsed
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	entries, err := s.store.ListStatHistory(sctx, userID, stat, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []StatHistoryEntry{}
	}
	return entries, nil
}
