package game

import (
	"context"
	"fmt"
	"strings"
)

type NewActivityInput struct {
	ID            string
	Type          string
	Name          string
	Description   string
	DurationHours int
	Effects       map[string]int64
	Icon          string
	Color         string
}

// ListActivities returns global activities plus the caller's own, optionally
// filtered by type.
func (s *Service) ListActivities(ctx context.Context, userID, typeFilter string) ([]Activity, error) {
	var want ActivityType
	if strings.TrimSpace(typeFilter) != "" {
		t, err := ParseActivityType(typeFilter)
		if err != nil {
			return nil, err
		}
		want = t
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	records, err := s.store.ListActivities(sctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Activity, 0, len(records))
	for _, rec := range records {
		a, ok := s.normalizeActivity(rec)
		if !ok {
			continue
		}
		if want != "" && a.Type != want {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) normalizeActivity(rec ActivityRecord) (Activity, bool) {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.Name) == "" {
		s.log.Debug("dropping activity without id or name", "activity_id", rec.ID)
		return Activity{}, false
	}
	t, err := ParseActivityType(rec.Type)
	if err != nil {
		t = ActivityCustom
	}
	duration := rec.DurationHours
	if duration < 1 || duration > MaxActivityHours {
		duration = 1
	}
	effects, skipped := NormalizeEffects(rec.Effects)
	if len(skipped) > 0 {
		s.log.Debug("skipping unknown effect stats",
			"activity_id", rec.ID,
			"stats", skipped,
		)
	}
	return Activity{
		ID:            rec.ID,
		Type:          t,
		Name:          rec.Name,
		Description:   rec.Description,
		DurationHours: duration,
		Effects:       effects,
		Icon:          rec.Icon,
		Color:         rec.Color,
		OwnerID:       rec.OwnerID,
	}, true
}

// CreateCustomActivity stores a new activity owned by userID.
func (s *Service) CreateCustomActivity(ctx context.Context, userID string, in NewActivityInput) (Activity, error) {
	a, err := validateNewActivity(in)
	if err != nil {
		return Activity{}, err
	}
	a.OwnerID = userID

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	exists, err := s.store.ActivityExists(sctx, a.ID)
	if err != nil {
		return Activity{}, err
	}
	if exists {
		return Activity{}, fmt.Errorf("%w: activity %q", ErrDuplicateID, a.ID)
	}
	if err := s.store.InsertActivity(sctx, a); err != nil {
		return Activity{}, err
	}
	s.log.Info("custom activity created",
		"user_id", userID,
		"activity_id", a.ID,
	)
	return a, nil
}

func validateNewActivity(in NewActivityInput) (Activity, error) {
	id := strings.TrimSpace(in.ID)
	if err := ValidateActivityID(id); err != nil {
		return Activity{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Activity{}, fmt.Errorf("%w: name is required", ErrInvalidActivity)
	}
	t := ActivityCustom
	if strings.TrimSpace(in.Type) != "" {
		parsed, err := ParseActivityType(in.Type)
		if err != nil {
			return Activity{}, fmt.Errorf("%w: %v", ErrInvalidActivity, err)
		}
		t = parsed
	}
	if in.DurationHours < 1 || in.DurationHours > MaxActivityHours {
		return Activity{}, fmt.Errorf("%w: duration_hours must be between 1 and %d", ErrInvalidActivity, MaxActivityHours)
	}
	effects, skipped := NormalizeEffects(in.Effects)
	if len(skipped) > 0 {
		return Activity{}, fmt.Errorf("%w: unknown stats %s", ErrInvalidActivity, strings.Join(skipped, ", "))
	}
	return Activity{
		ID:            id,
		Type:          t,
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		DurationHours: in.DurationHours,
		Effects:       effects,
		Icon:          in.Icon,
		Color:         in.Color,
	}, nil
}
