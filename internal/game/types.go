package game

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

type Stats struct {
	Hunger int64 `json:"hunger"`
	Stress int64 `json:"stress"`
	Tone   int64 `json:"tone"`
	Health int64 `json:"health"`
	Money  int64 `json:"money"`
}

func DefaultStats() Stats {
	return Stats{
		Hunger: DefaultWellbeing,
		Stress: DefaultWellbeing,
		Tone:   DefaultWellbeing,
		Health: DefaultWellbeing,
		Money:  StarterMoney,
	}
}

func (s Stats) Get(stat Stat) int64 {
	switch stat {
	case StatHunger:
		return s.Hunger
	case StatStress:
		return s.Stress
	case StatTone:
		return s.Tone
	case StatHealth:
		return s.Health
	case StatMoney:
		return s.Money
	}
	return 0
}

func (s *Stats) Set(stat Stat, v int64) {
	switch stat {
	case StatHunger:
		s.Hunger = v
	case StatStress:
		s.Stress = v
	case StatTone:
		s.Tone = v
	case StatHealth:
		s.Health = v
	case StatMoney:
		s.Money = v
	}
}

type StatHistoryEntry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Stat          Stat      `json:"stat_type"`
	PreviousValue int64     `json:"previous_value"`
	NewValue      int64     `json:"new_value"`
	Delta         int64     `json:"change"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Activity struct {
	ID            string       `json:"id"`
	Type          ActivityType `json:"type"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	DurationHours int          `json:"duration_hours"`
	Effects       Effects      `json:"stats_effects"`
	Icon          string       `json:"icon,omitempty"`
	Color         string       `json:"color,omitempty"`
	OwnerID       string       `json:"-"`
}

// ActivityRecord is an activity row as persisted; fields may be missing or
// malformed and are normalised on read.
type ActivityRecord struct {
	ID            string
	Type          string
	Name          string
	Description   string
	DurationHours int
	Effects       map[string]int64
	Icon          string
	Color         string
	OwnerID       string
}

// ParseEffectsJSON decodes a stored effect vector. Values that are not
// whole numbers are dropped; a malformed document yields nil.
func ParseEffectsJSON(raw []byte) map[string]int64 {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil
	}
	out := make(map[string]int64, len(doc))
	for k, v := range doc {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			out[k] = i
			continue
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
			continue
		}
		out[k] = int64(f)
	}
	return out
}

type ScheduleBlock struct {
	ActivityID    string `json:"activity_id"`
	StartHour     int    `json:"start_hour"`
	DurationHours int    `json:"duration_hours"`
}

// EndHour is the first hour after the block.
func (b ScheduleBlock) EndHour() int {
	return b.StartHour + b.DurationHours
}

type DaySchedule struct {
	Date      string          `json:"date"`
	Blocks    []ScheduleBlock `json:"blocks"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// ScheduleRecord is a stored day with its raw block payload.
type ScheduleRecord struct {
	Date      string
	Blocks    []byte
	UpdatedAt time.Time
}

type ShopItem struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Category     ItemCategory `json:"category"`
	Price        int64        `json:"price"`
	PurchaseType PurchaseType `json:"purchase_type"`
	ImageURL     string       `json:"image_url,omitempty"`
	Effects      Effects      `json:"stats_effects"`
	Usable       bool         `json:"usable"`
	LimitedUse   *int64       `json:"limited_use,omitempty"`
}

func (i ShopItem) IsLimitedUse() bool {
	return i.LimitedUse != nil && *i.LimitedUse > 0
}

type InventoryEntry struct {
	ItemID        string    `json:"item_id"`
	Quantity      int64     `json:"quantity"`
	UsesRemaining *int64    `json:"uses_remaining,omitempty"`
	PurchasedAt   time.Time `json:"purchased_at"`
}

type InventoryView struct {
	InventoryEntry
	Item ShopItem `json:"item_details"`
}

type PurchaseRecord struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	ItemID       string       `json:"item_id"`
	Quantity     int64        `json:"quantity"`
	TotalCost    int64        `json:"total_cost"`
	PurchaseType PurchaseType `json:"purchase_type"`
	PaymentRef   string       `json:"payment_id,omitempty"`
	PurchasedAt  time.Time    `json:"purchased_at"`
}

type ItemUsageRecord struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	ItemID   string    `json:"item_id"`
	Quantity int64     `json:"quantity"`
	UsedAt   time.Time `json:"used_at"`
}

type PurchaseReceipt struct {
	Message      string `json:"message"`
	ItemID       string `json:"item_id"`
	Quantity     int64  `json:"quantity"`
	TotalCost    int64  `json:"total_cost"`
	PurchaseType string `json:"purchase_type"`
	Money        *int64 `json:"money,omitempty"`
	PaymentRef   string `json:"payment_intent_id,omitempty"`
	Status       string `json:"status,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	CheckoutURL  string `json:"checkout_url,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

type UseResult struct {
	Message           string         `json:"message"`
	Effects           Effects        `json:"effects"`
	Stats             map[Stat]int64 `json:"stats"`
	RemainingQuantity int64          `json:"remaining_quantity"`
	UsesRemaining     *int64         `json:"uses_remaining,omitempty"`
}

type PurchaseInput struct {
	UserID          string
	ItemID          string
	Quantity        int64
	PaymentMethodID string
	BaseURL         string
}
