package game

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	StatFloor   = int64(0)
	StatCeiling = int64(100)

	DefaultWellbeing = int64(50)
	StarterMoney     = int64(1000)

	MaxStatDelta = int64(1_000_000_000)
	MaxQuantity  = int64(999)

	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100

	DefaultPageSize = 20
	MaxPageSize     = 100

	HoursPerDay      = 24
	MaxActivityHours = 24
	MaxSyncRangeDays = 30

	DateLayout = "2006-01-02"
)

var (
	ErrRecordNotFound = errors.New("record not found")

	ErrInvalidStat         = errors.New("invalid stat type")
	ErrInvalidDelta        = errors.New("stat delta out of range")
	ErrInvalidActivity     = errors.New("invalid activity")
	ErrInvalidActivityType = errors.New("invalid activity type")
	ErrDuplicateID         = errors.New("id already exists")
	ErrInvalidBlock        = errors.New("invalid schedule block")
	ErrBlockPastMidnight   = errors.New("invalid block: extends past midnight")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidRange        = errors.New("invalid date range")
	ErrRangeTooLarge       = errors.New("date range too large")
	ErrInvalidCategory     = errors.New("invalid item category")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidPage         = errors.New("invalid page")

	ErrItemNotFound      = errors.New("item not found")
	ErrNotInInventory    = errors.New("item not found in inventory")
	ErrWrongPurchaseType = errors.New("wrong purchase type for this item")

	ErrInsufficientFunds    = errors.New("not enough money")
	ErrItemNotUsable        = errors.New("item is not usable")
	ErrInsufficientQuantity = errors.New("insufficient quantity in inventory")
	ErrNoUsesRemaining      = errors.New("no uses remaining")

	ErrPaymentDeclined  = errors.New("payment declined")
	ErrInvalidSignature = errors.New("invalid payment event signature")
	ErrPaymentsDisabled = errors.New("payment processor not configured")
)

// TimeConflictError reports the first hour found occupied twice while
// walking the blocks in list order.
type TimeConflictError struct {
	Hour int
}

func (e TimeConflictError) Error() string {
	return fmt.Sprintf("time conflict at hour %d", e.Hour)
}

// ActivitiesNotFoundError lists every referenced activity id that did not resolve.
type ActivitiesNotFoundError struct {
	IDs []string
}

func (e ActivitiesNotFoundError) Error() string {
	return fmt.Sprintf("activities not found: %s", strings.Join(e.IDs, ", "))
}

// IsValidation reports whether err is a client input problem.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidStat, ErrInvalidDelta, ErrInvalidActivity, ErrInvalidActivityType,
		ErrDuplicateID, ErrInvalidBlock, ErrBlockPastMidnight, ErrInvalidDate,
		ErrInvalidRange, ErrRangeTooLarge, ErrInvalidCategory, ErrInvalidQuantity,
		ErrInvalidPage, ErrWrongPurchaseType, ErrItemNotUsable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var missing ActivitiesNotFoundError
	return errors.As(err, &missing)
}

// IsNotFound reports whether err refers to an unknown item or inventory entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrNotInInventory)
}

// IsConflict reports whether err is a state conflict: overlapping blocks or
// a balance, quantity or use count that cannot cover the request.
func IsConflict(err error) bool {
	var conflict TimeConflictError
	if errors.As(err, &conflict) {
		return true
	}
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientQuantity) ||
		errors.Is(err, ErrNoUsesRemaining)
}

// IsPaymentRejection reports whether the processor refused the charge or event.
func IsPaymentRejection(err error) bool {
	return errors.Is(err, ErrPaymentDeclined) || errors.Is(err, ErrInvalidSignature)
}

// Stat names one of the five tracked stats.
type Stat string

const (
	StatHunger Stat = "hunger"
	StatStress Stat = "stress"
	StatTone   Stat = "tone"
	StatHealth Stat = "health"
	StatMoney  Stat = "money"
)

// AllStats is the fixed application order for effect vectors.
var AllStats = []Stat{StatHunger, StatStress, StatTone, StatHealth, StatMoney}

func ParseStat(raw string) (Stat, error) {
	s := Stat(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatHunger, StatStress, StatTone, StatHealth, StatMoney:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStat, raw)
}

// Clamp bounds v for the given stat. Wellbeing stats live in [0,100];
// money has no ceiling.
func Clamp(s Stat, v int64) int64 {
	switch s {
	case StatHunger, StatStress, StatTone, StatHealth:
		return min(max(v, StatFloor), StatCeiling)
	case StatMoney:
		return max(v, StatFloor)
	}
	return v
}

// ApplyClamped adds delta to current without overflowing, then clamps once.
func ApplyClamped(s Stat, current, delta int64) int64 {
	return Clamp(s, saturatingAdd(current, delta))
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

func saturatingMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	p := a * b
	if p/b != a {
		if (a < 0) != (b < 0) {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return p
}

// Effects maps a stat to the delta an activity or item applies.
type Effects map[Stat]int64

// NormalizeEffects turns a loosely keyed vector into Effects. Unknown names
// are skipped and returned; keys naming the same stat are summed.
func NormalizeEffects(raw map[string]int64) (Effects, []string) {
	out := make(Effects, len(raw))
	var skipped []string
	for k, v := range raw {
		s, err := ParseStat(k)
		if err != nil {
			skipped = append(skipped, k)
			continue
		}
		out[s] = saturatingAdd(out[s], v)
	}
	sort.Strings(skipped)
	return out, skipped
}

// Scale multiplies every delta by n.
func (e Effects) Scale(n int64) Effects {
	out := make(Effects, len(e))
	for s, v := range e {
		out[s] = saturatingMul(v, n)
	}
	return out
}

// ActivityType is the closed set of activity kinds.
type ActivityType string

const (
	ActivityWork     ActivityType = "work"
	ActivityExercise ActivityType = "exercise"
	ActivitySocial   ActivityType = "social"
	ActivityRest     ActivityType = "rest"
	ActivityStudy    ActivityType = "study"
	ActivityEat      ActivityType = "eat"
	ActivityShopping ActivityType = "shopping"
	ActivityCustom   ActivityType = "custom"
)

func ParseActivityType(raw string) (ActivityType, error) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case ActivityWork, ActivityExercise, ActivitySocial, ActivityRest,
		ActivityStudy, ActivityEat, ActivityShopping, ActivityCustom:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidActivityType, raw)
}

// ItemCategory is the closed set of shop categories.
type ItemCategory string

const (
	CategoryCourse        ItemCategory = "course"
	CategoryPlant         ItemCategory = "plant"
	CategoryFood          ItemCategory = "food"
	CategoryEntertainment ItemCategory = "entertainment"
	CategoryFurniture     ItemCategory = "furniture"
	CategoryClothing      ItemCategory = "clothing"
)

func ParseItemCategory(raw string) (ItemCategory, error) {
	c := ItemCategory(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CategoryCourse, CategoryPlant, CategoryFood, CategoryEntertainment,
		CategoryFurniture, CategoryClothing:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
}

type PurchaseType string

const (
	PurchaseInGame    PurchaseType = "in_game"
	PurchaseRealMoney PurchaseType = "real_money"
)

var activityIDRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateActivityID accepts lowercase slugs up to 64 characters.
func ValidateActivityID(id string) error {
	if !activityIDRE.MatchString(id) {
		return fmt.Errorf("%w: id must be a lowercase slug", ErrInvalidActivity)
	}
	return nil
}

// TotalPrice returns price×quantity, failing on overflow.
func TotalPrice(price, quantity int64) (int64, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return 0, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, MaxQuantity)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative item price")
	}
	total := saturatingMul(price, quantity)
	if total == math.MaxInt64 {
		return 0, fmt.Errorf("price overflow")
	}
	return total, nil
}

// UnitsForUses is the number of inventory units still backing the given
// remaining uses of a limited-use item.
func UnitsForUses(usesRemaining, limitedUse int64) int64 {
	if usesRemaining <= 0 || limitedUse <= 0 {
		return 0
	}
	return (usesRemaining + limitedUse - 1) / limitedUse
}
