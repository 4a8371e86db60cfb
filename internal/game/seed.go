package game

import "context"

func limitedUse(n int64) *int64 { return &n }

var defaultActivities = []Activity{
	{ID: "work-freelance", Type: ActivityWork, Name: "Freelance work", Description: "Client work from the kitchen table",
		DurationHours: 4, Effects: Effects{StatMoney: 120, StatStress: 15, StatHunger: -10}, Icon: "laptop", Color: "#4f46e5"},
	{ID: "exercise-home", Type: ActivityExercise, Name: "Home workout", Description: "Bodyweight circuit in the living room",
		DurationHours: 1, Effects: Effects{StatTone: 10, StatHealth: 5, StatStress: -10, StatHunger: -10}, Icon: "dumbbell", Color: "#16a34a"},
	{ID: "social-call", Type: ActivitySocial, Name: "Video call with friends", Description: "Catch up over video",
		DurationHours: 1, Effects: Effects{StatStress: -15}, Icon: "phone", Color: "#db2777"},
	{ID: "rest-sleep", Type: ActivityRest, Name: "Sleep", Description: "A full night of rest",
		DurationHours: 8, Effects: Effects{StatHealth: 10, StatStress: -20, StatHunger: -15}, Icon: "moon", Color: "#1e3a8a"},
	{ID: "rest-nap", Type: ActivityRest, Name: "Nap", Description: "A short afternoon nap",
		DurationHours: 1, Effects: Effects{StatStress: -5}, Icon: "bed", Color: "#6366f1"},
	{ID: "study-online", Type: ActivityStudy, Name: "Online course", Description: "Learn something new",
		DurationHours: 2, Effects: Effects{StatStress: 5, StatHunger: -5}, Icon: "book", Color: "#ca8a04"},
	{ID: "eat-meal", Type: ActivityEat, Name: "Cook a meal", Description: "Something warm from the pantry",
		DurationHours: 1, Effects: Effects{StatHunger: 30, StatMoney: -15, StatHealth: 2}, Icon: "utensils", Color: "#ea580c"},
	{ID: "shopping-groceries", Type: ActivityShopping, Name: "Order groceries", Description: "Restock the fridge online",
		DurationHours: 1, Effects: Effects{StatMoney: -40, StatStress: -2}, Icon: "cart", Color: "#0891b2"},
}

var defaultShopItems = []ShopItem{
	{ID: "food-pizza", Name: "Frozen pizza", Description: "Fills you up, not much else",
		Category: CategoryFood, Price: 25, PurchaseType: PurchaseInGame, Usable: true,
		Effects: Effects{StatHunger: 40, StatHealth: -2}},
	{ID: "food-salad", Name: "Salad box", Description: "Fresh greens delivered",
		Category: CategoryFood, Price: 35, PurchaseType: PurchaseInGame, Usable: true,
		Effects: Effects{StatHunger: 25, StatHealth: 5}},
	{ID: "plant-monstera", Name: "Monstera", Description: "A leafy roommate that never complains",
		Category: CategoryPlant, Price: 150, PurchaseType: PurchaseInGame,
		Effects: Effects{StatStress: -5}},
	{ID: "furniture-chair", Name: "Ergonomic chair", Description: "Your back will thank you",
		Category: CategoryFurniture, Price: 400, PurchaseType: PurchaseInGame,
		Effects: Effects{StatHealth: 5, StatStress: -5}},
	{ID: "clothing-hoodie", Name: "Cozy hoodie", Description: "The official work-from-home uniform",
		Category: CategoryClothing, Price: 80, PurchaseType: PurchaseInGame,
		Effects: Effects{StatStress: -3}},
	{ID: "entertainment-boardgame", Name: "Board game", Description: "Good for five evenings",
		Category: CategoryEntertainment, Price: 120, PurchaseType: PurchaseInGame, Usable: true,
		LimitedUse: limitedUse(5), Effects: Effects{StatStress: -10}},
	{ID: "course-yoga", Name: "Yoga course", Description: "Ten guided sessions",
		Category: CategoryCourse, Price: 499, PurchaseType: PurchaseRealMoney, Usable: true,
		LimitedUse: limitedUse(10), Effects: Effects{StatTone: 8, StatStress: -8}},
	{ID: "course-cooking", Name: "Cooking masterclass", Description: "Eat better for the rest of quarantine",
		Category: CategoryCourse, Price: 999, PurchaseType: PurchaseRealMoney,
		Effects: Effects{StatHealth: 10, StatHunger: 10}},
}

// DefaultActivities returns a copy of the built-in activity catalog.
func DefaultActivities() []Activity {
	return append([]Activity(nil), defaultActivities...)
}

// DefaultShopItems returns a copy of the built-in shop catalog.
func DefaultShopItems() []ShopItem {
	return append([]ShopItem(nil), defaultShopItems...)
}

// SeedDefaults inserts the built-in catalogs, leaving existing rows untouched.
func (s *Service) SeedDefaults(ctx context.Context) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.SeedCatalog(sctx, defaultActivities, defaultShopItems); err != nil {
		return err
	}
	s.log.Info("catalog seeded",
		"activities", len(defaultActivities),
		"shop_items", len(defaultShopItems),
	)
	return nil
}
