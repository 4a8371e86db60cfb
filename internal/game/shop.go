package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ListItems returns the catalog, optionally limited to one category.
func (s *Service) ListItems(ctx context.Context, category string) ([]ShopItem, error) {
	var want ItemCategory
	if strings.TrimSpace(category) != "" {
		c, err := ParseItemCategory(category)
		if err != nil {
			return nil, err
		}
		want = c
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	items, err := s.store.ListShopItems(sctx, want)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []ShopItem{}
	}
	return items, nil
}

func (s *Service) getItem(ctx context.Context, itemID string) (ShopItem, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	item, err := s.store.GetShopItem(sctx, itemID)
	if errors.Is(err, ErrRecordNotFound) {
		return ShopItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return item, err
}

// Inventory returns one page of the user's inventory joined with item
// details. Entries whose item no longer exists are skipped.
func (s *Service) Inventory(ctx context.Context, userID string, page, pageSize int) ([]InventoryView, error) {
	if page < 0 || pageSize < 0 {
		return nil, fmt.Errorf("%w: page and page_size must be positive", ErrInvalidPage)
	}
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)
	offset := (page - 1) * pageSize

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	entries, err := s.store.ListInventory(sctx, userID, offset, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]InventoryView, 0, len(entries))
	if len(entries) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ItemID)
	}
	items, err := s.store.GetShopItems(sctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		item, ok := items[e.ItemID]
		if !ok {
			s.log.Warn("inventory entry references unknown item",
				"user_id", userID,
				"item_id", e.ItemID,
			)
			continue
		}
		out = append(out, InventoryView{InventoryEntry: e, Item: item})
	}
	return out, nil
}

// AddToInventory credits quantity units of item and applies the item's
// effects once. The returned error covers the inventory write only; an
// effect failure is logged.
func (s *Service) AddToInventory(ctx context.Context, userID string, item ShopItem, quantity int64) (InventoryEntry, map[Stat]int64, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return InventoryEntry{}, nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, MaxQuantity)
	}
	var usesDelta *int64
	if item.IsLimitedUse() {
		d := saturatingMul(*item.LimitedUse, quantity)
		usesDelta = &d
	}

	sctx, cancel := s.storeCtx(ctx)
	entry, err := s.store.AddInventory(sctx, userID, item.ID, quantity, usesDelta, s.now())
	cancel()
	if err != nil {
		return InventoryEntry{}, nil, err
	}

	applied := map[Stat]int64{}
	if len(item.Effects) > 0 {
		applied, err = s.ApplyVector(ctx, userID, item.Effects, "item_purchase:"+item.ID)
		if err != nil {
			s.log.Error("apply item effects failed",
				"user_id", userID,
				"item_id", item.ID,
				"err", err,
			)
			applied = map[Stat]int64{}
		}
	}
	return entry, applied, nil
}

// Purchase routes to PurchaseInGame or PurchaseRealMoney by the item's
// purchase type.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (PurchaseReceipt, error) {
	item, err := s.getItem(ctx, in.ItemID)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	if item.PurchaseType == PurchaseRealMoney {
		return s.PurchaseRealMoney(ctx, in)
	}
	return s.PurchaseInGame(ctx, in.UserID, in.ItemID, in.Quantity)
}

// PurchaseInGame debits game money and credits the item. A failure after the
// debit refunds it.
func (s *Service) PurchaseInGame(ctx context.Context, userID, itemID string, quantity int64) (PurchaseReceipt, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return PurchaseReceipt{}, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, MaxQuantity)
	}
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	if item.PurchaseType != PurchaseInGame {
		return PurchaseReceipt{}, fmt.Errorf("%w: %s is a real money item", ErrWrongPurchaseType, item.ID)
	}
	total, err := TotalPrice(item.Price, quantity)
	if err != nil {
		return PurchaseReceipt{}, err
	}

	stats, err := s.GetStats(ctx, userID)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	if stats.Money < total {
		s.events.Purchased(PurchaseInGame, "insufficient_funds")
		return PurchaseReceipt{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, total, stats.Money)
	}

	log := s.log.With("user_id", userID, "item_id", item.ID)
	reason := "purchase:" + item.ID
	debited, err := s.ApplyVector(ctx, userID, Effects{StatMoney: -total}, reason)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	money := debited[StatMoney]
	if total == 0 {
		money = stats.Money
	}

	_, applied, err := s.AddToInventory(ctx, userID, item, quantity)
	if err != nil {
		if total > 0 {
			if _, refundErr := s.ApplyVector(context.WithoutCancel(ctx), userID, Effects{StatMoney: total}, "refund:"+item.ID); refundErr != nil {
				log.Error("refund after failed purchase failed", "amount", total, "err", refundErr)
			}
		}
		s.events.Purchased(PurchaseInGame, "failed")
		return PurchaseReceipt{}, err
	}
	if v, ok := applied[StatMoney]; ok {
		money = v
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if _, err := s.store.InsertPurchase(sctx, PurchaseRecord{
		ID:           newID(),
		UserID:       userID,
		ItemID:       item.ID,
		Quantity:     quantity,
		TotalCost:    total,
		PurchaseType: PurchaseInGame,
		PurchasedAt:  s.now(),
	}); err != nil {
		log.Warn("purchase record write failed", "err", err)
	}

	s.events.Purchased(PurchaseInGame, "completed")
	log.Info("in-game purchase", "quantity", quantity, "total", total)
	return PurchaseReceipt{
		Message:      "Purchase successful",
		ItemID:       item.ID,
		Quantity:     quantity,
		TotalCost:    total,
		PurchaseType: string(PurchaseInGame),
		Money:        &money,
	}, nil
}

// PurchaseRealMoney charges the given payment method, or opens a hosted
// checkout when none is given.
func (s *Service) PurchaseRealMoney(ctx context.Context, in PurchaseInput) (PurchaseReceipt, error) {
	if in.Quantity < 1 || in.Quantity > MaxQuantity {
		return PurchaseReceipt{}, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, MaxQuantity)
	}
	item, err := s.getItem(ctx, in.ItemID)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	if item.PurchaseType != PurchaseRealMoney {
		return PurchaseReceipt{}, fmt.Errorf("%w: %s is an in-game item", ErrWrongPurchaseType, item.ID)
	}
	if s.processor == nil {
		return PurchaseReceipt{}, ErrPaymentsDisabled
	}
	total, err := TotalPrice(item.Price, in.Quantity)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	base := strings.TrimRight(in.BaseURL, "/")
	log := s.log.With("user_id", in.UserID, "item_id", item.ID)

	receipt := PurchaseReceipt{
		ItemID:       item.ID,
		Quantity:     in.Quantity,
		TotalCost:    total,
		PurchaseType: string(PurchaseRealMoney),
	}

	if strings.TrimSpace(in.PaymentMethodID) == "" {
		co, err := s.processor.CreateCheckout(ctx, CheckoutRequest{
			UserID:     in.UserID,
			Item:       item,
			Quantity:   in.Quantity,
			SuccessURL: base + "/shop?success=true",
			CancelURL:  base + "/shop?cancelled=true",
		})
		if err != nil {
			s.events.Purchased(PurchaseRealMoney, "failed")
			return PurchaseReceipt{}, err
		}
		s.events.Purchased(PurchaseRealMoney, "checkout")
		log.Info("checkout session created", "session_id", co.SessionID)
		receipt.Message = "Checkout session created"
		receipt.CheckoutURL = co.URL
		receipt.SessionID = co.SessionID
		return receipt, nil
	}

	res, err := s.processor.Charge(ctx, ChargeRequest{
		UserID:          in.UserID,
		Item:            item,
		Quantity:        in.Quantity,
		Amount:          total,
		PaymentMethodID: in.PaymentMethodID,
		ReturnURL:       base + "/shop",
	})
	if err != nil {
		outcome := "failed"
		if errors.Is(err, ErrPaymentDeclined) {
			outcome = "declined"
		}
		s.events.Purchased(PurchaseRealMoney, outcome)
		return PurchaseReceipt{}, err
	}
	receipt.PaymentRef = res.Reference
	receipt.Status = res.Status

	switch res.Status {
	case ChargeSucceeded:
		credited, err := s.creditRealMoney(ctx, in.UserID, item, in.Quantity, total, res.Reference)
		if err != nil {
			s.events.Purchased(PurchaseRealMoney, "failed")
			return PurchaseReceipt{}, err
		}
		if !credited {
			log.Info("payment already credited by event", "payment_ref", res.Reference)
		}
		s.events.Purchased(PurchaseRealMoney, "completed")
		receipt.Message = "Payment successful"
	case ChargeRequiresAction:
		s.events.Purchased(PurchaseRealMoney, "requires_action")
		receipt.Message = "Additional authentication required"
		receipt.ClientSecret = res.ClientSecret
	default:
		s.events.Purchased(PurchaseRealMoney, "pending")
		receipt.Message = "Payment processing"
	}
	return receipt, nil
}

// UseItem consumes quantity units (or uses, for limited-use items) and
// applies the scaled effects. All checks run before anything is written.
func (s *Service) UseItem(ctx context.Context, userID, itemID string, quantity int64) (UseResult, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return UseResult{}, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, MaxQuantity)
	}
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return UseResult{}, err
	}
	if !item.Usable {
		return UseResult{}, fmt.Errorf("%w: %s", ErrItemNotUsable, item.ID)
	}

	sctx, cancel := s.storeCtx(ctx)
	entry, err := s.store.GetInventoryEntry(sctx, userID, item.ID)
	cancel()
	if errors.Is(err, ErrRecordNotFound) {
		return UseResult{}, fmt.Errorf("%w: %s", ErrNotInInventory, item.ID)
	}
	if err != nil {
		return UseResult{}, err
	}

	var (
		nextQty  int64
		nextUses *int64
	)
	if item.IsLimitedUse() {
		uses := saturatingMul(*item.LimitedUse, entry.Quantity)
		if entry.UsesRemaining != nil {
			uses = *entry.UsesRemaining
		}
		if uses < quantity {
			return UseResult{}, fmt.Errorf("%w: %d left", ErrNoUsesRemaining, uses)
		}
		left := uses - quantity
		nextUses = &left
		nextQty = UnitsForUses(left, *item.LimitedUse)
	} else {
		if entry.Quantity < quantity {
			return UseResult{}, fmt.Errorf("%w: have %d", ErrInsufficientQuantity, entry.Quantity)
		}
		nextQty = entry.Quantity - quantity
	}

	sctx, cancel = s.storeCtx(ctx)
	if nextQty == 0 {
		err = s.store.DeleteInventory(sctx, userID, item.ID)
	} else {
		err = s.store.SetInventory(sctx, userID, item.ID, nextQty, nextUses)
	}
	cancel()
	if err != nil {
		return UseResult{}, err
	}

	effects := item.Effects.Scale(quantity)
	applied, err := s.ApplyVector(ctx, userID, effects, "item_use:"+item.ID)
	if err != nil {
		s.restoreInventory(ctx, userID, item.ID, entry, nextQty == 0)
		return UseResult{}, err
	}

	sctx, cancel = s.storeCtx(ctx)
	defer cancel()
	if err := s.store.InsertItemUsage(sctx, ItemUsageRecord{
		ID:       newID(),
		UserID:   userID,
		ItemID:   item.ID,
		Quantity: quantity,
		UsedAt:   s.now(),
	}); err != nil {
		s.log.Warn("item usage write failed",
			"user_id", userID,
			"item_id", item.ID,
			"err", err,
		)
	}
	s.events.ItemUsed(item.ID)

	return UseResult{
		Message:           fmt.Sprintf("Used %d x %s", quantity, item.Name),
		Effects:           effects,
		Stats:             applied,
		RemainingQuantity: nextQty,
		UsesRemaining:     nextUses,
	}, nil
}

// restoreInventory puts back the entry a use consumed when its effects could
// not be applied.
func (s *Service) restoreInventory(ctx context.Context, userID, itemID string, prev InventoryEntry, deleted bool) {
	sctx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	var err error
	if deleted {
		_, err = s.store.AddInventory(sctx, userID, itemID, prev.Quantity, prev.UsesRemaining, prev.PurchasedAt)
	} else {
		err = s.store.SetInventory(sctx, userID, itemID, prev.Quantity, prev.UsesRemaining)
	}
	if err != nil {
		s.log.Error("restore inventory after failed use failed", "user_id", userID, "item_id", itemID, "err", err)
	}
}

// Purchases returns the user's newest purchase records.
func (s *Service) Purchases(ctx context.Context, userID string, limit int) ([]PurchaseRecord, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	recs, err := s.store.ListPurchases(sctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []PurchaseRecord{}
	}
	return recs, nil
}
