package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PaymentProcessor is the external card processor. Declines wrap
// ErrPaymentDeclined and bad event signatures wrap ErrInvalidSignature.
type PaymentProcessor interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	ParseEvent(payload []byte, signature string) (PaymentEvent, error)
}

const (
	ChargeSucceeded      = "succeeded"
	ChargeRequiresAction = "requires_action"
)

type ChargeRequest struct {
	UserID          string
	Item            ShopItem
	Quantity        int64
	Amount          int64
	PaymentMethodID string
	ReturnURL       string
}

type ChargeResult struct {
	Reference    string
	Status       string
	ClientSecret string
}

type CheckoutRequest struct {
	UserID     string
	Item       ShopItem
	Quantity   int64
	SuccessURL string
	CancelURL  string
}

type Checkout struct {
	URL       string
	SessionID string
}

type PaymentEventKind string

const (
	EventCheckoutCompleted PaymentEventKind = "checkout_completed"
	EventPaymentSucceeded  PaymentEventKind = "payment_succeeded"
	EventOther             PaymentEventKind = "other"
)

// PaymentEvent is a verified processor notification.
type PaymentEvent struct {
	ID          string
	Type        string
	Kind        PaymentEventKind
	Reference   string
	Metadata    map[string]string
	AmountTotal int64
}

const (
	ReconcileProcessed = "processed"
	ReconcileDuplicate = "duplicate"
	ReconcileIgnored   = "ignored"
)

type ReconcileResult struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id,omitempty"`
	Reference string `json:"payment_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Reconcile verifies a processor event and credits the purchase it describes
// at most once per payment reference.
func (s *Service) Reconcile(ctx context.Context, payload []byte, signature string) (ReconcileResult, error) {
	if s.processor == nil {
		return ReconcileResult{}, ErrPaymentsDisabled
	}
	ev, err := s.processor.ParseEvent(payload, signature)
	if err != nil {
		s.events.PaymentEvent("rejected")
		return ReconcileResult{}, err
	}
	out := ReconcileResult{EventID: ev.ID, Reference: ev.Reference}
	log := s.log.With("event_id", ev.ID, "payment_ref", ev.Reference)

	ignore := func(msg string) (ReconcileResult, error) {
		log.Info("payment event ignored", "event_type", ev.Type, "reason", msg)
		s.events.PaymentEvent(ReconcileIgnored)
		out.Status = ReconcileIgnored
		out.Message = msg
		return out, nil
	}

	if ev.Kind != EventCheckoutCompleted && ev.Kind != EventPaymentSucceeded {
		return ignore("unhandled event type")
	}
	if strings.TrimSpace(ev.Reference) == "" {
		return ignore("missing payment reference")
	}
	userID := strings.TrimSpace(ev.Metadata["user_id"])
	itemID := strings.TrimSpace(ev.Metadata["item_id"])
	if userID == "" || itemID == "" {
		return ignore("missing metadata")
	}
	qty := int64(1)
	if raw := strings.TrimSpace(ev.Metadata["quantity"]); raw != "" {
		qty, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || qty <= 0 || qty > MaxQuantity {
			return ignore("invalid quantity")
		}
	}

	item, err := s.getItem(ctx, itemID)
	if errors.Is(err, ErrItemNotFound) {
		return ignore("item not found")
	}
	if err != nil {
		return ReconcileResult{}, err
	}

	total := ev.AmountTotal
	if total <= 0 {
		total, err = TotalPrice(item.Price, qty)
		if err != nil {
			return ignore("invalid amount")
		}
	}

	credited, err := s.creditRealMoney(ctx, userID, item, qty, total, ev.Reference)
	if err != nil {
		s.events.PaymentEvent("failed")
		return ReconcileResult{}, err
	}
	if !credited {
		log.Info("payment already processed")
		s.events.PaymentEvent(ReconcileDuplicate)
		out.Status = ReconcileDuplicate
		out.Message = "already processed"
		return out, nil
	}
	log.Info("payment reconciled", "user_id", userID, "item_id", itemID, "quantity", qty)
	s.events.PaymentEvent(ReconcileProcessed)
	out.Status = ReconcileProcessed
	return out, nil
}

// creditRealMoney claims ref by inserting the purchase record, then credits
// the inventory. A claim whose credit fails is released so a retry can
// succeed. It reports false when ref was already claimed.
func (s *Service) creditRealMoney(ctx context.Context, userID string, item ShopItem, qty, total int64, ref string) (bool, error) {
	rec := PurchaseRecord{
		ID:           newID(),
		UserID:       userID,
		ItemID:       item.ID,
		Quantity:     qty,
		TotalCost:    total,
		PurchaseType: PurchaseRealMoney,
		PaymentRef:   ref,
		PurchasedAt:  s.now(),
	}
	sctx, cancel := s.storeCtx(ctx)
	claimed, err := s.store.InsertPurchase(sctx, rec)
	cancel()
	if err != nil {
		return false, fmt.Errorf("claim payment %s: %w", ref, err)
	}
	if !claimed {
		return false, nil
	}

	if _, _, err := s.AddToInventory(ctx, userID, item, qty); err != nil {
		sctx, cancel := s.storeCtx(context.WithoutCancel(ctx))
		defer cancel()
		if relErr := s.store.DeletePurchaseByRef(sctx, ref); relErr != nil {
			s.log.Error("release payment claim failed",
				"payment_ref", ref,
				"user_id", userID,
				"err", relErr,
			)
		}
		return false, err
	}
	return true, nil
}
