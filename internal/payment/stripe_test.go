package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func signPayload(secret string, payload []byte, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestParseEventCheckoutCompleted(t *testing.T) {
	s := New(Config{APIKey: "sk_test", WebhookSecret: testWebhookSecret})
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "2020-08-27",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"amount_total": 998,
			"metadata": {"user_id": "u1", "item_id": "course-yoga", "quantity": "2"}
		}}
	}`)

	ev, err := s.ParseEvent(payload, signPayload(testWebhookSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, game.EventCheckoutCompleted, ev.Kind)
	assert.Equal(t, "cs_test_1", ev.Reference)
	assert.Equal(t, int64(998), ev.AmountTotal)
	assert.Equal(t, "course-yoga", ev.Metadata["item_id"])
	assert.Equal(t, "2", ev.Metadata["quantity"])
}

func TestParseEventPaymentIntentSucceeded(t *testing.T) {
	s := New(Config{APIKey: "sk_test", WebhookSecret: testWebhookSecret})
	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_9",
			"object": "payment_intent",
			"amount": 499,
			"status": "succeeded",
			"metadata": {"user_id": "u1", "item_id": "course-yoga", "quantity": "1"}
		}}
	}`)
	ev, err := s.ParseEvent(payload, signPayload(testWebhookSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, game.EventPaymentSucceeded, ev.Kind)
	assert.Equal(t, "pi_9", ev.Reference)
	assert.Equal(t, int64(499), ev.AmountTotal)
}

func TestParseEventOtherType(t *testing.T) {
	s := New(Config{APIKey: "sk_test", WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`)
	ev, err := s.ParseEvent(payload, signPayload(testWebhookSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, game.EventOther, ev.Kind)
	assert.Equal(t, "charge.refunded", ev.Type)
}

func TestParseEventUndecodableObjectHasNoReference(t *testing.T) {
	s := New(Config{APIKey: "sk_test", WebhookSecret: testWebhookSecret})
	payload := []byte(`{
		"id": "evt_5",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_bad", "object": "checkout.session", "amount_total": "lots"}}
	}`)
	ev, err := s.ParseEvent(payload, signPayload(testWebhookSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_5", ev.ID)
	assert.Equal(t, game.EventCheckoutCompleted, ev.Kind)
	assert.Empty(t, ev.Reference)
	assert.Empty(t, ev.Metadata)
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	s := New(Config{APIKey: "sk_test", WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_4","object":"event","type":"payment_intent.succeeded","data":{"object":{}}}`)

	_, err := s.ParseEvent(payload, signPayload("whsec_other", payload, time.Now()))
	assert.ErrorIs(t, err, game.ErrInvalidSignature)

	_, err = s.ParseEvent(payload, signPayload(testWebhookSecret, payload, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, game.ErrInvalidSignature)

	_, err = s.ParseEvent(payload, "")
	assert.ErrorIs(t, err, game.ErrInvalidSignature)

	unset := New(Config{APIKey: "sk_test"})
	_, err = unset.ParseEvent(payload, signPayload(testWebhookSecret, payload, time.Now()))
	assert.ErrorIs(t, err, game.ErrInvalidSignature)
}

func TestChargeSendsIntent(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","status":"requires_action","client_secret":"pi_123_secret"}`)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "sk_test", BaseURL: srv.URL})
	res, err := s.Charge(context.Background(), game.ChargeRequest{
		UserID:          "u1",
		Item:            game.ShopItem{ID: "course-yoga", Name: "Yoga course"},
		Quantity:        2,
		Amount:          998,
		PaymentMethodID: "pm_card_visa",
		ReturnURL:       "https://game.test/shop",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.Reference)
	assert.Equal(t, game.ChargeRequiresAction, res.Status)
	assert.Equal(t, "pi_123_secret", res.ClientSecret)

	assert.Equal(t, "998", form["amount"])
	assert.Equal(t, "usd", form["currency"])
	assert.Equal(t, "true", form["confirm"])
	assert.Equal(t, "pm_card_visa", form["payment_method"])
	assert.Equal(t, "u1", form["metadata[user_id]"])
	assert.Equal(t, "2", form["metadata[quantity]"])
	assert.Equal(t, "Yoga course", form["metadata[item_name]"])
}

func TestChargeMapsCardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "sk_test", BaseURL: srv.URL})
	_, err := s.Charge(context.Background(), game.ChargeRequest{
		UserID: "u1", Item: game.ShopItem{ID: "course-yoga"}, Quantity: 1, Amount: 499, PaymentMethodID: "pm_card_chargeDeclined",
	})
	require.ErrorIs(t, err, game.ErrPaymentDeclined)
	assert.Contains(t, err.Error(), "Your card was declined.")
}

func TestCreateCheckoutSendsLineItem(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.test/cs_1"}`)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "sk_test", BaseURL: srv.URL})
	co, err := s.CreateCheckout(context.Background(), game.CheckoutRequest{
		UserID:     "u1",
		Item:       game.ShopItem{ID: "course-cooking", Name: "Cooking", Description: "Masterclass", Price: 999, ImageURL: "https://img.test/c.png"},
		Quantity:   1,
		SuccessURL: "https://game.test/shop?success=true",
		CancelURL:  "https://game.test/shop?cancelled=true",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", co.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", co.URL)

	assert.Equal(t, "payment", form["mode"])
	assert.Equal(t, "999", form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "Cooking", form["line_items[0][price_data][product_data][name]"])
	assert.Equal(t, "https://img.test/c.png", form["line_items[0][price_data][product_data][images][0]"])
	assert.Equal(t, "course-cooking", form["metadata[item_id]"])
}
