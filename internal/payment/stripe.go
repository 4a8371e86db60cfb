// Package payment adapts Stripe to game.PaymentProcessor.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type Config struct {
	APIKey        string
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
	// BaseURL overrides the Stripe API endpoint.
	BaseURL string
}

type Stripe struct {
	api           *client.API
	webhookSecret string
	currency      string
}

var _ game.PaymentProcessor = (*Stripe)(nil)

func New(cfg Config) *Stripe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	backends := stripe.NewBackends(httpClient)
	if cfg.BaseURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:        stripe.String(cfg.BaseURL),
			HTTPClient: httpClient,
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	api := &client.API{}
	api.Init(cfg.APIKey, backends)
	return &Stripe{api: api, webhookSecret: cfg.WebhookSecret, currency: currency}
}

func (s *Stripe) Charge(ctx context.Context, req game.ChargeRequest) (game.ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(s.currency),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
	}
	if req.ReturnURL != "" {
		params.ReturnURL = stripe.String(req.ReturnURL)
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("item_id", req.Item.ID)
	params.AddMetadata("quantity", strconv.FormatInt(req.Quantity, 10))
	params.AddMetadata("item_name", req.Item.Name)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return game.ChargeResult{}, mapError(err)
	}
	return game.ChargeResult{
		Reference:    pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (s *Stripe) CreateCheckout(ctx context.Context, req game.CheckoutRequest) (game.Checkout, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.Item.Name),
	}
	if req.Item.Description != "" {
		product.Description = stripe.String(req.Item.Description)
	}
	if req.Item.ImageURL != "" {
		product.Images = stripe.StringSlice([]string{req.Item.ImageURL})
	}
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(req.Item.Price),
			},
			Quantity: stripe.Int64(req.Quantity),
		}},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("item_id", req.Item.ID)
	params.AddMetadata("quantity", strconv.FormatInt(req.Quantity, 10))

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return game.Checkout{}, mapError(err)
	}
	return game.Checkout{URL: sess.URL, SessionID: sess.ID}, nil
}

// ParseEvent verifies the Stripe-Signature header and extracts the fields
// reconciliation needs. A verified event whose object does not decode comes
// back without a reference.
func (s *Stripe) ParseEvent(payload []byte, signature string) (game.PaymentEvent, error) {
	if s.webhookSecret == "" || strings.TrimSpace(signature) == "" {
		return game.PaymentEvent{}, fmt.Errorf("%w: missing signature or secret", game.ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return game.PaymentEvent{}, fmt.Errorf("%w: %v", game.ErrInvalidSignature, err)
	}

	out := game.PaymentEvent{ID: ev.ID, Type: string(ev.Type), Kind: game.EventOther}
	if ev.Data == nil {
		return out, nil
	}
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		out.Kind = game.EventCheckoutCompleted
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return out, nil
		}
		out.Reference = sess.ID
		out.Metadata = sess.Metadata
		out.AmountTotal = sess.AmountTotal
	case stripe.EventTypePaymentIntentSucceeded:
		out.Kind = game.EventPaymentSucceeded
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return out, nil
		}
		out.Reference = pi.ID
		out.Metadata = pi.Metadata
		out.AmountTotal = pi.Amount
	}
	return out, nil
}

func mapError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return fmt.Errorf("%w: %s", game.ErrPaymentDeclined, stripeErr.Msg)
	}
	return fmt.Errorf("stripe: %w", err)
}
