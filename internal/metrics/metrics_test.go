package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/shop/use/{item_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/v1/shop/use/food-pizza", "/v1/shop/use/food-salad", "/ok"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/v1/shop/use/{item_id}", "418")); got != 2 {
		t.Fatalf("expected 2 requests for templated route, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/ok", "200")); got != 1 {
		t.Fatalf("expected implicit 200 to be recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsInFlight); got != 0 {
		t.Fatalf("in-flight gauge should return to zero, got %v", got)
	}
}

func TestEventsAndHandler(t *testing.T) {
	m := New()
	var events game.Events = m
	events.StatChanged(game.StatMoney)
	events.StatChanged(game.StatMoney)
	events.Purchased(game.PurchaseInGame, "completed")
	events.ItemUsed("food-pizza")
	events.PaymentEvent(game.ReconcileDuplicate)

	if got := testutil.ToFloat64(m.StatChanges.WithLabelValues("money")); got != 2 {
		t.Fatalf("stat changes got %v", got)
	}
	if got := testutil.ToFloat64(m.Purchases.WithLabelValues("in_game", "completed")); got != 1 {
		t.Fatalf("purchases got %v", got)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		"quarantine_game_stat_changes_total",
		"quarantine_shop_item_uses_total{item=\"food-pizza\"} 1",
		"quarantine_payments_webhook_events_total{outcome=\"duplicate\"} 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
