package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/go-chi/chi/v5"
)

type statUpdateRequest struct {
	StatType string `json:"stat_type" validate:"required,stat"`
	Value    int64  `json:"value"`
	Reason   string `json:"reason" validate:"max=200"`
}

type blockRequest struct {
	ActivityID    string `json:"activity_id" validate:"required"`
	StartHour     int    `json:"start_hour" validate:"min=0,max=23"`
	DurationHours int    `json:"duration_hours" validate:"min=1,max=24"`
}

type scheduleRequest struct {
	Date   string         `json:"date" validate:"required"`
	Blocks []blockRequest `json:"blocks" validate:"dive"`
}

type activityRequest struct {
	ID            string           `json:"id" validate:"required,activity_id"`
	Type          string           `json:"type" validate:"omitempty,activity_type"`
	Name          string           `json:"name" validate:"required,max=100"`
	Description   string           `json:"description" validate:"max=500"`
	DurationHours int              `json:"duration_hours" validate:"min=1,max=24"`
	StatsEffects  map[string]int64 `json:"stats_effects"`
	Icon          string           `json:"icon" validate:"max=64"`
	Color         string           `json:"color" validate:"max=32"`
}

type purchaseRequest struct {
	ItemID          string `json:"item_id" validate:"required"`
	Quantity        int64  `json:"quantity" validate:"min=1,max=999"`
	PaymentMethodID string `json:"payment_method_id"`
}

type useRequest struct {
	Quantity int64 `json:"quantity" validate:"min=1,max=999"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	stats, err := s.game.GetStats(r.Context(), user.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUpdateStat(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in statUpdateRequest
	if !s.decodeAndValidate(w, r, &in) {
		return
	}
	stat, value, err := s.game.ApplyDelta(r.Context(), user.UserID, in.StatType, in.Value, in.Reason)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{string(stat): value})
}

func (s *Server) handleStatHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	entries, err := s.game.History(r.Context(), user.UserID, r.URL.Query().Get("stat"), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []game.StatHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	day := strings.TrimSpace(r.URL.Query().Get("day"))
	if day == "" {
		day = time.Now().UTC().Format(game.DateLayout)
	}
	sched, err := s.game.GetSchedule(r.Context(), user.UserID, day)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleSaveSchedule(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in scheduleRequest
	if !s.decodeAndValidate(w, r, &in) {
		return
	}
	blocks := make([]game.ScheduleBlock, 0, len(in.Blocks))
	for _, b := range in.Blocks {
		blocks = append(blocks, game.ScheduleBlock{
			ActivityID:    b.ActivityID,
			StartHour:     b.StartHour,
			DurationHours: b.DurationHours,
		})
	}
	saved, err := s.game.SaveSchedule(r.Context(), user.UserID, game.DaySchedule{Date: in.Date, Blocks: blocks})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Schedule saved", "schedule": saved})
}

func (s *Server) handleSyncSchedules(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	q := r.URL.Query()
	start, end := strings.TrimSpace(q.Get("start_date")), strings.TrimSpace(q.Get("end_date"))
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start_date and end_date are required")
		return
	}
	days, err := s.game.SyncRange(r.Context(), user.UserID, start, end)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if days == nil {
		days = []game.DaySchedule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": days})
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	list, err := s.game.ListActivities(r.Context(), user.UserID, r.URL.Query().Get("type"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []game.Activity{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in activityRequest
	if !s.decodeAndValidate(w, r, &in) {
		return
	}
	a, err := s.game.CreateCustomActivity(r.Context(), user.UserID, game.NewActivityInput{
		ID:            in.ID,
		Type:          in.Type,
		Name:          in.Name,
		Description:   in.Description,
		DurationHours: in.DurationHours,
		Effects:       in.StatsEffects,
		Icon:          in.Icon,
		Color:         in.Color,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.game.ListItems(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []game.ShopItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size")
	if !ok {
		return
	}
	inv, err := s.game.Inventory(r.Context(), user.UserID, page, size)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if inv == nil {
		inv = []game.InventoryView{}
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	recs, err := s.game.Purchases(r.Context(), user.UserID, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if recs == nil {
		recs = []game.PurchaseRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) decodePurchase(w http.ResponseWriter, r *http.Request) (purchaseRequest, bool) {
	var in purchaseRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return in, false
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if err := s.validate.Struct(&in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	in, ok := s.decodePurchase(w, r)
	if !ok {
		return
	}
	receipt, err := s.game.Purchase(r.Context(), game.PurchaseInput{
		UserID:          user.UserID,
		ItemID:          in.ItemID,
		Quantity:        in.Quantity,
		PaymentMethodID: in.PaymentMethodID,
		BaseURL:         s.baseURL(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handlePurchaseInGame(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	in, ok := s.decodePurchase(w, r)
	if !ok {
		return
	}
	receipt, err := s.game.PurchaseInGame(r.Context(), user.UserID, in.ItemID, in.Quantity)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleUseItem(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	in := useRequest{Quantity: 1}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.game.UseItem(r.Context(), user.UserID, chi.URLParam(r, "item_id"), in.Quantity)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	res, err := s.game.Reconcile(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}
