package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Zubariev/quarantine/internal/auth"
	"github.com/Zubariev/quarantine/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the game API. Anything else returned by
// the client is a transport failure.
type APIError struct {
	Status  int
	Message string
	// Hour is set on schedule conflicts.
	Hour *int
	// Missing lists unknown activity ids on schedule saves.
	Missing []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsAPIError reports whether err came back from the server rather than from
// the network.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func (c *Client) Signup(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context, accessToken string) (game.Stats, error) {
	var out game.Stats
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/stats", accessToken, nil, &out)
	return out, err
}

func (c *Client) UpdateStat(ctx context.Context, accessToken, stat string, delta int64, reason string) (int64, error) {
	out := map[string]int64{}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/stats", accessToken, map[string]any{
		"stat_type": stat,
		"value":     delta,
		"reason":    reason,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out[strings.ToLower(strings.TrimSpace(stat))], nil
}

func (c *Client) History(ctx context.Context, accessToken, stat string, limit int) ([]game.StatHistoryEntry, error) {
	q := url.Values{}
	if stat != "" {
		q.Set("stat", stat)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Entries []game.StatHistoryEntry `json:"entries"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, withQuery("/v1/stats/history", q), accessToken, nil, &out)
	return out.Entries, err
}

func (c *Client) Schedule(ctx context.Context, accessToken, day string) (game.DaySchedule, error) {
	q := url.Values{}
	if day != "" {
		q.Set("day", day)
	}
	var out game.DaySchedule
	err := c.jsonRequest(ctx, http.MethodGet, withQuery("/v1/schedule", q), accessToken, nil, &out)
	return out, err
}

func (c *Client) SaveSchedule(ctx context.Context, accessToken string, sched game.DaySchedule) (game.DaySchedule, error) {
	var out struct {
		Schedule game.DaySchedule `json:"schedule"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/schedule", accessToken, ScheduleBody(sched), &out)
	return out.Schedule, err
}

// ScheduleBody is the request document for a schedule save.
func ScheduleBody(sched game.DaySchedule) map[string]any {
	blocks := make([]map[string]any, 0, len(sched.Blocks))
	for _, b := range sched.Blocks {
		blocks = append(blocks, map[string]any{
			"activity_id":    b.ActivityID,
			"start_hour":     b.StartHour,
			"duration_hours": b.DurationHours,
		})
	}
	return map[string]any{"date": sched.Date, "blocks": blocks}
}

func (c *Client) SyncSchedules(ctx context.Context, accessToken, start, end string) ([]game.DaySchedule, error) {
	q := url.Values{}
	q.Set("start_date", start)
	q.Set("end_date", end)
	var out struct {
		Schedules []game.DaySchedule `json:"schedules"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, withQuery("/v1/schedule/sync", q), accessToken, nil, &out)
	return out.Schedules, err
}

func (c *Client) Activities(ctx context.Context, accessToken, activityType string) ([]game.Activity, error) {
	q := url.Values{}
	if activityType != "" {
		q.Set("type", activityType)
	}
	var out []game.Activity
	err := c.jsonRequest(ctx, http.MethodGet, withQuery("/v1/schedule/activities", q), accessToken, nil, &out)
	return out, err
}

func (c *Client) CreateActivity(ctx context.Context, accessToken string, in game.NewActivityInput) (game.Activity, error) {
	var out game.Activity
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/schedule/activities", accessToken, map[string]any{
		"id":             in.ID,
		"type":           in.Type,
		"name":           in.Name,
		"description":    in.Description,
		"duration_hours": in.DurationHours,
		"stats_effects":  in.Effects,
		"icon":           in.Icon,
		"color":          in.Color,
	}, &out)
	return out, err
}

func (c *Client) ShopItems(ctx context.Context, category string) ([]game.ShopItem, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	var out []game.ShopItem
	err := c.jsonRequest(ctx, http.MethodGet, withQuery("/v1/shop", q), "", nil, &out)
	return out, err
}

func (c *Client) Inventory(ctx context.Context, accessToken string, page, pageSize int) ([]game.InventoryView, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	var out []game.InventoryView
	err := c.jsonRequest(ctx, http.MethodGet, withQuery("/v1/shop/inventory", q), accessToken, nil, &out)
	return out, err
}

func (c *Client) Purchases(ctx context.Context, accessToken string, limit int) ([]game.PurchaseRecord, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []game.PurchaseRecord
	err := c.jsonRequest(ctx, http.MethodGet, withQuery("/v1/shop/purchases", q), accessToken, nil, &out)
	return out, err
}

// Purchase buys an item through whichever path its purchase type requires.
func (c *Client) Purchase(ctx context.Context, accessToken, itemID string, quantity int64, paymentMethodID string) (game.PurchaseReceipt, error) {
	body := map[string]any{"item_id": itemID, "quantity": quantity}
	if paymentMethodID != "" {
		body["payment_method_id"] = paymentMethodID
	}
	var out game.PurchaseReceipt
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/shop/purchase", accessToken, body, &out)
	return out, err
}

func (c *Client) UseItem(ctx context.Context, accessToken, itemID string, quantity int64) (game.UseResult, error) {
	var out game.UseResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/shop/use/"+url.PathEscape(itemID), accessToken, map[string]any{
		"quantity": quantity,
	}, &out)
	return out, err
}

// Do replays a raw request, used by the offline queue.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any) (map[string]any, error) {
	out := map[string]any{}
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, accessToken, in, &out)
	return out, err
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	var doc struct {
		Error   string   `json:"error"`
		Hour    *int     `json:"hour"`
		Missing []string `json:"missing_activities"`
	}
	if json.Unmarshal(raw, &doc) == nil && doc.Error != "" {
		apiErr.Message = doc.Error
		apiErr.Hour = doc.Hour
		apiErr.Missing = doc.Missing
	}
	return apiErr
}
