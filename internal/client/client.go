// Package client is the HTTP client used by the booking wizard and the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/booking"
	"appointo/internal/model"
	"appointo/internal/slots"
)

// CSRFHeader carries the opinion deletion token.
const CSRFHeader = "X-CSRF-Token"

// Client calls the appointo HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client with baseURL and an optional API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SlotsResponse is the body of GET /api/slots.
type SlotsResponse struct {
	Slots []slots.SlotInfo `json:"slots"`
}

// DeleteResponse is the body of DELETE /api/bookings/:id.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetSlots fetches the available slots for req.
func (c *Client) GetSlots(ctx context.Context, req slots.Request) ([]slots.SlotInfo, error) {
	q := url.Values{}
	q.Set("offer", strconv.FormatInt(req.OfferID, 10))
	q.Set("employee", strconv.FormatInt(req.EmployeeID, 10))
	q.Set("date", req.Date)
	if req.BookingID > 0 {
		q.Set("booking", strconv.FormatInt(req.BookingID, 10))
	}

	var resp SlotsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/slots?"+q.Encode(), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Slots, nil
}

// CreateBooking posts a new booking.
func (c *Client) CreateBooking(ctx context.Context, req booking.CreateRequest) (*model.Booking, error) {
	var b model.Booking
	if err := c.doJSON(ctx, http.MethodPost, "/api/bookings", req, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// RescheduleBooking moves an existing booking.
func (c *Client) RescheduleBooking(ctx context.Context, req booking.RescheduleRequest) (*model.Booking, error) {
	var b model.Booking
	path := fmt.Sprintf("/api/bookings/%d", req.BookingID)
	if err := c.doJSON(ctx, http.MethodPut, path, req, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBooking loads one booking.
func (c *Client) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	var b model.Booking
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/bookings/%d", id), nil, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ServiceDetail is the body of GET /api/services/:id.
type ServiceDetail struct {
	Service      model.Service        `json:"service"`
	Offers       []model.Offer        `json:"offers"`
	Employees    []model.Employee     `json:"employees"`
	OpeningHours []model.OpeningHours `json:"opening_hours"`
}

// GetService loads a service with its active offers and employees.
func (c *Client) GetService(ctx context.Context, id int64) (*ServiceDetail, error) {
	var d ServiceDetail
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/services/%d", id), nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteBooking cancels a booking.
func (c *Client) DeleteBooking(ctx context.Context, id int64) (*DeleteResponse, error) {
	var resp DeleteResponse
	if err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/bookings/%d", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCSRF requests a deletion token for an opinion.
func (c *Client) GetCSRF(ctx context.Context, opinionID int64) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/opinions/%d/csrf", opinionID), nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// DeleteOpinion deletes an opinion using a token from GetCSRF.
func (c *Client) DeleteOpinion(ctx context.Context, opinionID int64, token string) error {
	var resp struct {
		Success bool `json:"success"`
	}
	headers := map[string]string{CSRFHeader: token}
	if err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/opinions/%d", opinionID), nil, headers, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("delete opinion %d: not confirmed", opinionID)
	}
	return nil
}

// HealthCheck checks if the API is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError maps an error response back to the apperr taxonomy.
func decodeError(resp *http.Response) error {
	var e errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
	msg := e.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperr.NotFound("%s", msg)
	case http.StatusBadRequest, http.StatusForbidden:
		return apperr.BadRequest("%s", msg)
	case http.StatusConflict:
		return apperr.Conflict("%s", msg)
	default:
		return fmt.Errorf("http %d: %s", resp.StatusCode, msg)
	}
}
