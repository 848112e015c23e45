package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"geografica/internal/model"
)

// SafeZoneClient manages the guardian's safe zones
type SafeZoneClient struct {
	api *Client
}

// NewSafeZoneClient creates a safe zone client
func NewSafeZoneClient(api *Client) *SafeZoneClient {
	return &SafeZoneClient{api: api}
}

// Create adds a safe zone via POST /zonas-seguras
func (c *SafeZoneClient) Create(ctx context.Context, req model.CreateSafeZoneRequest) (*model.SafeZone, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid safe zone: %w", err)
	}

	var zone model.SafeZone
	if err := c.api.do(ctx, http.MethodPost, "/zonas-seguras", nil, req, &zone); err != nil {
		return nil, err
	}
	return &zone, nil
}

// List returns the safe zones of the authenticated guardian
func (c *SafeZoneClient) List(ctx context.Context) ([]model.SafeZone, error) {
	zones := []model.SafeZone{}
	if err := c.api.do(ctx, http.MethodGet, "/zonas-seguras", nil, nil, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// Get returns one safe zone
func (c *SafeZoneClient) Get(ctx context.Context, id int64) (*model.SafeZone, error) {
	var zone model.SafeZone
	if err := c.api.do(ctx, http.MethodGet, fmt.Sprintf("/zonas-seguras/%d", id), nil, nil, &zone); err != nil {
		return nil, err
	}
	return &zone, nil
}

// Update partially updates a safe zone via PATCH /zonas-seguras/:id
func (c *SafeZoneClient) Update(ctx context.Context, id int64, req model.UpdateSafeZoneRequest) (*model.SafeZone, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid safe zone: %w", err)
	}

	var zone model.SafeZone
	if err := c.api.do(ctx, http.MethodPatch, fmt.Sprintf("/zonas-seguras/%d", id), nil, req, &zone); err != nil {
		return nil, err
	}
	return &zone, nil
}

// Delete removes a safe zone
func (c *SafeZoneClient) Delete(ctx context.Context, id int64) (*model.MessageResponse, error) {
	var resp model.MessageResponse
	if err := c.api.do(ctx, http.MethodDelete, fmt.Sprintf("/zonas-seguras/%d", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
