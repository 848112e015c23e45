package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"geografica/internal/model"
)

// UserSource supplies the logged in guardian
type UserSource interface {
	CurrentUser() *model.User
}

// ChildClient manages the children of the authenticated guardian
type ChildClient struct {
	api   *Client
	users UserSource
}

// NewChildClient creates a child client
func NewChildClient(api *Client, users UserSource) *ChildClient {
	return &ChildClient{api: api, users: users}
}

// Register creates a child via POST /tutores/registrar-hijo
func (c *ChildClient) Register(ctx context.Context, req model.RegisterChildRequest) (*model.Child, error) {
	var child model.Child
	if err := c.api.do(ctx, http.MethodPost, "/tutores/registrar-hijo", nil, req, &child); err != nil {
		return nil, err
	}
	return &child, nil
}

// List returns the children of the current guardian via GET /tutores/:id/hijos
func (c *ChildClient) List(ctx context.Context) ([]model.Child, error) {
	user := c.users.CurrentUser()
	if user == nil || user.ID == 0 {
		return nil, ErrNotAuthenticated
	}

	children := []model.Child{}
	if err := c.api.do(ctx, http.MethodGet, fmt.Sprintf("/tutores/%d/hijos", user.ID), nil, nil, &children); err != nil {
		return nil, err
	}
	return children, nil
}

// RegenerateCode issues a new linking code via POST /hijos/:id/regenerar-codigo.
// The previous code stops working and the child must be linked again.
func (c *ChildClient) RegenerateCode(ctx context.Context, childID int64) (*model.LinkCodeResponse, error) {
	var resp model.LinkCodeResponse
	if err := c.api.do(ctx, http.MethodPost, fmt.Sprintf("/hijos/%d/regenerar-codigo", childID), nil, struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.LinkCode == "" {
		return nil, fmt.Errorf("regenerate code: empty code in response")
	}
	return &resp, nil
}

// Update partially updates a child via PATCH /hijos/:id
func (c *ChildClient) Update(ctx context.Context, childID int64, req model.UpdateChildRequest) (*model.Child, error) {
	var child model.Child
	if err := c.api.do(ctx, http.MethodPatch, fmt.Sprintf("/hijos/%d", childID), nil, req, &child); err != nil {
		return nil, err
	}
	return &child, nil
}
