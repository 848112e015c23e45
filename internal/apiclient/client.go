package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TokenSource supplies the bearer token of the current session
type TokenSource interface {
	Token() string
}

// Client is the base client of the remote REST API. It builds absolute
// URLs from the configured base and attaches the session bearer token.
type Client struct {
	httpClient *resty.Client
	baseURL    string
	tokens     TokenSource
	logger     *zap.Logger
}

// New creates the base client. Failed requests are never retried.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}

	c.httpClient = resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			if c.tokens == nil {
				return nil
			}
			if token := c.tokens.Token(); token != "" {
				r.SetAuthToken(token)
			}
			return nil
		}).
		OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
			c.logger.Debug("API request completed",
				zap.String("method", r.Request.Method),
				zap.String("url", r.Request.URL),
				zap.Int("status_code", r.StatusCode()),
				zap.Duration("elapsed", r.Time()),
			)
			return nil
		})

	return c
}

// SetTokenSource wires the session that owns the bearer token
func (c *Client) SetTokenSource(tokens TokenSource) {
	c.tokens = tokens
}

// URL builds the absolute URL of an endpoint. A missing leading slash is added.
func (c *Client) URL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

// BaseURL returns the configured API base
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends a request and decodes a successful JSON body into result.
// Transport failures wrap ErrTransport; non-2xx responses return *APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	req := c.httpClient.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, c.URL(endpoint))
	if err != nil {
		c.logger.Warn("API request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, endpoint, err)
	}

	if resp.IsError() {
		apiErr := newAPIError(resp.StatusCode(), resp.Body())
		c.logger.Info("API returned error",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status_code", apiErr.StatusCode),
			zap.Strings("messages", apiErr.Messages),
		)
		return apiErr
	}

	if result == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, endpoint, err)
	}
	return nil
}
