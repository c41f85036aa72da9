package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/me/gosched/pkg/model"
)

// Client is an HTTP client for the gosched API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a gosched API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// do performs an HTTP request and returns the parsed envelope. An error
// envelope is returned together with its *model.APIError so callers can
// still read partial data.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (*apiResponse, error) {
	url := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
		c.Logger.Debug("HTTP request body", "body", string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.Logger.Debug("HTTP request", "method", method, "url", url)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "body", string(respBody))

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}

	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}

	return &apiResp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*apiResponse, error) {
	return c.do(ctx, http.MethodGet, path, "", nil)
}

// PostRaw performs a POST request with a pre-encoded body.
func (c *Client) PostRaw(ctx context.Context, path, contentType string, body []byte) (*apiResponse, error) {
	return c.do(ctx, http.MethodPost, path, contentType, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*apiResponse, error) {
	return c.do(ctx, http.MethodDelete, path, "", nil)
}
