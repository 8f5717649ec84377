// Package client is a small HTTP client for the sentiment service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finsent/pipeline"
)

// Client talks to one sentiment service instance.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the given base URL, e.g. "http://localhost:5000".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the service. Message carries the
// service's error string verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sentiment api error (status %d): %s", e.Status, e.Message)
}

// Health is the GET /health response.
type Health struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	GPUAvailable bool   `json:"gpu_available"`
}

// Health fetches the service health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Analyze scores a single text.
func (c *Client) Analyze(ctx context.Context, text string) (pipeline.Result, error) {
	var out pipeline.Result
	err := c.doJSON(ctx, http.MethodPost, "/analyze", map[string]string{"text": text}, &out)
	return out, err
}

// AnalyzeBatch scores several texts in one request. The service skips blank
// entries, so the result list may be shorter than the input.
func (c *Client) AnalyzeBatch(ctx context.Context, texts []string) ([]pipeline.Result, error) {
	var out struct {
		Results []pipeline.Result `json:"results"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/batch", map[string][]string{"texts": texts}, &out)
	return out.Results, err
}

// Stats fetches the service stats document.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.doJSON(ctx, http.MethodGet, "/api/stats", nil, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
