/**
 * @description
 * This package provides a client for the TiDB Cloud Data API, the HTTP-fronted
 * tabular service that holds BudgetLink user records.
 *
 * Key features:
 * - HTTP Basic authentication with the data app's public/private key pair.
 * - Query-parameter reads and JSON-body writes against named endpoints.
 * - Decodes the `data.rows` envelope returned by SQL endpoints.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, net/url, time: Standard Go libraries.
 */
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable is returned when the data service cannot be reached.
var ErrUnavailable = errors.New("data service unavailable")

// StatusError is returned for non-2xx responses from the data service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("data API error: status %d, body: %s", e.Status, e.Body)
}

// Response is the envelope returned by SQL endpoints.
type Response struct {
	Type string `json:"type"`
	Data struct {
		Columns []struct {
			Col      string `json:"col"`
			DataType string `json:"data_type"`
		} `json:"columns"`
		Rows   []json.RawMessage `json:"rows"`
		Result struct {
			Code         int    `json:"code"`
			Message      string `json:"message"`
			RowCount     int    `json:"row_count"`
			RowAffect    int    `json:"row_affect"`
			LastInsertID *int64 `json:"last_insert_id"`
		} `json:"result"`
	} `json:"data"`
}

// Client is a client for a TiDB Cloud data app.
type Client struct {
	baseURL    string
	publicKey  string
	privateKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Data API client rooted at the data app's endpoint URL.
func NewClient(baseURL, publicKey, privateKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		publicKey:  publicKey,
		privateKey: privateKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Get calls a read endpoint with the given query parameters.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*Response, error) {
	u := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil)
}

// Post calls a write endpoint with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimPrefix(endpoint, "/"), body)
}

// Put calls an update endpoint with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPut, c.baseURL+"/"+strings.TrimPrefix(endpoint, "/"), body)
}

// do is a helper function to make HTTP requests to the Data API.
func (c *Client) do(ctx context.Context, method, url string, body interface{}) (*Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.SetBasicAuth(c.publicKey, c.privateKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "data API request", "method", method, "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "data API returned non-success status", "status", resp.StatusCode, "method", method)
		return nil, &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var out Response
	if len(bytes.TrimSpace(respBody)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response body: %w", err)
	}
	return &out, nil
}
