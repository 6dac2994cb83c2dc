package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

//go:generate mockgen -source=client.go -destination=client_mock.go -package=provider

// Client is the aggregator API surface consumed by the sync services.
type Client interface {
	// CreateConnectToken issues a short-lived token the frontend widget uses
	// to start a connection flow.
	CreateConnectToken(ctx context.Context) (string, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	// UpdateItem asks the provider to refresh the item's data.
	UpdateItem(ctx context.Context, itemID string) error
	DeleteItem(ctx context.Context, itemID string) error
	ListAccounts(ctx context.Context, itemID string) ([]Account, error)
	ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]Transaction, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates an aggregator API client. Every request carries the
// client timeout, so a stalled provider can never hold a sync open
// indefinitely.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doJSON performs one authenticated request and decodes the response body
// into out (ignored when out is nil).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) CreateConnectToken(ctx context.Context) (string, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/connect_token", struct{}{}, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (c *HTTPClient) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	if err := c.doJSON(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *HTTPClient) UpdateItem(ctx context.Context, itemID string) error {
	return c.doJSON(ctx, http.MethodPatch, "/items/"+url.PathEscape(itemID), struct{}{}, nil)
}

func (c *HTTPClient) DeleteItem(ctx context.Context, itemID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/items/"+url.PathEscape(itemID), nil, nil)
}

func (c *HTTPClient) ListAccounts(ctx context.Context, itemID string) ([]Account, error) {
	var out struct {
		Results []Account `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/accounts?itemId="+url.QueryEscape(itemID), nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *HTTPClient) ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]Transaction, error) {
	q := url.Values{}
	q.Set("accountId", accountID)
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))

	var out struct {
		Results []Transaction `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/transactions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
