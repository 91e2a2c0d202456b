package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// Client is an HTTP client for the product query interface
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new query client
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithHTTPClient creates a new query client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// ListOptions controls a ListProducts page
type ListOptions struct {
	Limit  int
	Cursor string
	Since  *time.Time
}

// ListProducts fetches one page of an owner's products
func (c *Client) ListProducts(ctx context.Context, ownerID string, opts ListOptions) (*assembly.ProductPage, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Since != nil {
		query.Set("since", opts.Since.Format(time.RFC3339))
	}

	reqURL := fmt.Sprintf("%s/v1/owners/%s/products", c.baseURL, url.PathEscape(ownerID))
	if encoded := query.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	var page assembly.ProductPage
	if err := c.getJSON(ctx, reqURL, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProduct fetches a single product, or nil if it does not exist
func (c *Client) GetProduct(ctx context.Context, key assembly.ContentKey) (*assembly.AssembledProduct, error) {
	reqURL := fmt.Sprintf("%s/v1/owners/%s/products/%s", c.baseURL, url.PathEscape(key.OwnerID), url.PathEscape(key.ContentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var product assembly.AssembledProduct
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &product, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
