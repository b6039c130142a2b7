// Package client provides a typed HTTP client SDK for the item API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	defaultTable   = "TestTable"
	uploadPath     = "/api/upload"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the root URL of the API (for example: http://localhost:3001).
	BaseURL string
	// Table is the item table name in the API path. Defaults to TestTable.
	Table string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Item is one row as the API returns it.
type Item struct {
	ID    int64        `json:"ID"`
	Name  *string      `json:"Name"`
	Price *json.Number `json:"Price"`
}

// CreateRequest is the body of a create call. Nil fields are sent as null.
type CreateRequest struct {
	ID    *json.Number `json:"id"`
	Name  *string      `json:"name"`
	Price *json.Number `json:"price"`
}

type CreateResponse struct {
	ID    int64        `json:"id"`
	Name  *string      `json:"name"`
	Price *json.Number `json:"price"`
}

type UpdateRequest struct {
	Name  *string      `json:"name"`
	Price *json.Number `json:"price"`
}

type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Client is the typed HTTP SDK for the item API.
type Client struct {
	http    *http.Client
	baseURL string
	table   string
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		table:   cfg.Table,
	}, nil
}

func (c *Client) itemsPath() string {
	return "/api/" + url.PathEscape(c.table)
}

func (c *Client) itemPath(id int64) string {
	return c.itemsPath() + "/" + strconv.FormatInt(id, 10)
}

// List returns every item.
func (c *Client) List(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := c.doJSON(ctx, http.MethodGet, c.itemsPath(), nil, &items); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// Create inserts an item.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	var out CreateResponse
	if err := c.doJSON(ctx, http.MethodPost, c.itemsPath(), req, &out); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return &out, nil
}

// Update replaces name and price of an item and reports whether it existed.
func (c *Client) Update(ctx context.Context, id int64, req UpdateRequest) (bool, error) {
	var out struct {
		Updated bool `json:"updated"`
	}
	if err := c.doJSON(ctx, http.MethodPut, c.itemPath(id), req, &out); err != nil {
		return false, fmt.Errorf("updating item %d: %w", id, err)
	}
	return out.Updated, nil
}

// Delete removes an item and reports whether it existed.
func (c *Client) Delete(ctx context.Context, id int64) (bool, error) {
	var out struct {
		Deleted bool `json:"deleted"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, c.itemPath(id), nil, &out); err != nil {
		return false, fmt.Errorf("deleting item %d: %w", id, err)
	}
	return out.Deleted, nil
}

// UploadImage stores r as the image for id. The id is sent verbatim.
func (c *Client) UploadImage(ctx context.Context, id, filename string, r io.Reader) (*UploadResponse, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if err := mw.WriteField("id", id); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("uploading image for %q: %w", id, err)
	}
	return &out, nil
}

// ImageURL is the image address for id with a cache-busting query, so a
// replaced image is fetched again.
func (c *Client) ImageURL(id string, at time.Time) string {
	return fmt.Sprintf("%s/images/%s.jpg?%d", c.baseURL, url.PathEscape(id), at.UnixMilli())
}

// PlaceholderURL is the fallback image address.
func (c *Client) PlaceholderURL() string {
	return c.baseURL + "/images/placeholder.jpg"
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(data, &payload) == nil {
				apiErr.Message = payload.Error
			} else {
				apiErr.Message = strings.TrimSpace(string(data))
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
