// Package readability extracts durable article content from raw HTML.
//
// Two implementations are provided: Client calls the external readability
// service over HTTP, Local runs go-readability in-process for deployments
// without the service. Both yield the same Result.
package readability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is the extraction output: the article title, the cleaned article
// HTML, and its plain text.
type Result struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	TextContent string `json:"textContent"`
}

// Client calls the external readability service: POST raw HTML, receive the
// extracted article. Any transport error, non-2xx status, or malformed body
// is a stage failure for the caller to retry.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a readability service client.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Extract sends the raw HTML to the service. pageURL is forwarded so the
// service can resolve relative references.
func (c *Client) Extract(ctx context.Context, pageURL string, rawHTML []byte) (*Result, error) {
	if len(rawHTML) == 0 {
		return nil, fmt.Errorf("raw HTML is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("building extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "text/html")
	if pageURL != "" {
		req.Header.Set("X-Document-URL", pageURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("extraction service status %d: %s", resp.StatusCode, errBody)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("malformed extraction response: %w", err)
	}
	if result.Content == "" && result.TextContent == "" {
		return nil, fmt.Errorf("extraction service returned empty content")
	}
	return &result, nil
}
