// Package llm provides the Ollama HTTP client used for text generation,
// JSON-schema constrained generation, and embeddings.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single generation or embedding call.
const DefaultTimeout = 2 * time.Minute

// Client talks to an Ollama server over its native HTTP API.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL        string
	generateModel  string
	embeddingModel string
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewClient creates an Ollama client.
func NewClient(baseURL, generateModel, embeddingModel string, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if generateModel == "" || embeddingModel == "" {
		return nil, fmt.Errorf("generation and embedding models are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        baseURL,
		generateModel:  generateModel,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		logger:         logger,
	}, nil
}

// generateRequest is the request format for Ollama's /api/generate endpoint.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	// Format is either the string "json" or a JSON schema object that
	// constrains the model output.
	Format any  `json:"format,omitempty"`
	Stream bool `json:"stream"`
}

// generateResponse is the response format from /api/generate (non-streaming).
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// embedRequest is the request format for Ollama's /api/embed endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the response format from /api/embed.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Generate produces free-form text for the prompt. system may be empty.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	return c.generate(ctx, system, prompt, nil)
}

// GenerateStructured produces output constrained by the given JSON schema and
// unmarshals it into out.
func (c *Client) GenerateStructured(ctx context.Context, system, prompt string, schema map[string]any, out any) error {
	raw, err := c.generate(ctx, system, prompt, schema)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("malformed structured response %q: %w", truncateForLog(raw), err)
	}
	return nil
}

func (c *Client) generate(ctx context.Context, system, prompt string, format any) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	reqBody := generateRequest{
		Model:  c.generateModel,
		Prompt: prompt,
		System: system,
		Format: format,
		Stream: false,
	}
	var resp generateResponse
	if err := c.post(ctx, "/api/generate", reqBody, &resp); err != nil {
		return "", err
	}
	if resp.Response == "" {
		return "", fmt.Errorf("empty generation response from model %s", c.generateModel)
	}
	return resp.Response, nil
}

// Embed generates an embedding for a single text. Exactly one vector per
// call is part of the contract; any other count is a protocol error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	reqBody := embedRequest{
		Model: c.embeddingModel,
		Input: []string{text},
	}
	var resp embedResponse
	if err := c.post(ctx, "/api/embed", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(resp.Embeddings))
	}
	if len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0], nil
}

// Health checks that the Ollama server is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not available: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// post sends a JSON request and decodes a JSON response.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, errBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// truncateForLog keeps error messages bounded when the model returns junk.
func truncateForLog(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
