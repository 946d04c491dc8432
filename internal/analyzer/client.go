package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aura-rover/aura-backend/internal/shared"
)

// Client talks to an Ollama-compatible multimodal model over /api/chat.
// Every failure is classified: reachability problems (network error,
// timeout, 5xx) wrap shared.ErrUnavailable, parseable-but-broken
// responses wrap shared.ErrProtocol. Callers use shared.IsUnavailable /
// shared.IsProtocol and never see raw transport errors.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	model        string
	probeTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		// Multimodal inference routinely takes tens of seconds.
		timeout = 60 * time.Second
	}
	probe := cfg.ProbeTimeout
	if probe == 0 {
		probe = 2 * time.Second
	}

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      cfg.BaseURL,
		model:        cfg.Model,
		probeTimeout: probe,
	}
}

func (c *Client) Model() string { return c.model }

// Configured reports whether a base URL was supplied. An unconfigured
// client is a normal state: every call fails with ErrUnavailable.
func (c *Client) Configured() bool { return c.baseURL != "" }

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// AnalyzeImage asks the model to comment on an image.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, prompt string) (*Result, error) {
	msg := chatMessage{
		Role:    "user",
		Content: prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
	}
	return c.chat(ctx, msg)
}

// AnalyzeText is the text-only variant with the identical contract.
func (c *Client) AnalyzeText(ctx context.Context, prompt string) (*Result, error) {
	return c.chat(ctx, chatMessage{Role: "user", Content: prompt})
}

func (c *Client) chat(ctx context.Context, msg chatMessage) (*Result, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("analyzer base URL not configured: %w", shared.ErrUnavailable)
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{msg},
		Stream:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach analyzer: %w: %v", shared.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("analyzer returned %d: %w", resp.StatusCode, shared.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analyzer returned %d: %w", resp.StatusCode, shared.ErrProtocol)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("analyzer response was not valid JSON: %w", shared.ErrProtocol)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("analyzer response shape: %w", shared.ErrProtocol)
	}

	return &Result{
		Content:   parsed.Message.Content,
		Raw:       raw,
		LatencyMS: latency,
		Model:     c.model,
	}, nil
}

// IsAvailable is a fast health probe against the model server.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
