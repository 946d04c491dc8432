package detector

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

// Client talks to the face-detector sidecar over HTTP JSON. The model
// itself is a black box: given the same image it returns the same
// boxes. Failure classification mirrors the analyzer client: transport
// problems and 5xx wrap shared.ErrUnavailable, malformed bodies wrap
// shared.ErrProtocol.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	probeTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	probe := cfg.ProbeTimeout
	if probe == 0 {
		probe = 2 * time.Second
	}

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      cfg.BaseURL,
		probeTimeout: probe,
	}
}

func (c *Client) Configured() bool { return c.baseURL != "" }

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Detections []Detection `json:"detections"`
}

type embedRequest struct {
	Image string     `json:"image"`
	BBox  [4]float64 `json:"bbox"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Detect runs the detector on a full frame.
func (c *Client) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	var resp detectResponse
	if err := c.post(ctx, "/detect", detectRequest{Image: base64.StdEncoding.EncodeToString(image)}, &resp); err != nil {
		return nil, err
	}
	return resp.Detections, nil
}

// Embed computes an embedding for one detected crop. A nil vector with
// a nil error means the crop was unusable, not that anything failed.
func (c *Client) Embed(ctx context.Context, image []byte, bbox [4]float64) ([]float32, error) {
	var resp embedResponse
	req := embedRequest{Image: base64.StdEncoding.EncodeToString(image), BBox: bbox}
	if err := c.post(ctx, "/embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, nil
	}
	return resp.Embedding, nil
}

// EmbedAll computes embeddings aligned with detections. Individual
// failures yield a nil entry instead of aborting the frame.
func (c *Client) EmbedAll(ctx context.Context, image []byte, detections []Detection) ([][]float32, error) {
	out := make([][]float32, len(detections))
	for i, det := range detections {
		vec, err := c.Embed(ctx, image, det.BBox)
		if err != nil {
			if shared.IsUnavailable(err) {
				return nil, err
			}
			continue
		}
		out[i] = vec
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if !c.Configured() {
		return fmt.Errorf("detector base URL not configured: %w", shared.ErrUnavailable)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach detector: %w: %v", shared.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("detector returned %d: %w", resp.StatusCode, shared.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector returned %d: %w", resp.StatusCode, shared.ErrProtocol)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("detector response: %w", shared.ErrProtocol)
	}
	return nil
}

// IsAvailable probes the sidecar health endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
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
