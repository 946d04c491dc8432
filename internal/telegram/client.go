package telegram

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
	"time"
)

const defaultAPIBaseURL = "https://api.telegram.org"

// Client is the raw bot API transport shared by the notifier and the
// command loop. It does not swallow errors; best-effort semantics live
// one layer up in the notifier.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	chatID      string
	pollTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	base := cfg.APIBaseURL
	if base == "" {
		base = defaultAPIBaseURL
	}
	poll := cfg.PollTimeout
	if poll == 0 {
		poll = 30 * time.Second
	}

	return &Client{
		// The HTTP timeout must outlast the long-poll window.
		httpClient:  &http.Client{Timeout: poll + 5*time.Second},
		baseURL:     base,
		token:       cfg.Token,
		chatID:      cfg.ChatID,
		pollTimeout: poll,
	}
}

// Configured reports whether both credentials are present. Their absence
// is a normal disabled state, not an error.
func (c *Client) Configured() bool {
	return c.token != "" && c.chatID != ""
}

func (c *Client) ChatID() string { return c.chatID }

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// GetUpdates long-polls for messages after offset. A zero offset asks
// for everything the API still retains.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(int(c.pollTimeout.Seconds())))
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getUpdates")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("getUpdates decode: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("getUpdates: %s", parsed.Description)
	}

	var updates []Update
	if err := json.Unmarshal(parsed.Result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates result: %w", err)
	}
	return updates, nil
}

// SendMessage delivers plain text to the configured chat.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": c.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "sendMessage")
}

// SendPhoto uploads photo bytes with a caption to the configured chat.
func (c *Client) SendPhoto(ctx context.Context, photo []byte, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", c.chatID); err != nil {
		return err
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("photo", "snapshot.jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(photo); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, "sendPhoto")
}

func (c *Client) do(req *http.Request, method string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, body)
	}
	return nil
}
