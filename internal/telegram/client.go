package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

const defaultBaseURL = "https://api.telegram.org"

// Client applies wallpapers through the Telegram Bot API by setting the chat
// photo. The bot must be an administrator of the target chat.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// ApplyWallpaper uploads the image and sets it as the chat photo. It fails
// loudly; retry policy is the caller's concern.
func (c *Client) ApplyWallpaper(ctx context.Context, chat, path string) error {
	if c.token == "" {
		return fmt.Errorf("telegram bot token is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open wallpaper file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", chat); err != nil {
		return fmt.Errorf("telegram request body: %w", err)
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("telegram request body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("read wallpaper file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("telegram request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/setChatPhoto", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("telegram decode: %w", err)
	}
	if !payload.OK {
		return fmt.Errorf("telegram rejected wallpaper: %s", payload.Description)
	}

	log.Printf("telegram: wallpaper applied to %s (%s)", chat, filepath.Base(path))
	return nil
}

// Close releases the client's idle connections. Safe to call repeatedly and
// on a client that never connected.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
