// Package chatwork sends messages to Chatwork rooms.
package chatwork

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Chatwork v2 API root.
const DefaultBaseURL = "https://api.chatwork.com/v2"

// TokenSettingKey is the app_settings key holding the API token.
const TokenSettingKey = "chatwork_api_token"

// Config controls the Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client posts form-encoded messages to room-scoped endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// errorResponse is the failure body shape documented by Chatwork.
type errorResponse struct {
	Errors []string `json:"errors"`
}

// SendMessage posts body to the room. Any 2xx is success. A failure
// body carrying a JSON errors array is surfaced verbatim; otherwise a
// generic status-line error is returned.
func (c *Client) SendMessage(ctx context.Context, token, roomID, body string) error {
	if token == "" {
		return fmt.Errorf("chatwork token is not configured")
	}
	if roomID == "" {
		return fmt.Errorf("chatwork room id is required")
	}

	endpoint := fmt.Sprintf("%s/rooms/%s/messages", c.cfg.BaseURL, url.PathEscape(roomID))
	form := url.Values{}
	form.Set("body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("X-ChatWorkToken", token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, readErr := io.ReadAll(resp.Body)
	if readErr == nil {
		var parsed errorResponse
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil && len(parsed.Errors) > 0 {
			return fmt.Errorf("%s", strings.Join(parsed.Errors, "; "))
		}
	}
	c.logger.Warn("chatwork delivery failed",
		zap.String("room_id", roomID),
		zap.Int("status", resp.StatusCode),
	)
	return fmt.Errorf("API Error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
