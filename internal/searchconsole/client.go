// Package searchconsole fetches search-analytics rows from the Google
// Search Console API on behalf of a caller-held OAuth token.
package searchconsole

import (
	"bytes"
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

// DefaultBaseURL is the webmasters v3 API root.
const DefaultBaseURL = "https://www.googleapis.com/webmasters/v3"

// Config controls the Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues searchAnalytics/query requests.
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

// Row is one per-date analytics data point.
type Row struct {
	Date        string  `json:"date"`
	Clicks      float64 `json:"clicks"`
	Impressions float64 `json:"impressions"`
}

type queryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
}

type queryResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
	} `json:"rows"`
}

// QueryAnalytics fetches clicks/impressions by date for the trailing
// window of days.
//
// The API is picky about site identifiers: URL-prefix properties
// usually require a trailing slash, so one is appended to bare URLs
// (never to sc-domain: properties). If that form is rejected with 403
// or 404 the request is retried once without the slash. Callers of
// other path-sensitive site-identifier APIs should copy this fallback.
func (c *Client) QueryAnalytics(ctx context.Context, token, siteURL string, days int) ([]Row, error) {
	if token == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if siteURL == "" {
		return nil, fmt.Errorf("site url is required")
	}
	if days <= 0 {
		days = 30
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	payload := queryRequest{
		StartDate:  start.Format("2006-01-02"),
		EndDate:    end.Format("2006-01-02"),
		Dimensions: []string{"date"},
	}

	normalized := siteURL
	if !strings.HasPrefix(normalized, "sc-domain:") && !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}

	resp, err := c.query(ctx, token, normalized, payload)
	if err != nil {
		return nil, err
	}

	if (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound) && strings.HasSuffix(normalized, "/") {
		fallback := strings.TrimSuffix(normalized, "/")
		c.logger.Info("retrying search analytics with fallback site url",
			zap.String("site_url", fallback),
			zap.Int("status", resp.StatusCode),
		)
		drain(resp)
		retryResp, retryErr := c.query(ctx, token, fallback, payload)
		if retryErr != nil {
			return nil, retryErr
		}
		if retryResp.StatusCode == http.StatusOK {
			resp = retryResp
		} else {
			drain(retryResp)
			// Keep reporting the original status; the fallback did not help.
			return nil, statusError(resp.StatusCode, normalized)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, normalized)
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	rows := make([]Row, 0, len(parsed.Rows))
	for _, r := range parsed.Rows {
		if len(r.Keys) == 0 {
			continue
		}
		rows = append(rows, Row{Date: r.Keys[0], Clicks: r.Clicks, Impressions: r.Impressions})
	}
	return rows, nil
}

func (c *Client) query(ctx context.Context, token, siteURL string, payload queryRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	endpoint := fmt.Sprintf("%s/sites/%s/searchAnalytics/query", c.cfg.BaseURL, url.PathEscape(siteURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func statusError(status int, siteURL string) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("access token expired or invalid")
	case http.StatusForbidden:
		return fmt.Errorf("no search console access to %s", siteURL)
	case http.StatusNotFound:
		return fmt.Errorf("site %s not found in search console", siteURL)
	default:
		return fmt.Errorf("search console api error: status %d", status)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
