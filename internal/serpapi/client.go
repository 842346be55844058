// Package serpapi implements the rank lookup client against the
// SerpAPI Google search endpoint.
package serpapi

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

	"github.com/seoresearcher/ranktrack/internal/tracker"
)

// DefaultBaseURL is the production search endpoint.
const DefaultBaseURL = "https://serpapi.com/search"

// resultPageSize is the number of organic results requested per lookup.
// A non-nil rank is always within 1..resultPageSize.
const resultPageSize = 100

// ProviderError marks failures of the upstream provider or its
// configuration, as opposed to "domain not ranked".
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("serpapi %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Config controls the Client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client queries SerpAPI for one (keyword, location, device) triple and
// extracts the organic position of a target domain. Lookups are pure:
// persistence belongs to the caller.
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
		cfg.Timeout = 30 * time.Second
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

// searchResponse is the validated slice of the provider payload the
// pipeline relies on; the full schema is owned by the provider.
type searchResponse struct {
	Error          string          `json:"error"`
	OrganicResults []organicResult `json:"organic_results"`
}

// organicResult carries only the link; the rank is the 1-based slice
// index, not the provider's position field.
type organicResult struct {
	Link string `json:"link"`
}

// LookupRank requests up to 100 organic results and returns the 1-based
// position of the first result whose host matches the target domain.
// No match is a nil rank, not an error.
func (c *Client) LookupRank(ctx context.Context, req tracker.RankRequest) (tracker.RankResult, error) {
	if c.cfg.APIKey == "" {
		return tracker.RankResult{}, &ProviderError{Op: "lookup", Err: fmt.Errorf("api key is not configured")}
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", req.Keyword)
	location := req.Location
	if location == "" {
		location = "Japan"
	}
	params.Set("location", location)
	device := req.Device
	if device == "" {
		device = tracker.DeviceDesktop
	}
	params.Set("device", string(device))
	params.Set("num", fmt.Sprintf("%d", resultPageSize))
	params.Set("gl", "jp")
	params.Set("hl", "ja")
	params.Set("api_key", c.cfg.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return tracker.RankResult{}, &ProviderError{Op: "build request", Err: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tracker.RankResult{}, &ProviderError{Op: "do request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tracker.RankResult{}, &ProviderError{Op: "read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return tracker.RankResult{}, &ProviderError{Op: "search", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tracker.RankResult{}, &ProviderError{Op: "decode response", Err: err}
	}
	if parsed.Error != "" {
		return tracker.RankResult{}, &ProviderError{Op: "search", Err: fmt.Errorf("%s", parsed.Error)}
	}

	result := tracker.RankResult{Raw: body}
	for i, item := range parsed.OrganicResults {
		if item.Link == "" {
			continue
		}
		if MatchDomain(item.Link, req.TargetDomain) {
			rank := i + 1
			result.Rank = &rank
			result.URL = item.Link
			break
		}
	}

	if result.Rank == nil {
		c.logger.Debug("target not ranked",
			zap.String("keyword", req.Keyword),
			zap.String("target", req.TargetDomain),
			zap.Int("results", len(parsed.OrganicResults)),
		)
	}
	return result, nil
}

// MatchDomain reports whether a result link and a target identify the
// same site. Hosts are compared case-insensitively after stripping the
// scheme, path and trailing slash; the substring test runs both ways to
// tolerate subdomain variance (www.example.com vs example.com).
func MatchDomain(link, target string) bool {
	l := normalizeHost(link)
	t := normalizeHost(target)
	if l == "" || t == "" {
		return false
	}
	return strings.Contains(l, t) || strings.Contains(t, l)
}

func normalizeHost(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}
