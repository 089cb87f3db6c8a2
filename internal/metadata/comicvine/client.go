// Package comicvine provides a client for the Comic Vine API, the western
// comics source with a per-issue index.
package comicvine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/metadata"
	"github.com/inkwellapp/inkwell-server/internal/ratelimit"
)

// SourceName identifies Comic Vine in sessions and caches.
const SourceName = "comicvine"

const (
	// Comic Vine throttles bursts per resource; one request per second stays clear.
	defaultRPS   = 1.0
	defaultBurst = 2

	defaultTimeout = 30 * time.Second
	defaultBaseURL = "https://comicvine.gamespot.com/api"

	issuesPageSize = 100
	maxSearchLimit = 100
	maxIssuePages  = 50
)

// Comic Vine reports failures in the body with HTTP 200.
const (
	statusOK           = 1
	statusInvalidKey   = 100
	statusNotFound     = 101
	statusFilterError  = 104
	statusRateExceeded = 107
)

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string

	// RequestsPerSecond overrides the default pacing when positive.
	RequestsPerSecond float64
}

// Client is a rate-limited Comic Vine API client.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

var _ metadata.Provider = (*Client)(nil)

// New creates a new Comic Vine client.
func New(cfg Config, log *slog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	return &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: ratelimit.New(rps, defaultBurst),
		apiKey:  cfg.APIKey,
		baseURL: base,
		logger:  logger.OrDiscard(log),
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Source describes Comic Vine.
func (c *Client) Source() domain.MetadataSource {
	return domain.MetadataSource{Name: SourceName, ProvidesIssueIndex: true}
}

// envelope is the common Comic Vine response wrapper.
type envelope struct {
	Error                string          `json:"error"`
	StatusCode           int             `json:"status_code"`
	NumberOfTotalResults int             `json:"number_of_total_results"`
	NumberOfPageResults  int             `json:"number_of_page_results"`
	Offset               int             `json:"offset"`
	Limit                int             `json:"limit"`
	Results              json.RawMessage `json:"results"`
}

// doRequest executes an API call with rate limiting and decodes the envelope.
// path is relative to the base URL and must end with a slash.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) (*envelope, error) {
	if c.apiKey == "" {
		return nil, metadata.ErrUnauthorized
	}

	if err := c.limiter.Wait(ctx, SourceName); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Inkwell/1.0")

	c.logger.Debug("comicvine request", "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, metadata.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 420:
		return nil, metadata.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, metadata.ErrUnauthorized
	case resp.StatusCode == http.StatusBadRequest:
		return nil, metadata.ErrBadRequest
	case resp.StatusCode >= 500:
		return nil, metadata.ErrServer
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	switch env.StatusCode {
	case statusOK:
		return &env, nil
	case statusInvalidKey:
		return nil, metadata.ErrUnauthorized
	case statusNotFound:
		return nil, metadata.ErrNotFound
	case statusFilterError:
		return nil, metadata.ErrBadRequest
	case statusRateExceeded:
		return nil, metadata.ErrRateLimited
	default:
		return nil, fmt.Errorf("comicvine status %d: %s", env.StatusCode, env.Error)
	}
}

// Raw API response types (internal)

type rawImage struct {
	OriginalURL string `json:"original_url"`
	MediumURL   string `json:"medium_url"`
}

type rawRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type rawVolume struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	Aliases       string   `json:"aliases"`
	StartYear     string   `json:"start_year"`
	CountOfIssues int      `json:"count_of_issues"`
	Deck          string   `json:"deck"`
	Description   string   `json:"description"`
	Publisher     *rawRef  `json:"publisher"`
	Image         rawImage `json:"image"`
	SiteDetailURL string   `json:"site_detail_url"`
	People        []rawRef `json:"people"`
}

type rawPersonCredit struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type rawIssue struct {
	ID               int               `json:"id"`
	IssueNumber      string            `json:"issue_number"`
	Name             string            `json:"name"`
	CoverDate        string            `json:"cover_date"`
	Description      string            `json:"description"`
	SiteDetailURL    string            `json:"site_detail_url"`
	Volume           rawRef            `json:"volume"`
	PersonCredits    []rawPersonCredit `json:"person_credits"`
	CharacterCredits []rawRef          `json:"character_credits"`
	StoryArcCredits  []rawRef          `json:"story_arc_credits"`
}
