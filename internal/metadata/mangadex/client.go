// Package mangadex provides a client for the MangaDex API. MangaDex has no
// per-issue index usable for matching, so files are matched by volume or chapter.
package mangadex

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

// SourceName identifies MangaDex in sessions and caches.
const SourceName = "mangadex"

const (
	// MangaDex allows about five requests per second per client.
	defaultRPS   = 5.0
	defaultBurst = 5

	defaultTimeout = 30 * time.Second
	defaultBaseURL = "https://api.mangadex.org"
	siteURL        = "https://mangadex.org/title/"

	maxSearchLimit = 100
)

// Config configures the client.
type Config struct {
	BaseURL string

	// RequestsPerSecond overrides the default pacing when positive.
	RequestsPerSecond float64
}

// Client is a rate-limited MangaDex API client.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	baseURL string
	logger  *slog.Logger
}

var _ metadata.Provider = (*Client)(nil)

// New creates a new MangaDex client.
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
		baseURL: base,
		logger:  logger.OrDiscard(log),
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Source describes MangaDex.
func (c *Client) Source() domain.MetadataSource {
	return domain.MetadataSource{Name: SourceName, ProvidesIssueIndex: false}
}

// doRequest executes an HTTP request with rate limiting.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, SourceName); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Inkwell/1.0")

	c.logger.Debug("mangadex request", "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, metadata.ErrNotFound
	case http.StatusTooManyRequests:
		return nil, metadata.ErrRateLimited
	case http.StatusBadRequest:
		return nil, metadata.ErrBadRequest
	default:
		if resp.StatusCode >= 500 {
			return nil, metadata.ErrServer
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// Raw API response types (internal)

type localized map[string]string

// pick prefers English, then romanized Japanese, then anything.
func (l localized) pick() string {
	for _, lang := range []string{"en", "ja-ro", "ja"} {
		if v := strings.TrimSpace(l[lang]); v != "" {
			return v
		}
	}
	for _, v := range l {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type rawTag struct {
	Attributes struct {
		Name  localized `json:"name"`
		Group string    `json:"group"`
	} `json:"attributes"`
}

type rawRelationship struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes *struct {
		Name     string `json:"name"`
		FileName string `json:"fileName"`
	} `json:"attributes"`
}

type rawManga struct {
	ID         string `json:"id"`
	Attributes struct {
		Title            localized   `json:"title"`
		AltTitles        []localized `json:"altTitles"`
		Description      localized   `json:"description"`
		OriginalLanguage string      `json:"originalLanguage"`
		Year             *int        `json:"year"`
		ContentRating    string      `json:"contentRating"`
		LastVolume       string      `json:"lastVolume"`
		LastChapter      string      `json:"lastChapter"`
		Tags             []rawTag    `json:"tags"`
	} `json:"attributes"`
	Relationships []rawRelationship `json:"relationships"`
}

type rawCollection struct {
	Result string     `json:"result"`
	Data   []rawManga `json:"data"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	Total  int        `json:"total"`
}

type rawEntity struct {
	Result string   `json:"result"`
	Data   rawManga `json:"data"`
}

func parseJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
