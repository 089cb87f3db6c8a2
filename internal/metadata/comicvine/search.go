package comicvine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/metadata"
)

// SearchSeries searches Comic Vine volumes.
func (c *Client) SearchSeries(ctx context.Context, query string, limit, offset int) ([]domain.SeriesMatch, bool, error) {
	if strings.TrimSpace(query) == "" {
		return nil, false, metadata.WrapError("search", SourceName, "", metadata.ErrBadRequest)
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("resources", "volume")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("page", strconv.Itoa(offset/limit+1))
	q.Set("field_list", "id,name,aliases,start_year,count_of_issues,deck,publisher,image,site_detail_url")

	env, err := c.doRequest(ctx, "/search/", q)
	if err != nil {
		return nil, false, metadata.WrapError("search", SourceName, "", err)
	}

	var raw []rawVolume
	if err := json.Unmarshal(env.Results, &raw); err != nil {
		return nil, false, metadata.WrapError("search", SourceName, "", fmt.Errorf("parse response: %w", err))
	}

	matches := make([]domain.SeriesMatch, 0, len(raw))
	for i := range raw {
		matches = append(matches, volumeToMatch(&raw[i]))
	}

	hasMore := env.NumberOfTotalResults > offset+len(raw)
	return matches, hasMore, nil
}

func volumeToMatch(v *rawVolume) domain.SeriesMatch {
	m := domain.SeriesMatch{
		Source:      SourceName,
		SourceID:    strconv.Itoa(v.ID),
		Name:        strings.TrimSpace(v.Name),
		IssueCount:  v.CountOfIssues,
		Description: metadata.CleanDescription(v.Deck),
		CoverURL:    selectImageURL(v.Image),
		URL:         v.SiteDetailURL,
		Aliases:     splitAliases(v.Aliases),
	}
	if v.Publisher != nil {
		m.Publisher = v.Publisher.Name
	}
	if year, err := strconv.Atoi(strings.TrimSpace(v.StartYear)); err == nil {
		m.StartYear = year
	}
	return m
}

// splitAliases parses Comic Vine's newline-separated alias list.
func splitAliases(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func selectImageURL(img rawImage) string {
	if img.OriginalURL != "" {
		return img.OriginalURL
	}
	return img.MediumURL
}
