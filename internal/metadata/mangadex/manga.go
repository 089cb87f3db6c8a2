package mangadex

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/metadata"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// SearchSeries searches manga titles.
func (c *Client) SearchSeries(ctx context.Context, query string, limit, offset int) ([]domain.SeriesMatch, bool, error) {
	if strings.TrimSpace(query) == "" {
		return nil, false, metadata.WrapError("search", SourceName, "", metadata.ErrBadRequest)
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	q := url.Values{}
	q.Set("title", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(max(offset, 0)))
	q.Add("includes[]", "author")
	q.Add("includes[]", "cover_art")
	q.Set("order[relevance]", "desc")

	body, err := c.doRequest(ctx, "/manga", q)
	if err != nil {
		return nil, false, metadata.WrapError("search", SourceName, "", err)
	}

	var resp rawCollection
	if err := parseJSON(body, &resp); err != nil {
		return nil, false, metadata.WrapError("search", SourceName, "", err)
	}

	matches := make([]domain.SeriesMatch, 0, len(resp.Data))
	for i := range resp.Data {
		matches = append(matches, mangaToMatch(&resp.Data[i]))
	}
	return matches, resp.Total > resp.Offset+len(resp.Data), nil
}

// GetSeries retrieves a manga with its author and artist relationships.
func (c *Client) GetSeries(ctx context.Context, id string) (*domain.SeriesDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, metadata.WrapError("getSeries", SourceName, id, metadata.ErrBadRequest)
	}

	q := url.Values{}
	q.Add("includes[]", "author")
	q.Add("includes[]", "artist")
	q.Add("includes[]", "cover_art")

	body, err := c.doRequest(ctx, "/manga/"+url.PathEscape(id), q)
	if err != nil {
		return nil, metadata.WrapError("getSeries", SourceName, id, err)
	}

	var resp rawEntity
	if err := parseJSON(body, &resp); err != nil {
		return nil, metadata.WrapError("getSeries", SourceName, id, err)
	}

	m := &resp.Data
	detail := &domain.SeriesDetail{
		SeriesMatch: mangaToMatch(m),
		LanguageISO: normalize.LanguageCode(m.Attributes.OriginalLanguage),
		AgeRating:   ageRating(m.Attributes.ContentRating),
		Manga:       true,
	}
	for _, rel := range m.Relationships {
		if rel.Attributes == nil || rel.Attributes.Name == "" {
			continue
		}
		switch rel.Type {
		case "author":
			detail.Credits = append(detail.Credits, domain.Credit{Name: rel.Attributes.Name, Role: domain.RoleWriter})
		case "artist":
			detail.Credits = append(detail.Credits, domain.Credit{Name: rel.Attributes.Name, Role: domain.RoleArtist})
		}
	}
	for _, tag := range m.Attributes.Tags {
		if tag.Attributes.Group == "genre" {
			if name := tag.Attributes.Name.pick(); name != "" {
				detail.Genres = append(detail.Genres, name)
			}
		}
	}
	return detail, nil
}

// ListIssues is unsupported: MangaDex chapter feeds are per scanlation group
// and do not map onto archive files.
func (c *Client) ListIssues(_ context.Context, seriesID string) ([]domain.Issue, error) {
	return nil, metadata.WrapError("listIssues", SourceName, seriesID, metadata.ErrNoIssueIndex)
}

// GetIssue is unsupported for the same reason as ListIssues.
func (c *Client) GetIssue(_ context.Context, issueID string) (*domain.Issue, error) {
	return nil, metadata.WrapError("getIssue", SourceName, issueID, metadata.ErrNoIssueIndex)
}

func mangaToMatch(m *rawManga) domain.SeriesMatch {
	match := domain.SeriesMatch{
		Source:      SourceName,
		SourceID:    m.ID,
		Name:        m.Attributes.Title.pick(),
		Description: metadata.CleanDescription(m.Attributes.Description.pick()),
		URL:         siteURL + m.ID,
	}
	if m.Attributes.Year != nil {
		match.StartYear = *m.Attributes.Year
	}
	if n, err := strconv.Atoi(m.Attributes.LastVolume); err == nil {
		match.IssueCount = n
	}
	for _, alt := range m.Attributes.AltTitles {
		if v := alt.pick(); v != "" && v != match.Name {
			match.Aliases = append(match.Aliases, v)
		}
	}
	for _, rel := range m.Relationships {
		if rel.Type == "cover_art" && rel.Attributes != nil && rel.Attributes.FileName != "" {
			match.CoverURL = "https://uploads.mangadex.org/covers/" + m.ID + "/" + rel.Attributes.FileName
		}
	}
	return match
}

func ageRating(contentRating string) string {
	switch contentRating {
	case "safe":
		return "Everyone"
	case "suggestive":
		return "Teen"
	case "erotica":
		return "Mature 17+"
	case "pornographic":
		return "Adults Only 18+"
	default:
		return ""
	}
}
