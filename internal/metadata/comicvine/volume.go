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

// GetSeries retrieves a volume by id.
func (c *Client) GetSeries(ctx context.Context, id string) (*domain.SeriesDetail, error) {
	if !validID(id) {
		return nil, metadata.WrapError("getSeries", SourceName, id, metadata.ErrBadRequest)
	}

	q := url.Values{}
	q.Set("field_list", "id,name,aliases,start_year,count_of_issues,deck,description,publisher,image,site_detail_url")

	env, err := c.doRequest(ctx, "/volume/4050-"+id+"/", q)
	if err != nil {
		return nil, metadata.WrapError("getSeries", SourceName, id, err)
	}

	var raw rawVolume
	if err := json.Unmarshal(env.Results, &raw); err != nil {
		return nil, metadata.WrapError("getSeries", SourceName, id, fmt.Errorf("parse response: %w", err))
	}

	detail := &domain.SeriesDetail{SeriesMatch: volumeToMatch(&raw)}
	if desc := metadata.CleanDescription(raw.Description); desc != "" {
		detail.Description = desc
	}
	detail.LanguageISO = "en"
	return detail, nil
}

// ListIssues pages through every issue of a volume. Bulk listings carry no credits.
func (c *Client) ListIssues(ctx context.Context, seriesID string) ([]domain.Issue, error) {
	if !validID(seriesID) {
		return nil, metadata.WrapError("listIssues", SourceName, seriesID, metadata.ErrBadRequest)
	}

	var issues []domain.Issue
	for page := 0; page < maxIssuePages; page++ {
		q := url.Values{}
		q.Set("filter", "volume:"+seriesID)
		q.Set("sort", "cover_date:asc")
		q.Set("limit", strconv.Itoa(issuesPageSize))
		q.Set("offset", strconv.Itoa(page*issuesPageSize))
		q.Set("field_list", "id,issue_number,name,cover_date,description,site_detail_url,volume")

		env, err := c.doRequest(ctx, "/issues/", q)
		if err != nil {
			return nil, metadata.WrapError("listIssues", SourceName, seriesID, err)
		}

		var raw []rawIssue
		if err := json.Unmarshal(env.Results, &raw); err != nil {
			return nil, metadata.WrapError("listIssues", SourceName, seriesID, fmt.Errorf("parse response: %w", err))
		}
		for i := range raw {
			issues = append(issues, issueToDomain(&raw[i], seriesID))
		}

		if len(raw) < issuesPageSize || len(issues) >= env.NumberOfTotalResults {
			break
		}
	}

	c.logger.Debug("comicvine issues listed", "volume", seriesID, "count", len(issues))
	return issues, nil
}

// GetIssue retrieves one issue including person credits.
func (c *Client) GetIssue(ctx context.Context, issueID string) (*domain.Issue, error) {
	if !validID(issueID) {
		return nil, metadata.WrapError("getIssue", SourceName, issueID, metadata.ErrBadRequest)
	}

	q := url.Values{}
	q.Set("field_list", "id,issue_number,name,cover_date,description,site_detail_url,volume,person_credits,character_credits,story_arc_credits")

	env, err := c.doRequest(ctx, "/issue/4000-"+issueID+"/", q)
	if err != nil {
		return nil, metadata.WrapError("getIssue", SourceName, issueID, err)
	}

	var raw rawIssue
	if err := json.Unmarshal(env.Results, &raw); err != nil {
		return nil, metadata.WrapError("getIssue", SourceName, issueID, fmt.Errorf("parse response: %w", err))
	}

	issue := issueToDomain(&raw, strconv.Itoa(raw.Volume.ID))
	return &issue, nil
}

func issueToDomain(r *rawIssue, seriesID string) domain.Issue {
	issue := domain.Issue{
		Source:    SourceName,
		SourceID:  strconv.Itoa(r.ID),
		SeriesID:  seriesID,
		Number:    strings.TrimSpace(r.IssueNumber),
		Title:     strings.TrimSpace(r.Name),
		CoverDate: r.CoverDate,
		Summary:   metadata.PlainText(r.Description),
		URL:       r.SiteDetailURL,
		Credits:   parseCredits(r.PersonCredits),
	}
	for _, ch := range r.CharacterCredits {
		issue.Characters = append(issue.Characters, ch.Name)
	}
	if len(r.StoryArcCredits) > 0 {
		issue.StoryArc = r.StoryArcCredits[0].Name
	}
	return issue
}

// parseCredits splits Comic Vine's comma-separated roles ("writer, cover")
// into one credit per role.
func parseCredits(raw []rawPersonCredit) []domain.Credit {
	var credits []domain.Credit
	for _, p := range raw {
		for _, role := range strings.Split(p.Role, ",") {
			role = normalizeRole(role)
			if role == "" {
				continue
			}
			credits = append(credits, domain.Credit{Name: p.Name, Role: role})
		}
	}
	return credits
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "writer", "plotter", "scripter":
		return domain.RoleWriter
	case "penciler", "penciller", "breakdowns":
		return domain.RolePenciller
	case "inker", "finishes":
		return domain.RoleInker
	case "colorist", "colourist", "colors":
		return domain.RoleColorist
	case "letterer":
		return domain.RoleLetterer
	case "cover", "cover artist":
		return domain.RoleCoverArtist
	case "editor", "editor in chief", "assistant editor":
		return domain.RoleEditor
	case "artist":
		return domain.RoleArtist
	default:
		return ""
	}
}

func validID(id string) bool {
	if id == "" {
		return false
	}
	_, err := strconv.Atoi(id)
	return err == nil
}
