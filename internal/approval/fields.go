package approval

import (
	"strconv"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/genre"
)

// diffFields proposes every non-empty value that differs from what the
// archive holds. Proposals start approved.
func diffFields(current, proposed *domain.ComicMetadata) map[string]domain.FieldChange {
	out := make(map[string]domain.FieldChange)
	for name, value := range proposed.Values() {
		cur := current.Get(name)
		if cur == value {
			continue
		}
		out[name] = domain.FieldChange{
			Current:  cur,
			Proposed: value,
			Approved: true,
		}
	}
	return out
}

// seriesMetadata is the series-level part of every proposal.
func seriesMetadata(d *domain.SeriesDetail) domain.ComicMetadata {
	md := domain.ComicMetadata{
		Series:      d.Name,
		Publisher:   d.Publisher,
		Web:         d.URL,
		Genre:       strings.Join(genre.Normalize(d.Genres), ", "),
		LanguageISO: d.LanguageISO,
		AgeRating:   d.AgeRating,
	}
	if d.IssueCount > 0 {
		md.Count = strconv.Itoa(d.IssueCount)
	}
	if d.Manga {
		md.Manga = "Yes"
	}
	applyCredits(&md, d.Credits)
	return md
}

// applyIssue overlays issue-level values. Issue credits replace series credits.
func applyIssue(md *domain.ComicMetadata, issue domain.Issue) {
	md.Number = issue.Number
	md.Title = issue.Title
	md.Summary = issue.Summary
	md.StoryArc = issue.StoryArc
	md.Characters = strings.Join(issue.Characters, ", ")
	if issue.URL != "" {
		md.Web = issue.URL
	}
	md.Year, md.Month, md.Day = splitDate(issue.CoverDate)
	applyCredits(md, issue.Credits)
}

// splitDate splits "2011-09-28", "2011-09" or "2011" into unpadded parts.
func splitDate(date string) (year, month, day string) {
	parts := strings.SplitN(date, "-", 3)
	out := make([]string, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			break
		}
		out[i] = strconv.Itoa(n)
	}
	return out[0], out[1], out[2]
}

var roleFields = map[string]string{
	domain.RoleWriter:      domain.FieldWriter,
	domain.RolePenciller:   domain.FieldPenciller,
	domain.RoleArtist:      domain.FieldPenciller,
	domain.RoleInker:       domain.FieldInker,
	domain.RoleColorist:    domain.FieldColorist,
	domain.RoleLetterer:    domain.FieldLetterer,
	domain.RoleCoverArtist: domain.FieldCoverArtist,
	domain.RoleEditor:      domain.FieldEditor,
}

// applyCredits writes credits into their ComicInfo fields, one
// comma-separated list per field. Roles without credits keep their value.
func applyCredits(md *domain.ComicMetadata, credits []domain.Credit) {
	names := make(map[string][]string)
	seen := make(map[string]bool)
	for _, c := range credits {
		field, ok := roleFields[strings.ToLower(c.Role)]
		if !ok || c.Name == "" {
			continue
		}
		key := field + "\x00" + c.Name
		if seen[key] {
			continue
		}
		seen[key] = true
		names[field] = append(names[field], c.Name)
	}
	for field, list := range names {
		md.Set(field, strings.Join(list, ", "))
	}
}
