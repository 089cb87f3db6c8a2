package domain

import "time"

// MetadataSource describes an external bibliographic source.
//
// ProvidesIssueIndex is true for sources that publish a per-issue listing
// (western comics). Sources without one (manga) are matched by volume or
// chapter number against series-level metadata only.
type MetadataSource struct {
	Name               string `json:"name"`
	ProvidesIssueIndex bool   `json:"provides_issue_index"`
}

// SeriesMatch is one ranked candidate returned by a series search.
type SeriesMatch struct {
	Source      string   `json:"source"`
	SourceID    string   `json:"source_id"`
	Name        string   `json:"name"`
	Publisher   string   `json:"publisher,omitempty"`
	StartYear   int      `json:"start_year,omitempty"`
	IssueCount  int      `json:"issue_count,omitempty"`
	Description string   `json:"description,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	URL         string   `json:"url,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// Key identifies the match across sources.
func (m SeriesMatch) Key() string {
	return m.Source + ":" + m.SourceID
}

// Credit is one contributor role on an issue or series.
type Credit struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Credit roles, normalized across sources.
const (
	RoleWriter      = "writer"
	RolePenciller   = "penciller"
	RoleInker       = "inker"
	RoleColorist    = "colorist"
	RoleLetterer    = "letterer"
	RoleCoverArtist = "cover"
	RoleEditor      = "editor"
	RoleArtist      = "artist"
)

// SeriesDetail is the full series-level record fetched after approval.
type SeriesDetail struct {
	SeriesMatch
	Credits     []Credit `json:"credits,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	LanguageISO string   `json:"language_iso,omitempty"`
	AgeRating   string   `json:"age_rating,omitempty"`
	Manga       bool     `json:"manga,omitempty"`
}

// Issue is a single issue (western) as listed by a source with an issue index.
type Issue struct {
	Source     string   `json:"source"`
	SourceID   string   `json:"source_id"`
	SeriesID   string   `json:"series_id"`
	Number     string   `json:"number"`
	Title      string   `json:"title,omitempty"`
	CoverDate  string   `json:"cover_date,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	URL        string   `json:"url,omitempty"`
	StoryArc   string   `json:"story_arc,omitempty"`
	Characters []string `json:"characters,omitempty"`
	Credits    []Credit `json:"credits,omitempty"`
}

// HasCredits reports whether contributor data is already present.
func (i *Issue) HasCredits() bool {
	return len(i.Credits) > 0
}

// IssueList is the cached issue index of one series.
type IssueList struct {
	Source    string    `json:"source"`
	SeriesID  string    `json:"series_id"`
	Issues    []Issue   `json:"issues"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SearchOptions tunes a series search.
type SearchOptions struct {
	Limit       int         `json:"limit"`
	Offset      int         `json:"offset"`
	Year        int         `json:"year,omitempty"`
	Sources     []string    `json:"sources,omitempty"`
	LibraryType LibraryType `json:"library_type,omitempty"`
}

// Pagination tracks incremental paging of search results.
type Pagination struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// SeriesSearchResult is one page of ranked candidates.
type SeriesSearchResult struct {
	Series     []SeriesMatch `json:"series"`
	Pagination Pagination    `json:"pagination"`
}
