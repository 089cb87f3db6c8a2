package domain

import (
	"slices"
	"time"
)

// Series is the catalog record for a comic or manga series.
type Series struct {
	ID        string `json:"id"`
	LibraryID string `json:"library_id"`
	Name      string `json:"name"`
	Publisher string `json:"publisher,omitempty"`
	StartYear int    `json:"start_year,omitempty"`
	Summary   string `json:"summary,omitempty"`

	// Source and SourceID link the record to its external identity once approved.
	Source   string `json:"source,omitempty"`
	SourceID string `json:"source_id,omitempty"`

	// LockedFields names fields a user edited by hand; source updates skip them.
	LockedFields []string `json:"locked_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Series field names that can be locked.
const (
	SeriesFieldName      = "name"
	SeriesFieldPublisher = "publisher"
	SeriesFieldStartYear = "start_year"
	SeriesFieldSummary   = "summary"
)

// IsLocked reports whether field was pinned by a user.
func (s *Series) IsLocked(field string) bool {
	return slices.Contains(s.LockedFields, field)
}

// SeriesSidecar is the per-folder series.json written after apply.
type SeriesSidecar struct {
	Name      string `json:"name"`
	Publisher string `json:"publisher,omitempty"`
	StartYear int    `json:"start_year,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Source    string `json:"source"`
	SourceID  string `json:"source_id"`
	URL       string `json:"url,omitempty"`
}
