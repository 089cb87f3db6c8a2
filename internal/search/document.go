// Package search provides full-text search over the comic catalog using Bleve.
// Files and series share one index and are told apart by document type.
package search

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// DocType represents the type of document in the unified index.
type DocType string

// Document types for the search index.
const (
	DocTypeFile   DocType = "file"
	DocTypeSeries DocType = "series"
)

// SearchDocument is the unified document structure for the Bleve index.
// Series names and credits are denormalized into file documents so one
// query covers both.
type SearchDocument struct {
	ID        string  `json:"id"`
	Type      DocType `json:"type"`
	LibraryID string  `json:"library_id"`

	// Name is the filename for files and the series name for series.
	Name string `json:"name"`

	SeriesName string `json:"series_name,omitempty"`
	Title      string `json:"title,omitempty"`
	Number     string `json:"number,omitempty"`
	Publisher  string `json:"publisher,omitempty"`
	Writer     string `json:"writer,omitempty"`
	Artist     string `json:"artist,omitempty"`
	Summary    string `json:"summary,omitempty"`

	Year int `json:"year,omitempty"`

	UpdatedAt int64 `json:"updated_at"` // Unix millis
}

// ToMap converts the document to a map with lowercase field names matching
// the index mapping.
func (d *SearchDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"type":       string(d.Type),
		"library_id": d.LibraryID,
		"name":       d.Name,
		"updated_at": d.UpdatedAt,
	}

	optional := map[string]string{
		"series_name": d.SeriesName,
		"title":       d.Title,
		"number":      d.Number,
		"publisher":   d.Publisher,
		"writer":      d.Writer,
		"artist":      d.Artist,
		"summary":     d.Summary,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	if d.Year > 0 {
		m["year"] = d.Year
	}
	return m
}

// FileToSearchDocument builds a document for a comic file and its embedded metadata.
// md may be nil for files that have not been tagged yet.
func FileToSearchDocument(f *domain.ComicFile, md *domain.ComicMetadata) *SearchDocument {
	doc := &SearchDocument{
		ID:        f.ID,
		Type:      DocTypeFile,
		LibraryID: f.LibraryID,
		Name:      strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path)),
		UpdatedAt: f.UpdatedAt.UnixMilli(),
	}
	if md == nil {
		return doc
	}

	doc.SeriesName = md.Series
	doc.Title = md.Title
	doc.Number = md.Number
	doc.Publisher = md.Publisher
	doc.Writer = md.Writer
	doc.Artist = joinNonEmpty(md.Penciller, md.Inker, md.CoverArtist)
	doc.Summary = md.Summary
	if y, err := strconv.Atoi(md.Year); err == nil {
		doc.Year = y
	}
	return doc
}

// SeriesToSearchDocument builds a document for a catalog series.
func SeriesToSearchDocument(sr *domain.Series) *SearchDocument {
	return &SearchDocument{
		ID:         sr.ID,
		Type:       DocTypeSeries,
		LibraryID:  sr.LibraryID,
		Name:       sr.Name,
		SeriesName: sr.Name,
		Publisher:  sr.Publisher,
		Summary:    sr.Summary,
		Year:       sr.StartYear,
		UpdatedAt:  sr.UpdatedAt.UnixMilli(),
	}
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
