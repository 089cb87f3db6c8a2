package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// LibraryType tells the pipeline which metadata sources to prefer and which
// rename template to fall back to.
type LibraryType string

const (
	LibraryTypeWestern LibraryType = "western"
	LibraryTypeManga   LibraryType = "manga"
	LibraryTypeMixed   LibraryType = "mixed"
)

// Valid reports whether t is a known library type.
func (t LibraryType) Valid() bool {
	switch t {
	case LibraryTypeWestern, LibraryTypeManga, LibraryTypeMixed:
		return true
	default:
		return false
	}
}

// Library is a comic collection rooted at a filesystem path.
type Library struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     LibraryType `json:"type"`
	RootPath string      `json:"root_path"`

	// RenameTemplate overrides the per-type default when non-empty.
	RenameTemplate string `json:"rename_template,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComicFile is one indexed archive in a library.
type ComicFile struct {
	ID        string `json:"id"`
	LibraryID string `json:"library_id"`
	SeriesID  string `json:"series_id,omitempty"`
	Path      string `json:"path"`
	PageCount int    `json:"page_count"`
	Size      int64  `json:"size"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filename returns the base name of the file.
func (f *ComicFile) Filename() string {
	return filepath.Base(f.Path)
}

// Dir returns the folder containing the file.
func (f *ComicFile) Dir() string {
	return filepath.Dir(f.Path)
}

// Ext returns the lowercased extension including the dot.
func (f *ComicFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Path))
}
