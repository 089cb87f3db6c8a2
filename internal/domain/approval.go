package domain

import (
	"maps"
	"slices"
	"time"
)

// SessionStatus is the phase an approval session is in.
type SessionStatus string

const (
	SessionStatusSeriesApproval SessionStatus = "series_approval"
	SessionStatusFetchingIssues SessionStatus = "fetching_issues"
	SessionStatusFileReview     SessionStatus = "file_review"
	SessionStatusApplying       SessionStatus = "applying"
	SessionStatusComplete       SessionStatus = "complete"
	SessionStatusError          SessionStatus = "error"
)

// GroupStatus is the decision state of one series group.
type GroupStatus string

const (
	GroupStatusPending   GroupStatus = "pending"
	GroupStatusSearching GroupStatus = "searching"
	GroupStatusApproved  GroupStatus = "approved"
	GroupStatusSkipped   GroupStatus = "skipped"
)

// FileChangeStatus is the review outcome of one file.
type FileChangeStatus string

const (
	FileChangeMatched   FileChangeStatus = "matched"
	FileChangeUnmatched FileChangeStatus = "unmatched"
	FileChangeManual    FileChangeStatus = "manual"
	FileChangeRejected  FileChangeStatus = "rejected"
)

// ApprovalSession is the root aggregate of one metadata approval workflow.
// Stages receive a copy, mutate it, and write it back as a unit.
type ApprovalSession struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	LibraryID   string        `json:"library_id"`
	LibraryType LibraryType   `json:"library_type"`

	SeriesGroups       []*SeriesGroup `json:"series_groups"`
	CurrentSeriesIndex int            `json:"current_series_index"`

	// FileChanges is keyed by file id and populated by file review.
	FileChanges map[string]*FileChange `json:"file_changes"`

	ApplyResult *ApplyResult `json:"apply_result,omitempty"`
	Error       string       `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SeriesGroup is a cluster of files believed to share one series.
type SeriesGroup struct {
	DisplayName string   `json:"display_name"`
	Query       string   `json:"query"`
	FileIDs     []string `json:"file_ids"`
	Filenames   []string `json:"filenames"`

	ParsedFiles map[string]ParsedFile `json:"parsed_files"`

	Status           GroupStatus   `json:"status"`
	SearchResults    []SeriesMatch `json:"search_results"`
	SearchPagination Pagination    `json:"search_pagination"`

	// SelectedSeries supplies series-level metadata. IssueMatchingSeries, when
	// set, is used only to resolve issue numbers.
	SelectedSeries      *SeriesMatch `json:"selected_series,omitempty"`
	IssueMatchingSeries *SeriesMatch `json:"issue_matching_series,omitempty"`

	// AutoSelected is set when SelectedSeries came from a high-confidence search hit.
	AutoSelected bool `json:"auto_selected"`
}

// ParsedFile holds the numbering recovered from a filename at session creation.
type ParsedFile struct {
	Number    string `json:"number,omitempty"`
	Volume    string `json:"volume,omitempty"`
	Chapter   string `json:"chapter,omitempty"`
	Year      int    `json:"year,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
}

// MatchedIssue identifies the issue, volume or chapter a file was matched to.
type MatchedIssue struct {
	Source    string `json:"source"`
	SourceID  string `json:"source_id"`
	Number    string `json:"number"`
	Title     string `json:"title,omitempty"`
	CoverDate string `json:"cover_date,omitempty"`
}

// FieldChange is the proposed replacement of one metadata field.
type FieldChange struct {
	Current     string `json:"current"`
	Proposed    string `json:"proposed"`
	Approved    bool   `json:"approved"`
	Edited      bool   `json:"edited"`
	EditedValue string `json:"edited_value,omitempty"`
}

// Value returns the value that would be written: the edit if any, else the proposal.
func (f FieldChange) Value() string {
	if f.Edited {
		return f.EditedValue
	}
	return f.Proposed
}

// FileChange is the review record of one file.
type FileChange struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	GroupIndex int    `json:"group_index"`

	MatchedIssue    *MatchedIssue `json:"matched_issue,omitempty"`
	MatchConfidence float64       `json:"match_confidence"`

	// BestGuess is a display-only hint for unmatched files.
	BestGuess *MatchedIssue `json:"best_guess,omitempty"`

	Fields map[string]FieldChange `json:"fields"`
	Status FileChangeStatus       `json:"status"`

	// ProposedMetadata is the complete metadata the proposals were derived from
	// and CurrentMetadata what the archive held at review time. Rename previews
	// are regenerated from both.
	ProposedMetadata *ComicMetadata `json:"-"`
	CurrentMetadata  *ComicMetadata `json:"-"`
}

// HasApprovedFields reports whether any field would be applied.
func (c *FileChange) HasApprovedFields() bool {
	if c.Status == FileChangeRejected {
		return false
	}
	for _, f := range c.Fields {
		if f.Approved {
			return true
		}
	}
	return false
}

// ApprovedValues returns the values to write for approved metadata fields,
// excluding the synthetic rename field.
func (c *FileChange) ApprovedValues() map[string]string {
	out := make(map[string]string)
	if c.Status == FileChangeRejected {
		return out
	}
	for name, f := range c.Fields {
		if !f.Approved || name == FieldRename {
			continue
		}
		out[name] = f.Value()
	}
	return out
}

// RenameApproved reports whether the rename field exists and is approved.
func (c *FileChange) RenameApproved() bool {
	if c.Status == FileChangeRejected {
		return false
	}
	f, ok := c.Fields[FieldRename]
	return ok && f.Approved
}

// ApplyResult summarizes an apply run.
type ApplyResult struct {
	Total            int               `json:"total"`
	Successful       int               `json:"successful"`
	Failed           int               `json:"failed"`
	Converted        int               `json:"converted"`
	ConversionFailed int               `json:"conversion_failed"`
	Renamed          int               `json:"renamed"`
	Collisions       int               `json:"collisions"`
	SeriesUpdated    int               `json:"series_updated"`
	SidecarsWritten  int               `json:"sidecars_written"`
	Warnings         []string          `json:"warnings,omitempty"`
	Results          []FileApplyResult `json:"results"`
}

// FileApplyResult is the outcome for one file.
type FileApplyResult struct {
	FileID       string `json:"file_id"`
	OriginalPath string `json:"original_path"`
	NewPath      string `json:"new_path,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	Converted    bool   `json:"converted"`
	Renamed      bool   `json:"renamed"`
	HadCollision bool   `json:"had_collision"`
}

// CurrentGroup returns the group under active decision, or nil once every
// group has been decided.
func (s *ApprovalSession) CurrentGroup() *SeriesGroup {
	if s.CurrentSeriesIndex < 0 || s.CurrentSeriesIndex >= len(s.SeriesGroups) {
		return nil
	}
	return s.SeriesGroups[s.CurrentSeriesIndex]
}

// Touch records a mutation.
func (s *ApprovalSession) Touch(now time.Time) {
	s.UpdatedAt = now
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (s *ApprovalSession) Clone() *ApprovalSession {
	if s == nil {
		return nil
	}
	out := *s

	out.SeriesGroups = make([]*SeriesGroup, len(s.SeriesGroups))
	for i, g := range s.SeriesGroups {
		out.SeriesGroups[i] = g.Clone()
	}

	out.FileChanges = make(map[string]*FileChange, len(s.FileChanges))
	for id, fc := range s.FileChanges {
		out.FileChanges[id] = fc.Clone()
	}

	if s.ApplyResult != nil {
		r := *s.ApplyResult
		r.Results = slices.Clone(s.ApplyResult.Results)
		r.Warnings = slices.Clone(s.ApplyResult.Warnings)
		out.ApplyResult = &r
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Clone returns a deep copy of the group.
func (g *SeriesGroup) Clone() *SeriesGroup {
	if g == nil {
		return nil
	}
	out := *g
	out.FileIDs = slices.Clone(g.FileIDs)
	out.Filenames = slices.Clone(g.Filenames)
	out.ParsedFiles = maps.Clone(g.ParsedFiles)
	out.SearchResults = make([]SeriesMatch, len(g.SearchResults))
	for i, m := range g.SearchResults {
		out.SearchResults[i] = m.clone()
	}
	if g.SelectedSeries != nil {
		m := g.SelectedSeries.clone()
		out.SelectedSeries = &m
	}
	if g.IssueMatchingSeries != nil {
		m := g.IssueMatchingSeries.clone()
		out.IssueMatchingSeries = &m
	}
	return &out
}

func (m SeriesMatch) clone() SeriesMatch {
	m.Aliases = slices.Clone(m.Aliases)
	return m
}

// Clone returns a deep copy of the file change.
func (c *FileChange) Clone() *FileChange {
	if c == nil {
		return nil
	}
	out := *c
	out.Fields = maps.Clone(c.Fields)
	if c.MatchedIssue != nil {
		mi := *c.MatchedIssue
		out.MatchedIssue = &mi
	}
	if c.BestGuess != nil {
		bg := *c.BestGuess
		out.BestGuess = &bg
	}
	if c.ProposedMetadata != nil {
		pm := *c.ProposedMetadata
		out.ProposedMetadata = &pm
	}
	if c.CurrentMetadata != nil {
		cm := *c.CurrentMetadata
		out.CurrentMetadata = &cm
	}
	return &out
}

// IssueMatchTarget returns the identity used to resolve issue numbers.
func (g *SeriesGroup) IssueMatchTarget() *SeriesMatch {
	if g.IssueMatchingSeries != nil {
		return g.IssueMatchingSeries
	}
	return g.SelectedSeries
}

// FindResult looks up a search result by its key ("source:id") or bare source id.
func (g *SeriesGroup) FindResult(id string) (SeriesMatch, bool) {
	for _, m := range g.SearchResults {
		if m.Key() == id || m.SourceID == id {
			return m, true
		}
	}
	return SeriesMatch{}, false
}

// RemoveFile drops a file from the group and reports its parsed data.
func (g *SeriesGroup) RemoveFile(fileID string) (filename string, parsed ParsedFile, ok bool) {
	idx := slices.Index(g.FileIDs, fileID)
	if idx < 0 {
		return "", ParsedFile{}, false
	}
	filename = g.Filenames[idx]
	parsed = g.ParsedFiles[fileID]
	g.FileIDs = slices.Delete(g.FileIDs, idx, idx+1)
	g.Filenames = slices.Delete(g.Filenames, idx, idx+1)
	delete(g.ParsedFiles, fileID)
	return filename, parsed, true
}

// AddFile appends a file to the group.
func (g *SeriesGroup) AddFile(fileID, filename string, parsed ParsedFile) {
	g.FileIDs = append(g.FileIDs, fileID)
	g.Filenames = append(g.Filenames, filename)
	if g.ParsedFiles == nil {
		g.ParsedFiles = make(map[string]ParsedFile)
	}
	g.ParsedFiles[fileID] = parsed
}
