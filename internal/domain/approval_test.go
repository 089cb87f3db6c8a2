package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalSession_CloneIsDeep(t *testing.T) {
	sel := SeriesMatch{Source: "comicvine", SourceID: "1", Name: "Batman", Aliases: []string{"The Bat"}}
	s := &ApprovalSession{
		ID: "aps-1",
		SeriesGroups: []*SeriesGroup{{
			DisplayName:    "Batman",
			FileIDs:        []string{"f1"},
			Filenames:      []string{"Batman 001.cbz"},
			ParsedFiles:    map[string]ParsedFile{"f1": {Number: "1"}},
			SearchResults:  []SeriesMatch{sel},
			SelectedSeries: &sel,
		}},
		FileChanges: map[string]*FileChange{
			"f1": {
				FileID:       "f1",
				MatchedIssue: &MatchedIssue{Number: "1"},
				Fields:       map[string]FieldChange{FieldTitle: {Proposed: "A"}},
			},
		},
	}

	c := s.Clone()
	c.SeriesGroups[0].FileIDs[0] = "changed"
	c.SeriesGroups[0].SelectedSeries.Aliases[0] = "changed"
	c.SeriesGroups[0].ParsedFiles["f1"] = ParsedFile{Number: "9"}
	c.FileChanges["f1"].MatchedIssue.Number = "9"
	c.FileChanges["f1"].Fields[FieldTitle] = FieldChange{Proposed: "B"}

	assert.Equal(t, "f1", s.SeriesGroups[0].FileIDs[0])
	assert.Equal(t, "The Bat", s.SeriesGroups[0].SelectedSeries.Aliases[0])
	assert.Equal(t, "1", s.SeriesGroups[0].ParsedFiles["f1"].Number)
	assert.Equal(t, "1", s.FileChanges["f1"].MatchedIssue.Number)
	assert.Equal(t, "A", s.FileChanges["f1"].Fields[FieldTitle].Proposed)
}

func TestFileChange_ApprovedValues(t *testing.T) {
	fc := &FileChange{
		Status: FileChangeMatched,
		Fields: map[string]FieldChange{
			FieldTitle:  {Proposed: "Proposed", Approved: true},
			FieldWriter: {Proposed: "Moore", Approved: true, Edited: true, EditedValue: "Alan Moore"},
			FieldYear:   {Proposed: "1986"},
			FieldRename: {Proposed: "Watchmen #001.cbz", Approved: true},
		},
	}

	assert.Equal(t, map[string]string{FieldTitle: "Proposed", FieldWriter: "Alan Moore"}, fc.ApprovedValues())
	assert.True(t, fc.HasApprovedFields())
	assert.True(t, fc.RenameApproved())

	fc.Status = FileChangeRejected
	assert.Empty(t, fc.ApprovedValues())
	assert.False(t, fc.HasApprovedFields())
	assert.False(t, fc.RenameApproved())
}

func TestSeriesGroup_MoveFile(t *testing.T) {
	from := &SeriesGroup{}
	from.AddFile("f1", "a.cbz", ParsedFile{Number: "1"})
	from.AddFile("f2", "b.cbz", ParsedFile{Number: "2"})
	to := &SeriesGroup{}

	name, parsed, ok := from.RemoveFile("f1")
	require.True(t, ok)
	to.AddFile("f1", name, parsed)

	assert.Equal(t, []string{"f2"}, from.FileIDs)
	assert.Equal(t, []string{"b.cbz"}, from.Filenames)
	assert.Equal(t, []string{"f1"}, to.FileIDs)
	assert.Equal(t, "1", to.ParsedFiles["f1"].Number)

	_, _, ok = from.RemoveFile("missing")
	assert.False(t, ok)
}

func TestSeriesGroup_FindResult(t *testing.T) {
	g := &SeriesGroup{SearchResults: []SeriesMatch{
		{Source: "comicvine", SourceID: "42", Name: "Saga"},
		{Source: "mangadex", SourceID: "abc", Name: "Berserk"},
	}}

	m, ok := g.FindResult("mangadex:abc")
	require.True(t, ok)
	assert.Equal(t, "Berserk", m.Name)

	m, ok = g.FindResult("42")
	require.True(t, ok)
	assert.Equal(t, "Saga", m.Name)

	_, ok = g.FindResult("nope")
	assert.False(t, ok)
}

func TestComicMetadata_GetSetMerge(t *testing.T) {
	var m ComicMetadata
	assert.True(t, m.Set(FieldSeries, "Saga"))
	assert.False(t, m.Set(FieldRename, "x.cbz"))

	m.Merge(map[string]string{FieldNumber: "7", FieldWriter: "", FieldPublisher: "Image"})

	assert.Equal(t, "Saga", m.Get(FieldSeries))
	assert.Equal(t, map[string]string{FieldSeries: "Saga", FieldNumber: "7", FieldPublisher: "Image"}, m.Values())
	assert.True(t, IsMetadataField(FieldWriter))
	assert.False(t, IsMetadataField(FieldRename))
}
