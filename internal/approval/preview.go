package approval

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/rename"
)

// renameBasis is the metadata a rename preview is computed from: the current
// archive values, overlaid with proposals, then user edits.
func renameBasis(fc *domain.FileChange, edits map[string]string) domain.ComicMetadata {
	var md domain.ComicMetadata
	if fc.CurrentMetadata != nil {
		md = *fc.CurrentMetadata
		md.Extra = nil
	}
	if fc.ProposedMetadata != nil {
		md.Merge(fc.ProposedMetadata.Values())
	}
	for name, f := range fc.Fields {
		if name == domain.FieldRename || !f.Approved {
			continue
		}
		md.Set(name, f.Value())
	}
	md.Merge(edits)
	return md
}

// proposeName renders the rename template for a file. Files that will be
// converted are named for their .cbz form.
func (s *Service) proposeName(ctx context.Context, sess *domain.ApprovalSession, g *domain.SeriesGroup, fc *domain.FileChange, md domain.ComicMetadata) (string, bool) {
	if s.renamer == nil {
		return "", false
	}
	path := fc.Path
	if path == "" {
		path = fc.Filename
	}
	if s.archives.NeedsConversion(path) {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".cbz"
	}
	var series *domain.SeriesMatch
	if g != nil {
		series = g.SelectedSeries
	}
	return s.renamer.Propose(ctx, md, rename.Context{
		LibraryID: sess.LibraryID,
		FilePath:  path,
		Series:    series,
	})
}

// refreshRename recomputes the rename field of fc. A user-edited name is
// never replaced, and a proposal equal to the current name is dropped.
func (s *Service) refreshRename(ctx context.Context, sess *domain.ApprovalSession, g *domain.SeriesGroup, fc *domain.FileChange, edits map[string]string) {
	prev, had := fc.Fields[domain.FieldRename]
	if had && prev.Edited {
		return
	}

	name, ok := s.proposeName(ctx, sess, g, fc, renameBasis(fc, edits))
	if !ok || name == fc.Filename {
		delete(fc.Fields, domain.FieldRename)
		return
	}

	approved := true
	if had {
		approved = prev.Approved
	}
	if fc.Fields == nil {
		fc.Fields = make(map[string]domain.FieldChange)
	}
	fc.Fields[domain.FieldRename] = domain.FieldChange{
		Current:  fc.Filename,
		Proposed: name,
		Approved: approved,
	}
}
