package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/id"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
	"github.com/inkwellapp/inkwell-server/internal/rename"
)

// SidecarName is the per-folder series file written after apply.
const SidecarName = "series.json"

// maxCollisionSuffix bounds the search for a free "Name (n).cbz".
const maxCollisionSuffix = 1000

// applyItem tracks one file through the apply phases.
type applyItem struct {
	fc     *domain.FileChange
	group  *domain.SeriesGroup
	result *domain.FileApplyResult
	path   string

	// written is the embedded metadata after the write phase.
	written *domain.ComicMetadata
}

// ApplyChanges commits every reviewed file with at least one approved field.
// A failing file is recorded and never stops the rest of the batch.
func (s *Service) ApplyChanges(ctx context.Context, sessionID string) (*domain.ApplyResult, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusFileReview); err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatusApplying
	s.save(sess)

	result, items := s.applyCandidates(sess)

	s.logger.Info("applying approval session",
		"session_id", sess.ID,
		"files", result.Total,
	)

	items = s.convertPhase(ctx, items, result)
	items = s.writePhase(ctx, sess, items, result)
	s.sidecarPhase(items, result)
	s.catalogPhase(ctx, sess, items, result)

	for _, r := range result.Results {
		if r.Success {
			result.Successful++
		} else {
			result.Failed++
		}
	}

	now := s.now()
	sess.Status = domain.SessionStatusComplete
	if err := ctx.Err(); err != nil {
		// Files already written stay written; the result says which.
		sess.Status = domain.SessionStatusError
		sess.Error = "apply interrupted: " + err.Error()
		s.logger.Warn("approval apply interrupted", "session_id", sess.ID, "error", err)
	}
	sess.CompletedAt = &now
	sess.ApplyResult = result
	s.save(sess)

	s.logger.Info("approval session applied",
		"session_id", sess.ID,
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"renamed", result.Renamed,
		"converted", result.Converted,
	)
	s.report("complete", fmt.Sprintf("%d of %d files updated", result.Successful, result.Total))

	out := *result
	return &out, nil
}

// applyCandidates selects the files with approved fields in group order.
// Rejected files never qualify.
func (s *Service) applyCandidates(sess *domain.ApprovalSession) (*domain.ApplyResult, []*applyItem) {
	var ordered []*domain.FileChange
	for _, g := range sess.SeriesGroups {
		for _, fileID := range g.FileIDs {
			fc, ok := sess.FileChanges[fileID]
			if ok && fc.HasApprovedFields() {
				ordered = append(ordered, fc)
			}
		}
	}

	result := &domain.ApplyResult{
		Total:   len(ordered),
		Results: make([]domain.FileApplyResult, len(ordered)),
	}
	items := make([]*applyItem, len(ordered))
	for i, fc := range ordered {
		result.Results[i] = domain.FileApplyResult{FileID: fc.FileID, OriginalPath: fc.Path}
		items[i] = &applyItem{
			fc:     fc,
			group:  groupOf(sess, fc),
			result: &result.Results[i],
			path:   fc.Path,
		}
	}
	return result, items
}

// convertPhase converts archives that cannot carry embedded metadata. Files
// that fail conversion leave the batch.
func (s *Service) convertPhase(ctx context.Context, items []*applyItem, result *domain.ApplyResult) []*applyItem {
	kept := items[:0]
	for _, it := range items {
		if !s.archives.NeedsConversion(it.path) {
			kept = append(kept, it)
			continue
		}

		s.report("convert", filepath.Base(it.path))
		newPath, err := s.archives.Convert(ctx, it.path)
		if err != nil {
			s.logger.Warn("conversion failed", "path", it.path, "error", err)
			it.result.Error = "convert: " + err.Error()
			result.ConversionFailed++
			continue
		}

		it.path = newPath
		it.fc.Path = newPath
		it.fc.Filename = filepath.Base(newPath)
		it.result.Converted = true
		it.result.NewPath = newPath
		result.Converted++

		if err := s.catalog.UpdateFilePath(ctx, it.fc.FileID, newPath); err != nil {
			s.logger.Warn("catalog path update failed", "file_id", it.fc.FileID, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: catalog path not updated", it.fc.FileID))
		}
		kept = append(kept, it)
	}
	return kept
}

// writePhase merges approved values into each archive, then renames it when
// the rename field is approved.
func (s *Service) writePhase(ctx context.Context, sess *domain.ApprovalSession, items []*applyItem, result *domain.ApplyResult) []*applyItem {
	kept := items[:0]
	for _, it := range items {
		s.report("write", filepath.Base(it.path))

		if values := it.fc.ApprovedValues(); len(values) > 0 {
			if err := s.archives.Merge(ctx, it.path, values); err != nil {
				s.logger.Warn("metadata write failed", "path", it.path, "error", err)
				it.result.Error = "write metadata: " + err.Error()
				continue
			}
		}

		md, err := s.archives.ReadAll(ctx, it.path)
		if err != nil || md == nil {
			md = &domain.ComicMetadata{}
		}
		it.written = md

		if it.fc.RenameApproved() {
			if err := s.renameFile(ctx, sess, it, result); err != nil {
				s.logger.Warn("rename failed", "path", it.path, "error", err)
				it.result.Error = "rename: " + err.Error()
				continue
			}
		}

		it.result.Success = true
		kept = append(kept, it)
	}
	return kept
}

// renameFile moves a file to its canonical name, disambiguating collisions.
func (s *Service) renameFile(ctx context.Context, sess *domain.ApprovalSession, it *applyItem, result *domain.ApplyResult) error {
	name := s.finalName(ctx, sess, it)
	if name == "" || name == filepath.Base(it.path) {
		return nil
	}

	dest, collided, err := freePath(filepath.Join(filepath.Dir(it.path), name))
	if err != nil {
		return err
	}
	if err := os.Rename(it.path, dest); err != nil {
		return err
	}

	s.logger.Debug("file renamed", "from", it.path, "to", dest, "collision", collided)

	it.path = dest
	it.fc.Path = dest
	it.fc.Filename = filepath.Base(dest)
	it.result.NewPath = dest
	it.result.Renamed = true
	result.Renamed++
	if collided {
		it.result.HadCollision = true
		result.Collisions++
	}

	if err := s.catalog.UpdateFilePath(ctx, it.fc.FileID, dest); err != nil {
		s.logger.Warn("catalog path update failed", "file_id", it.fc.FileID, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: catalog path not updated", it.fc.FileID))
	}
	return nil
}

// finalName is the edited name, else a fresh proposal from the metadata now
// in the archive, else the proposal made during review.
func (s *Service) finalName(ctx context.Context, sess *domain.ApprovalSession, it *applyItem) string {
	f := it.fc.Fields[domain.FieldRename]
	ext := strings.ToLower(filepath.Ext(it.path))

	if f.Edited {
		name := rename.Sanitize(strings.TrimSpace(f.EditedValue))
		if name != "" && filepath.Ext(name) == "" {
			name += ext
		}
		return name
	}

	if name, ok := s.proposeName(ctx, sess, it.group, it.fc, *it.written); ok {
		return name
	}
	if f.Proposed == "" {
		return ""
	}
	return strings.TrimSuffix(f.Proposed, filepath.Ext(f.Proposed)) + ext
}

// freePath returns path, or "Name (n).ext" when path is taken.
func freePath(path string) (string, bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, false, nil
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; n <= maxCollisionSuffix; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, true, nil
		}
	}
	return "", false, domainerrors.Conflictf("no free name for %s", filepath.Base(path))
}

// sidecarPhase writes series.json into every folder that received applied
// files. Series are told apart by their bound identity; a folder holding
// several gets a mapping keyed by normalized series name.
func (s *Service) sidecarPhase(items []*applyItem, result *domain.ApplyResult) {
	type folder struct {
		seen   map[string]bool
		series []domain.SeriesMatch
	}
	folders := make(map[string]*folder)
	var order []string
	for _, it := range items {
		if it.group == nil || it.group.SelectedSeries == nil {
			continue
		}
		dir := filepath.Dir(it.path)
		f := folders[dir]
		if f == nil {
			f = &folder{seen: make(map[string]bool)}
			folders[dir] = f
			order = append(order, dir)
		}
		sel := *it.group.SelectedSeries
		if !f.seen[sel.Key()] {
			f.seen[sel.Key()] = true
			f.series = append(f.series, sel)
		}
	}

	for _, dir := range order {
		series := folders[dir].series

		var payload any
		if len(series) == 1 {
			payload = sidecarFor(series[0])
		} else {
			payload = sidecarMapping(series)
		}

		if err := writeJSONAtomic(filepath.Join(dir, SidecarName), payload); err != nil {
			s.logger.Warn("series sidecar write failed", "dir", dir, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: sidecar not written", dir))
			continue
		}
		result.SidecarsWritten++
	}
}

// sidecarMapping keys each series by its normalized name. Series whose names
// normalize alike are qualified with their source identity.
func sidecarMapping(series []domain.SeriesMatch) map[string]domain.SeriesSidecar {
	counts := make(map[string]int, len(series))
	for _, sel := range series {
		counts[normalize.SeriesKey(sel.Name)]++
	}

	mapping := make(map[string]domain.SeriesSidecar, len(series))
	for _, sel := range series {
		key := normalize.SeriesKey(sel.Name)
		if counts[key] > 1 {
			key += " [" + sel.Key() + "]"
		}
		mapping[key] = sidecarFor(sel)
	}
	return mapping
}

func sidecarFor(m domain.SeriesMatch) domain.SeriesSidecar {
	return domain.SeriesSidecar{
		Name:      m.Name,
		Publisher: m.Publisher,
		StartYear: m.StartYear,
		Summary:   m.Description,
		Source:    m.Source,
		SourceID:  m.SourceID,
		URL:       m.URL,
	}
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// catalogPhase syncs the catalog and search index with applied files. Every
// failure here is a warning; the files are already written.
func (s *Service) catalogPhase(ctx context.Context, sess *domain.ApprovalSession, items []*applyItem, result *domain.ApplyResult) {
	warn := func(msg, key, value string, err error) {
		s.logger.Warn(msg, key, value, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", value, msg))
	}

	byGroup := make(map[*domain.SeriesGroup][]*applyItem)
	var groups []*domain.SeriesGroup
	for _, it := range items {
		if it.group == nil || it.group.Status != domain.GroupStatusApproved || it.group.SelectedSeries == nil {
			continue
		}
		if _, ok := byGroup[it.group]; !ok {
			groups = append(groups, it.group)
		}
		byGroup[it.group] = append(byGroup[it.group], it)
	}

	for _, g := range groups {
		s.report("catalog", g.SelectedSeries.Name)

		sr, err := s.resolveCatalogSeries(ctx, sess.LibraryID, *g.SelectedSeries)
		if err != nil {
			warn("catalog series not resolved", "series", g.SelectedSeries.Key(), err)
			continue
		}

		updated, err := s.catalog.UpdateSeriesFromSource(ctx, sr.ID, *g.SelectedSeries)
		if err != nil {
			warn("catalog series update failed", "series_id", sr.ID, err)
		} else {
			result.SeriesUpdated++
			s.logger.Debug("catalog series updated", "series_id", sr.ID, "fields", updated)
		}

		fileIDs := make([]string, 0, len(byGroup[g]))
		for _, it := range byGroup[g] {
			fileIDs = append(fileIDs, it.fc.FileID)
		}
		if err := s.catalog.AssignFileSeries(ctx, sr.ID, fileIDs...); err != nil {
			warn("assigning files to series failed", "series_id", sr.ID, err)
		}

		if s.index != nil {
			if fresh, err := s.catalog.GetSeries(ctx, sr.ID); err == nil {
				sr = fresh
			}
			if err := s.index.IndexSeries(sr); err != nil {
				warn("series index refresh failed", "series_id", sr.ID, err)
			}
		}
	}

	for _, it := range items {
		fileID := it.fc.FileID

		if err := s.catalog.UpsertFileMetadata(ctx, fileID, *it.written); err != nil {
			warn("catalog metadata update failed", "file_id", fileID, err)
		}
		if err := s.catalog.MarkStatsDirty(ctx, fileID); err != nil {
			warn("marking stats dirty failed", "file_id", fileID, err)
		}

		if s.index == nil {
			continue
		}
		f, err := s.catalog.GetFile(ctx, fileID)
		if err != nil {
			warn("file index refresh skipped", "file_id", fileID, err)
			continue
		}
		if err := s.index.IndexFile(f, it.written); err != nil {
			warn("file index refresh failed", "file_id", fileID, err)
		}
	}
}

// resolveCatalogSeries finds the catalog record for an approved series by
// source identity, then by name, creating it when neither exists.
func (s *Service) resolveCatalogSeries(ctx context.Context, libraryID string, sel domain.SeriesMatch) (*domain.Series, error) {
	sr, err := s.catalog.GetSeriesBySource(ctx, libraryID, sel.Source, sel.SourceID)
	if err == nil {
		return sr, nil
	}
	if !domainerrors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	sr, err = s.catalog.FindSeriesByName(ctx, libraryID, sel.Name)
	if err == nil {
		return sr, nil
	}
	if !domainerrors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	seriesID, err := id.Generate(id.PrefixSeries)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sr = &domain.Series{
		ID:        seriesID,
		LibraryID: libraryID,
		Name:      sel.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.catalog.CreateSeries(ctx, sr); err != nil {
		return nil, err
	}
	return sr, nil
}
