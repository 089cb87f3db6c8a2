package approval

import (
	"context"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// FieldUpdate changes the approval or value of one reviewed field.
// Nil members are left as they are.
type FieldUpdate struct {
	Approved    *bool   `json:"approved,omitempty"`
	EditedValue *string `json:"edited_value,omitempty"`
}

// MoveFileToSeriesGroup reassigns a file to another group. During file review
// the file is re-matched against the target group's decision.
func (s *Service) MoveFileToSeriesGroup(ctx context.Context, sessionID, fileID string, targetIndex int) (*domain.ApprovalSession, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusSeriesApproval, domain.SessionStatusFileReview); err != nil {
		return nil, err
	}
	target, err := groupAt(sess, targetIndex)
	if err != nil {
		return nil, err
	}

	var (
		name   string
		parsed domain.ParsedFile
		found  bool
	)
	for _, g := range sess.SeriesGroups {
		if name, parsed, found = g.RemoveFile(fileID); found {
			break
		}
	}
	if !found {
		return nil, domainerrors.NotFoundf("file %s not in session", fileID)
	}
	target.AddFile(fileID, name, parsed)

	s.logger.Info("file moved",
		"session_id", sess.ID,
		"file_id", fileID,
		"target", targetIndex,
	)

	if sess.Status == domain.SessionStatusFileReview {
		delete(sess.FileChanges, fileID)
		files := s.loadFiles(ctx, []string{fileID})

		switch target.Status {
		case domain.GroupStatusApproved:
			s.reviewGroup(ctx, sess, targetIndex, []string{fileID}, files)
		case domain.GroupStatusSkipped:
			fc := newFileChange(target, targetIndex, fileID, files[fileID])
			fc.Status = domain.FileChangeRejected
			sess.FileChanges[fileID] = fc
		default:
			sess.FileChanges[fileID] = newFileChange(target, targetIndex, fileID, files[fileID])
		}
	}

	return s.save(sess), nil
}

// RegenerateRenamePreview recomputes a file's proposed name, optionally with
// field values the user is still editing.
func (s *Service) RegenerateRenamePreview(ctx context.Context, sessionID, fileID string, fieldValues map[string]string) (*domain.FileChange, error) {
	sess, fc, err := s.reviewedFile(sessionID, fileID)
	if err != nil {
		return nil, err
	}
	for name := range fieldValues {
		if !domain.IsMetadataField(name) {
			return nil, domainerrors.Validationf("unknown field %q", name)
		}
	}

	s.refreshRename(ctx, sess, groupOf(sess, fc), fc, fieldValues)
	s.save(sess)
	return fc.Clone(), nil
}

// UpdateFieldApprovals toggles or edits reviewed fields of one file.
func (s *Service) UpdateFieldApprovals(ctx context.Context, sessionID, fileID string, updates map[string]FieldUpdate) (*domain.FileChange, error) {
	sess, fc, err := s.reviewedFile(sessionID, fileID)
	if err != nil {
		return nil, err
	}
	if fc.Status == domain.FileChangeRejected {
		return nil, domainerrors.Validation("file is rejected")
	}

	metadataEdited := false
	for name, u := range updates {
		f, ok := fc.Fields[name]
		if !ok {
			return nil, domainerrors.Validationf("unknown field %q", name)
		}
		if u.Approved != nil {
			f.Approved = *u.Approved
		}
		if u.EditedValue != nil {
			value := strings.TrimSpace(*u.EditedValue)
			f.Edited = value != f.Proposed
			f.EditedValue = ""
			if f.Edited {
				f.EditedValue = value
			}
			if name != domain.FieldRename {
				metadataEdited = true
			}
		}
		fc.Fields[name] = f
	}

	if metadataEdited {
		s.refreshRename(ctx, sess, groupOf(sess, fc), fc, nil)
	}

	s.save(sess)
	return fc.Clone(), nil
}

// RejectFile excludes a file from apply.
func (s *Service) RejectFile(_ context.Context, sessionID, fileID string) (*domain.FileChange, error) {
	sess, fc, err := s.reviewedFile(sessionID, fileID)
	if err != nil {
		return nil, err
	}
	fc.Status = domain.FileChangeRejected
	s.save(sess)
	return fc.Clone(), nil
}

// AcceptAllFiles approves every field of every matched file.
func (s *Service) AcceptAllFiles(_ context.Context, sessionID string) (*domain.ApprovalSession, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusFileReview); err != nil {
		return nil, err
	}
	for _, fc := range sess.FileChanges {
		if fc.Status != domain.FileChangeMatched && fc.Status != domain.FileChangeManual {
			continue
		}
		for name, f := range fc.Fields {
			f.Approved = true
			fc.Fields[name] = f
		}
	}
	return s.save(sess), nil
}

// RejectAllFiles marks every file rejected.
func (s *Service) RejectAllFiles(_ context.Context, sessionID string) (*domain.ApprovalSession, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusFileReview); err != nil {
		return nil, err
	}
	for _, fc := range sess.FileChanges {
		fc.Status = domain.FileChangeRejected
	}
	return s.save(sess), nil
}

// ManualSelectIssue matches a file to an issue the user picked. Sources
// without an issue index take "volume-N" or "chapter-N".
func (s *Service) ManualSelectIssue(ctx context.Context, sessionID, fileID, issueID string) (*domain.FileChange, error) {
	sess, fc, err := s.reviewedFile(sessionID, fileID)
	if err != nil {
		return nil, err
	}
	g := groupOf(sess, fc)
	if g == nil || g.Status != domain.GroupStatusApproved || g.SelectedSeries == nil {
		return nil, domainerrors.Validation("file's series group is not approved")
	}

	target := g.IssueMatchTarget()
	detail := s.seriesDetail(ctx, g.SelectedSeries)
	proposed := seriesMetadata(detail)

	var issue *domain.MatchedIssue
	if src, known := s.provider.Source(target.Source); known && src.ProvidesIssueIndex {
		picked, err := s.lookupIssue(ctx, target, issueID)
		if err != nil {
			return nil, err
		}
		if enriched, ok := s.backfillCredits(ctx, target.Source, target.SourceID, []domain.Issue{*picked})[picked.SourceID]; ok {
			picked = &enriched
		}
		applyIssue(&proposed, *picked)
		issue = matchedIssue(*picked)
	} else {
		kind, number, ok := parseVirtualID(issueID)
		if !ok {
			return nil, domainerrors.Validationf("invalid volume or chapter id %q", issueID)
		}
		if proposed.Summary == "" {
			proposed.Summary = detail.Description
		}
		applyMangaNumber(&proposed, kind, number, g.ParsedFiles[fileID])
		issue = &domain.MatchedIssue{
			Source:   detail.Source,
			SourceID: kind + "-" + number,
			Number:   number,
		}
	}

	s.setMatch(ctx, sess, g, fc, issue, confidenceExact, domain.FileChangeManual, proposed)

	s.logger.Info("issue selected manually",
		"session_id", sess.ID,
		"file_id", fileID,
		"issue", issue.SourceID,
	)

	s.save(sess)
	return fc.Clone(), nil
}

// lookupIssue finds an issue in the cached index, fetching it directly when
// no index is available.
func (s *Service) lookupIssue(ctx context.Context, target *domain.SeriesMatch, issueID string) (*domain.Issue, error) {
	list, err := s.issues.GetOrFetchIssues(ctx, target.Source, target.SourceID)
	if err != nil {
		s.logger.Warn("issue index lookup failed", "series", target.Key(), "error", err)
	}
	if list != nil && len(list.Issues) > 0 {
		for i := range list.Issues {
			if list.Issues[i].SourceID == issueID {
				issue := list.Issues[i]
				return &issue, nil
			}
		}
		return nil, domainerrors.Validationf("issue %s not in series %s", issueID, target.Name)
	}

	issue, err := s.provider.GetIssueDetail(ctx, target.Source, issueID)
	if err != nil {
		return nil, domainerrors.Upstream(err, "fetch issue detail")
	}
	return issue, nil
}

// parseVirtualID splits "volume-5" or "chapter-12.5".
func parseVirtualID(id string) (kind, number string, ok bool) {
	kind, number, ok = strings.Cut(id, "-")
	if !ok || (kind != kindVolume && kind != kindChapter) {
		return "", "", false
	}
	number = normalize.IssueNumber(number)
	if _, numeric := normalize.IssueNumberValue(number); !numeric {
		return "", "", false
	}
	return kind, number, true
}

// reviewedFile loads a session in file review and one of its file records.
func (s *Service) reviewedFile(sessionID, fileID string) (*domain.ApprovalSession, *domain.FileChange, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusFileReview); err != nil {
		return nil, nil, err
	}
	fc, ok := sess.FileChanges[fileID]
	if !ok {
		return nil, nil, domainerrors.NotFoundf("file %s not in session", fileID)
	}
	return sess, fc, nil
}

func groupOf(sess *domain.ApprovalSession, fc *domain.FileChange) *domain.SeriesGroup {
	if fc.GroupIndex < 0 || fc.GroupIndex >= len(sess.SeriesGroups) {
		return nil
	}
	return sess.SeriesGroups[fc.GroupIndex]
}
