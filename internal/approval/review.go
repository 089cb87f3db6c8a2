package approval

import (
	"context"
	"fmt"
	"slices"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/filename"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
	"github.com/inkwellapp/inkwell-server/internal/ratelimit"
)

// Issue match confidences.
const (
	confidenceExact = 1.0
	// confidenceSuffixMismatch scores "5" against "5a": same value, different issue.
	confidenceSuffixMismatch = 0.4
)

// Confidences for number-only matches, by how the number was found.
const (
	confidenceClassified = 1.0
	confidenceParsed     = 0.9
	confidenceFallback   = 0.75
)

// volumePageThreshold tells volumes from chapters when a filename does not say.
const volumePageThreshold = 80

const (
	kindVolume  = "volume"
	kindChapter = "chapter"
)

// prepareFileChanges reviews every decided group whose files have no review
// record yet. Records that survived a rewind keep their edits.
func (s *Service) prepareFileChanges(ctx context.Context, sess *domain.ApprovalSession) {
	var pending []string
	for _, g := range sess.SeriesGroups {
		pending = append(pending, unreviewed(sess, g)...)
	}
	if len(pending) == 0 {
		return
	}

	files := s.loadFiles(ctx, pending)

	for idx, g := range sess.SeriesGroups {
		fileIDs := unreviewed(sess, g)
		if len(fileIDs) == 0 {
			continue
		}

		switch g.Status {
		case domain.GroupStatusSkipped:
			for _, fileID := range fileIDs {
				fc := newFileChange(g, idx, fileID, files[fileID])
				fc.Status = domain.FileChangeRejected
				sess.FileChanges[fileID] = fc
			}
		case domain.GroupStatusApproved:
			s.reviewGroup(ctx, sess, idx, fileIDs, files)
		}
	}

	s.report("file_review", fmt.Sprintf("%d files ready for review", len(sess.FileChanges)))
}

// reviewGroup matches files of an approved group. Sources with an issue index
// are matched issue by issue; the rest by volume or chapter number.
func (s *Service) reviewGroup(ctx context.Context, sess *domain.ApprovalSession, idx int, fileIDs []string, files map[string]*domain.ComicFile) {
	g := sess.SeriesGroups[idx]
	s.report("file_review", g.DisplayName)

	detail := s.seriesDetail(ctx, g.SelectedSeries)
	target := g.IssueMatchTarget()

	src, known := s.provider.Source(target.Source)
	if known && src.ProvidesIssueIndex {
		s.reviewAgainstIssues(ctx, sess, idx, fileIDs, files, detail)
		return
	}
	s.reviewByNumber(ctx, sess, idx, fileIDs, files, detail)
}

// reviewByNumber synthesizes a volume or chapter identity from each filename.
func (s *Service) reviewByNumber(ctx context.Context, sess *domain.ApprovalSession, idx int, fileIDs []string, files map[string]*domain.ComicFile, detail *domain.SeriesDetail) {
	g := sess.SeriesGroups[idx]

	for _, fileID := range fileIDs {
		fc := newFileChange(g, idx, fileID, files[fileID])
		sess.FileChanges[fileID] = fc

		parsed := g.ParsedFiles[fileID]
		kind, number, confidence := s.mangaNumber(parsed, fc.Filename)
		if number == "" {
			s.logger.Debug("no volume or chapter number", "session_id", sess.ID, "file", fc.Filename)
			continue
		}

		proposed := seriesMetadata(detail)
		if proposed.Summary == "" {
			proposed.Summary = detail.Description
		}
		applyMangaNumber(&proposed, kind, number, parsed)

		issue := &domain.MatchedIssue{
			Source:   detail.Source,
			SourceID: kind + "-" + number,
			Number:   number,
		}
		s.setMatch(ctx, sess, g, fc, issue, confidence, domain.FileChangeMatched, proposed)
	}
}

// mangaNumber picks the file's number: explicit volume/chapter tokens first,
// then the parsed issue number, then the last number in the name.
func (s *Service) mangaNumber(parsed domain.ParsedFile, name string) (kind, number string, confidence float64) {
	if kind, number := classify(parsed); number != "" {
		return kind, normalize.IssueNumber(number), confidenceClassified
	}

	number = parsed.Number
	if number == "" {
		number = s.parser.Parse(name).Number
	}
	if number != "" {
		return kindByPages(parsed.PageCount), normalize.IssueNumber(number), confidenceParsed
	}

	if number = filename.LastNumber(name); number != "" {
		return kindByPages(parsed.PageCount), number, confidenceFallback
	}
	return "", "", 0
}

// classify decides between the volume and chapter tokens of a filename.
// A file naming both is a chapter when it is short.
func classify(p domain.ParsedFile) (kind, number string) {
	switch {
	case p.Volume != "" && p.Chapter != "":
		if p.PageCount > 0 && p.PageCount < volumePageThreshold {
			return kindChapter, p.Chapter
		}
		return kindVolume, p.Volume
	case p.Chapter != "":
		return kindChapter, p.Chapter
	case p.Volume != "":
		return kindVolume, p.Volume
	}
	return "", ""
}

func kindByPages(pages int) string {
	if pages >= volumePageThreshold {
		return kindVolume
	}
	return kindChapter
}

func applyMangaNumber(md *domain.ComicMetadata, kind, number string, parsed domain.ParsedFile) {
	if kind == kindVolume {
		md.Volume = number
		return
	}
	md.Number = number
	if parsed.Volume != "" {
		md.Volume = normalize.IssueNumber(parsed.Volume)
	}
}

type issueHit struct {
	fc         *domain.FileChange
	issue      domain.Issue
	confidence float64
}

// reviewAgainstIssues matches each file to an entry of the series' issue index.
func (s *Service) reviewAgainstIssues(ctx context.Context, sess *domain.ApprovalSession, idx int, fileIDs []string, files map[string]*domain.ComicFile, detail *domain.SeriesDetail) {
	g := sess.SeriesGroups[idx]
	target := g.IssueMatchTarget()

	list, err := s.issues.GetOrFetchIssues(ctx, target.Source, target.SourceID)
	if err != nil {
		s.logger.Warn("issue index lookup failed", "series", target.Key(), "error", err)
	}
	if list == nil || len(list.Issues) == 0 {
		s.logger.Warn("issue index unavailable, group left unmatched",
			"session_id", sess.ID,
			"series", target.Key(),
			"files", len(fileIDs),
		)
		for _, fileID := range fileIDs {
			sess.FileChanges[fileID] = newFileChange(g, idx, fileID, files[fileID])
		}
		return
	}

	var hits []issueHit
	for _, fileID := range fileIDs {
		fc := newFileChange(g, idx, fileID, files[fileID])
		sess.FileChanges[fileID] = fc

		number := s.issueNumber(g.ParsedFiles[fileID], fc.Filename)
		issue, confidence := matchIssue(number, list.Issues)
		if issue != nil && confidence >= s.cfg.AcceptThreshold {
			hits = append(hits, issueHit{fc: fc, issue: *issue, confidence: confidence})
			continue
		}

		if s.cfg.BestGuess {
			if guess := bestGuess(number, list.Issues); guess != nil {
				fc.BestGuess = matchedIssue(*guess)
			}
		}
		s.logger.Debug("issue not matched",
			"session_id", sess.ID,
			"file", fc.Filename,
			"number", number,
			"confidence", confidence,
		)
	}
	if len(hits) == 0 {
		return
	}

	issues := make([]domain.Issue, len(hits))
	for i, h := range hits {
		issues[i] = h.issue
	}
	enriched := s.backfillCredits(ctx, target.Source, target.SourceID, issues)

	for _, h := range hits {
		issue := h.issue
		if e, ok := enriched[issue.SourceID]; ok {
			issue = e
		}
		proposed := seriesMetadata(detail)
		applyIssue(&proposed, issue)
		s.setMatch(ctx, sess, g, h.fc, matchedIssue(issue), h.confidence, domain.FileChangeMatched, proposed)
	}
}

// issueNumber is the candidate issue number of a western file.
func (s *Service) issueNumber(parsed domain.ParsedFile, name string) string {
	for _, n := range []string{parsed.Number, parsed.Chapter} {
		if n != "" {
			return normalize.IssueNumber(n)
		}
	}
	if n := s.parser.Parse(name).Number; n != "" {
		return normalize.IssueNumber(n)
	}
	return filename.LastNumber(name)
}

// matchIssue returns the best issue for number and its confidence in [0,1].
func matchIssue(number string, issues []domain.Issue) (*domain.Issue, float64) {
	if number == "" {
		return nil, 0
	}
	want := normalize.IssueNumber(number)
	wantValue, wantNumeric := normalize.IssueNumberValue(want)

	var best *domain.Issue
	bestConfidence := 0.0
	for i := range issues {
		got := normalize.IssueNumber(issues[i].Number)

		confidence := 0.0
		if got == want {
			confidence = confidenceExact
		} else if v, ok := normalize.IssueNumberValue(got); ok && wantNumeric && v == wantValue {
			confidence = confidenceSuffixMismatch
		}

		if confidence > bestConfidence {
			best, bestConfidence = &issues[i], confidence
			if confidence == confidenceExact {
				break
			}
		}
	}
	return best, bestConfidence
}

// bestGuess scans for the first issue with the same numeric value. It is only
// shown to the user, never applied.
func bestGuess(number string, issues []domain.Issue) *domain.Issue {
	want, ok := normalize.IssueNumberValue(number)
	if !ok {
		return nil
	}
	for i := range issues {
		if v, ok := normalize.IssueNumberValue(issues[i].Number); ok && v == want {
			return &issues[i]
		}
	}
	return nil
}

// backfillCredits fetches full detail for issues whose listing carried no
// credits, a window at a time. Each call paces itself, so sessions never
// share a budget. Failed fetches keep the listing as is.
func (s *Service) backfillCredits(ctx context.Context, source, seriesID string, issues []domain.Issue) map[string]domain.Issue {
	var missing []domain.Issue
	seen := make(map[string]bool)
	for _, issue := range issues {
		if issue.HasCredits() || seen[issue.SourceID] {
			continue
		}
		seen[issue.SourceID] = true
		missing = append(missing, issue)
	}
	if len(missing) == 0 {
		return nil
	}

	s.report("credits", fmt.Sprintf("fetching credits for %d issues", len(missing)))

	details := make([]*domain.Issue, len(missing))
	governor := ratelimit.NewGovernor(s.cfg.CreditBatchSize, s.cfg.CreditBatchDelay)
	err := governor.Run(ctx, len(missing), func(ctx context.Context, i int) {
		d, err := s.provider.GetIssueDetail(ctx, source, missing[i].SourceID)
		if err != nil {
			s.logger.Warn("issue detail fetch failed",
				"source", source,
				"issue_id", missing[i].SourceID,
				"error", err,
			)
			return
		}
		details[i] = d
	})
	if err != nil {
		s.logger.Warn("credit backfill interrupted", "source", source, "error", err)
	}

	out := make(map[string]domain.Issue, len(missing))
	var fetched []domain.Issue
	for i, d := range details {
		if d == nil {
			continue
		}
		merged := mergeIssue(missing[i], *d)
		out[merged.SourceID] = merged
		fetched = append(fetched, merged)
	}

	if len(fetched) > 0 {
		if err := s.issues.StoreIssueDetails(ctx, source, seriesID, fetched); err != nil {
			s.logger.Warn("caching issue details failed", "source", source, "series_id", seriesID, "error", err)
		}
	}
	s.report("credits", fmt.Sprintf("fetched credits for %d of %d issues", len(fetched), len(missing)))
	return out
}

// mergeIssue overlays the non-empty parts of a detail fetch onto a listing.
func mergeIssue(base, detail domain.Issue) domain.Issue {
	out := base
	if detail.Title != "" {
		out.Title = detail.Title
	}
	if detail.CoverDate != "" {
		out.CoverDate = detail.CoverDate
	}
	if detail.Summary != "" {
		out.Summary = detail.Summary
	}
	if detail.URL != "" {
		out.URL = detail.URL
	}
	if detail.StoryArc != "" {
		out.StoryArc = detail.StoryArc
	}
	if len(detail.Characters) > 0 {
		out.Characters = slices.Clone(detail.Characters)
	}
	if len(detail.Credits) > 0 {
		out.Credits = slices.Clone(detail.Credits)
	}
	return out
}

// setMatch records a match on fc and computes its field changes and rename preview.
func (s *Service) setMatch(ctx context.Context, sess *domain.ApprovalSession, g *domain.SeriesGroup, fc *domain.FileChange, issue *domain.MatchedIssue, confidence float64, status domain.FileChangeStatus, proposed domain.ComicMetadata) {
	current := s.currentMetadata(ctx, fc.Path)

	fc.MatchedIssue = issue
	fc.MatchConfidence = confidence
	fc.BestGuess = nil
	fc.Status = status
	fc.ProposedMetadata = &proposed
	fc.CurrentMetadata = current
	fc.Fields = diffFields(current, &proposed)

	s.refreshRename(ctx, sess, g, fc, nil)
}

// seriesDetail fetches series-level metadata, falling back to the search hit.
func (s *Service) seriesDetail(ctx context.Context, sel *domain.SeriesMatch) *domain.SeriesDetail {
	detail, err := s.provider.GetSeries(ctx, sel.Source, sel.SourceID)
	if err != nil || detail == nil {
		s.logger.Warn("series detail unavailable, using search result",
			"series", sel.Key(),
			"error", err,
		)
		return &domain.SeriesDetail{SeriesMatch: *sel}
	}
	return detail
}

// currentMetadata reads a file's embedded metadata. Unreadable archives count as empty.
func (s *Service) currentMetadata(ctx context.Context, path string) *domain.ComicMetadata {
	if path == "" {
		return &domain.ComicMetadata{}
	}
	md, err := s.archives.ReadAll(ctx, path)
	if err != nil || md == nil {
		s.logger.Debug("embedded metadata unreadable", "path", path, "error", err)
		return &domain.ComicMetadata{}
	}
	return md
}

func (s *Service) loadFiles(ctx context.Context, ids []string) map[string]*domain.ComicFile {
	out := make(map[string]*domain.ComicFile, len(ids))
	files, err := s.catalog.GetFilesByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("loading files for review failed", "error", err)
		return out
	}
	for _, f := range files {
		out[f.ID] = f
	}
	return out
}

// unreviewed lists the group's files that have no review record.
func unreviewed(sess *domain.ApprovalSession, g *domain.SeriesGroup) []string {
	var out []string
	for _, fileID := range g.FileIDs {
		if _, ok := sess.FileChanges[fileID]; !ok {
			out = append(out, fileID)
		}
	}
	return out
}

// newFileChange starts an unmatched record for a file.
func newFileChange(g *domain.SeriesGroup, idx int, fileID string, f *domain.ComicFile) *domain.FileChange {
	fc := &domain.FileChange{
		FileID:     fileID,
		GroupIndex: idx,
		Fields:     make(map[string]domain.FieldChange),
		Status:     domain.FileChangeUnmatched,
	}
	if i := slices.Index(g.FileIDs, fileID); i >= 0 {
		fc.Filename = g.Filenames[i]
	}
	if f != nil {
		fc.Path = f.Path
		fc.Filename = f.Filename()
	}
	return fc
}

func matchedIssue(issue domain.Issue) *domain.MatchedIssue {
	return &domain.MatchedIssue{
		Source:    issue.Source,
		SourceID:  issue.SourceID,
		Number:    issue.Number,
		Title:     issue.Title,
		CoverDate: issue.CoverDate,
	}
}
