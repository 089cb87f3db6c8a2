package approval

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/id"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// AdvanceResult reports where series approval continues after a decision.
type AdvanceResult struct {
	HasMore   bool                    `json:"has_more"`
	NextIndex int                     `json:"next_index"`
	Session   *domain.ApprovalSession `json:"session"`
}

// CreateSession clusters the given catalog files into series groups and
// starts series approval at the first group.
func (s *Service) CreateSession(ctx context.Context, libraryID string, fileIDs []string) (*domain.ApprovalSession, error) {
	if len(fileIDs) == 0 {
		return nil, domainerrors.Validation("at least one file id is required")
	}

	lib, err := s.catalog.GetLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	files, err := s.catalog.GetFilesByIDs(ctx, dedupe(fileIDs))
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "load files")
	}
	if len(files) == 0 {
		return nil, domainerrors.NotFound("none of the requested files exist")
	}
	for _, f := range files {
		if f.LibraryID != lib.ID {
			return nil, domainerrors.Validationf("file %s is not in library %s", f.ID, lib.ID)
		}
	}

	sessionID, err := id.Generate(id.PrefixApprovalSession)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &domain.ApprovalSession{
		ID:           sessionID,
		Status:       domain.SessionStatusSeriesApproval,
		LibraryID:    lib.ID,
		LibraryType:  lib.Type,
		SeriesGroups: s.groupFiles(files),
		FileChanges:  make(map[string]*domain.FileChange),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.logger.Info("approval session created",
		"session_id", sess.ID,
		"library_id", lib.ID,
		"files", len(files),
		"groups", len(sess.SeriesGroups),
	)

	s.searchForCurrentSeries(ctx, sess)
	return s.save(sess), nil
}

// groupFiles clusters files by normalized series name within a folder, in
// discovery order.
func (s *Service) groupFiles(files []*domain.ComicFile) []*domain.SeriesGroup {
	var groups []*domain.SeriesGroup
	byKey := make(map[string]*domain.SeriesGroup)

	for _, f := range files {
		parsed := s.parser.Parse(f.Filename())

		name := parsed.Series
		if name == "" {
			name = filepath.Base(f.Dir())
		}
		key := f.Dir() + "\x00" + normalize.SeriesKey(name)

		g, ok := byKey[key]
		if !ok {
			g = &domain.SeriesGroup{
				DisplayName: name,
				Query:       name,
				Status:      domain.GroupStatusPending,
				ParsedFiles: make(map[string]domain.ParsedFile),
			}
			byKey[key] = g
			groups = append(groups, g)
		}

		g.AddFile(f.ID, f.Filename(), domain.ParsedFile{
			Number:    parsed.Number,
			Volume:    parsed.Volume,
			Chapter:   parsed.Chapter,
			Year:      parsed.Year,
			PageCount: f.PageCount,
		})
	}
	return groups
}

// searchForCurrentSeries searches for the current group when it is pending.
// The top hit is pre-selected when confident enough; the group stays pending
// so the user can override it.
func (s *Service) searchForCurrentSeries(ctx context.Context, sess *domain.ApprovalSession) {
	g := sess.CurrentGroup()
	if g == nil || g.Status != domain.GroupStatusPending {
		return
	}

	if !s.runSearch(ctx, sess, g, 0) {
		return
	}

	if len(g.SearchResults) > 0 && g.SelectedSeries == nil {
		top := g.SearchResults[0]
		if top.Confidence >= s.cfg.AutoSelectThreshold {
			g.SelectedSeries = &top
			g.AutoSelected = true
			s.logger.Debug("series auto-selected",
				"session_id", sess.ID,
				"group", g.DisplayName,
				"series", top.Key(),
				"confidence", top.Confidence,
			)
		}
	}
}

// runSearch queries the provider for one page of g. Offset zero replaces the
// results and a later offset appends to them. On provider failure a fresh
// search leaves the group pending with no results, while a failed page append
// keeps what was already loaded and stops paging.
func (s *Service) runSearch(ctx context.Context, sess *domain.ApprovalSession, g *domain.SeriesGroup, offset int) bool {
	g.Status = domain.GroupStatusSearching
	s.sessions.Set(sess)
	s.report("series_search", g.Query)

	res, err := s.provider.SearchSeries(ctx, g.Query, domain.SearchOptions{
		Limit:       searchPageSize,
		Offset:      offset,
		Year:        groupYear(g),
		LibraryType: sess.LibraryType,
	})
	g.Status = domain.GroupStatusPending

	if err != nil {
		s.logger.Warn("series search failed",
			"session_id", sess.ID,
			"query", g.Query,
			"error", err,
		)
		if offset == 0 {
			g.SearchResults = nil
			g.SearchPagination = domain.Pagination{}
		} else {
			g.SearchPagination.HasMore = false
		}
		return false
	}

	if offset == 0 {
		g.SearchResults = res.Series
	} else {
		seen := make(map[string]bool, len(g.SearchResults))
		for _, m := range g.SearchResults {
			seen[m.Key()] = true
		}
		for _, m := range res.Series {
			if !seen[m.Key()] {
				g.SearchResults = append(g.SearchResults, m)
			}
		}
	}
	g.SearchPagination = res.Pagination
	return true
}

// ApproveSeries binds the current group to a search result and advances.
// issueMatchingID optionally names a different result used only for issue
// numbers.
func (s *Service) ApproveSeries(ctx context.Context, sessionID, selectedID, issueMatchingID string) (*AdvanceResult, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusSeriesApproval); err != nil {
		return nil, err
	}
	g := sess.CurrentGroup()
	if g == nil {
		return nil, domainerrors.Validation("no series group awaiting approval")
	}

	selected, ok := resolveSelection(g, selectedID)
	if !ok {
		return nil, domainerrors.Validationf("series %s not in search results", selectedID)
	}

	var issueMatching *domain.SeriesMatch
	if issueMatchingID != "" {
		m, ok := resolveSelection(g, issueMatchingID)
		if !ok {
			return nil, domainerrors.Validationf("series %s not in search results", issueMatchingID)
		}
		if m.Key() != selected.Key() {
			issueMatching = &m
		}
	}

	prev := decision(g)
	g.SelectedSeries = &selected
	g.IssueMatchingSeries = issueMatching
	g.Status = domain.GroupStatusApproved
	if decision(g) != prev {
		discardReview(sess, g)
	}

	s.logger.Info("series approved",
		"session_id", sess.ID,
		"index", sess.CurrentSeriesIndex,
		"series", selected.Key(),
	)

	return s.advance(ctx, sess), nil
}

// SkipSeries leaves the current group's files untouched and advances.
func (s *Service) SkipSeries(ctx context.Context, sessionID string) (*AdvanceResult, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusSeriesApproval); err != nil {
		return nil, err
	}
	g := sess.CurrentGroup()
	if g == nil {
		return nil, domainerrors.Validation("no series group awaiting approval")
	}

	prev := decision(g)
	g.Status = domain.GroupStatusSkipped
	g.SelectedSeries = nil
	g.IssueMatchingSeries = nil
	g.AutoSelected = false
	if decision(g) != prev {
		discardReview(sess, g)
	}

	s.logger.Info("series skipped", "session_id", sess.ID, "index", sess.CurrentSeriesIndex)

	return s.advance(ctx, sess), nil
}

// advance moves to the next group. A group decided before a rewind comes up
// again with its decision intact for confirmation. Past the last group it
// runs file review.
func (s *Service) advance(ctx context.Context, sess *domain.ApprovalSession) *AdvanceResult {
	sess.CurrentSeriesIndex++

	if sess.CurrentSeriesIndex < len(sess.SeriesGroups) {
		s.searchForCurrentSeries(ctx, sess)
		return &AdvanceResult{
			HasMore:   true,
			NextIndex: sess.CurrentSeriesIndex,
			Session:   s.save(sess),
		}
	}

	sess.Status = domain.SessionStatusFetchingIssues
	s.save(sess)

	s.prepareFileChanges(ctx, sess)
	sess.Status = domain.SessionStatusFileReview

	return &AdvanceResult{
		HasMore:   false,
		NextIndex: sess.CurrentSeriesIndex,
		Session:   s.save(sess),
	}
}

// NavigateToSeriesGroup reopens a decided group, keeping its selection.
func (s *Service) NavigateToSeriesGroup(ctx context.Context, sessionID string, index int) (*domain.ApprovalSession, error) {
	return s.rewind(ctx, sessionID, index, false)
}

// ResetSeriesGroup reopens a group and clears its selection.
func (s *Service) ResetSeriesGroup(ctx context.Context, sessionID string, index int) (*domain.ApprovalSession, error) {
	return s.rewind(ctx, sessionID, index, true)
}

func (s *Service) rewind(ctx context.Context, sessionID string, index int, clearSelection bool) (*domain.ApprovalSession, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusSeriesApproval, domain.SessionStatusFileReview); err != nil {
		return nil, err
	}
	g, err := groupAt(sess, index)
	if err != nil {
		return nil, err
	}

	discardReview(sess, g)

	g.Status = domain.GroupStatusPending
	if clearSelection {
		g.SelectedSeries = nil
		g.IssueMatchingSeries = nil
		g.AutoSelected = false
		g.SearchResults = nil
		g.SearchPagination = domain.Pagination{}
	}

	sess.Status = domain.SessionStatusSeriesApproval
	sess.CurrentSeriesIndex = index

	s.searchForCurrentSeries(ctx, sess)
	return s.save(sess), nil
}

// SearchSeriesCustom re-queries the current group with a user-supplied query.
func (s *Service) SearchSeriesCustom(ctx context.Context, sessionID, query string) (*domain.ApprovalSession, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domainerrors.Validation("query is required")
	}

	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusSeriesApproval); err != nil {
		return nil, err
	}
	g := sess.CurrentGroup()
	if g == nil {
		return nil, domainerrors.Validation("no series group awaiting approval")
	}

	g.Query = query
	s.runSearch(ctx, sess, g, 0)
	return s.save(sess), nil
}

// LoadMoreSeriesResults appends the next page of results for the current group.
func (s *Service) LoadMoreSeriesResults(ctx context.Context, sessionID string) (*domain.ApprovalSession, error) {
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(sess, domain.SessionStatusSeriesApproval); err != nil {
		return nil, err
	}
	g := sess.CurrentGroup()
	if g == nil {
		return nil, domainerrors.Validation("no series group awaiting approval")
	}
	if !g.SearchPagination.HasMore {
		return sess, nil
	}

	offset := g.SearchPagination.Offset + g.SearchPagination.Limit
	s.runSearch(ctx, sess, g, offset)
	return s.save(sess), nil
}

// decision identifies what a group was bound to, so a re-confirmed group
// keeps its review rows and a changed one is reviewed again.
func decision(g *domain.SeriesGroup) string {
	key := string(g.Status)
	for _, m := range []*domain.SeriesMatch{g.SelectedSeries, g.IssueMatchingSeries} {
		key += "|"
		if m != nil {
			key += m.Key()
		}
	}
	return key
}

func discardReview(sess *domain.ApprovalSession, g *domain.SeriesGroup) {
	for _, fileID := range g.FileIDs {
		delete(sess.FileChanges, fileID)
	}
}

// resolveSelection finds id among the group's results, or the group's current
// selection when a re-search no longer lists it.
func resolveSelection(g *domain.SeriesGroup, id string) (domain.SeriesMatch, bool) {
	if m, ok := g.FindResult(id); ok {
		return m, true
	}
	for _, m := range []*domain.SeriesMatch{g.SelectedSeries, g.IssueMatchingSeries} {
		if m != nil && (m.Key() == id || m.SourceID == id) {
			return *m, true
		}
	}
	return domain.SeriesMatch{}, false
}

// groupYear is the earliest year parsed from the group's filenames.
func groupYear(g *domain.SeriesGroup) int {
	year := 0
	for _, p := range g.ParsedFiles {
		if p.Year > 0 && (year == 0 || p.Year < year) {
			year = p.Year
		}
	}
	return year
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
