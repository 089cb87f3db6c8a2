// Package approval implements the metadata approval pipeline: series
// approval, file review and apply, run once per session over a batch of
// catalog files.
//
// Every operation loads a private copy of the session, mutates it and writes
// it back as a unit. A session is driven by one caller at a time.
package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/filename"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/rename"
)

// searchPageSize is how many series candidates one search page holds.
const searchPageSize = 10

// MetadataProvider searches external sources and fetches details.
type MetadataProvider interface {
	Source(name string) (domain.MetadataSource, bool)
	SearchSeries(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SeriesSearchResult, error)
	GetSeries(ctx context.Context, source, id string) (*domain.SeriesDetail, error)
	GetIssueDetail(ctx context.Context, source, issueID string) (*domain.Issue, error)
}

// IssueCache serves issue indexes. GetOrFetchIssues returns nil when the
// index is unavailable.
type IssueCache interface {
	GetOrFetchIssues(ctx context.Context, source, seriesID string) (*domain.IssueList, error)
	StoreIssueDetails(ctx context.Context, source, seriesID string, details []domain.Issue) error
}

// ArchiveStore reads and writes embedded archive metadata.
type ArchiveStore interface {
	ReadAll(ctx context.Context, path string) (*domain.ComicMetadata, error)
	Merge(ctx context.Context, path string, fields map[string]string) error
	NeedsConversion(path string) bool
	Convert(ctx context.Context, path string) (string, error)
}

// CatalogStore is the relational catalog of libraries, files and series.
type CatalogStore interface {
	GetLibrary(ctx context.Context, id string) (*domain.Library, error)
	GetFile(ctx context.Context, id string) (*domain.ComicFile, error)
	GetFilesByIDs(ctx context.Context, ids []string) ([]*domain.ComicFile, error)
	UpdateFilePath(ctx context.Context, id, path string) error
	UpsertFileMetadata(ctx context.Context, fileID string, md domain.ComicMetadata) error
	AssignFileSeries(ctx context.Context, seriesID string, fileIDs ...string) error
	MarkStatsDirty(ctx context.Context, fileID string) error

	CreateSeries(ctx context.Context, sr *domain.Series) error
	GetSeries(ctx context.Context, id string) (*domain.Series, error)
	GetSeriesBySource(ctx context.Context, libraryID, source, sourceID string) (*domain.Series, error)
	FindSeriesByName(ctx context.Context, libraryID, name string) (*domain.Series, error)
	UpdateSeriesFromSource(ctx context.Context, seriesID string, src domain.SeriesMatch) ([]string, error)
}

// FilenameParser infers series and numbering from a filename.
type FilenameParser interface {
	Parse(name string) filename.Result
}

// RenameTemplate proposes a canonical filename for metadata.
type RenameTemplate interface {
	Propose(ctx context.Context, md domain.ComicMetadata, rc rename.Context) (string, bool)
}

// SearchIndexer refreshes catalog search documents after apply.
type SearchIndexer interface {
	IndexFile(f *domain.ComicFile, md *domain.ComicMetadata) error
	IndexSeries(sr *domain.Series) error
}

// ProgressFunc receives human-readable progress. It never affects control flow.
type ProgressFunc func(stage, detail string)

// Deps are the collaborators of the pipeline. Index may be nil.
type Deps struct {
	Sessions *SessionStore
	Provider MetadataProvider
	Issues   IssueCache
	Archives ArchiveStore
	Catalog  CatalogStore
	Parser   FilenameParser
	Renamer  RenameTemplate
	Index    SearchIndexer
}

// Service drives approval sessions through their stages.
type Service struct {
	sessions *SessionStore
	provider MetadataProvider
	issues   IssueCache
	archives ArchiveStore
	catalog  CatalogStore
	parser   FilenameParser
	renamer  RenameTemplate
	index    SearchIndexer

	cfg      config.ApprovalConfig
	progress ProgressFunc
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates the approval service.
func NewService(deps Deps, cfg config.ApprovalConfig, log *slog.Logger) *Service {
	return &Service{
		sessions: deps.Sessions,
		provider: deps.Provider,
		issues:   deps.Issues,
		archives: deps.Archives,
		catalog:  deps.Catalog,
		parser:   deps.Parser,
		renamer:  deps.Renamer,
		index:    deps.Index,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.OrDiscard(log),
	}
}

// SetProgress installs a progress callback. nil disables reporting.
func (s *Service) SetProgress(fn ProgressFunc) {
	s.progress = fn
}

func (s *Service) report(stage, detail string) {
	if s.progress != nil {
		s.progress(stage, detail)
	}
}

// GetSession returns a snapshot of a session.
func (s *Service) GetSession(_ context.Context, sessionID string) (*domain.ApprovalSession, error) {
	return s.load(sessionID)
}

// DeleteSession abandons a session. Nothing it staged is applied.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return errSessionNotFound()
	}
	s.sessions.Delete(sessionID)
	return nil
}

// load returns a private copy of a session or a not-found error.
func (s *Service) load(sessionID string) (*domain.ApprovalSession, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, errSessionNotFound()
	}
	return sess, nil
}

// save stamps and stores a session, returning a snapshot for the caller.
func (s *Service) save(sess *domain.ApprovalSession) *domain.ApprovalSession {
	sess.Touch(s.now())
	s.sessions.Set(sess)
	return sess.Clone()
}

func errSessionNotFound() error {
	return domainerrors.NotFound("Session not found")
}

func requireStatus(sess *domain.ApprovalSession, allowed ...domain.SessionStatus) error {
	for _, st := range allowed {
		if sess.Status == st {
			return nil
		}
	}
	return domainerrors.Validationf("session is %s", sess.Status)
}

func groupAt(sess *domain.ApprovalSession, index int) (*domain.SeriesGroup, error) {
	if index < 0 || index >= len(sess.SeriesGroups) {
		return nil, domainerrors.Validationf("series group index %d out of range", index)
	}
	return sess.SeriesGroups[index], nil
}
