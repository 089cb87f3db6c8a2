package api

import (
	"context"

	"github.com/inkwellapp/inkwell-server/internal/approval"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/search"
)

// ApprovalService is the approval pipeline as driven by HTTP clients.
type ApprovalService interface {
	CreateSession(ctx context.Context, libraryID string, fileIDs []string) (*domain.ApprovalSession, error)
	GetSession(ctx context.Context, sessionID string) (*domain.ApprovalSession, error)
	DeleteSession(ctx context.Context, sessionID string) error

	SearchSeriesCustom(ctx context.Context, sessionID, query string) (*domain.ApprovalSession, error)
	LoadMoreSeriesResults(ctx context.Context, sessionID string) (*domain.ApprovalSession, error)
	ApproveSeries(ctx context.Context, sessionID, selectedID, issueMatchingID string) (*approval.AdvanceResult, error)
	SkipSeries(ctx context.Context, sessionID string) (*approval.AdvanceResult, error)
	NavigateToSeriesGroup(ctx context.Context, sessionID string, index int) (*domain.ApprovalSession, error)
	ResetSeriesGroup(ctx context.Context, sessionID string, index int) (*domain.ApprovalSession, error)

	MoveFileToSeriesGroup(ctx context.Context, sessionID, fileID string, targetIndex int) (*domain.ApprovalSession, error)
	ManualSelectIssue(ctx context.Context, sessionID, fileID, issueID string) (*domain.FileChange, error)
	UpdateFieldApprovals(ctx context.Context, sessionID, fileID string, updates map[string]approval.FieldUpdate) (*domain.FileChange, error)
	RegenerateRenamePreview(ctx context.Context, sessionID, fileID string, fieldValues map[string]string) (*domain.FileChange, error)
	RejectFile(ctx context.Context, sessionID, fileID string) (*domain.FileChange, error)
	AcceptAllFiles(ctx context.Context, sessionID string) (*domain.ApprovalSession, error)
	RejectAllFiles(ctx context.Context, sessionID string) (*domain.ApprovalSession, error)

	ApplyChanges(ctx context.Context, sessionID string) (*domain.ApplyResult, error)
}

// CatalogSearcher queries the catalog search index.
type CatalogSearcher interface {
	Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error)
	DocumentCount() (uint64, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports how many approval sessions are live.
type SessionCounter interface {
	Len() int
}

// Services groups everything the API server delegates to.
// Search, Catalog and Sessions may be nil; health then reports them as
// unavailable.
type Services struct {
	Approval ApprovalService
	Search   CatalogSearcher
	Catalog  Pinger
	Sessions SessionCounter
}
