// Package metadata federates external comic metadata sources behind one registry.
//
// Each source implements Provider and declares whether it publishes a per-issue
// index. The approval pipeline dispatches on that capability rather than on
// source names.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// Sentinel errors shared by source clients.
var (
	ErrNotFound      = errors.New("metadata: not found")
	ErrRateLimited   = errors.New("metadata: rate limited by server")
	ErrBadRequest    = errors.New("metadata: bad request")
	ErrServer        = errors.New("metadata: server error")
	ErrUnauthorized  = errors.New("metadata: unauthorized")
	ErrNoIssueIndex  = errors.New("metadata: source has no issue index")
	ErrUnknownSource = errors.New("metadata: unknown source")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op     string // search, getSeries, listIssues, getIssue
	Source string
	ID     string // If applicable
	Err    error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s [%s]: %v", e.Source, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError creates an Error with context.
func WrapError(op, source, id string, err error) error {
	return &Error{Op: op, Source: source, ID: id, Err: err}
}

// Provider is one external metadata source.
type Provider interface {
	Source() domain.MetadataSource

	// SearchSeries returns up to limit candidates starting at offset, and
	// whether the source has more beyond them. Confidence is left at zero.
	SearchSeries(ctx context.Context, query string, limit, offset int) ([]domain.SeriesMatch, bool, error)
	GetSeries(ctx context.Context, id string) (*domain.SeriesDetail, error)

	// ListIssues and GetIssue return ErrNoIssueIndex for sources without one.
	ListIssues(ctx context.Context, seriesID string) ([]domain.Issue, error)
	GetIssue(ctx context.Context, issueID string) (*domain.Issue, error)
}
