package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
)

const (
	issuesPrefix = "issues:"

	// DefaultIssueCacheTTL bounds how long an issue index is reused.
	DefaultIssueCacheTTL = 24 * time.Hour
)

// IssueSource fetches issue indexes from metadata sources.
type IssueSource interface {
	Source(name string) (domain.MetadataSource, bool)
	ListIssues(ctx context.Context, source, seriesID string) ([]domain.Issue, error)
}

// IssueCache serves series issue indexes from Badger, fetching on a miss.
type IssueCache struct {
	store   *Store
	source  IssueSource
	ttl     time.Duration
	flights singleflight.Group
	logger  *slog.Logger
}

// NewIssueCache creates an issue cache. A non-positive ttl uses DefaultIssueCacheTTL.
func NewIssueCache(s *Store, source IssueSource, ttl time.Duration, log *slog.Logger) *IssueCache {
	if ttl <= 0 {
		ttl = DefaultIssueCacheTTL
	}
	return &IssueCache{
		store:  s,
		source: source,
		ttl:    ttl,
		logger: logger.OrDiscard(log),
	}
}

func issuesKey(source, seriesID string) []byte {
	return fmt.Appendf(nil, "%s%s:%s", issuesPrefix, source, seriesID)
}

// GetCachedIssues retrieves a cached issue index.
// Returns nil, nil if not found or expired.
func (c *IssueCache) GetCachedIssues(ctx context.Context, source, seriesID string) (*domain.IssueList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cached domain.IssueList
	err := c.store.get(issuesKey(source, seriesID), &cached)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached issues: %w", err)
	}

	if time.Since(cached.FetchedAt) > c.ttl {
		return nil, nil // Treat as cache miss
	}

	return &cached, nil
}

// SetCachedIssues stores an issue index.
func (c *IssueCache) SetCachedIssues(ctx context.Context, list *domain.IssueList) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if list.FetchedAt.IsZero() {
		list.FetchedAt = time.Now()
	}
	return c.store.set(issuesKey(list.Source, list.SeriesID), list, c.ttl)
}

// Len returns the number of cached issue indexes.
func (c *IssueCache) Len() (int, error) {
	return c.store.countPrefix([]byte(issuesPrefix))
}

// Invalidate drops a cached issue index.
func (c *IssueCache) Invalidate(ctx context.Context, source, seriesID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.delete(issuesKey(source, seriesID))
}

// GetOrFetchIssues returns the issue index of a series, from cache when fresh.
// It returns nil, nil when the source has no issue index or the fetch failed;
// callers treat that as "unavailable". Concurrent misses share one fetch.
func (c *IssueCache) GetOrFetchIssues(ctx context.Context, source, seriesID string) (*domain.IssueList, error) {
	if src, ok := c.source.Source(source); !ok || !src.ProvidesIssueIndex {
		return nil, nil
	}

	cached, err := c.GetCachedIssues(ctx, source, seriesID)
	if err != nil {
		c.logger.Warn("issue cache read failed", "source", source, "series_id", seriesID, "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	v, err, _ := c.flights.Do(string(issuesKey(source, seriesID)), func() (any, error) {
		issues, err := c.source.ListIssues(ctx, source, seriesID)
		if err != nil {
			return nil, err
		}
		list := &domain.IssueList{
			Source:    source,
			SeriesID:  seriesID,
			Issues:    issues,
			FetchedAt: time.Now(),
		}
		if err := c.SetCachedIssues(ctx, list); err != nil {
			c.logger.Warn("issue cache write failed", "source", source, "series_id", seriesID, "error", err)
		}
		return list, nil
	})
	if err != nil {
		c.logger.Warn("issue index unavailable", "source", source, "series_id", seriesID, "error", err)
		return nil, nil
	}

	c.logger.Debug("issue index fetched", "source", source, "series_id", seriesID)
	return v.(*domain.IssueList), nil
}

// StoreIssueDetails merges fully detailed issues (with credits) into a cached
// index so later sessions skip the detail fetch. Unknown ids are ignored.
func (c *IssueCache) StoreIssueDetails(ctx context.Context, source, seriesID string, details []domain.Issue) error {
	if len(details) == 0 {
		return nil
	}
	cached, err := c.GetCachedIssues(ctx, source, seriesID)
	if err != nil || cached == nil {
		return err
	}

	byID := make(map[string]domain.Issue, len(details))
	for _, d := range details {
		byID[d.SourceID] = d
	}
	for i, issue := range cached.Issues {
		if d, ok := byID[issue.SourceID]; ok {
			cached.Issues[i] = d
		}
	}
	remaining := c.ttl - time.Since(cached.FetchedAt)
	if remaining <= 0 {
		return nil
	}
	return c.store.set(issuesKey(source, seriesID), cached, remaining)
}
