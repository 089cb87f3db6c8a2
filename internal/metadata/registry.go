package metadata

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Registry federates providers and ranks their series candidates.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	logger    *slog.Logger
}

// NewRegistry creates a registry with the given providers in default priority order.
func NewRegistry(log *slog.Logger, providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		logger:    logger.OrDiscard(log),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider. A provider with the same source name is replaced.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Source().Name
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Sources lists registered sources in default priority order.
func (r *Registry) Sources() []domain.MetadataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.MetadataSource, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name].Source())
	}
	return out
}

// Source returns the descriptor of a named source.
func (r *Registry) Source(name string) (domain.MetadataSource, bool) {
	p, err := r.provider(name)
	if err != nil {
		return domain.MetadataSource{}, false
	}
	return p.Source(), true
}

func (r *Registry) provider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, WrapError("lookup", name, "", ErrUnknownSource)
	}
	return p, nil
}

// priority orders sources for a library type: sources with an issue index
// first for western libraries, without one first for manga libraries.
func (r *Registry) priority(libraryType domain.LibraryType, only []string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	for _, name := range r.order {
		if len(only) > 0 && !slices.Contains(only, name) {
			continue
		}
		out = append(out, r.providers[name])
	}

	rank := func(p Provider) int {
		indexed := p.Source().ProvidesIssueIndex
		switch libraryType {
		case domain.LibraryTypeWestern:
			if indexed {
				return 0
			}
			return 1
		case domain.LibraryTypeManga:
			if indexed {
				return 1
			}
			return 0
		default:
			return 0
		}
	}
	slices.SortStableFunc(out, func(a, b Provider) int {
		return cmp.Compare(rank(a), rank(b))
	})
	return out
}

type rankedMatch struct {
	match    domain.SeriesMatch
	priority int
}

// SearchSeries queries every eligible source, scores and merges candidates,
// and returns the requested page. It fails only if every source failed.
func (r *Registry) SearchSeries(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SeriesSearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)
	offset := max(opts.Offset, 0)

	providers := r.priority(opts.LibraryType, opts.Sources)
	if len(providers) == 0 {
		return nil, WrapError("search", "registry", "", ErrUnknownSource)
	}

	// Every source is asked for enough candidates to fill the merged page.
	want := offset + limit

	var (
		merged   []rankedMatch
		errs     []error
		upstream bool
	)
	for i, p := range providers {
		src := p.Source().Name
		matches, more, err := p.SearchSeries(ctx, query, want, 0)
		if err != nil {
			r.logger.Warn("series search failed", "source", src, "query", query, "error", err)
			errs = append(errs, err)
			continue
		}
		upstream = upstream || more
		for _, m := range matches {
			m.Source = src
			m.Confidence = ScoreSeries(query, opts.Year, m)
			merged = append(merged, rankedMatch{match: m, priority: i})
		}
	}
	if len(errs) == len(providers) {
		return nil, errors.Join(errs...)
	}

	slices.SortStableFunc(merged, func(a, b rankedMatch) int {
		if c := cmp.Compare(b.match.Confidence, a.match.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.priority, b.priority)
	})

	end := min(offset+limit, len(merged))
	start := min(offset, end)
	page := make([]domain.SeriesMatch, 0, end-start)
	for _, rm := range merged[start:end] {
		page = append(page, rm.match)
	}

	r.logger.Debug("series search",
		"query", query,
		"library_type", opts.LibraryType,
		"candidates", len(merged),
		"returned", len(page),
	)

	return &domain.SeriesSearchResult{
		Series: page,
		Pagination: domain.Pagination{
			Offset:  offset,
			Limit:   limit,
			HasMore: len(merged) > end || upstream,
		},
	}, nil
}

// GetSeries fetches full series detail from its source.
func (r *Registry) GetSeries(ctx context.Context, source, id string) (*domain.SeriesDetail, error) {
	p, err := r.provider(source)
	if err != nil {
		return nil, err
	}
	return p.GetSeries(ctx, id)
}

// ListIssues fetches the full issue index of a series.
func (r *Registry) ListIssues(ctx context.Context, source, seriesID string) ([]domain.Issue, error) {
	p, err := r.provider(source)
	if err != nil {
		return nil, err
	}
	if !p.Source().ProvidesIssueIndex {
		return nil, WrapError("listIssues", source, seriesID, ErrNoIssueIndex)
	}
	return p.ListIssues(ctx, seriesID)
}

// GetIssueDetail fetches one issue including credits.
func (r *Registry) GetIssueDetail(ctx context.Context, source, issueID string) (*domain.Issue, error) {
	p, err := r.provider(source)
	if err != nil {
		return nil, err
	}
	return p.GetIssue(ctx, issueID)
}
