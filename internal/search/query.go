package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchParams configures a search query.
type SearchParams struct {
	Query     string   // User's search query
	Types     []string // Document types to include (empty = all)
	LibraryID string   // Restrict to one library (empty = all)

	MinYear int
	MaxYear int

	Limit  int
	Offset int

	IncludeFacets bool
	Highlight     bool
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:         20,
		IncludeFacets: true,
		Highlight:     true,
	}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []SearchHit  `json:"hits"`
	Facets []FacetCount `json:"facets,omitempty"`
}

// SearchHit represents a single search result.
type SearchHit struct {
	ID         string            `json:"id"`
	Type       DocType           `json:"type"`
	Score      float64           `json:"score"`
	Name       string            `json:"name"`
	SeriesName string            `json:"series_name,omitempty"`
	Title      string            `json:"title,omitempty"`
	Number     string            `json:"number,omitempty"`
	Publisher  string            `json:"publisher,omitempty"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	searchRequest := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	searchRequest.SortBy([]string{"-_score", "name"})

	if params.IncludeFacets {
		searchRequest.AddFacet("type", bleve.NewFacetRequest("type", 10))
	}
	if params.Highlight {
		searchRequest.Highlight = bleve.NewHighlight()
		searchRequest.Highlight.AddField("name")
		searchRequest.Highlight.AddField("series_name")
		searchRequest.Highlight.AddField("title")
	}

	searchRequest.Fields = []string{"id", "type", "name", "series_name", "title", "number", "publisher"}

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		searchHit := SearchHit{
			ID:    hit.ID,
			Score: hit.Score,
		}
		if t, ok := hit.Fields["type"].(string); ok {
			searchHit.Type = DocType(t)
		}
		searchHit.Name, _ = hit.Fields["name"].(string)
		searchHit.SeriesName, _ = hit.Fields["series_name"].(string)
		searchHit.Title, _ = hit.Fields["title"].(string)
		searchHit.Number, _ = hit.Fields["number"].(string)
		searchHit.Publisher, _ = hit.Fields["publisher"].(string)

		if len(hit.Fragments) > 0 {
			searchHit.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					searchHit.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, searchHit)
	}

	if typeFacet, ok := searchResult.Facets["type"]; ok && typeFacet.Terms != nil {
		for _, term := range typeFacet.Terms.Terms() {
			result.Facets = append(result.Facets, FacetCount{Value: term.Term, Count: term.Count})
		}
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if params.Query != "" {
		nameMatch := bleve.NewMatchQuery(params.Query)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)

		seriesMatch := bleve.NewMatchQuery(params.Query)
		seriesMatch.SetField("series_name")
		seriesMatch.SetBoost(2.0)

		titleMatch := bleve.NewMatchQuery(params.Query)
		titleMatch.SetField("title")
		titleMatch.SetBoost(1.5)

		creditMatch := bleve.NewMatchQuery(params.Query)
		creditMatch.SetField("writer")
		creditMatch.SetBoost(0.5)

		fuzzyQuery := bleve.NewFuzzyQuery(strings.ToLower(params.Query))
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("name")
		fuzzyQuery.SetBoost(0.8)

		textQueries := []query.Query{nameMatch, seriesMatch, titleMatch, creditMatch, fuzzyQuery}

		// Prefix query for autocomplete
		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("name")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if len(params.Types) > 0 {
		typeQueries := make([]query.Query, len(params.Types))
		for i, t := range params.Types {
			tq := bleve.NewTermQuery(t)
			tq.SetField("type")
			typeQueries[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(typeQueries...))
	}

	if params.LibraryID != "" {
		lq := bleve.NewTermQuery(params.LibraryID)
		lq.SetField("library_id")
		queries = append(queries, lq)
	}

	if params.MinYear > 0 || params.MaxYear > 0 {
		min := float64(params.MinYear)
		max := float64(params.MaxYear)
		if params.MaxYear == 0 {
			max = 3000
		}
		rangeQuery := bleve.NewNumericRangeQuery(&min, &max)
		rangeQuery.SetField("year")
		queries = append(queries, rangeQuery)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
