package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchCatalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search catalog",
		Description: "Full-text search over catalog files and series",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput contains search query parameters.
type SearchInput struct {
	Query     string `query:"q" doc:"Search text"`
	Types     string `query:"types" doc:"Comma-separated document types: file, series"`
	LibraryID string `query:"library_id" doc:"Restrict to one library"`
	MinYear   int    `query:"min_year" minimum:"0" doc:"Earliest publication year"`
	MaxYear   int    `query:"max_year" minimum:"0" doc:"Latest publication year"`
	Limit     int    `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size"`
	Offset    int    `query:"offset" minimum:"0" doc:"Results to skip"`
}

// SearchOutput wraps the search result for Huma.
type SearchOutput struct {
	Body *search.SearchResult
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if s.services.Search == nil {
		return nil, domainerrors.Internal("search is not configured")
	}

	params := search.DefaultSearchParams()
	params.Query = strings.TrimSpace(input.Query)
	params.LibraryID = input.LibraryID
	params.MinYear = input.MinYear
	params.MaxYear = input.MaxYear
	params.Offset = input.Offset
	if input.Limit > 0 {
		params.Limit = input.Limit
	}
	for _, t := range strings.Split(input.Types, ",") {
		switch t = strings.TrimSpace(t); t {
		case "":
		case string(search.DocTypeFile), string(search.DocTypeSeries):
			params.Types = append(params.Types, t)
		default:
			return nil, domainerrors.Validationf("unknown document type %q", t)
		}
	}

	res, err := s.services.Search.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Body: res}, nil
}
