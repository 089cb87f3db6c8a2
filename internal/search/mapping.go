package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for search documents.
//
// Names and titles use English stemming, people and publishers the simple
// analyzer, and ids/types exact keywords for filtering.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	for _, field := range []string{"name", "series_name", "title"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = en.AnalyzerName
		fm.Store = true
		fm.IncludeTermVectors = true // For highlighting
		docMapping.AddFieldMappingsAt(field, fm)
	}

	summaryFieldMapping := bleve.NewTextFieldMapping()
	summaryFieldMapping.Analyzer = en.AnalyzerName
	summaryFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("summary", summaryFieldMapping)

	// Credits and publisher: no stemming on names.
	for _, field := range []string{"writer", "artist", "publisher"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = simple.Name
		fm.Store = true
		docMapping.AddFieldMappingsAt(field, fm)
	}

	for _, field := range []string{"id", "type", "library_id", "number"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		docMapping.AddFieldMappingsAt(field, fm)
	}

	yearFieldMapping := bleve.NewNumericFieldMapping()
	yearFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("year", yearFieldMapping)

	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
