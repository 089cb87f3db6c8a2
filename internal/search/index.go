package search

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
)

// mappingVersion is bumped whenever buildIndexMapping changes. An index
// written under another version is dropped and rebuilt empty; the catalog
// repopulates it as files are applied.
const mappingVersion = "comic-1"

// SearchIndex is the catalog's full-text index over files and series.
// All methods are safe for concurrent use.
type SearchIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex // exclusive only in Close
}

// Options configures the search index.
type Options struct {
	DataPath string
	Logger   *slog.Logger
}

// NewSearchIndex opens the index under opts.DataPath, recreating it when it
// is missing, unreadable or built with an older mapping.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	log := logger.OrDiscard(opts.Logger)

	indexPath := filepath.Join(opts.DataPath, "catalog.bleve")
	versionPath := filepath.Join(opts.DataPath, "catalog.version")

	index, err := openCurrent(indexPath, versionPath, log)
	if err != nil {
		return nil, err
	}
	if index == nil {
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("remove stale index: %w", err)
		}
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			log.Warn("Failed to write search version file", "error", err)
		}
		log.Info("Created search index", "path", indexPath, "mapping_version", mappingVersion)
	}

	return &SearchIndex{index: index, path: indexPath, logger: log}, nil
}

// openCurrent returns the existing index when its mapping version matches,
// or nil when it must be rebuilt.
func openCurrent(indexPath, versionPath string, log *slog.Logger) (bleve.Index, error) {
	if _, err := os.Stat(indexPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}

	version, err := os.ReadFile(versionPath)
	if err != nil || string(version) != mappingVersion {
		log.Info("Search index mapping changed, rebuilding",
			"old_version", string(version),
			"new_version", mappingVersion,
		)
		return nil, nil
	}

	index, err := bleve.Open(indexPath)
	if err != nil {
		log.Warn("Search index unreadable, rebuilding", "path", indexPath, "error", err)
		return nil, nil
	}
	log.Info("Opened search index", "path", indexPath)
	return index, nil
}

// Close closes the index.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// DocumentCount returns the number of indexed documents.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// IndexFile indexes or refreshes a comic file document.
func (s *SearchIndex) IndexFile(f *domain.ComicFile, md *domain.ComicMetadata) error {
	return s.put(FileToSearchDocument(f, md))
}

// IndexSeries indexes or refreshes a series document.
func (s *SearchIndex) IndexSeries(sr *domain.Series) error {
	return s.put(SeriesToSearchDocument(sr))
}

// DeleteFile removes a file document. Unknown ids are not an error.
func (s *SearchIndex) DeleteFile(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(id)
}

func (s *SearchIndex) put(doc *SearchDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// The mapping is keyed by lowercase field names.
	return s.index.Index(doc.ID, doc.ToMap())
}
