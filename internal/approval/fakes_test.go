package approval

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/archive"
	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/filename"
	"github.com/inkwellapp/inkwell-server/internal/rename"
)

const (
	testLibraryID = "lib-1"
	sourceWestern = "comicvine"
	sourceManga   = "mangadex"
)

// fakeProvider serves canned search pages and details.
type fakeProvider struct {
	mu sync.Mutex

	sources map[string]domain.MetadataSource
	// results are returned for every query; paged by offset/limit.
	results   []domain.SeriesMatch
	searchErr error
	details   map[string]*domain.SeriesDetail
	issues    map[string]*domain.Issue

	searches     []string
	searchOpts   []domain.SearchOptions
	detailCalls  int
	detailFailed map[string]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sources: map[string]domain.MetadataSource{
			sourceWestern: {Name: sourceWestern, ProvidesIssueIndex: true},
			sourceManga:   {Name: sourceManga, ProvidesIssueIndex: false},
		},
		details:      make(map[string]*domain.SeriesDetail),
		issues:       make(map[string]*domain.Issue),
		detailFailed: make(map[string]bool),
	}
}

func (p *fakeProvider) Source(name string) (domain.MetadataSource, bool) {
	src, ok := p.sources[name]
	return src, ok
}

func (p *fakeProvider) SearchSeries(_ context.Context, query string, opts domain.SearchOptions) (*domain.SeriesSearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searches = append(p.searches, query)
	p.searchOpts = append(p.searchOpts, opts)
	if p.searchErr != nil {
		return nil, p.searchErr
	}

	start := min(opts.Offset, len(p.results))
	end := min(start+opts.Limit, len(p.results))
	return &domain.SeriesSearchResult{
		Series: append([]domain.SeriesMatch(nil), p.results[start:end]...),
		Pagination: domain.Pagination{
			Offset:  opts.Offset,
			Limit:   opts.Limit,
			HasMore: end < len(p.results),
		},
	}, nil
}

func (p *fakeProvider) GetSeries(_ context.Context, source, id string) (*domain.SeriesDetail, error) {
	d, ok := p.details[source+":"+id]
	if !ok {
		return nil, domainerrors.NotFound("series not found")
	}
	out := *d
	return &out, nil
}

func (p *fakeProvider) GetIssueDetail(_ context.Context, source, issueID string) (*domain.Issue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detailCalls++
	if p.detailFailed[issueID] {
		return nil, domainerrors.New("detail unavailable")
	}
	issue, ok := p.issues[issueID]
	if !ok {
		return nil, domainerrors.NotFound("issue not found")
	}
	out := *issue
	return &out, nil
}

func (p *fakeProvider) searchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.searches)
}

// fakeIssueCache holds issue indexes keyed by "source:id".
type fakeIssueCache struct {
	mu     sync.Mutex
	lists  map[string]*domain.IssueList
	stored []domain.Issue
	calls  int
}

func newFakeIssueCache() *fakeIssueCache {
	return &fakeIssueCache{lists: make(map[string]*domain.IssueList)}
}

func (c *fakeIssueCache) GetOrFetchIssues(_ context.Context, source, seriesID string) (*domain.IssueList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.lists[source+":"+seriesID], nil
}

func (c *fakeIssueCache) StoreIssueDetails(_ context.Context, _, _ string, details []domain.Issue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, details...)
	return nil
}

// fakeCatalog is an in-memory CatalogStore.
type fakeCatalog struct {
	mu        sync.Mutex
	libraries map[string]*domain.Library
	files     map[string]*domain.ComicFile
	series    map[string]*domain.Series
	metadata  map[string]domain.ComicMetadata
	dirty     []string
	updates   []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		libraries: map[string]*domain.Library{
			testLibraryID: {ID: testLibraryID, Name: "Comics", Type: domain.LibraryTypeWestern},
		},
		files:    make(map[string]*domain.ComicFile),
		series:   make(map[string]*domain.Series),
		metadata: make(map[string]domain.ComicMetadata),
	}
}

func (c *fakeCatalog) GetLibrary(_ context.Context, id string) (*domain.Library, error) {
	lib, ok := c.libraries[id]
	if !ok {
		return nil, domainerrors.NotFoundf("library %s not found", id)
	}
	out := *lib
	return &out, nil
}

func (c *fakeCatalog) GetFile(_ context.Context, id string) (*domain.ComicFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[id]
	if !ok {
		return nil, domainerrors.NotFoundf("file %s not found", id)
	}
	out := *f
	return &out, nil
}

func (c *fakeCatalog) GetFilesByIDs(_ context.Context, ids []string) ([]*domain.ComicFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*domain.ComicFile
	for _, id := range ids {
		if f, ok := c.files[id]; ok {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (c *fakeCatalog) UpdateFilePath(_ context.Context, id, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[id]
	if !ok {
		return domainerrors.NotFound("file not found")
	}
	f.Path = path
	return nil
}

func (c *fakeCatalog) UpsertFileMetadata(_ context.Context, fileID string, md domain.ComicMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[fileID] = md
	return nil
}

func (c *fakeCatalog) AssignFileSeries(_ context.Context, seriesID string, fileIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range fileIDs {
		if f, ok := c.files[id]; ok {
			f.SeriesID = seriesID
		}
	}
	return nil
}

func (c *fakeCatalog) MarkStatsDirty(_ context.Context, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = append(c.dirty, fileID)
	return nil
}

func (c *fakeCatalog) CreateSeries(_ context.Context, sr *domain.Series) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *sr
	c.series[sr.ID] = &cp
	return nil
}

func (c *fakeCatalog) GetSeries(_ context.Context, id string) (*domain.Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sr, ok := c.series[id]
	if !ok {
		return nil, domainerrors.NotFound("series not found")
	}
	cp := *sr
	return &cp, nil
}

func (c *fakeCatalog) GetSeriesBySource(_ context.Context, libraryID, source, sourceID string) (*domain.Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sr := range c.series {
		if sr.LibraryID == libraryID && sr.Source == source && sr.SourceID == sourceID {
			cp := *sr
			return &cp, nil
		}
	}
	return nil, domainerrors.NotFound("series not found")
}

func (c *fakeCatalog) FindSeriesByName(_ context.Context, libraryID, name string) (*domain.Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sr := range c.series {
		if sr.LibraryID == libraryID && sr.Name == name {
			cp := *sr
			return &cp, nil
		}
	}
	return nil, domainerrors.NotFound("series not found")
}

func (c *fakeCatalog) UpdateSeriesFromSource(_ context.Context, seriesID string, src domain.SeriesMatch) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sr, ok := c.series[seriesID]
	if !ok {
		return nil, domainerrors.NotFound("series not found")
	}
	sr.Source, sr.SourceID = src.Source, src.SourceID
	if !sr.IsLocked(domain.SeriesFieldPublisher) && src.Publisher != "" {
		sr.Publisher = src.Publisher
	}
	c.updates = append(c.updates, seriesID)
	return []string{domain.SeriesFieldPublisher}, nil
}

func (c *fakeCatalog) addFile(id, path string, pages int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[id] = &domain.ComicFile{ID: id, LibraryID: testLibraryID, Path: path, PageCount: pages}
}

func (c *fakeCatalog) fileSeries(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[id].SeriesID
}

// fakeIndex records refreshed search documents.
type fakeIndex struct {
	mu     sync.Mutex
	files  []string
	series []string
}

func (x *fakeIndex) IndexFile(f *domain.ComicFile, _ *domain.ComicMetadata) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.files = append(x.files, f.ID)
	return nil
}

func (x *fakeIndex) IndexSeries(sr *domain.Series) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.series = append(x.series, sr.ID)
	return nil
}

// harness wires a Service to fakes, real archives and a real rename engine.
type harness struct {
	svc      *Service
	store    *SessionStore
	provider *fakeProvider
	issues   *fakeIssueCache
	catalog  *fakeCatalog
	index    *fakeIndex
	dir      string
	now      time.Time
	stages   []string
}

func testApprovalConfig() config.ApprovalConfig {
	return config.ApprovalConfig{
		SessionTTL:          30 * time.Minute,
		CompletedRetention:  5 * time.Minute,
		AutoSelectThreshold: 0.8,
		AcceptThreshold:     0.5,
		BestGuess:           true,
		CreditBatchSize:     2,
		CreditBatchDelay:    0,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		provider: newFakeProvider(),
		issues:   newFakeIssueCache(),
		catalog:  newFakeCatalog(),
		index:    &fakeIndex{},
		dir:      t.TempDir(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := testApprovalConfig()
	h.store = NewSessionStore(cfg.SessionTTL, cfg.CompletedRetention, nil)
	h.store.now = func() time.Time { return h.now }

	h.svc = NewService(Deps{
		Sessions: h.store,
		Provider: h.provider,
		Issues:   h.issues,
		Archives: archive.New(archive.Config{}, nil),
		Catalog:  h.catalog,
		Parser:   filename.NewParser(),
		Renamer:  rename.NewEngine(h.catalog, nil),
		Index:    h.index,
	}, cfg, nil)
	h.svc.now = func() time.Time { return h.now }
	h.svc.SetProgress(func(stage, _ string) { h.stages = append(h.stages, stage) })
	return h
}

// addComic writes an empty CBZ with pages images into dir/rel and registers it.
func (h *harness) addComic(t *testing.T, id, rel string, pages int) string {
	t.Helper()
	path := filepath.Join(h.dir, rel)
	writeComic(t, path, pages, nil)
	h.catalog.addFile(id, path, pages)
	return path
}

func writeComic(t *testing.T, path string, pages int, md *domain.ComicMetadata) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for i := range pages {
		w, err := zw.Create(fmt.Sprintf("pages/%03d.jpg", i))
		require.NoError(t, err)
		_, err = w.Write([]byte{0xff, 0xd8, byte(i)})
		require.NoError(t, err)
	}
	if md != nil {
		w, err := zw.Create(archive.ComicInfoName)
		require.NoError(t, err)
		data, err := xml.Marshal(md)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func batmanMatch(confidence float64) domain.SeriesMatch {
	return domain.SeriesMatch{
		Source:     sourceWestern,
		SourceID:   "796",
		Name:       "Batman",
		Publisher:  "DC Comics",
		StartYear:  2011,
		IssueCount: 52,
		Confidence: confidence,
	}
}

func mangaMatch(confidence float64) domain.SeriesMatch {
	return domain.SeriesMatch{
		Source:      sourceManga,
		SourceID:    "md-1",
		Name:        "Series",
		Publisher:   "Kodansha",
		Description: "A manga series.",
		Confidence:  confidence,
	}
}

// withBatmanIssues registers the Batman series detail and an issue index
// numbered 1..n without credits, with full detail available per issue.
func (h *harness) withBatmanIssues(n int) {
	sel := batmanMatch(1)
	h.provider.details[sel.Key()] = &domain.SeriesDetail{SeriesMatch: sel}

	list := &domain.IssueList{Source: sourceWestern, SeriesID: sel.SourceID}
	for i := 1; i <= n; i++ {
		num := string(rune('0' + i))
		issue := domain.Issue{
			Source:    sourceWestern,
			SourceID:  "4000-" + num,
			SeriesID:  sel.SourceID,
			Number:    num,
			Title:     "Issue " + num,
			CoverDate: "2011-11-0" + num,
		}
		list.Issues = append(list.Issues, issue)

		detailed := issue
		detailed.Credits = []domain.Credit{
			{Name: "Scott Snyder", Role: domain.RoleWriter},
			{Name: "Greg Capullo", Role: domain.RolePenciller},
		}
		h.provider.issues[issue.SourceID] = &detailed
	}
	h.issues.lists[sel.Key()] = list
}
