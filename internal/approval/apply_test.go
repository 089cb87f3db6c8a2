package approval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/archive"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

func readMetadata(t *testing.T, path string) *domain.ComicMetadata {
	t.Helper()
	md, err := archive.New(archive.Config{}, nil).ReadAll(context.Background(), path)
	require.NoError(t, err)
	return md
}

func TestApplyChanges_WritesRenamesAndSyncs(t *testing.T) {
	h := newHarness(t)
	h.withBatmanIssues(2)
	sess := reviewBatman(t, h, map[string]string{
		"f1": "Batman/Batman #1.cbz",
		"f2": "Batman/Batman #2.cbz",
	})

	result, err := h.svc.ApplyChanges(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 2, result.Renamed)
	assert.Zero(t, result.Collisions)
	assert.Equal(t, 1, result.SidecarsWritten)
	assert.Equal(t, 1, result.SeriesUpdated)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.Results, 2)

	dir := filepath.Join(h.dir, "Batman")
	first := result.Results[0]
	assert.Equal(t, "f1", first.FileID)
	assert.True(t, first.Success)
	assert.True(t, first.Renamed)
	assert.Equal(t, filepath.Join(dir, "Batman (2011) #001.cbz"), first.NewPath)
	assert.NoFileExists(t, filepath.Join(dir, "Batman #1.cbz"))

	md := readMetadata(t, first.NewPath)
	assert.Equal(t, "Batman", md.Series)
	assert.Equal(t, "1", md.Number)
	assert.Equal(t, "Issue 1", md.Title)
	assert.Equal(t, "Scott Snyder", md.Writer)

	// Catalog and index follow the files.
	f1, err := h.catalog.GetFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, first.NewPath, f1.Path)
	assert.NotEmpty(t, f1.SeriesID)
	assert.Equal(t, f1.SeriesID, h.catalog.fileSeries("f2"))
	assert.ElementsMatch(t, []string{"f1", "f2"}, h.catalog.dirty)
	assert.Equal(t, "Issue 2", h.catalog.metadata["f2"].Title)
	assert.ElementsMatch(t, []string{"f1", "f2"}, h.index.files)
	assert.Equal(t, []string{f1.SeriesID}, h.index.series)

	sr, err := h.catalog.GetSeries(context.Background(), f1.SeriesID)
	require.NoError(t, err)
	assert.Equal(t, "796", sr.SourceID)
	assert.Equal(t, "DC Comics", sr.Publisher)

	data, err := os.ReadFile(filepath.Join(dir, SidecarName))
	require.NoError(t, err)
	var sidecar domain.SeriesSidecar
	require.NoError(t, json.Unmarshal(data, &sidecar))
	assert.Equal(t, "Batman", sidecar.Name)
	assert.Equal(t, "comicvine", sidecar.Source)

	got, err := h.svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusComplete, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ApplyResult)
	assert.Equal(t, 2, got.ApplyResult.Successful)

	// Completed sessions linger for polling, then go.
	h.now = h.now.Add(6 * time.Minute)
	_, err = h.svc.GetSession(context.Background(), sess.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestApplyChanges_RenameCollision(t *testing.T) {
	h := newHarness(t)
	h.withBatmanIssues(1)
	sess := reviewBatman(t, h, map[string]string{"f1": "Batman/Batman #1.cbz"})
	ctx := context.Background()

	// Leave only the rename approved.
	updates := make(map[string]FieldUpdate)
	for name := range sess.FileChanges["f1"].Fields {
		if name != domain.FieldRename {
			updates[name] = FieldUpdate{Approved: ptr(false)}
		}
	}
	_, err := h.svc.UpdateFieldApprovals(ctx, sess.ID, "f1", updates)
	require.NoError(t, err)

	dir := filepath.Join(h.dir, "Batman")
	taken := filepath.Join(dir, "Batman (2011) #001.cbz")
	require.NoError(t, os.WriteFile(taken, []byte("someone else"), 0o644))

	result, err := h.svc.ApplyChanges(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	r := result.Results[0]
	assert.True(t, r.Success)
	assert.True(t, r.Renamed)
	assert.True(t, r.HadCollision)
	assert.Equal(t, filepath.Join(dir, "Batman (2011) #001 (1).cbz"), r.NewPath)
	assert.Equal(t, 1, result.Collisions)
	assert.FileExists(t, r.NewPath)

	data, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, "someone else", string(data))

	// No metadata field was approved, so nothing was written into the archive.
	assert.Empty(t, readMetadata(t, r.NewPath).Series)
}

func TestApplyChanges_RejectedFilesUntouched(t *testing.T) {
	h := newHarness(t)
	h.withBatmanIssues(2)
	sess := reviewBatman(t, h, map[string]string{
		"f1": "Batman/Batman #1.cbz",
		"f2": "Batman/Batman #2.cbz",
	})
	ctx := context.Background()

	_, err := h.svc.RejectFile(ctx, sess.ID, "f2")
	require.NoError(t, err)

	result, err := h.svc.ApplyChanges(ctx, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "f1", result.Results[0].FileID)

	original := filepath.Join(h.dir, "Batman", "Batman #2.cbz")
	assert.FileExists(t, original)
	assert.Empty(t, readMetadata(t, original).Series)
	assert.NotContains(t, h.catalog.dirty, "f2")
	assert.NotContains(t, h.catalog.metadata, "f2")
}

func TestApplyChanges_ConversionFailureIsolated(t *testing.T) {
	h := newHarness(t)
	h.svc.archives = archive.New(archive.Config{ExtractorPath: filepath.Join(t.TempDir(), "missing-7z")}, nil)
	h.withBatmanIssues(2)
	sess := reviewBatman(t, h, map[string]string{
		"f1": "Batman/Batman #1.cbr",
		"f2": "Batman/Batman #2.cbz",
	})

	// The preview already names the converted file.
	assert.Equal(t, "Batman (2011) #001.cbz", sess.FileChanges["f1"].Fields[domain.FieldRename].Proposed)

	result, err := h.svc.ApplyChanges(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.ConversionFailed)
	assert.Zero(t, result.Converted)

	assert.False(t, result.Results[0].Success)
	assert.True(t, strings.HasPrefix(result.Results[0].Error, "convert:"))
	assert.FileExists(t, filepath.Join(h.dir, "Batman", "Batman #1.cbr"))
	assert.True(t, result.Results[1].Success)
}

// convertingArchives "converts" by renaming, since test fixtures are zips already.
type convertingArchives struct {
	*archive.Store
}

func (c convertingArchives) Convert(_ context.Context, path string) (string, error) {
	dest := strings.TrimSuffix(path, filepath.Ext(path)) + ".cbz"
	return dest, os.Rename(path, dest)
}

func TestApplyChanges_ConvertsBeforeWriting(t *testing.T) {
	h := newHarness(t)
	h.svc.archives = convertingArchives{archive.New(archive.Config{}, nil)}
	h.withBatmanIssues(1)
	sess := reviewBatman(t, h, map[string]string{"f1": "Batman/Batman #1.cbr"})
	ctx := context.Background()

	_, err := h.svc.UpdateFieldApprovals(ctx, sess.ID, "f1", map[string]FieldUpdate{
		domain.FieldRename: {Approved: ptr(false)},
	})
	require.NoError(t, err)

	result, err := h.svc.ApplyChanges(ctx, sess.ID)
	require.NoError(t, err)

	r := result.Results[0]
	assert.True(t, r.Success)
	assert.True(t, r.Converted)
	assert.False(t, r.Renamed)
	assert.Equal(t, 1, result.Converted)

	converted := filepath.Join(h.dir, "Batman", "Batman #1.cbz")
	assert.Equal(t, converted, r.NewPath)
	assert.Equal(t, "Issue 1", readMetadata(t, converted).Title)

	f, err := h.catalog.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, converted, f.Path)
}

func TestApplyChanges_MixedFolderSidecar(t *testing.T) {
	h := newHarness(t)
	h.withBatmanIssues(1)
	manga := mangaMatch(0.5)
	h.provider.results = []domain.SeriesMatch{batmanMatch(0.5), manga}
	h.addComic(t, "f1", "Shelf/Batman #1.cbz", 24)
	h.addComic(t, "f2", "Shelf/Saga #1.cbz", 24)
	ctx := context.Background()

	sess, err := h.svc.CreateSession(ctx, testLibraryID, []string{"f1", "f2"})
	require.NoError(t, err)
	require.Len(t, sess.SeriesGroups, 2)
	_, err = h.svc.ApproveSeries(ctx, sess.ID, "comicvine:796", "")
	require.NoError(t, err)
	_, err = h.svc.ApproveSeries(ctx, sess.ID, "mangadex:md-1", "")
	require.NoError(t, err)

	result, err := h.svc.ApplyChanges(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.SidecarsWritten)
	assert.Equal(t, 2, result.SeriesUpdated)

	data, err := os.ReadFile(filepath.Join(h.dir, "Shelf", SidecarName))
	require.NoError(t, err)
	var mapping map[string]domain.SeriesSidecar
	require.NoError(t, json.Unmarshal(data, &mapping))
	require.Len(t, mapping, 2)
	assert.Equal(t, "Batman", mapping[normalize.SeriesKey("Batman")].Name)
	assert.Equal(t, "md-1", mapping[normalize.SeriesKey("Series")].SourceID)
}

func TestSidecarPhase_SameNameDistinctSeries(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(h.dir, "Shelf")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	volume1 := batmanMatch(0.9)
	volume2 := batmanMatch(0.9)
	volume2.SourceID = "42721"
	volume2.StartYear = 2016
	theBatman := batmanMatch(0.9)
	theBatman.SourceID = "150000"
	theBatman.Name = "The Batman"

	item := func(name string, sel domain.SeriesMatch) *applyItem {
		return &applyItem{
			path:  filepath.Join(dir, name),
			group: &domain.SeriesGroup{SelectedSeries: &sel},
		}
	}

	tests := []struct {
		name     string
		items    []*applyItem
		wantKeys []string
	}{
		{
			name:     "same series twice is one entry",
			items:    []*applyItem{item("a.cbz", volume1), item("b.cbz", volume1)},
			wantKeys: nil,
		},
		{
			name:  "two volumes of one name",
			items: []*applyItem{item("a.cbz", volume1), item("b.cbz", volume2)},
			wantKeys: []string{
				normalize.SeriesKey("Batman") + " [comicvine:796]",
				normalize.SeriesKey("Batman") + " [comicvine:42721]",
			},
		},
		{
			name:  "article folds to the same name",
			items: []*applyItem{item("a.cbz", volume1), item("b.cbz", theBatman)},
			wantKeys: []string{
				normalize.SeriesKey("Batman") + " [comicvine:796]",
				normalize.SeriesKey("The Batman") + " [comicvine:150000]",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &domain.ApplyResult{}
			h.svc.sidecarPhase(tt.items, result)
			require.Equal(t, 1, result.SidecarsWritten)

			data, err := os.ReadFile(filepath.Join(dir, SidecarName))
			require.NoError(t, err)

			if tt.wantKeys == nil {
				var single domain.SeriesSidecar
				require.NoError(t, json.Unmarshal(data, &single))
				assert.Equal(t, "796", single.SourceID)
				return
			}

			var mapping map[string]domain.SeriesSidecar
			require.NoError(t, json.Unmarshal(data, &mapping))
			require.Len(t, mapping, len(tt.wantKeys))
			for _, key := range tt.wantKeys {
				assert.Contains(t, mapping, key)
			}
		})
	}
}

func TestApplyChanges_NothingApproved(t *testing.T) {
	h := newHarness(t)
	h.withBatmanIssues(1)
	sess := reviewBatman(t, h, map[string]string{"f1": "Batman/Batman #9.cbz"})

	result, err := h.svc.ApplyChanges(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Empty(t, result.Results)
	assert.Empty(t, h.catalog.dirty)

	_, err = h.svc.ApplyChanges(context.Background(), sess.ID)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestApplyChanges_InterruptedEndsInError(t *testing.T) {
	h := newHarness(t)
	h.withBatmanIssues(1)
	sess := reviewBatman(t, h, map[string]string{"f1": "Batman/Batman #1.cbz"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.svc.ApplyChanges(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got, err := h.svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusError, got.Status)
	assert.Contains(t, got.Error, "apply interrupted")
	assert.NotNil(t, got.ApplyResult)
	assert.FileExists(t, filepath.Join(h.dir, "Batman", "Batman #1.cbz"))
}

func TestFreePath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Batman #001.cbz")

	got, collided, err := freePath(target)
	require.NoError(t, err)
	assert.False(t, collided)
	assert.Equal(t, target, got)

	require.NoError(t, os.WriteFile(target, nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Batman #001 (1).cbz"), nil, 0o644))

	got, collided, err = freePath(target)
	require.NoError(t, err)
	assert.True(t, collided)
	assert.Equal(t, filepath.Join(dir, "Batman #001 (2).cbz"), got)
}
