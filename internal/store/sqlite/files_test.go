package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

func createTestFile(t *testing.T, s *Store, id, libraryID, path string) *domain.ComicFile {
	t.Helper()
	now := time.Now()
	f := &domain.ComicFile{
		ID:        id,
		LibraryID: libraryID,
		Path:      path,
		PageCount: 24,
		Size:      1 << 20,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateFile(context.Background(), f); err != nil {
		t.Fatalf("createTestFile(%s): %v", id, err)
	}
	return f
}

func TestCreateAndGetFile(t *testing.T) {
	s := newTestStore(t)
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestFile(t, s, "file-1", "lib-1", "/comics/lib-1/Saga 001.cbz")

	got, err := s.GetFile(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.Path != "/comics/lib-1/Saga 001.cbz" {
		t.Errorf("Path: got %q", got.Path)
	}
	if got.PageCount != 24 {
		t.Errorf("PageCount: got %d, want 24", got.PageCount)
	}
	if got.SeriesID != "" {
		t.Errorf("SeriesID: got %q, want empty", got.SeriesID)
	}
}

func TestGetFilesByIDs_PreservesOrder(t *testing.T) {
	s := newTestStore(t)
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestFile(t, s, "a", "lib-1", "/c/a.cbz")
	createTestFile(t, s, "b", "lib-1", "/c/b.cbz")
	createTestFile(t, s, "c", "lib-1", "/c/c.cbz")

	files, err := s.GetFilesByIDs(context.Background(), []string{"c", "missing", "a"})
	if err != nil {
		t.Fatalf("GetFilesByIDs: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].ID != "c" || files[1].ID != "a" {
		t.Errorf("order: got %s, %s", files[0].ID, files[1].ID)
	}
}

func TestUpdateFilePath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestFile(t, s, "a", "lib-1", "/c/a.cbr")
	createTestFile(t, s, "b", "lib-1", "/c/b.cbz")

	if err := s.UpdateFilePath(ctx, "a", "/c/a.cbz"); err != nil {
		t.Fatalf("UpdateFilePath: %v", err)
	}
	got, _ := s.GetFile(ctx, "a")
	if got.Path != "/c/a.cbz" {
		t.Errorf("Path: got %q", got.Path)
	}

	if err := s.UpdateFilePath(ctx, "a", "/c/b.cbz"); !domainerrors.Is(err, domainerrors.ErrConflict) {
		t.Errorf("expected conflict on taken path, got %v", err)
	}
	if err := s.UpdateFilePath(ctx, "missing", "/c/z.cbz"); !domainerrors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAssignFileSeries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestFile(t, s, "a", "lib-1", "/c/a.cbz")
	createTestFile(t, s, "b", "lib-1", "/c/b.cbz")
	createTestSeries(t, s, "series-1", "lib-1", "Saga")

	if err := s.AssignFileSeries(ctx, "series-1", "a", "b"); err != nil {
		t.Fatalf("AssignFileSeries: %v", err)
	}

	files, err := s.ListFilesBySeries(ctx, "series-1")
	if err != nil {
		t.Fatalf("ListFilesBySeries: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 files, got %d", len(files))
	}
}

func TestFileMetadata_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestFile(t, s, "a", "lib-1", "/c/a.cbz")

	if _, err := s.GetFileMetadata(ctx, "a"); !domainerrors.Is(err, domainerrors.ErrNotFound) {
		t.Fatalf("expected not found before upsert, got %v", err)
	}

	md := domain.ComicMetadata{Series: "Saga", Number: "1"}
	if err := s.UpsertFileMetadata(ctx, "a", md); err != nil {
		t.Fatalf("UpsertFileMetadata: %v", err)
	}
	md.Title = "Chapter One"
	if err := s.UpsertFileMetadata(ctx, "a", md); err != nil {
		t.Fatalf("UpsertFileMetadata (update): %v", err)
	}

	got, err := s.GetFileMetadata(ctx, "a")
	if err != nil {
		t.Fatalf("GetFileMetadata: %v", err)
	}
	if got.Series != "Saga" || got.Title != "Chapter One" {
		t.Errorf("metadata: got %+v", got)
	}
}
