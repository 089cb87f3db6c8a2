package sqlite

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

func createTestSeries(t *testing.T, s *Store, id, libraryID, name string) *domain.Series {
	t.Helper()
	now := time.Now()
	sr := &domain.Series{
		ID:        id,
		LibraryID: libraryID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateSeries(context.Background(), sr); err != nil {
		t.Fatalf("createTestSeries(%s): %v", id, err)
	}
	return sr
}

func TestCreateAndGetSeries(t *testing.T) {
	s := newTestStore(t)
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestSeries(t, s, "series-1", "lib-1", "The Amazing Spider-Man")

	got, err := s.GetSeries(context.Background(), "series-1")
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if got.Name != "The Amazing Spider-Man" {
		t.Errorf("Name: got %q", got.Name)
	}
	if len(got.LockedFields) != 0 {
		t.Errorf("LockedFields: got %v, want empty", got.LockedFields)
	}
}

func TestFindSeriesByName_Normalized(t *testing.T) {
	s := newTestStore(t)
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestSeries(t, s, "series-1", "lib-1", "The Amazing Spider-Man")

	got, err := s.FindSeriesByName(context.Background(), "lib-1", "amazing spider man")
	if err != nil {
		t.Fatalf("FindSeriesByName: %v", err)
	}
	if got.ID != "series-1" {
		t.Errorf("ID: got %q, want series-1", got.ID)
	}

	_, err = s.FindSeriesByName(context.Background(), "lib-1", "Saga")
	if !domainerrors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateSeriesFromSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestSeries(t, s, "series-1", "lib-1", "saga")

	if err := s.SetLockedFields(ctx, "series-1", []string{domain.SeriesFieldName}); err != nil {
		t.Fatalf("SetLockedFields: %v", err)
	}

	updated, err := s.UpdateSeriesFromSource(ctx, "series-1", domain.SeriesMatch{
		Source:      "comicvine",
		SourceID:    "4050-43434",
		Name:        "Saga",
		Publisher:   "Image",
		StartYear:   2012,
		Description: "Epic space opera.",
	})
	if err != nil {
		t.Fatalf("UpdateSeriesFromSource: %v", err)
	}

	want := []string{domain.SeriesFieldPublisher, domain.SeriesFieldStartYear, domain.SeriesFieldSummary}
	if !slices.Equal(updated, want) {
		t.Errorf("updated: got %v, want %v", updated, want)
	}

	got, err := s.GetSeriesBySource(ctx, "lib-1", "comicvine", "4050-43434")
	if err != nil {
		t.Fatalf("GetSeriesBySource: %v", err)
	}
	if got.Name != "saga" {
		t.Errorf("locked Name changed: got %q", got.Name)
	}
	if got.Publisher != "Image" || got.StartYear != 2012 {
		t.Errorf("source fields not copied: %+v", got)
	}
}

func TestUpdateSeriesFromSource_LinkConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)
	createTestSeries(t, s, "series-1", "lib-1", "Saga")
	createTestSeries(t, s, "series-2", "lib-1", "Saga (2012)")

	match := domain.SeriesMatch{Source: "comicvine", SourceID: "43434", Name: "Saga"}
	if _, err := s.UpdateSeriesFromSource(ctx, "series-1", match); err != nil {
		t.Fatalf("first link: %v", err)
	}
	_, err := s.UpdateSeriesFromSource(ctx, "series-2", match)
	if !domainerrors.Is(err, domainerrors.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestUpdateSeriesFromSource_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateSeriesFromSource(context.Background(), "missing", domain.SeriesMatch{Name: "x"})
	if !domainerrors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
