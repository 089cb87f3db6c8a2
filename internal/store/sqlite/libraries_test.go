package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

func TestCreateAndGetLibrary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	lib := &domain.Library{
		ID:             "lib-1",
		Name:           "Manga",
		Type:           domain.LibraryTypeManga,
		RootPath:       "/comics/manga",
		RenameTemplate: "{Series} v{Volume:2}",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.CreateLibrary(ctx, lib); err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}

	got, err := s.GetLibrary(ctx, "lib-1")
	if err != nil {
		t.Fatalf("GetLibrary: %v", err)
	}
	if got.Name != lib.Name {
		t.Errorf("Name: got %q, want %q", got.Name, lib.Name)
	}
	if got.Type != domain.LibraryTypeManga {
		t.Errorf("Type: got %q, want %q", got.Type, domain.LibraryTypeManga)
	}
	if got.RenameTemplate != lib.RenameTemplate {
		t.Errorf("RenameTemplate: got %q, want %q", got.RenameTemplate, lib.RenameTemplate)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, now)
	}
}

func TestCreateLibrary_Duplicate(t *testing.T) {
	s := newTestStore(t)
	createTestLibrary(t, s, "lib-1", domain.LibraryTypeWestern)

	now := time.Now()
	err := s.CreateLibrary(context.Background(), &domain.Library{
		ID: "lib-1", Name: "again", Type: domain.LibraryTypeWestern, RootPath: "/x",
		CreatedAt: now, UpdatedAt: now,
	})
	if !domainerrors.Is(err, domainerrors.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestGetLibrary_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetLibrary(context.Background(), "missing")
	if !domainerrors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
