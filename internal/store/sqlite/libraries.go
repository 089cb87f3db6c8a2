package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

// libraryColumns is the ordered list of columns selected in library queries.
// Must match the scan order in scanLibrary.
const libraryColumns = `id, created_at, updated_at, name, type, root_path, rename_template`

func scanLibrary(scanner rowScanner) (*domain.Library, error) {
	var (
		lib       domain.Library
		createdAt string
		updatedAt string
		libType   string
		template  sql.NullString
	)

	err := scanner.Scan(
		&lib.ID,
		&createdAt,
		&updatedAt,
		&lib.Name,
		&libType,
		&lib.RootPath,
		&template,
	)
	if err != nil {
		return nil, err
	}

	if lib.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if lib.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	lib.Type = domain.LibraryType(libType)
	lib.RenameTemplate = template.String

	return &lib, nil
}

// CreateLibrary inserts a new library.
func (s *Store) CreateLibrary(ctx context.Context, lib *domain.Library) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO libraries (`+libraryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lib.ID,
		formatTime(lib.CreatedAt),
		formatTime(lib.UpdatedAt),
		lib.Name,
		string(lib.Type),
		lib.RootPath,
		nullString(lib.RenameTemplate),
	)
	if isUniqueViolation(err) {
		return domainerrors.Conflict("library already exists")
	}
	return err
}

// GetLibrary retrieves a library by ID.
func (s *Store) GetLibrary(ctx context.Context, id string) (*domain.Library, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+libraryColumns+` FROM libraries WHERE id = ?`, id)

	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("library %s not found", id)
	}
	return lib, err
}
