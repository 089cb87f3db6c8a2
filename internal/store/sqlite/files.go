package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

// fileColumns must match the scan order in scanFile.
const fileColumns = `id, library_id, series_id, created_at, updated_at, path, page_count, size`

func scanFile(scanner rowScanner) (*domain.ComicFile, error) {
	var (
		f         domain.ComicFile
		seriesID  sql.NullString
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&f.ID,
		&f.LibraryID,
		&seriesID,
		&createdAt,
		&updatedAt,
		&f.Path,
		&f.PageCount,
		&f.Size,
	)
	if err != nil {
		return nil, err
	}

	f.SeriesID = seriesID.String
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFile inserts an indexed comic file.
func (s *Store) CreateFile(ctx context.Context, f *domain.ComicFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comic_files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.LibraryID,
		nullString(f.SeriesID),
		formatTime(f.CreatedAt),
		formatTime(f.UpdatedAt),
		f.Path,
		f.PageCount,
		f.Size,
	)
	if isUniqueViolation(err) {
		return domainerrors.Conflictf("file %s already indexed", f.Path)
	}
	return err
}

// GetFile retrieves a file by ID.
func (s *Store) GetFile(ctx context.Context, id string) (*domain.ComicFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM comic_files WHERE id = ?`, id)

	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("file %s not found", id)
	}
	return f, err
}

// GetFilesByIDs returns the files that exist among ids, in the order given.
// Unknown ids are skipped.
func (s *Store) GetFilesByIDs(ctx context.Context, ids []string) ([]*domain.ComicFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM comic_files WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*domain.ComicFile, len(ids))
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.ComicFile, 0, len(byID))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListFilesBySeries returns the files assigned to a series.
func (s *Store) ListFilesBySeries(ctx context.Context, seriesID string) ([]*domain.ComicFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM comic_files WHERE series_id = ? ORDER BY path`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*domain.ComicFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateFilePath records a rename or conversion of a file.
func (s *Store) UpdateFilePath(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE comic_files SET path = ?, updated_at = ? WHERE id = ?`,
		path, formatTime(time.Now()), id)
	if isUniqueViolation(err) {
		return domainerrors.Conflictf("path %s already indexed", path)
	}
	if err != nil {
		return err
	}
	return requireAffected(res, "file", id)
}

// AssignFileSeries links files to a catalog series.
func (s *Store) AssignFileSeries(ctx context.Context, seriesID string, fileIDs ...string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	args := []any{seriesID, formatTime(time.Now())}
	for _, id := range fileIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE comic_files SET series_id = ?, updated_at = ? WHERE id IN (`+placeholders(len(fileIDs))+`)`,
		args...)
	return err
}

// UpsertFileMetadata stores the catalog copy of a file's embedded metadata.
func (s *Store) UpsertFileMetadata(ctx context.Context, fileID string, md domain.ComicMetadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal file metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_metadata (file_id, updated_at, data) VALUES (?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET updated_at = excluded.updated_at, data = excluded.data`,
		fileID, formatTime(time.Now()), string(data))
	return err
}

// GetFileMetadata returns the catalog copy of a file's metadata.
func (s *Store) GetFileMetadata(ctx context.Context, fileID string) (*domain.ComicMetadata, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM file_metadata WHERE file_id = ?`, fileID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("metadata for file %s not found", fileID)
	}
	if err != nil {
		return nil, err
	}

	var md domain.ComicMetadata
	if err := json.Unmarshal([]byte(data), &md); err != nil {
		return nil, fmt.Errorf("unmarshal file metadata: %w", err)
	}
	return &md, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domainerrors.NotFoundf("%s %s not found", kind, id)
	}
	return nil
}
