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
	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// seriesColumns must match the scan order in scanSeries.
const seriesColumns = `id, library_id, created_at, updated_at, name, publisher, start_year, summary, source, source_id, locked_fields`

func scanSeries(scanner rowScanner) (*domain.Series, error) {
	var (
		sr        domain.Series
		createdAt string
		updatedAt string
		publisher sql.NullString
		startYear sql.NullInt64
		summary   sql.NullString
		source    sql.NullString
		sourceID  sql.NullString
		locked    string
	)

	err := scanner.Scan(
		&sr.ID,
		&sr.LibraryID,
		&createdAt,
		&updatedAt,
		&sr.Name,
		&publisher,
		&startYear,
		&summary,
		&source,
		&sourceID,
		&locked,
	)
	if err != nil {
		return nil, err
	}

	if sr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	sr.Publisher = publisher.String
	sr.StartYear = int(startYear.Int64)
	sr.Summary = summary.String
	sr.Source = source.String
	sr.SourceID = sourceID.String

	if err := json.Unmarshal([]byte(locked), &sr.LockedFields); err != nil {
		return nil, fmt.Errorf("parse locked_fields: %w", err)
	}
	return &sr, nil
}

// CreateSeries inserts a series record.
func (s *Store) CreateSeries(ctx context.Context, sr *domain.Series) error {
	locked, err := json.Marshal(lockedOrEmpty(sr.LockedFields))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO series (`+seriesColumns+`, name_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.ID,
		sr.LibraryID,
		formatTime(sr.CreatedAt),
		formatTime(sr.UpdatedAt),
		sr.Name,
		nullString(sr.Publisher),
		nullInt64(int64(sr.StartYear)),
		nullString(sr.Summary),
		nullString(sr.Source),
		nullString(sr.SourceID),
		string(locked),
		normalize.SeriesKey(sr.Name),
	)
	if isUniqueViolation(err) {
		return domainerrors.Conflict("series already exists")
	}
	return err
}

// GetSeries retrieves a series by ID.
func (s *Store) GetSeries(ctx context.Context, id string) (*domain.Series, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)

	sr, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("series %s not found", id)
	}
	return sr, err
}

// GetSeriesBySource finds the series linked to an external identity.
func (s *Store) GetSeriesBySource(ctx context.Context, libraryID, source, sourceID string) (*domain.Series, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE library_id = ? AND source = ? AND source_id = ?`,
		libraryID, source, sourceID)

	sr, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("series %s:%s not found", source, sourceID)
	}
	return sr, err
}

// FindSeriesByName matches on the normalized series name within a library.
func (s *Store) FindSeriesByName(ctx context.Context, libraryID, name string) (*domain.Series, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE library_id = ? AND name_key = ? ORDER BY created_at LIMIT 1`,
		libraryID, normalize.SeriesKey(name))

	sr, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("series %q not found", name)
	}
	return sr, err
}

// UpdateSeriesFromSource links a series to an external identity and copies
// source fields that the user has not locked. It returns the updated field names.
func (s *Store) UpdateSeriesFromSource(ctx context.Context, seriesID string, src domain.SeriesMatch) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	sr, err := scanSeries(tx.QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE id = ?`, seriesID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("series %s not found", seriesID)
	}
	if err != nil {
		return nil, err
	}

	var updated []string
	apply := func(field string, has bool, set func()) {
		if has && !sr.IsLocked(field) {
			set()
			updated = append(updated, field)
		}
	}
	apply(domain.SeriesFieldName, src.Name != "" && src.Name != sr.Name, func() { sr.Name = src.Name })
	apply(domain.SeriesFieldPublisher, src.Publisher != "" && src.Publisher != sr.Publisher, func() { sr.Publisher = src.Publisher })
	apply(domain.SeriesFieldStartYear, src.StartYear > 0 && src.StartYear != sr.StartYear, func() { sr.StartYear = src.StartYear })
	apply(domain.SeriesFieldSummary, src.Description != "" && src.Description != sr.Summary, func() { sr.Summary = src.Description })

	_, err = tx.ExecContext(ctx, `
		UPDATE series SET
			updated_at = ?, name = ?, name_key = ?, publisher = ?, start_year = ?, summary = ?,
			source = ?, source_id = ?
		WHERE id = ?`,
		formatTime(time.Now()),
		sr.Name,
		normalize.SeriesKey(sr.Name),
		nullString(sr.Publisher),
		nullInt64(int64(sr.StartYear)),
		nullString(sr.Summary),
		nullString(src.Source),
		nullString(src.SourceID),
		seriesID,
	)
	if isUniqueViolation(err) {
		return nil, domainerrors.Conflictf("another series is already linked to %s", src.Key())
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// SetLockedFields replaces the set of user-pinned fields.
func (s *Store) SetLockedFields(ctx context.Context, seriesID string, fields []string) error {
	locked, err := json.Marshal(lockedOrEmpty(fields))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE series SET locked_fields = ?, updated_at = ? WHERE id = ?`,
		string(locked), formatTime(time.Now()), seriesID)
	if err != nil {
		return err
	}
	return requireAffected(res, "series", seriesID)
}

func lockedOrEmpty(fields []string) []string {
	if fields == nil {
		return []string{}
	}
	return fields
}
