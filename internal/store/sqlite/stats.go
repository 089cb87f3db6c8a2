package sqlite

import (
	"context"
	"time"
)

// Stat scopes tracked in stats_dirty.
const (
	StatScopeFile    = "file"
	StatScopeSeries  = "series"
	StatScopeLibrary = "library"
)

// DirtyStat is a pending recomputation of derived statistics.
type DirtyStat struct {
	Scope    string
	EntityID string
	MarkedAt time.Time
}

// MarkStatsDirty flags derived statistics of a file, its series and its
// library for recomputation.
func (s *Store) MarkStatsDirty(ctx context.Context, fileID string) error {
	f, err := s.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := formatTime(time.Now())
	mark := func(scope, id string) error {
		if id == "" {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stats_dirty (scope, entity_id, marked_at) VALUES (?, ?, ?)
			ON CONFLICT(scope, entity_id) DO UPDATE SET marked_at = excluded.marked_at`,
			scope, id, now)
		return err
	}

	for _, m := range []struct{ scope, id string }{
		{StatScopeFile, f.ID},
		{StatScopeSeries, f.SeriesID},
		{StatScopeLibrary, f.LibraryID},
	} {
		if err := mark(m.scope, m.id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListDirtyStats returns pending recomputations, oldest first.
func (s *Store) ListDirtyStats(ctx context.Context) ([]DirtyStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scope, entity_id, marked_at FROM stats_dirty ORDER BY marked_at, scope, entity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DirtyStat
	for rows.Next() {
		var (
			d        DirtyStat
			markedAt string
		)
		if err := rows.Scan(&d.Scope, &d.EntityID, &markedAt); err != nil {
			return nil, err
		}
		if d.MarkedAt, err = parseTime(markedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClearDirtyStat removes a processed entry.
func (s *Store) ClearDirtyStat(ctx context.Context, scope, entityID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM stats_dirty WHERE scope = ? AND entity_id = ?`, scope, entityID)
	return err
}
