package store

import (
	"context"
	"fmt"

	"github.com/fieldscribe/fieldscribe/internal/segment"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

const regionColumns = `id, task_id, start_ms, end_ms, active, play_count`

// InsertRegion adds an active region to a task.
func (s *Store) InsertRegion(ctx context.Context, taskID types.TaskID, start, end int64) (*types.Region, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("InsertRegion", err)
	}
	defer tx.Rollback()

	r, err := insertRegion(ctx, tx, taskID, start, end)
	if err != nil {
		return nil, storeErr("InsertRegion", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("InsertRegion", err)
	}
	return r, nil
}

// ReplaceActiveRegions deactivates the task's current regions and inserts
// spans as the new active set, in one transaction. Old regions are kept so
// earlier partial transcripts still resolve.
func (s *Store) ReplaceActiveRegions(ctx context.Context, taskID types.TaskID, spans []segment.Span) ([]types.Region, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("ReplaceActiveRegions", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE region SET active = 0 WHERE task_id = ? AND active = 1`, int64(taskID)); err != nil {
		return nil, storeErr("ReplaceActiveRegions", err)
	}

	regions := make([]types.Region, 0, len(spans))
	for _, sp := range spans {
		r, err := insertRegion(ctx, tx, taskID, sp.Start, sp.End)
		if err != nil {
			return nil, storeErr("ReplaceActiveRegions", err)
		}
		regions = append(regions, *r)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("ReplaceActiveRegions", err)
	}
	return regions, nil
}

func insertRegion(ctx context.Context, q queryer, taskID types.TaskID, start, end int64) (*types.Region, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO region (task_id, start_ms, end_ms, active, play_count) VALUES (?, ?, ?, 1, 0)`,
		int64(taskID), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to insert region [%d,%d] for task %d: %w", start, end, taskID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &types.Region{
		ID:     types.RegionID(id),
		TaskID: taskID,
		Start:  start,
		End:    end,
		Active: true,
	}, nil
}

// GetActiveRegions returns the task's active regions ordered by start.
func (s *Store) GetActiveRegions(ctx context.Context, taskID types.TaskID) ([]types.Region, error) {
	regions, err := s.queryRegions(ctx, `SELECT `+regionColumns+` FROM region WHERE task_id = ? AND active = 1 ORDER BY start_ms, id`, int64(taskID))
	if err != nil {
		return nil, storeErr("GetActiveRegions", err)
	}
	return regions, nil
}

// GetAllRegions returns every region the task ever had, active or not.
func (s *Store) GetAllRegions(ctx context.Context, taskID types.TaskID) ([]types.Region, error) {
	regions, err := s.queryRegions(ctx, `SELECT `+regionColumns+` FROM region WHERE task_id = ? ORDER BY id`, int64(taskID))
	if err != nil {
		return nil, storeErr("GetAllRegions", err)
	}
	return regions, nil
}

// GetRegion loads one region.
func (s *Store) GetRegion(ctx context.Context, id types.RegionID) (*types.Region, error) {
	r, err := scanRegion(s.conn.QueryRowContext(ctx, `SELECT `+regionColumns+` FROM region WHERE id = ?`, int64(id)))
	if err != nil {
		return nil, storeErr("GetRegion", err)
	}
	return r, nil
}

// MarkRegionsInactive deactivates every region of the task.
func (s *Store) MarkRegionsInactive(ctx context.Context, taskID types.TaskID) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE region SET active = 0 WHERE task_id = ?`, int64(taskID)); err != nil {
		return storeErr("MarkRegionsInactive", err)
	}
	return nil
}

// DeleteRegion removes a region and its partial transcripts.
func (s *Store) DeleteRegion(ctx context.Context, id types.RegionID) error {
	if err := s.exec1(ctx, `DELETE FROM region WHERE id = ?`, int64(id)); err != nil {
		return storeErr("DeleteRegion", err)
	}
	return nil
}

// IncrementPlayCount records one playback of the region.
func (s *Store) IncrementPlayCount(ctx context.Context, id types.RegionID) error {
	if err := s.exec1(ctx, `UPDATE region SET play_count = play_count + 1 WHERE id = ?`, int64(id)); err != nil {
		return storeErr("IncrementPlayCount", err)
	}
	return nil
}

func (s *Store) queryRegions(ctx context.Context, query string, args ...any) ([]types.Region, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []types.Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regions: %w", err)
	}
	return regions, nil
}

func scanRegion(row rowScanner) (*types.Region, error) {
	var (
		r                  types.Region
		id, taskID, active int64
	)
	if err := row.Scan(&id, &taskID, &r.Start, &r.End, &active, &r.PlayCount); err != nil {
		return nil, err
	}
	r.ID = types.RegionID(id)
	r.TaskID = types.TaskID(taskID)
	r.Active = active != 0
	return &r, nil
}
