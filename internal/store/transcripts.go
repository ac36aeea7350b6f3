package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

const partialColumns = `id, task_id, region_id, content, updated_at`

// InsertPartialTranscript appends a snapshot for region. The task's latest
// transcript and updated_at move with it in the same transaction.
func (s *Store) InsertPartialTranscript(ctx context.Context, region types.Region, content string) (*types.PartialTranscript, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("InsertPartialTranscript", err)
	}
	defer tx.Rollback()

	now := s.now()
	res, err := tx.ExecContext(ctx, `INSERT INTO partial_transcript (task_id, region_id, content, updated_at) VALUES (?, ?, ?, ?)`,
		int64(region.TaskID), int64(region.ID), content, ms(now))
	if err != nil {
		return nil, storeErr("InsertPartialTranscript", fmt.Errorf("region %d: %w", region.ID, err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("InsertPartialTranscript", err)
	}
	if err := touchTranscript(ctx, tx, region.TaskID, content, ms(now)); err != nil {
		return nil, storeErr("InsertPartialTranscript", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("InsertPartialTranscript", err)
	}
	s.changed()

	return &types.PartialTranscript{
		ID:        types.PartialTranscriptID(id),
		TaskID:    region.TaskID,
		RegionID:  region.ID,
		Content:   content,
		UpdatedAt: fromMs(ms(now)),
	}, nil
}

// UpdatePartialTranscript replaces the text of an existing snapshot.
func (s *Store) UpdatePartialTranscript(ctx context.Context, id types.PartialTranscriptID, content string) (*types.PartialTranscript, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("UpdatePartialTranscript", err)
	}
	defer tx.Rollback()

	now := ms(s.now())
	res, err := tx.ExecContext(ctx, `UPDATE partial_transcript SET content = ?, updated_at = ? WHERE id = ?`, content, now, int64(id))
	if err != nil {
		return nil, storeErr("UpdatePartialTranscript", err)
	}
	if err := requireOne(res); err != nil {
		return nil, storeErr("UpdatePartialTranscript", err)
	}
	pt, err := scanPartial(tx.QueryRowContext(ctx, `SELECT `+partialColumns+` FROM partial_transcript WHERE id = ?`, int64(id)))
	if err != nil {
		return nil, storeErr("UpdatePartialTranscript", err)
	}
	if err := touchTranscript(ctx, tx, pt.TaskID, content, now); err != nil {
		return nil, storeErr("UpdatePartialTranscript", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("UpdatePartialTranscript", err)
	}
	s.changed()
	return pt, nil
}

func touchTranscript(ctx context.Context, q queryer, taskID types.TaskID, content string, now int64) error {
	res, err := q.ExecContext(ctx, `UPDATE task SET latest_transcript = ?, `+touchUpdated+` WHERE id = ?`, content, now, int64(taskID))
	if err != nil {
		return err
	}
	return requireOne(res)
}

// GetLatestPartialTranscript returns the most recently saved snapshot of the
// task, or nil if nothing was saved yet.
func (s *Store) GetLatestPartialTranscript(ctx context.Context, taskID types.TaskID) (*types.PartialTranscript, error) {
	pt, err := scanPartial(s.conn.QueryRowContext(ctx,
		`SELECT `+partialColumns+` FROM partial_transcript WHERE task_id = ? ORDER BY updated_at DESC, id DESC LIMIT 1`,
		int64(taskID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("GetLatestPartialTranscript", err)
	}
	return pt, nil
}

// GetPartialTranscript loads one snapshot.
func (s *Store) GetPartialTranscript(ctx context.Context, id types.PartialTranscriptID) (*types.PartialTranscript, error) {
	pt, err := scanPartial(s.conn.QueryRowContext(ctx, `SELECT `+partialColumns+` FROM partial_transcript WHERE id = ?`, int64(id)))
	if err != nil {
		return nil, storeErr("GetPartialTranscript", err)
	}
	return pt, nil
}

// GetPartialTranscripts returns every snapshot of the task, newest first.
func (s *Store) GetPartialTranscripts(ctx context.Context, taskID types.TaskID) ([]types.PartialTranscript, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+partialColumns+` FROM partial_transcript WHERE task_id = ? ORDER BY updated_at DESC, id DESC`,
		int64(taskID))
	if err != nil {
		return nil, storeErr("GetPartialTranscripts", err)
	}
	defer rows.Close()

	var out []types.PartialTranscript
	for rows.Next() {
		pt, err := scanPartial(rows)
		if err != nil {
			return nil, storeErr("GetPartialTranscripts", err)
		}
		out = append(out, *pt)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("GetPartialTranscripts", err)
	}
	return out, nil
}

func scanPartial(row rowScanner) (*types.PartialTranscript, error) {
	var (
		pt                        types.PartialTranscript
		id, taskID, regionID, upd int64
	)
	if err := row.Scan(&id, &taskID, &regionID, &pt.Content, &upd); err != nil {
		return nil, err
	}
	pt.ID = types.PartialTranscriptID(id)
	pt.TaskID = types.TaskID(taskID)
	pt.RegionID = types.RegionID(regionID)
	pt.UpdatedAt = fromMs(upd)
	return &pt, nil
}
