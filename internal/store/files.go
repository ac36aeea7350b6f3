package store

import (
	"context"
	"fmt"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// InsertFileInfo records metadata for an audio blob before its bytes are
// written. Callers delete it again if the write fails.
func (s *Store) InsertFileInfo(ctx context.Context, extension, origURI, origDisplayName string) (*types.FileInfo, error) {
	now := ms(s.now())
	res, err := s.conn.ExecContext(ctx, `
	INSERT INTO file_info (extension, orig_uri, orig_display_name, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`, extension, origURI, origDisplayName, now, now)
	if err != nil {
		return nil, storeErr("InsertFileInfo", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("InsertFileInfo", err)
	}
	return &types.FileInfo{
		ID:              types.FileID(id),
		Extension:       extension,
		OrigURI:         origURI,
		OrigDisplayName: origDisplayName,
		CreatedAt:       fromMs(now),
		UpdatedAt:       fromMs(now),
	}, nil
}

// GetFileInfo loads file metadata.
func (s *Store) GetFileInfo(ctx context.Context, id types.FileID) (*types.FileInfo, error) {
	var (
		fi                   types.FileInfo
		createdAt, updatedAt int64
	)
	err := s.conn.QueryRowContext(ctx, `
	SELECT extension, orig_uri, orig_display_name, created_at, updated_at
	FROM file_info WHERE id = ?`, int64(id)).Scan(&fi.Extension, &fi.OrigURI, &fi.OrigDisplayName, &createdAt, &updatedAt)
	if err != nil {
		return nil, storeErr("GetFileInfo", err)
	}
	fi.ID = id
	fi.CreatedAt = fromMs(createdAt)
	fi.UpdatedAt = fromMs(updatedAt)
	return &fi, nil
}

// DeleteFileInfo removes file metadata and any local file rows built on it.
// Deleting a missing row is not an error; it is used for compensation.
func (s *Store) DeleteFileInfo(ctx context.Context, id types.FileID) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM file_info WHERE id = ?`, int64(id)); err != nil {
		return storeErr("DeleteFileInfo", err)
	}
	s.changed()
	return nil
}

// CountFileInfos returns the number of file metadata rows.
func (s *Store) CountFileInfos(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_info`).Scan(&n); err != nil {
		return 0, storeErr("CountFileInfos", err)
	}
	return n, nil
}

// FileName is the managed-storage name of a blob: "{id}.{extension}".
func FileName(fi *types.FileInfo) string {
	return fmt.Sprintf("%d.%s", fi.ID, fi.Extension)
}

// GetLocalFile loads the on-device copy referenced by a task.
func (s *Store) GetLocalFile(ctx context.Context, id types.LocalID) (*types.LocalFile, error) {
	var (
		lf                           types.LocalFile
		fileID, createdAt, updatedAt int64
	)
	err := s.conn.QueryRowContext(ctx, `
	SELECT file_id, path, created_at, updated_at FROM local_entity WHERE id = ?`, int64(id)).
		Scan(&fileID, &lf.Path, &createdAt, &updatedAt)
	if err != nil {
		return nil, storeErr("GetLocalFile", err)
	}
	lf.ID = id
	lf.FileID = types.FileID(fileID)
	lf.CreatedAt = fromMs(createdAt)
	lf.UpdatedAt = fromMs(updatedAt)
	return &lf, nil
}

func (s *Store) insertLocalEntity(ctx context.Context, q queryer, fileID types.FileID, path string) (types.LocalID, error) {
	now := ms(s.now())
	res, err := q.ExecContext(ctx, `
	INSERT INTO local_entity (file_id, path, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		int64(fileID), path, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert local file for file %d: %w", fileID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return types.LocalID(id), nil
}
