package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

const taskColumns = `id, remote_id, remote_url, length, region_length, provenance,
	display_name, created_at, updated_at, completed_at, submitted_at,
	completion_notified_at, local_entity, latest_transcript,
	submitted_transcript, reject_reason, difficulty`

// touchUpdated sets updated_at for a user edit. The value always moves
// forward, even within one millisecond, so an edit made after a push read
// the task is never covered by that push's submitted_at.
const touchUpdated = `updated_at = MAX(?, updated_at + 1)`

// InsertRemoteTask records a task discovered on the server. The audio is
// fetched later, on first detail view.
func (s *Store) InsertRemoteTask(ctx context.Context, remoteID types.RemoteID, url, name string, lengthMs int64) (*types.Task, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("InsertRemoteTask", err)
	}
	defer tx.Rollback()

	id, err := s.insertTask(ctx, tx, remoteID, url, name, lengthMs, types.ProvenanceRemote, nil)
	if err != nil {
		return nil, storeErr("InsertRemoteTask", err)
	}
	task, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, storeErr("InsertRemoteTask", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("InsertRemoteTask", err)
	}
	s.changed()
	return task, nil
}

// InsertLocalTask records a task the server accepted from on-device content.
// The local file row is created first, in the same transaction.
func (s *Store) InsertLocalTask(ctx context.Context, remoteID types.RemoteID, url string, fileID types.FileID, path, name string, lengthMs int64) (*types.Task, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("InsertLocalTask", err)
	}
	defer tx.Rollback()

	localID, err := s.insertLocalEntity(ctx, tx, fileID, path)
	if err != nil {
		return nil, storeErr("InsertLocalTask", err)
	}
	id, err := s.insertTask(ctx, tx, remoteID, url, name, lengthMs, types.ProvenanceLocal, &localID)
	if err != nil {
		return nil, storeErr("InsertLocalTask", err)
	}
	task, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, storeErr("InsertLocalTask", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("InsertLocalTask", err)
	}
	s.changed()
	return task, nil
}

func (s *Store) insertTask(ctx context.Context, q queryer, remoteID types.RemoteID, url, name string, lengthMs int64, prov types.Provenance, local *types.LocalID) (types.TaskID, error) {
	now := ms(s.now())
	var localArg sql.NullInt64
	if local != nil {
		localArg = sql.NullInt64{Int64: int64(*local), Valid: true}
	}
	res, err := q.ExecContext(ctx, `
	INSERT INTO task (
		remote_id, remote_url, length, region_length, provenance,
		display_name, created_at, updated_at, local_entity
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(remoteID), url, lengthMs, s.regionLength, string(prov),
		name, now, now, localArg,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task for remote id %d: %w", remoteID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return types.TaskID(id), nil
}

// AddLocalAudioFile links a downloaded file to a task and returns the
// updated task. It does not count as a user edit.
func (s *Store) AddLocalAudioFile(ctx context.Context, taskID types.TaskID, fileID types.FileID, path string) (*types.Task, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("AddLocalAudioFile", err)
	}
	defer tx.Rollback()

	localID, err := s.insertLocalEntity(ctx, tx, fileID, path)
	if err != nil {
		return nil, storeErr("AddLocalAudioFile", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE task SET local_entity = ? WHERE id = ?`, int64(localID), int64(taskID))
	if err != nil {
		return nil, storeErr("AddLocalAudioFile", err)
	}
	if err := requireOne(res); err != nil {
		return nil, storeErr("AddLocalAudioFile", err)
	}
	task, err := getTask(ctx, tx, taskID)
	if err != nil {
		return nil, storeErr("AddLocalAudioFile", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("AddLocalAudioFile", err)
	}
	s.changed()
	return task, nil
}

// GetTask loads one task. A missing task is a KindStore error wrapping
// ErrNotFound.
func (s *Store) GetTask(id types.TaskID) (*types.Task, error) {
	return s.GetTaskContext(context.Background(), id)
}

// GetTaskContext loads one task with context support.
func (s *Store) GetTaskContext(ctx context.Context, id types.TaskID) (*types.Task, error) {
	task, err := getTask(ctx, s.conn, id)
	if err != nil {
		return nil, storeErr("GetTask", err)
	}
	return task, nil
}

// GetTaskByRemoteID loads the task with the given server id.
func (s *Store) GetTaskByRemoteID(ctx context.Context, remoteID types.RemoteID) (*types.Task, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task WHERE remote_id = ?`, int64(remoteID))
	task, err := scanTask(row)
	if err != nil {
		return nil, storeErr("GetTaskByRemoteID", err)
	}
	return task, nil
}

// HasRemoteTask reports whether a task with the given server id exists.
func (s *Store) HasRemoteTask(ctx context.Context, remoteID types.RemoteID) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM task WHERE remote_id = ?`, int64(remoteID)).Scan(&n)
	if err != nil {
		return false, storeErr("HasRemoteTask", err)
	}
	return n > 0, nil
}

// NextTask returns the first open task (neither completed nor rejected)
// after id, wrapping around to the start of the list.
func (s *Store) NextTask(ctx context.Context, id types.TaskID) (*types.Task, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT `+taskColumns+` FROM task
	WHERE completed_at IS NULL AND reject_reason IS NULL AND id != ?
	ORDER BY CASE WHEN id > ? THEN 0 ELSE 1 END, id
	LIMIT 1`, int64(id), int64(id))
	task, err := scanTask(row)
	if err != nil {
		return nil, storeErr("NextTask", err)
	}
	return task, nil
}

// AllTasks returns every task, most recently updated first.
func (s *Store) AllTasks() ([]types.Task, error) {
	return s.AllTasksContext(context.Background())
}

// AllTasksContext returns every task with context support.
func (s *Store) AllTasksContext(ctx context.Context) ([]types.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+taskColumns+` FROM task ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, storeErr("AllTasks", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, storeErr("AllTasks", err)
	}
	return tasks, nil
}

// TaskCount returns the number of tasks.
func (s *Store) TaskCount() (int, error) {
	return s.TaskCountContext(context.Background())
}

// TaskCountContext returns the number of tasks with context support.
func (s *Store) TaskCountContext(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM task").Scan(&count); err != nil {
		return 0, storeErr("TaskCount", err)
	}
	return count, nil
}

// DeleteTask removes a task with its regions and partial transcripts. This is
// an administrative action; normal flow never deletes tasks.
func (s *Store) DeleteTask(ctx context.Context, id types.TaskID) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM task WHERE id = ?`, int64(id))
	if err != nil {
		return storeErr("DeleteTask", err)
	}
	if err := requireOne(res); err != nil {
		return storeErr("DeleteTask", err)
	}
	s.changed()
	return nil
}

// MarkTaskUploaded records that the server has seen the task as it was at
// seen, the UpdatedAt of the copy that was pushed. Edits made after that copy
// was read keep the task unsynced.
func (s *Store) MarkTaskUploaded(ctx context.Context, id types.TaskID, seen time.Time) error {
	if err := s.exec1(ctx, `UPDATE task SET submitted_at = ? WHERE id = ?`, ms(seen), int64(id)); err != nil {
		return storeErr("MarkTaskUploaded", err)
	}
	s.changed()
	return nil
}

// SetSubmittedTranscript stores the text the server accepted and marks the
// task uploaded as of seen, atomically. See MarkTaskUploaded.
func (s *Store) SetSubmittedTranscript(ctx context.Context, id types.TaskID, text string, seen time.Time) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("SetSubmittedTranscript", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE task SET submitted_transcript = ? WHERE id = ?`, text, int64(id))
	if err != nil {
		return storeErr("SetSubmittedTranscript", err)
	}
	if err := requireOne(res); err != nil {
		return storeErr("SetSubmittedTranscript", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE task SET submitted_at = ? WHERE id = ?`, ms(seen), int64(id)); err != nil {
		return storeErr("SetSubmittedTranscript", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("SetSubmittedTranscript", err)
	}
	s.changed()
	return nil
}

// CompleteTask marks the task completed with the given difficulty. The
// change is a user edit, so the task becomes eligible for push.
func (s *Store) CompleteTask(ctx context.Context, id types.TaskID, difficulty types.Difficulty) error {
	now := ms(s.now())
	err := s.exec1(ctx, `UPDATE task SET difficulty = ?, completed_at = MAX(?, COALESCE(completed_at + 1, 0)), `+touchUpdated+` WHERE id = ?`,
		string(difficulty), now, now, int64(id))
	if err != nil {
		return storeErr("CompleteTask", err)
	}
	s.changed()
	return nil
}

// RejectTask records a reject reason. The change is a user edit.
func (s *Store) RejectTask(ctx context.Context, id types.TaskID, reason types.RejectReason) error {
	err := s.exec1(ctx, `UPDATE task SET reject_reason = ?, `+touchUpdated+` WHERE id = ?`,
		string(reason), ms(s.now()), int64(id))
	if err != nil {
		return storeErr("RejectTask", err)
	}
	s.changed()
	return nil
}

// MarkCompletionNotified records that the server acknowledged the completion
// made at completedAt. Completing the task again later makes it pending again.
func (s *Store) MarkCompletionNotified(ctx context.Context, id types.TaskID, completedAt time.Time) error {
	if err := s.exec1(ctx, `UPDATE task SET completion_notified_at = ? WHERE id = ?`, ms(completedAt), int64(id)); err != nil {
		return storeErr("MarkCompletionNotified", err)
	}
	s.changed()
	return nil
}

func (s *Store) exec1(ctx context.Context, query string, args ...any) error {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireOne(res)
}

func getTask(ctx context.Context, q queryer, id types.TaskID) (*types.Task, error) {
	return scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task WHERE id = ?`, int64(id)))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		t                                   types.Task
		id, remoteID                        int64
		provenance                          string
		createdAt, updatedAt                int64
		completedAt, submittedAt, notified  sql.NullInt64
		localEntity                         sql.NullInt64
		submitted, rejectReason, difficulty sql.NullString
	)
	err := row.Scan(
		&id, &remoteID, &t.RemoteURL, &t.Length, &t.RegionLength, &provenance,
		&t.DisplayName, &createdAt, &updatedAt, &completedAt, &submittedAt,
		&notified, &localEntity, &t.LatestTranscript,
		&submitted, &rejectReason, &difficulty,
	)
	if err != nil {
		return nil, err
	}

	t.ID = types.TaskID(id)
	t.RemoteID = types.RemoteID(remoteID)
	t.Provenance = types.Provenance(provenance)
	t.CreatedAt = fromMs(createdAt)
	t.UpdatedAt = fromMs(updatedAt)
	t.CompletedAt = nullMsToTime(completedAt)
	t.SubmittedAt = nullMsToTime(submittedAt)
	t.CompletionNotifiedAt = nullMsToTime(notified)
	if localEntity.Valid {
		l := types.LocalID(localEntity.Int64)
		t.LocalFile = &l
	}
	if submitted.Valid {
		s := submitted.String
		t.SubmittedTranscript = &s
	}
	if rejectReason.Valid {
		r := types.RejectReason(rejectReason.String)
		t.RejectReason = &r
	}
	if difficulty.Valid {
		d := types.Difficulty(difficulty.String)
		t.Difficulty = &d
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]types.Task, error) {
	var tasks []types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
