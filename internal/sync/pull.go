package sync

import (
	"context"
	"fmt"
)

// RefreshTasks pulls new remote tasks and then pushes local changes.
func (e *engine) RefreshTasks(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	tasks, err := e.remote.RefreshTasks(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to fetch task list: %w", err)
	}

	skipped := 0
	for _, dto := range tasks {
		if !dto.IsRemoteOrigin() {
			continue
		}
		known, err := e.store.HasRemoteTask(ctx, dto.ID)
		if err != nil {
			return report, err
		}
		if known {
			skipped++
			continue
		}
		if _, err := e.store.InsertRemoteTask(ctx, dto.ID, e.remote.TaskFileURL(dto.ID), dto.DisplayName, dto.LengthMs); err != nil {
			return report, fmt.Errorf("failed to insert remote task %d (%d inserted before): %w", dto.ID, report.Inserted, err)
		}
		report.Inserted++
	}
	e.logger.Printf("Pull complete: listed=%d inserted=%d known=%d", len(tasks), report.Inserted, skipped)

	push, err := e.UploadChanges(ctx)
	report.Push = push
	if err != nil {
		return report, err
	}
	return report, nil
}
