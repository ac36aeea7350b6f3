// Package sync reconciles the local store with the transcription server.
//
// Overview
//
// The engine owns every path that crosses the store/server boundary:
//
//	Server                         Engine                        Store
//	  GET /tasks         ──pull──▶  insert unknown REMOTE tasks ─▶ task
//	  POST .../reject    ◀─push───  rejected, unsynced tasks      task
//	  POST .../transcripts ◀─push─  partial transcript snapshots  partial_transcript
//	  POST .../complete  ◀─push───  completions not yet announced task
//	  GET .../file       ──hydrate▶ file_info + local_entity      region
//	  POST /tasks        ◀─submit── imported audio                file_info
//
// Ordering
//
// Every path creates remote truth first and projects it locally afterwards,
// or compensates a failed local step. A local task is only inserted after
// the server accepted the submission, and a failed download or copy removes
// the file metadata it created, so no path leaves a file_info row without
// bytes behind it.
//
// Within one push pass the steps for a task run strictly in the order
// reject, transcript, completion. Different tasks are pushed concurrently.
// Per-task failures are logged and counted in the PushReport; the task stays
// unsynced and is retried on the next cycle.
//
// Concurrency
//
// The engine assumes a single writer per task: callers run at most one sync
// cycle at a time (the daemon serializes its cycles) and user edits to a
// task are not expected while that task is being pushed.
//
// Usage
//
//	engine := sync.New(st, client, sync.Config{FilesDir: filesDir}, nil)
//	report, err := engine.RefreshTasks(ctx)
//	if err != nil {
//	    return err
//	}
//	log.Printf("inserted %d, push failures %d", report.Inserted, report.Push.Failed())
package sync
