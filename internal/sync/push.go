package sync

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// UploadChanges pushes every task that is unsynced or owes the server a
// completion notice.
func (e *engine) UploadChanges(ctx context.Context) (PushReport, error) {
	all, err := e.store.AllTasksContext(ctx)
	if err != nil {
		return PushReport{}, err
	}

	var pending []types.Task
	for _, t := range all {
		if !t.IsSynced() || t.CompletionPending() {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return PushReport{}, nil
	}

	// Each goroutine owns one slot, so no locking is needed.
	reports := make([]PushReport, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PushConcurrency)
	for i := range pending {
		task := pending[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = e.pushTask(gctx, &task)
			return nil
		})
	}
	err = g.Wait()

	var total PushReport
	for _, r := range reports {
		total.add(r)
	}
	e.logger.Printf("Push complete: tasks=%d rejects=%d (failed=%d) transcripts=%d (failed=%d) completions=%d (failed=%d, skipped=%d)",
		len(pending), total.Rejected, total.RejectFailed, total.Transcripts, total.TranscriptFailed,
		total.Completions, total.CompletionFailed, total.Skipped)
	if err != nil {
		return total, err
	}
	return total, ctx.Err()
}

// pushTask runs the push steps for one task in order: reject, transcript,
// completion. A rejected task sends only its reject reason.
func (e *engine) pushTask(ctx context.Context, t *types.Task) PushReport {
	var r PushReport

	if t.Phase() == types.PhaseRejected {
		if t.IsSynced() {
			return r
		}
		if err := e.remote.RejectTask(ctx, t.RemoteID, *t.RejectReason); err != nil {
			e.logger.Printf("WARNING: failed to push rejection of task %d: %v", t.ID, err)
			r.RejectFailed++
			return r
		}
		if err := e.store.MarkTaskUploaded(ctx, t.ID, t.UpdatedAt); err != nil {
			e.logger.Printf("WARNING: rejection of task %d pushed but not marked: %v", t.ID, err)
		}
		r.Rejected++
		return r
	}

	transcriptOK := true
	if !t.IsSynced() && t.LatestTranscript != "" {
		if err := e.pushTranscript(ctx, t); err != nil {
			e.logger.Printf("WARNING: failed to push transcript of task %d: %v", t.ID, err)
			r.TranscriptFailed++
			transcriptOK = false
		} else {
			r.Transcripts++
		}
	}

	if !t.CompletionPending() {
		return r
	}
	if !transcriptOK {
		r.Skipped++
		return r
	}
	if t.Difficulty == nil {
		e.logger.Printf("WARNING: task %d is completed without a difficulty, not announcing", t.ID)
		r.Skipped++
		return r
	}
	if err := e.remote.CompleteTask(ctx, t.RemoteID, *t.Difficulty, *t.CompletedAt); err != nil {
		e.logger.Printf("WARNING: failed to push completion of task %d: %v", t.ID, err)
		r.CompletionFailed++
		return r
	}
	if err := e.store.MarkCompletionNotified(ctx, t.ID, *t.CompletedAt); err != nil {
		e.logger.Printf("WARNING: completion of task %d pushed but not marked: %v", t.ID, err)
	}
	r.Completions++

	// Without a transcript the completion is the whole change.
	if !t.IsSynced() && t.LatestTranscript == "" {
		if err := e.store.MarkTaskUploaded(ctx, t.ID, t.UpdatedAt); err != nil {
			e.logger.Printf("WARNING: completion of task %d pushed but not marked uploaded: %v", t.ID, err)
		}
	}
	return r
}

// pushTranscript uploads all snapshots of a task and records the text the
// server accepted. The task counts as uploaded as of t.UpdatedAt, so edits
// saved while the upload was in flight are pushed on the next cycle.
func (e *engine) pushTranscript(ctx context.Context, t *types.Task) error {
	partials, err := e.store.GetPartialTranscripts(ctx, t.ID)
	if err != nil {
		return err
	}
	regions, err := e.store.GetAllRegions(ctx, t.ID)
	if err != nil {
		return err
	}
	full := types.FullTask{Task: *t, PartialTranscripts: partials}
	submitted, err := e.remote.UploadTranscripts(ctx, t.RemoteID, full.TranscriptUploads(regions))
	if err != nil {
		return err
	}
	return e.store.SetSubmittedTranscript(ctx, t.ID, submitted, t.UpdatedAt)
}

func (r *PushReport) add(o PushReport) {
	r.Rejected += o.Rejected
	r.RejectFailed += o.RejectFailed
	r.Transcripts += o.Transcripts
	r.TranscriptFailed += o.TranscriptFailed
	r.Completions += o.Completions
	r.CompletionFailed += o.CompletionFailed
	r.Skipped += o.Skipped
}
