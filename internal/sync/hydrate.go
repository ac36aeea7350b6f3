package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fieldscribe/fieldscribe/internal/segment"
	"github.com/fieldscribe/fieldscribe/internal/store"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// GetFullTranscriptTask hydrates the task if needed, makes sure its active
// regions match its length and returns the full view.
func (e *engine) GetFullTranscriptTask(ctx context.Context, id types.TaskID) (*types.FullTask, error) {
	const op = "sync.GetFullTranscriptTask"

	task, err := e.store.GetTaskContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.HasLocalFile() {
		if task, err = e.hydrate(ctx, task); err != nil {
			return nil, types.E(types.KindLoading, op, err)
		}
	}

	local, err := e.store.GetLocalFile(ctx, *task.LocalFile)
	if err != nil {
		return nil, types.E(types.KindLoading, op, err)
	}
	if err := e.waitForAudio(ctx, local.Path); err != nil {
		return nil, err
	}

	regions, err := e.ensureRegions(ctx, task)
	if err != nil {
		return nil, err
	}
	partials, err := e.store.GetPartialTranscripts(ctx, id)
	if err != nil {
		return nil, err
	}

	return &types.FullTask{
		Task:               *task,
		Regions:            regions,
		PartialTranscripts: partials,
		LocalFilePath:      local.Path,
	}, nil
}

// hydrate downloads the task's audio and links it. On failure the file and
// its metadata are removed again and the task is left untouched.
func (e *engine) hydrate(ctx context.Context, task *types.Task) (*types.Task, error) {
	ext, base := splitExt(task.DisplayName)
	fi, err := e.store.InsertFileInfo(ctx, ext, task.RemoteURL, base)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(e.cfg.FilesDir, store.FileName(fi))
	f, err := createExclusive(path)
	if err != nil {
		e.cleanupFile(ctx, fi.ID, "")
		return nil, err
	}

	_, err = e.remote.DownloadToFile(ctx, task.RemoteURL, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = types.E(types.KindIO, "sync.hydrate", cerr)
	}
	if err != nil {
		e.cleanupFile(ctx, fi.ID, path)
		return nil, fmt.Errorf("failed to download audio of task %d: %w", task.ID, err)
	}

	hydrated, err := e.store.AddLocalAudioFile(ctx, task.ID, fi.ID, path)
	if err != nil {
		e.cleanupFile(ctx, fi.ID, path)
		return nil, err
	}
	e.logger.Printf("Hydrated task %d into %s", task.ID, path)
	return hydrated, nil
}

// ensureRegions regenerates the active regions when their count no longer
// matches the task length. A matching set is reused as is.
func (e *engine) ensureRegions(ctx context.Context, task *types.Task) ([]types.Region, error) {
	active, err := e.store.GetActiveRegions(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	regenerate, err := segment.NeedsRegeneration(len(active), task.Length, task.RegionLength)
	if err != nil {
		return nil, types.E(types.KindLoading, "sync.ensureRegions", err)
	}
	if !regenerate {
		return active, nil
	}

	spans, err := segment.Segment(task.Length, task.RegionLength)
	if err != nil {
		return nil, types.E(types.KindLoading, "sync.ensureRegions", err)
	}
	if len(active) > 0 {
		e.logger.Printf("Regenerating regions of task %d: %d active, want %d", task.ID, len(active), len(spans))
	}
	return e.store.ReplaceActiveRegions(ctx, task.ID, spans)
}

// splitExt splits "clip.opus" into ("opus", "clip"). Names without an
// extension get the generic "audio" extension.
func splitExt(name string) (ext, base string) {
	dot := filepath.Ext(name)
	if dot == "" || dot == "." {
		return "audio", strings.TrimSuffix(name, ".")
	}
	return strings.ToLower(dot[1:]), strings.TrimSuffix(name, dot)
}

// createExclusive creates path, failing if it already exists.
func createExclusive(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, types.E(types.KindIO, "sync.createExclusive", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, types.E(types.KindIO, "sync.createExclusive", err)
	}
	return f, nil
}
