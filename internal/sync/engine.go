package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fieldscribe/fieldscribe/internal/store"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// Config configures an Engine.
type Config struct {
	// FilesDir holds imported and downloaded audio. Required.
	FilesDir string
	// PushConcurrency bounds how many tasks are pushed at once. Defaults to 4.
	PushConcurrency int
	// AudioReadyTimeout bounds the wait for a written audio file to become
	// non-empty. Defaults to 2s.
	AudioReadyTimeout time.Duration
	// Resolver opens shared content. Defaults to FileResolver.
	Resolver ContentResolver
}

// engine implements the Engine interface.
type engine struct {
	store  *store.Store
	remote Remote
	cfg    Config
	logger *log.Logger
}

// New creates a new Engine.
//
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, rc Remote, cfg Config, logger *log.Logger) Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.PushConcurrency <= 0 {
		cfg.PushConcurrency = 4
	}
	if cfg.AudioReadyTimeout <= 0 {
		cfg.AudioReadyTimeout = 2 * time.Second
	}
	if cfg.Resolver == nil {
		cfg.Resolver = FileResolver{}
	}
	return &engine{
		store:  st,
		remote: rc,
		cfg:    cfg,
		logger: logger,
	}
}

// SaveTranscript updates the latest snapshot when it belongs to the same
// region and appends a new one otherwise.
func (e *engine) SaveTranscript(ctx context.Context, regionID types.RegionID, text string) (*types.PartialTranscript, error) {
	region, err := e.store.GetRegion(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load region %d: %w", regionID, err)
	}

	latest, err := e.store.GetLatestPartialTranscript(ctx, region.TaskID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.RegionID == region.ID {
		return e.store.UpdatePartialTranscript(ctx, latest.ID, text)
	}
	return e.store.InsertPartialTranscript(ctx, *region, text)
}

func (e *engine) CompleteTask(ctx context.Context, id types.TaskID, difficulty types.Difficulty) (*types.FullTask, error) {
	if err := e.store.CompleteTask(ctx, id, difficulty); err != nil {
		return nil, err
	}
	return e.GetFullTranscriptTask(ctx, id)
}

func (e *engine) RejectTask(ctx context.Context, id types.TaskID, reason types.RejectReason) (*types.FullTask, error) {
	if err := e.store.RejectTask(ctx, id, reason); err != nil {
		return nil, err
	}
	return e.GetFullTranscriptTask(ctx, id)
}

func (e *engine) Register(ctx context.Context, reg types.RegistrationRequest) (types.UserInfo, error) {
	return e.remote.Register(ctx, reg)
}

func (e *engine) Login(ctx context.Context) error {
	_, err := e.remote.LoginCached(ctx)
	return err
}

func (e *engine) LogError(ctx context.Context, message string) error {
	if err := e.remote.LogError(ctx, message); err != nil {
		e.logger.Printf("WARNING: failed to log error %q: %v", message, err)
		return err
	}
	e.logger.Printf("Logged error: %s", message)
	return nil
}

// cleanupFile undoes a half-finished import or download. It runs on a
// context detached from cancellation so an aborted cycle still compensates.
func (e *engine) cleanupFile(ctx context.Context, fileID types.FileID, path string) {
	if path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Printf("WARNING: failed to remove %s: %v", path, err)
		}
	}
	if err := e.store.DeleteFileInfo(context.WithoutCancel(ctx), fileID); err != nil {
		e.logger.Printf("WARNING: failed to delete file info %d: %v", fileID, err)
	}
}

// waitForAudio polls until path is a non-empty file or the timeout passes.
func (e *engine) waitForAudio(ctx context.Context, path string) error {
	const op = "sync.waitForAudio"

	ctx, cancel := context.WithTimeout(ctx, e.cfg.AudioReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			if err == nil {
				err = fmt.Errorf("%s is empty", path)
			}
			return types.E(types.KindLoading, op, fmt.Errorf("audio not ready after %s: %w", e.cfg.AudioReadyTimeout, err))
		case <-ticker.C:
		}
	}
}
