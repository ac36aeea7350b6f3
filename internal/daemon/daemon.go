// Package daemon runs sync cycles in the background and ingests audio
// dropped into an inbox directory.
//
// The daemon:
// 1. Runs a sync cycle at startup and then on a fixed interval
// 2. Watches the inbox for *.json manifests
// 3. Imports and submits the audio each manifest describes
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	syncengine "github.com/fieldscribe/fieldscribe/internal/sync"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// DoneDir is the inbox subdirectory that receives ingested clips.
const DoneDir = "done"

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often a sync cycle runs.
	SyncInterval time.Duration

	// DebounceInterval is how long a manifest must stay unchanged before it
	// is ingested. This batches rapid writes together.
	DebounceInterval time.Duration

	// InboxDir is watched for manifests. Empty disables ingestion.
	InboxDir string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Notifier receives daemon events. Implementations must not block.
type Notifier interface {
	SyncComplete(report syncengine.SyncReport)
	SyncFailed(err error)
	TaskIngested(task *types.Task)
}

// Daemon orchestrates periodic sync cycles and inbox ingestion.
type Daemon struct {
	engine   syncengine.Engine
	config   *Config
	notifier Notifier

	watcher       *InboxWatcher
	changeQueue   map[string]time.Time // manifest path -> last event
	changeQueueMu sync.Mutex

	// syncMu allows one sync cycle at a time.
	syncMu   sync.Mutex
	triggers chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon with custom configuration. A nil config uses
// DefaultConfig.
//
// Use Start() to begin syncing and watching.
func New(engine syncengine.Engine, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive")
	}
	if config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	d := &Daemon{
		engine:      engine,
		config:      config,
		changeQueue: make(map[string]time.Time),
		triggers:    make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if config.InboxDir != "" {
		watcher, err := NewInboxWatcher()
		if err != nil {
			return nil, err
		}
		d.watcher = watcher
	}
	return d, nil
}

// SetNotifier registers n for sync and ingest events. Call before Start.
func (d *Daemon) SetNotifier(n Notifier) {
	d.notifier = n
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run one sync cycle (a failure is logged; being offline is normal)
// 2. Queue manifests already waiting in the inbox and start watching it
// 3. Run sync cycles on every interval tick and on TriggerSync
// 4. Ingest manifests once they are stable for DebounceInterval
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.watcher != nil {
		if err := os.MkdirAll(filepath.Join(d.config.InboxDir, DoneDir), 0755); err != nil {
			return fmt.Errorf("failed to create inbox: %w", err)
		}
		if err := d.watcher.Start(d.config.InboxDir); err != nil {
			return err
		}
		d.config.Logger.Printf("Watching inbox: %s", d.config.InboxDir)
	}

	if _, err := d.SyncNow(ctx); err != nil {
		d.config.Logger.Printf("Initial sync failed: %v", err)
	}

	d.wg.Add(1)
	go d.syncLoop()
	if d.watcher != nil {
		d.scanInbox()
		d.wg.Add(2)
		go d.watchInbox()
		go d.processChangeQueue()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. A sync cycle in flight is
// cancelled; every store write it already made stays committed.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// TriggerSync requests a sync cycle without waiting for it. Requests made
// while one is already pending are merged.
func (d *Daemon) TriggerSync() {
	select {
	case d.triggers <- struct{}{}:
	default:
	}
}

// SyncNow runs one sync cycle, waiting for any cycle already in progress.
func (d *Daemon) SyncNow(ctx context.Context) (syncengine.SyncReport, error) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	// Stop also cancels cycles started from the caller's context.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	start := time.Now()
	report, err := d.engine.RefreshTasks(ctx)
	if err != nil {
		d.config.Logger.Printf("Sync failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		if d.notifier != nil {
			d.notifier.SyncFailed(err)
		}
		return report, err
	}

	d.config.Logger.Printf("Sync complete in %s: inserted=%d pushed=%d (failed=%d)",
		time.Since(start).Round(time.Millisecond), report.Inserted, report.Push.Calls(), report.Push.Failed())
	if d.notifier != nil {
		d.notifier.SyncComplete(report)
	}
	return report, nil
}

func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		case <-d.triggers:
		}
		_, _ = d.SyncNow(d.ctx)
		// Manifests whose ingestion failed get another chance each cycle.
		if d.watcher != nil {
			d.scanInbox()
		}
	}
}

// watchInbox monitors inbox events and queues changed manifests.
func (d *Daemon) watchInbox() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if event.Op == OpDelete {
				d.dequeue(event.Path)
				continue
			}
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// scanInbox queues every manifest currently in the inbox.
func (d *Daemon) scanInbox() {
	entries, err := os.ReadDir(d.config.InboxDir)
	if err != nil {
		d.config.Logger.Printf("Error reading inbox: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path, err := filepath.Abs(filepath.Join(d.config.InboxDir, entry.Name()))
		if err != nil {
			continue
		}
		d.queueChange(path)
	}
}

func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

func (d *Daemon) dequeue(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	delete(d.changeQueue, path)
}

// processChangeQueue ingests queued manifests with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			for _, path := range d.readyManifests() {
				if err := d.ingest(d.ctx, path); err != nil {
					d.config.Logger.Printf("Error ingesting %s: %v", filepath.Base(path), err)
				}
			}
		}
	}
}

// readyManifests removes and returns the manifests that have been quiet for
// at least DebounceInterval.
func (d *Daemon) readyManifests() []string {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	return ready
}

// ingest imports and submits the clip a manifest describes. On success the
// manifest and its audio move to done/; on failure both stay in the inbox.
func (d *Daemon) ingest(ctx context.Context, manifestPath string) error {
	m, err := ReadManifest(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	audioPath := filepath.Join(filepath.Dir(manifestPath), m.File)

	name := m.DisplayName
	if name == "" {
		name = strings.TrimSuffix(m.File, filepath.Ext(m.File))
	}
	p, err := d.engine.CreateProvisionalTask(ctx, syncengine.IncomingContent{
		URI:         audioPath,
		DisplayName: name,
		MimeType:    m.MimeType,
	})
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", m.File, err)
	}

	task, err := d.engine.CreateTranscriptTask(ctx, *p, m.LengthMs)
	if err != nil {
		if derr := d.engine.DiscardProvisionalTask(context.WithoutCancel(ctx), *p); derr != nil {
			d.config.Logger.Printf("WARNING: failed to discard import of %s: %v", m.File, derr)
		}
		return fmt.Errorf("failed to submit %s: %w", m.File, err)
	}

	doneDir := filepath.Join(filepath.Dir(manifestPath), DoneDir)
	for _, src := range []string{audioPath, manifestPath} {
		if err := os.Rename(src, filepath.Join(doneDir, filepath.Base(src))); err != nil {
			d.config.Logger.Printf("WARNING: %s was submitted but not moved to %s: %v", filepath.Base(src), DoneDir, err)
			if src == manifestPath {
				// A manifest left behind would be submitted again.
				_ = os.Remove(src)
			}
		}
	}

	d.config.Logger.Printf("Ingested %s as task %d", m.File, task.ID)
	if d.notifier != nil {
		d.notifier.TaskIngested(task)
	}
	return nil
}
