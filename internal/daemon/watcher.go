package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new manifest appeared.
	OpCreate EventOp = iota
	// OpModify indicates an existing manifest was rewritten.
	OpModify
	// OpDelete indicates a manifest was removed or moved away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// InboxEvent is a change to a manifest in the inbox directory.
type InboxEvent struct {
	// Path is the absolute path to the manifest.
	Path string
	// Op is the operation that occurred.
	Op EventOp
}

// InboxWatcher watches the inbox directory for manifest changes.
// It uses fsnotify for cross-platform file system event monitoring.
type InboxWatcher struct {
	watcher  *fsnotify.Watcher
	events   chan InboxEvent
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	inboxDir string
}

// NewInboxWatcher creates a new InboxWatcher instance.
// The watcher must be started with Start() before it will emit events.
func NewInboxWatcher() (*InboxWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &InboxWatcher{
		watcher: watcher,
		events:  make(chan InboxEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching inboxDir for *.json manifests. Subdirectories such
// as done/ are not watched.
func (iw *InboxWatcher) Start(inboxDir string) error {
	iw.mu.Lock()
	defer iw.mu.Unlock()

	if iw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(inboxDir)
	if err != nil {
		return fmt.Errorf("failed to resolve inbox directory %s: %w", inboxDir, err)
	}
	if err := iw.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch inbox directory %s: %w", abs, err)
	}
	iw.inboxDir = abs

	iw.running = true
	iw.wg.Add(1)
	go iw.processEvents()

	return nil
}

// Stop stops watching and blocks until the event loop has exited. The
// event and error channels are closed afterwards.
func (iw *InboxWatcher) Stop() error {
	iw.mu.Lock()
	if !iw.running {
		iw.mu.Unlock()
		return nil
	}
	iw.running = false
	iw.mu.Unlock()

	close(iw.done)

	// Closing the fsnotify watcher unblocks the event loop.
	err := iw.watcher.Close()
	iw.wg.Wait()

	close(iw.events)
	close(iw.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Events returns the channel that emits InboxEvent notifications.
// This channel is closed when the watcher is stopped.
func (iw *InboxWatcher) Events() <-chan InboxEvent {
	return iw.events
}

// Errors returns the channel that emits watcher errors.
// This channel is closed when the watcher is stopped.
func (iw *InboxWatcher) Errors() <-chan error {
	return iw.errors
}

// IsRunning returns true if the watcher is currently running.
func (iw *InboxWatcher) IsRunning() bool {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	return iw.running
}

func (iw *InboxWatcher) processEvents() {
	defer iw.wg.Done()

	for {
		select {
		case <-iw.done:
			return

		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := iw.convertEvent(event); ok {
				select {
				case iw.events <- ev:
				case <-iw.done:
					return
				}
			}

		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case iw.errors <- err:
			case <-iw.done:
				return
			}
		}
	}
}

// convertEvent keeps manifest events directly inside the inbox.
func (iw *InboxWatcher) convertEvent(event fsnotify.Event) (InboxEvent, bool) {
	if !strings.HasSuffix(event.Name, ".json") {
		return InboxEvent{}, false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || filepath.Dir(abs) != iw.inboxDir {
		return InboxEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename away from the inbox looks like a delete.
		op = OpDelete
	default:
		return InboxEvent{}, false
	}

	return InboxEvent{Path: abs, Op: op}, true
}
