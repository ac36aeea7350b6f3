package store

import (
	"context"
	"log"
	"sync"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// feed publishes task list snapshots to subscribers. Writers only flip a
// dirty flag; one goroutine re-queries and fans the result out. Each
// subscriber channel holds one snapshot and a stale one is replaced.
type feed struct {
	load   func(context.Context) ([]types.Task, error)
	logger *log.Logger

	dirty  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	subs   map[int]chan []types.Task
	nextID int
}

func newFeed(load func(context.Context) ([]types.Task, error), logger *log.Logger) *feed {
	ctx, cancel := context.WithCancel(context.Background())
	f := &feed{
		load:   load,
		logger: logger,
		dirty:  make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan []types.Task),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// notify marks the feed dirty without blocking.
func (f *feed) notify() {
	select {
	case f.dirty <- struct{}{}:
	default:
	}
}

func (f *feed) subscribe() (<-chan []types.Task, func()) {
	ch := make(chan []types.Task, 1)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	// New subscribers get a snapshot right away.
	f.notify()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(ch)
			}
			f.mu.Unlock()
		})
	}
}

func (f *feed) run() {
	defer f.wg.Done()
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.dirty:
			f.publish()
		}
	}
}

func (f *feed) publish() {
	f.mu.Lock()
	n := len(f.subs)
	f.mu.Unlock()
	if n == 0 {
		return
	}

	tasks, err := f.load(f.ctx)
	if err != nil {
		if f.ctx.Err() == nil {
			f.logger.Printf("WARNING: failed to load task list for subscribers: %v", err)
		}
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		// Drop the unread snapshot, then deliver the new one.
		select {
		case <-ch:
		default:
		}
		// Each subscriber owns its slice and may modify it.
		snapshot := append([]types.Task(nil), tasks...)
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (f *feed) close() {
	f.cancel()
	f.wg.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
