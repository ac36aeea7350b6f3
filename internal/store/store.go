// Package store is the durable local record store for fieldscribe.
//
// It keeps tasks, regions, partial transcripts and audio file metadata in an
// embedded SQLite database (ncruces/go-sqlite3, WAL mode). Every write is
// committed before the call returns; multi-row changes run in a single
// transaction so a cancelled caller never observes half a mutation.
//
// Layout:
//   - file_info: one row per imported or downloaded audio blob
//   - local_entity: the on-device copy of a blob, referenced by a task
//   - task: the transcription aggregate
//   - region: playback slices of a task, one active set at a time
//   - partial_transcript: autosaved text snapshots per region
//
// The schema version lives in PRAGMA user_version and is advanced by the
// forward-only migrations in migrations.go when the database is opened.
//
// Callers must serialize mutations of a single task; the store does not
// detect two writers editing the same task concurrently.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// ErrNotFound is wrapped into a KindStore error when a row does not exist.
var ErrNotFound = errors.New("not found")

// Options configures Open.
type Options struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// Logger receives store warnings. Defaults to stderr with a [store] prefix.
	Logger *log.Logger
	// RegionLength is the target region length (ms) recorded on new tasks.
	// Defaults to types.DefaultRegionLength.
	RegionLength int64
}

// Store wraps the SQLite connection with the fieldscribe schema.
type Store struct {
	conn         *sql.DB
	path         string
	now          func() time.Time
	logger       *log.Logger
	regionLength int64

	feed *feed

	closeOnce sync.Once
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(filepath.Join(dataDir, "fieldscribe.db"), store.Options{})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string, opts Options) (*Store, error) {
	return OpenContext(context.Background(), path, opts)
}

// OpenContext opens the database with context support.
func OpenContext(ctx context.Context, path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// busy_timeout and foreign_keys are per connection, so they go in the DSN
	// to reach every pooled connection. _txlock=immediate avoids upgrade
	// deadlocks between concurrent writers.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		conn:         conn,
		path:         path,
		now:          opts.Clock,
		logger:       opts.Logger,
		regionLength: opts.RegionLength,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.regionLength <= 0 {
		s.regionLength = types.DefaultRegionLength
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.feed = newFeed(s.AllTasksContext, s.logger)
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close stops the live feed, checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.feed != nil {
			s.feed.close()
		}
		if _, cerr := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); cerr != nil {
			s.logger.Printf("WARNING: failed to checkpoint WAL: %v", cerr)
		}
		if cerr := s.conn.Close(); cerr != nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
	})
	return err
}

// Subscribe returns a channel that receives the ordered task list now and
// after every committed write. Slow readers only ever see the newest
// snapshot; writers never wait for them. Call the returned function to
// unsubscribe.
func (s *Store) Subscribe() (<-chan []types.Task, func()) {
	return s.feed.subscribe()
}

// changed is called after every successful commit.
func (s *Store) changed() {
	if s.feed != nil {
		s.feed.notify()
	}
}

// storeErr tags err as a local persistence failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return types.E(types.KindStore, "store."+op, err)
}

// requireOne turns a zero-row update into ErrNotFound.
func requireOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ms converts t to the millisecond epoch used by every timestamp column.
func ms(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMs(v int64) time.Time {
	return time.UnixMilli(v)
}

func nullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullMsToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
