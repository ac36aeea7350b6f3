// Package loadtest measures how the local store holds up when many
// transcribers autosave at once.
//
// Each simulated transcriber owns one task and saves transcript snapshots for
// its regions, moving from region to region the way the editor does, while
// readers list the task table like the dashboard feed. The store serializes
// writes through SQLite; the test reports save latency and checks that no
// snapshot was lost.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldscribe/fieldscribe/internal/segment"
	"github.com/fieldscribe/fieldscribe/internal/store"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// Options configures a run.
type Options struct {
	// Tasks is the number of tasks, one transcriber each.
	Tasks int
	// SavesPerTask is how many snapshots each transcriber saves.
	SavesPerTask int
	// Readers list all tasks in a loop while the writers run.
	Readers int
	// TaskLengthMs is the audio length of every task.
	TaskLengthMs int64
}

// DefaultOptions returns a moderate workload.
func DefaultOptions() Options {
	return Options{
		Tasks:        20,
		SavesPerTask: 50,
		Readers:      2,
		TaskLengthMs: 60_000,
	}
}

// TestDatabase is a store populated with tasks and regions.
type TestDatabase struct {
	Store   *store.Store
	Tasks   []types.Task
	Regions map[types.TaskID][]types.Region
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration // Median
	P95        time.Duration
	P99        time.Duration
	TotalSaves int
	Reads      int
	Durations  []time.Duration
}

// CreateTestDatabase opens a store at dbPath and inserts opts.Tasks remote
// tasks with active regions.
func CreateTestDatabase(ctx context.Context, dbPath string, opts Options) (*TestDatabase, error) {
	if opts.Tasks < 1 || opts.SavesPerTask < 1 || opts.TaskLengthMs < 1 {
		return nil, fmt.Errorf("tasks, saves per task and task length must be positive")
	}

	st, err := store.Open(dbPath, store.Options{Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	td := &TestDatabase{
		Store:   st,
		Tasks:   make([]types.Task, 0, opts.Tasks),
		Regions: make(map[types.TaskID][]types.Region, opts.Tasks),
	}

	spans, err := segment.Segment(opts.TaskLengthMs, types.DefaultRegionLength)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to segment test audio: %w", err)
	}

	for i := 0; i < opts.Tasks; i++ {
		remoteID := types.RemoteID(100_000 + i)
		task, err := st.InsertRemoteTask(ctx, remoteID, fmt.Sprintf("https://loadtest.invalid/tasks/%d/file", remoteID),
			fmt.Sprintf("loadtest-%05d.wav", i), opts.TaskLengthMs)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to insert task %d: %w", i, err)
		}
		regions, err := st.ReplaceActiveRegions(ctx, task.ID, spans)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to create regions of task %d: %w", task.ID, err)
		}
		td.Tasks = append(td.Tasks, *task)
		td.Regions[task.ID] = regions
	}

	return td, nil
}

// Close closes the test database connection.
func (td *TestDatabase) Close() error {
	if td.Store != nil {
		return td.Store.Close()
	}
	return nil
}

// saveText is the text written by save j of task t.
func saveText(t types.TaskID, j int) string {
	return fmt.Sprintf("task %d save %d", t, j)
}

// RunConcurrentSaves runs one transcriber per task plus opts.Readers readers
// and returns save latency. Every few saves a transcriber moves to the next
// region, which starts a new snapshot instead of updating the current one.
func (td *TestDatabase) RunConcurrentSaves(ctx context.Context, opts Options) (*LatencyStats, error) {
	durations := make([][]time.Duration, len(td.Tasks))

	writers, wctx := errgroup.WithContext(ctx)
	for i := range td.Tasks {
		task := td.Tasks[i]
		regions := td.Regions[task.ID]
		writers.Go(func() error {
			d := make([]time.Duration, 0, opts.SavesPerTask)
			var current *types.PartialTranscript
			for j := 0; j < opts.SavesPerTask; j++ {
				region := regions[(j/5)%len(regions)]
				text := saveText(task.ID, j)

				start := time.Now()
				var err error
				if current != nil && current.RegionID == region.ID {
					current, err = td.Store.UpdatePartialTranscript(wctx, current.ID, text)
				} else {
					current, err = td.Store.InsertPartialTranscript(wctx, region, text)
				}
				d = append(d, time.Since(start))
				if err != nil {
					return fmt.Errorf("task %d save %d failed: %w", task.ID, j, err)
				}
			}
			durations[i] = d
			return nil
		})
	}

	readCtx, stopReaders := context.WithCancel(ctx)
	reads := make([]int, opts.Readers)
	var readers errgroup.Group
	for r := 0; r < opts.Readers; r++ {
		readers.Go(func() error {
			for readCtx.Err() == nil {
				tasks, err := td.Store.AllTasksContext(readCtx)
				if err != nil {
					if readCtx.Err() != nil {
						return nil
					}
					return fmt.Errorf("reader %d failed: %w", r, err)
				}
				if len(tasks) != len(td.Tasks) {
					return fmt.Errorf("reader %d saw %d tasks, want %d", r, len(tasks), len(td.Tasks))
				}
				reads[r]++
			}
			return nil
		})
	}

	werr := writers.Wait()
	stopReaders()
	rerr := readers.Wait()
	if werr != nil {
		return nil, werr
	}
	if rerr != nil {
		return nil, rerr
	}

	var all []time.Duration
	for _, d := range durations {
		all = append(all, d...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no saves completed")
	}

	stats := computeLatencyStats(all)
	for _, n := range reads {
		stats.Reads += n
	}
	return stats, nil
}

// Verify checks that every task ended with its last save as the latest
// transcript and that region changes produced the expected snapshot count.
func (td *TestDatabase) Verify(ctx context.Context, opts Options) error {
	for _, task := range td.Tasks {
		got, err := td.Store.GetTaskContext(ctx, task.ID)
		if err != nil {
			return err
		}
		want := saveText(task.ID, opts.SavesPerTask-1)
		if got.LatestTranscript != want {
			return fmt.Errorf("task %d latest transcript = %q, want %q", task.ID, got.LatestTranscript, want)
		}

		partials, err := td.Store.GetPartialTranscripts(ctx, task.ID)
		if err != nil {
			return err
		}
		if want := expectedSnapshots(opts.SavesPerTask, len(td.Regions[task.ID])); len(partials) != want {
			return fmt.Errorf("task %d has %d snapshots, want %d", task.ID, len(partials), want)
		}
	}
	return nil
}

// expectedSnapshots counts region changes: one snapshot per run of five saves,
// except that with a single region every save lands on the same snapshot.
func expectedSnapshots(saves, regions int) int {
	if regions == 1 {
		return 1
	}
	return (saves + 4) / 5
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(durations)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		TotalSaves: len(durations),
		Durations:  sorted,
	}
}

// PrintStats writes latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Save Latency:\n")
	fmt.Fprintf(w, "  Total Saves:   %d\n", s.TotalSaves)
	fmt.Fprintf(w, "  Reads:         %d\n", s.Reads)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
