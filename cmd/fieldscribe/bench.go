package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fieldscribe/fieldscribe/internal/loadtest"
	"github.com/fieldscribe/fieldscribe/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "setup",
	Short:   "Measure local autosave latency under concurrent load",
	Long: `Run concurrent transcribers against a scratch database and report how
long transcript saves take.

Each transcriber owns one task and saves snapshots, moving to the next region
every five saves. Readers list the task table meanwhile. The run fails if any
snapshot is lost. Nothing touches your real database or the server.

Examples:
  fieldscribe bench
  fieldscribe bench --tasks 100 --saves 20 --readers 4 --json`,
	Run: runBench,
}

func init() {
	defaults := loadtest.DefaultOptions()
	benchCmd.Flags().Int("tasks", defaults.Tasks, "Number of tasks (one transcriber each)")
	benchCmd.Flags().Int("saves", defaults.SavesPerTask, "Snapshots saved per task")
	benchCmd.Flags().Int("readers", defaults.Readers, "Concurrent task list readers")
	benchCmd.Flags().Int64("length-ms", defaults.TaskLengthMs, "Audio length of each task")
	benchCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) {
	opts := loadtest.Options{}
	opts.Tasks, _ = cmd.Flags().GetInt("tasks")
	opts.SavesPerTask, _ = cmd.Flags().GetInt("saves")
	opts.Readers, _ = cmd.Flags().GetInt("readers")
	opts.TaskLengthMs, _ = cmd.Flags().GetInt64("length-ms")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if opts.Tasks <= 0 || opts.SavesPerTask <= 0 || opts.TaskLengthMs <= 0 {
		fatalf("--tasks, --saves and --length-ms must be positive")
	}
	if opts.Readers < 0 {
		fatalf("--readers must not be negative")
	}

	dir, err := os.MkdirTemp("", "fieldscribe-bench-")
	if err != nil {
		fatalf("%v", err)
	}
	defer os.RemoveAll(dir)

	ctx, cancel := signalContext()
	defer cancel()

	if !jsonOutput {
		fmt.Printf("Configuration: %d tasks, %d saves/task, %d readers\n\n", opts.Tasks, opts.SavesPerTask, opts.Readers)
	}

	td, err := loadtest.CreateTestDatabase(ctx, filepath.Join(dir, "bench.db"), opts)
	if err != nil {
		fatalf("%v", err)
	}
	defer td.Close()

	stats, err := td.RunConcurrentSaves(ctx, opts)
	if err != nil {
		fatalf("%v", err)
	}
	if err := td.Verify(ctx, opts); err != nil {
		fatalf("consistency check failed: %v", err)
	}

	if jsonOutput {
		out := map[string]any{
			"total_saves": stats.TotalSaves,
			"reads":       stats.Reads,
			"min_ns":      stats.Min.Nanoseconds(),
			"p50_ns":      stats.P50.Nanoseconds(),
			"mean_ns":     stats.Mean.Nanoseconds(),
			"p95_ns":      stats.P95.Nanoseconds(),
			"p99_ns":      stats.P99.Nanoseconds(),
			"max_ns":      stats.Max.Nanoseconds(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	stats.PrintStats(os.Stdout)
	fmt.Println()
	fmt.Println(ui.NewTheme(os.Stdout).Successf("No snapshots lost"))
}
