package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	syncengine "github.com/fieldscribe/fieldscribe/internal/sync"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Pull new tasks and push local changes",
	Long: `Run one sync cycle.

The cycle:
  1. Lists the server's tasks and records the ones not seen before
  2. Sends rejections, transcripts and completions of unsynced tasks

With --push-only the listing is skipped. A failed push of one task does not
stop the others; it is retried on the next sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		pushOnly, _ := cmd.Flags().GetBool("push-only")

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		engine := a.Engine()
		fmt.Printf("Syncing with %s...\n", a.cfg.ServerURL)
		start := time.Now()

		var report syncengine.SyncReport
		var err error
		if pushOnly {
			report.Push, err = engine.UploadChanges(ctx)
			checkErr("push failed", err)
		} else {
			report, err = engine.RefreshTasks(ctx)
			checkErr("sync failed", err)
		}
		push := report.Push

		fmt.Println(a.theme.Successf("Sync complete in %v", time.Since(start).Round(time.Millisecond)))
		if !pushOnly {
			fmt.Printf("   New tasks: %d\n", report.Inserted)
		}
		fmt.Printf("   Rejections sent: %d\n", push.Rejected)
		fmt.Printf("   Transcripts sent: %d\n", push.Transcripts)
		fmt.Printf("   Completions sent: %d\n", push.Completions)
		if n := push.Failed(); n > 0 {
			fmt.Println(a.theme.Warnf("%d push calls failed; they are retried on the next sync", n))
		}
		if push.Skipped > 0 {
			fmt.Printf("   Completions held back: %d\n", push.Skipped)
		}
	},
}

// statusReport is the output of 'fieldscribe status'.
type statusReport struct {
	Server             string         `yaml:"server"`
	Database           string         `yaml:"database"`
	SignedIn           bool           `yaml:"signed_in"`
	Account            string         `yaml:"account,omitempty"`
	Tasks              int            `yaml:"tasks"`
	ByPhase            map[string]int `yaml:"by_phase"`
	Unsynced           int            `yaml:"unsynced"`
	PendingCompletions int            `yaml:"pending_completions"`
	WithAudio          int            `yaml:"with_audio"`
	AudioFiles         int            `yaml:"audio_files"`
	PlaybackSpeed      string         `yaml:"playback_speed"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local database and sync status",
	Long: `Show what is stored locally and what still has to reach the server.

Output formats:
  text - human readable (default)
  yaml - machine readable`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "yaml" {
			fatalf("unknown format %q (want text or yaml)", format)
		}

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		tasks, err := a.store.AllTasksContext(ctx)
		if err != nil {
			fatalf("failed to list tasks: %v", err)
		}
		files, err := a.store.CountFileInfos(ctx)
		if err != nil {
			fatalf("failed to count audio files: %v", err)
		}

		report := statusReport{
			Server:        a.cfg.ServerURL,
			Database:      a.cfg.DBPath(),
			Tasks:         len(tasks),
			ByPhase:       make(map[string]int),
			AudioFiles:    files,
			PlaybackSpeed: a.prefs.PlaybackSpeed().String(),
		}
		if _, ok := a.prefs.Tokens(); ok {
			report.SignedIn = true
		}
		if user, ok := a.prefs.UserInfo(); ok {
			report.Account = user.Mobile
		}
		for i := range tasks {
			t := &tasks[i]
			report.ByPhase[t.Phase().String()]++
			if !t.IsSynced() {
				report.Unsynced++
			}
			if t.CompletionPending() {
				report.PendingCompletions++
			}
			if t.HasLocalFile() {
				report.WithAudio++
			}
		}

		if format == "yaml" {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				fatalf("%v", err)
			}
			_ = enc.Close()
			return
		}

		th := a.theme
		fmt.Printf("\n%s\n\n", th.Header.Render("fieldscribe status"))
		server := report.Server
		if server == "" {
			server = th.Warn.Render("not configured")
		}
		fmt.Printf("Server: %s\n", server)
		fmt.Printf("Database: %s\n", report.Database)
		if report.SignedIn {
			fmt.Printf("Account: %s\n", report.Account)
		} else {
			fmt.Printf("Account: %s\n", th.Warn.Render("signed out"))
		}
		fmt.Printf("Tasks: %d\n", report.Tasks)
		for _, p := range []types.Phase{types.PhaseNew, types.PhaseInProgress, types.PhaseCompleted, types.PhaseRejected} {
			if n := report.ByPhase[p.String()]; n > 0 {
				fmt.Printf("   %s: %d\n", th.Phase(p), n)
			}
		}
		fmt.Printf("Unsynced: %d\n", report.Unsynced)
		fmt.Printf("Pending completions: %d\n", report.PendingCompletions)
		fmt.Printf("With audio: %d (%d files)\n", report.WithAudio, report.AudioFiles)
		fmt.Printf("Playback speed: %sx\n", report.PlaybackSpeed)
		fmt.Println()
	},
}

func init() {
	syncCmd.Flags().Bool("push-only", false, "Only push local changes")
	statusCmd.Flags().String("format", "text", "Output format: text or yaml")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
