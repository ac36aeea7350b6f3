package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldscribe/fieldscribe/internal/store"
	"github.com/fieldscribe/fieldscribe/internal/types"
	"github.com/fieldscribe/fieldscribe/internal/ui"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	GroupID: "work",
	Short:   "List local tasks",
	Long:    `List local tasks, most recently updated first.`,
	Run: func(cmd *cobra.Command, args []string) {
		phase, _ := cmd.Flags().GetString("phase")
		unsynced, _ := cmd.Flags().GetBool("unsynced")

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		tasks, err := a.store.AllTasksContext(ctx)
		if err != nil {
			fatalf("failed to list tasks: %v", err)
		}

		filtered := tasks[:0]
		for _, t := range tasks {
			if phase != "" && !strings.EqualFold(t.Phase().String(), phase) {
				continue
			}
			if unsynced && t.IsSynced() {
				continue
			}
			filtered = append(filtered, t)
		}

		if len(filtered) == 0 {
			fmt.Println("No tasks. Run 'fieldscribe sync' to fetch tasks from the server.")
			return
		}
		fmt.Println(a.theme.TaskTable(filtered))
	},
}

var showCmd = &cobra.Command{
	Use:     "show <task-id>",
	GroupID: "work",
	Short:   "Show a task with its regions and transcripts",
	Long: `Load a task for transcription.

The audio is downloaded if it is not on the device yet, and the regions are
regenerated if the stored ones do not match the audio length.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := types.TaskID(idArg(cmd, args[0]))

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		full, err := a.Engine().GetFullTranscriptTask(ctx, id)
		checkErr(fmt.Sprintf("failed to load task %d", id), err)
		printFullTask(a.theme, full)
	},
}

func printFullTask(th *ui.Theme, full *types.FullTask) {
	t := &full.Task
	fmt.Printf("\n%s %s\n\n", th.Header.Render(t.DisplayName), th.Muted.Render(fmt.Sprintf("(task %d, remote %d)", t.ID, t.RemoteID)))
	fmt.Printf("Phase: %s  %s\n", th.Phase(t.Phase()), th.Synced(t.IsSynced()))
	fmt.Printf("Length: %s\n", ui.FormatMillis(t.Length))
	fmt.Printf("Audio: %s\n", full.LocalFilePath)
	if t.Difficulty != nil {
		fmt.Printf("Difficulty: %s\n", *t.Difficulty)
	}
	if t.RejectReason != nil {
		fmt.Printf("Rejected: %s\n", *t.RejectReason)
	}

	latest := make(map[types.RegionID]types.PartialTranscript)
	for _, p := range full.PartialTranscripts {
		if cur, ok := latest[p.RegionID]; !ok || p.UpdatedAt.After(cur.UpdatedAt) {
			latest[p.RegionID] = p
		}
	}

	fmt.Printf("\nRegions:\n")
	for _, r := range full.Regions {
		text := th.Muted.Render("(empty)")
		if p, ok := latest[r.ID]; ok {
			text = p.Content
		}
		fmt.Printf("  %-6d %s - %s  %s\n", r.ID, ui.FormatMillis(r.Start), ui.FormatMillis(r.End), text)
	}
	fmt.Println()
}

var nextCmd = &cobra.Command{
	Use:     "next [task-id]",
	GroupID: "work",
	Short:   "Show the next open task",
	Long: `Show the first task after the given one that is neither completed nor
rejected, wrapping around to the start. Without an id the first open task is
shown.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var after types.TaskID
		if len(args) == 1 {
			after = types.TaskID(idArg(cmd, args[0]))
		}

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		task, err := a.store.NextTask(ctx, after)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("No open tasks left.")
			return
		}
		if err != nil {
			fatalf("failed to find the next task: %v", err)
		}
		fmt.Println(a.theme.TaskTable([]types.Task{*task}))
	},
}

var playCmd = &cobra.Command{
	Use:     "play <region-id>",
	GroupID: "work",
	Short:   "Record a playback of a region",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := types.RegionID(idArg(cmd, args[0]))

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		if err := a.store.IncrementPlayCount(ctx, id); err != nil {
			fatalf("failed to record playback of region %d: %v", id, err)
		}
		region, err := a.store.GetRegion(ctx, id)
		if err != nil {
			fatalf("failed to load region %d: %v", id, err)
		}
		fmt.Printf("Region %d (%s - %s) played %d times\n", region.ID,
			ui.FormatMillis(region.Start), ui.FormatMillis(region.End), region.PlayCount)
	},
}

var snapshotCmd = &cobra.Command{
	Use:     "snapshot <transcript-id>",
	GroupID: "work",
	Short:   "Show one saved transcript snapshot",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := types.PartialTranscriptID(idArg(cmd, args[0]))

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		p, err := a.store.GetPartialTranscript(ctx, id)
		if err != nil {
			fatalf("failed to load transcript %d: %v", id, err)
		}
		fmt.Printf("%s %s\n", a.theme.Header.Render(fmt.Sprintf("Transcript %d", p.ID)),
			a.theme.Muted.Render(fmt.Sprintf("(task %d, region %d, saved %s)", p.TaskID, p.RegionID, p.UpdatedAt.Format(time.RFC3339))))
		fmt.Println(p.Content)
	},
}

var transcribeCmd = &cobra.Command{
	Use:     "transcribe <region-id> <text>",
	GroupID: "work",
	Short:   "Save the transcript of a region",
	Long: `Save text typed for a region.

Saving the same region again replaces the latest snapshot; moving to another
region starts a new one. The task becomes unsynced until the next sync.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		regionID := types.RegionID(idArg(cmd, args[0]))
		text := strings.Join(args[1:], " ")

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		partial, err := a.Engine().SaveTranscript(ctx, regionID, text)
		checkErr("failed to save transcript", err)
		fmt.Println(a.theme.Successf("Saved transcript %d for region %d of task %d", partial.ID, partial.RegionID, partial.TaskID))
	},
}

var completeCmd = &cobra.Command{
	Use:     "complete <task-id>",
	GroupID: "work",
	Short:   "Mark a task completed",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := types.TaskID(idArg(cmd, args[0]))
		raw, _ := cmd.Flags().GetString("difficulty")
		difficulty, err := types.ParseDifficulty(raw)
		if err != nil {
			fatalf("%v", err)
		}

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		full, err := a.Engine().CompleteTask(ctx, id, difficulty)
		checkErr(fmt.Sprintf("failed to complete task %d", id), err)
		fmt.Println(a.theme.Successf("Task %d completed (%s); it is sent on the next sync", full.Task.ID, difficulty))
	},
}

var rejectCmd = &cobra.Command{
	Use:     "reject <task-id>",
	GroupID: "work",
	Short:   "Reject a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := types.TaskID(idArg(cmd, args[0]))
		raw, _ := cmd.Flags().GetString("reason")
		reason, err := types.ParseRejectReason(raw)
		if err != nil {
			fatalf("%v", err)
		}

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		full, err := a.Engine().RejectTask(ctx, id, reason)
		checkErr(fmt.Sprintf("failed to reject task %d", id), err)
		fmt.Println(a.theme.Successf("Task %d rejected (%s); it is sent on the next sync", full.Task.ID, reason))
	},
}

var speedCmd = &cobra.Command{
	Use:     "speed [value]",
	GroupID: "work",
	Short:   "Show or set the playback speed",
	Long: `Show or set the preferred playback speed.

Supported speeds: 0.5, 0.75, 1, 1.5, 2.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()

		if len(args) == 0 {
			fmt.Printf("%sx\n", a.prefs.PlaybackSpeed())
			return
		}

		speed, err := types.ParsePlaybackSpeed(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if err := a.prefs.SetPlaybackSpeed(speed); err != nil {
			fatalf("failed to save playback speed: %v", err)
		}
		fmt.Println(a.theme.Successf("Playback speed set to %sx", speed))
	},
}

func init() {
	tasksCmd.Flags().String("phase", "", "Only tasks in this phase (NEW, IN_PROGRESS, COMPLETED, REJECTED)")
	tasksCmd.Flags().Bool("unsynced", false, "Only tasks with changes the server has not seen")

	completeCmd.Flags().String("difficulty", "", "Difficulty: EASY, MEDIUM or HARD")
	_ = completeCmd.MarkFlagRequired("difficulty")

	rejectCmd.Flags().String("reason", "", "Reason: BLANK, INAPPROPRIATE or UNDERAGE")
	_ = rejectCmd.MarkFlagRequired("reason")

	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(speedCmd)
}
