package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldscribe/fieldscribe/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Export tasks, regions and transcripts as JSON Lines",
	Long: `Write one JSON object per task with its active regions and every saved
transcript snapshot.

--since accepts a timestamp, a date, a duration or an English phrase:
  fieldscribe export --since 2024-03-01
  fieldscribe export --since 48h --out recent.jsonl
  fieldscribe export --since "last week"`,
	Run: func(cmd *cobra.Command, args []string) {
		sinceRaw, _ := cmd.Flags().GetString("since")
		out, _ := cmd.Flags().GetString("out")

		since, err := export.ParseSince(sinceRaw, time.Now())
		if err != nil {
			fatalf("invalid --since: %v", err)
		}

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		if out == "" || out == "-" {
			records, _, err := export.Collect(ctx, a.store, since)
			if err != nil {
				fatalf("%v", err)
			}
			if err := export.WriteJSONL(os.Stdout, records); err != nil {
				fatalf("%v", err)
			}
			return
		}

		result, err := export.Export(ctx, a.store, out, since)
		if err != nil {
			fatalf("export failed: %v", err)
		}
		fmt.Println(a.theme.Successf("Exported %d tasks to %s", result.TasksExported, result.Path))
		if result.TasksSkipped > 0 {
			fmt.Printf("   Skipped (older than %s): %d\n", since.Format(time.RFC3339), result.TasksSkipped)
		}
	},
}

func init() {
	exportCmd.Flags().String("since", "", "Only tasks updated at or after this time")
	exportCmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")

	rootCmd.AddCommand(exportCmd)
}
