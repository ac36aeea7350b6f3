package main

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	syncengine "github.com/fieldscribe/fieldscribe/internal/sync"
)

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "work",
	Short:   "Submit a local recording as a new task",
	Long: `Copy a recording into fieldscribe and submit it to the server.

The audio length must be given in milliseconds. The MIME type is guessed from
the file extension when --mime is not set.

Example:
  fieldscribe import interview.ogg --length-ms 184000`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lengthMs, _ := cmd.Flags().GetInt64("length-ms")
		mimeType, _ := cmd.Flags().GetString("mime")
		name, _ := cmd.Flags().GetString("name")

		src, err := filepath.Abs(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if lengthMs <= 0 {
			fatalf("--length-ms must be positive")
		}
		if mimeType == "" {
			mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(src)))
		}

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		engine := a.Engine()
		provisional, err := engine.CreateProvisionalTask(ctx, syncengine.IncomingContent{
			URI:         "file://" + src,
			DisplayName: name,
			MimeType:    mimeType,
		})
		checkErr("failed to import audio", err)

		task, err := engine.CreateTranscriptTask(ctx, *provisional, lengthMs)
		if err != nil {
			if derr := engine.DiscardProvisionalTask(context.WithoutCancel(ctx), *provisional); derr != nil {
				fmt.Printf("Warning: failed to discard imported copy: %v\n", derr)
			}
			checkErr("failed to submit task", err)
		}

		fmt.Println(a.theme.Successf("Submitted %s as task %d (remote %d)", task.DisplayName, task.ID, task.RemoteID))
	},
}

func init() {
	importCmd.Flags().Int64("length-ms", 0, "Audio length in milliseconds")
	importCmd.Flags().String("mime", "", "MIME type of the recording (default: from extension)")
	importCmd.Flags().String("name", "", "Display name (default: file name)")
	_ = importCmd.MarkFlagRequired("length-ms")

	rootCmd.AddCommand(importCmd)
}
