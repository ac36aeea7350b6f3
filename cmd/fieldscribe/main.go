// Command fieldscribe drives the offline-first transcription sync engine from
// the command line: pull and push tasks, import audio, save transcripts and
// run the background daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "fieldscribe",
	Short: "Offline-first audio transcription client",
	Long: `fieldscribe keeps a local database of transcription tasks and syncs it
with the transcription server.

Work happens offline: tasks, regions and transcripts live in a local SQLite
database. 'fieldscribe sync' pulls new tasks and pushes local changes, and
'fieldscribe daemon' does the same on a schedule while ingesting audio
dropped into an inbox folder.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.fieldscribe/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "work", Title: "Transcription Work:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
