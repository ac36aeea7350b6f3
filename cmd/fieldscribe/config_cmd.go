package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fieldscribe/fieldscribe/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a config file with every setting at its default value.

Examples:
  fieldscribe config init --server https://scribe.example.org
  fieldscribe config init --inbox ~/Recordings/inbox --force`,
	Run: func(cmd *cobra.Command, args []string) {
		server, _ := cmd.Flags().GetString("server")
		inbox, _ := cmd.Flags().GetString("inbox")
		force, _ := cmd.Flags().GetBool("force")

		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}

		cfg := config.DefaultConfig()
		cfg.ServerURL = server
		cfg.InboxDir = inbox
		if err := config.WriteDefault(path, cfg, force); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after file, environment and defaults are merged.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("%v", err)
		}
		view := map[string]any{
			"server_url":          cfg.ServerURL,
			"data_dir":            cfg.DataDir,
			"region_length_ms":    cfg.RegionLengthMs,
			"sync_interval":       cfg.SyncInterval.String(),
			"debounce_interval":   cfg.DebounceInterval.String(),
			"push_concurrency":    cfg.PushConcurrency,
			"audio_ready_timeout": cfg.AudioReadyTimeout.String(),
			"submit_max_attempts": cfg.SubmitMaxAttempts,
			"submit_backoff":      cfg.SubmitBackoff.String(),
			"http_timeout":        cfg.HTTPTimeout.String(),
			"inbox_dir":           cfg.InboxDir,
			"log_file":            cfg.LogFile,
			"dashboard_port":      cfg.DashboardPort,
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			fatalf("%v", err)
		}
		_ = enc.Close()
	},
}

func init() {
	configInitCmd.Flags().String("server", "", "Server URL")
	configInitCmd.Flags().String("inbox", "", "Inbox folder watched by the daemon")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
