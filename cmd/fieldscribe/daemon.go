package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldscribe/fieldscribe/internal/config"
	"github.com/fieldscribe/fieldscribe/internal/daemon"
	"github.com/fieldscribe/fieldscribe/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run sync cycles on a schedule and ingest recordings from an inbox.

The daemon will:
  1. Sync immediately, then every sync_interval
  2. Watch inbox_dir for manifests (<name>.json next to the audio file)
  3. Submit each recording and move it to inbox_dir/done

A manifest looks like:
  {"file": "interview.ogg", "mimeType": "audio/ogg", "lengthMs": 184000}

With --dashboard the WebSocket dashboard runs alongside and shows the task
list and sync results live.`,
	Run: func(cmd *cobra.Command, args []string) {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		port, _ := cmd.Flags().GetInt("port")

		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("%v", err)
		}
		if cmd.Flags().Changed("inbox") {
			cfg.InboxDir, _ = cmd.Flags().GetString("inbox")
		}
		if !cmd.Flags().Changed("port") {
			port = cfg.DashboardPort
		}

		logOut := daemonLogOutput(cfg)
		if c, ok := logOut.(io.Closer); ok {
			defer c.Close()
		}

		a := openAppWith(cfg, logOut)
		defer a.Close()

		d, err := daemon.New(a.Engine(), &daemon.Config{
			SyncInterval:     cfg.SyncInterval,
			DebounceInterval: cfg.DebounceInterval,
			InboxDir:         cfg.InboxDir,
			Logger:           log.New(logOut, "[daemon] ", log.LstdFlags),
		})
		if err != nil {
			fatalf("failed to create daemon: %v", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		if withDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Logger: log.New(logOut, "[dashboard] ", log.LstdFlags),
			})
			if err := server.Start(); err != nil {
				fatalf("failed to start dashboard: %v", err)
			}
			defer server.Stop()

			handler := dashboard.NewHandler(server, log.New(logOut, "[dashboard] ", log.LstdFlags))
			d.SetNotifier(handler)
			go handler.Run(ctx, a.store)
			fmt.Printf("   Dashboard: http://%s\n", server.GetAddr())
		}

		fmt.Printf("Starting sync daemon...\n")
		fmt.Printf("   Server: %s\n", cfg.ServerURL)
		fmt.Printf("   Interval: %v\n", cfg.SyncInterval)
		if cfg.InboxDir != "" {
			fmt.Printf("   Inbox: %s\n", cfg.InboxDir)
		}
		if cfg.LogFile != "" {
			fmt.Printf("   Log: %s\n", cfg.LogFile)
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		// Start blocks until ctx is cancelled.
		if err := d.Start(ctx); err != nil {
			fatalf("daemon stopped with error: %v", err)
		}
	},
}

// daemonLogOutput rotates log_file when set and writes to stderr otherwise.
func daemonLogOutput(cfg *config.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

func init() {
	daemonCmd.Flags().String("inbox", "", "Inbox folder (overrides inbox_dir)")
	daemonCmd.Flags().Bool("dashboard", false, "Serve the WebSocket dashboard")
	daemonCmd.Flags().IntP("port", "p", 8080, "Dashboard port (default: dashboard_port)")

	rootCmd.AddCommand(daemonCmd)
}
