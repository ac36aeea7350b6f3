package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldscribe/fieldscribe/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Start real-time WebSocket dashboard of the local task list",
	Long: `Start a WebSocket dashboard server that streams the local task list.

Every change to the database is broadcast as a task_list message. New
clients receive the current list as soon as they connect. Sync events
(sync_complete, sync_failed, task_ingested) are only sent when the dashboard
runs inside 'fieldscribe daemon --dashboard'.

Example usage:
  fieldscribe dashboard                   # Start on dashboard_port
  fieldscribe dashboard --port 9000       # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()

		port := a.cfg.DashboardPort
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})
		if err := server.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		handler := dashboard.NewHandler(server, nil)
		go handler.Run(ctx, a.store)

		fmt.Printf("Dashboard server started on http://%s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
		fmt.Printf("Health check: http://%s/health\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fatalf("error during shutdown: %v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default: dashboard_port)")
	rootCmd.AddCommand(dashboardCmd)
}
