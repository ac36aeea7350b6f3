package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldscribe/fieldscribe/internal/config"
	"github.com/fieldscribe/fieldscribe/internal/store"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

func TestCommandTree(t *testing.T) {
	want := []string{
		"config", "register", "login", "logout", "sync", "status", "tasks", "show",
		"import", "next", "play", "snapshot", "transcribe", "complete", "reject", "daemon", "dashboard", "export", "speed", "bench",
	}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}

	if cmd, _, err := rootCmd.Find([]string{"config", "init"}); err != nil || cmd.Name() != "init" {
		t.Errorf("config init not registered: %v", err)
	}
}

func TestDaemonLogOutput(t *testing.T) {
	cfg := config.DefaultConfig()
	if got := daemonLogOutput(cfg); got != os.Stderr {
		t.Errorf("without log_file the daemon should log to stderr, got %T", got)
	}

	cfg.LogFile = filepath.Join(t.TempDir(), "daemon.log")
	lj, ok := daemonLogOutput(cfg).(*lumberjack.Logger)
	if !ok {
		t.Fatalf("with log_file the daemon should use a rotating logger")
	}
	defer lj.Close()
	if lj.Filename != cfg.LogFile || lj.MaxBackups != 3 {
		t.Errorf("unexpected rotation settings: %+v", lj)
	}
}

func TestShouldReport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unknown", errors.New("boom"), true},
		{"server", types.E(types.KindServer, "remote.SubmitTask", errors.New("500")), true},
		{"io", types.E(types.KindIO, "sync.ImportAudio", errors.New("disk full")), true},
		{"network", types.E(types.KindNetwork, "remote.Ping", errors.New("dial")), false},
		{"unauthorized", types.ErrUnauthorized, false},
		{"duplicate user", types.E(types.KindDuplicateUser, "remote.Register", errors.New("taken")), false},
		{"missing row", types.E(types.KindStore, "store.GetTask", store.ErrNotFound), false},
		{"interrupted", fmt.Errorf("pull: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldReport(tt.err); got != tt.want {
				t.Errorf("shouldReport(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReportUnexpected(t *testing.T) {
	reportUnexpected("no engine yet", errors.New("boom"))

	var got []string
	reportError = func(message string) { got = append(got, message) }
	defer func() { reportError = nil }()

	reportUnexpected("failed to load task 3", types.E(types.KindServer, "remote.GetTask", errors.New("status 500")))
	reportUnexpected("failed to sync", types.E(types.KindNetwork, "remote.Ping", errors.New("dial")))

	if len(got) != 1 {
		t.Fatalf("expected one report, got %v", got)
	}
	if !strings.HasPrefix(got[0], "failed to load task 3: remote.GetTask") || !strings.Contains(got[0], "status 500") {
		t.Errorf("unexpected report %q", got[0])
	}
}
