package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldscribe/fieldscribe/internal/config"
	"github.com/fieldscribe/fieldscribe/internal/prefs"
	"github.com/fieldscribe/fieldscribe/internal/remote"
	"github.com/fieldscribe/fieldscribe/internal/store"
	syncengine "github.com/fieldscribe/fieldscribe/internal/sync"
	"github.com/fieldscribe/fieldscribe/internal/types"
	"github.com/fieldscribe/fieldscribe/internal/ui"
)

// app is the wiring shared by every command.
type app struct {
	cfg    *config.Config
	store  *store.Store
	prefs  *prefs.Repository
	theme  *ui.Theme
	logOut io.Writer

	remote *remote.Client
	engine syncengine.Engine
}

// openApp loads the config and opens the local database and preferences.
func openApp() *app {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("%v", err)
	}

	logOut := io.Discard
	if verbose {
		logOut = os.Stderr
	}
	return openAppWith(cfg, logOut)
}

func openAppWith(cfg *config.Config, logOut io.Writer) *app {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		fatalf("failed to create data directory: %v", err)
	}

	kv, err := prefs.OpenFile(cfg.PrefsPath())
	if err != nil {
		fatalf("%v", err)
	}

	st, err := store.Open(cfg.DBPath(), store.Options{
		Logger:       log.New(logOut, "[store] ", log.LstdFlags),
		RegionLength: cfg.RegionLengthMs,
	})
	if err != nil {
		fatalf("failed to open database: %v", err)
	}

	return &app{
		cfg:    cfg,
		store:  st,
		prefs:  prefs.NewRepository(kv),
		theme:  ui.NewTheme(os.Stdout),
		logOut: logOut,
	}
}

// Remote returns the server client, creating it on first use.
func (a *app) Remote() *remote.Client {
	if a.remote != nil {
		return a.remote
	}
	if a.cfg.ServerURL == "" {
		fatalf("server_url is not configured (run 'fieldscribe config init --server URL' or set FIELDSCRIBE_SERVER_URL)")
	}

	rc := remote.DefaultConfig(a.cfg.ServerURL)
	rc.HTTPClient = &http.Client{Timeout: a.cfg.HTTPTimeout}
	rc.Tokens = a.prefs
	rc.Credentials = a.prefs
	rc.SubmitMaxAttempts = a.cfg.SubmitMaxAttempts
	rc.SubmitBackoff = a.cfg.SubmitBackoff
	rc.Logger = log.New(a.logOut, "[remote] ", log.LstdFlags)

	client, err := remote.New(rc)
	if err != nil {
		fatalf("%v", err)
	}
	a.remote = client
	return client
}

// Engine returns the sync engine, creating it on first use.
func (a *app) Engine() syncengine.Engine {
	if a.engine == nil {
		a.engine = syncengine.New(a.store, a.Remote(), syncengine.Config{
			FilesDir:          a.cfg.FilesDir(),
			PushConcurrency:   a.cfg.PushConcurrency,
			AudioReadyTimeout: a.cfg.AudioReadyTimeout,
		}, log.New(a.logOut, "[sync] ", log.LstdFlags))
		engine := a.engine
		reportError = func(message string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = engine.LogError(ctx, message)
		}
	}
	return a.engine
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// reportError sends an unexpected failure to the server's error log. It is
// set once a command has built the sync engine.
var reportError func(message string)

// shouldReport tells unexpected failures apart from ones the user caused or
// can fix.
func shouldReport(err error) bool {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	switch types.KindOf(err) {
	case types.KindNetwork, types.KindUnauthorized, types.KindDuplicateUser:
		return false
	}
	return true
}

func reportUnexpected(what string, err error) {
	if reportError != nil && shouldReport(err) {
		reportError(fmt.Sprintf("%s: %v", what, err))
	}
}

// checkErr exits on err, with a hint for errors the user can act on.
// Unexpected failures are reported to the server first.
func checkErr(what string, err error) {
	if err == nil {
		return
	}
	reportUnexpected(what, err)
	switch types.KindOf(err) {
	case types.KindUnauthorized:
		fatalf("%s: %v\nRun 'fieldscribe login' to sign in again.", what, err)
	case types.KindNetwork:
		fatalf("%s: %v\nThe server is unreachable; local changes are kept and pushed on the next sync.", what, err)
	default:
		fatalf("%s: %v", what, err)
	}
}

// idArg parses a positional numeric identifier.
func idArg(cmd *cobra.Command, s string) int64 {
	var id int64
	if _, err := fmt.Sscan(s, &id); err != nil || id <= 0 {
		fatalf("invalid id %q for '%s'", s, cmd.CommandPath())
	}
	return id
}
