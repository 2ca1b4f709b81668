package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrlokans/booksync/internal/booksync"
	"github.com/mrlokans/booksync/internal/config"
	"github.com/mrlokans/booksync/internal/entities"
)

// Syncer is the coordinator surface the batch commands drive.
type Syncer interface {
	SyncAllUserBooks(ctx context.Context) entities.BatchResult
	LoadAllUserBooks(ctx context.Context) entities.BatchLoadResult
	PerformStartupSync(ctx context.Context) (booksync.StartupResult, error)
	CheckForBackendUpdates(ctx context.Context) (int, error)
	ResetAndReload(ctx context.Context) entities.BatchLoadResult
}

// Opener builds the syncer for a command and returns a cleanup func.
type Opener func(ctx context.Context, cfg *config.Config) (Syncer, func(), error)

// Action names the batch operation a SyncCommand runs.
type Action string

const (
	ActionSyncAll      Action = "sync-all"
	ActionLoadAll      Action = "load-all"
	ActionStartupSync  Action = "startup-sync"
	ActionCheckUpdates Action = "check-updates"
	ActionReset        Action = "reset-reload"
)

var actionHelp = map[Action]string{
	ActionSyncAll:      "Push every locally cached book to the remote store.",
	ActionLoadAll:      "Replace the local book list with every remote book of the user.",
	ActionStartupSync:  "Load everything on an empty cache, otherwise push local books and pull remote changes.",
	ActionCheckUpdates: "Reload books changed remotely since the last sync.",
	ActionReset:        "Clear the local cache, keeping preserved settings, and load every remote book.",
}

// ErrPartialFailure is returned when a batch finished with failed books.
var ErrPartialFailure = errors.New("some books failed")

// SyncCommand runs one batch sync operation for a user.
type SyncCommand struct {
	Action Action
	UserID string
	JSON   bool

	cfg    *config.Config
	open   Opener
	stdout io.Writer
}

// NewSyncCommand creates a command for action.
func NewSyncCommand(action Action, cfg *config.Config, open Opener) *SyncCommand {
	return &SyncCommand{
		Action: action,
		cfg:    cfg,
		open:   open,
		stdout: os.Stdout,
	}
}

// IsAction reports whether name is a batch sync subcommand.
func IsAction(name string) bool {
	_, ok := actionHelp[Action(name)]
	return ok
}

// ParseFlags parses command line flags
func (cmd *SyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet(string(cmd.Action), flag.ContinueOnError)

	fs.StringVar(&cmd.UserID, "user", cmd.cfg.Sync.BackgroundUserID, "User whose books are synced (default: SYNC_BACKGROUND_USER_ID)")
	fs.BoolVar(&cmd.JSON, "json", false, "Print the result as JSON")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s %s [options]\n\n", os.Args[0], cmd.Action)
		fmt.Fprintf(fs.Output(), "%s\n\n", actionHelp[cmd.Action])
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.UserID == "" {
		return fmt.Errorf("-user is required")
	}
	return nil
}

// Run executes the batch operation. It stops early on SIGINT/SIGTERM.
func (cmd *SyncCommand) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncer, cleanup, err := cmd.open(ctx, cmd.cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return cmd.execute(booksync.WithUser(ctx, cmd.UserID), syncer)
}

func (cmd *SyncCommand) execute(ctx context.Context, syncer Syncer) error {
	var (
		result any
		failed []string
	)

	switch cmd.Action {
	case ActionSyncAll:
		res := syncer.SyncAllUserBooks(ctx)
		result, failed = res, res.Failed
		cmd.printf("Synced %d of %d books\n", res.Synced, res.Total)
	case ActionLoadAll:
		res := syncer.LoadAllUserBooks(ctx)
		result, failed = res, res.Failed
		cmd.printf("Loaded %d of %d books\n", res.Loaded, res.Total)
	case ActionReset:
		res := syncer.ResetAndReload(ctx)
		result, failed = res, res.Failed
		cmd.printf("Cache reset, loaded %d of %d books\n", res.Loaded, res.Total)
	case ActionStartupSync:
		res, err := syncer.PerformStartupSync(ctx)
		if err != nil {
			return fmt.Errorf("startup sync: %w", err)
		}
		result = res
		switch {
		case res.Loaded != nil:
			failed = res.Loaded.Failed
			cmd.printf("Empty cache, loaded %d of %d books\n", res.Loaded.Loaded, res.Loaded.Total)
		case res.Synced != nil:
			failed = res.Synced.Failed
			cmd.printf("Synced %d of %d books, %d updated from remote\n", res.Synced.Synced, res.Synced.Total, res.Updated)
		}
	case ActionCheckUpdates:
		n, err := syncer.CheckForBackendUpdates(ctx)
		if err != nil {
			return fmt.Errorf("check for updates: %w", err)
		}
		result = map[string]int{"updated": n}
		cmd.printf("%d book(s) updated from remote\n", n)
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}

	if cmd.JSON {
		enc := json.NewEncoder(cmd.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		for _, id := range failed {
			cmd.printf("  failed: %s\n", id)
		}
		return fmt.Errorf("%w: %d", ErrPartialFailure, len(failed))
	}
	return nil
}

// printf writes human output unless JSON output was requested.
func (cmd *SyncCommand) printf(format string, args ...any) {
	if cmd.JSON {
		return
	}
	fmt.Fprintf(cmd.stdout, format, args...)
}

// Usage lists the batch subcommands.
func Usage(w io.Writer) {
	for _, a := range []Action{ActionSyncAll, ActionLoadAll, ActionStartupSync, ActionCheckUpdates, ActionReset} {
		fmt.Fprintf(w, "  %-16s %s\n", a, actionHelp[a])
	}
}
