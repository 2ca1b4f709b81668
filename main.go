package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mrlokans/booksync/internal/cli"
	"github.com/mrlokans/booksync/internal/config"
	"github.com/mrlokans/booksync/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		cfg := config.NewConfig()
		entrypoint.Run(cfg, Version)
		return
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch {
	case cli.IsAction(command):
		cmd := cli.NewSyncCommand(cli.Action(command), config.NewConfig(), openSyncer)
		if err := cmd.ParseFlags(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case command == "version":
		fmt.Printf("booksync %s (%s)\n", Version, Commit)

	case command == "-h", command == "--help", command == "help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func openSyncer(ctx context.Context, cfg *config.Config) (cli.Syncer, func(), error) {
	coordinator, cleanup, err := entrypoint.OpenCoordinator(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return coordinator, cleanup, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %-16s %s\n", "serve", "Start the HTTP server (default if no command given)")
	cli.Usage(os.Stderr)
	fmt.Fprintf(os.Stderr, "  %-16s %s\n", "version", "Print version information")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
