// ABOUTME: Entry point for the leadsync CLI
// ABOUTME: Assembles transport, auth, store, and sync log, then routes commands
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/openhouse/leadsync/auth"
	"github.com/openhouse/leadsync/cli"
	"github.com/openhouse/leadsync/config"
	"github.com/openhouse/leadsync/db"
	"github.com/openhouse/leadsync/ops"
	"github.com/openhouse/leadsync/store"
	"github.com/openhouse/leadsync/transport"
)

const version = "0.2.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	baseURL := flag.String("base-url", "", "Remote service URL (overrides config)")
	account := flag.String("account", "", "Account ID (overrides config)")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("leadsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	logger := log.New(os.Stderr)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("loading config", "error", err)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *account != "" {
		cfg.AccountID = *account
	}
	if cfg.BaseURL == "" {
		logger.Fatal("no remote service configured; set LEADSYNC_BASE_URL or pass --base-url")
	}

	client := transport.NewClient(transport.Options{
		BaseURL:  cfg.BaseURL,
		CacheTTL: cfg.CacheTTL,
		Logger:   logger,
	})

	manager, err := auth.NewManager(client, "", logger)
	if err != nil {
		logger.Fatal("loading credentials", "error", err)
	}
	client.SetAuth(manager)

	snapshots, err := store.Open(cfg.StorePath(), logger)
	if err != nil {
		logger.Fatal("opening snapshot store", "error", err)
	}
	defer func() { _ = snapshots.Close() }()

	database, err := db.OpenDatabase(cfg.SyncDBPath())
	if err != nil {
		logger.Fatal("opening sync log", "error", err)
	}
	defer func() { _ = database.Close() }()

	session := ops.NewSession(ops.Deps{
		Client:      client,
		Auth:        manager,
		Store:       snapshots,
		SyncDB:      database,
		Logger:      logger,
		AccountID:   cfg.AccountID,
		StaleWindow: cfg.StaleWindow,
	})

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "login":
		err = cli.LoginCommand(manager, commandArgs)
	case "list":
		err = cli.ListThreadsCommand(session, commandArgs)
	case "show":
		err = cli.ShowThreadCommand(session, commandArgs)
	case "update":
		err = cli.UpdateThreadCommand(session, commandArgs)
	case "send":
		err = cli.SendMessageCommand(session, commandArgs)
	case "delete":
		err = cli.DeleteThreadCommand(session, commandArgs)
	case "not-spam":
		err = cli.NotSpamCommand(session, commandArgs)
	case "status":
		err = cli.StatusCommand(database, commandArgs)
	case "refresh":
		err = cli.RefreshCommand(session, commandArgs)
	case "watch":
		err = cli.WatchCommand(session, logger, cfg.RefreshSchedule, commandArgs)
	case "reset":
		err = cli.ResetCommand(session, commandArgs)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal("command failed", "error", err)
	}
}

func printUsage() {
	fmt.Printf(`leadsync v%s - Lead conversation sync layer

USAGE:
  leadsync [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --verbose              Enable debug logging
  --base-url <url>       Remote service URL (overrides config)
  --account <id>         Account ID (overrides config)

COMMANDS:
  leadsync login            Sign in and store the bearer token
    --email <email>           Account email
    --password <password>     Account password
    --token <jwt>             Store a token directly instead

  leadsync list             List conversation threads, newest first
    --limit <n>               Max results (default: 50)
    --unread                  Only unread threads
    --force                   Refetch even if local data is fresh

  leadsync show <id>        Show one thread with its messages

  leadsync update [flags] <id>  Update thread fields
    --name <name>             Lead name
    --email <email>           Client email
    --phone <phone>           Phone number
    --location <location>     Location
    --read / --flag / --completed / --busy
    Note: flags must come before the thread ID

  leadsync send --body <text> [--to <addr>] <id>  Send a message

  leadsync delete <id>      Delete a thread
  leadsync not-spam <id>    Clear the spam and review flags

  leadsync status           Show the last refresh outcome
  leadsync refresh          Force an immediate refetch
  leadsync watch            Refresh on a schedule until interrupted
    --schedule <spec>         Cron schedule (default: @every 10m)

  leadsync reset            Clear local data, cache, and credentials

EXAMPLES:
  # Sign in
  leadsync login --email agent@example.com --password secret

  # List unread threads
  leadsync list --unread

  # Mark a thread read
  leadsync update --read <id>

  # Reply to a lead
  leadsync send --body "Happy to set up a showing" <id>

`, version)
}
