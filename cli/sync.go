// ABOUTME: Sync and session management CLI commands
// ABOUTME: Covers status, explicit refresh, background watch, login, and reset
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/openhouse/leadsync/auth"
	"github.com/openhouse/leadsync/db"
	"github.com/openhouse/leadsync/models"
	"github.com/openhouse/leadsync/ops"
)

// StatusCommand prints the last refresh outcome.
func StatusCommand(database *sql.DB, args []string) error {
	state, err := db.GetSyncState(database, ops.SyncService)
	if err != nil {
		return fmt.Errorf("reading sync state: %w", err)
	}
	if state == nil {
		fmt.Println("No sync has run yet")
		return nil
	}

	fmt.Printf("Service: %s\n", state.Service)
	fmt.Printf("Status:  %s\n", state.Status)
	if state.LastSyncTime != nil {
		fmt.Printf("Last:    %s\n", state.LastSyncTime.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Last:    never")
	}
	if state.ErrorMessage != "" {
		fmt.Printf("Error:   %s\n", state.ErrorMessage)
	}
	return nil
}

// RefreshCommand forces an immediate refetch.
func RefreshCommand(session *ops.Session, args []string) error {
	result := session.RefreshNow(context.Background())
	if !result.Success {
		return fmt.Errorf("refresh failed: %s", result.Error)
	}
	conversations, _ := result.Data.([]models.Conversation)
	fmt.Printf("✓ Refreshed %d thread(s)\n", len(conversations))
	return nil
}

// WatchCommand refreshes on a schedule until interrupted.
func WatchCommand(session *ops.Session, logger *log.Logger, defaultSchedule string, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	schedule := fs.String("schedule", defaultSchedule, "Refresh schedule (cron syntax)")
	_ = fs.Parse(args)

	refresher := ops.NewRefresher(session, logger)
	if err := refresher.Start(*schedule); err != nil {
		return fmt.Errorf("starting refresher: %w", err)
	}
	defer refresher.Stop()

	// Prime the store immediately instead of waiting a full interval.
	if result := session.RefreshNow(context.Background()); !result.Success {
		logger.Warn("initial refresh failed", "error", result.Error)
	}

	fmt.Printf("Watching for updates (%s); press Ctrl-C to stop\n", *schedule)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	fmt.Println("\nStopping")
	return nil
}

// LoginCommand signs in and stores the bearer token. A raw token can be
// supplied directly with --token for deployments without password auth.
func LoginCommand(manager *auth.Manager, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password")
	token := fs.String("token", "", "Bearer token (skips the login call)")
	_ = fs.Parse(args)

	if *token != "" {
		if err := manager.SetToken(*token); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}
		fmt.Println("✓ Token stored")
		return nil
	}

	if *email == "" || *password == "" {
		return fmt.Errorf("--email and --password are required (or --token)")
	}
	if err := manager.Login(context.Background(), *email, *password); err != nil {
		return err
	}
	fmt.Printf("✓ Signed in as %s\n", *email)
	return nil
}

// ResetCommand wipes all per-user state before a different user signs in.
func ResetCommand(session *ops.Session, args []string) error {
	if err := session.Reset(); err != nil {
		return err
	}
	fmt.Println("✓ Local data, cache, and credentials cleared")
	return nil
}
