// ABOUTME: Mutation CLI commands for threads and messages
// ABOUTME: Updates apply optimistically and report rollback on failure
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/openhouse/leadsync/models"
	"github.com/openhouse/leadsync/ops"
)

// UpdateThreadCommand applies a partial update to one thread. Only
// flags that were explicitly set travel in the patch.
func UpdateThreadCommand(session *ops.Session, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	name := fs.String("name", "", "Lead name")
	email := fs.String("email", "", "Client email")
	phone := fs.String("phone", "", "Phone number")
	location := fs.String("location", "", "Location")
	read := fs.Bool("read", false, "Mark read (or unread with -read=false)")
	flagged := fs.Bool("flag", false, "Flag the thread")
	completed := fs.Bool("completed", false, "Mark completed")
	busy := fs.Bool("busy", false, "Mark busy")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: update [flags] <conversation-id>")
	}
	id := fs.Arg(0)

	var patch models.ThreadPatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			patch.LeadName = name
		case "email":
			patch.ClientEmail = email
		case "phone":
			patch.Phone = phone
		case "location":
			patch.Location = location
		case "read":
			patch.Read = read
		case "flag":
			patch.Flag = flagged
		case "completed":
			patch.Completed = completed
		case "busy":
			patch.Busy = busy
		}
	})
	if patch.IsZero() {
		return fmt.Errorf("no fields to update; pass at least one flag")
	}

	result := session.UpdateThread(context.Background(), id, patch)
	if !result.Success {
		return fmt.Errorf("update failed (local state rolled back): %s", result.Error)
	}
	fmt.Printf("✓ Thread %s updated\n", id)
	return nil
}

// NotSpamCommand clears the spam and review flags on one thread.
func NotSpamCommand(session *ops.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: not-spam <conversation-id>")
	}
	id := args[0]

	result := session.MarkNotSpam(context.Background(), id)
	if !result.Success {
		return fmt.Errorf("marking not spam failed (local state rolled back): %s", result.Error)
	}
	fmt.Printf("✓ Thread %s is no longer marked as spam\n", id)
	return nil
}

// DeleteThreadCommand removes one thread.
func DeleteThreadCommand(session *ops.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: delete <conversation-id>")
	}
	id := args[0]

	result := session.DeleteThread(context.Background(), id)
	if !result.Success {
		return fmt.Errorf("delete failed (local state rolled back): %s", result.Error)
	}
	fmt.Printf("✓ Thread %s deleted\n", id)
	return nil
}

// SendMessageCommand sends an outbound message on one thread.
func SendMessageCommand(session *ops.Session, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	body := fs.String("body", "", "Message body (required)")
	to := fs.String("to", "", "Recipient address")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: send --body <text> [--to <recipient>] <conversation-id>")
	}
	if *body == "" {
		return fmt.Errorf("--body is required")
	}
	id := fs.Arg(0)

	result := session.SendMessage(context.Background(), id, *body, *to)
	if !result.Success {
		return fmt.Errorf("send failed (local state rolled back): %s", result.Error)
	}
	msg, ok := result.Data.(models.Message)
	if !ok {
		return fmt.Errorf("unexpected result payload %T", result.Data)
	}
	fmt.Printf("✓ Message %s sent on thread %s\n", msg.ID, id)
	return nil
}
